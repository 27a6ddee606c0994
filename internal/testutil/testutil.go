// Package testutil provides small helpers shared across cairn's test suites.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cairn-pm/cairn/internal/config"
)

// TempDir returns a fresh temporary directory that is removed when the
// test completes.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// NewTestConfig returns a Config rooted at a fresh temp directory, with
// every directory it names already created.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	home := t.TempDir()
	c := &config.Config{
		HomeDir:            home,
		StateDir:           filepath.Join(home, "state"),
		CloneDir:           filepath.Join(home, "clone"),
		DiffDir:            filepath.Join(home, "diff"),
		IndexNameCacheFile: filepath.Join(home, "packages.aur"),
		APITimeout:         config.DefaultAPITimeout,
		ProbeTimeout:       config.DefaultProbeTimeout,
		ProbeConcurrency:   config.DefaultProbeConcurrency,
		KeepaliveInterval:  config.DefaultKeepaliveInterval,
		DBLockPollInterval: config.DefaultDBLockPollInterval,
	}
	if err := c.EnsureDirectories(); err != nil {
		t.Fatalf("testutil: ensure directories: %v", err)
	}
	return c
}

// WriteFile writes contents to a path under dir, creating parent
// directories as needed, and fails the test on error.
func WriteFile(t *testing.T, dir, relPath, contents string) string {
	t.Helper()
	full := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("testutil: mkdir %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
		t.Fatalf("testutil: write %s: %v", full, err)
	}
	return full
}

// FileExists reports whether path exists on disk.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AssertFileExists fails the test if path does not exist.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if !FileExists(path) {
		t.Fatalf("expected file to exist: %s", path)
	}
}

// AssertFileNotExists fails the test if path exists.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if FileExists(path) {
		t.Fatalf("expected file to not exist: %s", path)
	}
}

// AssertEventually polls fn until it returns true or timeout elapses,
// failing the test otherwise. Useful for the develop tracker's bounded
// concurrency probes in tests that exercise cancellation.
func AssertEventually(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !fn() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

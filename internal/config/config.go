// Package config resolves cairn's on-disk layout and the small set of
// environment-tunable knobs the core consumes. Loading a full
// configuration file (pacman.conf-equivalent) is an external
// collaborator's job per spec.md §1; this package only owns the
// directories and timeouts the core itself needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvHome overrides the default cairn state/cache root.
	EnvHome = "CAIRN_HOME"

	// EnvAPITimeout configures the recipe-index HTTP timeout.
	EnvAPITimeout = "CAIRN_API_TIMEOUT"

	// EnvProbeTimeout configures the develop-tracker per-remote probe
	// deadline (spec.md §4.3 default: 15s).
	EnvProbeTimeout = "CAIRN_PROBE_TIMEOUT"

	// EnvProbeConcurrency configures the develop-tracker's bounded
	// in-flight probe count.
	EnvProbeConcurrency = "CAIRN_PROBE_CONCURRENCY"

	// EnvKeepaliveInterval configures the privileged-helper keepalive
	// period (spec.md §5 default: 250s).
	EnvKeepaliveInterval = "CAIRN_KEEPALIVE_INTERVAL"

	// EnvDBLockPollInterval configures how often the pipeline polls the
	// SPM database lock (spec.md §5 default: 3s).
	EnvDBLockPollInterval = "CAIRN_DB_LOCK_POLL_INTERVAL"

	DefaultAPITimeout         = 30 * time.Second
	DefaultProbeTimeout       = 15 * time.Second
	DefaultProbeConcurrency   = 8
	DefaultKeepaliveInterval  = 250 * time.Second
	DefaultDBLockPollInterval = 3 * time.Second
)

// Config holds the directory layout and tunables cairn's core consumes.
type Config struct {
	HomeDir            string // $CAIRN_HOME, default ~/.cache/cairn
	StateDir           string // persisted cross-invocation state (devel.toml)
	CloneDir           string // <cache>/clone/<base>/ recipe working trees
	DiffDir            string // <cache>/diff/<base>.diff saved review diffs
	IndexNameCacheFile string // <cache>/packages.aur cached name list

	APITimeout         time.Duration
	ProbeTimeout       time.Duration
	ProbeConcurrency   int
	KeepaliveInterval  time.Duration
	DBLockPollInterval time.Duration
}

// Default resolves Config from the environment, falling back to the
// documented defaults.
func Default() (*Config, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		cacheHome, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve user cache dir: %v", errConfig, err)
		}
		home = filepath.Join(cacheHome, "cairn")
	}

	return &Config{
		HomeDir:            home,
		StateDir:           filepath.Join(home, "state"),
		CloneDir:           filepath.Join(home, "clone"),
		DiffDir:            filepath.Join(home, "diff"),
		IndexNameCacheFile: filepath.Join(home, "packages.aur"),
		APITimeout:         durationEnv(EnvAPITimeout, DefaultAPITimeout, 1*time.Second, 10*time.Minute),
		ProbeTimeout:       durationEnv(EnvProbeTimeout, DefaultProbeTimeout, 1*time.Second, 2*time.Minute),
		ProbeConcurrency:   intEnv(EnvProbeConcurrency, DefaultProbeConcurrency, 1, 256),
		KeepaliveInterval:  durationEnv(EnvKeepaliveInterval, DefaultKeepaliveInterval, 30*time.Second, 20*time.Minute),
		DBLockPollInterval: durationEnv(EnvDBLockPollInterval, DefaultDBLockPollInterval, 500*time.Millisecond, 1*time.Minute),
	}, nil
}

// EnsureDirectories creates every directory this config names.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.HomeDir, c.StateDir, c.CloneDir, c.DiffDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create directory %s: %v", errConfig, dir, err)
		}
	}
	return nil
}

// TrackerFile returns the path to the persisted develop tracker.
func (c *Config) TrackerFile() string {
	return filepath.Join(c.StateDir, "devel.toml")
}

// BaseCloneDir returns the recipe working tree directory for a base.
func (c *Config) BaseCloneDir(base string) string {
	return filepath.Join(c.CloneDir, base)
}

// BaseDiffFile returns the saved-diff path used for the "seen" review mark.
func (c *Config) BaseDiffFile(base string) string {
	return filepath.Join(c.DiffDir, base+".diff")
}

var errConfig = fmt.Errorf("config")

func durationEnv(name string, def, min, max time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n", name, raw, def)
		return def
	}
	if d < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum %v\n", name, d, min)
		return min
	}
	if d > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum %v\n", name, d, max)
		return max
	}
	return d
}

func intEnv(name string, def, min, max int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n", name, raw, def)
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

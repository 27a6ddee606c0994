package spm

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// stubPacman writes an executable shell script standing in for the
// pacman-compatible binary: it records its argv to a file under dir,
// prints the given stdout and exits with exitCode.
func stubPacman(t *testing.T, dir, stdout string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, "fake-pacman")
	script := "#!/bin/sh\necho \"$@\" > " + filepath.Join(dir, "argv.txt") + "\n"
	if stdout != "" {
		script += "cat <<'EOF'\n" + stdout + "\nEOF\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func readArgv(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "argv.txt"))
	if err != nil {
		t.Fatalf("read argv: %v", err)
	}
	return strings.TrimSpace(string(data))
}

const sampleQi = `Name            : foo
Version         : 1.2.3-1
Description     : a sample package with a
                   wrapped description line
Architecture    : x86_64
Provides        : None
Depends On      : bar  baz>=2.0
Conflicts With  : qux
Install Reason  : Explicitly installed
`

func TestParseBlock_Query(t *testing.T) {
	blocks := splitBlocks(sampleQi)
	if len(blocks) != 1 {
		t.Fatalf("splitBlocks got %d blocks, want 1", len(blocks))
	}
	pkg := parseBlock(blocks[0])
	if pkg.Name != "foo" || pkg.Version != "1.2.3-1" {
		t.Fatalf("pkg = %+v", pkg)
	}
	if pkg.Provides != nil {
		t.Errorf("Provides = %v, want nil for 'None'", pkg.Provides)
	}
	if len(pkg.Depends) != 2 || pkg.Depends[0].Name != "bar" || pkg.Depends[1].Name != "baz" || pkg.Depends[1].Op != pkgmodel.OpGE {
		t.Fatalf("Depends = %+v", pkg.Depends)
	}
	if len(pkg.Conflicts) != 1 || pkg.Conflicts[0].Name != "qux" {
		t.Fatalf("Conflicts = %+v", pkg.Conflicts)
	}
	if pkg.Reason != pkgmodel.ReasonExplicit {
		t.Errorf("Reason = %v, want ReasonExplicit", pkg.Reason)
	}
}

func TestParseBlocks_Multiple(t *testing.T) {
	doc := sampleQi + "\n" + strings.Replace(sampleQi, "foo", "other", -1)
	pkgs := parseBlocks(doc)
	if len(pkgs) != 2 {
		t.Fatalf("got %d packages, want 2", len(pkgs))
	}
	if pkgs[0].Name != "foo" || pkgs[1].Name != "other" {
		t.Fatalf("names = %q, %q", pkgs[0].Name, pkgs[1].Name)
	}
}

func TestClient_Query_NotFound(t *testing.T) {
	dir := t.TempDir()
	bin := stubPacman(t, dir, "", 1)
	c := &Client{Bin: bin}
	_, ok, err := c.Query(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a not-found package")
	}
}

func TestClient_Upgrade_ArgvShape(t *testing.T) {
	dir := t.TempDir()
	bin := stubPacman(t, dir, "", 0)
	c := &Client{Bin: bin, GlobalFlags: []string{"--noconfig"}}
	if err := c.Upgrade(context.Background(), []string{"/tmp/a.pkg.tar.zst", "/tmp/b.pkg.tar.zst"}); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	argv := readArgv(t, dir)
	want := "--noconfig -U --noconfirm -- /tmp/a.pkg.tar.zst /tmp/b.pkg.tar.zst"
	if argv != want {
		t.Fatalf("argv = %q, want %q", argv, want)
	}
}

func TestClient_Upgrade_NoopOnEmpty(t *testing.T) {
	dir := t.TempDir()
	bin := stubPacman(t, dir, "", 0)
	c := &Client{Bin: bin}
	if err := c.Upgrade(context.Background(), nil); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "argv.txt")); !os.IsNotExist(err) {
		t.Fatal("expected no invocation for an empty path list")
	}
}

func TestClient_SetInstallReason_Argv(t *testing.T) {
	dir := t.TempDir()
	bin := stubPacman(t, dir, "", 0)
	c := &Client{Bin: bin}

	if err := c.SetInstallReason(context.Background(), "foo", pkgmodel.ReasonDependency); err != nil {
		t.Fatalf("SetInstallReason: %v", err)
	}
	if got := readArgv(t, dir); got != "-D --asdeps -- foo" {
		t.Fatalf("argv = %q", got)
	}

	if err := c.SetInstallReason(context.Background(), "foo", pkgmodel.ReasonExplicit); err != nil {
		t.Fatalf("SetInstallReason: %v", err)
	}
	if got := readArgv(t, dir); got != "-D --asexplicit -- foo" {
		t.Fatalf("argv = %q", got)
	}
}

const sampleQu = `foo 1.0-1 -> 1.1-1
bar 2.0-1 -> 2.0-2
`

func TestClient_SyncUpgrades(t *testing.T) {
	dir := t.TempDir()
	bin := stubPacman(t, dir, sampleQu, 0)
	c := &Client{Bin: bin}
	got, err := c.SyncUpgrades(context.Background())
	if err != nil {
		t.Fatalf("SyncUpgrades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Name != "foo" || got[0].OldVersion != "1.0-1" || got[0].NewVersion != "1.1-1" {
		t.Fatalf("got[0] = %+v", got[0])
	}
}

func TestClient_SyncUpgrades_NothingToDo(t *testing.T) {
	dir := t.TempDir()
	bin := stubPacman(t, dir, "", 1)
	c := &Client{Bin: bin}
	got, err := c.SyncUpgrades(context.Background())
	if err != nil {
		t.Fatalf("SyncUpgrades: %v", err)
	}
	if got != nil {
		t.Fatalf("got = %v, want nil", got)
	}
}

// Package spm drives the system package manager (spec.md §6, "SPM
// (pacman-compatible)"): `<op-flag> [global flags] -- [targets]`, parsing
// the `-Qi`/`-Si`/`-Qu` "Key : Value" block output back into pkgmodel
// records, and issuing the write-path operations (`-U`, `-D`) the install
// pipeline needs to flush its queue. It owns only the narrow argv/stdout
// contract; the only exit codes it tells apart are zero, one (pacman's
// "target not found" / "nothing to do") and any other nonzero code.
package spm

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// Client invokes the system package manager.
type Client struct {
	// Bin is the pacman-compatible binary. Defaults to "pacman" when empty.
	Bin string
	// GlobalFlags pass through from the operator ahead of any op-specific
	// flags, per spec.md §6.
	GlobalFlags []string
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "pacman"
	}
	return c.Bin
}

// errNotFound marks a run() failure as pacman's exit-1 "target not found"
// / "nothing to do" convention, distinct from a genuine failure.
var errNotFound = fmt.Errorf("target not found")

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	full := append(append([]string{}, c.GlobalFlags...), args...)
	cmd := exec.CommandContext(ctx, c.bin(), full...)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		if ee, ok := err.(*exec.ExitError); ok {
			if ee.ExitCode() == 1 {
				return "", errNotFound
			}
			return "", fmt.Errorf("%w: %s %v: %s", pkgmodel.ErrInstall, c.bin(), args, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("%w: %s %v: %v", pkgmodel.ErrInstall, c.bin(), args, err)
	}
	return string(out), nil
}

// Query looks up name in the local (installed) database via `-Qi`. ok is
// false without error when name is not installed.
func (c *Client) Query(ctx context.Context, name string) (pkg pkgmodel.SPMPackage, ok bool, err error) {
	out, err := c.run(ctx, "-Qi", "--", name)
	if err != nil {
		if isNotFound(err) {
			return pkgmodel.SPMPackage{}, false, nil
		}
		return pkgmodel.SPMPackage{}, false, err
	}
	blocks := splitBlocks(out)
	if len(blocks) == 0 {
		return pkgmodel.SPMPackage{}, false, nil
	}
	return parseBlock(blocks[0]), true, nil
}

// QueryAll lists every installed package via `-Qi` with no targets.
func (c *Client) QueryAll(ctx context.Context) ([]pkgmodel.SPMPackage, error) {
	out, err := c.run(ctx, "-Qi")
	if err != nil {
		return nil, err
	}
	return parseBlocks(out), nil
}

// SyncInfo looks up name in the sync (repo) databases via `-Si`. ok is
// false without error when name is not found in any configured repo.
func (c *Client) SyncInfo(ctx context.Context, name string) (pkg pkgmodel.SPMPackage, ok bool, err error) {
	out, err := c.run(ctx, "-Si", "--", name)
	if err != nil {
		if isNotFound(err) {
			return pkgmodel.SPMPackage{}, false, nil
		}
		return pkgmodel.SPMPackage{}, false, err
	}
	blocks := splitBlocks(out)
	if len(blocks) == 0 {
		return pkgmodel.SPMPackage{}, false, nil
	}
	return parseBlock(blocks[0]), true, nil
}

// SyncUpgrades reports every installed package with a newer sync-db
// candidate, via `-Qu`, for the upgrade engine's SPM-candidate list
// (spec.md §4.5). Exit code 1 (pacman's "nothing to do" signal for -Qu)
// is reported as zero upgrades, not an error, whatever was printed.
func (c *Client) SyncUpgrades(ctx context.Context) ([]pkgmodel.UpgradeCandidate, error) {
	out, err := c.run(ctx, "-Qu")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var candidates []pkgmodel.UpgradeCandidate
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// "name oldver -> newver [flags]"
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[2] != "->" {
			continue
		}
		candidates = append(candidates, pkgmodel.UpgradeCandidate{
			Name:       fields[0],
			OldVersion: fields[1],
			NewVersion: fields[3],
		})
	}
	return candidates, nil
}

// Install resolves and installs names directly from the sync databases via
// `-S --noconfirm`, for targets the resolver already found satisfiable
// without a source build (spec.md §4.1 Install actions).
func (c *Client) Install(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	args := append([]string{"-S", "--noconfirm", "--"}, names...)
	_, err := c.run(ctx, args...)
	return err
}

// Upgrade flushes paths (built or fetched package archives) through `-U`,
// injecting --noconfirm (spec.md §6 "injected when the pipeline has
// handled confirmations").
func (c *Client) Upgrade(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"-U", "--noconfirm", "--"}, paths...)
	_, err := c.run(ctx, args...)
	return err
}

// Sync refreshes the sync databases via `-Sy`, for internal/localbinrepo's
// post-publish refresh (spec.md §4.4).
func (c *Client) Sync(ctx context.Context) error {
	_, err := c.run(ctx, "-Sy")
	return err
}

// SetInstallReason flips name's install reason via `-D --asdeps` or
// `-D --asexplicit`.
func (c *Client) SetInstallReason(ctx context.Context, name string, reason pkgmodel.InstallReason) error {
	flag := "--asexplicit"
	if reason == pkgmodel.ReasonDependency {
		flag = "--asdeps"
	}
	_, err := c.run(ctx, "-D", flag, "--", name)
	return err
}

// Remove uninstalls names via `-R --noconfirm`, for the install
// pipeline's post-batch removal of transient make-only dependencies
// (spec.md §4.2 "Cleanup").
func (c *Client) Remove(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	args := append([]string{"-R", "--noconfirm", "--"}, names...)
	_, err := c.run(ctx, args...)
	return err
}

// isNotFound reports whether err reflects pacman's "target not found" /
// "nothing to do" nonzero-exit convention rather than a genuine failure.
func isNotFound(err error) bool {
	return err == errNotFound
}

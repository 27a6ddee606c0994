// Package builddriver wraps the makepkg-compatible build driver
// (spec.md §6, §4.2 "DepsChecked → Built"): source verification, pkgver
// refresh, the actual build, and the two introspection invocations
// (`--packagelist`, `--printsrcinfo`) the pipeline needs to map a base's
// build output back onto named artifacts.
package builddriver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// Client drives the build tool in host mode, within a recipe directory.
// internal/sandboxdriver reuses BuildFlags/VerifySourceFlags to run the
// same driver inside an isolated root instead.
type Client struct {
	// Bin defaults to "makepkg".
	Bin string
	// PKGDest is exported as the PKGDEST environment variable, directing
	// built artifacts to a staging directory (spec.md §6).
	PKGDest string
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "makepkg"
	}
	return c.Bin
}

// VerifySource runs `--verifysource -Af` in dir: fetch and verify sources
// without building.
func (c *Client) VerifySource(ctx context.Context, dir string) error {
	if err := c.run(ctx, dir, "--verifysource", "-Af"); err != nil {
		return fmt.Errorf("%w: verify sources in %s: %v", pkgmodel.ErrBuild, dir, err)
	}
	return nil
}

// RefreshVersion runs `-ofA [-C]` in dir: refresh a dynamic pkgver without
// building. cleanBuild adds `-C` to clean the build directory first.
func (c *Client) RefreshVersion(ctx context.Context, dir string, cleanBuild bool) error {
	args := []string{"-ofA"}
	if cleanBuild {
		args = append(args, "-C")
	}
	if err := c.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("%w: refresh pkgver in %s: %v", pkgmodel.ErrBuild, dir, err)
	}
	return nil
}

// Build runs `-feA --noconfirm --noprepare --holdver` in dir: the actual
// build, with the pkgver frozen at whatever RefreshVersion last settled.
func (c *Client) Build(ctx context.Context, dir string) error {
	if err := c.run(ctx, dir, "-feA", "--noconfirm", "--noprepare", "--holdver"); err != nil {
		return fmt.Errorf("%w: build %s: %v", pkgmodel.ErrBuild, dir, err)
	}
	return nil
}

// PackageList runs `--packagelist` in dir and returns the artifact paths
// the build would (or did) produce, one per line.
func (c *Client) PackageList(ctx context.Context, dir string) ([]string, error) {
	out, err := c.output(ctx, dir, "--packagelist")
	if err != nil {
		return nil, fmt.Errorf("%w: package list for %s: %v", pkgmodel.ErrBuild, dir, err)
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// PrintSrcinfo runs `--printsrcinfo` in dir and returns the structured
// recipe document for internal/localrecipe.Parse.
func (c *Client) PrintSrcinfo(ctx context.Context, dir string) ([]byte, error) {
	out, err := c.output(ctx, dir, "--printsrcinfo")
	if err != nil {
		return nil, fmt.Errorf("%w: printsrcinfo for %s: %v", pkgmodel.ErrBuild, dir, err)
	}
	return []byte(out), nil
}

func (c *Client) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, c.bin(), args...)
	cmd.Dir = dir
	cmd.Env = c.env(cmd)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *Client) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin(), args...)
	cmd.Dir = dir
	cmd.Env = c.env(cmd)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return "", err
	}
	return string(out), nil
}

func (c *Client) env(cmd *exec.Cmd) []string {
	if c.PKGDest == "" {
		return nil
	}
	return append(cmd.Environ(), "PKGDEST="+c.PKGDest)
}

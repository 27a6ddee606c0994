// Package sandboxdriver wraps the makechrootpkg-compatible isolated-root
// build driver (spec.md §6, §4.2 "isolated-root mode prepares/updates the
// root, then runs the driver within it"): `-r <root> [-I <pkg-path>…]
// [-D <ro-bind>…] [-d <rw-bind>…] -- [build-flags]`, where build-flags
// are the same host-mode makepkg flags internal/builddriver issues
// directly.
package sandboxdriver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// Client drives the isolated-root build tool.
type Client struct {
	// Bin defaults to "makechrootpkg".
	Bin string
	// Root is the chroot's base directory (`-r`).
	Root string
	// ROBinds are additional read-only bind mounts (`-D`), e.g. local
	// binary repo directories (internal/localbinrepo.AllFiles).
	ROBinds []string
	// RWBinds are additional read-write bind mounts (`-d`).
	RWBinds []string
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "makechrootpkg"
	}
	return c.Bin
}

// Build runs the isolated-root driver in dir, passing intraBatchArtifacts
// (previously-built artifact paths from the same batch, one `-I` per
// path, so intra-batch dependencies resolve without a live local repo)
// and buildFlags as the build-flags forwarded after `--`.
func (c *Client) Build(ctx context.Context, dir string, intraBatchArtifacts []string, buildFlags []string) error {
	args := []string{"-r", c.Root}
	for _, p := range intraBatchArtifacts {
		args = append(args, "-I", p)
	}
	for _, p := range c.ROBinds {
		args = append(args, "-D", p)
	}
	for _, p := range c.RWBinds {
		args = append(args, "-d", p)
	}
	args = append(args, "--")
	args = append(args, buildFlags...)

	cmd := exec.CommandContext(ctx, c.bin(), args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: isolated-root build in %s: %s: %s", pkgmodel.ErrBuild, dir, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// BuildFlags returns the build-driver flags the pipeline's host-mode
// build uses, for reuse as the isolated-root driver's post-`--` argv
// (spec.md §4.2: isolated-root mode runs "the driver within it" with
// "additional previously-built artifact paths", i.e. the same build
// invocation as host mode, just relocated).
func BuildFlags() []string {
	return []string{"-feA", "--noconfirm", "--noprepare", "--holdver"}
}

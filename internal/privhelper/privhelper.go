// Package privhelper wraps the sudo-compatible privileged-escalation
// binary (spec.md §6 "Privileged helper"): any elevated invocation goes
// through Run, and an optional background Keepalive loop re-asserts
// elevation on a fixed interval (spec.md §5, default 250 s) so a long
// batch doesn't stall on a second password prompt mid-build.
package privhelper

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/cairn-pm/cairn/internal/log"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// candidates is the auto-detect order when no helper binary is
// configured: sudo first, then doas.
var candidates = []string{"sudo", "doas"}

// Detect returns the first of the candidate binaries found on PATH.
func Detect() (string, error) {
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no privileged-escalation binary found (checked %v)", pkgmodel.ErrPermission, candidates)
}

// Runner invokes a privileged-escalation binary with a fixed set of
// configured flags ahead of each call's own arguments.
type Runner struct {
	// Bin is the escalation binary's path. Use Detect or New to resolve it.
	Bin string
	// Flags are forwarded ahead of every invocation's arguments (spec.md
	// §6: "configured flags forwarded").
	Flags []string

	// Stdin/Stdout/Stderr default to the process's own when nil, since the
	// escalation binary may need to prompt for a password interactively.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Runner for bin with the given pass-through flags.
func New(bin string, flags []string) *Runner {
	return &Runner{Bin: bin, Flags: flags}
}

// Run invokes the escalation binary with Flags followed by args.
func (r *Runner) Run(ctx context.Context, args ...string) error {
	full := make([]string, 0, len(r.Flags)+len(args))
	full = append(full, r.Flags...)
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, r.Bin, full...)
	cmd.Stdin = r.stdin()
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stderr()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", pkgmodel.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: %s %v: %v", pkgmodel.ErrPermission, r.Bin, args, err)
	}
	return nil
}

func (r *Runner) stdin() io.Reader {
	if r.Stdin != nil {
		return r.Stdin
	}
	return os.Stdin
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

// Keepalive re-runs the escalation binary with no arguments every
// interval until ctx is cancelled, re-asserting elevation so a long batch
// doesn't prompt for a password a second time mid-build (spec.md §5). It
// blocks; callers run it as a detached goroutine.
func (r *Runner) Keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Run(ctx); err != nil && ctx.Err() == nil {
				log.Default().Warn("privileged-helper keepalive failed", "error", err)
			}
		}
	}
}

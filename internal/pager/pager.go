// Package pager displays a recipe diff to the operator during the
// install pipeline's review gate (spec.md §4.2 "diff unseen paths
// through a pager and confirm"). TTY detection follows
// internal/progress's convention of wrapping golang.org/x/term directly
// behind an overridable function variable.
package pager

import (
	"bytes"
	"io"
	"os"
	"os/exec"

	"golang.org/x/term"
)

// IsTerminalFunc reports whether fd is a terminal. Overridable for tests,
// matching internal/progress.IsTerminalFunc.
var IsTerminalFunc = term.IsTerminal

// Command resolves the pager binary to invoke: $PAGER if set, else "less".
func Command() string {
	if p := os.Getenv("PAGER"); p != "" {
		return p
	}
	return "less"
}

// Show writes diff through the resolved pager when stdout is a terminal;
// otherwise it writes diff directly, since piping to a non-interactive
// consumer makes an interactive pager pointless (and `less` would block
// waiting on a tty that isn't there).
func Show(diff []byte) error {
	if !IsTerminalFunc(int(os.Stdout.Fd())) {
		_, err := os.Stdout.Write(diff)
		return err
	}

	cmd := exec.Command(Command())
	cmd.Stdin = bytes.NewReader(diff)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ShowTo writes diff through the resolved pager into out/errOut instead of
// the process's own stdout/stderr, for tests and for any caller that
// redirects output.
func ShowTo(diff []byte, isTerminal bool, out, errOut io.Writer) error {
	if !isTerminal {
		_, err := out.Write(diff)
		return err
	}

	cmd := exec.Command(Command())
	cmd.Stdin = bytes.NewReader(diff)
	cmd.Stdout = out
	cmd.Stderr = errOut
	return cmd.Run()
}

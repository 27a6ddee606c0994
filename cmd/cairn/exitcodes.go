package main

import "os"

// Exit codes, so scripts can distinguish failure modes without scraping
// stderr.
const (
	ExitSuccess = 0
	ExitGeneral = 1
	ExitUsage   = 2

	// ExitDependencyFailed indicates the resolver couldn't satisfy every
	// target's dependency graph.
	ExitDependencyFailed = 3

	// ExitConflict indicates the resolver found packages that conflict and
	// require explicit operator resolution.
	ExitConflict = 4

	// ExitNetwork indicates a recipe-index or VCS network failure.
	ExitNetwork = 5

	// ExitBuildFailed indicates at least one base failed somewhere in the
	// fetch/review/build/sign/publish/install pipeline.
	ExitBuildFailed = 6

	// ExitPermission indicates a privileged operation couldn't elevate.
	ExitPermission = 7

	// ExitCancelled indicates the operator interrupted the run.
	ExitCancelled = 8
)

func exitWithCode(code int) {
	os.Exit(code)
}

// silentExit carries an exit code for a command that already printed its
// own diagnostics via printError, so main doesn't print the error a second
// time in its generic, un-suggested form.
type silentExit struct{ code int }

func (e *silentExit) Error() string { return "" }

func errSilent(code int) error { return &silentExit{code: code} }

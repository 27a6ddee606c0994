package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cairn-pm/cairn/internal/errmsg"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// printInfo prints an informational message unless quiet mode is enabled.
func printInfo(a ...interface{}) {
	if !quietFlag {
		fmt.Println(a...)
	}
}

// printInfof prints a formatted informational message unless quiet mode is
// enabled.
func printInfof(format string, a ...interface{}) {
	if !quietFlag {
		fmt.Printf(format, a...)
	}
}

// printJSON marshals v to indented JSON on stdout.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		exitWithCode(ExitGeneral)
	}
}

// printError formats err with internal/errmsg's suggestions and writes it
// to stderr. ctx may be nil for generic formatting.
func printError(err error, ctx *errmsg.ErrorContext) {
	fmt.Fprintln(os.Stderr, errmsg.Format(err, ctx))
}

// exitCodeFor maps an error from the resolver or pipeline to the most
// specific exit code that applies, falling back to ExitGeneral.
func exitCodeFor(err error) int {
	switch {
	case isUnresolvable(err):
		return ExitDependencyFailed
	case isConflict(err):
		return ExitConflict
	default:
		return ExitGeneral
	}
}

func isUnresolvable(err error) bool {
	var target *pkgmodel.UnresolvableError
	return errors.As(err, &target)
}

func isConflict(err error) bool {
	var target *pkgmodel.ConflictError
	return errors.As(err, &target)
}

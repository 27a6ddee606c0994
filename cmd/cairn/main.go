package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cairn-pm/cairn/internal/buildinfo"
	"github.com/cairn-pm/cairn/internal/log"
	"github.com/cairn-pm/cairn/internal/spm"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
)

// globalCtx is canceled on SIGINT/SIGTERM; commands use it for every
// cancellable operation.
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "cairn",
	Short: "An AUR-style helper for a pacman-compatible system package manager",
	Long: `cairn resolves targets against the system package manager's sync
databases, a recipe index, and local recipe repositories, then drives
any that need a source build through fetch, review, dependency check,
build, sign, publish, and install.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "show debug output (includes timestamps and source locations)")

	rootCmd.PersistentPreRun = initLogger
	rootCmd.Version = buildinfo.Version()
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	// internal/localbinrepo.Client.Refresh respawns itself through the
	// privileged helper as "<argv0> --sync-db-only <repo>...": handle that
	// before cobra ever sees it, since it isn't a user-facing subcommand.
	if len(os.Args) > 1 && os.Args[1] == "--sync-db-only" {
		runSyncDBOnly()
		return
	}

	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived %s, canceling operation...\n", sig)
		globalCancel()

		<-sigChan
		fmt.Fprintln(os.Stderr, "Forced exit")
		exitWithCode(ExitCancelled)
	}()

	rootCmd.SetContext(globalCtx)
	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitCancelled)
		}
		var silent *silentExit
		if errors.As(err, &silent) {
			exitWithCode(silent.code)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
}

func runSyncDBOnly() {
	client := &spm.Client{}
	if err := client.Sync(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
}

// initLogger builds the global logger from the verbosity flags before any
// command runs.
func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug})
	log.SetDefault(log.New(handler))

	if level == slog.LevelDebug {
		fmt.Fprintln(os.Stderr, "[DEBUG MODE] Output may contain file paths, URLs, and recipe contents. Do not share publicly.")
	}
}

// determineLogLevel: flags take precedence over environment variables,
// which take precedence over the WARN default.
func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}

	if isTruthy(os.Getenv("CAIRN_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("CAIRN_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("CAIRN_QUIET")) {
		return slog.LevelError
	}

	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

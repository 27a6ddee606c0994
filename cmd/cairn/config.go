package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cairn-pm/cairn/internal/userconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or manage cairn configuration",
	Long: `Display or manage cairn's operator configuration.

Invoked without a subcommand, prints the current values.

Configuration is stored in $CAIRN_HOME/config.toml.

Available settings:
  batch_install   Build every resolved base before installing any (true/false)
  clean_after     Reset recipe checkouts to HEAD once the batch finishes (true/false)
  helper          Privileged-escalation binary (empty: auto-detect sudo, then doas)
  ignore_pkg      Package names the upgrade engine always skips (comma-separated)
  ignore_group    SPM package groups; stored only, no command filters by group (comma-separated)
  bottom_up       List search results with the most popular last (true/false)
  skip_review     Skip the interactive recipe diff review step (true/false)
  secrets.*       Tokens such as github_token (read from stdin, never shown)

Examples:
  cairn config
  cairn config --json
  cairn config get skip_review
  cairn config set skip_review true
  echo "ghp_..." | cairn config set secrets.github_token`,
	Run: runConfig,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]

		cfg, err := userconfig.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			exitWithCode(ExitGeneral)
		}

		if secretName, ok := strings.CutPrefix(strings.ToLower(key), "secrets."); ok {
			if _, found := cfg.Secrets[secretName]; found {
				fmt.Println("(set)")
			} else {
				fmt.Println("(not set)")
			}
			return
		}

		value, ok := cfg.Get(key)
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
			fmt.Fprintln(os.Stderr, "\nAvailable keys:")
			printAvailableKeys()
			exitWithCode(ExitUsage)
		}

		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Secret keys (prefixed "secrets.") read their value from stdin, never from
the command line, so the value never lands in shell history.`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runConfigSet,
}

// stdinReader is the reader used for stdin. Replaceable for testing.
var stdinReader io.Reader = os.Stdin

// stdinIsTerminal reports whether stdin is a terminal. Replaceable for testing.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func runConfigSet(cmd *cobra.Command, args []string) {
	key := args[0]
	isSecret := strings.HasPrefix(strings.ToLower(key), "secrets.")

	var value string
	if isSecret {
		secretName, _ := strings.CutPrefix(strings.ToLower(key), "secrets.")
		if len(args) > 1 {
			fmt.Fprintln(os.Stderr, "Error: secret values must be provided via stdin, not as arguments")
			fmt.Fprintf(os.Stderr, "Usage: echo \"value\" | cairn config set %s\n", key)
			exitWithCode(ExitUsage)
		}

		var err error
		value, err = readSecretFromStdin(secretName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading secret: %v\n", err)
			exitWithCode(ExitGeneral)
		}
	} else {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Error: value required for non-secret key %q\n", key)
			fmt.Fprintf(os.Stderr, "Usage: cairn config set %s <value>\n", key)
			exitWithCode(ExitUsage)
		}
		value = args[1]
	}

	cfg, err := userconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	if err := cfg.Set(key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "\nAvailable keys:")
		printAvailableKeys()
		exitWithCode(ExitUsage)
	}

	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	if isSecret {
		fmt.Printf("%s = (set)\n", key)
	} else {
		fmt.Printf("%s = %s\n", key, value)
	}
}

func readSecretFromStdin(secretName string) (string, error) {
	if stdinIsTerminal() {
		fmt.Fprintf(os.Stderr, "Enter value for %s: ", secretName)
	}

	reader := bufio.NewReader(stdinReader)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}

	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", fmt.Errorf("empty value provided")
	}
	return value, nil
}

func printAvailableKeys() {
	keys := userconfig.AvailableKeys()
	sortedKeys := make([]string, 0, len(keys))
	for k := range keys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	for _, k := range sortedKeys {
		fmt.Fprintf(os.Stderr, "  %s - %s\n", k, keys[k])
	}
}

func init() {
	configCmd.Flags().Bool("json", false, "output in JSON format")
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfig(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := userconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		exitWithCode(ExitGeneral)
	}

	secretNames := make([]string, 0, len(cfg.Secrets))
	for name := range cfg.Secrets {
		secretNames = append(secretNames, name)
	}
	sort.Strings(secretNames)

	if jsonOutput {
		type configOutput struct {
			BatchInstall bool     `json:"batch_install"`
			CleanAfter   bool     `json:"clean_after"`
			Helper       string   `json:"helper"`
			IgnorePkg    []string `json:"ignore_pkg"`
			IgnoreGroup  []string `json:"ignore_group"`
			BottomUp     bool     `json:"bottom_up"`
			SkipReview   bool     `json:"skip_review"`
			Secrets      []string `json:"secrets_set"`
		}
		printJSON(configOutput{
			BatchInstall: cfg.BatchInstall,
			CleanAfter:   cfg.CleanAfter,
			Helper:       cfg.Helper,
			IgnorePkg:    cfg.IgnorePkg,
			IgnoreGroup:  cfg.IgnoreGroup,
			BottomUp:     cfg.BottomUp,
			SkipReview:   cfg.SkipReview,
			Secrets:      secretNames,
		})
		return
	}

	fmt.Printf("batch_install: %t\n", cfg.BatchInstall)
	fmt.Printf("clean_after: %t\n", cfg.CleanAfter)
	fmt.Printf("helper: %s\n", cfg.Helper)
	fmt.Printf("ignore_pkg: %s\n", strings.Join(cfg.IgnorePkg, ","))
	fmt.Printf("ignore_group: %s\n", strings.Join(cfg.IgnoreGroup, ","))
	fmt.Printf("bottom_up: %t\n", cfg.BottomUp)
	fmt.Printf("skip_review: %t\n", cfg.SkipReview)
	fmt.Println("\nSecrets set:")
	if len(secretNames) == 0 {
		fmt.Println("  (none)")
	}
	for _, name := range secretNames {
		fmt.Printf("  %s\n", name)
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

var removeFlags struct {
	recursive bool
}

var removeCmd = &cobra.Command{
	Use:   "remove <targets...>",
	Short: "Remove installed packages",
	Long: `Remove one or more installed packages via the system package manager.

With --recursive, also remove any dependency that's left with nothing
else depending on it and wasn't explicitly installed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeFlags.recursive, "recursive", "s", false, "also remove now-unneeded dependencies")
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.spm.Remove(ctx, args); err != nil {
		printError(err, nil)
		return errSilent(exitCodeFor(err))
	}
	fmt.Printf("Removed: %s\n", joinNames(args))

	if removeFlags.recursive {
		removeOrphans(ctx, a)
	}
	return nil
}

// removeOrphans repeatedly removes installed packages that are no one's
// explicit target and that nothing remaining depends on, until a pass
// finds none. Real SPM implementations expose this natively as `-Qdt`;
// ours doesn't, so it's reconstructed from the full installed listing.
func removeOrphans(ctx context.Context, a *app) {
	for {
		installed, err := a.spm.QueryAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to scan for orphans: %v\n", err)
			return
		}

		required := make(map[string]bool)
		for _, pkg := range installed {
			for _, dep := range pkg.Depends {
				required[dep.Name] = true
			}
		}

		var orphans []string
		for _, pkg := range installed {
			if pkg.Reason == pkgmodel.ReasonDependency && !required[pkg.Name] {
				orphans = append(orphans, pkg.Name)
			}
		}

		if len(orphans) == 0 {
			return
		}

		if err := a.spm.Remove(ctx, orphans); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to remove orphans: %v\n", err)
			return
		}
		fmt.Printf("Removed unneeded dependencies: %s\n", joinNames(orphans))
	}
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

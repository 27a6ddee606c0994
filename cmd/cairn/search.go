package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

var searchFlags struct {
	by string
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the recipe index",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchFlags.by, "by", "", `search field: "name-desc" or "maintainer" (default: index default)`)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	term := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}

	results, err := a.index.Search(ctx, term, searchFlags.by)
	if err != nil {
		printError(err, nil)
		return errSilent(exitCodeFor(err))
	}

	if len(results) == 0 {
		fmt.Printf("No recipes found for '%s'.\n", term)
		return nil
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Popularity != results[j].Popularity {
			return results[i].Popularity > results[j].Popularity
		}
		return results[i].Name < results[j].Name
	})
	if a.user.BottomUp {
		for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
			results[i], results[j] = results[j], results[i]
		}
	}

	for _, pkg := range results {
		installedTag := ""
		if installed, ok, err := a.spm.Query(ctx, pkg.Name); err == nil && ok {
			installedTag = fmt.Sprintf(" [installed: %s]", installed.Version)
		}
		fmt.Printf("%s %s%s\n", pkg.Name, pkg.Version, installedTag)
		fmt.Printf("    votes: %d, popularity: %.2f%s\n", pkg.Votes, pkg.Popularity, outOfDateTag(pkg))
	}

	return nil
}

func outOfDateTag(pkg pkgmodel.IndexPackage) string {
	if pkg.OutOfDate == nil {
		return ""
	}
	return fmt.Sprintf(", flagged out of date %s", pkg.OutOfDate.Format("2006-01-02"))
}

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show recipe index details for a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}

	recs, err := a.index.Info(ctx, []string{name})
	if err != nil {
		printError(err, nil)
		return errSilent(exitCodeFor(err))
	}
	if len(recs) == 0 {
		fmt.Fprintf(os.Stderr, "%s not found in the recipe index\n", name)
		return errSilent(ExitGeneral)
	}

	pkg := recs[0]
	fmt.Printf("Name           : %s\n", pkg.Name)
	fmt.Printf("Base           : %s\n", pkg.Base)
	fmt.Printf("Version        : %s\n", pkg.Version)
	fmt.Printf("Maintainer     : %s\n", pkg.Maintainer)
	fmt.Printf("Votes          : %d\n", pkg.Votes)
	fmt.Printf("Popularity     : %.2f\n", pkg.Popularity)
	fmt.Printf("Out of date    : %s\n", formatOutOfDate(pkg))
	fmt.Printf("Depends on     : %s\n", depNames(pkg.Depends))
	fmt.Printf("Make deps      : %s\n", depNames(pkg.MakeDepends))
	fmt.Printf("Check deps     : %s\n", depNames(pkg.CheckDepends))
	fmt.Printf("Optional deps  : %s\n", depNames(pkg.OptDepends))
	fmt.Printf("Provides       : %s\n", depNames(pkg.Provides))
	fmt.Printf("Conflicts with : %s\n", depNames(pkg.Conflicts))
	return nil
}

func formatOutOfDate(pkg pkgmodel.IndexPackage) string {
	if pkg.OutOfDate == nil {
		return "No"
	}
	return pkg.OutOfDate.Format("2006-01-02")
}

func depNames(deps []pkgmodel.DepSpec) string {
	if len(deps) == 0 {
		return "None"
	}
	out := ""
	for i, d := range deps {
		if i > 0 {
			out += "  "
		}
		out += d.String()
	}
	return out
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cairn-pm/cairn/internal/devel"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/selector"
	"github.com/cairn-pm/cairn/internal/upgrade"
)

var syncFlags struct {
	noConfirm bool
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Check for and install upgrades",
	Long: `Refresh the SPM's sync databases, then list upgrade candidates from
three sources: the sync databases, the recipe index, and any devel
package whose upstream tip has moved since it was last probed.

The listed candidates are numbered; answer with a selector expression
(e.g. "1 2 4-6", "^3", or blank for all) to choose which to install.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFlags.noConfirm, "noconfirm", false, "install every candidate without prompting")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.spm.Sync(ctx); err != nil {
		printError(err, nil)
		return errSilent(exitCodeFor(err))
	}

	installed, err := a.spm.QueryAll(ctx)
	if err != nil {
		return err
	}

	// A package absent from every sync database is foreign to the SPM:
	// it was installed from the recipe index (or built locally), so it's
	// eligible for an index-diff upgrade check.
	var foreignIndex []upgrade.InstalledIndexPackage
	for _, pkg := range installed {
		if _, ok, err := a.spm.SyncInfo(ctx, pkg.Name); err == nil && !ok {
			foreignIndex = append(foreignIndex, upgrade.InstalledIndexPackage{Name: pkg.Name, Version: pkg.Version})
		}
	}

	trackerPath := a.cfg.TrackerFile()
	tracker, err := devel.Load(trackerPath)
	if err != nil {
		return err
	}

	knownBases := make(map[string]bool, len(tracker.Bases))
	for base := range tracker.Bases {
		knownBases[base] = true
	}

	opts := devel.ProbeOptions{Concurrency: int64(a.cfg.ProbeConcurrency), PerProbeTimeout: a.cfg.ProbeTimeout}
	movedBases, newCommits, err := devel.Probe(ctx, tracker, a.vcs, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: devel probe failed: %v\n", err)
	}

	// Advance each remote's tracked commit to what was just observed, so a
	// base reported as moved this run isn't reported again next time.
	for name, endpoints := range tracker.Bases {
		live, ok := newCommits[name]
		if !ok {
			continue
		}
		for i, ep := range endpoints {
			if tip, ok := live[ep.Key()]; ok {
				endpoints[i].Commit = tip
			}
		}
	}

	if err := devel.Save(trackerPath, tracker, knownBases); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save devel tracker: %v\n", err)
	}

	engine := &upgrade.Engine{SPM: a.spm, Registry: a.index}
	candidates, err := engine.Candidates(ctx, foreignIndex, movedBases)
	if err != nil {
		printError(err, nil)
		return errSilent(exitCodeFor(err))
	}

	var filtered []pkgmodel.UpgradeCandidate
	for _, c := range candidates {
		if !a.user.IsIgnored(c.Name) {
			filtered = append(filtered, c)
		}
	}

	if len(filtered) == 0 {
		fmt.Println(" -- there is nothing to do")
		return nil
	}

	printCandidates(filtered)

	sel := selector.Selection{}
	if !syncFlags.noConfirm {
		fmt.Print("Upgrade these packages? [Y/n/...] ")
		var line string
		fmt.Scanln(&line)
		if strings.TrimSpace(line) != "" {
			sel = selector.Parse(line)
		}
	}

	kept, skipped := upgrade.Apply(filtered, sel)
	if len(skipped) > 0 {
		names := make([]string, 0, len(skipped))
		for _, c := range skipped {
			names = append(names, c.Name)
		}
		fmt.Printf("Skipping: %s\n", strings.Join(names, ", "))
	}
	if len(kept) == 0 {
		return nil
	}

	return installUpgradeCandidates(ctx, cmd, kept)
}

func printCandidates(candidates []pkgmodel.UpgradeCandidate) {
	for i, c := range candidates {
		fmt.Printf("%3d  %-30s %s -> %s  [%s]\n", i+1, c.Name, c.OldVersion, c.NewVersion, sourceLabel(c.Source))
	}
}

func sourceLabel(s pkgmodel.UpgradeSource) string {
	switch s {
	case pkgmodel.UpgradeFromSPM:
		return "sync"
	case pkgmodel.UpgradeFromIndex:
		return "index"
	case pkgmodel.UpgradeFromDevel:
		return "devel"
	default:
		return "?"
	}
}

// installUpgradeCandidates routes sync-db upgrades straight through the
// SPM and index/devel upgrades through the full install pipeline, by
// delegating to the same resolve-and-build path "cairn install" uses.
func installUpgradeCandidates(ctx context.Context, cmd *cobra.Command, candidates []pkgmodel.UpgradeCandidate) error {
	var spmNames, buildNames []string
	for _, c := range candidates {
		if c.Source == pkgmodel.UpgradeFromSPM {
			spmNames = append(spmNames, c.Name)
		} else {
			buildNames = append(buildNames, c.Name)
		}
	}

	if len(spmNames) > 0 {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.spm.Install(ctx, spmNames); err != nil {
			return err
		}
		fmt.Printf("Upgraded: %s\n", strings.Join(spmNames, ", "))
	}

	if len(buildNames) > 0 {
		return runInstall(cmd, buildNames)
	}
	return nil
}

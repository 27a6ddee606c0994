// Package upgrade implements the upgrade engine (spec.md §4.5): combining
// the SPM's sysupgrade candidates, the recipe index's update diff, and the
// develop tracker's possible_updates into a single menu-filtered candidate
// set.
package upgrade

import (
	"context"
	"fmt"
	"sort"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/selector"
	"github.com/cairn-pm/cairn/internal/vercmp"
)

// develVersionLabel is what a develop-tracked upgrade displays as its new
// version: it is rebuilt from the current remote tip, not a fixed pkgver
// (spec.md §4.5 "version is displayed as latest-commit").
const develVersionLabel = "latest-commit"

// SPM is the subset of internal/spm's Client this engine needs.
type SPM interface {
	SyncUpgrades(ctx context.Context) ([]pkgmodel.UpgradeCandidate, error)
}

// Registry is the subset of internal/registry's Registry this engine needs.
type Registry interface {
	Info(ctx context.Context, names []string) ([]pkgmodel.IndexPackage, error)
}

// InstalledIndexPackage is one locally-installed package whose origin is
// the recipe index (built and published through the local binary repo,
// as opposed to a native SPM repo), for the index-upgrade comparison.
type InstalledIndexPackage struct {
	Name    string
	Version string
}

// Engine computes upgrade candidates from the three sources spec.md §4.5
// names.
type Engine struct {
	SPM      SPM
	Registry Registry
}

// Candidates computes the full, unfiltered candidate set: SPM upgrades,
// index upgrades for installedIndex, and develop upgrades for develBases
// (base names the tracker's PossibleUpdates reported moved). A base
// present in both the index diff and develBases is reported only as a
// develop upgrade (spec.md §4.5 step 2).
func (e *Engine) Candidates(ctx context.Context, installedIndex []InstalledIndexPackage, develBases []string) ([]pkgmodel.UpgradeCandidate, error) {
	spmUpgrades, err := e.SPM.SyncUpgrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute SPM upgrades: %w", err)
	}
	for i := range spmUpgrades {
		spmUpgrades[i].Source = pkgmodel.UpgradeFromSPM
	}

	develSet := make(map[string]bool, len(develBases))
	for _, b := range develBases {
		develSet[b] = true
	}

	installedByName := make(map[string]string, len(installedIndex))
	for _, p := range installedIndex {
		installedByName[p.Name] = p.Version
	}

	indexUpgrades, err := e.indexUpgrades(ctx, installedIndex, develSet)
	if err != nil {
		return nil, err
	}

	develUpgrades := make([]pkgmodel.UpgradeCandidate, 0, len(develBases))
	for _, b := range develBases {
		develUpgrades = append(develUpgrades, pkgmodel.UpgradeCandidate{
			Name:       b,
			OldVersion: installedByName[b],
			NewVersion: develVersionLabel,
			Source:     pkgmodel.UpgradeFromDevel,
		})
	}
	sort.Slice(develUpgrades, func(i, j int) bool { return develUpgrades[i].Name < develUpgrades[j].Name })

	all := make([]pkgmodel.UpgradeCandidate, 0, len(spmUpgrades)+len(indexUpgrades)+len(develUpgrades))
	all = append(all, spmUpgrades...)
	all = append(all, indexUpgrades...)
	all = append(all, develUpgrades...)
	return all, nil
}

func (e *Engine) indexUpgrades(ctx context.Context, installedIndex []InstalledIndexPackage, develSet map[string]bool) ([]pkgmodel.UpgradeCandidate, error) {
	if len(installedIndex) == 0 {
		return nil, nil
	}

	names := make([]string, len(installedIndex))
	for i, p := range installedIndex {
		names[i] = p.Name
	}
	records, err := e.Registry.Info(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("compute index upgrades: %w", err)
	}

	latest := make(map[string]string, len(records))
	for _, r := range records {
		latest[r.Name] = r.Version
	}

	var out []pkgmodel.UpgradeCandidate
	for _, p := range installedIndex {
		if develSet[p.Name] {
			continue
		}
		newVer, ok := latest[p.Name]
		if !ok || newVer == "" {
			continue
		}
		if vercmp.Compare(newVer, p.Version) <= 0 {
			continue
		}
		out = append(out, pkgmodel.UpgradeCandidate{
			Name:       p.Name,
			OldVersion: p.Version,
			NewVersion: newVer,
			Source:     pkgmodel.UpgradeFromIndex,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Apply partitions candidates into kept/skipped sets per the numbered
// menu's selector grammar (spec.md §4.5 steps 3-4): candidates are
// numbered 1-based in the order given, and a candidate's Name is also
// matched as the selector's bare-word form. When sel is the zero value
// (no tokens at all, i.e. "upgrade_menu is disabled"), every candidate is
// kept (spec.md §4.5 "all candidates are kept without prompting").
func Apply(candidates []pkgmodel.UpgradeCandidate, sel selector.Selection) (kept, skipped []pkgmodel.UpgradeCandidate) {
	for i, c := range candidates {
		if sel.Contains(i+1, c.Name) {
			kept = append(kept, c)
		} else {
			skipped = append(skipped, c)
		}
	}
	return kept, skipped
}

package upgrade

import (
	"context"
	"errors"
	"testing"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/selector"
)

type fakeSPM struct {
	upgrades []pkgmodel.UpgradeCandidate
	err      error
}

func (f *fakeSPM) SyncUpgrades(ctx context.Context) ([]pkgmodel.UpgradeCandidate, error) {
	return f.upgrades, f.err
}

type fakeRegistry struct {
	records []pkgmodel.IndexPackage
	err     error
}

func (f *fakeRegistry) Info(ctx context.Context, names []string) ([]pkgmodel.IndexPackage, error) {
	return f.records, f.err
}

func TestEngine_Candidates_CombinesAllThreeSources(t *testing.T) {
	e := &Engine{
		SPM: &fakeSPM{upgrades: []pkgmodel.UpgradeCandidate{
			{Name: "bash", OldVersion: "5.1-1", NewVersion: "5.2-1"},
		}},
		Registry: &fakeRegistry{records: []pkgmodel.IndexPackage{
			{Name: "yay-bin", Version: "12.2.0-1"},
			{Name: "devel-pkg", Version: "9.9.9-1"},
		}},
	}

	installed := []InstalledIndexPackage{
		{Name: "yay-bin", Version: "12.1.0-1"},
		{Name: "devel-pkg", Version: "1.0.0-1"},
	}

	candidates, err := e.Candidates(context.Background(), installed, []string{"devel-pkg"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}

	var spmCount, indexCount, develCount int
	for _, c := range candidates {
		switch c.Source {
		case pkgmodel.UpgradeFromSPM:
			spmCount++
		case pkgmodel.UpgradeFromIndex:
			indexCount++
		case pkgmodel.UpgradeFromDevel:
			develCount++
			if c.NewVersion != develVersionLabel {
				t.Errorf("devel candidate NewVersion = %q, want %q", c.NewVersion, develVersionLabel)
			}
		}
	}
	if spmCount != 1 {
		t.Errorf("spmCount = %d, want 1", spmCount)
	}
	if develCount != 1 {
		t.Errorf("develCount = %d, want 1", develCount)
	}
	// devel-pkg is in both the index diff and develBases; the devel entry
	// should supersede it, so only yay-bin surfaces as an index upgrade.
	if indexCount != 1 {
		t.Errorf("indexCount = %d, want 1 (devel-pkg superseded)", indexCount)
	}
}

func TestEngine_Candidates_SkipsUpToDateIndexPackages(t *testing.T) {
	e := &Engine{
		SPM: &fakeSPM{},
		Registry: &fakeRegistry{records: []pkgmodel.IndexPackage{
			{Name: "yay-bin", Version: "12.1.0-1"},
		}},
	}
	installed := []InstalledIndexPackage{{Name: "yay-bin", Version: "12.1.0-1"}}

	candidates, err := e.Candidates(context.Background(), installed, nil)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates for an up-to-date package, got %v", candidates)
	}
}

func TestEngine_Candidates_PropagatesSPMError(t *testing.T) {
	wantErr := errors.New("pacman explosion")
	e := &Engine{SPM: &fakeSPM{err: wantErr}, Registry: &fakeRegistry{}}

	if _, err := e.Candidates(context.Background(), nil, nil); err == nil {
		t.Fatal("expected an error when SyncUpgrades fails")
	}
}

func TestApply_SelectorFiltersCandidates(t *testing.T) {
	candidates := []pkgmodel.UpgradeCandidate{
		{Name: "bash"},
		{Name: "yay-bin"},
		{Name: "devel-pkg"},
	}

	kept, skipped := Apply(candidates, selector.Parse("^2"))
	if len(kept) != 2 || len(skipped) != 1 {
		t.Fatalf("kept = %v, skipped = %v", kept, skipped)
	}
	if skipped[0].Name != "yay-bin" {
		t.Fatalf("skipped[0] = %v, want yay-bin", skipped[0])
	}
}

func TestApply_EmptySelectorKeepsEverything(t *testing.T) {
	candidates := []pkgmodel.UpgradeCandidate{{Name: "bash"}, {Name: "yay-bin"}}

	kept, skipped := Apply(candidates, selector.Parse(""))
	if len(kept) != 2 || len(skipped) != 0 {
		t.Fatalf("kept = %v, skipped = %v, want all kept (upgrade_menu disabled)", kept, skipped)
	}
}

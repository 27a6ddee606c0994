package resolver

import (
	"testing"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

func actionsWithInstalls(pkgs ...pkgmodel.SPMPackage) *pkgmodel.Actions {
	a := &pkgmodel.Actions{}
	for _, p := range pkgs {
		a.Install = append(a.Install, pkgmodel.InstallEntry{Pkg: p})
	}
	return a
}

func TestInnerConflicts_DirectNameConflict(t *testing.T) {
	a := pkgmodel.SPMPackage{Name: "a", Version: "1-1", Conflicts: []pkgmodel.DepSpec{{Name: "b"}}}
	b := pkgmodel.SPMPackage{Name: "b", Version: "1-1"}

	// One-directional PKGBUILD declaration (only a.Conflicts names b) must
	// still produce a symmetric pair of entries, per spec.md §8.
	out := InnerConflicts(actionsWithInstalls(a, b), false)
	if len(out) != 2 || out[0].Pkg != "a" || out[1].Pkg != "b" {
		t.Fatalf("InnerConflicts = %+v, want entries for both a and b", out)
	}
	if len(out[0].Conflicting) != 1 || out[0].Conflicting[0].Conflictor != "b" {
		t.Errorf("a.Conflicting = %+v", out[0].Conflicting)
	}
	if len(out[1].Conflicting) != 1 || out[1].Conflicting[0].Conflictor != "a" {
		t.Errorf("b.Conflicting = %+v", out[1].Conflicting)
	}
}

func TestInnerConflicts_NoConflictWhenUnrelated(t *testing.T) {
	a := pkgmodel.SPMPackage{Name: "a", Version: "1-1"}
	b := pkgmodel.SPMPackage{Name: "b", Version: "1-1"}

	out := InnerConflicts(actionsWithInstalls(a, b), false)
	if len(out) != 0 {
		t.Fatalf("InnerConflicts = %+v, want none", out)
	}
}

func TestInnerConflicts_ViaProvides(t *testing.T) {
	a := pkgmodel.SPMPackage{Name: "a", Version: "1-1", Conflicts: []pkgmodel.DepSpec{{Name: "virtual"}}}
	b := pkgmodel.SPMPackage{Name: "b", Version: "1-1", Provides: []pkgmodel.DepSpec{{Name: "virtual"}}}

	out := InnerConflicts(actionsWithInstalls(a, b), false)
	if len(out) != 2 || out[0].Pkg != "a" || out[0].Conflicting[0].Conflictor != "b" || out[1].Pkg != "b" || out[1].Conflicting[0].Conflictor != "a" {
		t.Fatalf("InnerConflicts = %+v, want a and b each conflicting with the other via virtual", out)
	}
}

func TestInnerConflicts_VersionConstraintNarrowsMatch(t *testing.T) {
	a := pkgmodel.SPMPackage{Name: "a", Version: "1-1", Conflicts: []pkgmodel.DepSpec{{Name: "b", Op: pkgmodel.OpLT, Ver: "2-1"}}}
	b := pkgmodel.SPMPackage{Name: "b", Version: "3-1"} // does not satisfy <2-1

	out := InnerConflicts(actionsWithInstalls(a, b), false)
	if len(out) != 0 {
		t.Fatalf("InnerConflicts = %+v, want none (version constraint excludes b@3-1)", out)
	}
}

func TestInnerConflicts_NoDepVersionIgnoresConstraint(t *testing.T) {
	a := pkgmodel.SPMPackage{Name: "a", Version: "1-1", Conflicts: []pkgmodel.DepSpec{{Name: "b", Op: pkgmodel.OpLT, Ver: "2-1"}}}
	b := pkgmodel.SPMPackage{Name: "b", Version: "3-1"}

	out := InnerConflicts(actionsWithInstalls(a, b), true)
	if len(out) != 2 {
		t.Fatalf("InnerConflicts = %+v, want entries for both sides under noDepVersion", out)
	}
}

func TestExternalConflicts_AgainstInstalledNotInPlan(t *testing.T) {
	plan := actionsWithInstalls(pkgmodel.SPMPackage{Name: "a", Version: "1-1", Conflicts: []pkgmodel.DepSpec{{Name: "old-b"}}})
	installed := []pkgmodel.SPMPackage{{Name: "old-b", Version: "1-1"}}

	out := ExternalConflicts(plan, installed, false)
	if len(out) != 1 || out[0].Pkg != "a" || out[0].Conflicting[0].Conflictor != "old-b" {
		t.Fatalf("ExternalConflicts = %+v", out)
	}
}

func TestExternalConflicts_SkipsPackageBeingReplacedByPlan(t *testing.T) {
	plan := actionsWithInstalls(
		pkgmodel.SPMPackage{Name: "a", Version: "2-1", Conflicts: []pkgmodel.DepSpec{{Name: "a-old"}}},
		pkgmodel.SPMPackage{Name: "a-old", Version: "1-1"},
	)
	installed := []pkgmodel.SPMPackage{{Name: "a-old", Version: "1-1"}}

	out := ExternalConflicts(plan, installed, false)
	if len(out) != 0 {
		t.Fatalf("ExternalConflicts = %+v, want none (a-old is itself in the plan)", out)
	}
}

func TestExternalConflicts_ReverseDirection(t *testing.T) {
	plan := actionsWithInstalls(pkgmodel.SPMPackage{Name: "a", Version: "1-1"})
	installed := []pkgmodel.SPMPackage{{Name: "legacy", Version: "1-1", Conflicts: []pkgmodel.DepSpec{{Name: "a"}}}}

	out := ExternalConflicts(plan, installed, false)
	if len(out) != 1 || out[0].Pkg != "a" || out[0].Conflicting[0].Conflictor != "legacy" {
		t.Fatalf("ExternalConflicts = %+v, want a flagged via legacy's conflicts", out)
	}
}

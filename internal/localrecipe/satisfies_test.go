package localrecipe

import (
	"testing"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

func TestSatisfiesDirectName(t *testing.T) {
	dep := pkgmodel.DepSpec{Name: "foo", Op: pkgmodel.OpGE, Ver: "1.0-1"}
	cand := Candidate{Name: "foo", Version: "1.2-1"}
	if !Satisfies(dep, cand, false) {
		t.Fatal("expected 1.2-1 to satisfy >=1.0-1")
	}
}

func TestSatisfiesFailsOnVersion(t *testing.T) {
	dep := pkgmodel.DepSpec{Name: "foo", Op: pkgmodel.OpGE, Ver: "2.0-1"}
	cand := Candidate{Name: "foo", Version: "1.2-1"}
	if Satisfies(dep, cand, false) {
		t.Fatal("expected 1.2-1 to not satisfy >=2.0-1")
	}
}

func TestSatisfiesIgnoreVersion(t *testing.T) {
	dep := pkgmodel.DepSpec{Name: "foo", Op: pkgmodel.OpGE, Ver: "2.0-1"}
	cand := Candidate{Name: "foo", Version: "1.2-1"}
	if !Satisfies(dep, cand, true) {
		t.Fatal("expected ignoreVersion to bypass the constraint")
	}
}

func TestSatisfiesViaProvides(t *testing.T) {
	dep := pkgmodel.DepSpec{Name: "libfoo", Op: pkgmodel.OpEQ, Ver: "1.0-1"}
	cand := Candidate{
		Name:    "libfoo-compat",
		Version: "9.0-1",
		Provides: []pkgmodel.DepSpec{
			{Name: "libfoo", Op: pkgmodel.OpEQ, Ver: "1.0-1"},
		},
	}
	if !Satisfies(dep, cand, false) {
		t.Fatal("expected provides match with matching version")
	}
}

func TestSatisfiesNoMatch(t *testing.T) {
	dep := pkgmodel.DepSpec{Name: "bar"}
	cand := Candidate{Name: "foo"}
	if Satisfies(dep, cand, false) {
		t.Fatal("expected no match for unrelated name")
	}
}

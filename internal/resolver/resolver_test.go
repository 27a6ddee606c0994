package resolver

import (
	"errors"
	"testing"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// fakeDB implements DBView over plain maps, mirroring the teacher's
// in-memory mock-loader pattern used for dependency-resolution tests.
type fakeDB struct {
	installed map[string]pkgmodel.SPMPackage
	sync      map[string]pkgmodel.SPMPackage
	index     map[string]pkgmodel.Base // keyed by package name
	local     map[string]pkgmodel.Base // keyed by package name
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		installed: map[string]pkgmodel.SPMPackage{},
		sync:      map[string]pkgmodel.SPMPackage{},
		index:     map[string]pkgmodel.Base{},
		local:     map[string]pkgmodel.Base{},
	}
}

func (f *fakeDB) Installed(name string) (pkgmodel.SPMPackage, bool) {
	p, ok := f.installed[name]
	return p, ok
}

func (f *fakeDB) SyncPackage(name string) (pkgmodel.SPMPackage, bool) {
	p, ok := f.sync[name]
	return p, ok
}

func (f *fakeDB) SyncProvider(dep pkgmodel.DepSpec) (pkgmodel.SPMPackage, bool) {
	for _, p := range f.sync {
		for _, pr := range p.Provides {
			if pr.Name == dep.Name {
				return p, true
			}
		}
	}
	return pkgmodel.SPMPackage{}, false
}

func (f *fakeDB) IndexBase(name string) (pkgmodel.Base, string, bool) {
	b, ok := f.index[name]
	return b, name, ok
}

func (f *fakeDB) IndexProvider(dep pkgmodel.DepSpec) (pkgmodel.Base, string, bool) {
	for _, b := range f.index {
		for _, p := range b.IndexPackages {
			for _, pr := range p.Provides {
				if pr.Name == dep.Name {
					return b, p.Name, true
				}
			}
		}
	}
	return pkgmodel.Base{}, "", false
}

func (f *fakeDB) LocalBase(repo, name string) (pkgmodel.Base, string, bool) {
	b, ok := f.local[name]
	if !ok || (repo != "" && b.LocalRepo != repo) {
		return pkgmodel.Base{}, "", false
	}
	return b, name, true
}

func (f *fakeDB) LocalProvider(dep pkgmodel.DepSpec) (pkgmodel.Base, string, bool) {
	for _, b := range f.local {
		for _, p := range b.LocalPackages {
			for _, pr := range p.Provides {
				if pr.Name == dep.Name {
					return b, p.Name, true
				}
			}
		}
	}
	return pkgmodel.Base{}, "", false
}

func (f *fakeDB) addIndexBase(baseName string, pkgs ...pkgmodel.IndexPackage) {
	for i := range pkgs {
		pkgs[i].Base = baseName
	}
	b := pkgmodel.Base{Kind: pkgmodel.BaseKindIndex, IndexPackages: pkgs}
	for _, p := range pkgs {
		f.index[p.Name] = b
	}
}

func (f *fakeDB) addLocalBase(repo, baseName string, pkgs ...pkgmodel.LocalPackage) {
	for i := range pkgs {
		pkgs[i].Base = baseName
		pkgs[i].Repo = repo
	}
	b := pkgmodel.Base{Kind: pkgmodel.BaseKindLocal, LocalRepo: repo, LocalPackages: pkgs}
	for _, p := range pkgs {
		f.local[p.Name] = b
	}
}

func allFlags() Flags {
	return Flags{REPO: true, AUR: true, PKGBUILDS: true}
}

func TestResolve_DirectSyncInstall(t *testing.T) {
	db := newFakeDB()
	db.sync["foo"] = pkgmodel.SPMPackage{Name: "foo", Version: "1.0-1"}

	targets, _ := pkgmodel.ParseTargets([]string{"foo"})
	actions, err := Resolve(targets, allFlags(), db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Install) != 1 || actions.Install[0].Pkg.Name != "foo" {
		t.Fatalf("Install = %+v", actions.Install)
	}
	if !actions.Install[0].Target {
		t.Error("direct target should have Target=true")
	}
}

func TestResolve_LinearChainIndex(t *testing.T) {
	db := newFakeDB()
	db.addIndexBase("a", pkgmodel.IndexPackage{Name: "a", Version: "1-1", Depends: []pkgmodel.DepSpec{{Name: "b"}}})
	db.addIndexBase("b", pkgmodel.IndexPackage{Name: "b", Version: "1-1"})

	targets, _ := pkgmodel.ParseTargets([]string{"a"})
	actions, err := Resolve(targets, allFlags(), db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Build) != 2 {
		t.Fatalf("Build = %+v, want 2 bases", actions.Build)
	}
	// b must precede a (b has no deps; a depends on b).
	if actions.Build[0].Base.Name() != "b" || actions.Build[1].Base.Name() != "a" {
		t.Errorf("build order = [%s, %s], want [b, a]", actions.Build[0].Base.Name(), actions.Build[1].Base.Name())
	}
	if !actions.Build[1].Target["a"] {
		t.Error("a should be a target")
	}
	if actions.Build[0].Target["b"] {
		t.Error("b should not be a target (reached only transitively)")
	}
}

func TestResolve_MakeDependsFlaggedTransientUnlessAlsoRuntime(t *testing.T) {
	db := newFakeDB()
	db.addIndexBase("a", pkgmodel.IndexPackage{
		Name: "a", Version: "1-1",
		MakeDepends: []pkgmodel.DepSpec{{Name: "builder"}},
	})
	db.addIndexBase("builder", pkgmodel.IndexPackage{Name: "builder", Version: "1-1"})

	targets, _ := pkgmodel.ParseTargets([]string{"a"})
	actions, err := Resolve(targets, allFlags(), db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var builderMake bool
	for _, e := range actions.Build {
		if e.Base.Name() == "builder" {
			builderMake = e.Make["builder"]
		}
	}
	if !builderMake {
		t.Error("builder should be flagged as a transient make dependency")
	}
}

func TestResolve_MissingDependency(t *testing.T) {
	db := newFakeDB()
	db.addIndexBase("a", pkgmodel.IndexPackage{Name: "a", Version: "1-1", Depends: []pkgmodel.DepSpec{{Name: "nowhere"}}})

	targets, _ := pkgmodel.ParseTargets([]string{"a"})
	actions, err := Resolve(targets, allFlags(), db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Missing) != 1 || actions.Missing[0].Dep != "nowhere" {
		t.Errorf("Missing = %+v", actions.Missing)
	}
}

func TestResolve_NeededSkipsAlreadyInstalled(t *testing.T) {
	db := newFakeDB()
	db.installed["foo"] = pkgmodel.SPMPackage{Name: "foo", Version: "1.0-1"}
	db.sync["foo"] = pkgmodel.SPMPackage{Name: "foo", Version: "2.0-1"}

	flags := allFlags()
	flags.Needed = true

	targets, _ := pkgmodel.ParseTargets([]string{"foo"})
	actions, err := Resolve(targets, flags, db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Install) != 1 || actions.Install[0].Pkg.Version != "1.0-1" {
		t.Errorf("Install = %+v, want the already-installed 1.0-1", actions.Install)
	}
}

func TestResolve_VersionConstraintRejectsCandidate(t *testing.T) {
	db := newFakeDB()
	db.sync["foo"] = pkgmodel.SPMPackage{Name: "foo", Version: "1.0-1"}

	targets, err := pkgmodel.ParseTargets([]string{"foo>=2.0"})
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	actions, err := Resolve(targets, allFlags(), db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Install) != 0 {
		t.Errorf("Install = %+v, want none (1.0-1 does not satisfy >=2.0)", actions.Install)
	}
	if len(actions.Missing) != 1 {
		t.Errorf("Missing = %+v, want one entry", actions.Missing)
	}
}

func TestResolve_NoDepVersionIgnoresConstraint(t *testing.T) {
	db := newFakeDB()
	db.sync["foo"] = pkgmodel.SPMPackage{Name: "foo", Version: "1.0-1"}

	flags := allFlags()
	flags.NoDepVersion = true

	targets, _ := pkgmodel.ParseTargets([]string{"foo>=2.0"})
	actions, err := Resolve(targets, flags, db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Install) != 1 {
		t.Errorf("Install = %+v, want one entry under NoDepVersion", actions.Install)
	}
}

func TestResolve_NoDepsDoesNotDescend(t *testing.T) {
	db := newFakeDB()
	db.addIndexBase("a", pkgmodel.IndexPackage{Name: "a", Version: "1-1", Depends: []pkgmodel.DepSpec{{Name: "b"}}})
	db.addIndexBase("b", pkgmodel.IndexPackage{Name: "b", Version: "1-1"})

	flags := allFlags()
	flags.NoDeps = true

	targets, _ := pkgmodel.ParseTargets([]string{"a"})
	actions, err := Resolve(targets, flags, db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Build) != 1 {
		t.Fatalf("Build = %+v, want only a", actions.Build)
	}
}

func TestResolve_DuplicateTargets(t *testing.T) {
	db := newFakeDB()
	db.addLocalBase("repo1", "foo", pkgmodel.LocalPackage{Name: "foo", Version: "1-1"})
	db.sync["foo"] = pkgmodel.SPMPackage{Name: "foo", Version: "2-1"}

	targets, _ := pkgmodel.ParseTargets([]string{"foo", "repo1/foo"})
	_, err := Resolve(targets, allFlags(), db)
	if err == nil {
		t.Fatal("expected a duplicate-target error")
	}
	var dupErr *pkgmodel.DuplicateTargetError
	if !errors.As(err, &dupErr) {
		t.Fatalf("error = %v, want *pkgmodel.DuplicateTargetError", err)
	}
}

func TestResolve_ProvidesSatisfiesDependency(t *testing.T) {
	db := newFakeDB()
	db.addIndexBase("a", pkgmodel.IndexPackage{Name: "a", Version: "1-1", Depends: []pkgmodel.DepSpec{{Name: "virtual-thing"}}})
	db.sync["real-thing"] = pkgmodel.SPMPackage{Name: "real-thing", Version: "1-1", Provides: []pkgmodel.DepSpec{{Name: "virtual-thing"}}}

	flags := allFlags()
	flags.Provides = true

	targets, _ := pkgmodel.ParseTargets([]string{"a"})
	actions, err := Resolve(targets, flags, db)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(actions.Install) != 1 || actions.Install[0].Pkg.Name != "real-thing" {
		t.Fatalf("Install = %+v, want real-thing via provides", actions.Install)
	}
}

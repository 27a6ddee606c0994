// Package resolver implements spec.md §4.1: it turns a batch of targets
// into an Actions plan by walking the dependency graph against a
// read-only view of SPM state, the recipe index, and local recipe
// repositories.
package resolver

import (
	"sort"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/vercmp"
)

// Flags is the enumerated flag set §4.1 recognizes.
type Flags struct {
	Needed                    bool // skip already-installed-at-version
	EnableDowngrade           bool // treat an older remote version as an upgrade
	NoDepVersion              bool // ignore version constraints in dep matching
	NoDeps                    bool // do not descend into dependencies at all
	CheckDepends              bool // include checkdepends edges in the walk
	Provides                  bool // consult provides edges generally
	MissingProvides           bool // consult provides edges only for otherwise-missing deps
	TargetProvides            bool // consult provides edges for direct targets
	NonTargetProvides         bool // consult provides edges for transitive deps
	AUR                       bool // recipe-index sources are eligible
	PKGBUILDS                 bool // local-recipe sources are eligible
	REPO                      bool // SPM sync-db sources are eligible
	ResolveSatisfiedPKGBUILDS bool // descend into satisfied recipes anyway, for build order
}

// providesEligible reports whether f permits consulting provides edges
// for a dependency reached directly from a user target (isTarget) versus
// transitively.
func (f Flags) providesEligible(isTarget bool) bool {
	if f.Provides {
		return true
	}
	if isTarget && f.TargetProvides {
		return true
	}
	if !isTarget && f.NonTargetProvides {
		return true
	}
	return false
}

// DBView is the read-only state the resolver consults: SPM sync/local
// databases, the recipe-index cache, and local recipe repositories. A
// production caller backs this with internal/cache + internal/localrecipe
// + internal/registry; tests back it with an in-memory fake.
type DBView interface {
	// Installed returns the SPM package already installed as name, if any.
	Installed(name string) (pkgmodel.SPMPackage, bool)
	// SyncPackage resolves name against the SPM sync databases.
	SyncPackage(name string) (pkgmodel.SPMPackage, bool)
	// SyncProvider finds a sync-db package providing dep.
	SyncProvider(dep pkgmodel.DepSpec) (pkgmodel.SPMPackage, bool)
	// IndexBase resolves name to its owning recipe-index base and the
	// package name within it.
	IndexBase(name string) (base pkgmodel.Base, pkgName string, ok bool)
	// IndexProvider finds an index base/package providing dep.
	IndexProvider(dep pkgmodel.DepSpec) (base pkgmodel.Base, pkgName string, ok bool)
	// LocalBase resolves name, optionally qualified by repo, to a local
	// recipe base and the package name within it.
	LocalBase(repo, name string) (base pkgmodel.Base, pkgName string, ok bool)
	// LocalProvider finds a local-repo base/package providing dep.
	LocalProvider(dep pkgmodel.DepSpec) (base pkgmodel.Base, pkgName string, ok bool)
}

// maxDepth bounds the dependency walk so a data error in the recipe graph
// (an unexpected cycle) fails fast with a readable stack rather than
// recursing forever.
const maxDepth = 200

// resolution records what a single package name resolved to during the
// walk, memoized so a diamond dependency is only resolved once.
type resolution struct {
	kind       resolutionKind
	installPkg pkgmodel.SPMPackage
	base       pkgmodel.Base
	basePkg    string // package name within base, for build resolutions
	make       bool   // true until reached via a plain (non-make/check) depends edge
	target     bool   // true if ever reached directly from a user target
}

type resolutionKind int

const (
	kindInstall resolutionKind = iota
	kindBuild
	kindMissing
)

// walker holds the mutable state of one Resolve call.
type walker struct {
	flags     Flags
	db        DBView
	resolved  map[string]*resolution
	missing   []pkgmodel.MissingDep
	buildSeen map[string]bool // base name -> already added to the build set
	bases     []pkgmodel.Base
}

// Resolve implements spec.md §4.1's resolve(targets, flags, db_view) ->
// Actions contract.
func Resolve(targets []pkgmodel.Target, flags Flags, db DBView) (*pkgmodel.Actions, error) {
	w := &walker{
		flags:     flags,
		db:        db,
		resolved:  make(map[string]*resolution),
		buildSeen: make(map[string]bool),
	}

	if dup := findDuplicateTargets(targets); dup != nil {
		return nil, dup
	}

	for _, t := range targets {
		w.walkTarget(t)
	}

	actions := w.buildActions()
	if err := sortBuildOrder(actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// walkTarget resolves a single user-supplied target and everything it
// depends on.
func (w *walker) walkTarget(t pkgmodel.Target) {
	dep := pkgmodel.DepSpec{Name: t.Name, Op: t.Op, Ver: t.Version}
	w.resolveNode(dep, t.RepoName, nil, false, true, 0)
}

// resolveNode resolves one dependency edge, descending unless NoDeps is
// set, already resolved, satisfied by an installed/eligible SPM package,
// or missing. stack is the provenance chain for error reporting.
func (w *walker) resolveNode(dep pkgmodel.DepSpec, repoHint string, stack []string, isMake, isTarget bool, depth int) {
	if depth > maxDepth {
		w.missing = append(w.missing, pkgmodel.MissingDep{
			Dep:   dep.String(),
			Stack: append(append([]string{}, stack...), dep.Name+" (max depth exceeded)"),
		})
		return
	}

	if r, ok := w.resolved[dep.Name]; ok {
		// Memoized: union the make/target flags across every path that
		// reached this node.
		if isTarget {
			r.target = true
		}
		if !isMake {
			r.make = false
		}
		return
	}

	if w.flags.Needed {
		if installed, ok := w.db.Installed(dep.Name); ok && w.satisfiesVersion(dep, installed.Version) {
			w.resolved[dep.Name] = &resolution{kind: kindInstall, installPkg: installed, make: isMake, target: isTarget}
			return
		}
	}

	if w.flags.REPO {
		if pkg, ok := w.db.SyncPackage(dep.Name); ok && w.satisfiesVersion(dep, pkg.Version) {
			w.resolveInstall(dep, pkg, isMake, isTarget, stack, depth)
			return
		}
	}

	if w.flags.PKGBUILDS {
		if base, pkgName, ok := w.db.LocalBase(repoHint, dep.Name); ok {
			w.resolveBuild(dep, base, pkgName, isMake, isTarget, stack, depth)
			return
		}
	}

	if w.flags.AUR {
		if base, pkgName, ok := w.db.IndexBase(dep.Name); ok {
			w.resolveBuild(dep, base, pkgName, isMake, isTarget, stack, depth)
			return
		}
	}

	if w.flags.providesEligible(isTarget) || w.flags.MissingProvides {
		if w.flags.REPO {
			if pkg, ok := w.db.SyncProvider(dep); ok {
				w.resolveInstall(dep, pkg, isMake, isTarget, stack, depth)
				return
			}
		}
		if w.flags.PKGBUILDS {
			if base, pkgName, ok := w.db.LocalProvider(dep); ok {
				w.resolveBuild(dep, base, pkgName, isMake, isTarget, stack, depth)
				return
			}
		}
		if w.flags.AUR {
			if base, pkgName, ok := w.db.IndexProvider(dep); ok {
				w.resolveBuild(dep, base, pkgName, isMake, isTarget, stack, depth)
				return
			}
		}
	}

	w.resolved[dep.Name] = &resolution{kind: kindMissing, make: isMake, target: isTarget}
	w.missing = append(w.missing, pkgmodel.MissingDep{
		Dep:   dep.String(),
		Stack: append(append([]string{}, stack...), dep.Name),
	})
}

// resolveInstall records dep as satisfied directly by an SPM package and
// stops descending, with one exception: when ResolveSatisfiedPKGBUILDS is
// set and a recipe for the same name also exists, the recipe's own
// dependency edges are walked too (for build-order purposes only — the
// recipe itself is never added to the build set here, since it's already
// satisfied by pkg).
func (w *walker) resolveInstall(dep pkgmodel.DepSpec, pkg pkgmodel.SPMPackage, isMake, isTarget bool, stack []string, depth int) {
	w.resolved[dep.Name] = &resolution{kind: kindInstall, installPkg: pkg, make: isMake, target: isTarget}
	if w.flags.NoDeps || !w.flags.ResolveSatisfiedPKGBUILDS {
		return
	}

	if base, pkgName, ok := w.recipeFor(dep.Name); ok {
		depends, makeDepends, checkDepends := packageDeps(base, pkgName)
		w.descend(dep.Name, depends, false, stack, depth)
		w.descend(dep.Name, makeDepends, true, stack, depth)
		if w.flags.CheckDepends {
			w.descend(dep.Name, checkDepends, true, stack, depth)
		}
	}
}

// recipeFor looks up a local or index recipe for name, local repos taking
// priority, without regard to whether SPM already satisfies it.
func (w *walker) recipeFor(name string) (pkgmodel.Base, string, bool) {
	if w.flags.PKGBUILDS {
		if base, pkgName, ok := w.db.LocalBase("", name); ok {
			return base, pkgName, true
		}
	}
	if w.flags.AUR {
		if base, pkgName, ok := w.db.IndexBase(name); ok {
			return base, pkgName, true
		}
	}
	return pkgmodel.Base{}, "", false
}

// packageDeps extracts the depends/makedepends/checkdepends of pkgName
// within base, whichever variant it is.
func packageDeps(base pkgmodel.Base, pkgName string) (depends, makeDepends, checkDepends []pkgmodel.DepSpec) {
	switch base.Kind {
	case pkgmodel.BaseKindIndex:
		for _, p := range base.IndexPackages {
			if p.Name == pkgName {
				return p.Depends, p.MakeDepends, p.CheckDepends
			}
		}
	case pkgmodel.BaseKindLocal:
		for _, p := range base.LocalPackages {
			if p.Name == pkgName {
				return p.Depends, p.MakeDepends, p.CheckDepends
			}
		}
	}
	return nil, nil, nil
}

func (w *walker) resolveBuild(dep pkgmodel.DepSpec, base pkgmodel.Base, pkgName string, isMake, isTarget bool, stack []string, depth int) {
	w.resolved[dep.Name] = &resolution{kind: kindBuild, base: base, basePkg: pkgName, make: isMake, target: isTarget}
	if !w.buildSeen[base.Name()] {
		w.buildSeen[base.Name()] = true
		w.bases = append(w.bases, base)
	}

	if w.flags.NoDeps {
		return
	}

	depends, makeDepends, checkDepends := packageDeps(base, pkgName)
	w.descend(dep.Name, depends, false, stack, depth)
	w.descend(dep.Name, makeDepends, true, stack, depth)
	if w.flags.CheckDepends {
		w.descend(dep.Name, checkDepends, true, stack, depth)
	}
}

// descend walks every dependency edge out of parent. isMake marks
// makedepends/checkdepends edges so the reached node is flagged as a
// transient build-only dependency unless some other path also reaches it
// through a plain depends edge (see resolveNode's memoized-node union).
func (w *walker) descend(parent string, deps []pkgmodel.DepSpec, isMake bool, stack []string, depth int) {
	nextStack := append(append([]string{}, stack...), parent)
	for _, d := range deps {
		w.resolveNode(d, "", nextStack, isMake, false, depth+1)
	}
}

func (w *walker) satisfiesVersion(dep pkgmodel.DepSpec, candidateVersion string) bool {
	if dep.Op == pkgmodel.OpAny || w.flags.NoDepVersion {
		return true
	}
	cmp := vercmp.Compare(candidateVersion, dep.Ver)
	switch dep.Op {
	case pkgmodel.OpLT:
		return cmp < 0
	case pkgmodel.OpLE:
		return cmp <= 0
	case pkgmodel.OpEQ:
		return cmp == 0
	case pkgmodel.OpGE:
		return cmp >= 0
	case pkgmodel.OpGT:
		return cmp > 0
	default:
		return true
	}
}

// findDuplicateTargets catches the common case spec.md §4.1 names: two
// distinct user-supplied targets naming the same install name through
// different resolutions (distinct repo qualifiers, version constraints,
// or sources). Transitive name collisions reached only through the
// dependency walk are resolved by first-wins memoization in resolveNode
// instead, since there the first resolution found is definitionally the
// only one ever consulted.
func findDuplicateTargets(targets []pkgmodel.Target) *pkgmodel.DuplicateTargetError {
	byName := make(map[string][]pkgmodel.Target)
	for _, t := range targets {
		byName[t.Name] = append(byName[t.Name], t)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ts := byName[name]
		if len(ts) < 2 {
			continue
		}
		seen := map[string]bool{}
		var resolutions []string
		for _, t := range ts {
			s := t.String()
			if seen[s] {
				continue
			}
			seen[s] = true
			resolutions = append(resolutions, s)
		}
		if len(resolutions) > 1 {
			return &pkgmodel.DuplicateTargetError{Name: name, Resolutions: resolutions}
		}
	}
	return nil
}

func (w *walker) buildActions() *pkgmodel.Actions {
	actions := &pkgmodel.Actions{Missing: w.missing}

	names := make([]string, 0, len(w.resolved))
	for name := range w.resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := w.resolved[name]
		if r.kind == kindInstall {
			actions.Install = append(actions.Install, pkgmodel.InstallEntry{
				Pkg:    r.installPkg,
				Make:   r.make,
				Target: r.target,
			})
		}
	}

	for _, base := range w.bases {
		make_ := map[string]bool{}
		target := map[string]bool{}
		for _, name := range base.PackageNames() {
			if r, ok := w.resolved[name]; ok {
				make_[name] = r.make
				target[name] = r.target
			}
		}
		actions.Build = append(actions.Build, pkgmodel.BuildEntry{Base: base, Make: make_, Target: target})
	}

	return actions
}

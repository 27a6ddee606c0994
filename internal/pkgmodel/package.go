package pkgmodel

import "time"

// InstallReason matches SPM install-reason semantics.
type InstallReason int

const (
	ReasonExplicit InstallReason = iota
	ReasonDependency
)

// DepSpec is one entry in a depends/makedepends/checkdepends/optdepends
// list: a bare name, or name + version operator.
type DepSpec struct {
	Name string
	Op   DepOp
	Ver  string
}

func (d DepSpec) String() string {
	if d.Op == OpAny {
		return d.Name
	}
	return d.Name + d.Op.String() + d.Ver
}

// SPMPackage is a package already known to (or installable directly
// through) the system package manager's sync or local databases.
type SPMPackage struct {
	Name      string
	Version   string // epoch:pkgver-pkgrel
	Repo      string // origin repo name, "" for local-db-only
	Depends   []DepSpec
	Provides  []DepSpec
	Conflicts []DepSpec
	Reason    InstallReason
}

// IndexPackage is one package record from the recipe index, as described
// in spec.md §3.
type IndexPackage struct {
	Name           string
	Base           string
	Version        string
	Maintainer     string // empty when orphaned
	OutOfDate      *time.Time
	Votes          int
	Popularity     float64
	Depends        []DepSpec
	MakeDepends    []DepSpec
	CheckDepends   []DepSpec
	OptDepends     []DepSpec
	Provides       []DepSpec
	Conflicts      []DepSpec
	ValidSignerKey []string // 40-char hex PGP fingerprints, a.k.a. validpgpkeys
}

// LocalPackage is one sub-package produced by a parsed local recipe.
type LocalPackage struct {
	Name    string
	Base    string
	Repo    string // owning local recipe repository name
	Path    string // on-disk recipe directory
	Version string

	Depends      []DepSpec
	MakeDepends  []DepSpec
	CheckDepends []DepSpec
	OptDepends   []DepSpec
	Provides     []DepSpec
	Conflicts    []DepSpec
}

// RecipeMeta holds the base-level fields of a parsed local recipe that are
// shared across every sub-package it produces: the build-system fields a
// resolved .SRCINFO-equivalent carries outside any single pkgname() block.
type RecipeMeta struct {
	PkgBase      string
	Epoch        int
	PkgVer       string
	PkgRel       string
	Arch         []string
	Sources      map[string][]string // keyed by arch, "" for arch-independent
	Sha256Sums   map[string][]string // keyed by arch, aligned with Sources
	ValidPGPKeys []string            // 40-char hex fingerprints
}

// BaseKind discriminates the two Base variants.
type BaseKind int

const (
	BaseKindIndex BaseKind = iota
	BaseKindLocal
)

// Base is the sum type described in spec.md §3: an index base (an ordered,
// nonempty sequence of index packages sharing a base name+version) or a
// local base (a recipe-repository name + parsed recipe + selected
// sub-packages). A base is atomic for build and publish.
type Base struct {
	Kind BaseKind

	// set when Kind == BaseKindIndex
	IndexPackages []IndexPackage

	// set when Kind == BaseKindLocal
	LocalRepo     string
	LocalPackages []LocalPackage
	Recipe        RecipeMeta

	// Per-package flags assigned by the resolver walk, keyed by package
	// name within this base.
	Make   map[string]bool
	Target map[string]bool
}

// Name returns the shared base name.
func (b Base) Name() string {
	switch b.Kind {
	case BaseKindIndex:
		if len(b.IndexPackages) > 0 {
			return b.IndexPackages[0].Base
		}
	case BaseKindLocal:
		if len(b.LocalPackages) > 0 {
			return b.LocalPackages[0].Base
		}
	}
	return ""
}

// Version returns the shared base version.
func (b Base) Version() string {
	switch b.Kind {
	case BaseKindIndex:
		if len(b.IndexPackages) > 0 {
			return b.IndexPackages[0].Version
		}
	case BaseKindLocal:
		if len(b.LocalPackages) > 0 {
			return b.LocalPackages[0].Version
		}
	}
	return ""
}

// PackageNames returns every package name produced by this base.
func (b Base) PackageNames() []string {
	switch b.Kind {
	case BaseKindIndex:
		names := make([]string, len(b.IndexPackages))
		for i, p := range b.IndexPackages {
			names[i] = p.Name
		}
		return names
	case BaseKindLocal:
		names := make([]string, len(b.LocalPackages))
		for i, p := range b.LocalPackages {
			names[i] = p.Name
		}
		return names
	}
	return nil
}

// BuildDir returns the directory the pipeline should fetch/build in.
func (b Base) BuildDir(cloneRoot string) string {
	return cloneRoot + "/" + b.Name()
}

// InstallEntry is one directly-installable SPM package in an Actions plan.
type InstallEntry struct {
	Pkg    SPMPackage
	Make   bool // transient build-only dependency
	Target bool // user-requested
}

// BuildEntry is one base slated for a source build, in topological order.
type BuildEntry struct {
	Base   Base
	Make   map[string]bool
	Target map[string]bool
}

// UpgradeCandidate is one installed package with a newer version available
// from some source, as surfaced by the upgrade engine (spec.md §4.5).
type UpgradeCandidate struct {
	Name       string
	OldVersion string
	NewVersion string
	Source     UpgradeSource
}

// UpgradeSource discriminates where an UpgradeCandidate's new version came
// from.
type UpgradeSource int

const (
	UpgradeFromSPM UpgradeSource = iota
	UpgradeFromIndex
	UpgradeFromDevel
)

// Actions is the complete plan produced by the resolver (spec.md §3, §4.1).
type Actions struct {
	Install  []InstallEntry
	Build    []BuildEntry
	Missing  []MissingDep
	Unneeded []string // already-installed-at-version names, skipped
}

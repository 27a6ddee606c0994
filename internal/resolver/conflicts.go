package resolver

import (
	"sort"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/vercmp"
)

// member is one uniformly-shaped participant of the conflict check: a
// package headed for install or build, with the name/version/provides/
// conflicts a conflict check needs regardless of its originating variant.
type member struct {
	name      string
	version   string
	provides  []pkgmodel.DepSpec
	conflicts []pkgmodel.DepSpec
}

func membersOf(actions *pkgmodel.Actions) []member {
	var out []member
	for _, e := range actions.Install {
		out = append(out, member{name: e.Pkg.Name, version: e.Pkg.Version, provides: e.Pkg.Provides, conflicts: e.Pkg.Conflicts})
	}
	for _, e := range actions.Build {
		for _, pkgName := range e.Base.PackageNames() {
			switch e.Base.Kind {
			case pkgmodel.BaseKindIndex:
				for _, p := range e.Base.IndexPackages {
					if p.Name == pkgName {
						out = append(out, member{name: p.Name, version: p.Version, provides: p.Provides, conflicts: p.Conflicts})
					}
				}
			case pkgmodel.BaseKindLocal:
				for _, p := range e.Base.LocalPackages {
					if p.Name == pkgName {
						out = append(out, member{name: p.Name, version: p.Version, provides: p.Provides, conflicts: p.Conflicts})
					}
				}
			}
		}
	}
	return out
}

// InnerConflicts finds pairs within install ∪ build whose conflicts or
// provides edges intersect (spec.md §4.1 step 5). Version-aware unless
// noDepVersion is set. Symmetric: a conflicting pair produces an entry for
// both sides.
func InnerConflicts(actions *pkgmodel.Actions, noDepVersion bool) []pkgmodel.ConflictEntry {
	members := membersOf(actions)
	byEntry := map[string]*pkgmodel.ConflictEntry{}

	add := func(pkg, conflictor, via string) {
		e, ok := byEntry[pkg]
		if !ok {
			e = &pkgmodel.ConflictEntry{Pkg: pkg}
			byEntry[pkg] = e
		}
		e.Conflicting = append(e.Conflicting, pkgmodel.ConflictReason{Pkg: pkg, Conflictor: conflictor, Via: via})
	}

	for i := range members {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			if a.name == b.name {
				continue
			}
			if conflictMatches(a.conflicts, b, noDepVersion) || conflictMatches(b.conflicts, a, noDepVersion) {
				add(a.name, b.name, "conflicts")
				add(b.name, a.name, "conflicts")
			}
		}
	}

	names := make([]string, 0, len(byEntry))
	for name := range byEntry {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]pkgmodel.ConflictEntry, 0, len(names))
	for _, name := range names {
		out = append(out, *byEntry[name])
	}
	return out
}

// ExternalConflicts finds members of install ∪ build that conflict with
// an already-installed package that isn't itself being removed as part of
// this plan.
func ExternalConflicts(actions *pkgmodel.Actions, installed []pkgmodel.SPMPackage, noDepVersion bool) []pkgmodel.ConflictEntry {
	inPlan := map[string]bool{}
	for _, m := range membersOf(actions) {
		inPlan[m.name] = true
	}

	members := membersOf(actions)
	var out []pkgmodel.ConflictEntry
	for _, m := range members {
		var reasons []pkgmodel.ConflictReason
		for _, other := range installed {
			if inPlan[other.Name] {
				continue // being replaced by this same plan, not an external conflict
			}
			candidate := member{name: other.Name, version: other.Version, provides: other.Provides}
			if conflictMatches(m.conflicts, candidate, noDepVersion) {
				reasons = append(reasons, pkgmodel.ConflictReason{Pkg: m.name, Conflictor: other.Name, Via: "conflicts"})
			}
			if conflictMatches(other.Conflicts, member{name: m.name, version: m.version, provides: m.provides}, noDepVersion) {
				reasons = append(reasons, pkgmodel.ConflictReason{Pkg: m.name, Conflictor: other.Name, Via: "conflicts"})
			}
		}
		if len(reasons) > 0 {
			out = append(out, pkgmodel.ConflictEntry{Pkg: m.name, Conflicting: reasons})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Pkg < out[j].Pkg })
	return out
}

// conflictMatches reports whether any entry in conflicts names cand by
// name or by one of cand's provides edges, satisfying the version
// constraint when present.
func conflictMatches(conflicts []pkgmodel.DepSpec, cand member, noDepVersion bool) bool {
	for _, c := range conflicts {
		if c.Name == cand.name && versionMatches(c, cand.version, noDepVersion) {
			return true
		}
		for _, p := range cand.provides {
			if c.Name == p.Name && versionMatches(c, p.Ver, noDepVersion) {
				return true
			}
		}
	}
	return false
}

func versionMatches(c pkgmodel.DepSpec, version string, noDepVersion bool) bool {
	if c.Op == pkgmodel.OpAny || noDepVersion || version == "" {
		return true
	}
	cmp := vercmp.Compare(version, c.Ver)
	switch c.Op {
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

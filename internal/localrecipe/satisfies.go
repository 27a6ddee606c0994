package localrecipe

import (
	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/vercmp"
)

// Candidate is anything a DepSpec can be checked against: a concrete
// name+version plus whatever it additionally provides.
type Candidate struct {
	Name     string
	Version  string
	Provides []pkgmodel.DepSpec
}

// Satisfies implements spec.md §3's dep-match predicate:
//
//	satisfies(dep, candidate) = name_or_provide_match(dep, candidate) &&
//	                             version_match(dep.op, candidate.version)
//
// ignoreVersion mirrors the resolver's NO_DEP_VERSION flag: when set, any
// version constraint on dep is treated as satisfied unconditionally.
func Satisfies(dep pkgmodel.DepSpec, cand Candidate, ignoreVersion bool) bool {
	matchedVersion := cand.Version
	matched := false

	if dep.Name == cand.Name {
		matched = true
	} else {
		for _, p := range cand.Provides {
			if p.Name == dep.Name {
				matched = true
				if p.Op != pkgmodel.OpAny {
					matchedVersion = p.Ver
				}
				break
			}
		}
	}
	if !matched {
		return false
	}

	if ignoreVersion || dep.Op == pkgmodel.OpAny {
		return true
	}

	return versionMatch(dep.Op, dep.Ver, matchedVersion)
}

func versionMatch(op pkgmodel.DepOp, want, have string) bool {
	cmp := vercmp.Compare(have, want)
	switch op {
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

// Package vercmp implements SPM-style version comparison:
// "[epoch:]version[-release]", compared segment-wise the way the native
// package manager orders upgrades. After the epochs compare equal, the
// version and then the release are each compared through a pure-semver
// fast path when both sides parse as strict SemVer (MAJOR.MINOR.PATCH),
// since the recipe index mostly tracks upstream tags that are already SemVer.
package vercmp

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Parsed is a decomposed SPM version string.
type Parsed struct {
	Epoch   int
	Version string
	Release string // "" when absent
}

// Parse splits "[epoch:]version[-release]" into its parts. A missing
// epoch defaults to 0; a missing release compares as less than any
// present release for an otherwise-equal version.
func Parse(raw string) Parsed {
	p := Parsed{}
	rest := raw

	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		if e, err := strconv.Atoi(rest[:idx]); err == nil {
			p.Epoch = e
			rest = rest[idx+1:]
		}
	}

	if idx := strings.LastIndexByte(rest, '-'); idx >= 0 {
		p.Version = rest[:idx]
		p.Release = rest[idx+1:]
	} else {
		p.Version = rest
	}

	return p
}

func (p Parsed) String() string {
	var b strings.Builder
	if p.Epoch != 0 {
		b.WriteString(strconv.Itoa(p.Epoch))
		b.WriteByte(':')
	}
	b.WriteString(p.Version)
	if p.Release != "" {
		b.WriteByte('-')
		b.WriteString(p.Release)
	}
	return b.String()
}

// Compare returns -1, 0, or 1 the way spec.md's "SPM-vercmp semantics"
// requires: epoch first, then version segment-wise, then release
// segment-wise.
func Compare(a, b string) int {
	pa, pb := Parse(a), Parse(b)

	if pa.Epoch != pb.Epoch {
		return cmpInt(pa.Epoch, pb.Epoch)
	}

	if c := compareSegments(pa.Version, pb.Version); c != 0 {
		return c
	}

	return compareSegments(pa.Release, pb.Release)
}

// Equal reports whether two full version strings compare equal.
func Equal(a, b string) bool { return Compare(a, b) == 0 }

// LessThan reports whether a sorts before b.
func LessThan(a, b string) bool { return Compare(a, b) < 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareSegments splits on runs of non-alphanumeric characters and digit
// boundaries, then compares segment-wise: numeric segments compare
// numerically, alphabetic segments compare lexically, and a present
// segment always outranks an absent one (so "1.2" > "1").
func compareSegments(a, b string) int {
	// Fast path: try SemVer if both sides parse without modification.
	if sa, err := semver.StrictNewVersion(a); err == nil {
		if sb, err := semver.StrictNewVersion(b); err == nil {
			return sa.Compare(sb)
		}
	}

	sa := splitSegments(a)
	sb := splitSegments(b)

	for i := 0; i < len(sa) || i < len(sb); i++ {
		if i >= len(sa) {
			return -1
		}
		if i >= len(sb) {
			return 1
		}
		if c := compareSegment(sa[i], sb[i]); c != 0 {
			return c
		}
	}
	return 0
}

func splitSegments(s string) []string {
	var segs []string
	var cur strings.Builder
	var curIsDigit bool
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, cur.String())
			cur.Reset()
		}
	}
	for i, r := range s {
		isDigit := r >= '0' && r <= '9'
		isAlnum := isDigit || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isAlnum {
			flush()
			continue
		}
		if i > 0 && cur.Len() > 0 && isDigit != curIsDigit {
			flush()
		}
		curIsDigit = isDigit
		cur.WriteRune(r)
	}
	flush()
	return segs
}

func compareSegment(a, b string) int {
	na, aErr := strconv.Atoi(a)
	nb, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return cmpInt(na, nb)
	}
	return strings.Compare(a, b)
}

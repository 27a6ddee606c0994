package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
)

// artifactNameRe parses a build driver's `--packagelist` output, matching
// `<pkgname>-<pkgver>-<pkgrel>-<arch>.<ext>` (spec.md §4.2). The name
// group is greedy so a hyphenated package name still binds correctly:
// whatever's left after peeling the trailing pkgver/pkgrel/arch/ext
// quartet off the end is the name, by construction.
var artifactNameRe = regexp.MustCompile(`^(.+)-([^-]+)-([^-]+)-([^-.]+)\.(pkg\.tar(?:\.\w+)?)$`)

// Artifact is one parsed build-output file.
type Artifact struct {
	Path    string
	PkgName string
	PkgVer  string
	PkgRel  string
	Arch    string
	Ext     string
}

// ParseArtifactName parses path's base filename into an Artifact. ok is
// false when the filename doesn't match the expected build-driver output
// shape.
func ParseArtifactName(path string) (Artifact, bool) {
	m := artifactNameRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return Artifact{}, false
	}
	return Artifact{
		Path:    path,
		PkgName: m[1],
		PkgVer:  m[2],
		PkgRel:  m[3],
		Arch:    m[4],
		Ext:     m[5],
	}, true
}

// debugSuffix is appended to a package's own name by the build driver
// when it emits a companion debug-info package (spec.md §4.2
// "Debug-artifact handling").
const debugSuffix = "-debug"

// debugParent reports the owning package name when artifactPkgName names
// a synthetic "<pkgname>-debug" companion package produced alongside
// knownPkgNames, so the pipeline can carry the parent's make/target flags
// onto it.
func debugParent(artifactPkgName string, knownPkgNames []string) (parent string, ok bool) {
	if !strings.HasSuffix(artifactPkgName, debugSuffix) {
		return "", false
	}
	base := strings.TrimSuffix(artifactPkgName, debugSuffix)
	for _, name := range knownPkgNames {
		if name == base {
			return name, true
		}
	}
	return "", false
}

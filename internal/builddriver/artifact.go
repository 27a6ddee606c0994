package builddriver

import (
	"path/filepath"
	"strings"
)

// pkgExts are the archive extensions makepkg may produce, longest first
// so ".pkg.tar.zst" isn't mistaken for ".pkg.tar" with a literal "zst"
// arch suffix.
var pkgExts = []string{
	".pkg.tar.zst", ".pkg.tar.xz", ".pkg.tar.gz", ".pkg.tar.bz2",
	".pkg.tar.lrz", ".pkg.tar.lz4", ".pkg.tar.lzo", ".pkg.tar",
}

// Artifact is one parsed `<pkgname>-<version>-<release>-<arch>.<ext>`
// build-output filename (spec.md §4.2).
type Artifact struct {
	Name    string
	Version string // pkgver component, including any "epoch:" prefix; release is separate
	Release string
	Arch    string
	Ext     string
	Path    string
}

// ParseArtifact parses path's filename into an Artifact. ok is false when
// the filename doesn't match the expected grammar (fewer than four
// dash-separated components, or an unrecognised extension).
func ParseArtifact(path string) (Artifact, bool) {
	base := filepath.Base(path)

	var ext string
	var trimmed string
	for _, e := range pkgExts {
		if strings.HasSuffix(base, e) {
			ext = strings.TrimPrefix(e, ".pkg.tar")
			if ext == "" {
				ext = "tar"
			} else {
				ext = strings.TrimPrefix(ext, ".")
			}
			trimmed = strings.TrimSuffix(base, e)
			break
		}
	}
	if trimmed == "" {
		return Artifact{}, false
	}

	parts := strings.Split(trimmed, "-")
	if len(parts) < 4 {
		return Artifact{}, false
	}

	n := len(parts)
	return Artifact{
		Name:    strings.Join(parts[:n-3], "-"),
		Version: parts[n-3],
		Release: parts[n-2],
		Arch:    parts[n-1],
		Ext:     ext,
		Path:    path,
	}, true
}

// IsDebugArtifact reports whether the package name name is a synthetic
// "<pkgname>-debug" companion (spec.md §4.2 "Debug-artifact handling"),
// returning as base the name with the "-debug" suffix removed.
func IsDebugArtifact(name string) (base string, ok bool) {
	base, ok = strings.CutSuffix(name, "-debug")
	return base, ok
}

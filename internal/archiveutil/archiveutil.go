// Package archiveutil extracts the compressed source archives a local
// recipe's source= array may reference (spec.md §4.2 review), so a
// bundled archive's contents can be listed during review instead of
// showing an opaque binary diff, without shelling out to tar.
package archiveutil

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// Format identifies a supported source-archive compression scheme.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatTarGz
	FormatTarXz
	FormatTarLz
)

// DetectFormat infers an archive's format from its filename, the same
// suffix matching a recipe's source= entries use to pick a downloader.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(lower, ".tar.lz"), strings.HasSuffix(lower, ".tlz"):
		return FormatTarLz
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	default:
		return FormatUnknown
	}
}

// Extract unpacks archivePath into destDir, stripping the first stripDirs
// leading path components of each entry (mirroring tar's --strip-components,
// for recipes that bundle a single top-level source directory per upstream
// release tag). Archive entries are rejected if they would escape destDir
// via path traversal or an absolute/escaping symlink target.
func Extract(archivePath, destDir string, stripDirs int) error {
	format := DetectFormat(archivePath)
	if format == FormatUnknown {
		return fmt.Errorf("%w: unrecognized archive format: %s", pkgmodel.ErrParse, archivePath)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open archive %s: %v", pkgmodel.ErrFetch, archivePath, err)
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case FormatTarGz:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: gzip reader for %s: %v", pkgmodel.ErrParse, archivePath, err)
		}
		defer gzr.Close()
		r = gzr
	case FormatTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: xz reader for %s: %v", pkgmodel.ErrParse, archivePath, err)
		}
		r = xzr
	case FormatTarLz:
		lzr, err := lzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: lzip reader for %s: %v", pkgmodel.ErrParse, archivePath, err)
		}
		r = lzr
	case FormatTar:
		r = f
	}

	return extractTar(tar.NewReader(r), destDir, stripDirs)
}

func extractTar(tr *tar.Reader, destDir string, stripDirs int) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read tar header: %v", pkgmodel.ErrParse, err)
		}

		cleanPath := strings.TrimPrefix(header.Name, "./")
		parts := strings.Split(cleanPath, "/")
		if len(parts) <= stripDirs {
			continue
		}
		parts = parts[stripDirs:]
		relPath := filepath.Join(parts...)
		target := filepath.Join(destDir, relPath)

		if !within(target, destDir) {
			return fmt.Errorf("%w: archive entry escapes destination: %s", pkgmodel.ErrParse, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: create directory %s: %v", pkgmodel.ErrParse, target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("%w: create parent directory for %s: %v", pkgmodel.ErrParse, target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("%w: create file %s: %v", pkgmodel.ErrParse, target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("%w: write file %s: %v", pkgmodel.ErrParse, target, err)
			}
			out.Close()
		case tar.TypeSymlink:
			if err := validateSymlink(header.Linkname, target, destDir); err != nil {
				return fmt.Errorf("%w: %v", pkgmodel.ErrParse, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("%w: create parent directory for %s: %v", pkgmodel.ErrParse, target, err)
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("%w: create symlink %s: %v", pkgmodel.ErrParse, target, err)
			}
		}
	}
	return nil
}

func within(target, base string) bool {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	return absTarget == absBase || strings.HasPrefix(absTarget, absBase+string(os.PathSeparator))
}

func validateSymlink(linkTarget, linkLocation, destDir string) error {
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("absolute symlink target not allowed: %s -> %s", linkLocation, linkTarget)
	}
	resolved := filepath.Join(filepath.Dir(linkLocation), linkTarget)
	if !within(resolved, destDir) {
		return fmt.Errorf("symlink target escapes destination: %s -> %s", linkLocation, linkTarget)
	}
	return nil
}

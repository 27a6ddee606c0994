package localrecipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// SrcinfoName is the filename the build driver's --printsrcinfo output is
// staged to within a recipe's working tree.
const SrcinfoName = ".SRCINFO"

// LoadBase parses the .SRCINFO file within dir, belonging to the named
// local recipe repository, into a pkgmodel.Base.
func LoadBase(repo, dir string) (pkgmodel.Base, error) {
	path := filepath.Join(dir, SrcinfoName)
	data, err := os.ReadFile(path)
	if err != nil {
		return pkgmodel.Base{}, fmt.Errorf("%w: read %s: %v", pkgmodel.ErrParse, path, err)
	}

	meta, pkgs, err := Parse(data, repo, dir)
	if err != nil {
		return pkgmodel.Base{}, fmt.Errorf("%w: %s", err, path)
	}

	return pkgmodel.Base{
		Kind:          pkgmodel.BaseKindLocal,
		LocalRepo:     repo,
		LocalPackages: pkgs,
		Recipe:        meta,
	}, nil
}

// DiscoverBases walks a local recipe repository's root directory, loading
// every immediate subdirectory that contains a .SRCINFO file. Subdirectories
// without one are skipped rather than treated as an error, since a repo
// root may hold non-recipe files (README, CI config).
func DiscoverBases(repo, root string) ([]pkgmodel.Base, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: read repo root %s: %v", pkgmodel.ErrParse, root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var bases []pkgmodel.Base
	for _, name := range names {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, SrcinfoName)); err != nil {
			continue
		}
		base, err := LoadBase(repo, dir)
		if err != nil {
			return nil, err
		}
		bases = append(bases, base)
	}
	return bases, nil
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cairn-pm/cairn/internal/localrecipe"
	"github.com/cairn-pm/cairn/internal/pipeline"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/spm"
)

// depChecker backs pipeline.DepChecker: a dependency is satisfied once it's
// either already installed, or present as an artifact in the local binary
// repo this batch is about to publish into (spec.md §4.2 "reject if any dep
// is unsatisfied both in the local DB and... the repo").
type depChecker struct {
	spm     *spm.Client
	repoDir string

	mu        sync.Mutex
	installed []pkgmodel.SPMPackage
	loaded    bool
}

func newDepChecker(spmClient *spm.Client, repoDir string) *depChecker {
	return &depChecker{spm: spmClient, repoDir: repoDir}
}

func (d *depChecker) Satisfied(ctx context.Context, dep pkgmodel.DepSpec, checkRepo, ignoreVersion bool) (bool, error) {
	all, err := d.installedAll(ctx)
	if err != nil {
		return false, err
	}
	for _, pkg := range all {
		cand := localrecipe.Candidate{Name: pkg.Name, Version: pkg.Version, Provides: pkg.Provides}
		if localrecipe.Satisfies(dep, cand, ignoreVersion) {
			return true, nil
		}
	}

	if checkRepo && d.repoDir != "" && d.repoHasPackage(dep.Name) {
		return true, nil
	}

	return false, nil
}

func (d *depChecker) installedAll(ctx context.Context) ([]pkgmodel.SPMPackage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return d.installed, nil
	}
	all, err := d.spm.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	d.installed = all
	d.loaded = true
	return all, nil
}

// repoHasPackage reports whether repoDir already holds an artifact for
// name, so a base this same batch already published satisfies a later
// base's dependency on it even before the SPM's sync databases catch up.
func (d *depChecker) repoHasPackage(name string) bool {
	entries, err := os.ReadDir(d.repoDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		art, ok := pipeline.ParseArtifactName(filepath.Join(d.repoDir, e.Name()))
		if ok && art.PkgName == name {
			return true
		}
	}
	return false
}

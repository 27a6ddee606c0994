package main

import (
	"context"
	"fmt"

	"github.com/cairn-pm/cairn/internal/cache"
	"github.com/cairn-pm/cairn/internal/localrecipe"
	"github.com/cairn-pm/cairn/internal/log"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
	"github.com/cairn-pm/cairn/internal/registry"
	"github.com/cairn-pm/cairn/internal/spm"
)

// dbView backs resolver.DBView (spec.md §4.1) against the three sources a
// resolve consults: the SPM's own sync/local databases, the recipe index
// (cached in-process after first fetch), and whatever local recipe
// repositories the operator pointed at with --pkgbuilds.
type dbView struct {
	ctx context.Context

	spm   *spm.Client
	index *registry.Registry
	cache *cache.Cache

	localBases []pkgmodel.Base
}

func newDBView(ctx context.Context, spmClient *spm.Client, idx *registry.Registry, c *cache.Cache, localRepos map[string]string) (*dbView, error) {
	v := &dbView{ctx: ctx, spm: spmClient, index: idx, cache: c}
	for name, root := range localRepos {
		bases, err := localrecipe.DiscoverBases(name, root)
		if err != nil {
			return nil, fmt.Errorf("discover local recipes in %s: %w", root, err)
		}
		v.localBases = append(v.localBases, bases...)
	}
	return v, nil
}

func (v *dbView) Installed(name string) (pkgmodel.SPMPackage, bool) {
	pkg, ok, err := v.spm.Query(v.ctx, name)
	if err != nil {
		log.Default().Warn("query installed package failed", "name", name, "error", err)
		return pkgmodel.SPMPackage{}, false
	}
	return pkg, ok
}

func (v *dbView) SyncPackage(name string) (pkgmodel.SPMPackage, bool) {
	pkg, ok, err := v.spm.SyncInfo(v.ctx, name)
	if err != nil {
		log.Default().Warn("sync-db lookup failed", "name", name, "error", err)
		return pkgmodel.SPMPackage{}, false
	}
	return pkg, ok
}

// SyncProvider always misses: the SPM's argv/stdout contract only resolves
// -Si by a package's own name, never by what it provides, without dumping
// every sync-db entry the SPM knows about (see DESIGN.md).
func (v *dbView) SyncProvider(dep pkgmodel.DepSpec) (pkgmodel.SPMPackage, bool) {
	return pkgmodel.SPMPackage{}, false
}

func (v *dbView) IndexBase(name string) (pkgmodel.Base, string, bool) {
	rec, ok := v.cache.GetIndexPackage(name)
	if !ok {
		if err := v.fetchIndex(name); err != nil {
			log.Default().Warn("recipe index lookup failed", "name", name, "error", err)
			return pkgmodel.Base{}, "", false
		}
		rec, ok = v.cache.GetIndexPackage(name)
		if !ok {
			return pkgmodel.Base{}, "", false
		}
	}

	if base, ok := v.cache.GetBase(rec.Base); ok {
		return base, name, true
	}

	pkgs, err := v.cache.IndexPackagesForBase(rec.Base)
	if err != nil || len(pkgs) == 0 {
		return pkgmodel.Base{}, "", false
	}
	base := pkgmodel.Base{Kind: pkgmodel.BaseKindIndex, IndexPackages: pkgs}
	if err := v.cache.PutBase(base); err != nil {
		log.Default().Warn("cache base failed", "base", rec.Base, "error", err)
	}
	return base, name, true
}

func (v *dbView) fetchIndex(name string) error {
	recs, err := v.index.Info(v.ctx, []string{name})
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := v.cache.PutIndexPackage(r); err != nil {
			return err
		}
	}
	return nil
}

// IndexProvider always misses: the recipe index's info/search RPCs resolve
// by package name only, matching the AUR's own lack of a provides-search
// endpoint (paru and yay fall back to the same name-only lookup).
func (v *dbView) IndexProvider(dep pkgmodel.DepSpec) (pkgmodel.Base, string, bool) {
	return pkgmodel.Base{}, "", false
}

func (v *dbView) LocalBase(repo, name string) (pkgmodel.Base, string, bool) {
	for _, base := range v.localBases {
		if repo != "" && base.LocalRepo != repo {
			continue
		}
		for _, pkg := range base.LocalPackages {
			if pkg.Name == name {
				return base, name, true
			}
		}
	}
	return pkgmodel.Base{}, "", false
}

func (v *dbView) LocalProvider(dep pkgmodel.DepSpec) (pkgmodel.Base, string, bool) {
	for _, base := range v.localBases {
		for _, pkg := range base.LocalPackages {
			if pkg.Name == dep.Name {
				continue
			}
			cand := localrecipe.Candidate{Name: pkg.Name, Version: pkg.Version, Provides: pkg.Provides}
			if localrecipe.Satisfies(dep, cand, false) {
				return base, pkg.Name, true
			}
		}
	}
	return pkgmodel.Base{}, "", false
}

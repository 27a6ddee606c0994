package resolver

import (
	"fmt"
	"sort"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// sortBuildOrder reorders actions.Build in place so a base precedes every
// base that depends on one of its packages (spec.md §4.1 step 6), with
// ties broken by base name for determinism.
func sortBuildOrder(actions *pkgmodel.Actions) error {
	entries := actions.Build
	if len(entries) < 2 {
		return nil
	}

	indexByName := make(map[string]int, len(entries))
	producedBy := make(map[string]string, len(entries)*2) // package name -> owning base name
	for i, e := range entries {
		indexByName[e.Base.Name()] = i
		for _, name := range e.Base.PackageNames() {
			producedBy[name] = e.Base.Name()
		}
	}

	edges := make(map[string]map[string]bool, len(entries)) // base -> set of bases it depends on
	for _, e := range entries {
		deps := map[string]bool{}
		for _, pkgName := range e.Base.PackageNames() {
			for _, d := range allDepSpecs(e.Base, pkgName) {
				if owner, ok := producedBy[d.Name]; ok && owner != e.Base.Name() {
					deps[owner] = true
				}
			}
		}
		edges[e.Base.Name()] = deps
	}

	names := make([]string, 0, len(entries))
	for name := range indexByName {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(names))
	var order []string
	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: build-order cycle: %v", pkgmodel.ErrUnresolvable, append(stack, name))
		}
		color[name] = gray
		deps := make([]string, 0, len(edges[name]))
		for dep := range edges[name] {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(stack, name)); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}

	sorted := make([]pkgmodel.BuildEntry, len(order))
	for i, name := range order {
		sorted[i] = entries[indexByName[name]]
	}
	actions.Build = sorted
	return nil
}

// allDepSpecs returns every dependency edge (depends, makedepends,
// checkdepends, optdepends) of pkgName within base, for build-order
// purposes only — an optdepend that happens to be satisfied by a sibling
// base in this batch still orders the build, even though the resolver
// itself never requires it.
func allDepSpecs(base pkgmodel.Base, pkgName string) []pkgmodel.DepSpec {
	switch base.Kind {
	case pkgmodel.BaseKindIndex:
		for _, p := range base.IndexPackages {
			if p.Name == pkgName {
				return concatDeps(p.Depends, p.MakeDepends, p.CheckDepends, p.OptDepends)
			}
		}
	case pkgmodel.BaseKindLocal:
		for _, p := range base.LocalPackages {
			if p.Name == pkgName {
				return concatDeps(p.Depends, p.MakeDepends, p.CheckDepends, p.OptDepends)
			}
		}
	}
	return nil
}

func concatDeps(lists ...[]pkgmodel.DepSpec) []pkgmodel.DepSpec {
	var out []pkgmodel.DepSpec
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

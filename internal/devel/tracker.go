// Package devel implements the develop-from-source tracker (spec.md §4.3):
// a persisted map from a recipe base to the (remote, branch, last-seen
// commit) triples it depends on, and a bounded-concurrency probe that
// detects upstream revision drift.
package devel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// fileFormat is the on-disk TOML shape; pkgmodel.Tracker's map isn't
// TOML-friendly directly (TOML wants a table array, not a Go map of
// slices keyed by arbitrary strings inside one table), so this type is the
// serialization boundary.
type fileFormat struct {
	Base []baseEntry `toml:"base"`
}

type baseEntry struct {
	Name    string         `toml:"name"`
	Remotes []remoteEntry `toml:"remote"`
}

type remoteEntry struct {
	URL    string `toml:"url"`
	Branch string `toml:"branch,omitempty"`
	Commit string `toml:"commit"`
}

// Load parses the persisted tracker file at path. A missing file returns
// an empty tracker, not an error. A malformed file fails with
// pkgmodel.ErrTrackerCorrupt rather than silently resetting.
func Load(path string) (*pkgmodel.Tracker, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pkgmodel.NewTracker(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read tracker: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	var ff fileFormat
	if _, err := toml.Decode(string(data), &ff); err != nil {
		return nil, fmt.Errorf("%w: parse tracker: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	t := pkgmodel.NewTracker()
	for _, b := range ff.Base {
		endpoints := make([]pkgmodel.RemoteEndpoint, 0, len(b.Remotes))
		for _, r := range b.Remotes {
			endpoints = append(endpoints, pkgmodel.RemoteEndpoint{
				URL:    r.URL,
				Branch: r.Branch,
				Commit: r.Commit,
			})
		}
		t.Bases[b.Name] = endpoints
	}
	return t, nil
}

// Save writes t atomically: to a sibling temp file, fsynced, then renamed
// over the live path. knownBases, when non-nil, prunes any tracker entry
// whose base name does not appear in it (spec.md §4.3 "Pruning").
func Save(path string, t *pkgmodel.Tracker, knownBases map[string]bool) error {
	names := make([]string, 0, len(t.Bases))
	for name := range t.Bases {
		if knownBases != nil && !knownBases[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var ff fileFormat
	for _, name := range names {
		endpoints := t.Bases[name]
		sort.Slice(endpoints, func(i, j int) bool {
			return endpoints[i].Key() < endpoints[j].Key()
		})
		entry := baseEntry{Name: name}
		for _, e := range endpoints {
			entry.Remotes = append(entry.Remotes, remoteEntry{
				URL:    e.URL,
				Branch: e.Branch,
				Commit: e.Commit,
			})
		}
		ff.Base = append(ff.Base, entry)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create tracker directory: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	tmp, err := os.CreateTemp(dir, ".devel.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp tracker: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(ff); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write tracker: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync tracker: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close tracker: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename tracker: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	return nil
}

// PossibleUpdates returns every base name in t whose recorded commit
// differs from current, a base -> remote-key -> live-tip-commit map
// produced by Probe.
func PossibleUpdates(t *pkgmodel.Tracker, current map[string]map[string]string) []string {
	var out []string
	for name, endpoints := range t.Bases {
		live, ok := current[name]
		if !ok {
			continue
		}
		for _, e := range endpoints {
			if tip, ok := live[e.Key()]; ok && tip != e.Commit {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

package fetcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// SeenStore persists, per recipe base, the commit last presented to the
// operator through the Fetched → Reviewed review gate (spec.md §4.2). A
// base whose current commit matches its seen entry needs no further
// review even across invocations.
type SeenStore struct {
	Commit map[string]string
}

// NewSeenStore returns an empty store.
func NewSeenStore() *SeenStore {
	return &SeenStore{Commit: map[string]string{}}
}

// MarkSeen records commit as reviewed for base.
func (s *SeenStore) MarkSeen(base, commit string) {
	s.Commit[base] = commit
}

// IsSeen reports whether commit was already reviewed for base.
func (s *SeenStore) IsSeen(base, commit string) bool {
	return s.Commit[base] == commit
}

type seenFileFormat struct {
	Base []seenEntry `toml:"base"`
}

type seenEntry struct {
	Name   string `toml:"name"`
	Commit string `toml:"commit"`
}

// LoadSeenStore parses the persisted store at path. A missing file
// returns an empty store, matching internal/devel.Load's treatment of an
// absent tracker file — first run has seen nothing yet, which is not an
// error condition.
func LoadSeenStore(path string) (*SeenStore, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewSeenStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read seen store: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	var ff seenFileFormat
	if _, err := toml.Decode(string(data), &ff); err != nil {
		return nil, fmt.Errorf("%w: parse seen store: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	s := NewSeenStore()
	for _, e := range ff.Base {
		s.Commit[e.Name] = e.Commit
	}
	return s, nil
}

// SaveSeenStore writes s atomically: to a sibling temp file, fsynced,
// then renamed over the live path, in the same shape internal/devel.Save
// uses for the develop tracker.
func SaveSeenStore(path string, s *SeenStore) error {
	names := make([]string, 0, len(s.Commit))
	for name := range s.Commit {
		names = append(names, name)
	}
	sort.Strings(names)

	var ff seenFileFormat
	for _, name := range names {
		ff.Base = append(ff.Base, seenEntry{Name: name, Commit: s.Commit[name]})
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create seen store directory: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	tmp, err := os.CreateTemp(dir, ".seen.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp seen store: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(ff); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write seen store: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync seen store: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close seen store: %v", pkgmodel.ErrTrackerCorrupt, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename seen store: %v", pkgmodel.ErrTrackerCorrupt, err)
	}
	return nil
}

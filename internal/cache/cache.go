// Package cache implements the Recipe-metadata cache described in
// spec.md §2/§3: an in-memory keyed store mapping package name -> index
// record and base name -> parsed recipe metadata. Keys are unique,
// insertion order is irrelevant, and the store grows monotonically within
// a single command invocation; it is never persisted.
//
// It is reached from exactly one goroutine (the pipeline's driving task,
// per spec.md §5's "recipe cache is mutated only from the pipeline task"),
// so no locking is required, but the implementation is still built on
// hashicorp/go-memdb so that base/name lookups get indexed access instead
// of a linear scan as the index grows across a large resolve.
package cache

import (
	"fmt"

	"github.com/hashicorp/go-memdb"

	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

const (
	tableIndexPkg = "index_pkg"
	tableBase     = "base"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableIndexPkg: {
				Name: tableIndexPkg,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
					"base": {
						Name:    "base",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "Base"},
					},
				},
			},
			tableBase: {
				Name: tableBase,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
		},
	}
}

// baseEntry is the record stored for a parsed local-recipe base.
type baseEntry struct {
	Name string
	Base pkgmodel.Base
}

// Cache is the process-lifetime recipe-metadata store.
type Cache struct {
	db *memdb.MemDB
}

// New returns an empty cache.
func New() (*Cache, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("cache: initialize store: %w", err)
	}
	return &Cache{db: db}, nil
}

// PutIndexPackage inserts or overwrites an index record keyed by name.
func (c *Cache) PutIndexPackage(p pkgmodel.IndexPackage) error {
	txn := c.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableIndexPkg, &p); err != nil {
		return fmt.Errorf("cache: insert index package %s: %w", p.Name, err)
	}
	txn.Commit()
	return nil
}

// GetIndexPackage looks up a previously-inserted index record by name.
// ok is false on a cache miss.
func (c *Cache) GetIndexPackage(name string) (pkgmodel.IndexPackage, bool) {
	txn := c.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableIndexPkg, "id", name)
	if err != nil || raw == nil {
		return pkgmodel.IndexPackage{}, false
	}
	return *raw.(*pkgmodel.IndexPackage), true
}

// IndexPackagesForBase returns every cached index package sharing a base
// name, ordered by package name (memdb's non-unique base index breaks ties
// on the primary key).
func (c *Cache) IndexPackagesForBase(base string) ([]pkgmodel.IndexPackage, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableIndexPkg, "base", base)
	if err != nil {
		return nil, fmt.Errorf("cache: query base %s: %w", base, err)
	}
	var out []pkgmodel.IndexPackage
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*pkgmodel.IndexPackage))
	}
	return out, nil
}

// PutBase inserts or overwrites a parsed local-recipe base keyed by base
// name.
func (c *Cache) PutBase(b pkgmodel.Base) error {
	name := b.Name()
	if name == "" {
		return fmt.Errorf("cache: base has no name")
	}
	txn := c.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableBase, &baseEntry{Name: name, Base: b}); err != nil {
		return fmt.Errorf("cache: insert base %s: %w", name, err)
	}
	txn.Commit()
	return nil
}

// GetBase looks up a previously-inserted parsed base by name.
func (c *Cache) GetBase(name string) (pkgmodel.Base, bool) {
	txn := c.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableBase, "id", name)
	if err != nil || raw == nil {
		return pkgmodel.Base{}, false
	}
	return raw.(*baseEntry).Base, true
}

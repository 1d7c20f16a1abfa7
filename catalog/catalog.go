package catalog

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"relcore/storage"
)

// Catalog is the system's table registry: it assigns table oids and holds
// the name -> SqlTable mapping, generalized from a table-to-file mapping to
// a table-to-DataTable one (spec.md §4.5).
type Catalog struct {
	store   *storage.BlockStore
	nextOid atomic.Uint64

	mu     sync.RWMutex
	tables map[string]*SqlTable
	byOid  map[uint64]*SqlTable
}

// NewCatalog builds an empty catalog whose tables draw blocks from store.
func NewCatalog(store *storage.BlockStore) *Catalog {
	return &Catalog{
		store:  store,
		tables: make(map[string]*SqlTable),
		byOid:  make(map[uint64]*SqlTable),
	}
}

// CreateTable registers a new table under name with the given columns, at
// storage.DefaultBlockSize (NewBlockLayout grows the block itself if the
// schema's tuple footprint exceeds that, so this is always safe; use
// CreateTableWithBlockSize to size a known-wide table's blocks up front).
func (c *Catalog) CreateTable(name string, columns []Column) (*SqlTable, error) {
	return c.CreateTableWithBlockSize(name, columns, storage.DefaultBlockSize)
}

// CreateTableWithBlockSize is CreateTable with an explicit requested block
// byte size per table, the catalog-level knob spec.md's block-sizing leaves
// to the implementation.
func (c *Catalog) CreateTableWithBlockSize(name string, columns []Column, blockSize int) (*SqlTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[name]; exists {
		return nil, errors.Errorf("catalog: table %q already exists", name)
	}
	oid := c.nextOid.Add(1)
	schema := NewSchemaWithBlockSize(name, columns, blockSize)
	dt := storage.NewDataTable(oid, schema.Layout(), c.store)
	t := NewSqlTable(oid, schema, dt)
	c.tables[name] = t
	c.byOid[oid] = t
	return t, nil
}

// Table looks up a table by name.
func (c *Catalog) Table(name string) (*SqlTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// TableByOid looks up a table by its assigned oid, used by WAL replay and
// checkpoint recovery, which only carry oids.
func (c *Catalog) TableByOid(oid uint64) (*SqlTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byOid[oid]
	return t, ok
}

// Tables returns every registered table, in no particular order.
func (c *Catalog) Tables() []*SqlTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SqlTable, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	return out
}

package storage

import (
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// BlockStore hands out fresh Blocks up to a fixed capacity and is the
// system's one authority on how many blocks exist at once (spec.md §4.1,
// "BlockStoreExhausted"). It is NOT an evicting cache: a live table block
// holding uncheckpointed tuples must never be reclaimed behind the table's
// back, so admission is gated by an atomic counter before ristretto ever
// sees the block, and ristretto's own cost ceiling is sized well above
// capacity so its admission policy can never reject or evict an entry the
// gate already approved (SPEC_FULL.md §2, DOMAIN STACK). Lookup by BlockID
// is the one thing ristretto is asked to do: a concurrent, sharded
// directory, which is exactly the shape its Get/Set path is built for.
type BlockStore struct {
	capacity uint64
	count    atomic.Uint64
	nextID   atomic.Uint64
	dir      *ristretto.Cache[uint64, *Block]
}

// NewBlockStore builds a store that will refuse to allocate a capacity+1th
// block.
func NewBlockStore(capacity uint64) (*BlockStore, error) {
	dir, err := ristretto.NewCache(&ristretto.Config[uint64, *Block]{
		NumCounters: int64(capacity)*10 + 256,
		MaxCost:     int64(capacity)*2 + 256,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "storage: building block directory")
	}
	return &BlockStore{capacity: capacity, dir: dir}, nil
}

// NewBlock allocates and registers a fresh block under layout, or returns
// ErrBlockStoreExhausted if the store is already at capacity.
func (s *BlockStore) NewBlock(layout *BlockLayout) (*Block, error) {
	for {
		cur := s.count.Load()
		if cur >= s.capacity {
			return nil, ErrBlockStoreExhausted
		}
		if s.count.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	id := BlockID(s.nextID.Add(1))
	b := newBlock(id, layout)
	s.dir.Set(uint64(id), b, 1)
	s.dir.Wait()
	return b, nil
}

// Get resolves a previously allocated BlockID to its live Block.
func (s *BlockStore) Get(id BlockID) (*Block, bool) {
	return s.dir.Get(uint64(id))
}

// Len reports how many blocks are currently allocated.
func (s *BlockStore) Len() uint64 { return s.count.Load() }

// Capacity reports the configured ceiling.
func (s *BlockStore) Capacity() uint64 { return s.capacity }

// Close releases ristretto's background goroutines.
func (s *BlockStore) Close() { s.dir.Close() }

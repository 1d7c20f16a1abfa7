package storage

import (
	"sync"
	"sync/atomic"
)

// BlockID uniquely identifies a Block within a BlockStore.
type BlockID uint64

// TupleSlot is a (block, slot-index) pair — the stable physical identity of
// a row (spec.md §3). It is the unit addressed by WAL and checkpoint
// records, so it is a plain value type rather than a live pointer.
type TupleSlot struct {
	Block BlockID
	Index uint32
}

// SlotState captures the three states a slot can be in (spec.md §3): a slot
// is free (never allocated), allocated (visible to some version), or
// deallocated (tombstoned, e.g. by an aborted insert).
type SlotState int32

const (
	SlotFree SlotState = iota
	SlotAllocated
	SlotDeallocated
)

// Block is a fixed-size collection of tuple slots under one BlockLayout.
// User-column bytes and the null bitmap live in data (row-major, one tuple
// region per slot); the version-pointer "column" is kept out-of-band as a
// parallel array of atomic pointers, since Go's GC requires typed pointers
// rather than raw bytes embedded in a buffer (SPEC_FULL.md §3).
type Block struct {
	ID     BlockID
	layout *BlockLayout
	data   []byte

	versions []atomic.Pointer[UndoRecord]
	states   []int32 // SlotState, accessed atomically

	insertHead atomic.Uint32
	mu         sync.RWMutex
}

func newBlock(id BlockID, layout *BlockLayout) *Block {
	n := layout.NumSlots()
	return &Block{
		ID:       id,
		layout:   layout,
		data:     make([]byte, layout.BlockSize()),
		versions: make([]atomic.Pointer[UndoRecord], n),
		states:   make([]int32, n),
	}
}

// Full reports whether the block has no more never-allocated slots left.
// Allocation is strictly sequential (insert_head_ monotonically advances),
// per spec.md §4.1 — deallocated slots are not recycled by the access
// strategy layer.
func (b *Block) Full() bool {
	return b.insertHead.Load() >= b.layout.NumSlots()
}

func (b *Block) slotState(i uint32) SlotState {
	return SlotState(atomic.LoadInt32(&b.states[i]))
}

func (b *Block) setSlotState(i uint32, s SlotState) {
	atomic.StoreInt32(&b.states[i], int32(s))
}

func (b *Block) tupleBytes(i uint32) []byte {
	off := b.layout.slotOffset(i)
	return b.data[off : off+b.layout.tupleSize]
}

func (b *Block) versionPtr(i uint32) *atomic.Pointer[UndoRecord] {
	return &b.versions[i]
}

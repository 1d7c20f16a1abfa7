package storage

import (
	"sync"

	"github.com/pkg/errors"
)

// DataTable binds a BlockLayout and TupleAccessStrategy to a sequence of
// blocks drawn from a shared BlockStore, and implements the MVCC
// visibility and write-conflict rules described in spec.md §4.1-§4.2. It
// tracks which blocks belong to it (the BlockStore itself only knows how
// to allocate and look blocks up by id, not which table owns which).
type DataTable struct {
	Oid    uint64
	layout *BlockLayout
	access *TupleAccessStrategy
	store  *BlockStore
	arena  *varlenArena

	mu        sync.RWMutex
	blockIDs  []BlockID
	openBlock *Block
}

// NewDataTable builds an (initially empty) table over layout, drawing
// blocks from store as rows are inserted.
func NewDataTable(oid uint64, layout *BlockLayout, store *BlockStore) *DataTable {
	return &DataTable{
		Oid:    oid,
		layout: layout,
		access: NewTupleAccessStrategy(layout),
		store:  store,
		arena:  newVarlenArena(),
	}
}

// Layout returns the table's block layout.
func (t *DataTable) Layout() *BlockLayout { return t.layout }

// InitializerForProjectedRow builds a row-buffer initializer over the given
// physical column ids, in projection-list order (spec.md §4.2).
func (t *DataTable) InitializerForProjectedRow(columnIds []uint16) *ProjectedRowInitializer {
	return NewProjectedRowInitializer(t.layout, columnIds)
}

// InitializerForProjectedColumns builds a columnar buffer initializer for
// Scan, holding up to maxTuples rows at a time.
func (t *DataTable) InitializerForProjectedColumns(columnIds []uint16, maxTuples int) *ProjectedColumnsInitializer {
	return NewProjectedColumnsInitializer(t.layout, columnIds, maxTuples)
}

// NewVarlen builds a VarlenEntry for content, inlining it when it fits in a
// cell and otherwise copying it into this table's out-of-line arena
// (SPEC_FULL.md §3).
func (t *DataTable) NewVarlen(content []byte) VarlenEntry {
	if len(content) <= VarlenInlineThreshold {
		return NewInlineVarlen(content)
	}
	handle := t.arena.put(content)
	return NewOutOfLineVarlen(handle, content, true)
}

func (t *DataTable) mustBlock(id BlockID) *Block {
	b, ok := t.store.Get(id)
	if !ok {
		panic("storage: reference to unknown block")
	}
	return b
}

// allocateSlot returns a block and freshly allocated slot index, opening a
// new block from the store once the current one fills up.
func (t *DataTable) allocateSlot() (*Block, uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openBlock != nil {
		if idx, ok := t.access.Allocate(t.openBlock); ok {
			return t.openBlock, idx, nil
		}
	}
	nb, err := t.store.NewBlock(t.layout)
	if err != nil {
		return nil, 0, err
	}
	idx, ok := t.access.Allocate(nb)
	if !ok {
		return nil, 0, errors.New("storage: freshly allocated block reports full")
	}
	t.blockIDs = append(t.blockIDs, nb.ID)
	t.openBlock = nb
	return nb, idx, nil
}

// writeRow physically encodes row's columns into (block, idx), honoring
// nulls via the access strategy's bitmap.
func (t *DataTable) writeRow(block *Block, idx uint32, row Row) {
	for i, col := range row.ColumnIds() {
		if row.IsNull(i) {
			t.access.SetNull(block, idx, col)
			continue
		}
		t.access.SetNotNull(block, idx, col)
		dst := t.access.AccessForceNotNull(block, idx, col)
		if row.IsVarlenColumn(i) {
			row.GetVarlen(i).encodeCell(dst)
		} else {
			copy(dst, row.GetFixed(i))
		}
	}
}

// readPhysical fills out with the block's current physical values for
// out's column set, ignoring the version chain entirely.
func (t *DataTable) readPhysical(block *Block, idx uint32, out Row) {
	for i, col := range out.ColumnIds() {
		if t.access.IsNull(block, idx, col) {
			out.SetNull(i)
			continue
		}
		raw := t.access.AccessForceNotNull(block, idx, col)
		if out.IsVarlenColumn(i) {
			out.SetVarlen(i, decodeVarlenCell(raw, t.arena))
		} else {
			out.SetFixed(i, raw)
		}
	}
}

// applyBeforeImage rewinds out's columns that appear in u.Before, leaving
// columns out does not share with u.Before untouched.
func (t *DataTable) applyBeforeImage(out Row, u *UndoRecord) {
	outIdx := make(map[uint16]int, out.NumColumns())
	for i, c := range out.ColumnIds() {
		outIdx[c] = i
	}
	for i, col := range u.Before.ColumnIds() {
		oi, ok := outIdx[col]
		if !ok {
			continue
		}
		if u.Before.IsNull(i) {
			out.SetNull(oi)
			continue
		}
		if u.Before.IsVarlenColumn(i) {
			out.SetVarlen(oi, u.Before.GetVarlen(i))
		} else {
			out.SetFixed(oi, u.Before.GetFixed(i))
		}
	}
}

// fillVisible materializes the version of (block, idx) visible to txn into
// out, walking the undo chain newest-to-oldest (spec.md §4.2 Select). It
// reports false if no version of the slot is visible to txn.
func (t *DataTable) fillVisible(txn Txn, block *Block, idx uint32, out Row) bool {
	t.readPhysical(block, idx, out)

	cur := block.versionPtr(idx).Load()
	for cur != nil {
		if cur.IsVisibleTo(txn.StartTime(), txn.TxnID()) {
			return true
		}
		if cur.Kind == UndoInsert {
			// Nothing existed before this insert; walking further would
			// dereference a nil before-image.
			return false
		}
		t.applyBeforeImage(out, cur)
		cur = cur.Next()
	}
	return false
}

// Insert writes row into a freshly allocated slot, stages an undo record
// recording the insert, and stages a redo record for the WAL (spec.md §4.2,
// §4.3).
func (t *DataTable) Insert(txn Txn, row *ProjectedRow) (TupleSlot, error) {
	block, idx, err := t.allocateSlot()
	if err != nil {
		return TupleSlot{}, err
	}
	t.writeRow(block, idx, row)
	slot := TupleSlot{Block: block.ID, Index: idx}

	undo := newUndoRecord(txn, UndoInsert, slot, t, nil)
	block.versionPtr(idx).Store(undo)
	txn.StageUndo(undo)
	txn.StageWrite(t.Oid, slot, RedoInsert, row.Clone())

	return slot, nil
}

// Select materializes the version of slot visible to txn into out, whose
// column set determines which columns are read. Returns ErrSlotNotVisible
// if the slot was never allocated or no version is visible to txn.
func (t *DataTable) Select(txn Txn, slot TupleSlot, out *ProjectedRow) error {
	block, ok := t.store.Get(slot.Block)
	if !ok || slot.Index >= block.layout.NumSlots() {
		return ErrSlotNotVisible
	}
	idx := slot.Index
	if block.slotState(idx) == SlotFree {
		return ErrSlotNotVisible
	}
	if t.fillVisible(txn, block, idx, out) {
		return nil
	}
	return ErrSlotNotVisible
}

// Update applies row's columns to slot under first-writer-wins semantics:
// it succeeds only if the version-chain head is committed at or before
// txn's start time, or is already owned by txn (spec.md §4.2, §5
// invariants). Any other head yields ErrWriteConflict and leaves the slot
// untouched.
func (t *DataTable) Update(txn Txn, slot TupleSlot, row *ProjectedRow) error {
	block, ok := t.store.Get(slot.Block)
	if !ok || slot.Index >= block.layout.NumSlots() {
		return ErrSlotNotVisible
	}
	idx := slot.Index
	if block.slotState(idx) != SlotAllocated {
		return ErrSlotNotVisible
	}
	vp := block.versionPtr(idx)

	for {
		head := vp.Load()
		if head != nil {
			ts := head.CommitTs()
			visibleToUs := ts != Uncommitted && ts <= txn.StartTime()
			ownedByUs := ts == Uncommitted && head.Owner != nil && head.Owner.TxnID() == txn.TxnID()
			if !visibleToUs && !ownedByUs {
				return ErrWriteConflict
			}
		}

		before := t.captureBeforeImage(block, idx, row)
		undo := newUndoRecord(txn, UndoUpdate, slot, t, before)
		undo.next.Store(head)
		if !vp.CompareAndSwap(head, undo) {
			continue // lost the race; re-check the new head
		}

		t.writeRow(block, idx, row)
		txn.StageUndo(undo)
		txn.StageWrite(t.Oid, slot, RedoUpdate, row.Clone())
		return nil
	}
}

// captureBeforeImage snapshots the current physical values of row's columns
// at (block, idx), before row's new values are written.
func (t *DataTable) captureBeforeImage(block *Block, idx uint32, row *ProjectedRow) *ProjectedRow {
	before := row.Clone()
	t.readPhysical(block, idx, before)
	return before
}

// ScanCursor tracks position between successive Scan calls over one table.
type ScanCursor struct {
	blockPos int
	slot     uint32
}

// NewScanCursor returns a cursor positioned at the start of the table.
func (t *DataTable) NewScanCursor() *ScanCursor { return &ScanCursor{} }

// Scan fills out with up to out.MaxTuples() rows visible to txn, resuming
// from cursor and advancing it in place (spec.md §4.2). A caller drains a
// table by calling Scan repeatedly until out.NumTuples() comes back 0.
func (t *DataTable) Scan(txn Txn, cursor *ScanCursor, out *ProjectedColumns) error {
	out.Reset()

	t.mu.RLock()
	blockIDs := append([]BlockID(nil), t.blockIDs...)
	t.mu.RUnlock()

	scratchInit := NewProjectedRowInitializer(t.layout, out.ColumnIds())

	for cursor.blockPos < len(blockIDs) {
		block := t.mustBlock(blockIDs[cursor.blockPos])
		head := block.insertHead.Load()

		for cursor.slot < head {
			idx := cursor.slot
			cursor.slot++
			if block.slotState(idx) != SlotAllocated {
				continue
			}

			scratch := scratchInit.InitializeRow()
			if !t.fillVisible(txn, block, idx, scratch) {
				continue
			}
			view := out.appendRow(TupleSlot{Block: block.ID, Index: idx})
			copyRow(view, scratch)

			if out.NumTuples() >= out.MaxTuples() {
				return nil
			}
		}
		cursor.blockPos++
		cursor.slot = 0
	}
	return nil
}

func copyRow(dst, src Row) {
	for i := 0; i < src.NumColumns(); i++ {
		if src.IsNull(i) {
			dst.SetNull(i)
			continue
		}
		if src.IsVarlenColumn(i) {
			dst.SetVarlen(i, src.GetVarlen(i))
		} else {
			dst.SetFixed(i, src.GetFixed(i))
		}
	}
}

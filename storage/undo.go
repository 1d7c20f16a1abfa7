package storage

import "sync/atomic"

// Uncommitted is the commit-timestamp sentinel meaning "owned by the
// creating transaction, not yet committed" (spec.md §3 UndoRecord). The
// design notes (§9) call out that the tagged-variant semantics, not this
// particular integer, are the real contract.
const Uncommitted uint64 = ^uint64(0)

// UndoKind distinguishes an insert's undo record (whose before-image is a
// logical "deleted" marker) from an update's (whose before-image is the
// prior column values).
type UndoKind uint8

const (
	UndoInsert UndoKind = iota
	UndoUpdate
)

// UndoRecord is one entry in the singly-linked version chain reachable from
// a TupleSlot's version pointer (spec.md §3). It is owned by the
// transaction that produced it until the garbage collector unlinks and then
// deallocates it.
type UndoRecord struct {
	Owner Txn
	Kind  UndoKind
	Slot  TupleSlot
	table *DataTable

	// Before is the before-image of the modified columns for UndoUpdate, or
	// nil for UndoInsert (there is no prior state to restore — abort simply
	// deallocates the slot).
	Before *ProjectedRow

	commitTs atomic.Uint64
	next     atomic.Pointer[UndoRecord]
}

func newUndoRecord(owner Txn, kind UndoKind, slot TupleSlot, table *DataTable, before *ProjectedRow) *UndoRecord {
	u := &UndoRecord{Owner: owner, Kind: kind, Slot: slot, table: table, Before: before}
	u.commitTs.Store(Uncommitted)
	return u
}

// CommitTs returns the record's commit timestamp, or Uncommitted.
func (u *UndoRecord) CommitTs() uint64 { return u.commitTs.Load() }

// Next returns the next-older record in the chain, or nil.
func (u *UndoRecord) Next() *UndoRecord { return u.next.Load() }

// Publish atomically stamps the record with its owning transaction's commit
// timestamp — the single atomic publication spec.md §4.3 describes. Called
// by TransactionManager.Commit for every undo record the committing
// transaction staged.
func (u *UndoRecord) Publish(commitTime uint64) { u.commitTs.Store(commitTime) }

// IsVisibleTo reports whether this version, if reached while walking the
// chain, defines the as-of image for a reader with the given start time
// and identity (spec.md §4.2 Select): committed at or before start, or
// owned by the reader itself.
func (u *UndoRecord) IsVisibleTo(startTime, readerTxnID uint64) bool {
	ts := u.commitTs.Load()
	if ts == Uncommitted {
		return u.Owner != nil && u.Owner.TxnID() == readerTxnID
	}
	return ts <= startTime
}

// Restore rewinds this record's effect on the physical slot, called by
// TransactionManager.Abort. For an update it writes the before-image
// columns back in place; for an insert it deallocates the slot outright.
// In both cases it unlinks itself from the version chain.
func (u *UndoRecord) Restore() {
	block := u.table.mustBlock(u.Slot.Block)
	idx := u.Slot.Index

	switch u.Kind {
	case UndoInsert:
		u.table.access.Deallocate(block, idx)
	case UndoUpdate:
		for i, col := range u.Before.ColumnIds() {
			if u.Before.IsNull(i) {
				u.table.access.SetNull(block, idx, col)
				continue
			}
			u.table.access.SetNotNull(block, idx, col)
			if u.Before.IsVarlenColumn(i) {
				dst := u.table.access.AccessForceNotNull(block, idx, col)
				u.Before.GetVarlen(i).encodeCell(dst)
			} else {
				dst := u.table.access.AccessForceNotNull(block, idx, col)
				copy(dst, u.Before.GetFixed(i))
			}
		}
	}

	vp := block.versionPtr(idx)
	vp.CompareAndSwap(u, u.next.Load())
}

// Unlink detaches everything strictly older than u, returning the detached
// chain head. Called by the garbage collector once u is known to be the
// oldest version any active reader could still need (spec.md §4.4).
func (u *UndoRecord) Unlink() *UndoRecord {
	return u.next.Swap(nil)
}

// ReleaseResources frees any out-of-line varlen buffers this record's
// before-image exclusively owned. Safe to call once the record is no
// longer reachable from any version chain.
func (u *UndoRecord) ReleaseResources() {
	if u.Before == nil || u.table == nil {
		return
	}
	for i := range u.Before.ColumnIds() {
		if !u.Before.IsVarlenColumn(i) {
			continue
		}
		v := u.Before.GetVarlen(i)
		if v.Reclaimable() {
			u.table.arena.release(v.Handle())
		}
	}
}

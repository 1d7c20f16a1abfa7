// Package txn implements transaction lifecycle management over the
// storage package's MVCC primitives: beginning a transaction, staging
// redo/undo records as it writes, and committing or aborting it (spec.md
// §4.2, §4.3).
package txn

import (
	"sync"

	"relcore/storage"
)

// Context is one transaction's private state: the timestamps that gate
// visibility and write conflicts, and the redo/undo records it has staged
// so far. It implements storage.Txn, which is the only surface the
// storage package sees of it.
type Context struct {
	startTime uint64
	txnID     uint64

	mu          sync.Mutex
	redoBuffer  []*storage.RedoRecord
	undoRecords []*storage.UndoRecord
	finished    bool
}

var _ storage.Txn = (*Context)(nil)

// StartTime is the snapshot timestamp assigned at BeginTransaction; Select
// calls use it to decide which undo-chain version is visible.
func (c *Context) StartTime() uint64 { return c.startTime }

// TxnID identifies this transaction for ownership checks against
// uncommitted undo records. It is assigned from the same counter as
// StartTime, per spec.md §3's note that the two may coincide.
func (c *Context) TxnID() uint64 { return c.txnID }

// StageWrite reserves a RedoRecord in this transaction's private buffer,
// called by DataTable as part of Insert/Update (spec.md §4.3).
func (c *Context) StageWrite(tableOid uint64, slot storage.TupleSlot, kind storage.RedoRecordKind, row *storage.ProjectedRow) *storage.RedoRecord {
	rec := &storage.RedoRecord{Kind: kind, TableOid: tableOid, Slot: slot, Row: row}
	c.mu.Lock()
	c.redoBuffer = append(c.redoBuffer, rec)
	c.mu.Unlock()
	return rec
}

// StageUndo records u as one this transaction owns, so Abort can walk and
// restore them without scanning every table's version chains.
func (c *Context) StageUndo(u *storage.UndoRecord) {
	c.mu.Lock()
	c.undoRecords = append(c.undoRecords, u)
	c.mu.Unlock()
}

// RedoRecords returns the staged after-images, in staging order, for the
// LogManager to serialize on commit.
func (c *Context) RedoRecords() []*storage.RedoRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*storage.RedoRecord(nil), c.redoBuffer...)
}

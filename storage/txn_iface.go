package storage

// Txn is the slice of transaction state the storage layer needs to make
// visibility and write-conflict decisions. The full transaction lifecycle
// (begin/commit/abort, staged redo buffers) lives in package txn; this
// interface exists so package storage never imports it, avoiding an import
// cycle (txn depends on storage for DataTable/ProjectedRow).
type Txn interface {
	// StartTime is the timestamp assigned at BeginTransaction.
	StartTime() uint64
	// TxnID identifies the transaction for ownership checks against
	// uncommitted undo records. Implementations may equal StartTime.
	TxnID() uint64
	// StageWrite reserves space in the transaction's private redo buffer for
	// an after-image (spec.md §4.3 TransactionManager.StageWrite), called by
	// DataTable as part of Insert/Update.
	StageWrite(tableOid uint64, slot TupleSlot, kind RedoRecordKind, row *ProjectedRow) *RedoRecord
	// StageUndo links a freshly created UndoRecord into the transaction's
	// owned list, so Abort can walk and restore them without consulting the
	// version chain of every table in the system.
	StageUndo(u *UndoRecord)
}

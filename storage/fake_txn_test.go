package storage

import "sync"

// fakeTxn is the minimal storage.Txn implementation the storage package's
// own tests drive directly, standing in for the real txn.Context (which
// lives in package txn and would import storage, so cannot be used here).
type fakeTxn struct {
	start uint64
	id    uint64

	mu    sync.Mutex
	undos []*UndoRecord
}

func newFakeTxn(ts uint64) *fakeTxn { return &fakeTxn{start: ts, id: ts} }

func (f *fakeTxn) StartTime() uint64 { return f.start }
func (f *fakeTxn) TxnID() uint64     { return f.id }

func (f *fakeTxn) StageWrite(tableOid uint64, slot TupleSlot, kind RedoRecordKind, row *ProjectedRow) *RedoRecord {
	return &RedoRecord{Kind: kind, TableOid: tableOid, Slot: slot, Row: row}
}

func (f *fakeTxn) StageUndo(u *UndoRecord) {
	f.mu.Lock()
	f.undos = append(f.undos, u)
	f.mu.Unlock()
}

func (f *fakeTxn) commit(commitTs uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.undos {
		u.Publish(commitTs)
	}
}

func (f *fakeTxn) abort() {
	f.mu.Lock()
	recs := append([]*UndoRecord(nil), f.undos...)
	f.mu.Unlock()
	for i := len(recs) - 1; i >= 0; i-- {
		recs[i].Restore()
	}
}

var _ Txn = (*fakeTxn)(nil)

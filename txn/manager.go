package txn

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"relcore/storage"
	"relcore/wal"
)

// Manager owns the transaction lifecycle: beginning transactions off a
// monotonic logical clock, committing them (WAL durability then undo-chain
// publication), and aborting them (undo-chain rewind), per spec.md §4.3.
// The same clock produces both start timestamps and commit timestamps, so
// a transaction's own start time and its eventual commit time are always
// comparable.
type Manager struct {
	clock atomic.Uint64

	mu     sync.RWMutex
	active map[uint64]*Context

	log *wal.LogManager
}

// NewManager builds a Manager that durably logs through log.
func NewManager(log *wal.LogManager) *Manager {
	return &Manager{active: make(map[uint64]*Context), log: log}
}

// BeginTransaction assigns a fresh start timestamp and registers the
// transaction as active.
func (m *Manager) BeginTransaction() *Context {
	m.mu.Lock()
	ts := m.clock.Add(1)
	ctx := &Context{startTime: ts, txnID: ts}
	m.active[ts] = ctx
	m.mu.Unlock()
	return ctx
}

// Commit serializes ctx's staged redo records to the WAL, blocks until
// that log is durable, and only then publishes ctx's undo records with a
// freshly assigned commit timestamp — the point at which ctx's writes
// become visible to other transactions (spec.md §4.3).
func (m *Manager) Commit(ctx *Context) error {
	if ctx.finished {
		return errors.New("txn: transaction already finished")
	}

	for _, rec := range ctx.RedoRecords() {
		kind := wal.KindInsert
		if rec.Kind == storage.RedoUpdate {
			kind = wal.KindUpdate
		}
		entry := &wal.Record{Kind: kind, TxnID: ctx.TxnID(), TableOid: rec.TableOid, Slot: rec.Slot, Row: rec.Row}
		if err := m.log.Append(entry); err != nil {
			return errors.Wrap(err, "txn: appending redo record")
		}
	}

	commitTs := m.clock.Add(1)
	if err := m.log.Commit(ctx.TxnID(), commitTs); err != nil {
		return errors.Wrap(err, "txn: WAL commit")
	}

	ctx.mu.Lock()
	for _, u := range ctx.undoRecords {
		u.Publish(commitTs)
	}
	ctx.finished = true
	ctx.mu.Unlock()

	m.mu.Lock()
	delete(m.active, ctx.startTime)
	m.mu.Unlock()
	return nil
}

// Abort rewinds every undo record ctx staged, most recently created first
// (so a transaction that updated the same slot twice unwinds in the
// correct order), and drops ctx from the active set.
func (m *Manager) Abort(ctx *Context) error {
	if ctx.finished {
		return errors.New("txn: transaction already finished")
	}

	ctx.mu.Lock()
	records := append([]*storage.UndoRecord(nil), ctx.undoRecords...)
	ctx.finished = true
	ctx.mu.Unlock()

	for i := len(records) - 1; i >= 0; i-- {
		records[i].Restore()
	}

	m.mu.Lock()
	delete(m.active, ctx.startTime)
	m.mu.Unlock()
	return nil
}

// OldestActiveStartTime reports the minimum start time among currently
// active transactions, or the current clock value if none are active —
// the garbage collector's watermark (spec.md §4.4).
func (m *Manager) OldestActiveStartTime() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	watermark := m.clock.Load()
	for _, ctx := range m.active {
		if ctx.startTime < watermark {
			watermark = ctx.startTime
		}
	}
	return watermark
}

// ActiveCount reports how many transactions are currently active.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

package txn

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relcore/storage"
	"relcore/wal"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wal.log")
	log, err := wal.NewLogManager(path, 2*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { log.Shutdown() })
	return NewManager(log)
}

func newTestTable(t *testing.T) *storage.DataTable {
	t.Helper()
	layout := storage.NewBlockLayout([]uint8{4}, storage.DefaultBlockSize)
	store, err := storage.NewBlockStore(16)
	require.NoError(t, err)
	return storage.NewDataTable(1, layout, store)
}

func TestCommitPublishesWritesVisibleToLaterTransactions(t *testing.T) {
	tm := newTestManager(t)
	table := newTestTable(t)
	init := table.InitializerForProjectedRow([]uint16{storage.FirstUserColumn})

	writer := tm.BeginTransaction()
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	require.NoError(t, tm.Commit(writer))

	reader := tm.BeginTransaction()
	out := init.InitializeRow()
	require.NoError(t, table.Select(reader, slot, out))
	require.Equal(t, []byte{1, 0, 0, 0}, out.GetFixed(0))
}

func TestAbortRewindsWritesAndDropsFromActiveSet(t *testing.T) {
	tm := newTestManager(t)
	table := newTestTable(t)
	init := table.InitializerForProjectedRow([]uint16{storage.FirstUserColumn})

	writer := tm.BeginTransaction()
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	require.NoError(t, tm.Abort(writer))

	reader := tm.BeginTransaction()
	out := init.InitializeRow()
	err = table.Select(reader, slot, out)
	require.ErrorIs(t, err, storage.ErrSlotNotVisible)
}

func TestCommitAfterFinishIsRejected(t *testing.T) {
	tm := newTestManager(t)
	ctx := tm.BeginTransaction()
	require.NoError(t, tm.Commit(ctx))
	require.Error(t, tm.Commit(ctx))
}

func TestAbortAfterCommitIsRejected(t *testing.T) {
	tm := newTestManager(t)
	ctx := tm.BeginTransaction()
	require.NoError(t, tm.Commit(ctx))
	require.Error(t, tm.Abort(ctx))
}

func TestOldestActiveStartTimeTracksWatermark(t *testing.T) {
	tm := newTestManager(t)

	a := tm.BeginTransaction()
	b := tm.BeginTransaction()
	require.Equal(t, a.StartTime(), tm.OldestActiveStartTime())

	require.NoError(t, tm.Commit(a))
	require.Equal(t, b.StartTime(), tm.OldestActiveStartTime())

	require.NoError(t, tm.Commit(b))
	require.Equal(t, 0, tm.ActiveCount())
}

func TestActiveCountReflectsOpenTransactions(t *testing.T) {
	tm := newTestManager(t)
	require.Equal(t, 0, tm.ActiveCount())

	ctx := tm.BeginTransaction()
	require.Equal(t, 1, tm.ActiveCount())

	require.NoError(t, tm.Commit(ctx))
	require.Equal(t, 0, tm.ActiveCount())
}

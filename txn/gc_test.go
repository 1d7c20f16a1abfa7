package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relcore/storage"
)

func TestGarbageCollectorUnlinksVersionsOlderThanWatermark(t *testing.T) {
	tm := newTestManager(t)
	table := newTestTable(t)
	init := table.InitializerForProjectedRow([]uint16{storage.FirstUserColumn})
	gc := NewGarbageCollector(tm, 0)
	gc.Register(table)

	writer := tm.BeginTransaction()
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	require.NoError(t, tm.Commit(writer))

	updater := tm.BeginTransaction()
	newRow := init.InitializeRow()
	newRow.SetFixed(0, []byte{2, 0, 0, 0})
	require.NoError(t, table.Update(updater, slot, newRow))
	require.NoError(t, tm.Commit(updater))

	// No active readers remain, so the watermark has advanced past both
	// versions and the insert's now-superseded undo record is reclaimable.
	unlinked := gc.RunOnce()
	require.GreaterOrEqual(t, unlinked, 1)

	reader := tm.BeginTransaction()
	out := init.InitializeRow()
	require.NoError(t, table.Select(reader, slot, out))
	require.Equal(t, []byte{2, 0, 0, 0}, out.GetFixed(0))
}

func TestGarbageCollectorKeepsVersionsNeededByActiveReader(t *testing.T) {
	tm := newTestManager(t)
	table := newTestTable(t)
	init := table.InitializerForProjectedRow([]uint16{storage.FirstUserColumn})
	gc := NewGarbageCollector(tm, 0)
	gc.Register(table)

	writer := tm.BeginTransaction()
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	require.NoError(t, tm.Commit(writer))

	// A long-running reader started before the next update must keep
	// seeing the original value even after a GC pass.
	reader := tm.BeginTransaction()

	updater := tm.BeginTransaction()
	newRow := init.InitializeRow()
	newRow.SetFixed(0, []byte{2, 0, 0, 0})
	require.NoError(t, table.Update(updater, slot, newRow))
	require.NoError(t, tm.Commit(updater))

	gc.RunOnce()

	out := init.InitializeRow()
	require.NoError(t, table.Select(reader, slot, out))
	require.Equal(t, []byte{1, 0, 0, 0}, out.GetFixed(0))
}

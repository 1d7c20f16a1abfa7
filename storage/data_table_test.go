package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, attrSizes []uint8) *DataTable {
	t.Helper()
	layout := NewBlockLayout(attrSizes, DefaultBlockSize)
	store, err := NewBlockStore(64)
	require.NoError(t, err)
	return NewDataTable(1, layout, store)
}

func TestInsertVisibleToCommittingTxnImmediately(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	init := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(10)
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)

	// Uncommitted but same transaction reads its own write.
	out := init.InitializeRow()
	require.NoError(t, table.Select(writer, slot, out))
	require.Equal(t, []byte{1, 0, 0, 0}, out.GetFixed(0))
}

func TestSelectRespectsSnapshotIsolation(t *testing.T) {
	table := newTestTable(t, []uint8{4, Varlen})
	init := table.InitializerForProjectedRow([]uint16{FirstUserColumn, FirstUserColumn + 1})

	writer := newFakeTxn(10)
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	row.SetVarlen(1, table.NewVarlen([]byte("hello")))
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	writer.commit(11)

	// A reader whose snapshot predates the commit must not see the row.
	earlyReader := newFakeTxn(5)
	out := init.InitializeRow()
	err = table.Select(earlyReader, slot, out)
	require.ErrorIs(t, err, ErrSlotNotVisible)

	// A reader started after the commit sees it.
	lateReader := newFakeTxn(20)
	out2 := init.InitializeRow()
	require.NoError(t, table.Select(lateReader, slot, out2))
	require.Equal(t, []byte{1, 0, 0, 0}, out2.GetFixed(0))
	require.Equal(t, []byte("hello"), out2.GetVarlen(1).Content())
}

func TestUpdateFirstWriterWins(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	init := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	row := init.InitializeRow()
	row.SetFixed(0, []byte{0, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	writer.commit(2)

	txnA := newFakeTxn(10)
	txnB := newFakeTxn(11)

	updateRow := init.InitializeRow()
	updateRow.SetFixed(0, []byte{1, 0, 0, 0})
	require.NoError(t, table.Update(txnA, slot, updateRow))

	// txnB sees the chain head owned (uncommitted) by txnA: conflict.
	err = table.Update(txnB, slot, updateRow)
	require.ErrorIs(t, err, ErrWriteConflict)

	txnA.commit(12)

	// Once txnA's update is committed, a fresh transaction may update it.
	txnC := newFakeTxn(20)
	require.NoError(t, table.Update(txnC, slot, updateRow))
}

func TestUpdateAllowsSameTransactionToRetouchItsOwnWrite(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	init := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	row := init.InitializeRow()
	row.SetFixed(0, []byte{0, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	writer.commit(2)

	txn := newFakeTxn(10)
	first := init.InitializeRow()
	first.SetFixed(0, []byte{1, 0, 0, 0})
	require.NoError(t, table.Update(txn, slot, first))

	second := init.InitializeRow()
	second.SetFixed(0, []byte{2, 0, 0, 0})
	require.NoError(t, table.Update(txn, slot, second))
}

func TestAbortRewindsUpdate(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	init := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	row := init.InitializeRow()
	row.SetFixed(0, []byte{7, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	writer.commit(2)

	updater := newFakeTxn(10)
	newRow := init.InitializeRow()
	newRow.SetFixed(0, []byte{9, 0, 0, 0})
	require.NoError(t, table.Update(updater, slot, newRow))
	updater.abort()

	reader := newFakeTxn(20)
	out := init.InitializeRow()
	require.NoError(t, table.Select(reader, slot, out))
	require.Equal(t, []byte{7, 0, 0, 0}, out.GetFixed(0))
}

func TestAbortUnwindsDoubleUpdateInReverseOrder(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	init := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	writer.commit(2)

	updater := newFakeTxn(10)
	second := init.InitializeRow()
	second.SetFixed(0, []byte{2, 0, 0, 0})
	require.NoError(t, table.Update(updater, slot, second))
	third := init.InitializeRow()
	third.SetFixed(0, []byte{3, 0, 0, 0})
	require.NoError(t, table.Update(updater, slot, third))
	updater.abort()

	reader := newFakeTxn(20)
	out := init.InitializeRow()
	require.NoError(t, table.Select(reader, slot, out))
	require.Equal(t, []byte{1, 0, 0, 0}, out.GetFixed(0))
}

func TestAbortRewindsInsertToInvisible(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	init := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	row := init.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)
	writer.abort()

	reader := newFakeTxn(100)
	out := init.InitializeRow()
	err = table.Select(reader, slot, out)
	require.ErrorIs(t, err, ErrSlotNotVisible)
}

func TestSelectOnUnallocatedSlotIsNotVisible(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	reader := newFakeTxn(1)
	out := table.InitializerForProjectedRow([]uint16{FirstUserColumn}).InitializeRow()
	err := table.Select(reader, TupleSlot{Block: 999, Index: 0}, out)
	require.Error(t, err)
}

func TestUpdateOnUnallocatedSlotIsRejected(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	layout := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	row := layout.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	slot, err := table.Insert(writer, row)
	require.NoError(t, err)

	bogus := slot
	bogus.Index = slot.Index + 1000
	err = table.Update(writer, bogus, row)
	require.ErrorIs(t, err, ErrSlotNotVisible)
}

func TestScanDrainsAllCommittedRowsAcrossPages(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	rowInit := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	const n = 7
	for i := 0; i < n; i++ {
		row := rowInit.InitializeRow()
		row.SetFixed(0, []byte{byte(i), 0, 0, 0})
		_, err := table.Insert(writer, row)
		require.NoError(t, err)
	}
	writer.commit(2)

	reader := newFakeTxn(10)
	colsInit := table.InitializerForProjectedColumns([]uint16{FirstUserColumn}, 3)
	cursor := table.NewScanCursor()

	total := 0
	seen := make(map[byte]bool)
	for {
		buf := colsInit.Initialize()
		require.NoError(t, table.Scan(reader, cursor, buf))
		if buf.NumTuples() == 0 {
			break
		}
		for i := 0; i < buf.NumTuples(); i++ {
			view := buf.RowView(i)
			seen[view.GetFixed(0)[0]] = true
		}
		total += buf.NumTuples()
	}
	require.Equal(t, n, total)
	require.Len(t, seen, n)
}

func TestScanHidesRowsNotYetVisible(t *testing.T) {
	table := newTestTable(t, []uint8{4})
	rowInit := table.InitializerForProjectedRow([]uint16{FirstUserColumn})

	writer := newFakeTxn(1)
	row := rowInit.InitializeRow()
	row.SetFixed(0, []byte{1, 0, 0, 0})
	_, err := table.Insert(writer, row)
	require.NoError(t, err)
	// Left uncommitted.

	reader := newFakeTxn(5)
	colsInit := table.InitializerForProjectedColumns([]uint16{FirstUserColumn}, 10)
	cursor := table.NewScanCursor()
	buf := colsInit.Initialize()
	require.NoError(t, table.Scan(reader, cursor, buf))
	require.Equal(t, 0, buf.NumTuples())
}

package engine

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relcore/catalog"
	"relcore/storage"
)

func testConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	cfg.WALFlushInterval = 2 * time.Millisecond
	cfg.GCInterval = 10 * time.Millisecond
	cfg.CheckpointInterval = time.Hour // don't race the test with a background checkpoint
	return cfg
}

func usersColumns() []catalog.Column {
	return []catalog.Column{
		{Name: "id", Type: catalog.TypeInteger},
		{Name: "name", Type: catalog.TypeVarchar},
	}
}

func TestEngineOpenCreateTableInsertSelect(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(testConfig(dir))
	require.NoError(t, err)
	defer e.Close()

	table, err := e.CreateTable("users", usersColumns())
	require.NoError(t, err)

	ctx := e.Begin()
	row := table.NewRow()
	require.NoError(t, table.SetValue(row, "id", int32(1)))
	require.NoError(t, table.SetValue(row, "name", "ada"))
	slot, err := table.Insert(ctx, row)
	require.NoError(t, err)
	require.NoError(t, e.Commit(ctx))

	reader := e.Begin()
	out := table.NewRow()
	require.NoError(t, table.Select(reader, slot, out))
	name, err := table.GetValue(out, "name")
	require.NoError(t, err)
	require.Equal(t, "ada", name)
}

func TestEngineRecoverAfterReopen(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(testConfig(dir))
	require.NoError(t, err)
	table, err := e.CreateTable("users", usersColumns())
	require.NoError(t, err)

	ctx := e.Begin()
	row := table.NewRow()
	require.NoError(t, table.SetValue(row, "id", int32(1)))
	require.NoError(t, table.SetValue(row, "name", "grace"))
	_, err = table.Insert(ctx, row)
	require.NoError(t, err)
	require.NoError(t, e.Commit(ctx))
	require.NoError(t, e.Close())

	e2, err := Open(testConfig(dir))
	require.NoError(t, err)
	defer e2.Close()
	table2, err := e2.CreateTable("users", usersColumns())
	require.NoError(t, err)

	result, err := e2.Recover()
	require.NoError(t, err)
	require.Equal(t, 1, result.TuplesRecovered+result.LogRecordsApplied)

	reader := e2.Begin()
	cursor := table2.NewScanCursor()
	init := table2.Table().InitializerForProjectedColumns(table2.Schema().ColumnIds(), 10)
	buf := init.Initialize()
	require.NoError(t, table2.Scan(reader, cursor, buf))
	require.Equal(t, 1, buf.NumTuples())
}

func TestDefaultConfigUsesDataDir(t *testing.T) {
	cfg := DefaultConfig(filepath.Join("some", "dir"))
	require.Equal(t, filepath.Join("some", "dir"), cfg.DataDir)
	require.Greater(t, cfg.BlockCapacity, uint64(0))
}

// TestConcurrentUpdateSelectWorkloadWithLoggingGCAndCheckpointing runs four
// worker goroutines updating and selecting a shared set of rows while the
// engine's own background WAL flush and GC loops run, and a fifth goroutine
// forces extra checkpoints concurrently with the writers. It asserts only
// that every update lands (no lost updates under first-writer-wins
// conflict retry) and that nothing the background tasks do corrupts a
// concurrent reader's view.
func TestConcurrentUpdateSelectWorkloadWithLoggingGCAndCheckpointing(t *testing.T) {
	const (
		rowCount        = 8
		workers         = 4
		itersPerWorker  = 200
		checkpointCycle = 4 * time.Millisecond
	)

	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.GCInterval = 3 * time.Millisecond
	cfg.CheckpointInterval = time.Hour // driven by hand below instead
	e, err := Open(cfg)
	require.NoError(t, err)
	defer e.Close()

	table, err := e.CreateTable("counters", []catalog.Column{
		{Name: "id", Type: catalog.TypeInteger},
		{Name: "value", Type: catalog.TypeBigInt},
	})
	require.NoError(t, err)

	slots := make([]storage.TupleSlot, rowCount)
	for i := 0; i < rowCount; i++ {
		ctx := e.Begin()
		row := table.NewRow()
		require.NoError(t, table.SetValue(row, "id", int32(i)))
		require.NoError(t, table.SetValue(row, "value", int64(0)))
		slot, err := table.Insert(ctx, row)
		require.NoError(t, err)
		require.NoError(t, e.Commit(ctx))
		slots[i] = slot
	}

	var increments [rowCount]int64

	stopCheckpoints := make(chan struct{})
	var checkpointWG sync.WaitGroup
	checkpointWG.Add(1)
	go func() {
		defer checkpointWG.Done()
		ticker := time.NewTicker(checkpointCycle)
		defer ticker.Stop()
		for {
			select {
			case <-stopCheckpoints:
				return
			case <-ticker.C:
				_ = e.Checkpoint.Process()
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < itersPerWorker; i++ {
				row := (w + i) % rowCount
				if i%2 == 0 {
					for {
						ctx := e.Begin()
						cur := table.NewRow()
						require.NoError(t, table.Select(ctx, slots[row], cur))
						curVal, err := table.GetValue(cur, "value")
						require.NoError(t, err)

						next := table.NewRow()
						require.NoError(t, table.SetValue(next, "id", int32(row)))
						require.NoError(t, table.SetValue(next, "value", curVal.(int64)+1))
						err = table.Update(ctx, slots[row], next)
						if errors.Is(err, storage.ErrWriteConflict) {
							_ = e.Abort(ctx)
							continue
						}
						require.NoError(t, err)
						require.NoError(t, e.Commit(ctx))
						atomic.AddInt64(&increments[row], 1)
						break
					}
				} else {
					ctx := e.Begin()
					out := table.NewRow()
					require.NoError(t, table.Select(ctx, slots[row], out))
					_, err := table.GetValue(out, "value")
					require.NoError(t, err)
					require.NoError(t, e.Abort(ctx))
				}
			}
		}()
	}
	wg.Wait()
	close(stopCheckpoints)
	checkpointWG.Wait()

	reader := e.Begin()
	for i := 0; i < rowCount; i++ {
		out := table.NewRow()
		require.NoError(t, table.Select(reader, slots[i], out))
		v, err := table.GetValue(out, "value")
		require.NoError(t, err)
		require.Equal(t, atomic.LoadInt64(&increments[i]), v.(int64), "row %d", i)
	}
	require.NoError(t, e.Abort(reader))
}

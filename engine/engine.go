package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"relcore/catalog"
	"relcore/checkpoint"
	"relcore/storage"
	"relcore/txn"
	"relcore/wal"
)

// runPeriodically calls fn every interval until ctx is cancelled.
func runPeriodically(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Engine is the system's single entry point: it owns the block store, the
// write-ahead log, the transaction manager and garbage collector, the
// checkpoint manager, and the table catalog. The GC and checkpoint loops run
// under one errgroup; the WAL's flush loop is a goroutine the LogManager
// starts itself and stops in Shutdown (spec.md §2, §4).
type Engine struct {
	cfg Config
	log *logrus.Entry

	BlockStore *storage.BlockStore
	Catalog    *catalog.Catalog
	WAL        *wal.LogManager
	Txn        *txn.Manager
	GC         *txn.GarbageCollector
	Checkpoint *checkpoint.Manager

	cancel context.CancelFunc
	g      *errgroup.Group
}

// Open builds and starts an Engine rooted at cfg.DataDir.
func Open(cfg Config) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "engine: creating data directory")
	}

	store, err := storage.NewBlockStore(cfg.BlockCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "engine: building block store")
	}

	logManager, err := wal.NewLogManager(filepath.Join(cfg.DataDir, "wal.log"), cfg.WALFlushInterval)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "engine: opening WAL")
	}

	tm := txn.NewManager(logManager)
	gc := txn.NewGarbageCollector(tm, cfg.GCInterval)
	cat := catalog.NewCatalog(store)
	cm := checkpoint.NewManager(cfg.DataDir, cfg.CheckpointPrefix, cat, tm)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	gc.Run(gctx, g)
	g.Go(func() error {
		runPeriodically(gctx, cfg.CheckpointInterval, func() {
			if err := cm.Process(); err != nil {
				logrus.WithField("component", "checkpoint").WithError(err).Warn("periodic checkpoint failed")
			}
		})
		return nil
	})

	e := &Engine{
		cfg:        cfg,
		log:        logrus.WithField("component", "engine"),
		BlockStore: store,
		Catalog:    cat,
		WAL:        logManager,
		Txn:        tm,
		GC:         gc,
		Checkpoint: cm,
		cancel:     cancel,
		g:          g,
	}
	return e, nil
}

// CreateTable registers a new table in the catalog and makes it a valid
// checkpoint/recovery target.
func (e *Engine) CreateTable(name string, columns []catalog.Column) (*catalog.SqlTable, error) {
	return e.CreateTableWithBlockSize(name, columns, storage.DefaultBlockSize)
}

// CreateTableWithBlockSize is CreateTable with an explicit requested block
// byte size, for a table whose rows are wide enough that the default block
// size would otherwise hold only one tuple per block.
func (e *Engine) CreateTableWithBlockSize(name string, columns []catalog.Column, blockSize int) (*catalog.SqlTable, error) {
	t, err := e.Catalog.CreateTableWithBlockSize(name, columns, blockSize)
	if err != nil {
		return nil, err
	}
	e.GC.Register(t.Table())
	e.Checkpoint.RegisterTable(t)
	return t, nil
}

// Recover replays the latest checkpoint and any WAL records after it,
// bringing the catalog's registered tables up to date. Call this before
// accepting new transactions on a reopened Engine.
func (e *Engine) Recover() (*checkpoint.RecoveryResult, error) {
	return e.Checkpoint.StartRecovery(filepath.Join(e.cfg.DataDir, "wal.log"))
}

// Begin starts a new transaction.
func (e *Engine) Begin() *txn.Context { return e.Txn.BeginTransaction() }

// Commit commits ctx.
func (e *Engine) Commit(ctx *txn.Context) error { return e.Txn.Commit(ctx) }

// Abort aborts ctx.
func (e *Engine) Abort(ctx *txn.Context) error { return e.Txn.Abort(ctx) }

// Close stops background tasks and flushes and closes the WAL.
func (e *Engine) Close() error {
	e.cancel()
	if err := e.g.Wait(); err != nil {
		e.log.WithError(err).Warn("background task returned an error during shutdown")
	}
	if err := e.WAL.Shutdown(); err != nil {
		return errors.Wrap(err, "engine: shutting down WAL")
	}
	e.BlockStore.Close()
	return nil
}

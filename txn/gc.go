package txn

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"relcore/storage"
)

// GarbageCollector periodically computes the Manager's watermark and asks
// every registered table to unlink and release version-chain tails no
// active transaction could still need (spec.md §4.4). The unlink/release
// mechanics live on DataTable in package storage; this type only owns the
// registry and the scheduling loop.
type GarbageCollector struct {
	tm *Manager

	mu     sync.Mutex
	tables []*storage.DataTable

	interval time.Duration
	log      *logrus.Entry
}

// NewGarbageCollector builds a collector driven off tm's watermark,
// running one pass every interval once Run is called.
func NewGarbageCollector(tm *Manager, interval time.Duration) *GarbageCollector {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &GarbageCollector{tm: tm, interval: interval, log: logrus.WithField("component", "gc")}
}

// Register adds a table to the collector's sweep.
func (gc *GarbageCollector) Register(t *storage.DataTable) {
	gc.mu.Lock()
	gc.tables = append(gc.tables, t)
	gc.mu.Unlock()
}

// RunOnce performs a single sweep across every registered table and
// returns the total number of undo records unlinked.
func (gc *GarbageCollector) RunOnce() int {
	watermark := gc.tm.OldestActiveStartTime()

	gc.mu.Lock()
	tables := append([]*storage.DataTable(nil), gc.tables...)
	gc.mu.Unlock()

	total := 0
	for _, t := range tables {
		total += t.CollectGarbage(watermark)
	}
	if total > 0 {
		gc.log.WithField("unlinked", total).WithField("watermark", watermark).Debug("garbage collection pass")
	}
	return total
}

// Run drives periodic sweeps under g until ctx is cancelled, returning
// when g's context is done. Intended to be launched as one of an
// errgroup's background tasks alongside the engine's periodic checkpoint
// loop; the log manager runs its own flush goroutine outside the group
// (SPEC_FULL.md §2 ambient stack).
func (gc *GarbageCollector) Run(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		ticker := time.NewTicker(gc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				gc.RunOnce()
			}
		}
	})
}

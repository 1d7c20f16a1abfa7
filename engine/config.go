// Package engine wires the storage, txn, wal, checkpoint, and catalog
// packages into one running system: the top-level object an embedder
// constructs once and issues transactions against (spec.md §2 system
// overview, SPEC_FULL.md §2 AMBIENT STACK).
package engine

import "time"

// Config holds the fixed settings an Engine is built from. There is no
// CLI or environment-variable binding (spec.md explicitly scopes
// configuration surfaces out); callers construct Config directly.
type Config struct {
	// DataDir holds the WAL file and checkpoint files.
	DataDir string
	// BlockCapacity is the maximum number of blocks the BlockStore will
	// ever allocate across all tables.
	BlockCapacity uint64
	// WALFlushInterval bounds how long a committing transaction can wait
	// for its group-commit batch to flush.
	WALFlushInterval time.Duration
	// CheckpointInterval is how often the background checkpoint task runs.
	CheckpointInterval time.Duration
	// GCInterval is how often the garbage collector sweeps version chains.
	GCInterval time.Duration
	// CheckpointPrefix names checkpoint files on disk.
	CheckpointPrefix string
}

// DefaultConfig returns reasonable defaults for DataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		BlockCapacity:      1 << 16,
		WALFlushInterval:   5 * time.Millisecond,
		CheckpointInterval: 30 * time.Second,
		GCInterval:         50 * time.Millisecond,
		CheckpointPrefix:   "relcore_checkpoint",
	}
}

package storage

import "github.com/pkg/errors"

// Error kinds surfaced by the storage layer. Callers use errors.Is against
// these sentinels; call sites wrap them with errors.Wrap for context.
var (
	// ErrWriteConflict is returned by DataTable.Update when the version-chain
	// head is owned by another live transaction. The caller's transaction
	// must abort.
	ErrWriteConflict = errors.New("write-write conflict: tuple owned by another active transaction")

	// ErrBlockStoreExhausted is returned when the BlockStore cannot allocate
	// a new block because it is already at capacity.
	ErrBlockStoreExhausted = errors.New("block store exhausted: capacity reached")

	// ErrChecksumOrFormat is returned by recovery when a checkpoint or WAL
	// record fails a structural or checksum check.
	ErrChecksumOrFormat = errors.New("checksum or format error in durable record")

	// ErrUnsupportedColumnType is raised when a component is asked to
	// materialize a column type it does not know how to encode.
	ErrUnsupportedColumnType = errors.New("unsupported column type")

	// ErrUnregisteredTable is raised during recovery apply when a WAL or
	// checkpoint record references a table oid that was never registered.
	ErrUnregisteredTable = errors.New("recovery reference to unregistered table")

	// ErrSlotNotVisible is returned by Select when no version of the slot's
	// chain is visible to the reading transaction.
	ErrSlotNotVisible = errors.New("tuple slot not visible to this transaction")

	// ErrTombstoned marks a slot whose current version is a logical delete.
	ErrTombstoned = errors.New("tuple slot has been deleted")
)

package storage

// RedoRecordKind distinguishes the two mutating operations a RedoRecord can
// describe.
type RedoRecordKind uint8

const (
	RedoInsert RedoRecordKind = iota
	RedoUpdate
)

// RedoRecord is staged in a transaction's private buffer and records the
// after-image of a mutation, to be serialized to the WAL on commit
// (spec.md §3, §4.3).
type RedoRecord struct {
	Kind     RedoRecordKind
	TableOid uint64
	Slot     TupleSlot
	Row      *ProjectedRow // after-image
}

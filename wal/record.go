// Package wal implements the write-ahead log: framing and persisting redo
// records so a crash after commit never loses data, and replaying them
// during recovery (spec.md §4.3, §6).
package wal

import (
	"bufio"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"relcore/storage"
)

// RecordKind tags a WAL record's body shape, per spec.md §6.
type RecordKind uint8

const (
	KindInsert RecordKind = 1
	KindUpdate RecordKind = 2
	KindCommit RecordKind = 3
)

// Record is one framed entry in the log: {u8 kind, u64 txn-id, body},
// little-endian throughout, trailed by an xxhash64 checksum over the
// kind+txn-id+body bytes (spec.md §6 external interfaces).
type Record struct {
	Kind  RecordKind
	TxnID uint64

	// Populated for KindInsert/KindUpdate. Row accepts either a ProjectedRow
	// (the transaction's staged after-image) or a ProjectedColumns row view
	// (a checkpoint writer scanning a table directly), since both satisfy
	// storage.Row.
	TableOid uint64
	Slot     storage.TupleSlot
	Row      storage.Row

	// Populated for KindCommit.
	CommitTs uint64
}

// WriteTo serializes r in frame order and returns the number of bytes
// written.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var buf []byte
	buf = append(buf, byte(r.Kind))
	buf = appendUint64(buf, r.TxnID)

	switch r.Kind {
	case KindInsert, KindUpdate:
		buf = appendUint64(buf, r.TableOid)
		buf = appendUint64(buf, uint64(r.Slot.Block))
		buf = appendUint32(buf, r.Slot.Index)
		buf = appendRow(buf, r.Row)
	case KindCommit:
		buf = appendUint64(buf, r.CommitTs)
	default:
		return 0, errors.Errorf("wal: unknown record kind %d", r.Kind)
	}

	checksum := xxhash.Sum64(buf)
	buf = appendUint64(buf, checksum)

	n, err := w.Write(buf)
	return int64(n), err
}

func appendRow(buf []byte, row storage.Row) []byte {
	cols := row.ColumnIds()
	buf = appendUint16(buf, uint16(len(cols)))
	for i, col := range cols {
		buf = appendUint16(buf, col)
		isVarlen := row.IsVarlenColumn(i)
		isNull := row.IsNull(i)
		flags := byte(0)
		if isNull {
			flags |= 0x1
		}
		if isVarlen {
			flags |= 0x2
		}
		buf = append(buf, flags)
		if isNull {
			continue
		}
		if isVarlen {
			content := row.GetVarlen(i).Content()
			buf = appendUint32(buf, uint32(len(content)))
			buf = append(buf, content...)
		} else {
			fixed := row.GetFixed(i)
			buf = append(buf, byte(len(fixed)))
			buf = append(buf, fixed...)
		}
	}
	return buf
}

// ReadRecord parses the next record from r, validating its checksum. It
// returns io.EOF when the stream ends cleanly between records.
func ReadRecord(r *bufio.Reader) (*Record, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, err // EOF between records is the clean end of the log
	}
	hasher := newChecksumReader(r, []byte{kindByte})

	rec := &Record{Kind: RecordKind(kindByte)}
	rec.TxnID, err = hasher.readUint64()
	if err != nil {
		return nil, errors.Wrap(err, "wal: reading txn id")
	}

	switch rec.Kind {
	case KindInsert, KindUpdate:
		rec.TableOid, err = hasher.readUint64()
		if err != nil {
			return nil, errors.Wrap(err, "wal: reading table oid")
		}
		block, err := hasher.readUint64()
		if err != nil {
			return nil, errors.Wrap(err, "wal: reading block id")
		}
		idx, err := hasher.readUint32()
		if err != nil {
			return nil, errors.Wrap(err, "wal: reading slot index")
		}
		rec.Slot = storage.TupleSlot{Block: storage.BlockID(block), Index: idx}
		rec.Row, err = hasher.readRow()
		if err != nil {
			return nil, errors.Wrap(err, "wal: reading row payload")
		}
	case KindCommit:
		rec.CommitTs, err = hasher.readUint64()
		if err != nil {
			return nil, errors.Wrap(err, "wal: reading commit timestamp")
		}
	default:
		return nil, errors.Wrapf(storage.ErrChecksumOrFormat, "wal: unknown record kind %d", kindByte)
	}

	want, err := readRawUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "wal: reading checksum")
	}
	if got := xxhash.Sum64(hasher.bytes); got != want {
		return nil, errors.Wrapf(storage.ErrChecksumOrFormat, "wal: checksum mismatch for txn %d", rec.TxnID)
	}
	return rec, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func readRawUint64(r *bufio.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56, nil
}

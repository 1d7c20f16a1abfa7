// Package checkpoint implements periodic full-table snapshots and the
// two-pass WAL replay that recovers everything committed since the last
// one (spec.md §4.6, §6).
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"relcore/catalog"
	"relcore/storage"
	"relcore/wal"
)

// A checkpoint file is a little-endian u64 start timestamp followed by one
// wal.Record (always KindInsert) per visible tuple, each carrying its
// original TupleSlot so recovery can build the old-slot -> new-slot
// mapping RecoverFromLogs needs to translate later WAL records.
//
// This reuses the WAL's record framing rather than a distinct per-table
// header with column descriptors and a record-count sentinel: a table's
// columns are recovered from its catalog.Schema via RegisterTable, not from
// anything in the file, so a separate descriptor would be redundant, and
// end-of-table is detected the same way WAL replay detects a torn tail
// (read until a record fails to parse). TableOid on each record plays the
// role the per-table header would have played.
func writeHeader(w io.Writer, startTimestamp uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], startTimestamp)
	_, err := w.Write(b[:])
	return err
}

func readHeader(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Wrap(err, "checkpoint: reading header")
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// writeTableTuples scans every visible row of table as of txn's snapshot
// and appends one record per row to w.
func writeTableTuples(w io.Writer, txn storage.Txn, table *catalog.SqlTable) error {
	cols := table.Schema().ColumnIds()
	init := table.Table().InitializerForProjectedColumns(cols, 256)
	cursor := table.NewScanCursor()

	for {
		buf := init.Initialize()
		if err := table.Scan(txn, cursor, buf); err != nil {
			return errors.Wrapf(err, "checkpoint: scanning table %q", table.Schema().Name)
		}
		if buf.NumTuples() == 0 {
			return nil
		}
		for i := 0; i < buf.NumTuples(); i++ {
			rec := &wal.Record{
				Kind:     wal.KindInsert,
				TxnID:    0,
				TableOid: table.Oid(),
				Slot:     buf.TupleSlot(i),
				Row:      buf.RowView(i),
			}
			if _, err := rec.WriteTo(w); err != nil {
				return errors.Wrapf(err, "checkpoint: writing tuple for table %q", table.Schema().Name)
			}
		}
	}
}

// readAllTuples reads every record from a checkpoint file at path,
// returning its header timestamp and the records in file order. As with
// WAL replay, a malformed trailing record is treated as a torn write and
// silently truncates the result rather than failing recovery outright.
func readAllTuples(path string) (uint64, []*wal.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, errors.Wrap(err, "checkpoint: opening file")
	}
	defer f.Close()

	br := bufio.NewReader(f)
	startTimestamp, err := readHeader(br)
	if err != nil {
		return 0, nil, err
	}

	var records []*wal.Record
	for {
		rec, err := wal.ReadRecord(br)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return startTimestamp, records, nil
}

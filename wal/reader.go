package wal

import (
	"bufio"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ReplayAll reads every well-formed record from the log file at path, in
// file order. A crash can tear the final record mid-write; ReplayAll
// tolerates that by stopping at the first malformed record (EOF,
// unexpected EOF, or a checksum mismatch) and returning everything read up
// to that point rather than failing recovery outright (spec.md §7 error
// handling, torn tail writes).
func ReplayAll(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []*Record
	for {
		rec, err := ReadRecord(r)
		if err != nil {
			if err != io.EOF {
				logrus.WithField("component", "wal").WithError(err).
					WithField("records_recovered", len(records)).
					Warn("stopping WAL replay at malformed record, treating as torn tail write")
			}
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

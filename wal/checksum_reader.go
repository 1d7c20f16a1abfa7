package wal

import (
	"bufio"
	"io"

	"relcore/storage"
)

// checksumReader reads primitive fields off a bufio.Reader while
// accumulating every byte consumed, so the caller can verify the trailing
// xxhash64 checksum against exactly the bytes it covers.
type checksumReader struct {
	r     *bufio.Reader
	bytes []byte
}

func newChecksumReader(r *bufio.Reader, seed []byte) *checksumReader {
	return &checksumReader{r: r, bytes: append([]byte(nil), seed...)}
}

func (c *checksumReader) readByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	c.bytes = append(c.bytes, b)
	return b, nil
}

func (c *checksumReader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	c.bytes = append(c.bytes, buf...)
	return buf, nil
}

func (c *checksumReader) readUint16() (uint16, error) {
	b, err := c.readN(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (c *checksumReader) readUint32() (uint32, error) {
	b, err := c.readN(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (c *checksumReader) readUint64() (uint64, error) {
	b, err := c.readN(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// readRow parses the column-wise row payload appendRow wrote. Out-of-line
// varlen entries come back content-only (handle 0, not reclaimable); a
// caller replaying into a live table re-homes the content via that table's
// own arena rather than trusting a handle from a different process's run.
func (c *checksumReader) readRow() (*storage.ProjectedRow, error) {
	numCols, err := c.readUint16()
	if err != nil {
		return nil, err
	}
	n := int(numCols)
	columnIds := make([]uint16, n)
	isVarlen := make([]bool, n)
	nulls := make([]bool, n)
	fixed := make([][]byte, n)
	varlens := make([]storage.VarlenEntry, n)

	for i := 0; i < n; i++ {
		col, err := c.readUint16()
		if err != nil {
			return nil, err
		}
		columnIds[i] = col

		flags, err := c.readByte()
		if err != nil {
			return nil, err
		}
		isNull := flags&0x1 != 0
		varlenFlag := flags&0x2 != 0
		isVarlen[i] = varlenFlag
		nulls[i] = isNull
		if isNull {
			continue
		}

		if varlenFlag {
			size, err := c.readUint32()
			if err != nil {
				return nil, err
			}
			content, err := c.readN(int(size))
			if err != nil {
				return nil, err
			}
			if size <= storage.VarlenInlineThreshold {
				varlens[i] = storage.NewInlineVarlen(content)
			} else {
				varlens[i] = storage.NewOutOfLineVarlen(0, content, false)
			}
		} else {
			width, err := c.readByte()
			if err != nil {
				return nil, err
			}
			buf, err := c.readN(int(width))
			if err != nil {
				return nil, err
			}
			fixed[i] = buf
		}
	}
	return storage.NewRawProjectedRow(columnIds, isVarlen, nulls, fixed, varlens), nil
}

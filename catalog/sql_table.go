package catalog

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"relcore/storage"
)

// SqlTable binds a Schema to a storage.DataTable, translating between
// named, typed Go values and the column-oid-addressed ProjectedRow/Row
// buffers the storage layer works with (spec.md §4.5).
type SqlTable struct {
	oid    uint64
	schema *Schema
	table  *storage.DataTable
}

// NewSqlTable wires schema onto table. table must have been built over
// schema.Layout().
func NewSqlTable(oid uint64, schema *Schema, table *storage.DataTable) *SqlTable {
	return &SqlTable{oid: oid, schema: schema, table: table}
}

func (s *SqlTable) Oid() uint64            { return s.oid }
func (s *SqlTable) Schema() *Schema        { return s.schema }
func (s *SqlTable) Table() *storage.DataTable { return s.table }

// NewRow allocates an all-null row over every column in the schema.
func (s *SqlTable) NewRow() *storage.ProjectedRow {
	return s.table.InitializerForProjectedRow(s.schema.ColumnIds()).InitializeRow()
}

// SetValue encodes value into row's column colName. A nil value marks the
// column null; nullability is not enforced here (spec.md leaves constraint
// checking to a layer above the storage engine).
func (s *SqlTable) SetValue(row *storage.ProjectedRow, colName string, value any) error {
	col, ok := s.schema.ColumnByName(colName)
	if !ok {
		return errors.Errorf("catalog: unknown column %q", colName)
	}
	idx, ok := indexOf(row.ColumnIds(), col.Oid())
	if !ok {
		return errors.Errorf("catalog: column %q not present in row", colName)
	}
	if value == nil {
		row.SetNull(idx)
		return nil
	}
	switch col.Type {
	case TypeBoolean:
		v, ok := value.(bool)
		if !ok {
			return errors.Errorf("catalog: column %q wants bool, got %T", colName, value)
		}
		b := byte(0)
		if v {
			b = 1
		}
		row.SetFixed(idx, []byte{b})
	case TypeSmallInt:
		v, ok := value.(int16)
		if !ok {
			return errors.Errorf("catalog: column %q wants int16, got %T", colName, value)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		row.SetFixed(idx, buf)
	case TypeInteger:
		v, ok := value.(int32)
		if !ok {
			return errors.Errorf("catalog: column %q wants int32, got %T", colName, value)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		row.SetFixed(idx, buf)
	case TypeBigInt:
		v, ok := value.(int64)
		if !ok {
			return errors.Errorf("catalog: column %q wants int64, got %T", colName, value)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		row.SetFixed(idx, buf)
	case TypeVarchar:
		var content []byte
		switch v := value.(type) {
		case string:
			content = []byte(v)
		case []byte:
			content = v
		default:
			return errors.Errorf("catalog: column %q wants string or []byte, got %T", colName, value)
		}
		row.SetVarlen(idx, s.table.NewVarlen(content))
	default:
		return errors.Wrapf(storage.ErrUnsupportedColumnType, "column %q", colName)
	}
	return nil
}

// GetValue decodes column colName out of any Row implementation (a
// ProjectedRow from Select, or a row view from Scan).
func (s *SqlTable) GetValue(row storage.Row, colName string) (any, error) {
	col, ok := s.schema.ColumnByName(colName)
	if !ok {
		return nil, errors.Errorf("catalog: unknown column %q", colName)
	}
	idx, ok := indexOf(row.ColumnIds(), col.Oid())
	if !ok {
		return nil, errors.Errorf("catalog: column %q not present in row", colName)
	}
	if row.IsNull(idx) {
		return nil, nil
	}
	switch col.Type {
	case TypeBoolean:
		return row.GetFixed(idx)[0] != 0, nil
	case TypeSmallInt:
		return int16(binary.LittleEndian.Uint16(row.GetFixed(idx))), nil
	case TypeInteger:
		return int32(binary.LittleEndian.Uint32(row.GetFixed(idx))), nil
	case TypeBigInt:
		return int64(binary.LittleEndian.Uint64(row.GetFixed(idx))), nil
	case TypeVarchar:
		return string(row.GetVarlen(idx).Content()), nil
	default:
		return nil, errors.Wrapf(storage.ErrUnsupportedColumnType, "column %q", colName)
	}
}

// Insert delegates to the underlying DataTable.
func (s *SqlTable) Insert(txn storage.Txn, row *storage.ProjectedRow) (storage.TupleSlot, error) {
	return s.table.Insert(txn, row)
}

// Select delegates to the underlying DataTable.
func (s *SqlTable) Select(txn storage.Txn, slot storage.TupleSlot, out *storage.ProjectedRow) error {
	return s.table.Select(txn, slot, out)
}

// Update delegates to the underlying DataTable.
func (s *SqlTable) Update(txn storage.Txn, slot storage.TupleSlot, row *storage.ProjectedRow) error {
	return s.table.Update(txn, slot, row)
}

// NewScanCursor delegates to the underlying DataTable.
func (s *SqlTable) NewScanCursor() *storage.ScanCursor { return s.table.NewScanCursor() }

// Scan delegates to the underlying DataTable.
func (s *SqlTable) Scan(txn storage.Txn, cursor *storage.ScanCursor, out *storage.ProjectedColumns) error {
	return s.table.Scan(txn, cursor, out)
}

func indexOf(ids []uint16, target uint16) (int, bool) {
	for i, id := range ids {
		if id == target {
			return i, true
		}
	}
	return 0, false
}

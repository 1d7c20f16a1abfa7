package storage

// ProjectionMap translates a column identifier to its position (projection
// list index) within a projected row/columns buffer (spec.md §3).
type ProjectionMap map[uint16]uint16

// Row is the common accessor surface shared by ProjectedRow and a single
// row view into ProjectedColumns, both addressed by projection list index
// (spec.md §9 design notes: "keep the projection-list-index addressing
// scheme").
type Row interface {
	NumColumns() int
	ColumnIds() []uint16
	IsVarlenColumn(i int) bool
	IsNull(i int) bool
	SetNull(i int)
	GetFixed(i int) []byte
	SetFixed(i int, b []byte)
	GetVarlen(i int) VarlenEntry
	SetVarlen(i int, v VarlenEntry)
}

// ProjectedRow is a compact, self-describing buffer carrying a subset of
// columns for a single row — the wire format between transactions and the
// DataTable (spec.md §3).
type ProjectedRow struct {
	columnIds []uint16
	isVarlen  []bool
	nulls     []bool
	fixed     [][]byte
	varlens   []VarlenEntry
}

func (r *ProjectedRow) NumColumns() int           { return len(r.columnIds) }
func (r *ProjectedRow) ColumnIds() []uint16       { return r.columnIds }
func (r *ProjectedRow) IsVarlenColumn(i int) bool { return r.isVarlen[i] }
func (r *ProjectedRow) IsNull(i int) bool         { return r.nulls[i] }
func (r *ProjectedRow) SetNull(i int)             { r.nulls[i] = true }

func (r *ProjectedRow) GetFixed(i int) []byte {
	if r.nulls[i] {
		return nil
	}
	return r.fixed[i]
}

func (r *ProjectedRow) SetFixed(i int, b []byte) {
	r.nulls[i] = false
	buf := make([]byte, len(b))
	copy(buf, b)
	r.fixed[i] = buf
}

func (r *ProjectedRow) GetVarlen(i int) VarlenEntry {
	return r.varlens[i]
}

func (r *ProjectedRow) SetVarlen(i int, v VarlenEntry) {
	r.nulls[i] = false
	r.varlens[i] = v
}

// NewRawProjectedRow builds a ProjectedRow directly from its component
// slices, used by the WAL and checkpoint readers to reconstruct a row from
// its serialized form without going through an initializer.
func NewRawProjectedRow(columnIds []uint16, isVarlen, nulls []bool, fixed [][]byte, varlens []VarlenEntry) *ProjectedRow {
	return &ProjectedRow{columnIds: columnIds, isVarlen: isVarlen, nulls: nulls, fixed: fixed, varlens: varlens}
}

// Clone deep-copies the row, used for undo before-images and checkpoint
// recovery buffers (spec.md §5 resource lifecycle: recovery deep-copies so
// the source buffer may be freed).
func (r *ProjectedRow) Clone() *ProjectedRow {
	out := &ProjectedRow{
		columnIds: append([]uint16(nil), r.columnIds...),
		isVarlen:  append([]bool(nil), r.isVarlen...),
		nulls:     append([]bool(nil), r.nulls...),
		fixed:     make([][]byte, len(r.fixed)),
		varlens:   append([]VarlenEntry(nil), r.varlens...),
	}
	for i, b := range r.fixed {
		if b != nil {
			out.fixed[i] = append([]byte(nil), b...)
		}
	}
	return out
}

// ProjectedRowInitializer computes projection layout metadata once so it
// can be reused across many ProjectedRow buffers (spec.md §4.2).
type ProjectedRowInitializer struct {
	layout    *BlockLayout
	columnIds []uint16
	isVarlen  []bool
	projMap   ProjectionMap
}

// NewProjectedRowInitializer builds an initializer over the given physical
// column ids, in projection-list order.
func NewProjectedRowInitializer(layout *BlockLayout, columnIds []uint16) *ProjectedRowInitializer {
	isVarlen := make([]bool, len(columnIds))
	projMap := make(ProjectionMap, len(columnIds))
	for i, c := range columnIds {
		isVarlen[i] = layout.IsVarlen(c)
		projMap[c] = uint16(i)
	}
	return &ProjectedRowInitializer{
		layout:    layout,
		columnIds: append([]uint16(nil), columnIds...),
		isVarlen:  isVarlen,
		projMap:   projMap,
	}
}

// ColumnIds returns the physical column ids in projection-list order.
func (p *ProjectedRowInitializer) ColumnIds() []uint16 { return p.columnIds }

// ProjectionMap returns the column-id -> projection-list-index mapping.
func (p *ProjectedRowInitializer) ProjectionMap() ProjectionMap { return p.projMap }

// ProjectedRowSize estimates the buffer footprint, kept for API fidelity
// with spec.md's notion of a fixed-size allocation the caller can reuse.
func (p *ProjectedRowInitializer) ProjectedRowSize() int {
	size := 0
	for i, c := range p.columnIds {
		if p.isVarlen[i] {
			size += VarlenCellSize
		} else {
			size += int(p.layout.AttrSize(c))
		}
	}
	return size
}

// InitializeRow allocates a fresh, all-null ProjectedRow over this
// initializer's column set.
func (p *ProjectedRowInitializer) InitializeRow() *ProjectedRow {
	n := len(p.columnIds)
	row := &ProjectedRow{
		columnIds: p.columnIds,
		isVarlen:  p.isVarlen,
		nulls:     make([]bool, n),
		fixed:     make([][]byte, n),
		varlens:   make([]VarlenEntry, n),
	}
	for i := range row.nulls {
		row.nulls[i] = true
	}
	return row
}

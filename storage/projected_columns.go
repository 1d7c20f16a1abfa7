package storage

// ProjectedColumns carries a subset of columns for a subset of rows: a
// tuple count plus, per row, the same positional data a ProjectedRow holds
// (spec.md §3). It is the buffer Scan fills.
type ProjectedColumns struct {
	columnIds []uint16
	isVarlen  []bool
	maxTuples int
	numTuples int

	slots   []TupleSlot
	nulls   [][]bool
	fixed   [][][]byte
	varlens [][]VarlenEntry
}

// ProjectedColumnsInitializer mirrors ProjectedRowInitializer for the
// columnar buffer form.
type ProjectedColumnsInitializer struct {
	layout    *BlockLayout
	columnIds []uint16
	isVarlen  []bool
	maxTuples int
	projMap   ProjectionMap
}

// NewProjectedColumnsInitializer builds an initializer for a buffer that
// holds up to maxTuples rows of the given physical columns.
func NewProjectedColumnsInitializer(layout *BlockLayout, columnIds []uint16, maxTuples int) *ProjectedColumnsInitializer {
	isVarlen := make([]bool, len(columnIds))
	projMap := make(ProjectionMap, len(columnIds))
	for i, c := range columnIds {
		isVarlen[i] = layout.IsVarlen(c)
		projMap[c] = uint16(i)
	}
	return &ProjectedColumnsInitializer{
		layout:    layout,
		columnIds: append([]uint16(nil), columnIds...),
		isVarlen:  isVarlen,
		maxTuples: maxTuples,
		projMap:   projMap,
	}
}

func (p *ProjectedColumnsInitializer) ColumnIds() []uint16       { return p.columnIds }
func (p *ProjectedColumnsInitializer) ProjectionMap() ProjectionMap { return p.projMap }
func (p *ProjectedColumnsInitializer) MaxTuples() int            { return p.maxTuples }

// Initialize allocates a fresh, empty ProjectedColumns buffer.
func (p *ProjectedColumnsInitializer) Initialize() *ProjectedColumns {
	nc := len(p.columnIds)
	pc := &ProjectedColumns{
		columnIds: p.columnIds,
		isVarlen:  p.isVarlen,
		maxTuples: p.maxTuples,
		slots:     make([]TupleSlot, p.maxTuples),
		nulls:     make([][]bool, nc),
		fixed:     make([][][]byte, nc),
		varlens:   make([][]VarlenEntry, nc),
	}
	for c := 0; c < nc; c++ {
		pc.nulls[c] = make([]bool, p.maxTuples)
		pc.fixed[c] = make([][]byte, p.maxTuples)
		pc.varlens[c] = make([]VarlenEntry, p.maxTuples)
	}
	return pc
}

// Reset clears the buffer for reuse by a new Scan call.
func (pc *ProjectedColumns) Reset() { pc.numTuples = 0 }

func (pc *ProjectedColumns) NumTuples() int { return pc.numTuples }
func (pc *ProjectedColumns) MaxTuples() int { return pc.maxTuples }
func (pc *ProjectedColumns) ColumnIds() []uint16 { return pc.columnIds }
func (pc *ProjectedColumns) TupleSlot(row int) TupleSlot { return pc.slots[row] }

// appendRow reserves the next row slot and returns a view over it, used
// internally by DataTable.Scan.
func (pc *ProjectedColumns) appendRow(slot TupleSlot) *ProjectedColumnsRowView {
	i := pc.numTuples
	pc.slots[i] = slot
	pc.numTuples++
	return pc.RowView(i)
}

// RowView returns a Row-shaped accessor over row index i's columns,
// sharing storage with the parent buffer.
func (pc *ProjectedColumns) RowView(i int) *ProjectedColumnsRowView {
	return &ProjectedColumnsRowView{pc: pc, row: i}
}

// ProjectedColumnsRowView implements Row over one row of a ProjectedColumns
// buffer, per spec.md §3 ("ProjectedColumns... exposes a row view per
// index").
type ProjectedColumnsRowView struct {
	pc  *ProjectedColumns
	row int
}

func (v *ProjectedColumnsRowView) NumColumns() int     { return len(v.pc.columnIds) }
func (v *ProjectedColumnsRowView) ColumnIds() []uint16 { return v.pc.columnIds }
func (v *ProjectedColumnsRowView) IsVarlenColumn(i int) bool {
	return v.pc.isVarlen[i]
}
func (v *ProjectedColumnsRowView) IsNull(i int) bool { return v.pc.nulls[i][v.row] }
func (v *ProjectedColumnsRowView) SetNull(i int)     { v.pc.nulls[i][v.row] = true }

func (v *ProjectedColumnsRowView) GetFixed(i int) []byte {
	if v.pc.nulls[i][v.row] {
		return nil
	}
	return v.pc.fixed[i][v.row]
}

func (v *ProjectedColumnsRowView) SetFixed(i int, b []byte) {
	v.pc.nulls[i][v.row] = false
	buf := make([]byte, len(b))
	copy(buf, b)
	v.pc.fixed[i][v.row] = buf
}

func (v *ProjectedColumnsRowView) GetVarlen(i int) VarlenEntry { return v.pc.varlens[i][v.row] }

func (v *ProjectedColumnsRowView) SetVarlen(i int, val VarlenEntry) {
	v.pc.nulls[i][v.row] = false
	v.pc.varlens[i][v.row] = val
}

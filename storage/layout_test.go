package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockLayoutOffsetsAndTupleSize(t *testing.T) {
	layout := NewBlockLayout([]uint8{4, 8, Varlen}, DefaultBlockSize)

	require.Equal(t, 3, layout.NumColumns())
	require.Equal(t, 1, layout.bitmapBytes) // 3 columns fit in one bitmap byte
	require.Equal(t, 1+4+8+VarlenCellSize, layout.TupleSize())

	require.EqualValues(t, 4, layout.AttrSize(FirstUserColumn))
	require.EqualValues(t, 8, layout.AttrSize(FirstUserColumn+1))
	require.EqualValues(t, VarlenCellSize, layout.AttrSize(FirstUserColumn+2))

	require.False(t, layout.IsVarlen(FirstUserColumn))
	require.True(t, layout.IsVarlen(FirstUserColumn+2))

	require.True(t, layout.NumSlots() > 0)
}

func TestBlockLayoutDefaultsBlockSize(t *testing.T) {
	layout := NewBlockLayout([]uint8{4}, 0)
	require.Equal(t, DefaultBlockSize, layout.BlockSize())
}

// TestBlockLayoutGrowsToFitAWideTuple covers a schema wide enough (many
// varlen columns) that its per-tuple footprint exceeds DefaultBlockSize.
// NumSlots must never come back 0 — that would make every Insert against
// this layout fail.
func TestBlockLayoutGrowsToFitAWideTuple(t *testing.T) {
	attrs := make([]uint8, 512)
	for i := range attrs {
		attrs[i] = Varlen
	}
	layout := NewBlockLayout(attrs, DefaultBlockSize)

	require.Greater(t, layout.TupleSize(), DefaultBlockSize)
	require.GreaterOrEqual(t, layout.NumSlots(), uint32(1))
	require.Equal(t, layout.TupleSize(), layout.BlockSize())
}

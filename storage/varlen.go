package storage

import "bytes"

// VarlenInlineThreshold is the largest payload that is stored inline inside
// a VarlenCellSize cell. Anything larger is held in an out-of-line arena and
// referenced by handle, mirroring the inlined/pointer duality of spec.md's
// VarlenEntry without embedding raw pointers in block bytes (see SPEC_FULL.md
// §3, "VarlenEntry physical representation").
const VarlenInlineThreshold = 11

// VarlenCellSize is the fixed on-block footprint of a varlen column cell:
// 1 flag byte + 4 size bytes + 11 payload bytes.
const VarlenCellSize = 16

// VarlenEntry is either inlined (content lives in the cell) or out-of-line
// (content lives in an arena buffer, addressed by an opaque handle). Equality
// is defined purely by byte content, per spec.md §3.
type VarlenEntry struct {
	size        uint32
	inlined     bool
	reclaimable bool
	content     []byte // authoritative bytes, always len == size
	handle      uint64 // valid only when !inlined
}

// NewInlineVarlen builds an inlined entry. Panics if content exceeds the
// inline threshold — callers must route larger payloads through the arena.
func NewInlineVarlen(content []byte) VarlenEntry {
	if len(content) > VarlenInlineThreshold {
		panic("storage: content too large to inline")
	}
	buf := make([]byte, len(content))
	copy(buf, content)
	return VarlenEntry{size: uint32(len(content)), inlined: true, content: buf}
}

// NewOutOfLineVarlen builds an entry referencing an arena-owned buffer.
func NewOutOfLineVarlen(handle uint64, content []byte, reclaimable bool) VarlenEntry {
	return VarlenEntry{size: uint32(len(content)), inlined: false, reclaimable: reclaimable, content: content, handle: handle}
}

// Size returns the logical byte length of the payload.
func (v VarlenEntry) Size() uint32 { return v.size }

// IsInlined reports whether the payload is stored inside the cell.
func (v VarlenEntry) IsInlined() bool { return v.inlined }

// Reclaimable reports whether the out-of-line buffer should be freed when
// this entry's owning version is garbage collected.
func (v VarlenEntry) Reclaimable() bool { return !v.inlined && v.reclaimable }

// Content returns the payload bytes. The caller must not mutate them.
func (v VarlenEntry) Content() []byte { return v.content }

// Handle returns the arena handle for an out-of-line entry.
func (v VarlenEntry) Handle() uint64 { return v.handle }

// Equal compares two entries by content only, ignoring inlining/compression
// state, per spec.md §3.
func (v VarlenEntry) Equal(other VarlenEntry) bool {
	return bytes.Equal(v.content, other.content)
}

// encodeCell packs the entry into a fixed VarlenCellSize buffer.
func (v VarlenEntry) encodeCell(dst []byte) {
	if len(dst) != VarlenCellSize {
		panic("storage: bad varlen cell size")
	}
	for i := range dst {
		dst[i] = 0
	}
	flags := byte(0)
	if v.inlined {
		flags |= 0x1
	}
	if v.reclaimable {
		flags |= 0x2
	}
	dst[0] = flags
	putUint32(dst[1:5], v.size)
	if v.inlined {
		copy(dst[5:5+len(v.content)], v.content)
	} else {
		putUint64(dst[5:13], v.handle)
	}
}

// decodeVarlenCell reconstructs an entry from its cell representation. For
// out-of-line entries the arena is consulted to recover the content bytes.
func decodeVarlenCell(src []byte, arena *varlenArena) VarlenEntry {
	flags := src[0]
	size := getUint32(src[1:5])
	inlined := flags&0x1 != 0
	reclaimable := flags&0x2 != 0
	if inlined {
		content := make([]byte, size)
		copy(content, src[5:5+size])
		return VarlenEntry{size: size, inlined: true, content: content}
	}
	handle := getUint64(src[5:13])
	content := arena.get(handle)
	return VarlenEntry{size: size, inlined: false, reclaimable: reclaimable, content: content, handle: handle}
}

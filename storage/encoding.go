package storage

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// All on-disk and in-block integers are little-endian, per SPEC_FULL.md §6.

func putUint16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }
func getUint16(src []byte) uint16    { return binary.LittleEndian.Uint16(src) }
func putUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func getUint32(src []byte) uint32    { return binary.LittleEndian.Uint32(src) }
func putUint64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func getUint64(src []byte) uint64    { return binary.LittleEndian.Uint64(src) }

// varlenArena owns out-of-line varlen payloads for one table. Buffers are
// referenced by monotonically increasing handles from block cells and undo
// before-images; see SPEC_FULL.md §3 on VarlenEntry's physical form.
type varlenArena struct {
	mu      sync.RWMutex
	buffers map[uint64][]byte
	next    atomic.Uint64
}

func newVarlenArena() *varlenArena {
	return &varlenArena{buffers: make(map[uint64][]byte)}
}

// put stores content and returns a fresh handle. The arena copies the bytes.
func (a *varlenArena) put(content []byte) uint64 {
	handle := a.next.Add(1)
	buf := make([]byte, len(content))
	copy(buf, content)
	a.mu.Lock()
	a.buffers[handle] = buf
	a.mu.Unlock()
	return handle
}

func (a *varlenArena) get(handle uint64) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buffers[handle]
}

// release drops a buffer. Called once the last version referencing it has
// been garbage collected (VarlenEntry.Reclaimable()).
func (a *varlenArena) release(handle uint64) {
	a.mu.Lock()
	delete(a.buffers, handle)
	a.mu.Unlock()
}

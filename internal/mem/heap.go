package mem

import (
	"sync/atomic"
)

// HeapStats is a snapshot of Heap accounting.
type HeapStats struct {
	Allocs    uint64 // Historical: total allocations
	Frees     uint64 // Historical: total frees
	LiveBytes int64  // Current: bytes allocated and not yet freed
}

// Heap is an accounting host allocator backed by the Go heap.
// It is safe for concurrent use.
type Heap struct {
	allocs    atomic.Uint64
	frees     atomic.Uint64
	liveBytes atomic.Int64
}

// NewHeap creates a new Heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Alloc returns an aligned, zeroed allocation of size bytes (nil for size <= 0).
func (h *Heap) Alloc(size int) []byte {
	b := AllocAligned(size)
	if b == nil {
		return nil
	}
	h.allocs.Add(1)
	h.liveBytes.Add(int64(len(b)))
	return b
}

// Free ends the lifetime of an allocation returned by Alloc. Nil is ignored.
func (h *Heap) Free(b []byte) {
	if b == nil {
		return
	}
	h.frees.Add(1)
	h.liveBytes.Add(-int64(len(b)))
}

// Stats returns the current accounting snapshot.
func (h *Heap) Stats() HeapStats {
	return HeapStats{
		Allocs:    h.allocs.Load(),
		Frees:     h.frees.Load(),
		LiveBytes: h.liveBytes.Load(),
	}
}

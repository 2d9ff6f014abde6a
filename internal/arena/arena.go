package arena

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/asyncarray/internal/conv"
	"github.com/hupe1980/asyncarray/internal/mmap"
)

// MemoryAcquirer is an interface for reserving the memory backing chunks.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrMaxChunksExceeded is returned when the arena exceeds the maximum number of chunks.
	ErrMaxChunksExceeded = errors.New("arena: max chunks exceeded")
	// ErrAllocationFailed is returned when an allocation fails.
	ErrAllocationFailed = errors.New("arena: allocation failed")
	// ErrTooLarge is returned when a request exceeds the chunk size.
	ErrTooLarge = errors.New("arena: allocation larger than chunk")
	// ErrInvalidFree is returned when freeing an offset that is not live.
	ErrInvalidFree = errors.New("arena: free of non-live offset")
	// ErrStaleOffset is returned when accessing an offset that is not live.
	ErrStaleOffset = errors.New("arena: stale offset")
	// ErrClosed is returned when using a closed arena.
	ErrClosed = errors.New("arena: closed")
)

const (
	// DefaultChunkSize is the default size of a chunk (4MB).
	DefaultChunkSize = 4 * 1024 * 1024
	// DefaultAlignment is the minimum allocation granule (256 bytes, the
	// usual device allocation alignment).
	DefaultAlignment = 256
	// MaxChunks limits the number of chunks to prevent excessive memory usage.
	MaxChunks = 65536
)

// Stats tracks arena memory usage metrics.
//
// Note on semantics:
//   - BytesReserved: memory mapped for chunks
//   - BytesInUse: size-class bytes held by live allocations
//   - BytesRequested: bytes requested by live allocations (before rounding)
//   - LiveAllocs: allocations not yet freed
//   - TotalAllocs/TotalFrees: cumulative counts
type Stats struct {
	ChunksAllocated uint64 // Historical: total chunks ever created
	BytesReserved   uint64 // Current: total memory mapped
	BytesInUse      uint64 // Current: class bytes held by live allocations
	BytesRequested  uint64 // Current: requested bytes of live allocations
	LiveAllocs      uint64 // Current: live allocation count
	TotalAllocs     uint64 // Historical: total allocations
	TotalFrees      uint64 // Historical: total frees
}

type atomicStats struct {
	ChunksAllocated atomic.Uint64
	BytesReserved   atomic.Uint64
	BytesInUse      atomic.Uint64
	BytesRequested  atomic.Uint64
	TotalAllocs     atomic.Uint64
	TotalFrees      atomic.Uint64
}

type chunk struct {
	data    []byte
	mapping *mmap.Mapping
	offset  int // bump pointer, guarded by Arena.mu
	index   uint32
}

type block struct {
	class     int
	requested int
}

// Arena is a device memory arena.
//
// It is safe for concurrent use; allocation, free and lookup serialize on one
// mutex because every free-list mutation must be visible to the next lookup.
type Arena struct {
	chunkSize int
	chunkBits int    // Power of 2 exponent for chunk size
	chunkMask uint64 // Mask for offset within chunk
	alignment int

	mu     sync.RWMutex
	chunks []*chunk
	free   map[int][]uint64  // size class -> free offsets
	blocks map[uint64]block  // live offset -> block
	live   *roaring64.Bitmap // live offsets
	closed bool

	stats    atomicStats
	acquirer MemoryAcquirer
}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithMemoryAcquirer sets the memory acquirer for the arena.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(a *Arena) {
		a.acquirer = acquirer
	}
}

// WithAlignment sets the minimum allocation granule (rounded up to a power of two).
func WithAlignment(align int) Option {
	return func(a *Arena) {
		if align > 0 {
			a.alignment = conv.CeilPow2(align)
		}
	}
}

// New creates a new Arena with the given chunk size.
// The chunk size is rounded up to a power of two; <= 0 selects DefaultChunkSize.
func New(chunkSize int, opts ...Option) (*Arena, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	chunkBits := bits.Len(uint(chunkSize - 1)) //nolint:gosec // chunkSize > 0
	chunkSize = 1 << chunkBits
	chunkMask, err := conv.IntToUint64(chunkSize - 1)
	if err != nil {
		return nil, err
	}

	a := &Arena{
		chunkSize: chunkSize,
		chunkBits: chunkBits,
		chunkMask: chunkMask,
		alignment: DefaultAlignment,
		free:      make(map[int][]uint64),
		blocks:    make(map[uint64]block),
		live:      roaring64.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.alignment > a.chunkSize {
		return nil, fmt.Errorf("arena: alignment %d exceeds chunk size %d", a.alignment, a.chunkSize)
	}

	return a, nil
}

// ChunkSize returns the (power of two) chunk size.
func (a *Arena) ChunkSize() int {
	return a.chunkSize
}

func (a *Arena) allocateChunkLocked() (*chunk, error) {
	idx := len(a.chunks)
	if idx >= MaxChunks {
		return nil, ErrMaxChunksExceeded
	}

	chunkSize64 := int64(a.chunkSize)
	if a.acquirer != nil {
		if err := a.acquirer.AcquireMemory(chunkSize64); err != nil {
			return nil, err
		}
	}

	mapping, err := mmap.MapAnon(a.chunkSize)
	if err != nil {
		if a.acquirer != nil {
			a.acquirer.ReleaseMemory(chunkSize64)
		}
		return nil, fmt.Errorf("failed to map anonymous memory for chunk: %w", err)
	}

	c := &chunk{
		data:    mapping.Bytes(),
		mapping: mapping,
		index:   uint32(idx), //nolint:gosec // idx < MaxChunks
	}
	if idx == 0 {
		// Offset 0 is the null device pointer.
		c.offset = a.alignment
	}

	a.chunks = append(a.chunks, c)

	a.stats.ChunksAllocated.Add(1)
	chunkSizeU64, _ := conv.IntToUint64(a.chunkSize)
	a.stats.BytesReserved.Add(chunkSizeU64)

	return c, nil
}

// Alloc allocates size bytes and returns the global offset.
// Global offset = (ChunkIndex << ChunkBits) | ChunkOffset; 0 is never returned.
func (a *Arena) Alloc(size int) (uint64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: invalid size %d", ErrAllocationFailed, size)
	}

	class := conv.CeilPow2(max(size, a.alignment))
	if class > a.chunkSize {
		return 0, fmt.Errorf("%w: %w: %d > %d", ErrAllocationFailed, ErrTooLarge, size, a.chunkSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, ErrClosed
	}

	offset, err := a.takeLocked(class)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	a.blocks[offset] = block{class: class, requested: size}
	a.live.Add(offset)

	classU64, _ := conv.IntToUint64(class)
	sizeU64, _ := conv.IntToUint64(size)
	a.stats.BytesInUse.Add(classU64)
	a.stats.BytesRequested.Add(sizeU64)
	a.stats.TotalAllocs.Add(1)

	return offset, nil
}

func (a *Arena) takeLocked(class int) (uint64, error) {
	if list := a.free[class]; len(list) > 0 {
		offset := list[len(list)-1]
		a.free[class] = list[:len(list)-1]
		return offset, nil
	}

	var curr *chunk
	if n := len(a.chunks); n > 0 {
		curr = a.chunks[n-1]
	}
	if curr == nil || curr.offset+class > a.chunkSize {
		c, err := a.allocateChunkLocked()
		if err != nil {
			return 0, err
		}
		curr = c
	}

	local := curr.offset
	curr.offset += class

	localU64, err := conv.IntToUint64(local)
	if err != nil {
		return 0, err
	}
	return (uint64(curr.index) << a.chunkBits) | localU64, nil
}

// Free returns the allocation at offset to its size-class free list.
func (a *Arena) Free(offset uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if !a.live.Contains(offset) {
		return fmt.Errorf("%w: %#x", ErrInvalidFree, offset)
	}

	b := a.blocks[offset]
	delete(a.blocks, offset)
	a.live.Remove(offset)
	a.free[b.class] = append(a.free[b.class], offset)

	classU64, _ := conv.IntToUint64(b.class)
	sizeU64, _ := conv.IntToUint64(b.requested)
	a.stats.BytesInUse.Add(^(classU64 - 1))
	a.stats.BytesRequested.Add(^(sizeU64 - 1))
	a.stats.TotalFrees.Add(1)

	return nil
}

// Bytes returns the first size bytes of the live allocation at offset.
// The slice is valid until the allocation is freed or the arena is closed.
func (a *Arena) Bytes(offset uint64, size int) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrClosed
	}
	if !a.live.Contains(offset) {
		return nil, fmt.Errorf("%w: %#x", ErrStaleOffset, offset)
	}
	b := a.blocks[offset]
	if size < 0 || size > b.class {
		return nil, fmt.Errorf("arena: access of %d bytes exceeds allocation of %d at %#x", size, b.class, offset)
	}

	c := a.chunks[offset>>a.chunkBits]
	local := int(offset & a.chunkMask) //nolint:gosec // masked to chunk size
	return c.data[local : local+size : local+size], nil
}

// Span returns the raw class-sized region at offset regardless of liveness.
// It exists for poisoning freed memory and must not be used to read data.
func (a *Arena) Span(offset uint64) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.blocks[offset]
	if !ok || a.closed {
		return nil
	}
	c := a.chunks[offset>>a.chunkBits]
	local := int(offset & a.chunkMask) //nolint:gosec // masked to chunk size
	return c.data[local : local+b.class : local+b.class]
}

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats {
	a.mu.RLock()
	live := a.live.GetCardinality()
	a.mu.RUnlock()

	return Stats{
		ChunksAllocated: a.stats.ChunksAllocated.Load(),
		BytesReserved:   a.stats.BytesReserved.Load(),
		BytesInUse:      a.stats.BytesInUse.Load(),
		BytesRequested:  a.stats.BytesRequested.Load(),
		LiveAllocs:      live,
		TotalAllocs:     a.stats.TotalAllocs.Load(),
		TotalFrees:      a.stats.TotalFrees.Load(),
	}
}

// Close unmaps all chunks and releases their memory reservation.
// Every offset becomes invalid. Close is idempotent.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	for _, c := range a.chunks {
		if err := c.mapping.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.acquirer != nil {
		if reserved := a.stats.BytesReserved.Load(); reserved > 0 {
			a.acquirer.ReleaseMemory(int64(reserved)) //nolint:gosec // bounded by MaxChunks*chunkSize
		}
	}

	a.chunks = nil
	a.free = nil
	a.blocks = nil
	a.live.Clear()

	a.stats.BytesReserved.Store(0)
	a.stats.BytesInUse.Store(0)
	a.stats.BytesRequested.Store(0)

	return firstErr
}

// Usage returns the memory usage percentage.
func (a *Arena) Usage() float64 {
	stats := a.Stats()
	if stats.BytesReserved == 0 {
		return 0
	}
	return float64(stats.BytesInUse) / float64(stats.BytesReserved) * 100
}

func (a *Arena) String() string {
	stats := a.Stats()
	return fmt.Sprintf(
		"Arena{chunks: %d, reserved: %.2f MB, in use: %.2f MB, live: %d, usage: %.1f%%, allocs: %d, frees: %d}",
		stats.ChunksAllocated,
		float64(stats.BytesReserved)/(1024*1024),
		float64(stats.BytesInUse)/(1024*1024),
		stats.LiveAllocs,
		a.Usage(),
		stats.TotalAllocs,
		stats.TotalFrees,
	)
}

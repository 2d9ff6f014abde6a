// Package arena provides the device-memory arena of the simulated accelerator.
//
// Device memory is carved out of large off-heap chunks (anonymous mappings),
// so the garbage collector never scans it and freed regions can be poisoned
// without touching any Go object.
//
// # Features
//
//   - Off-heap chunks via internal/mmap (4 MiB default, power of two)
//   - Power-of-two size classes with per-class free lists
//   - Stable uint64 offsets usable as device pointers; offset 0 is null
//   - Live-allocation set (roaring64) catches double and wild frees
//   - Optional MemoryAcquirer charged per chunk for device memory limits
//
// # Safety
//
// All methods return errors instead of panicking. Bytes refuses offsets that
// are not live, which is how use-after-free becomes observable to kernels.
package arena

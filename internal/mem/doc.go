// Package mem provides host memory allocation for buffers.
//
// # Aligned Allocation
//
// Host allocations are 64-byte aligned so any fixed-layout element type can be
// viewed in place and so staging copies stay cache-line friendly.
//
// # Heap
//
// Heap is the default generic host allocator. Go memory is reclaimed by the
// garbage collector, so Free does not return bytes to the OS; it ends the
// allocation's accounted lifetime, which is what lets callers detect leaks and
// double frees.
package mem

// Package mmap provides anonymous off-heap memory mappings.
//
// # Overview
//
// Device memory in the simulated accelerator lives outside the Go heap so the
// garbage collector never scans or moves it, and so a freed region can be
// poisoned without affecting any Go object. Each arena chunk is one anonymous
// read-write mapping.
//
// # Usage
//
//	m, err := mmap.MapAnon(4 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes()
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON | MAP_PRIVATE
//   - Windows: VirtualAlloc/VirtualFree
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must ensure no
// goroutine touches Bytes() after Close() returns.
package mmap

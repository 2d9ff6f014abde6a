// Package conv provides overflow-checked size arithmetic and integer conversions.
//
// Buffer byte sizes are computed as count*elementSize; device pointers are
// uint64 offsets while Go slices are indexed by int. Every crossing between
// those domains goes through this package so an overflow surfaces as an error
// instead of a silently truncated allocation.
package conv

package asyncarray

import (
	"unsafe"

	"github.com/hupe1980/asyncarray/device"
)

// Span is a view of a buffer's primary storage, as returned by Buffer.Data.
// Exactly one of Device and Host is set for a non-empty buffer.
//
// A Span does not keep the Buffer alive. Device memory behind it stays valid
// for work enqueued before the Buffer is released or becomes unreachable.
type Span[T any] struct {
	Device device.Ptr
	Host   []T
	Len    int
}

// OnDevice reports whether the span refers to device memory.
func (s Span[T]) OnDevice() bool {
	return !s.Device.IsNil()
}

// IsNil reports whether the span refers to no storage.
func (s Span[T]) IsNil() bool {
	return s.Device.IsNil() && s.Host == nil
}

// Resolve returns a typed view of s. Device spans are resolved through mem,
// which kernels receive from their device.
func Resolve[T any](mem device.Memory, s Span[T]) ([]T, error) {
	if !s.OnDevice() {
		return s.Host, nil
	}
	var zero T
	raw, err := mem.Bytes(s.Device, s.Len*int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, err
	}
	return fromBytes[T](raw, s.Len), nil
}

package asyncarray

import (
	"context"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/asyncarray/device"
	"github.com/hupe1980/asyncarray/internal/conv"
)

// noCopy may be embedded in structs which must not be copied after first use.
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Buffer is a fixed-size array of trivially copyable elements that lives on
// the host, on the device, or both.
//
// A Buffer must not be copied. It is always used through *Buffer[T] and its
// storage is never transferred to another Buffer. Storage is returned by
// Release, by Scoped, or automatically once the Buffer is unreachable; in
// each case device memory is freed only after all work already enqueued on
// the current stream has completed.
type Buffer[T any] struct {
	_ noCopy

	n       int
	host    []T
	st      *storage
	cleanup runtime.Cleanup
	tracked bool
}

// storage is the part of a Buffer the release scheduler sees. It must not
// reference the Buffer, or automatic teardown would never run.
type storage struct {
	rt    *Runtime
	bytes int
	host  []byte
	dptr  device.Ptr

	released atomic.Bool
}

// New returns a buffer holding a copy of src.
//
// The host snapshot is taken before New returns. In a launch region the
// buffer also gets device storage, and a host-to-device copy of the
// snapshot is enqueued on the current stream without waiting for it.
func New[T any](src []T, opts ...Option) *Buffer[T] {
	checkElem[T]()
	o := applyOptions(opts)

	b := newBuffer[T](o.runtime, len(src))
	if b.st.bytes == 0 {
		return b
	}

	rt := o.runtime
	if b.allocHost() {
		copy(b.host, src)
		rt.metrics.RecordCopy(HostToHost, b.st.bytes, nil)
	}
	if rt.InLaunchRegion() && b.allocDevice() && b.st.host != nil {
		err := rt.Stream().CopyHostToDeviceAsync(b.st.dptr, b.st.host)
		rt.metrics.RecordCopy(HostToDevice, b.st.bytes, err)
		if err != nil {
			rt.fatal(abortf("copy to device", ErrCopyEnqueue, err))
		}
	}
	return b.track()
}

// NewUninit returns a buffer of n elements with unspecified contents.
//
// In a launch region only device storage is allocated; otherwise only host
// storage.
func NewUninit[T any](n int, opts ...Option) *Buffer[T] {
	checkElem[T]()
	o := applyOptions(opts)

	b := newBuffer[T](o.runtime, n)
	if b.st.bytes == 0 {
		return b
	}
	if o.runtime.InLaunchRegion() {
		b.allocDevice()
	} else {
		b.allocHost()
	}
	return b.track()
}

func newBuffer[T any](rt *Runtime, n int) *Buffer[T] {
	if n < 0 {
		n = 0
	}
	var zero T
	size, err := conv.ByteSize(n, int(unsafe.Sizeof(zero)))
	if err != nil {
		rt.fatal(abortf("size", ErrAllocationFailed, err))
		n, size = 0, 0
	}
	return &Buffer[T]{
		n:  n,
		st: &storage{rt: rt, bytes: size},
	}
}

func (b *Buffer[T]) allocHost() bool {
	rt := b.st.rt
	raw := rt.host.Alloc(b.st.bytes)
	if raw == nil {
		rt.metrics.RecordAlloc(SpaceHost, b.st.bytes, ErrAllocationFailed)
		rt.logger.LogAlloc(context.Background(), SpaceHost, b.n, b.st.bytes, ErrAllocationFailed)
		rt.fatal(abortf("host alloc", ErrAllocationFailed, nil))
		return false
	}
	rt.metrics.RecordAlloc(SpaceHost, b.st.bytes, nil)
	rt.logger.LogAlloc(context.Background(), SpaceHost, b.n, b.st.bytes, nil)
	b.st.host = raw
	b.host = fromBytes[T](raw, b.n)
	return true
}

func (b *Buffer[T]) allocDevice() bool {
	rt := b.st.rt
	p, err := rt.Arena().Alloc(b.st.bytes)
	if err == nil && p.IsNil() {
		err = ErrAllocationFailed
	}
	rt.metrics.RecordAlloc(SpaceDevice, b.st.bytes, err)
	rt.logger.LogAlloc(context.Background(), SpaceDevice, b.n, b.st.bytes, err)
	if err != nil {
		rt.fatal(abortf("device alloc", ErrAllocationFailed, err))
		return false
	}
	b.st.dptr = p
	return true
}

func (b *Buffer[T]) track() *Buffer[T] {
	if b.st.host != nil || !b.st.dptr.IsNil() {
		b.cleanup = runtime.AddCleanup(b, (*storage).release, b.st)
		b.tracked = true
	}
	return b
}

// Len returns the number of elements.
func (b *Buffer[T]) Len() int {
	return b.n
}

// Data returns the primary storage: device storage if present, else host
// storage. For an empty or released buffer both handles are nil.
//
// A Span does not keep its Buffer alive. Keep b reachable, or call Release,
// after enqueueing the work that uses the span; otherwise automatic teardown
// may enqueue the free ahead of that work.
func (b *Buffer[T]) Data() Span[T] {
	if !b.st.dptr.IsNil() {
		return Span[T]{Device: b.st.dptr, Len: b.n}
	}
	return Span[T]{Host: b.host, Len: b.n}
}

// Host returns the host storage, or nil if there is none.
//
// In a launch region the host storage of a New buffer is the snapshot the
// device copy reads from; it does not observe device-side writes.
func (b *Buffer[T]) Host() []T {
	return b.host
}

// DevicePtr returns the device storage, or the null pointer.
func (b *Buffer[T]) DevicePtr() device.Ptr {
	return b.st.dptr
}

// OnDevice reports whether the buffer has device storage.
func (b *Buffer[T]) OnDevice() bool {
	return !b.st.dptr.IsNil()
}

// CopyToHost copies the first len(dst) elements into dst.
//
// With device storage the copy is enqueued on the current stream and
// CopyToHost returns immediately; dst is valid only after the stream has
// been synchronized. Otherwise the copy is synchronous. len(dst) must not
// exceed Len.
func (b *Buffer[T]) CopyToHost(dst []T) {
	if len(dst) == 0 {
		return
	}
	rt := b.st.rt
	if p := b.st.dptr; !p.IsNil() {
		raw := asBytes(dst)
		err := rt.Stream().CopyDeviceToHostAsync(raw, p)
		rt.metrics.RecordCopy(DeviceToHost, len(raw), err)
		if err != nil {
			rt.fatal(abortf("copy to host", ErrCopyEnqueue, err))
		}
		// The free must not be enqueued before the copy.
		runtime.KeepAlive(b)
		return
	}
	n := copy(dst, b.host)
	rt.metrics.RecordCopy(HostToHost, n*int(unsafe.Sizeof(dst[0])), nil)
	runtime.KeepAlive(b)
}

// Release returns the buffer's storage. Device storage is freed only after
// the work already enqueued on the current stream completes. Release is
// idempotent; the buffer is empty afterwards.
func (b *Buffer[T]) Release() {
	if b.tracked {
		b.cleanup.Stop()
		b.tracked = false
	}
	b.st.release()
	b.host = nil
}

func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(s[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*size)
}

func fromBytes[T any](raw []byte, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(raw))), n)
}

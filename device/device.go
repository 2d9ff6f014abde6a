package device

import (
	"errors"
	"fmt"
)

// ErrClosed is reported by streams and arenas of a closed device. Memory of a
// closed device has been reclaimed as a whole.
var ErrClosed = errors.New("device: closed")

// Ptr is an opaque device address. The zero value is the null pointer.
type Ptr uint64

// IsNil reports whether p is the null device pointer.
func (p Ptr) IsNil() bool { return p == 0 }

func (p Ptr) String() string { return fmt.Sprintf("dev:%#x", uint64(p)) }

// Arena allocates device memory by byte size.
type Arena interface {
	// Alloc returns a device allocation of at least size bytes.
	Alloc(size int) (Ptr, error)
	// Free releases an allocation returned by Alloc.
	Free(p Ptr) error
}

// Stream is an ordered device command queue. Operations enqueued on one
// stream execute in submission order.
type Stream interface {
	// CopyHostToDeviceAsync enqueues a copy of src into dst and returns
	// without waiting. src must stay valid until the copy has executed.
	CopyHostToDeviceAsync(dst Ptr, src []byte) error
	// CopyDeviceToHostAsync enqueues a copy of len(dst) bytes from src into
	// dst and returns without waiting.
	CopyDeviceToHostAsync(dst []byte, src Ptr) error
	// Synchronize blocks until every operation enqueued so far has finished
	// and reports the first error the stream encountered.
	Synchronize() error
}

// Memory resolves device pointers to addressable bytes. It is available to
// kernels running on a stream.
type Memory interface {
	Bytes(p Ptr, size int) ([]byte, error)
}

// Device is an accelerator: its memory arena and its current stream.
type Device interface {
	Arena() Arena
	// Stream returns the stream new work should be enqueued on.
	Stream() Stream
}

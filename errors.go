package asyncarray

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrAllocationFailed is reported when host or device memory cannot be obtained.
	ErrAllocationFailed = errors.New("allocation failed")
	// ErrCallbackRegistration is reported when a deferred release cannot be
	// registered on the current stream.
	ErrCallbackRegistration = errors.New("completion callback registration failed")
	// ErrCopyEnqueue is reported when an asynchronous copy cannot be enqueued.
	ErrCopyEnqueue = errors.New("copy enqueue failed")
	// ErrStreamWait is reported when waiting for the current stream fails.
	ErrStreamWait = errors.New("stream synchronize failed")
	// ErrDeferredFree is reported when freeing inside a deferred release fails.
	ErrDeferredFree = errors.New("deferred free failed")
)

// AbortError describes a fatal failure. It is passed to the runtime's abort
// handler; the default handler panics with it.
//
// The underlying error can be accessed via errors.Unwrap.
type AbortError struct {
	Op  string
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("asyncarray: %s: %v", e.Op, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// ErrNotTriviallyCopyable is the panic value for element types that cannot
// be moved between host and device by a byte copy.
type ErrNotTriviallyCopyable struct {
	Type reflect.Type
	// Path locates the offending component, e.g. "field Name" or "elem".
	Path string
}

func (e *ErrNotTriviallyCopyable) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("asyncarray: element type %v is not trivially copyable", e.Type)
	}
	return fmt.Sprintf("asyncarray: element type %v is not trivially copyable (%s)", e.Type, e.Path)
}

func abortf(op string, sentinel, cause error) *AbortError {
	if cause == nil {
		return &AbortError{Op: op, Err: sentinel}
	}
	return &AbortError{Op: op, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

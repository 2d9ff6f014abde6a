// Package device defines the boundary between asyncarray and an accelerator
// runtime.
//
// A backend supplies three things:
//
//   - an Arena that allocates and frees device memory by byte size,
//   - ordered Streams with asynchronous host<->device copies and a blocking
//     Synchronize,
//   - optionally, a way to run host code after everything already enqueued on
//     a stream has finished.
//
// The last point differs between accelerator APIs. Some launch a host
// function on the stream, older ones add a stream callback that receives the
// stream status, queue-based APIs submit a host task. Each style is a small
// capability interface here, and CompleterFor folds them into the single
// Completer form that callers use. A stream with none of them has no
// asynchronous completion hook; callers must fall back to Synchronize.
//
// Device pointers are opaque Ptr values; 0 is the null pointer.
package device

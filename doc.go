// Package asyncarray provides Buffer, a fixed-size array of trivially
// copyable elements that moves between host and accelerator memory without
// making the host wait for the accelerator.
//
// # Quick Start
//
//	dev, _ := sim.New(sim.Config{})
//	rt := asyncarray.NewRuntime(dev)
//
//	b := asyncarray.New([]float32{1, 2, 3, 4}, asyncarray.WithRuntime(rt))
//	// ... launch kernels reading b.Data() on rt.Stream() ...
//	out := make([]float32, b.Len())
//	b.CopyToHost(out)
//	b.Release()          // returns immediately
//	_ = rt.Synchronize() // out is valid from here
//
// # Placement
//
// Whether a new buffer gets device storage depends on the runtime's launch
// region (Runtime.InLaunchRegion):
//
//	                 launch region          host only
//	New(src)         host snapshot + device  host snapshot
//	NewUninit(n)     device                 host
//
// A buffer never changes size or placement after construction.
//
// # Release
//
// Release, Scoped and automatic teardown (when a Buffer becomes
// unreachable) all run the same scheduler, at most once per buffer:
//
//   - no storage: nothing happens
//   - host storage only: it is freed immediately
//   - device storage: it is freed by a completion callback enqueued on the
//     current stream, so kernels and copies enqueued earlier can still use
//     it. Streams without a completion hook are synchronized first.
//
// Release never blocks on a stream that has a completion hook. Releasing
// after the device was closed is not an error: the device already reclaimed
// the memory, and the release is logged and counted as reclaimed.
//
// # Errors
//
// Allocation failures, failures to enqueue copies or completion callbacks
// and failures inside a deferred free are fatal. They are passed to the
// runtime's abort handler as *AbortError; the default handler logs and
// panics. Element types holding pointers, strings, slices, maps, channels,
// funcs or interfaces panic with *ErrNotTriviallyCopyable.
package asyncarray

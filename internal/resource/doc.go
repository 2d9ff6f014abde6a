// Package resource implements the device resource controller.
//
// The Controller governs the three resources a simulated accelerator shares
// between all of its streams:
//
//   - Memory: device bytes reserved by the arena (non-blocking, fail-fast)
//   - Copy engines: how many transfers may run at once across all streams
//   - Bandwidth: a token bucket throttling host<->device transfer bytes
//
// # Memory
//
// Memory tracking uses a weighted semaphore for hard limits and an atomic
// counter for usage. AcquireMemory never blocks; exceeding the limit returns
// ErrMemoryLimitExceeded so the arena can report an allocation failure:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	})
//	if err := rc.AcquireMemory(chunkSize); err != nil {
//	    // device out of memory
//	}
//	defer rc.ReleaseMemory(chunkSize)
//
// # Copy Engines
//
//	if err := rc.AcquireCopyEngine(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseCopyEngine()
//
// # Bandwidth
//
// AcquireIO splits requests larger than the bucket's burst so that a single
// large copy waits proportionally instead of failing.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource

package asyncarray

import (
	"context"
	"errors"

	"github.com/hupe1980/asyncarray/device"
)

// release runs the release scheduler. Only the first call has an effect.
//
// Host-only storage is freed inline. Device storage (and the host snapshot
// an in-flight copy may still read) is freed by a completion callback on the
// current stream, or, when the stream offers no completion hook, after
// synchronizing the stream. Device storage of a closed device went away with
// the device and is only accounted for.
func (s *storage) release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}

	rt := s.rt
	ctx := context.Background()
	host, dptr := s.host, s.dptr
	s.host, s.dptr = nil, 0

	switch {
	case host == nil && dptr.IsNil():
		rt.record(ctx, ReleaseNone, 0, 0)
	case dptr.IsNil():
		rt.host.Free(host)
		rt.record(ctx, ReleaseImmediate, s.bytes, 0)
	default:
		rt.releaseDevice(ctx, host, dptr, s.bytes)
	}
}

func (r *Runtime) releaseDevice(ctx context.Context, host []byte, dptr device.Ptr, size int) {
	arena := r.Arena()
	free := func() {
		if err := arena.Free(dptr); err != nil {
			if errors.Is(err, device.ErrClosed) {
				r.logger.LogReclaimed(ctx, dptr, err)
			} else {
				r.fatal(abortf("free", ErrDeferredFree, err))
			}
		}
		r.host.Free(host)
	}

	stream := r.Stream()
	if c, ok := device.CompleterFor(stream); ok {
		err := c.EnqueueCompletion(free)
		if err == nil {
			r.record(ctx, ReleaseDeferred, size, dptr)
			return
		}
		if errors.Is(err, device.ErrClosed) {
			r.reclaimed(ctx, host, dptr, size, err)
			return
		}
		r.fatal(abortf("release", ErrCallbackRegistration, err))
	}

	r.logger.LogFallback(ctx, dptr)
	if err := stream.Synchronize(); err != nil {
		if errors.Is(err, device.ErrClosed) {
			r.reclaimed(ctx, host, dptr, size, err)
			return
		}
		r.fatal(abortf("release", ErrStreamWait, err))
	}
	free()
	r.record(ctx, ReleaseSync, size, dptr)
}

// reclaimed accounts for device storage that was returned by closing its device.
func (r *Runtime) reclaimed(ctx context.Context, host []byte, dptr device.Ptr, size int, cause error) {
	r.logger.LogReclaimed(ctx, dptr, cause)
	r.host.Free(host)
	r.record(ctx, ReleaseReclaimed, size, dptr)
}

func (r *Runtime) record(ctx context.Context, path ReleasePath, size int, dptr device.Ptr) {
	r.metrics.RecordRelease(path, size)
	r.logger.LogRelease(ctx, path, size, dptr)
}

package asyncarray

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/asyncarray/device"
	"github.com/hupe1980/asyncarray/device/sim"
)

func TestRelease_NoUseAfterFree(t *testing.T) {
	src := []int32{1, 2, 3, 4, 5, 6, 7, 8}

	for _, flavor := range sim.Flavors {
		t.Run(flavor.String(), func(t *testing.T) {
			f := newFixture(t, sim.Config{Flavor: flavor, PoisonFreed: true})
			s := f.dev.Current()

			b := New(src, WithRuntime(f.rt))
			span := b.Data()

			var seen []int32
			var ran atomic.Bool
			release := s.Hold()
			require.NoError(t, s.Launch("reader", func(mem device.Memory) error {
				v, err := Resolve(mem, span)
				if err != nil {
					return err
				}
				seen = append(seen, v...)
				ran.Store(true)
				return nil
			}))

			if flavor == sim.FlavorBlocking {
				// Release waits for the stream, so open the gate from elsewhere.
				time.AfterFunc(20*time.Millisecond, release)
				b.Release()
				assert.True(t, ran.Load())
			} else {
				b.Release()
				assert.False(t, ran.Load(), "release must not wait for the stream")
				assert.Equal(t, uint64(1), f.dev.Stats().Arena.LiveAllocs)
				release()
			}

			require.NoError(t, f.rt.Synchronize())
			assert.Equal(t, src, seen)
			assert.Zero(t, f.dev.Stats().Arena.LiveAllocs)
			assert.Zero(t, f.heap.Stats().LiveBytes)
			assert.Empty(t, f.aborts.all())

			st := f.metrics.GetStats()
			if flavor == sim.FlavorBlocking {
				assert.Equal(t, int64(1), st.ReleasesSync)
			} else {
				assert.Equal(t, int64(1), st.ReleasesDeferred)
			}
		})
	}
}

func TestRelease_FreeRunsAfterPendingCopy(t *testing.T) {
	f := newFixture(t, sim.Config{})
	s := f.dev.Current()

	release := s.Hold()
	b := New([]uint64{42}, WithRuntime(f.rt))
	out := make([]uint64, 1)
	b.CopyToHost(out)
	b.Release()
	release()
	require.NoError(t, f.rt.Synchronize())

	assert.Equal(t, []uint64{42}, out)

	var kinds []sim.OpKind
	for _, ev := range f.dev.Trace() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []sim.OpKind{sim.OpHold, sim.OpCopyHtoD, sim.OpCopyDtoH, sim.OpHostFunc, sim.OpFence}, kinds)
}

func TestRelease_Idempotent(t *testing.T) {
	for _, flavor := range sim.Flavors {
		t.Run(flavor.String(), func(t *testing.T) {
			f := newFixture(t, sim.Config{Flavor: flavor})

			b := New([]float32{1, 2}, WithRuntime(f.rt))
			b.Release()
			b.Release()
			require.NoError(t, f.rt.Synchronize())
			b.Release()

			arena := f.dev.Stats().Arena
			assert.Equal(t, uint64(1), arena.TotalFrees)
			assert.Equal(t, uint64(1), f.heap.Stats().Frees)
			assert.True(t, b.Data().IsNil())
			assert.Nil(t, b.Host())
			assert.Equal(t, 2, b.Len())

			st := f.metrics.GetStats()
			assert.Equal(t, int64(1), st.ReleasesDeferred+st.ReleasesSync)
			assert.Empty(t, f.aborts.all())
		})
	}
}

func TestRelease_DeviceBufferAfterLeavingLaunchRegion(t *testing.T) {
	f := newFixture(t, sim.Config{})

	b := NewUninit[int](16, WithRuntime(f.rt))
	require.True(t, b.OnDevice())

	restore := f.rt.LaunchGuard(false)
	b.Release()
	restore()

	require.NoError(t, f.rt.Synchronize())
	assert.Equal(t, int64(1), f.metrics.GetStats().ReleasesDeferred)
	assert.Zero(t, f.dev.Stats().Arena.LiveAllocs)
}

func TestRelease_HostBufferInsideLaunchRegion(t *testing.T) {
	f := newFixture(t, sim.Config{})

	restore := f.rt.LaunchGuard(false)
	b := NewUninit[int](16, WithRuntime(f.rt))
	restore()
	require.True(t, f.rt.InLaunchRegion())

	before := f.dev.Stats().Enqueued
	b.Release()

	assert.Zero(t, f.heap.Stats().LiveBytes)
	assert.Equal(t, before, f.dev.Stats().Enqueued)
	assert.Equal(t, int64(1), f.metrics.GetStats().ReleasesImmediate)
}

func TestRelease_OnCurrentStream(t *testing.T) {
	f := newFixture(t, sim.Config{Streams: 2})

	b := New([]int16{1, 2, 3}, WithRuntime(f.rt))
	require.NoError(t, f.rt.Synchronize())
	require.NoError(t, f.dev.SetStream(1))
	b.Release()
	require.NoError(t, f.dev.Synchronize())

	var hostFuncStream = -1
	for _, ev := range f.dev.Trace() {
		if ev.Kind == sim.OpHostFunc {
			hostFuncStream = ev.Stream
		}
	}
	assert.Equal(t, 1, hostFuncStream)
	assert.Zero(t, f.dev.Stats().Arena.LiveAllocs)
}

func TestRelease_StatusCallbackOnFailedStream(t *testing.T) {
	f := newFixture(t, sim.Config{Flavor: sim.FlavorStreamCallback})
	s := f.dev.Current()

	b := New([]int32{1}, WithRuntime(f.rt))
	require.NoError(t, s.Launch("fault", func(device.Memory) error {
		return errors.New("illegal address")
	}))
	b.Release()

	assert.Error(t, f.rt.Synchronize())
	assert.Zero(t, f.dev.Stats().Arena.LiveAllocs)
	assert.Empty(t, f.aborts.all())
}

func TestRelease_RegistrationFailure(t *testing.T) {
	for _, flavor := range []sim.Flavor{sim.FlavorHostFunc, sim.FlavorStreamCallback, sim.FlavorHostTask} {
		t.Run(flavor.String(), func(t *testing.T) {
			f := newFixture(t, sim.Config{Flavor: flavor})
			boom := errors.New("out of launch slots")

			b := New([]int32{1, 2}, WithRuntime(f.rt))
			f.dev.Current().InjectCallbackError(boom)
			b.Release()

			aborts := f.aborts.all()
			require.Len(t, aborts, 1)
			assert.ErrorIs(t, aborts[0], ErrCallbackRegistration)
			assert.ErrorIs(t, aborts[0], boom)

			// The handler returned, so the storage went out synchronously.
			assert.Zero(t, f.dev.Stats().Arena.LiveAllocs)
			assert.Equal(t, int64(1), f.metrics.GetStats().ReleasesSync)
		})
	}
}

func TestRelease_DefaultAbortPanics(t *testing.T) {
	dev, err := sim.New(sim.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	rt := NewRuntime(dev)

	b := New([]int32{1}, WithRuntime(rt))
	dev.Current().InjectCallbackError(errors.New("rejected"))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		var ae *AbortError
		require.ErrorAs(t, r.(error), &ae)
		assert.Equal(t, "release", ae.Op)
		assert.ErrorIs(t, ae, ErrCallbackRegistration)
	}()
	b.Release()
	t.Fatal("release did not panic")
}

func TestRelease_Automatic(t *testing.T) {
	for _, active := range []bool{true, false} {
		f := newFixture(t, sim.Config{})
		f.rt.SetLaunchRegion(active)

		func() {
			b := New(make([]float64, 64), WithRuntime(f.rt))
			_ = b.Len()
		}()

		require.Eventually(t, func() bool {
			runtime.GC()
			st := f.metrics.GetStats()
			return st.ReleasesDeferred+st.ReleasesImmediate == 1
		}, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, f.rt.Synchronize())
		assert.Zero(t, f.dev.Stats().Arena.LiveAllocs)
		assert.Zero(t, f.heap.Stats().LiveBytes)
	}
}

func TestScoped(t *testing.T) {
	f := newFixture(t, sim.Config{})

	err := Scoped(New([]int32{1, 2, 3}, WithRuntime(f.rt)), func(b *Buffer[int32]) error {
		assert.True(t, b.OnDevice())
		return errors.New("kernel failed")
	})
	assert.EqualError(t, err, "kernel failed")

	assert.Panics(t, func() {
		_ = Scoped(NewUninit[int32](4, WithRuntime(f.rt)), func(*Buffer[int32]) error {
			panic("boom")
		})
	})

	require.NoError(t, f.rt.Synchronize())
	assert.Equal(t, int64(2), f.metrics.GetStats().ReleasesDeferred)
	assert.Zero(t, f.dev.Stats().Arena.LiveAllocs)
}

func TestAbort_DeviceAllocation(t *testing.T) {
	f := newFixture(t, sim.Config{ChunkSize: 4096})

	b := NewUninit[byte](8192, WithRuntime(f.rt))
	assert.False(t, b.OnDevice())
	assert.Nil(t, b.Host())

	aborts := f.aborts.all()
	require.Len(t, aborts, 1)
	assert.Equal(t, "device alloc", aborts[0].Op)
	assert.ErrorIs(t, aborts[0], ErrAllocationFailed)
	assert.Equal(t, int64(1), f.metrics.GetStats().AllocErrors)
	b.Release()
}

func TestAbort_DeviceMemoryLimit(t *testing.T) {
	f := newFixture(t, sim.Config{ChunkSize: 8192, MemoryLimitBytes: 8192})

	a := NewUninit[byte](4096, WithRuntime(f.rt))
	defer a.Release()
	b := NewUninit[byte](4096, WithRuntime(f.rt))
	defer b.Release()

	assert.True(t, a.OnDevice())
	assert.False(t, b.OnDevice())
	require.Len(t, f.aborts.all(), 1)
	assert.ErrorIs(t, f.aborts.all()[0], ErrAllocationFailed)
}

func TestAbort_CopyEnqueue(t *testing.T) {
	dev, err := sim.New(sim.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	boom := errors.New("queue full")
	f := newFixtureOn(t, dev, faultyDevice{Device: dev, copyErr: boom})

	b := New([]int32{1, 2}, WithRuntime(f.rt))
	b.CopyToHost(make([]int32, 2))
	b.Release()

	aborts := f.aborts.all()
	require.Len(t, aborts, 2)
	assert.Equal(t, "copy to device", aborts[0].Op)
	assert.Equal(t, "copy to host", aborts[1].Op)
	for _, ae := range aborts {
		assert.ErrorIs(t, ae, ErrCopyEnqueue)
		assert.ErrorIs(t, ae, boom)
	}
	assert.Equal(t, int64(2), f.metrics.GetStats().CopyErrors)

	// No completion hook on the wrapper: released synchronously.
	assert.Equal(t, int64(1), f.metrics.GetStats().ReleasesSync)
	assert.Zero(t, dev.Stats().Arena.LiveAllocs)
}

func TestAbort_DeferredFree(t *testing.T) {
	f := newFixture(t, sim.Config{})

	b := NewUninit[int32](4, WithRuntime(f.rt))
	require.NoError(t, f.dev.Arena().Free(b.DevicePtr()))
	b.Release()
	require.NoError(t, f.rt.Synchronize())

	aborts := f.aborts.all()
	require.Len(t, aborts, 1)
	assert.Equal(t, "free", aborts[0].Op)
	assert.ErrorIs(t, aborts[0], ErrDeferredFree)
}

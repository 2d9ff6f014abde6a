package asyncarray

import (
	"reflect"
	"runtime"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/asyncarray/device"
	"github.com/hupe1980/asyncarray/device/sim"
	"github.com/hupe1980/asyncarray/internal/mem"
)

type fixture struct {
	dev     *sim.Device
	rt      *Runtime
	heap    *mem.Heap
	metrics *BasicMetricsCollector
	aborts  *abortRecorder
}

type abortRecorder struct {
	mu   sync.Mutex
	errs []*AbortError
}

func (a *abortRecorder) handle(err *AbortError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *abortRecorder) all() []*AbortError {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*AbortError(nil), a.errs...)
}

func newFixture(t *testing.T, cfg sim.Config, opts ...RuntimeOption) *fixture {
	t.Helper()
	dev, err := sim.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return newFixtureOn(t, dev, dev, opts...)
}

func newFixtureOn(t *testing.T, simDev *sim.Device, dev device.Device, opts ...RuntimeOption) *fixture {
	t.Helper()
	f := &fixture{
		dev:     simDev,
		heap:    mem.NewHeap(),
		metrics: &BasicMetricsCollector{},
		aborts:  &abortRecorder{},
	}
	base := []RuntimeOption{
		WithHostAllocator(f.heap),
		WithMetrics(f.metrics),
		WithAbortHandler(f.aborts.handle),
	}
	f.rt = NewRuntime(dev, append(base, opts...)...)
	return f
}

func newHostFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, nil, nil)
}

// faultyStream fails every copy. It offers no completion hook.
type faultyStream struct {
	device.Stream
	copyErr error
}

func (s faultyStream) CopyHostToDeviceAsync(device.Ptr, []byte) error { return s.copyErr }
func (s faultyStream) CopyDeviceToHostAsync([]byte, device.Ptr) error { return s.copyErr }

type faultyDevice struct {
	*sim.Device
	copyErr error
}

func (d faultyDevice) Stream() device.Stream {
	return faultyStream{Stream: d.Device.Stream(), copyErr: d.copyErr}
}

func typeOf[T any]() reflect.Type { return reflect.TypeFor[T]() }

func unsafePointer[T any](s []T) unsafe.Pointer { return unsafe.Pointer(unsafe.SliceData(s)) }

// collectingStream runs the garbage collector before every device-to-host
// copy, so a Buffer whose last use is CopyToHost becomes collectable mid-call.
type collectingStream struct {
	device.Stream
	launcher device.HostFuncLauncher
}

func (s collectingStream) LaunchHostFunc(fn func()) error { return s.launcher.LaunchHostFunc(fn) }

func (s collectingStream) CopyDeviceToHostAsync(dst []byte, src device.Ptr) error {
	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
	return s.Stream.CopyDeviceToHostAsync(dst, src)
}

type collectingDevice struct {
	*sim.Device
}

func (d collectingDevice) Stream() device.Stream {
	s := d.Device.Stream()
	return collectingStream{Stream: s, launcher: s.(device.HostFuncLauncher)}
}

// collectUntil forces collections until cond holds.
func collectUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		runtime.GC()
		return cond()
	}, 5*time.Second, 5*time.Millisecond)
}

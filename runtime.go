package asyncarray

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/asyncarray/device"
	"github.com/hupe1980/asyncarray/internal/mem"
)

// HostAllocator provides host (pageable) storage for buffers.
type HostAllocator interface {
	Alloc(size int) []byte
	Free(b []byte)
}

// Runtime is the execution context buffers allocate from and enqueue onto.
//
// A Runtime without a device is host-only: it never enters a launch region.
type Runtime struct {
	dev     device.Device
	host    HostAllocator
	logger  *Logger
	metrics MetricsCollector
	abort   func(*AbortError)

	launch atomic.Bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger. If nil, NoopLogger is used.
func WithLogger(l *Logger) RuntimeOption {
	return func(r *Runtime) {
		if l == nil {
			l = NoopLogger()
		}
		r.logger = l
	}
}

// WithMetrics sets the metrics collector. If nil, NoopMetricsCollector is used.
func WithMetrics(mc MetricsCollector) RuntimeOption {
	return func(r *Runtime) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		r.metrics = mc
	}
}

// WithHostAllocator sets the host allocator. If nil, a mem.Heap is used.
func WithHostAllocator(h HostAllocator) RuntimeOption {
	return func(r *Runtime) {
		if h != nil {
			r.host = h
		}
	}
}

// WithAbortHandler replaces the handler for fatal failures.
//
// The default handler logs the error and panics with it. A handler that
// returns lets the operation continue best-effort: a failed allocation
// leaves the buffer without that allocation, and a failed registration
// falls back to a synchronous release.
func WithAbortHandler(fn func(*AbortError)) RuntimeOption {
	return func(r *Runtime) {
		r.abort = fn
	}
}

// NewRuntime creates a runtime on dev. A nil dev gives a host-only runtime.
// With a device the launch region starts enabled.
func NewRuntime(dev device.Device, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		dev:     dev,
		host:    mem.NewHeap(),
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.abort == nil {
		r.abort = r.defaultAbort
	}
	r.launch.Store(dev != nil)
	return r
}

var (
	defaultMu  sync.Mutex
	defaultRun *Runtime
)

// Default returns the process-wide runtime. Unless replaced by SetDefault
// it is host-only.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRun == nil {
		defaultRun = NewRuntime(nil)
	}
	return defaultRun
}

// SetDefault replaces the process-wide runtime and returns the previous one.
func SetDefault(r *Runtime) *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultRun
	defaultRun = r
	if prev == nil {
		prev = NewRuntime(nil)
	}
	return prev
}

// Device returns the device, or nil for a host-only runtime.
func (r *Runtime) Device() device.Device {
	return r.dev
}

// InLaunchRegion reports whether new buffers are placed on the device.
func (r *Runtime) InLaunchRegion() bool {
	return r.dev != nil && r.launch.Load()
}

// SetLaunchRegion enables or disables the launch region and returns the
// previous state. It has no effect on a host-only runtime.
func (r *Runtime) SetLaunchRegion(on bool) bool {
	if r.dev == nil {
		return false
	}
	return r.launch.Swap(on)
}

// LaunchGuard sets the launch region and returns a function restoring the
// previous state.
//
//	defer rt.LaunchGuard(false)()
func (r *Runtime) LaunchGuard(on bool) func() {
	prev := r.SetLaunchRegion(on)
	return func() { r.SetLaunchRegion(prev) }
}

// Stream returns the device's current stream, or nil for a host-only runtime.
func (r *Runtime) Stream() device.Stream {
	if r.dev == nil {
		return nil
	}
	return r.dev.Stream()
}

// Arena returns the device arena, or nil for a host-only runtime.
func (r *Runtime) Arena() device.Arena {
	if r.dev == nil {
		return nil
	}
	return r.dev.Arena()
}

// Synchronize waits until the current stream is idle.
func (r *Runtime) Synchronize() error {
	s := r.Stream()
	if s == nil {
		return nil
	}
	return s.Synchronize()
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *Logger {
	return r.logger
}

func (r *Runtime) fatal(err *AbortError) {
	r.abort(err)
}

func (r *Runtime) defaultAbort(err *AbortError) {
	r.logger.LogAbort(context.Background(), err)
	panic(err)
}

package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/asyncarray/device"
	"github.com/hupe1980/asyncarray/internal/arena"
	"github.com/hupe1980/asyncarray/internal/resource"
)

// Stats is a snapshot of device resource usage.
type Stats struct {
	Arena       arena.Stats
	ArenaUsage  float64 // percent of reserved device memory held by live allocations
	MemoryUsage int64   // bytes reserved against the memory limit
	CopyBytes   int64   // bytes moved by copy engines
	CopyStalls  uint64  // transfers that waited for a free copy engine
	Throttled   uint64  // transfers that waited for copy bandwidth
	Enqueued    uint64  // operations enqueued on all streams
}

// Device is a simulated accelerator.
type Device struct {
	cfg     Config
	arena   *arena.Arena
	dArena  *deviceArena
	memory  deviceMemory
	rc      *resource.Controller
	streams []*Stream
	current atomic.Int32
	trace   tracer
	logger  *slog.Logger

	copyStalls atomic.Uint64
	throttled  atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

var _ device.Device = (*Device)(nil)

// New creates a simulated device and starts its streams.
func New(cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   cfg.MemoryLimitBytes,
		CopyEngines:        cfg.CopyEngines,
		IOLimitBytesPerSec: cfg.CopyBytesPerSec,
	})

	a, err := arena.New(cfg.ChunkSize, arena.WithMemoryAcquirer(rc))
	if err != nil {
		return nil, fmt.Errorf("sim: create arena: %w", err)
	}

	d := &Device{
		cfg:    cfg,
		arena:  a,
		dArena: &deviceArena{a: a, poison: cfg.PoisonFreed},
		memory: deviceMemory{a: a},
		rc:     rc,
		logger: cfg.Logger,
	}

	d.streams = make([]*Stream, cfg.Streams)
	for i := range d.streams {
		d.streams[i] = newStream(i, d)
	}

	d.logger.Debug("simulated device started",
		"streams", cfg.Streams,
		"flavor", cfg.Flavor.String(),
		"chunk_size", a.ChunkSize(),
	)

	return d, nil
}

// Flavor returns the completion-callback flavor of the device's streams.
func (d *Device) Flavor() Flavor {
	return d.cfg.Flavor
}

// Arena implements device.Device.
func (d *Device) Arena() device.Arena {
	return d.dArena
}

// Memory returns the device memory view kernels use.
func (d *Device) Memory() device.Memory {
	return d.memory
}

// Stream implements device.Device. The returned stream exposes the
// completion capability selected by the device flavor.
func (d *Device) Stream() device.Stream {
	return wrap(d.Current(), d.cfg.Flavor)
}

// Current returns the current stream.
func (d *Device) Current() *Stream {
	return d.streams[d.current.Load()]
}

// StreamAt returns stream i.
func (d *Device) StreamAt(i int) *Stream {
	return d.streams[i]
}

// NumStreams returns the number of streams.
func (d *Device) NumStreams() int {
	return len(d.streams)
}

// SetStream makes stream i current.
func (d *Device) SetStream(i int) error {
	if i < 0 || i >= len(d.streams) {
		return fmt.Errorf("sim: stream %d out of range [0,%d)", i, len(d.streams))
	}
	d.current.Store(int32(i)) //nolint:gosec // bounded by len(d.streams)
	return nil
}

// Synchronize waits for every stream and returns the first error.
func (d *Device) Synchronize() error {
	var g errgroup.Group
	for _, s := range d.streams {
		g.Go(s.Synchronize)
	}
	return g.Wait()
}

// Trace returns the executed operations in completion order.
func (d *Device) Trace() []Event {
	return d.trace.snapshot()
}

// ResetTrace discards recorded events.
func (d *Device) ResetTrace() {
	d.trace.reset()
}

// Stats returns a resource usage snapshot.
func (d *Device) Stats() Stats {
	var enqueued uint64
	for _, s := range d.streams {
		enqueued += s.Enqueued()
	}
	return Stats{
		Arena:       d.arena.Stats(),
		ArenaUsage:  d.arena.Usage(),
		MemoryUsage: d.rc.MemoryUsage(),
		CopyBytes:   d.rc.IOBytes(),
		CopyStalls:  d.copyStalls.Load(),
		Throttled:   d.throttled.Load(),
		Enqueued:    enqueued,
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("sim.Device{flavor: %s, streams: %d, memory: %s}", d.cfg.Flavor, len(d.streams), d.arena)
}

// Close drains every stream, stops them and unmaps device memory.
// Work still stalled by Hold blocks Close until released.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		for _, s := range d.streams {
			s.close()
		}
		d.closeErr = d.arena.Close()
		d.logger.Debug("simulated device closed")
	})
	return d.closeErr
}

package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/hupe1980/asyncarray/device"
)

// ErrStreamClosed is returned when enqueueing on a closed stream.
// It matches device.ErrClosed.
var ErrStreamClosed = fmt.Errorf("sim: stream closed: %w", device.ErrClosed)

// Kernel is device work. It may read and write device memory through mem.
type Kernel func(mem device.Memory) error

type op struct {
	kind  OpKind
	name  string
	bytes int
	run   func() error
	done  chan struct{}
}

// Stream is an in-order device queue serviced by one goroutine.
//
// Stream itself exposes no completion-callback capability; Device.Stream
// wraps it according to the device flavor.
type Stream struct {
	id  int
	dev *Device

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *queue.Queue // of *op
	closed   bool
	err      error // first failure, sticky
	inject   error // next callback registration fails with this
	enqueued uint64

	stopped chan struct{}
}

func newStream(id int, dev *Device) *Stream {
	s := &Stream{
		id:      id,
		dev:     dev,
		pending: queue.New(),
		stopped: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// ID returns the stream index within its device.
func (s *Stream) ID() int {
	return s.id
}

func (s *Stream) run() {
	defer close(s.stopped)
	for {
		s.mu.Lock()
		for s.pending.Length() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.pending.Length() == 0 {
			s.mu.Unlock()
			return
		}
		o, _ := s.pending.Remove().(*op)
		s.mu.Unlock()

		s.execute(o)
	}
}

func (s *Stream) execute(o *op) {
	start := time.Now()
	var err error
	if o.run != nil {
		err = o.run()
	}
	s.dev.trace.record(Event{
		Stream: s.id,
		Kind:   o.kind,
		Name:   o.name,
		Bytes:  o.bytes,
		Start:  start,
		End:    time.Now(),
		Err:    err,
	})

	if err != nil {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
		s.dev.logger.Warn("stream operation failed",
			"stream", s.id,
			"kind", o.kind.String(),
			"name", o.name,
			"error", err,
		)
	}

	if o.done != nil {
		close(o.done)
	}
}

func (s *Stream) enqueue(o *op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.pending.Add(o)
	s.enqueued++
	s.cond.Signal()
	return nil
}

// Pending returns the number of operations not yet started.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length()
}

// Enqueued returns the total number of operations ever enqueued.
func (s *Stream) Enqueued() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueued
}

// Err returns the first error the stream encountered, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CopyHostToDeviceAsync implements device.Stream.
func (s *Stream) CopyHostToDeviceAsync(dst device.Ptr, src []byte) error {
	if dst.IsNil() {
		return fmt.Errorf("sim: htod copy to null pointer")
	}
	n := len(src)
	return s.enqueue(&op{
		kind:  OpCopyHtoD,
		name:  "memcpy_htod",
		bytes: n,
		run: func() error {
			return s.transfer(n, func() error {
				b, err := s.dev.arena.Bytes(uint64(dst), n)
				if err != nil {
					return err
				}
				copy(b, src)
				return nil
			})
		},
	})
}

// CopyDeviceToHostAsync implements device.Stream.
func (s *Stream) CopyDeviceToHostAsync(dst []byte, src device.Ptr) error {
	if src.IsNil() {
		return fmt.Errorf("sim: dtoh copy from null pointer")
	}
	n := len(dst)
	return s.enqueue(&op{
		kind:  OpCopyDtoH,
		name:  "memcpy_dtoh",
		bytes: n,
		run: func() error {
			return s.transfer(n, func() error {
				b, err := s.dev.arena.Bytes(uint64(src), n)
				if err != nil {
					return err
				}
				copy(dst, b)
				return nil
			})
		},
	})
}

func (s *Stream) transfer(n int, fn func() error) error {
	ctx := context.Background()
	rc := s.dev.rc
	if !rc.TryAcquireCopyEngine() {
		s.dev.copyStalls.Add(1)
		if err := rc.AcquireCopyEngine(ctx); err != nil {
			return err
		}
	}
	defer rc.ReleaseCopyEngine()
	if !rc.TryAcquireIO(n) {
		s.dev.throttled.Add(1)
		if err := rc.AcquireIO(ctx, n); err != nil {
			return err
		}
	}
	return fn()
}

// Launch enqueues a kernel.
func (s *Stream) Launch(name string, k Kernel) error {
	return s.enqueue(&op{
		kind: OpKernel,
		name: name,
		run: func() error {
			return k(s.dev.memory)
		},
	})
}

// Hold enqueues a gate that stalls the stream until release is called.
// Work enqueued after Hold does not start before release.
func (s *Stream) Hold() (release func()) {
	gate := make(chan struct{})
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	if err := s.enqueue(&op{
		kind: OpHold,
		name: "hold",
		run: func() error {
			<-gate
			return nil
		},
	}); err != nil {
		release()
	}
	return release
}

// Synchronize implements device.Stream.
func (s *Stream) Synchronize() error {
	done := make(chan struct{})
	if err := s.enqueue(&op{kind: OpFence, name: "synchronize", done: done}); err != nil {
		return err
	}
	<-done
	return s.Err()
}

// InjectCallbackError makes the next completion-callback registration on
// this stream fail with err.
func (s *Stream) InjectCallbackError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inject = err
}

func (s *Stream) enqueueHost(name string, fn func()) error {
	s.mu.Lock()
	if err := s.inject; err != nil {
		s.inject = nil
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.enqueue(&op{
		kind: OpHostFunc,
		name: name,
		run: func() error {
			fn()
			return nil
		},
	})
}

func (s *Stream) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.stopped
}

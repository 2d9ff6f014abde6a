package sim

import (
	"fmt"
	"sync"
	"time"
)

// OpKind classifies stream operations in the trace.
type OpKind int

const (
	OpCopyHtoD OpKind = iota
	OpCopyDtoH
	OpKernel
	OpHostFunc
	OpFence
	OpHold
)

func (k OpKind) String() string {
	switch k {
	case OpCopyHtoD:
		return "htod"
	case OpCopyDtoH:
		return "dtoh"
	case OpKernel:
		return "kernel"
	case OpHostFunc:
		return "host"
	case OpFence:
		return "fence"
	case OpHold:
		return "hold"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Event is one executed stream operation.
type Event struct {
	Seq    uint64 // device-wide completion order
	Stream int
	Kind   OpKind
	Name   string
	Bytes  int
	Start  time.Time
	End    time.Time
	Err    error
}

type tracer struct {
	mu     sync.Mutex
	events []Event
	seq    uint64
}

func (t *tracer) record(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	ev.Seq = t.seq
	t.events = append(t.events, ev)
}

func (t *tracer) snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

func (t *tracer) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

package sim

import (
	"fmt"
	"log/slog"
)

// Flavor selects the completion-callback style a device's streams expose.
type Flavor int

const (
	// FlavorHostFunc streams launch host functions in stream order.
	FlavorHostFunc Flavor = iota
	// FlavorStreamCallback streams add callbacks that receive the stream status.
	FlavorStreamCallback
	// FlavorHostTask streams accept host tasks submitted to the queue.
	FlavorHostTask
	// FlavorBlocking streams have no asynchronous completion hook.
	FlavorBlocking
)

// Flavors lists every flavor, for table-driven tests.
var Flavors = []Flavor{FlavorHostFunc, FlavorStreamCallback, FlavorHostTask, FlavorBlocking}

func (f Flavor) String() string {
	switch f {
	case FlavorHostFunc:
		return "host-func"
	case FlavorStreamCallback:
		return "stream-callback"
	case FlavorHostTask:
		return "host-task"
	case FlavorBlocking:
		return "blocking"
	default:
		return fmt.Sprintf("Flavor(%d)", int(f))
	}
}

// PoisonByte fills freed device memory when Config.PoisonFreed is set.
const PoisonByte = 0xDB

// Config configures a simulated device. The zero value is usable.
type Config struct {
	// Streams is the number of streams. If <= 0, defaults to 1.
	Streams int

	// Flavor selects the completion-callback capability of the streams.
	Flavor Flavor

	// ChunkSize is the device arena chunk size. If <= 0, the arena default is used.
	ChunkSize int

	// MemoryLimitBytes caps device memory. If 0, unlimited.
	MemoryLimitBytes int64

	// CopyEngines is the number of concurrent transfers across all streams.
	// If 0, the resource controller default is used.
	CopyEngines int64

	// CopyBytesPerSec throttles transfers. If 0, unlimited.
	CopyBytesPerSec int64

	// PoisonFreed overwrites device memory with PoisonByte when it is freed.
	PoisonFreed bool

	// Logger receives device diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Streams <= 0 {
		c.Streams = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// DefaultCopyEngines is the number of concurrent transfers when unset.
const DefaultCopyEngines = 2

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for device memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// CopyEngines is the number of transfers that may run concurrently
	// across all streams. If 0, defaults to DefaultCopyEngines.
	CopyEngines int64

	// IOLimitBytesPerSec is the host<->device transfer bandwidth.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages device resources (memory, copy engines, bandwidth).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Copy engines
	copySem *semaphore.Weighted

	// Bandwidth
	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.CopyEngines <= 0 {
		cfg.CopyEngines = DefaultCopyEngines
	}

	c := &Controller{
		cfg:     cfg,
		copySem: semaphore.NewWeighted(cfg.CopyEngines),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
// Non-blocking - callers decide what a refusal means.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireCopyEngine reserves a copy engine. Blocks if all engines are busy.
func (c *Controller) AcquireCopyEngine(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.copySem.Acquire(ctx, 1)
}

// TryAcquireCopyEngine reserves a copy engine without blocking.
func (c *Controller) TryAcquireCopyEngine() bool {
	if c == nil {
		return true
	}
	return c.copySem.TryAcquire(1)
}

// ReleaseCopyEngine releases a copy engine.
func (c *Controller) ReleaseCopyEngine() {
	if c == nil {
		return
	}
	c.copySem.Release(1)
}

// AcquireIO waits until the bandwidth limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	c.ioBytes.Add(int64(bytes))
	if c.ioLimiter == nil {
		return nil
	}

	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// TryAcquireIO takes bandwidth tokens for bytes without blocking and reports
// whether it succeeded. Accepted bytes are counted like AcquireIO.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.ioLimiter != nil && !c.ioLimiter.AllowN(time.Now(), bytes) {
		return false
	}
	c.ioBytes.Add(int64(bytes))
	return true
}

// IOBytes returns the total bytes accounted through AcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}
	return c.ioBytes.Load()
}

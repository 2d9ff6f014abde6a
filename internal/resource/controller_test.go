package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Limit exceeded
	err := c.AcquireMemory(20)
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
	assert.Equal(t, int64(0), c.MemoryLimit())
}

func TestController_CopyEngines(t *testing.T) {
	c := NewController(Config{CopyEngines: 2})

	require.NoError(t, c.AcquireCopyEngine(t.Context()))
	require.NoError(t, c.AcquireCopyEngine(t.Context()))

	assert.False(t, c.TryAcquireCopyEngine())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireCopyEngine(ctx))

	c.ReleaseCopyEngine()
	assert.True(t, c.TryAcquireCopyEngine())
}

func TestController_DefaultCopyEngines(t *testing.T) {
	c := NewController(Config{})
	for i := 0; i < DefaultCopyEngines; i++ {
		assert.True(t, c.TryAcquireCopyEngine())
	}
	assert.False(t, c.TryAcquireCopyEngine())
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	require.NoError(t, c.AcquireIO(t.Context(), 100))
	// Larger than burst is split rather than rejected.
	require.NoError(t, c.AcquireIO(t.Context(), (1<<20)+10))
	assert.Equal(t, int64(100+(1<<20)+10), c.IOBytes())

	unlimited := NewController(Config{})
	require.NoError(t, unlimited.AcquireIO(t.Context(), 1<<30))
	assert.True(t, unlimited.TryAcquireIO(1<<30))
	assert.Equal(t, int64(2<<30), unlimited.IOBytes())
}

func TestController_TryAcquireIO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 100})

	assert.True(t, c.TryAcquireIO(100))
	assert.False(t, c.TryAcquireIO(50), "bucket is empty")
	assert.Equal(t, int64(100), c.IOBytes())
}

func TestController_IOCanceled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 10})
	require.NoError(t, c.AcquireIO(t.Context(), 10)) // drain the bucket

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, c.AcquireIO(ctx, 10))
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.MemoryLimit())
	assert.NoError(t, c.AcquireCopyEngine(t.Context()))
	assert.True(t, c.TryAcquireCopyEngine())
	c.ReleaseCopyEngine()
	assert.NoError(t, c.AcquireIO(t.Context(), 10))
	assert.True(t, c.TryAcquireIO(10))
	assert.Zero(t, c.IOBytes())
}

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSize(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := ByteSize(4, 4)
		require.NoError(t, err)
		assert.Equal(t, 16, got)
	})

	t.Run("zero count", func(t *testing.T) {
		got, err := ByteSize(0, 8)
		require.NoError(t, err)
		assert.Equal(t, 0, got)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := ByteSize(-1, 4)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := ByteSize(math.MaxInt/2+1, 4)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestIntToUint64(t *testing.T) {
	got, err := IntToUint64(123)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), got)

	_, err = IntToUint64(-1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCeilPow2(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 1}, {0, 1}, {1, 1}, {2, 2}, {3, 4}, {8, 8}, {9, 16}, {1000, 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CeilPow2(tt.in), "CeilPow2(%d)", tt.in)
	}
}

package conv

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// ErrOverflow is returned when a size computation does not fit the target type.
var ErrOverflow = errors.New("conv: integer overflow")

// ByteSize returns count*elemSize, failing on negative inputs or overflow.
func ByteSize(count, elemSize int) (int, error) {
	if count < 0 || elemSize < 0 {
		return 0, fmt.Errorf("%w: negative size %d*%d", ErrOverflow, count, elemSize)
	}
	hi, lo := bits.Mul64(uint64(count), uint64(elemSize))
	if hi != 0 || lo > math.MaxInt {
		return 0, fmt.Errorf("%w: %d*%d exceeds int", ErrOverflow, count, elemSize)
	}
	return int(lo), nil
}

// IntToUint64 converts int to uint64 safely.
func IntToUint64(v int) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d cannot be converted to uint64 (negative)", ErrOverflow, v)
	}
	return uint64(v), nil
}

// CeilPow2 returns the smallest power of two >= v (v <= 0 yields 1).
func CeilPow2(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

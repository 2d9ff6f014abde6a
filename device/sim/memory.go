package sim

import (
	"errors"
	"fmt"

	"github.com/hupe1980/asyncarray/device"
	"github.com/hupe1980/asyncarray/internal/arena"
)

type deviceArena struct {
	a      *arena.Arena
	poison bool
}

func (d *deviceArena) Alloc(size int) (device.Ptr, error) {
	off, err := d.a.Alloc(size)
	if err != nil {
		return 0, closedErr(err)
	}
	return device.Ptr(off), nil
}

func (d *deviceArena) Free(p device.Ptr) error {
	if d.poison {
		span := d.a.Span(uint64(p))
		for i := range span {
			span[i] = PoisonByte
		}
	}
	return closedErr(d.a.Free(uint64(p)))
}

type deviceMemory struct {
	a *arena.Arena
}

func (m deviceMemory) Bytes(p device.Ptr, size int) ([]byte, error) {
	b, err := m.a.Bytes(uint64(p), size)
	return b, closedErr(err)
}

// closedErr maps a closed arena to device.ErrClosed.
func closedErr(err error) error {
	if errors.Is(err, arena.ErrClosed) {
		return fmt.Errorf("sim: %w: %w", device.ErrClosed, err)
	}
	return err
}

package asyncarray

import (
	"fmt"
	"sync/atomic"
)

// Space identifies where an allocation lives.
type Space int

const (
	SpaceHost Space = iota
	SpaceDevice
)

func (s Space) String() string {
	switch s {
	case SpaceHost:
		return "host"
	case SpaceDevice:
		return "device"
	default:
		return fmt.Sprintf("Space(%d)", int(s))
	}
}

// Direction is the direction of a copy.
type Direction int

const (
	HostToDevice Direction = iota
	DeviceToHost
	HostToHost
)

func (d Direction) String() string {
	switch d {
	case HostToDevice:
		return "htod"
	case DeviceToHost:
		return "dtoh"
	case HostToHost:
		return "htoh"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ReleasePath is the branch the release scheduler took for a buffer.
type ReleasePath int

const (
	// ReleaseNone: the buffer held no allocation.
	ReleaseNone ReleasePath = iota
	// ReleaseImmediate: host-only storage freed inline.
	ReleaseImmediate
	// ReleaseDeferred: free registered as a stream completion callback.
	ReleaseDeferred
	// ReleaseSync: stream synchronized, then freed inline.
	ReleaseSync
	// ReleaseReclaimed: the device was closed first and took the storage with it.
	ReleaseReclaimed
)

func (p ReleasePath) String() string {
	switch p {
	case ReleaseNone:
		return "none"
	case ReleaseImmediate:
		return "immediate"
	case ReleaseDeferred:
		return "deferred"
	case ReleaseSync:
		return "sync"
	case ReleaseReclaimed:
		return "reclaimed"
	default:
		return fmt.Sprintf("ReleasePath(%d)", int(p))
	}
}

// MetricsCollector defines an interface for collecting buffer metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAlloc is called after each host or device allocation attempt.
	RecordAlloc(space Space, bytes int, err error)

	// RecordRelease is called once per buffer teardown.
	RecordRelease(path ReleasePath, bytes int)

	// RecordCopy is called after each copy is performed or enqueued.
	RecordCopy(dir Direction, bytes int, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(Space, int, error)    {}
func (NoopMetricsCollector) RecordRelease(ReleasePath, int)   {}
func (NoopMetricsCollector) RecordCopy(Direction, int, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	HostAllocs       atomic.Int64
	HostAllocBytes   atomic.Int64
	DeviceAllocs     atomic.Int64
	DeviceAllocBytes atomic.Int64
	AllocErrors      atomic.Int64

	ReleasesNone      atomic.Int64
	ReleasesImmediate atomic.Int64
	ReleasesDeferred  atomic.Int64
	ReleasesSync      atomic.Int64
	ReleasesReclaimed atomic.Int64
	ReleasedBytes     atomic.Int64

	CopiesHtoD  atomic.Int64
	CopiesDtoH  atomic.Int64
	CopiesHtoH  atomic.Int64
	CopiedBytes atomic.Int64
	CopyErrors  atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(space Space, bytes int, err error) {
	if err != nil {
		b.AllocErrors.Add(1)
		return
	}
	switch space {
	case SpaceHost:
		b.HostAllocs.Add(1)
		b.HostAllocBytes.Add(int64(bytes))
	case SpaceDevice:
		b.DeviceAllocs.Add(1)
		b.DeviceAllocBytes.Add(int64(bytes))
	}
}

// RecordRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelease(path ReleasePath, bytes int) {
	switch path {
	case ReleaseNone:
		b.ReleasesNone.Add(1)
	case ReleaseImmediate:
		b.ReleasesImmediate.Add(1)
	case ReleaseDeferred:
		b.ReleasesDeferred.Add(1)
	case ReleaseSync:
		b.ReleasesSync.Add(1)
	case ReleaseReclaimed:
		b.ReleasesReclaimed.Add(1)
	}
	b.ReleasedBytes.Add(int64(bytes))
}

// RecordCopy implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCopy(dir Direction, bytes int, err error) {
	if err != nil {
		b.CopyErrors.Add(1)
		return
	}
	switch dir {
	case HostToDevice:
		b.CopiesHtoD.Add(1)
	case DeviceToHost:
		b.CopiesDtoH.Add(1)
	case HostToHost:
		b.CopiesHtoH.Add(1)
	}
	b.CopiedBytes.Add(int64(bytes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		HostAllocs:        b.HostAllocs.Load(),
		HostAllocBytes:    b.HostAllocBytes.Load(),
		DeviceAllocs:      b.DeviceAllocs.Load(),
		DeviceAllocBytes:  b.DeviceAllocBytes.Load(),
		AllocErrors:       b.AllocErrors.Load(),
		ReleasesNone:      b.ReleasesNone.Load(),
		ReleasesImmediate: b.ReleasesImmediate.Load(),
		ReleasesDeferred:  b.ReleasesDeferred.Load(),
		ReleasesSync:      b.ReleasesSync.Load(),
		ReleasesReclaimed: b.ReleasesReclaimed.Load(),
		ReleasedBytes:     b.ReleasedBytes.Load(),
		CopiesHtoD:        b.CopiesHtoD.Load(),
		CopiesDtoH:        b.CopiesDtoH.Load(),
		CopiesHtoH:        b.CopiesHtoH.Load(),
		CopiedBytes:       b.CopiedBytes.Load(),
		CopyErrors:        b.CopyErrors.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	HostAllocs        int64
	HostAllocBytes    int64
	DeviceAllocs      int64
	DeviceAllocBytes  int64
	AllocErrors       int64
	ReleasesNone      int64
	ReleasesImmediate int64
	ReleasesDeferred  int64
	ReleasesSync      int64
	ReleasesReclaimed int64
	ReleasedBytes     int64
	CopiesHtoD        int64
	CopiesDtoH        int64
	CopiesHtoH        int64
	CopiedBytes       int64
	CopyErrors        int64
}

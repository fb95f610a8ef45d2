package metrics

import (
	"sync/atomic"
	"time"
)

const (
	// BucketCount is the number of latency histogram buckets.
	BucketCount   = 8
	cacheLineSize = 64
)

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Set is a fixed-size table of counters and histograms indexed by small
// integer IDs. A nil or disabled Set ignores writes.
type Set struct {
	enabled       bool
	enableLatency bool
	counters      []paddedCounter
	histograms    []histogram
}

// New allocates n counters. Histograms are allocated only when latency is enabled.
func New(n int, enabled, latency bool) *Set {
	s := &Set{
		enabled:       enabled,
		enableLatency: enabled && latency,
		counters:      make([]paddedCounter, n),
	}
	if s.enableLatency {
		s.histograms = make([]histogram, n)
	}
	return s
}

func (s *Set) Enabled() bool {
	return s != nil && s.enabled
}

func (s *Set) LatencyEnabled() bool {
	return s != nil && s.enableLatency
}

func (s *Set) Inc(id int) {
	if s == nil || !s.enabled || id < 0 || id >= len(s.counters) {
		return
	}
	atomic.AddUint64(&s.counters[id].value, 1)
}

func (s *Set) Observe(id int, d time.Duration) {
	if s == nil || !s.enableLatency || id < 0 || id >= len(s.histograms) {
		return
	}
	atomic.AddUint64(&s.histograms[id].buckets[BucketIndex(d)], 1)
}

func (s *Set) Value(id int) uint64 {
	if s == nil || id < 0 || id >= len(s.counters) {
		return 0
	}
	return atomic.LoadUint64(&s.counters[id].value)
}

// Buckets returns a copy of the histogram for id, or nil when latency is off.
func (s *Set) Buckets(id int) []uint64 {
	if s == nil || !s.enableLatency || id < 0 || id >= len(s.histograms) {
		return nil
	}
	out := make([]uint64, BucketCount)
	for i := range out {
		out[i] = atomic.LoadUint64(&s.histograms[id].buckets[i])
	}
	return out
}

// BucketIndex maps d onto the ≤5ms, ≤10ms, ≤25ms, ≤50ms, ≤100ms, ≤250ms,
// ≤500ms, +Inf buckets.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

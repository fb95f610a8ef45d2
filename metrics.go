package portalAuth

import (
	"time"

	"github.com/MrEthical07/portalAuth/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginRejected
	MetricLoginLocked
	MetricLockoutTriggered
	MetricSecondFactorRequired
	MetricSecondFactorSuccess
	MetricSecondFactorFailure
	MetricSecondFactorExhausted
	MetricTOTPReplay
	MetricPasswordUpgraded
	MetricCodeIssued
	MetricCodeThrottled
	MetricCodeVerified
	MetricCodeRejected
	MetricCodeDeliveryFailed
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricTOTPEnabled
	MetricTOTPDisabled
	MetricUnlock
	// MetricLoginLatency is the only histogram; it times the password step.
	MetricLoginLatency
	metricIDCount
)

// MetricCount is the number of defined MetricIDs.
const MetricCount = int(metricIDCount)

// Metrics holds the engine's counters.
type Metrics struct {
	set *metrics.Set
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates counters according to cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{set: metrics.New(int(metricIDCount), cfg.Enabled, cfg.EnableLatencyHistograms)}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.set.Enabled()
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil {
		return
	}
	m.set.Inc(int(id))
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id != MetricLoginLatency {
		return
	}
	m.set.Observe(int(id), d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil {
		return 0
	}
	return m.set.Value(int(id))
}

// Snapshot copies all counters. A disabled Metrics returns empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.set.LatencyEnabled() {
		s.Histograms[MetricLoginLatency] = m.set.Buckets(int(MetricLoginLatency))
	}
	return s
}

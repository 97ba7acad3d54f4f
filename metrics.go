package autosubmit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricValidationAccepted counts backend outcomes that admitted the session.
	MetricValidationAccepted MetricID = iota
	// MetricValidationRejected counts backend outcomes that proved the credential wrong.
	MetricValidationRejected
	// MetricBackendUnavailable counts validation requests that could not reach the backend.
	MetricBackendUnavailable
	// MetricBackendError counts validation requests that failed inside the backend.
	MetricBackendError
	// MetricStaleOutcomeDiscarded counts outcomes dropped because the buffer moved on.
	MetricStaleOutcomeDiscarded
	// MetricStaleFireDiscarded counts debounce fires dropped before dispatch for the same reason.
	MetricStaleFireDiscarded
	// MetricDebounceFired counts debounce timers that reached the controller.
	MetricDebounceFired
	// MetricRequestSuperseded counts in-flight requests overtaken by a newer generation.
	MetricRequestSuperseded
	// MetricLockoutEngaged counts transitions into the lockout window.
	MetricLockoutEngaged
	// MetricLockoutRefused counts validation attempts refused while locked out.
	MetricLockoutRefused
	// MetricSessionAdmitted counts successful admissions.
	MetricSessionAdmitted
	// MetricAttemptCancelled counts explicit Cancel calls that wiped a live attempt.
	MetricAttemptCancelled
	// MetricReceiptIssued counts signed admission receipts minted.
	MetricReceiptIssued
	// MetricValidateLatency is the backend round-trip latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// A nil or disabled Metrics is safe to use and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter. Safe from any goroutine.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one backend round-trip duration.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and the latency histogram. The copy is not
// atomic across counters; individual values are.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

// LatencyBuckets returns the histogram's upper bounds. The final +Inf
// bucket is implied; exporters append their own representation of it.
func LatencyBuckets() []time.Duration {
	return []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
	}
}

// Buckets: <=5ms, 10, 25, 50, 100, 250, 500, +Inf. Sized for a local PAM
// or shadow backend, not a network IdP.
func bucketIndex(d time.Duration) int {
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

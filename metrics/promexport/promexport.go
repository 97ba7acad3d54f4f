// Package promexport bridges the engine's in-process counters onto a
// Prometheus registry. The engine keeps its own lock-free counters so
// the hot path never touches client_golang; this collector reads a
// snapshot per scrape and emits const metrics.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/greetline/autosubmit"
)

const namespace = "autosubmit"

var counterNames = map[autosubmit.MetricID]struct {
	name string
	help string
}{
	autosubmit.MetricValidationAccepted:    {"validation_accepted_total", "Backend outcomes that admitted the session"},
	autosubmit.MetricValidationRejected:    {"validation_rejected_total", "Backend outcomes that rejected the credential"},
	autosubmit.MetricBackendUnavailable:    {"backend_unavailable_total", "Validation requests that could not reach the backend"},
	autosubmit.MetricBackendError:          {"backend_error_total", "Validation requests that failed inside the backend"},
	autosubmit.MetricStaleOutcomeDiscarded: {"stale_outcome_discarded_total", "Outcomes dropped because the buffer moved on"},
	autosubmit.MetricStaleFireDiscarded:    {"stale_fire_discarded_total", "Debounce fires dropped before dispatch"},
	autosubmit.MetricDebounceFired:         {"debounce_fired_total", "Debounce timers that reached the controller"},
	autosubmit.MetricRequestSuperseded:     {"request_superseded_total", "In-flight requests overtaken by a newer generation"},
	autosubmit.MetricLockoutEngaged:        {"lockout_engaged_total", "Transitions into the lockout window"},
	autosubmit.MetricLockoutRefused:        {"lockout_refused_total", "Validation attempts refused while locked out"},
	autosubmit.MetricSessionAdmitted:       {"session_admitted_total", "Successful admissions"},
	autosubmit.MetricAttemptCancelled:      {"attempt_cancelled_total", "Cancelled live attempts"},
	autosubmit.MetricReceiptIssued:         {"receipt_issued_total", "Signed admission receipts minted"},
}

// Collector reads one MetricsSnapshot per scrape.
type Collector struct {
	source      func() autosubmit.MetricsSnapshot
	dropped     func() uint64
	descs       map[autosubmit.MetricID]*prometheus.Desc
	latencyDesc *prometheus.Desc
	droppedDesc *prometheus.Desc
}

// NewCollector wraps an engine. Register the result on a prometheus
// registry, typically prometheus.DefaultRegisterer.
func NewCollector(engine *autosubmit.Engine) *Collector {
	c := NewCollectorFunc(func() autosubmit.MetricsSnapshot {
		return engine.Metrics().Snapshot()
	})
	c.dropped = engine.AuditDropped
	return c
}

// NewCollectorFunc wraps an arbitrary snapshot source.
func NewCollectorFunc(source func() autosubmit.MetricsSnapshot) *Collector {
	descs := make(map[autosubmit.MetricID]*prometheus.Desc, len(counterNames))
	for id, meta := range counterNames {
		descs[id] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", meta.name),
			meta.help, nil, nil,
		)
	}
	return &Collector{
		source: source,
		descs:  descs,
		latencyDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "validate_latency_seconds"),
			"Backend validation round-trip latency", nil, nil,
		),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "audit_dropped_total"),
			"Audit events dropped under dispatcher backpressure", nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	ch <- c.latencyDesc
	ch <- c.droppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source()

	for id, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snap.Counters[id]))
	}

	if c.dropped != nil {
		ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(c.dropped()))
	}

	buckets, ok := snap.Histograms[autosubmit.MetricValidateLatency]
	if !ok {
		return
	}
	bounds := autosubmit.LatencyBuckets()

	cumulative := make(map[float64]uint64, len(bounds))
	var count uint64
	var sum float64
	prevBound := 0.0
	for i, bound := range bounds {
		count += buckets[i]
		upper := bound.Seconds()
		cumulative[upper] = count
		// The engine records bucket counts only; the sum is estimated
		// from bucket midpoints.
		sum += float64(buckets[i]) * (prevBound + upper) / 2
		prevBound = upper
	}
	if len(buckets) > len(bounds) {
		overflow := buckets[len(bounds)]
		count += overflow
		sum += float64(overflow) * prevBound
	}

	ch <- prometheus.MustNewConstHistogram(c.latencyDesc, count, sum, cumulative)
}

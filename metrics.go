package formguard

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by formguard APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	MetricSubmissionAllowed MetricID = iota
	MetricSubmissionDegraded
	MetricSubmissionDenied
	MetricTokenInvalid
	MetricRateLimitExceeded
	MetricRateLimitUnavailable
	MetricBodyUnparsable
	MetricBotTokenMissing
	MetricBotActionMismatch
	MetricBotScoreTooLow
	MetricBotVerificationUnavailable
	MetricBotVerified
	MetricTokenIssued
	// MetricVerifyLatency is a histogram over the whole pipeline.
	MetricVerifyLatency
	// MetricBotVerifyLatency is a histogram over the provider round trip.
	MetricBotVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and latency histograms for a Guard.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and enabled histograms.
// Histogram slices hold non-cumulative bucket counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metrics set. Latency histograms need both flags.
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

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Non-latency IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isLatencyMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, both latency histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range [...]MetricID{MetricVerifyLatency, MetricBotVerifyLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricVerifyLatency || id == MetricBotVerifyLatency
}

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

var reasonMetric = map[Reason]MetricID{
	ReasonTokenInvalid:      MetricTokenInvalid,
	ReasonRateLimitExceeded: MetricRateLimitExceeded,
	ReasonBodyUnparsable:    MetricBodyUnparsable,
	ReasonBotTokenMissing:   MetricBotTokenMissing,
	ReasonBotActionMismatch: MetricBotActionMismatch,
	ReasonBotScoreTooLow:    MetricBotScoreTooLow,
}

var degradationMetric = map[Degradation]MetricID{
	DegradedRateLimitUnavailable:       MetricRateLimitUnavailable,
	DegradedBotVerificationUnavailable: MetricBotVerificationUnavailable,
}

func (m *Metrics) recordVerdict(v Verdict) {
	if !m.Enabled() {
		return
	}
	switch v.Outcome {
	case OutcomeDenied:
		m.Inc(MetricSubmissionDenied)
		if id, ok := reasonMetric[v.Reason]; ok {
			m.Inc(id)
		}
	case OutcomeAllowedDegraded:
		m.Inc(MetricSubmissionDegraded)
		for _, d := range v.Degraded {
			if id, ok := degradationMetric[d]; ok {
				m.Inc(id)
			}
		}
	default:
		m.Inc(MetricSubmissionAllowed)
	}
}

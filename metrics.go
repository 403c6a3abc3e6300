package authgate

import (
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate/internal/limiters"
)

// MetricID indexes the fixed set of engine counters and histograms.
type MetricID uint16

const (
	// MetricRateLimitAllowed counts limiter decisions that consumed a token.
	MetricRateLimitAllowed MetricID = iota
	// MetricRateLimitDenied counts limiter rejections.
	MetricRateLimitDenied
	// MetricRateLimitStoreError counts fail-open decisions caused by store failures.
	MetricRateLimitStoreError
	// MetricRateLimitDisabled counts decisions made while no store is configured.
	MetricRateLimitDisabled
	// MetricRateLimitUnknownRoute counts checks for routes without a policy.
	MetricRateLimitUnknownRoute
	MetricSignupSuccess
	MetricSignupDuplicate
	MetricSignupFailure
	MetricOTPVerifySuccess
	MetricOTPVerifyFailure
	MetricOTPResent
	MetricOTPResendNotNeeded
	MetricOTPResendFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginUnverified
	MetricPasswordRehash
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	// MetricMailFailure counts mail deliveries that failed after the flow succeeded.
	MetricMailFailure
	MetricTokenInvalid
	// MetricRateLimitLatency is the histogram of limiter round-trip latency.
	MetricRateLimitLatency
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

// Metrics is a lock-free set of counters. The zero value is disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
// Histogram slices hold non-cumulative bucket counts.
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

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricRateLimitLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRateLimitLatency {
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

// Snapshot reads every counter atomically. The latency histogram is only
// included when latency histograms are enabled.
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
		if id == MetricRateLimitLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRateLimitLatency].buckets[i])
		}
		s.Histograms[MetricRateLimitLatency] = buckets
	}

	return s
}

// ObserveDecision lets Metrics observe the rate limiter gate directly.
func (m *Metrics) ObserveDecision(_ string, outcome limiters.Outcome, latency time.Duration) {
	switch outcome {
	case limiters.OutcomeAllowed:
		m.Inc(MetricRateLimitAllowed)
	case limiters.OutcomeDenied:
		m.Inc(MetricRateLimitDenied)
	case limiters.OutcomeStoreError:
		m.Inc(MetricRateLimitStoreError)
	case limiters.OutcomeDisabled:
		m.Inc(MetricRateLimitDisabled)
		return
	case limiters.OutcomeUnknownRoute:
		m.Inc(MetricRateLimitUnknownRoute)
		return
	}
	m.Observe(MetricRateLimitLatency, latency)
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

package authgate

import (
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/internal/limiters"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRateLimitAllowed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRateLimitAllowed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsObserveDecision(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.ObserveDecision(RouteLogin, limiters.OutcomeAllowed, 2*time.Millisecond)
	m.ObserveDecision(RouteLogin, limiters.OutcomeDenied, 30*time.Millisecond)
	m.ObserveDecision(RouteLogin, limiters.OutcomeStoreError, time.Second)
	m.ObserveDecision(RouteLogin, limiters.OutcomeDisabled, 0)
	m.ObserveDecision("nope", limiters.OutcomeUnknownRoute, 0)

	snap := m.Snapshot()
	for id, want := range map[MetricID]uint64{
		MetricRateLimitAllowed:      1,
		MetricRateLimitDenied:       1,
		MetricRateLimitStoreError:   1,
		MetricRateLimitDisabled:     1,
		MetricRateLimitUnknownRoute: 1,
	} {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}
	if _, ok := snap.Counters[MetricRateLimitLatency]; ok {
		t.Fatalf("latency histogram should not appear as a counter")
	}

	hist := snap.Histograms[MetricRateLimitLatency]
	if len(hist) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(hist))
	}
	var total uint64
	for _, c := range hist {
		total += c
	}
	if total != 3 {
		t.Fatalf("expected 3 latency observations, got %d", total)
	}
	if hist[0] != 1 || hist[3] != 1 || hist[7] != 1 {
		t.Fatalf("unexpected bucket distribution: %v", hist)
	}
}

func TestMetricsLatencyDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: false})
	m.ObserveDecision(RouteLogin, limiters.OutcomeAllowed, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricRateLimitLatency]; ok {
		t.Fatalf("expected no histogram when latency is disabled")
	}
	if snap.Counters[MetricRateLimitAllowed] != 1 {
		t.Fatalf("expected allowed counter to still count")
	}
}

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
	}
	for _, tt := range tests {
		if got := bucketIndex(tt.d); got != tt.want {
			t.Fatalf("bucketIndex(%v): expected %d, got %d", tt.d, tt.want, got)
		}
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricRateLimitLatency, time.Millisecond)
	m.ObserveDecision(RouteLogin, limiters.OutcomeAllowed, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 || m.Enabled() {
		t.Fatalf("expected nil metrics to be inert")
	}
}

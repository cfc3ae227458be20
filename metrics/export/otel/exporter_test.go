package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/formguard"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot formguard.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() formguard.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := formguard.MetricsSnapshot{
		Counters:   make(map[formguard.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[formguard.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

// int64Value returns the datapoint of name whose attributes include key=value.
// An empty key matches the first datapoint.
func int64Value(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	match := func(set attribute.Set) bool {
		if key == "" {
			return true
		}
		v, ok := set.Value(attribute.Key(key))
		return ok && v.AsString() == value
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value
					}
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not collected", name, key, value)
	return 0
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("formguard-test")

	src := &fakeSource{
		snapshot: formguard.MetricsSnapshot{
			Counters: map[formguard.MetricID]uint64{
				formguard.MetricSubmissionAllowed:    7,
				formguard.MetricSubmissionDenied:     4,
				formguard.MetricRateLimitExceeded:    3,
				formguard.MetricTokenInvalid:         1,
				formguard.MetricRateLimitUnavailable: 2,
				formguard.MetricTokenIssued:          9,
			},
			Histograms: map[formguard.MetricID][]uint64{
				formguard.MetricBotVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	checks := []struct {
		name, key, value string
		want             int64
	}{
		{"formguard.submissions", "outcome", "allowed", 7},
		{"formguard.submissions", "outcome", "denied", 4},
		{"formguard.submissions", "outcome", "allowed_degraded", 0},
		{"formguard.denials", "reason", "rate_limit_exceeded", 3},
		{"formguard.denials", "reason", "token_invalid", 1},
		{"formguard.degradations", "degradation", "rate_limit_unavailable", 2},
		{"formguard.tokens.issued", "", "", 9},
		{"formguard.bot.latency.buckets", "le", "0.025", 3},
		{"formguard.bot.latency.buckets", "le", "+Inf", 8},
		{"formguard.bot.latency.count", "", "", 8},
		{"formguard.audit.dropped", "", "", 1},
	}
	for _, c := range checks {
		if got := int64Value(t, rm, c.name, c.key, c.value); got != c.want {
			t.Fatalf("%s{%s=%q} = %d, want %d", c.name, c.key, c.value, got, c.want)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("formguard-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil guard, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("formguard-test")

	src := &fakeSource{
		snapshot: formguard.MetricsSnapshot{
			Counters: map[formguard.MetricID]uint64{
				formguard.MetricSubmissionAllowed: 1,
			},
			Histograms: map[formguard.MetricID][]uint64{
				formguard.MetricVerifyLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[formguard.MetricSubmissionAllowed] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

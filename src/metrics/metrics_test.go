package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"resilient-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := New(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumWhere(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)

	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)

	var total int64
	for _, dp := range data.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordResult(ctx, models.MResult{Provider: "p", Source: models.SourceStale})
	m.RecordResult(ctx, models.MResult{Provider: "p", Source: models.SourcePrimary})
	m.RecordAttempt(ctx, "p", "p", 20*time.Millisecond, errors.New("boom"))
	m.RecordAttempt(ctx, "p", "p-fallback-1", 10*time.Millisecond, nil)
	m.RecordTransition(models.MBreakerTransition{Provider: "p", To: models.BreakerOpen})
	m.RecordProbe(models.MHealthRecord{Name: "p", Status: models.HealthUnhealthy})
	m.RecordReconnect()
	m.RecordReconnect()
	m.RecordPoll("price-update", nil)
	m.RecordEnvelope(models.MRealtimeEnvelope{Topic: "price-update", Origin: models.OriginPoll})

	rm := collect(t, reader)

	assert.Equal(t, int64(1), sumWhere(t, findMetric(rm, MetricRequests.Name), "source", "stale"))
	assert.Equal(t, int64(2), sumWhere(t, findMetric(rm, MetricRequests.Name), "", ""))
	assert.Equal(t, int64(1), sumWhere(t, findMetric(rm, MetricAttempts.Name), "outcome", "failure"))
	assert.Equal(t, int64(1), sumWhere(t, findMetric(rm, MetricBreakerTransitions.Name), "to", "open"))
	assert.Equal(t, int64(1), sumWhere(t, findMetric(rm, MetricProbes.Name), "status", "unhealthy"))
	assert.Equal(t, int64(2), sumWhere(t, findMetric(rm, MetricReconnects.Name), "", ""))
	assert.Equal(t, int64(1), sumWhere(t, findMetric(rm, MetricPolls.Name), "outcome", "success"))
	assert.Equal(t, int64(1), sumWhere(t, findMetric(rm, MetricEnvelopes.Name), "origin", "poll"))

	latency := findMetric(rm, MetricAttemptLatency.Name)
	require.NotNil(t, latency)
	histogram, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range histogram.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestMetrics_NilAndNop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordResult(context.Background(), models.MResult{})
		m.RecordReconnect()
		m.RecordPoll("x", nil)
	})

	nop := NewNop()
	require.NotNil(t, nop)
	assert.NotPanics(t, func() { nop.RecordReconnect() })
}

// -----------------------------------------------------------------------------

func TestProvider_Totals(t *testing.T) {
	provider, err := NewProvider("test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	provider.Metrics.RecordReconnect()
	provider.Metrics.RecordReconnect()
	provider.Metrics.RecordAttempt(context.Background(), "p", "e", 10*time.Millisecond, nil)
	provider.Metrics.RecordAttempt(context.Background(), "p", "e", 20*time.Millisecond, errors.New("boom"))

	totals, err := provider.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals[MetricReconnects.Name])
	assert.Equal(t, int64(2), totals[MetricAttempts.Name])
	assert.Equal(t, int64(2), totals[MetricAttemptLatency.Name])
}

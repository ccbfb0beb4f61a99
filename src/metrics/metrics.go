// Package metrics exposes the resilience counters through OpenTelemetry.
// Instruments are created once; a nil *Metrics is a valid no-op recorder.
package metrics

import (
	"context"
	"fmt"
	"time"

	"resilient-feed/src/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric describes one instrument.
type Metric struct {
	Name        string
	Description string
	Unit        string
}

var (
	MetricRequests = Metric{
		Name:        "feed_requests_total",
		Unit:        "1",
		Description: "Orchestrated requests by provider and result source.",
	}
	MetricAttempts = Metric{
		Name:        "feed_upstream_attempts_total",
		Unit:        "1",
		Description: "Upstream attempts by provider, endpoint and outcome.",
	}
	MetricAttemptLatency = Metric{
		Name:        "feed_upstream_attempt_duration_seconds",
		Unit:        "s",
		Description: "Duration of upstream attempts.",
	}
	MetricBreakerTransitions = Metric{
		Name:        "feed_breaker_transitions_total",
		Unit:        "1",
		Description: "Circuit breaker state changes by provider and target state.",
	}
	MetricProbes = Metric{
		Name:        "feed_health_probes_total",
		Unit:        "1",
		Description: "Health probes by endpoint and resulting status.",
	}
	MetricReconnects = Metric{
		Name:        "feed_realtime_reconnects_total",
		Unit:        "1",
		Description: "Scheduled realtime reconnect attempts.",
	}
	MetricPolls = Metric{
		Name:        "feed_realtime_polls_total",
		Unit:        "1",
		Description: "Fallback poll requests by topic and outcome.",
	}
	MetricEnvelopes = Metric{
		Name:        "feed_realtime_envelopes_total",
		Unit:        "1",
		Description: "Delivered realtime envelopes by topic and origin.",
	}
)

// DefaultLatencyBuckets in seconds
var DefaultLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// -----------------------------------------------------------------------------

// Metrics records resilience events.
type Metrics struct {
	requests    metric.Int64Counter
	attempts    metric.Int64Counter
	latency     metric.Float64Histogram
	transitions metric.Int64Counter
	probes      metric.Int64Counter
	reconnects  metric.Int64Counter
	polls       metric.Int64Counter
	envelopes   metric.Int64Counter
}

// -----------------------------------------------------------------------------

// New creates every instrument on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []struct {
		target *metric.Int64Counter
		def    Metric
	}{
		{&m.requests, MetricRequests},
		{&m.attempts, MetricAttempts},
		{&m.transitions, MetricBreakerTransitions},
		{&m.probes, MetricProbes},
		{&m.reconnects, MetricReconnects},
		{&m.polls, MetricPolls},
		{&m.envelopes, MetricEnvelopes},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.def.Name,
			metric.WithDescription(c.def.Description),
			metric.WithUnit(c.def.Unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.def.Name, err)
		}
		*c.target = counter
	}

	latency, err := meter.Float64Histogram(MetricAttemptLatency.Name,
		metric.WithDescription(MetricAttemptLatency.Description),
		metric.WithUnit(MetricAttemptLatency.Unit),
		metric.WithExplicitBucketBoundaries(DefaultLatencyBuckets...))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", MetricAttemptLatency.Name, err)
	}
	m.latency = latency

	return m, nil
}

// NewNop returns a recorder backed by the otel no-op meter.
func NewNop() *Metrics {
	m, _ := New(noop.NewMeterProvider().Meter("noop"))
	return m
}

// -----------------------------------------------------------------------------

// RecordResult counts one orchestrated request.
func (m *Metrics) RecordResult(ctx context.Context, result models.MResult) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", result.Provider),
		attribute.String("source", string(result.Source)),
	))
}

// RecordAttempt counts one upstream attempt and its duration.
func (m *Metrics) RecordAttempt(ctx context.Context, provider, endpoint string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.latency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTransition counts a breaker state change.
func (m *Metrics) RecordTransition(transition models.MBreakerTransition) {
	if m == nil {
		return
	}
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider", transition.Provider),
		attribute.String("to", string(transition.To)),
	))
}

// RecordProbe counts a finished health probe.
func (m *Metrics) RecordProbe(record models.MHealthRecord) {
	if m == nil {
		return
	}
	m.probes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", record.Name),
		attribute.String("status", string(record.Status)),
	))
}

// RecordReconnect counts a scheduled reconnect.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Add(context.Background(), 1)
}

// RecordPoll counts one poll request.
func (m *Metrics) RecordPoll(topic string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.polls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	))
}

// RecordEnvelope counts a delivered envelope.
func (m *Metrics) RecordEnvelope(envelope models.MRealtimeEnvelope) {
	if m == nil {
		return
	}
	m.envelopes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("topic", envelope.Topic),
		attribute.String("origin", string(envelope.Origin)),
	))
}

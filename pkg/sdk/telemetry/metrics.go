package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by the gate, supervisor and
// readiness packages. A nil *Metrics records nothing, so callers never need
// to guard. Without a configured MeterProvider the global no-op meter is used.
type Metrics struct {
	Acquisitions  metric.Int64Counter     // Credential acquisitions by outcome
	CacheLookups  metric.Int64Counter     // Cache reads by validity status
	ProcessEvents metric.Int64Counter     // Supervisor lifecycle events by type
	HealthPolls   metric.Int64Counter     // Health poll attempts by result
	ReadyDuration metric.Float64Histogram // Time until all health URLs answered
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter("svcgate"))
}

// NewMetricsWithMeter creates the instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	acquisitions, err := meter.Int64Counter(
		"svcgate.credential.acquisitions",
		metric.WithDescription("Credential acquisition attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"svcgate.credential.cache_lookups",
		metric.WithDescription("Credential cache reads by validity status"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	processEvents, err := meter.Int64Counter(
		"svcgate.process.events",
		metric.WithDescription("Supervised process lifecycle events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	healthPolls, err := meter.Int64Counter(
		"svcgate.health.polls",
		metric.WithDescription("Health check poll attempts"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 250ms .. 2m
	readyDuration, err := meter.Float64Histogram(
		"svcgate.health.ready_duration",
		metric.WithDescription("Time until every health URL reported ready"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Acquisitions:  acquisitions,
		CacheLookups:  cacheLookups,
		ProcessEvents: processEvents,
		HealthPolls:   healthPolls,
		ReadyDuration: readyDuration,
	}, nil
}

// RecordAcquisition counts an acquisition attempt with its outcome.
func (m *Metrics) RecordAcquisition(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Acquisitions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCacheLookup counts a cache read with the resulting validity status.
func (m *Metrics) RecordCacheLookup(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProcessEvent counts a supervisor event.
func (m *Metrics) RecordProcessEvent(ctx context.Context, event, mode string) {
	if m == nil {
		return
	}
	m.ProcessEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("mode", mode),
	))
}

// RecordHealthPoll counts a single poll of url.
func (m *Metrics) RecordHealthPoll(ctx context.Context, url string, ready bool) {
	if m == nil {
		return
	}
	m.HealthPolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("url", url),
		attribute.Bool("ready", ready),
	))
}

// RecordReady records how long the readiness wait took.
func (m *Metrics) RecordReady(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReadyDuration.Record(ctx, float64(elapsed.Milliseconds()))
}

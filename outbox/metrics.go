package outbox

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/outboxbridge/core/outbox"

// dispatcherMetrics holds the counters and histograms emitted by a Dispatcher.
// Built against an injected metric.MeterProvider, defaulting to the no-op
// provider so a Dispatcher is usable without any telemetry backend wired.
type dispatcherMetrics struct {
	claimed     metric.Int64Counter
	completed   metric.Int64Counter
	rescheduled metric.Int64Counter
	failed      metric.Int64Counter
	zombies     metric.Int64Counter
	submitMs    metric.Float64Histogram
	inFlight    metric.Int64UpDownCounter
}

func newDispatcherMetrics(provider metric.MeterProvider) (*dispatcherMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}

	meter := provider.Meter(meterName)

	claimed, err := meter.Int64Counter("outbox.entries.claimed",
		metric.WithDescription("Number of outbox entries claimed for processing"))
	if err != nil {
		return nil, err
	}

	completed, err := meter.Int64Counter("outbox.entries.completed",
		metric.WithDescription("Number of outbox entries that reached Completed"))
	if err != nil {
		return nil, err
	}

	rescheduled, err := meter.Int64Counter("outbox.entries.rescheduled",
		metric.WithDescription("Number of outbox entries rescheduled for retry"))
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("outbox.entries.failed",
		metric.WithDescription("Number of outbox entries that reached terminal Failed"))
	if err != nil {
		return nil, err
	}

	zombies, err := meter.Int64Counter("outbox.entries.zombies_reclaimed",
		metric.WithDescription("Number of Processing entries reclaimed by the zombie sweep"))
	if err != nil {
		return nil, err
	}

	submitMs, err := meter.Float64Histogram("outbox.submit.duration_ms",
		metric.WithDescription("LedgerClient.Submit call latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter("outbox.entries.in_flight",
		metric.WithDescription("Number of outbox entries currently being processed by a worker"))
	if err != nil {
		return nil, err
	}

	return &dispatcherMetrics{
		claimed:     claimed,
		completed:   completed,
		rescheduled: rescheduled,
		failed:      failed,
		zombies:     zombies,
		submitMs:    submitMs,
		inFlight:    inFlight,
	}, nil
}

func (m *dispatcherMetrics) recordClaimed(ctx context.Context, n int) {
	if n <= 0 {
		return
	}

	m.claimed.Add(ctx, int64(n))
}

func (m *dispatcherMetrics) recordOutcome(ctx context.Context, outcome SubmitOutcomeKind) {
	attrs := attribute.String("outcome", outcome.String())

	switch outcome {
	case OutcomeSuccess:
		m.completed.Add(ctx, 1, metric.WithAttributes(attrs))
	case OutcomeBlockhashExpired, OutcomeRecoverable:
		m.rescheduled.Add(ctx, 1, metric.WithAttributes(attrs))
	case OutcomeUnrecoverable:
		m.failed.Add(ctx, 1, metric.WithAttributes(attrs))
	}
}

func (m *dispatcherMetrics) recordRetryExhausted(ctx context.Context) {
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "retry_budget_exhausted")))
}

func (m *dispatcherMetrics) recordZombies(ctx context.Context, n int) {
	if n <= 0 {
		return
	}

	m.zombies.Add(ctx, int64(n))
}

func (m *dispatcherMetrics) submitStarted(ctx context.Context) {
	m.inFlight.Add(ctx, 1)
}

func (m *dispatcherMetrics) submitFinished(ctx context.Context, elapsedMs float64) {
	m.inFlight.Add(ctx, -1)
	m.submitMs.Record(ctx, elapsedMs)
}

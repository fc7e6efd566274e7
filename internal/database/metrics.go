package database

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics covers repository calls. Guarded updates are the compare-and-swap
// writes that move order and payment status; "skipped" means another caller
// got there first.
type Metrics struct {
	queryDuration  metric.Float64Histogram
	guardedUpdates metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	m.guardedUpdates, err = meter.Int64Counter(
		"db_guarded_updates_total",
		metric.WithDescription("Conditional status updates by result"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_guarded_updates counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, operation string, durationSeconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordGuardedUpdate(ctx context.Context, operation string, applied bool) {
	result := "applied"
	if !applied {
		result = "skipped"
	}
	m.guardedUpdates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}

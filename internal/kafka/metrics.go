package kafka

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics tracks admin notification delivery.
type Metrics struct {
	publishLatency metric.Float64Histogram
	published      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.publishLatency, err = meter.Float64Histogram(
		"notification_publish_duration_seconds",
		metric.WithDescription("Time to hand an admin notification to the broker"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification_publish_duration histogram: %w", err)
	}

	m.published, err = meter.Int64Counter(
		"notifications_published_total",
		metric.WithDescription("Admin notifications by type and delivery status"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notifications_published counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordPublish(ctx context.Context, topic, notificationType string, durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.publishLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("status", status),
	))
	m.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", notificationType),
		attribute.String("status", status),
	))
}

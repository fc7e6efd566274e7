package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	ordersCreatedTotal         metric.Int64Counter
	orderCreationDuration      metric.Float64Histogram
	confirmationsTotal         metric.Int64Counter
	reconcileDuration          metric.Float64Histogram
	signatureRejectionsTotal   metric.Int64Counter
	inventoryDecrementFailures metric.Int64Counter
	refundsTotal               metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersCreatedTotal, err = meter.Int64Counter(
		"orders_created_total",
		metric.WithDescription("Total number of orders created"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_created_total counter: %w", err)
	}

	m.orderCreationDuration, err = meter.Float64Histogram(
		"order_creation_duration_seconds",
		metric.WithDescription("Duration of order creation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_creation_duration histogram: %w", err)
	}

	m.confirmationsTotal, err = meter.Int64Counter(
		"payment_confirmations_total",
		metric.WithDescription("Payment confirmations processed, by source and result"),
		metric.WithUnit("{confirmation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_confirmations_total counter: %w", err)
	}

	m.reconcileDuration, err = meter.Float64Histogram(
		"payment_reconcile_duration_seconds",
		metric.WithDescription("Duration of payment reconciliation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_reconcile_duration histogram: %w", err)
	}

	m.signatureRejectionsTotal, err = meter.Int64Counter(
		"payment_signature_rejections_total",
		metric.WithDescription("Confirmations rejected because the signature did not verify"),
		metric.WithUnit("{confirmation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_signature_rejections_total counter: %w", err)
	}

	m.inventoryDecrementFailures, err = meter.Int64Counter(
		"inventory_decrement_failures_total",
		metric.WithDescription("Stock decrements that failed after an order was confirmed"),
		metric.WithUnit("{decrement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create inventory_decrement_failures_total counter: %w", err)
	}

	m.refundsTotal, err = meter.Int64Counter(
		"order_refunds_total",
		metric.WithDescription("Refunds issued against orders"),
		metric.WithUnit("{refund}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_refunds_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, success bool) {
	m.ordersCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordOrderCreationDuration(ctx context.Context, durationSeconds float64) {
	m.orderCreationDuration.Record(ctx, durationSeconds)
}

// RecordConfirmation counts one processed confirmation. result is one of
// transitioned, noop or error.
func (m *Metrics) RecordConfirmation(ctx context.Context, source, outcome, result string) {
	m.confirmationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordReconcileDuration(ctx context.Context, source string, durationSeconds float64) {
	m.reconcileDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("source", source),
	))
}

func (m *Metrics) RecordSignatureRejection(ctx context.Context, source string) {
	m.signatureRejectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

func (m *Metrics) RecordInventoryDecrementFailure(ctx context.Context, reason string) {
	m.inventoryDecrementFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordRefund(ctx context.Context, success bool) {
	m.refundsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusLabel(success)),
	))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/metrics"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ObservableReconciler struct {
	reconciler Reconciler
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewObservableReconciler(reconciler Reconciler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableReconciler {
	return &ObservableReconciler{
		reconciler: reconciler,
		logger:     logger,
		metrics:    metrics,
	}
}

func (o *ObservableReconciler) Verify(ctx context.Context, source ConfirmationSource, message []byte, signature string) error {
	ctx, span := telemetry.StartSpan(ctx, "PaymentReconciler.Verify")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("payment.source", string(source)),
		attribute.Int("payment.message_bytes", len(message)),
	)

	err := o.reconciler.Verify(ctx, source, message, signature)
	if errors.Is(err, domain.ErrSignature) {
		o.rejected(ctx, span, Confirmation{Source: source})
	}
	telemetry.SetSpanOutcome(span, err)
	return err
}

func (o *ObservableReconciler) Reconcile(ctx context.Context, c Confirmation) (*ReconcileResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "PaymentReconciler.Reconcile")
	defer span.End()

	source := string(c.Source)
	telemetry.AddSpanAttributes(span,
		attribute.String("payment.source", source),
		attribute.String("payment.event", c.Event),
		attribute.String("payment.gateway_order_id", c.GatewayOrderID),
		attribute.String("payment.outcome", string(c.Outcome)),
	)

	start := time.Now()
	defer func() {
		o.metrics.RecordReconcileDuration(ctx, source, time.Since(start).Seconds())
	}()

	result, err := o.reconciler.Reconcile(ctx, c)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.metrics.RecordConfirmation(ctx, source, string(c.Outcome), "error")

		if errors.Is(err, domain.ErrSignature) {
			o.rejected(ctx, span, c)
			return nil, err
		}

		o.logger.ErrorContext(ctx, "payment reconciliation failed",
			"error", err,
			"source", source,
			"gateway_order_id", c.GatewayOrderID,
		)
		return nil, err
	}

	outcome := "noop"
	if result.Transitioned {
		outcome = "transitioned"
	}
	o.metrics.RecordConfirmation(ctx, source, string(result.Outcome), outcome)

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", result.OrderID),
		attribute.Bool("payment.transitioned", result.Transitioned),
	)
	o.logger.InfoContext(ctx, "payment confirmation reconciled",
		"source", source,
		"order_id", result.OrderID,
		"gateway_order_id", c.GatewayOrderID,
		"outcome", string(result.Outcome),
		"transitioned", result.Transitioned,
	)

	telemetry.SetSpanSuccess(span)
	return result, nil
}

func (o *ObservableReconciler) rejected(ctx context.Context, span trace.Span, c Confirmation) {
	source := string(c.Source)
	o.metrics.RecordSignatureRejection(ctx, source)
	telemetry.AddSpanEvent(span, "signature.rejected", attribute.String("payment.source", source))
	o.logger.WarnContext(ctx, "payment confirmation rejected",
		"security_event", true,
		"source", source,
		"event", c.Event,
		"gateway_order_id", c.GatewayOrderID,
		"gateway_payment_id", c.GatewayPaymentID,
	)
}

package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/metrics"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		o.metrics.RecordOrderCreationDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderCreated(ctx, success)
	}()

	o.logger.InfoContext(ctx, "creating order",
		"user_id", cmd.UserID,
		"payment_method", string(cmd.PaymentMethod),
	)

	result, err := o.handler.Handle(ctx, cmd)

	if result != nil && result.Order != nil {
		telemetry.AddSpanAttributes(span,
			attribute.String("order.id", result.Order.ID),
			attribute.String("order.number", result.Order.OrderNumber),
			attribute.Int64("order.final_amount", result.Order.FinalAmount),
			attribute.String("order.status", string(result.Order.Status)),
		)
	}

	if err != nil {
		telemetry.RecordSpanError(span, err)
		attrs := []any{"error", err, "user_id", cmd.UserID}
		if result != nil && result.Order != nil {
			// The order exists; only opening the payment failed.
			attrs = append(attrs, "order_id", result.Order.ID)
		}
		o.logger.ErrorContext(ctx, "failed to create order", attrs...)
		return result, err
	}

	if result.Checkout != nil {
		telemetry.AddSpanAttributes(span, attribute.String("payment.gateway_order_id", result.Checkout.GatewayOrderID))
	}

	o.logger.InfoContext(ctx, "order created successfully",
		"order_id", result.Order.ID,
		"order_number", result.Order.OrderNumber,
		"user_id", result.Order.UserID,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return result, nil
}

package adapters

import (
	"context"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/kafka"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableNotifier struct {
	notifier ports.NotificationEmitter
	topic    string
	metrics  *kafka.Metrics
}

func NewObservableNotifier(notifier ports.NotificationEmitter, topic string, metrics *kafka.Metrics) *ObservableNotifier {
	return &ObservableNotifier{
		notifier: notifier,
		topic:    topic,
		metrics:  metrics,
	}
}

func (n *ObservableNotifier) Emit(ctx context.Context, notification domain.Notification) error {
	ctx, span := telemetry.StartSpan(ctx, "NotificationEmitter.Emit")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", notification.OrderID),
		attribute.String("event.type", notification.Type),
		attribute.String("topic", n.topic),
	)

	start := time.Now()
	err := n.notifier.Emit(ctx, notification)
	n.metrics.RecordPublish(ctx, n.topic, notification.Type, time.Since(start).Seconds(), err == nil)

	telemetry.SetSpanOutcome(span, err)
	return err
}

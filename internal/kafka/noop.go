package kafka

import (
	"context"
	"log/slog"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// NoopNotifier logs notifications without sending them to Kafka. Used when no brokers are configured.
type NoopNotifier struct{}

// NewNoopNotifier returns a new no-op notification emitter.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (n *NoopNotifier) Emit(ctx context.Context, notification domain.Notification) error {
	slog.DebugContext(ctx, "notification::"+notification.Type,
		"order_id", notification.OrderID,
		"order_number", notification.OrderNumber,
		"amount", notification.Amount,
	)
	return nil
}

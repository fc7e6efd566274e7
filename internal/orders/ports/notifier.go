package ports

import (
	"context"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// NotificationEmitter delivers administrative alerts.
type NotificationEmitter interface {
	Emit(ctx context.Context, notification domain.Notification) error
}

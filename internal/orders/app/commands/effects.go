package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

// EffectsRecorder receives counts of side-effect failures.
type EffectsRecorder interface {
	RecordInventoryDecrementFailure(ctx context.Context, reason string)
}

// confirmationEffects runs what must happen exactly once per confirmed order:
// decrement stock for every line, clear the buyer's cart and alert admins.
// Callers invoke it only on the edge where they performed the confirmation.
type confirmationEffects struct {
	inventory ports.InventoryAdjuster
	carts     ports.CartStore
	notifier  ports.NotificationEmitter
	recorder  EffectsRecorder
	logger    *slog.Logger
}

func (e *confirmationEffects) apply(ctx context.Context, order *domain.Order, notificationType string) {
	for _, item := range order.Items {
		if err := e.inventory.Decrement(ctx, item.VariantID, item.Quantity); err != nil {
			// Payment is already confirmed; stock is reconciled by hand.
			e.logger.ErrorContext(ctx, "inventory decrement failed after confirmation",
				"order_id", order.ID,
				"variant_id", item.VariantID,
				"quantity", item.Quantity,
				"oversell", true,
				"error", err,
			)
			if e.recorder != nil {
				e.recorder.RecordInventoryDecrementFailure(ctx, failureReason(err))
			}
		}
	}

	if err := e.carts.Clear(ctx, order.UserID); err != nil {
		e.logger.WarnContext(ctx, "failed to clear cart",
			"order_id", order.ID,
			"user_id", order.UserID,
			"error", err,
		)
	}

	notify(ctx, e.notifier, notificationFor(order, notificationType, time.Now().UTC()))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// notify hands the alert to the emitter and never fails the caller.
func notify(ctx context.Context, notifier ports.NotificationEmitter, n domain.Notification) {
	if notifier == nil {
		return
	}
	_ = notifier.Emit(ctx, n)
}

func notificationFor(order *domain.Order, kind string, at time.Time) domain.Notification {
	return domain.Notification{
		Type:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Amount:      order.FinalAmount,
		Message:     fmt.Sprintf("order %s: %s", order.OrderNumber, kind),
		OccurredAt:  at,
	}
}

// paymentOpener opens a remote transaction for an order and records it.
type paymentOpener struct {
	orders   ports.OrderRepository
	payments ports.PaymentRepository
	gateway  ports.PaymentGateway
	keyID    string
}

func (p *paymentOpener) open(ctx context.Context, order *domain.Order) (*domain.CheckoutHandle, error) {
	tx, err := p.gateway.CreateTransaction(ctx, order.FinalAmount, order.Currency, order.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("open gateway transaction for order %s: %w", order.ID, err)
	}

	now := time.Now().UTC()
	record := domain.PaymentRecord{
		ID:             uuid.NewString(),
		OrderID:        order.ID,
		GatewayOrderID: tx.ID,
		Amount:         order.FinalAmount,
		Currency:       order.Currency,
		Status:         domain.PaymentRecordCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.payments.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("save payment record: %w", err)
	}
	if err := p.orders.SetGatewayOrder(ctx, order.ID, tx.ID); err != nil {
		return nil, fmt.Errorf("record gateway order on order: %w", err)
	}
	order.GatewayOrderID = tx.ID

	return handleFor(record, p.keyID), nil
}

func handleFor(record domain.PaymentRecord, keyID string) *domain.CheckoutHandle {
	return &domain.CheckoutHandle{
		GatewayOrderID: record.GatewayOrderID,
		Amount:         record.Amount,
		Currency:       record.Currency,
		KeyID:          keyID,
	}
}

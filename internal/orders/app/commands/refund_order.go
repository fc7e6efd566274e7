package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

// RefundOrderCommand is the administrative refund action.
type RefundOrderCommand struct {
	OrderID string
	Amount  int64
	Reason  string
}

func (c RefundOrderCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return domain.Validationf("order_id is required")
	}
	if c.Amount <= 0 {
		return domain.Validationf("amount must be positive")
	}
	if strings.TrimSpace(c.Reason) == "" {
		return domain.Validationf("reason is required")
	}
	return nil
}

type RefundOrderCommandHandler struct {
	orders   ports.OrderRepository
	payments ports.PaymentRepository
	gateway  ports.PaymentGateway
	notifier ports.NotificationEmitter
}

func NewRefundOrderCommandHandler(
	orders ports.OrderRepository,
	payments ports.PaymentRepository,
	gateway ports.PaymentGateway,
	notifier ports.NotificationEmitter,
) *RefundOrderCommandHandler {
	return &RefundOrderCommandHandler{
		orders:   orders,
		payments: payments,
		gateway:  gateway,
		notifier: notifier,
	}
}

func (h *RefundOrderCommandHandler) Handle(ctx context.Context, cmd RefundOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := h.orders.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	record, err := h.capturedPayment(ctx, order)
	if err != nil {
		return nil, err
	}

	// The reservation is taken under the order lock, so a refund that does
	// not fit never reaches the processor.
	entry := domain.Refund{
		ID:        uuid.NewString(),
		Amount:    cmd.Amount,
		Reason:    cmd.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := h.orders.ReserveRefund(ctx, order.ID, entry); err != nil {
		return nil, err
	}

	// The ledger must follow the processor even if the caller goes away.
	ledgerCtx := context.WithoutCancel(ctx)

	gatewayRefundID, err := h.gateway.Refund(ctx, record.GatewayPaymentID, cmd.Amount, entry.ID, cmd.Reason)
	if err != nil {
		if _, releaseErr := h.orders.ReleaseRefund(ledgerCtx, order.ID, entry.ID, time.Now().UTC()); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("release refund %s: %w", entry.ID, releaseErr))
		}
		return nil, fmt.Errorf("refund payment %s: %w", record.GatewayPaymentID, err)
	}

	updated, err := h.orders.SettleRefund(ledgerCtx, order.ID, entry.ID, gatewayRefundID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("settle refund %s (%s) on order %s: %w", entry.ID, gatewayRefundID, order.ID, err)
	}

	notify(ctx, h.notifier, notificationFor(updated, domain.NotificationOrderRefunded, time.Now().UTC()))
	return updated, nil
}

// capturedPayment returns the record whose capture paid the order. After a
// retry the newest attempt is not necessarily the one that was captured.
func (h *RefundOrderCommandHandler) capturedPayment(ctx context.Context, order *domain.Order) (*domain.PaymentRecord, error) {
	if order.PaymentStatus != domain.PaymentPaid {
		return nil, domain.Conflictf("order %s is not refundable in payment status %s", order.ID, order.PaymentStatus)
	}
	if order.GatewayPaymentID == "" {
		return nil, domain.Conflictf("order %s has no captured payment", order.ID)
	}

	record, err := h.payments.GetByGatewayPaymentID(ctx, order.GatewayPaymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Conflictf("order %s has no captured payment", order.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %s for order %s: %w", order.GatewayPaymentID, order.ID, err)
	}
	if record.OrderID != order.ID || record.Status != domain.PaymentRecordCaptured {
		return nil, domain.Conflictf("order %s payment %s is %s, not captured", order.ID, order.GatewayPaymentID, record.Status)
	}
	return record, nil
}

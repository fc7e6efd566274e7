package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

// RetryPaymentCommand reopens payment for a pending prepaid order whose
// gateway call failed or whose last attempt failed.
type RetryPaymentCommand struct {
	UserID  string
	OrderID string
}

type RetryPaymentCommandHandler struct {
	orders   ports.OrderRepository
	payments ports.PaymentRepository
	opener   *paymentOpener
}

func NewRetryPaymentCommandHandler(
	orders ports.OrderRepository,
	payments ports.PaymentRepository,
	gateway ports.PaymentGateway,
	cfg CheckoutConfig,
) *RetryPaymentCommandHandler {
	return &RetryPaymentCommandHandler{
		orders:   orders,
		payments: payments,
		opener: &paymentOpener{
			orders:   orders,
			payments: payments,
			gateway:  gateway,
			keyID:    cfg.KeyID,
		},
	}
}

func (h *RetryPaymentCommandHandler) Handle(ctx context.Context, cmd RetryPaymentCommand) (*CreateOrderResult, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return nil, domain.Validationf("order_id is required")
	}

	order, err := h.orders.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != cmd.UserID {
		return nil, domain.ErrNotFound
	}
	if order.PaymentMethod != domain.PaymentMethodPrepaid {
		return nil, domain.Conflictf("order %s is not prepaid", order.ID)
	}
	if order.Status != domain.StatusPending || !order.PaymentStatus.CanTransitionTo(domain.PaymentPaid) {
		return nil, domain.Conflictf("order %s is not awaiting payment", order.ID)
	}

	latest, err := h.payments.LatestForOrder(ctx, order.ID)
	switch {
	case err == nil && latest.Status == domain.PaymentRecordCreated:
		// The open attempt is still usable.
		return &CreateOrderResult{Order: order, Checkout: handleFor(*latest, h.opener.keyID)}, nil
	case err == nil && latest.Status == domain.PaymentRecordCaptured:
		return nil, domain.Conflictf("order %s payment is already captured", order.ID)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load latest payment: %w", err)
	}

	handle, err := h.opener.open(ctx, order)
	if err != nil {
		return &CreateOrderResult{Order: order}, err
	}
	return &CreateOrderResult{Order: order, Checkout: handle}, nil
}

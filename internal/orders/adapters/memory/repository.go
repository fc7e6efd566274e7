package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

// Repository provides an in-memory order store useful for local development and tests.
// Every mutation runs its guard and write under one lock, mirroring the
// conditional UPDATEs of the postgres adapter.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{orders: make(map[string]domain.Order)}
}

// Create stores a new order instance.
func (r *Repository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return domain.Conflictf("order %s already exists", order.ID)
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// GetByID fetches a single order by identifier.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

// List returns orders respecting the provided filter, newest first. Pagination is 1-based.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}

	end := min(start+pageSize, len(result))

	slice := make([]domain.Order, 0, end-start)
	for _, order := range result[start:end] {
		slice = append(slice, cloneOrder(order))
	}

	return slice, nil
}

// SetGatewayOrder records the latest remote transaction opened for an order.
func (r *Repository) SetGatewayOrder(_ context.Context, orderID, gatewayOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	order.GatewayOrderID = gatewayOrderID
	order.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = order
	return nil
}

// MarkPaid moves the order to paid when its payment status allows it.
func (r *Repository) MarkPaid(_ context.Context, orderID, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !order.PaymentStatus.CanTransitionTo(domain.PaymentPaid) {
		return false, nil
	}
	order = cloneOrder(order)
	if err := order.MarkPaid(gatewayOrderID, gatewayPaymentID, at); err != nil {
		return false, err
	}
	r.orders[orderID] = order
	return true, nil
}

// MarkPaymentFailed moves the order to failed when its payment status allows it.
func (r *Repository) MarkPaymentFailed(_ context.Context, orderID, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !order.PaymentStatus.CanTransitionTo(domain.PaymentFailed) {
		return false, nil
	}
	order = cloneOrder(order)
	if err := order.MarkPaymentFailed(reason, at); err != nil {
		return false, err
	}
	r.orders[orderID] = order
	return true, nil
}

// ReserveRefund appends a pending refund after re-checking the remaining amount.
func (r *Repository) ReserveRefund(_ context.Context, orderID string, refund domain.Refund) (*domain.Order, error) {
	return r.updateRefunds(orderID, func(o *domain.Order) error { return o.ReserveRefund(refund) })
}

// SettleRefund completes a pending refund.
func (r *Repository) SettleRefund(_ context.Context, orderID, refundID, gatewayRefundID string, at time.Time) (*domain.Order, error) {
	return r.updateRefunds(orderID, func(o *domain.Order) error { return o.SettleRefund(refundID, gatewayRefundID, at) })
}

// ReleaseRefund marks a pending refund failed.
func (r *Repository) ReleaseRefund(_ context.Context, orderID, refundID string, at time.Time) (*domain.Order, error) {
	return r.updateRefunds(orderID, func(o *domain.Order) error { return o.ReleaseRefund(refundID, at) })
}

func (r *Repository) updateRefunds(orderID string, apply func(*domain.Order) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order = cloneOrder(order)
	if err := apply(&order); err != nil {
		return nil, err
	}
	r.orders[orderID] = order
	out := cloneOrder(order)
	return &out, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.History = slices.Clone(o.History)
	o.Refunds = slices.Clone(o.Refunds)
	return o
}

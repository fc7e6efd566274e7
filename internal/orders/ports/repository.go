package ports

import (
	"context"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
// Each mutating method is a single conditional write and reports whether the
// transition happened in this call.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	SetGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) error
	MarkPaid(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID, reason string, at time.Time) (bool, error)
	// ReserveRefund, SettleRefund and ReleaseRefund hold the order lock while
	// they read and rewrite the refund ledger.
	ReserveRefund(ctx context.Context, orderID string, refund domain.Refund) (*domain.Order, error)
	SettleRefund(ctx context.Context, orderID, refundID, gatewayRefundID string, at time.Time) (*domain.Order, error)
	ReleaseRefund(ctx context.Context, orderID, refundID string, at time.Time) (*domain.Order, error)
}

// ListFilter narrows list queries by owner, status and pagination.
type ListFilter struct {
	UserID   string
	Status   *domain.OrderStatus
	Page     int
	PageSize int
}

// PaymentRepository stores PaymentRecords. MarkCaptured is the compare-and-swap
// that decides which confirmation channel wins.
type PaymentRepository interface {
	Create(ctx context.Context, record domain.PaymentRecord) error
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentRecord, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.PaymentRecord, error)
	LatestForOrder(ctx context.Context, orderID string) (*domain.PaymentRecord, error)
	MarkCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, gatewayOrderID, reason string, at time.Time) (bool, error)
}

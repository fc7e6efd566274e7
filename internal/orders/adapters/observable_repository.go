package adapters

import (
	"context"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/database"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// observe wraps one repository call in a span and records its duration.
func observe[T any](ctx context.Context, metrics *database.Metrics, spanName, operation string, attrs []attribute.KeyValue, call func(context.Context) (T, error)) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	result, err := call(ctx)
	metrics.RecordQuery(ctx, operation, time.Since(start).Seconds(), err)

	telemetry.SetSpanOutcome(span, err)
	return result, err
}

// observeGuarded is observe for the conditional status writes. The boolean
// result says whether this call moved the row.
func observeGuarded(ctx context.Context, metrics *database.Metrics, spanName, operation string, attrs []attribute.KeyValue, call func(context.Context) (bool, error)) (bool, error) {
	moved, err := observe(ctx, metrics, spanName, operation, attrs, call)
	if err == nil {
		metrics.RecordGuardedUpdate(ctx, operation, moved)
	}
	return moved, err
}

func orderAttr(id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("order.id", id)}
}

type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := observe(ctx, r.metrics, "OrderRepository.Create", "create_order", orderAttr(order.ID),
		func(ctx context.Context) (struct{}, error) { return struct{}{}, r.repo.Create(ctx, order) })
	return err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return observe(ctx, r.metrics, "OrderRepository.GetByID", "get_order_by_id", orderAttr(id),
		func(ctx context.Context) (*domain.Order, error) { return r.repo.GetByID(ctx, id) })
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
		attribute.Bool("owner_scoped", filter.UserID != ""),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	return observe(ctx, r.metrics, "OrderRepository.List", "list_orders", attrs,
		func(ctx context.Context) ([]domain.Order, error) { return r.repo.List(ctx, filter) })
}

func (r *ObservableRepository) SetGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) error {
	attrs := append(orderAttr(orderID), attribute.String("payment.gateway_order_id", gatewayOrderID))
	_, err := observe(ctx, r.metrics, "OrderRepository.SetGatewayOrder", "set_gateway_order", attrs,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.repo.SetGatewayOrder(ctx, orderID, gatewayOrderID)
		})
	return err
}

func (r *ObservableRepository) MarkPaid(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error) {
	return observeGuarded(ctx, r.metrics, "OrderRepository.MarkPaid", "mark_order_paid", orderAttr(orderID),
		func(ctx context.Context) (bool, error) {
			return r.repo.MarkPaid(ctx, orderID, gatewayOrderID, gatewayPaymentID, at)
		})
}

func (r *ObservableRepository) MarkPaymentFailed(ctx context.Context, orderID, reason string, at time.Time) (bool, error) {
	return observeGuarded(ctx, r.metrics, "OrderRepository.MarkPaymentFailed", "mark_order_payment_failed", orderAttr(orderID),
		func(ctx context.Context) (bool, error) { return r.repo.MarkPaymentFailed(ctx, orderID, reason, at) })
}

func (r *ObservableRepository) ReserveRefund(ctx context.Context, orderID string, refund domain.Refund) (*domain.Order, error) {
	attrs := append(orderAttr(orderID),
		attribute.String("refund.id", refund.ID),
		attribute.Int64("refund.amount", refund.Amount),
	)
	return observe(ctx, r.metrics, "OrderRepository.ReserveRefund", "reserve_refund", attrs,
		func(ctx context.Context) (*domain.Order, error) { return r.repo.ReserveRefund(ctx, orderID, refund) })
}

func (r *ObservableRepository) SettleRefund(ctx context.Context, orderID, refundID, gatewayRefundID string, at time.Time) (*domain.Order, error) {
	attrs := append(orderAttr(orderID), attribute.String("refund.id", refundID))
	return observe(ctx, r.metrics, "OrderRepository.SettleRefund", "settle_refund", attrs,
		func(ctx context.Context) (*domain.Order, error) {
			return r.repo.SettleRefund(ctx, orderID, refundID, gatewayRefundID, at)
		})
}

func (r *ObservableRepository) ReleaseRefund(ctx context.Context, orderID, refundID string, at time.Time) (*domain.Order, error) {
	attrs := append(orderAttr(orderID), attribute.String("refund.id", refundID))
	return observe(ctx, r.metrics, "OrderRepository.ReleaseRefund", "release_refund", attrs,
		func(ctx context.Context) (*domain.Order, error) {
			return r.repo.ReleaseRefund(ctx, orderID, refundID, at)
		})
}

type ObservablePaymentRepository struct {
	repo    ports.PaymentRepository
	metrics *database.Metrics
}

func NewObservablePaymentRepository(repo ports.PaymentRepository, metrics *database.Metrics) *ObservablePaymentRepository {
	return &ObservablePaymentRepository{repo: repo, metrics: metrics}
}

func gatewayOrderAttr(id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("payment.gateway_order_id", id)}
}

func (r *ObservablePaymentRepository) Create(ctx context.Context, record domain.PaymentRecord) error {
	_, err := observe(ctx, r.metrics, "PaymentRepository.Create", "create_payment", gatewayOrderAttr(record.GatewayOrderID),
		func(ctx context.Context) (struct{}, error) { return struct{}{}, r.repo.Create(ctx, record) })
	return err
}

func (r *ObservablePaymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentRecord, error) {
	return observe(ctx, r.metrics, "PaymentRepository.GetByGatewayOrderID", "get_payment_by_gateway_order", gatewayOrderAttr(gatewayOrderID),
		func(ctx context.Context) (*domain.PaymentRecord, error) {
			return r.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
		})
}

func (r *ObservablePaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.PaymentRecord, error) {
	attrs := []attribute.KeyValue{attribute.String("payment.gateway_payment_id", gatewayPaymentID)}
	return observe(ctx, r.metrics, "PaymentRepository.GetByGatewayPaymentID", "get_payment_by_gateway_payment", attrs,
		func(ctx context.Context) (*domain.PaymentRecord, error) {
			return r.repo.GetByGatewayPaymentID(ctx, gatewayPaymentID)
		})
}

func (r *ObservablePaymentRepository) LatestForOrder(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	return observe(ctx, r.metrics, "PaymentRepository.LatestForOrder", "latest_payment_for_order", orderAttr(orderID),
		func(ctx context.Context) (*domain.PaymentRecord, error) { return r.repo.LatestForOrder(ctx, orderID) })
}

func (r *ObservablePaymentRepository) MarkCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error) {
	return observeGuarded(ctx, r.metrics, "PaymentRepository.MarkCaptured", "capture_payment", gatewayOrderAttr(gatewayOrderID),
		func(ctx context.Context) (bool, error) {
			return r.repo.MarkCaptured(ctx, gatewayOrderID, gatewayPaymentID, at)
		})
}

func (r *ObservablePaymentRepository) MarkFailed(ctx context.Context, gatewayOrderID, reason string, at time.Time) (bool, error) {
	return observeGuarded(ctx, r.metrics, "PaymentRepository.MarkFailed", "fail_payment", gatewayOrderAttr(gatewayOrderID),
		func(ctx context.Context) (bool, error) { return r.repo.MarkFailed(ctx, gatewayOrderID, reason, at) })
}

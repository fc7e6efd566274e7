package app

import (
	"context"
	"log/slog"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/commands"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/queries"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/metrics"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

// Webhook events the service acts on. Anything else is acknowledged and ignored.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Dependencies bundles the adapters the service is assembled from.
type Dependencies struct {
	Orders      ports.OrderRepository
	Payments    ports.PaymentRepository
	Catalog     ports.VariantCatalog
	Inventory   ports.InventoryAdjuster
	Carts       ports.CartStore
	Settings    ports.SettingsProvider
	Gateway     ports.PaymentGateway
	Notifier    ports.NotificationEmitter
	Idempotency ports.IdempotencyStore
	Webhooks    ports.WebhookDecoder

	CallbackVerifier ports.SignatureVerifier
	WebhookVerifier  ports.SignatureVerifier
}

// Service bundles use cases for handling orders and payments via the API.
type Service struct {
	idemStore   ports.IdempotencyStore
	webhooks    ports.WebhookDecoder
	createOrder commands.CommandHandler
	reconciler  commands.Reconciler
	retry       *commands.RetryPaymentCommandHandler
	refund      *commands.RefundOrderCommandHandler
	getOrder    *queries.GetOrderQueryHandler
	listOrders  *queries.ListOrdersQueryHandler
	metrics     *metrics.Metrics
}

// NewService wires required dependencies.
func NewService(deps Dependencies, checkout commands.CheckoutConfig, logger *slog.Logger, metrics *metrics.Metrics) *Service {
	coreCreate := commands.NewCreateOrderCommandHandler(commands.CreateOrderDeps{
		Orders:    deps.Orders,
		Payments:  deps.Payments,
		Catalog:   deps.Catalog,
		Inventory: deps.Inventory,
		Carts:     deps.Carts,
		Settings:  deps.Settings,
		Gateway:   deps.Gateway,
		Notifier:  deps.Notifier,
		Recorder:  metrics,
		Logger:    logger,
	}, checkout)

	coreReconciler := commands.NewPaymentReconciler(commands.ReconcilerDeps{
		Orders:    deps.Orders,
		Payments:  deps.Payments,
		Inventory: deps.Inventory,
		Carts:     deps.Carts,
		Notifier:  deps.Notifier,
		Recorder:  metrics,
		Logger:    logger,
		Verifiers: map[commands.ConfirmationSource]ports.SignatureVerifier{
			commands.SourceClientCallback: deps.CallbackVerifier,
			commands.SourceWebhook:        deps.WebhookVerifier,
		},
	})

	return &Service{
		idemStore:   deps.Idempotency,
		webhooks:    deps.Webhooks,
		createOrder: commands.NewObservableCommandHandler(coreCreate, logger, metrics),
		reconciler:  commands.NewObservableReconciler(coreReconciler, logger, metrics),
		retry:       commands.NewRetryPaymentCommandHandler(deps.Orders, deps.Payments, deps.Gateway, checkout),
		refund:      commands.NewRefundOrderCommandHandler(deps.Orders, deps.Payments, deps.Gateway, deps.Notifier),
		getOrder:    queries.NewGetOrderQueryHandler(deps.Orders),
		listOrders:  queries.NewListOrdersQueryHandler(deps.Orders),
		metrics:     metrics,
	}
}

// CreateOrderInput captures payload for creating an order.
type CreateOrderInput struct {
	AddressID     string               `json:"address_id"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

// CreateOrder snapshots the buyer's cart into an order and, for prepaid
// orders, opens the remote transaction.
func (s *Service) CreateOrder(ctx context.Context, userID string, input CreateOrderInput) (*commands.CreateOrderResult, error) {
	return s.createOrder.Handle(ctx, commands.CreateOrderCommand{
		UserID:        userID,
		AddressID:     input.AddressID,
		PaymentMethod: input.PaymentMethod,
	})
}

// RetryPayment hands back an open checkout for a pending prepaid order.
func (s *Service) RetryPayment(ctx context.Context, userID, orderID string) (*commands.CreateOrderResult, error) {
	return s.retry.Handle(ctx, commands.RetryPaymentCommand{UserID: userID, OrderID: orderID})
}

// VerifyPaymentInput is the client-side callback after the payment UI closes successfully.
type VerifyPaymentInput struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// VerifyPayment reconciles a client callback. The signature covers
// "<gateway order id>|<gateway payment id>".
func (s *Service) VerifyPayment(ctx context.Context, userID string, input VerifyPaymentInput) (*commands.ReconcileResult, error) {
	return s.reconciler.Reconcile(ctx, commands.Confirmation{
		Source:           commands.SourceClientCallback,
		Event:            "client.callback",
		GatewayOrderID:   input.GatewayOrderID,
		GatewayPaymentID: input.GatewayPaymentID,
		Outcome:          commands.OutcomeCaptured,
		UserID:           userID,
		Message:          []byte(input.GatewayOrderID + "|" + input.GatewayPaymentID),
		Signature:        input.Signature,
	})
}

// PaymentFailureInput is the buyer reporting a failed or abandoned payment.
type PaymentFailureInput struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Reason         string `json:"reason"`
}

// ReportPaymentFailure records a client-reported failure. It can never capture.
func (s *Service) ReportPaymentFailure(ctx context.Context, userID string, input PaymentFailureInput) (*commands.ReconcileResult, error) {
	return s.reconciler.Reconcile(ctx, commands.Confirmation{
		Source:         commands.SourceClientDismissal,
		Event:          "client.dismissal",
		GatewayOrderID: input.GatewayOrderID,
		Outcome:        commands.OutcomeFailed,
		Reason:         input.Reason,
		UserID:         userID,
	})
}

// HandleWebhook verifies and reconciles a processor notification. The
// signature covers the raw body exactly as received and is checked before
// the body is parsed.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*commands.ReconcileResult, error) {
	if err := s.reconciler.Verify(ctx, commands.SourceWebhook, body, signature); err != nil {
		return nil, err
	}

	event, err := s.webhooks.Decode(body)
	if err != nil {
		return nil, err
	}

	c := commands.Confirmation{
		Source:           commands.SourceWebhook,
		Event:            event.Event,
		GatewayOrderID:   event.GatewayOrderID,
		GatewayPaymentID: event.GatewayPaymentID,
		Reason:           event.ErrorDescription,
		Message:          body,
		Signature:        signature,
	}
	switch event.Event {
	case EventPaymentCaptured:
		c.Outcome = commands.OutcomeCaptured
	case EventPaymentFailed:
		c.Outcome = commands.OutcomeFailed
	default:
		c.Outcome = commands.OutcomeIgnored
	}

	return s.reconciler.Reconcile(ctx, c)
}

// GetOrder retrieves an order visible to the viewer.
func (s *Service) GetOrder(ctx context.Context, viewer queries.Viewer, id string) (*domain.Order, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{OrderID: id, Viewer: viewer})
}

// ListOrders returns the viewer's orders using a filter.
func (s *Service) ListOrders(ctx context.Context, query queries.ListOrdersQuery) ([]domain.Order, error) {
	return s.listOrders.Handle(ctx, query)
}

// RefundInput is the administrative refund payload.
type RefundInput struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// RefundOrder issues a refund through the processor and appends it to the ledger.
func (s *Service) RefundOrder(ctx context.Context, orderID string, input RefundInput) (*domain.Order, error) {
	order, err := s.refund.Handle(ctx, commands.RefundOrderCommand{
		OrderID: orderID,
		Amount:  input.Amount,
		Reason:  input.Reason,
	})
	if s.metrics != nil {
		s.metrics.RecordRefund(ctx, err == nil)
	}
	return order, err
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}

// PurgeIdempotencyKeys drops stored responses older than the retention window.
func (s *Service) PurgeIdempotencyKeys(ctx context.Context) (int64, error) {
	return s.idemStore.Purge(ctx)
}

package commands_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/adapters/memory"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/commands"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

const (
	testUser     = "user-1"
	testKeyID    = "rzp_test_key"
	validSig     = "valid-signature"
	testCurrency = "INR"
)

type mockGateway struct {
	createFn func(ctx context.Context, amount int64, currency, reference string) (*ports.GatewayTransaction, error)
	refundFn func(ctx context.Context, gatewayPaymentID string, amount int64, reference, reason string) (string, error)
	seq      atomic.Int32
}

func (m *mockGateway) CreateTransaction(ctx context.Context, amount int64, currency, reference string) (*ports.GatewayTransaction, error) {
	if m.createFn != nil {
		return m.createFn(ctx, amount, currency, reference)
	}
	n := m.seq.Add(1)
	return &ports.GatewayTransaction{ID: fmt.Sprintf("order_gw_%d", n), Amount: amount, Currency: currency, Status: "created"}, nil
}

func (m *mockGateway) Refund(ctx context.Context, gatewayPaymentID string, amount int64, reference, reason string) (string, error) {
	if m.refundFn != nil {
		return m.refundFn(ctx, gatewayPaymentID, amount, reference, reason)
	}
	return "rfnd_1", nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Emit(_ context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var c int
	for _, s := range n.sent {
		if s.Type == kind {
			c++
		}
	}
	return c
}

type recordingRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingRecorder) RecordInventoryDecrementFailure(_ context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

// stubVerifier accepts exactly one signature value.
type stubVerifier struct{}

func (stubVerifier) Verify(_ []byte, signature string) error {
	if signature != validSig {
		return domain.ErrSignature
	}
	return nil
}

type fixture struct {
	orders   *memory.Repository
	payments *memory.PaymentRepository
	catalog  *memory.Catalog
	carts    *memory.CartStore
	gateway  *mockGateway
	notifier *recordingNotifier
	recorder *recordingRecorder

	create     *commands.CreateOrderCommandHandler
	reconciler *commands.PaymentReconciler
	retry      *commands.RetryPaymentCommandHandler
	refund     *commands.RefundOrderCommandHandler
}

func newFixture(t *testing.T, variants ...domain.Variant) *fixture {
	t.Helper()

	f := &fixture{
		orders:   memory.NewRepository(),
		payments: memory.NewPaymentRepository(),
		catalog:  memory.NewCatalog(variants...),
		carts:    memory.NewCartStore(),
		gateway:  &mockGateway{},
		notifier: &recordingNotifier{},
		recorder: &recordingRecorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := commands.CheckoutConfig{Currency: testCurrency, KeyID: testKeyID}

	f.create = commands.NewCreateOrderCommandHandler(commands.CreateOrderDeps{
		Orders:    f.orders,
		Payments:  f.payments,
		Catalog:   f.catalog,
		Inventory: f.catalog,
		Carts:     f.carts,
		Settings:  memory.Settings{Policy: domain.ShippingPolicy{FlatFee: 50, FreeShippingThreshold: 999}},
		Gateway:   f.gateway,
		Notifier:  f.notifier,
		Recorder:  f.recorder,
		Logger:    logger,
	}, cfg)

	f.reconciler = commands.NewPaymentReconciler(commands.ReconcilerDeps{
		Orders:    f.orders,
		Payments:  f.payments,
		Inventory: f.catalog,
		Carts:     f.carts,
		Notifier:  f.notifier,
		Recorder:  f.recorder,
		Logger:    logger,
		Verifiers: map[commands.ConfirmationSource]ports.SignatureVerifier{
			commands.SourceClientCallback: stubVerifier{},
			commands.SourceWebhook:        stubVerifier{},
		},
	})

	f.retry = commands.NewRetryPaymentCommandHandler(f.orders, f.payments, f.gateway, cfg)
	f.refund = commands.NewRefundOrderCommandHandler(f.orders, f.payments, f.gateway, f.notifier)

	return f
}

func variant(id string, price int64, stock int) domain.Variant {
	return domain.Variant{
		ID:            id,
		ProductID:     "prod-" + id,
		ProductName:   "Product " + id,
		SKU:           "SKU-" + id,
		BasePrice:     price,
		StockQuantity: stock,
	}
}

func (f *fixture) stock(t *testing.T, variantID string) int {
	t.Helper()
	v, err := f.catalog.GetVariant(context.Background(), variantID)
	if err != nil {
		t.Fatalf("get variant %s: %v", variantID, err)
	}
	return v.StockQuantity
}

// placePrepaid puts lines in the cart and creates a prepaid order.
func (f *fixture) placePrepaid(t *testing.T, lines ...domain.CartLine) *commands.CreateOrderResult {
	t.Helper()
	f.carts.Add(testUser, lines...)
	result, err := f.create.Handle(context.Background(), commands.CreateOrderCommand{
		UserID:        testUser,
		AddressID:     "addr-1",
		PaymentMethod: domain.PaymentMethodPrepaid,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return result
}

func captured(source commands.ConfirmationSource, gatewayOrderID, paymentID string) commands.Confirmation {
	return commands.Confirmation{
		Source:           source,
		Event:            "payment.captured",
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Outcome:          commands.OutcomeCaptured,
		Message:          []byte(gatewayOrderID + "|" + paymentID),
		Signature:        validSig,
	}
}

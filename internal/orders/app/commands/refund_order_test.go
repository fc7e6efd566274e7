package commands_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/commands"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

func paidOrder(t *testing.T, f *fixture) *domain.Order {
	t.Helper()
	placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 2})
	if _, err := f.reconciler.Reconcile(context.Background(), captured(commands.SourceWebhook, placed.Checkout.GatewayOrderID, "pay_1")); err != nil {
		t.Fatalf("capture: %v", err)
	}
	order, err := f.orders.GetByID(context.Background(), placed.Order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return order
}

func TestRefundOrder(t *testing.T) {
	t.Run("full refund flips payment to refunded", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		order := paidOrder(t, f)

		var refundedPayment, reference string
		f.gateway.refundFn = func(_ context.Context, gatewayPaymentID string, _ int64, ref, _ string) (string, error) {
			refundedPayment, reference = gatewayPaymentID, ref
			return "rfnd_full", nil
		}

		updated, err := f.refund.Handle(context.Background(), commands.RefundOrderCommand{
			OrderID: order.ID, Amount: order.FinalAmount, Reason: "damaged",
		})
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if updated.PaymentStatus != domain.PaymentRefunded {
			t.Errorf("expected refunded, got %s", updated.PaymentStatus)
		}
		if len(updated.Refunds) != 1 || updated.Refunds[0].GatewayRefundID != "rfnd_full" || updated.Refunds[0].Status != domain.RefundCompleted {
			t.Fatalf("unexpected ledger %+v", updated.Refunds)
		}
		if refundedPayment != "pay_1" {
			t.Errorf("expected refund against pay_1, got %q", refundedPayment)
		}
		if reference != updated.Refunds[0].ID {
			t.Errorf("expected the ledger id %s as reference, got %q", updated.Refunds[0].ID, reference)
		}
		if f.notifier.count(domain.NotificationOrderRefunded) != 1 {
			t.Error("expected one order.refunded notification")
		}
	})

	t.Run("partial refunds accumulate until the final amount", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		order := paidOrder(t, f)
		ctx := context.Background()

		first, err := f.refund.Handle(ctx, commands.RefundOrderCommand{OrderID: order.ID, Amount: 500, Reason: "partial"})
		if err != nil {
			t.Fatalf("first refund: %v", err)
		}
		if first.PaymentStatus != domain.PaymentPaid {
			t.Errorf("expected paid after partial refund, got %s", first.PaymentStatus)
		}

		_, err = f.refund.Handle(ctx, commands.RefundOrderCommand{OrderID: order.ID, Amount: order.FinalAmount, Reason: "too much"})
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict for over-refund, got %v", err)
		}

		last, err := f.refund.Handle(ctx, commands.RefundOrderCommand{OrderID: order.ID, Amount: order.FinalAmount - 500, Reason: "rest"})
		if err != nil {
			t.Fatalf("last refund: %v", err)
		}
		if last.PaymentStatus != domain.PaymentRefunded || last.RefundedAmount() != order.FinalAmount {
			t.Errorf("expected fully refunded, got %s with %d", last.PaymentStatus, last.RefundedAmount())
		}
	})

	t.Run("unpaid order is not refundable", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})

		called := false
		f.gateway.refundFn = func(context.Context, string, int64, string, string) (string, error) {
			called = true
			return "", nil
		}

		_, err := f.refund.Handle(context.Background(), commands.RefundOrderCommand{OrderID: placed.Order.ID, Amount: 100, Reason: "x"})
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		if called {
			t.Error("gateway must not be called for an unpaid order")
		}
	})

	t.Run("gateway failure releases the reservation", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		order := paidOrder(t, f)
		failing := true
		f.gateway.refundFn = func(context.Context, string, int64, string, string) (string, error) {
			if failing {
				return "", &domain.GatewayError{Op: "refund", StatusCode: 502, Retryable: true, Err: errors.New("bad gateway")}
			}
			return "rfnd_2", nil
		}

		_, err := f.refund.Handle(context.Background(), commands.RefundOrderCommand{OrderID: order.ID, Amount: order.FinalAmount, Reason: "x"})
		if !errors.Is(err, domain.ErrGateway) {
			t.Fatalf("expected ErrGateway, got %v", err)
		}

		reloaded, _ := f.orders.GetByID(context.Background(), order.ID)
		if len(reloaded.Refunds) != 1 || reloaded.Refunds[0].Status != domain.RefundFailed {
			t.Fatalf("expected one failed ledger entry, got %+v", reloaded.Refunds)
		}
		if reloaded.RefundedAmount() != 0 || reloaded.PaymentStatus != domain.PaymentPaid {
			t.Errorf("expected nothing refunded, got %d with %s", reloaded.RefundedAmount(), reloaded.PaymentStatus)
		}
		if f.notifier.count(domain.NotificationOrderRefunded) != 0 {
			t.Error("a failed refund must not notify")
		}

		failing = false
		if _, err := f.refund.Handle(context.Background(), commands.RefundOrderCommand{OrderID: order.ID, Amount: order.FinalAmount, Reason: "x"}); err != nil {
			t.Errorf("expected the released amount to be refundable, got %v", err)
		}
	})

	t.Run("concurrent refunds reach the processor once", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		order := paidOrder(t, f)

		var calls atomic.Int32
		f.gateway.refundFn = func(context.Context, string, int64, string, string) (string, error) {
			calls.Add(1)
			return "rfnd_once", nil
		}

		const workers = 5
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			conflicts atomic.Int32
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.refund.Handle(context.Background(), commands.RefundOrderCommand{
					OrderID: order.ID, Amount: order.FinalAmount, Reason: "double click",
				})
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, domain.ErrConflict):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if succeeded.Load() != 1 || conflicts.Load() != workers-1 {
			t.Errorf("expected 1 success and %d conflicts, got %d and %d", workers-1, succeeded.Load(), conflicts.Load())
		}
		if calls.Load() != 1 {
			t.Errorf("expected one processor refund, got %d", calls.Load())
		}
		reloaded, _ := f.orders.GetByID(context.Background(), order.ID)
		if len(reloaded.Refunds) != 1 || reloaded.PaymentStatus != domain.PaymentRefunded {
			t.Errorf("expected one completed refund, got %+v with %s", reloaded.Refunds, reloaded.PaymentStatus)
		}
	})

	t.Run("refunds the captured attempt after a retry", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		ctx := context.Background()
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})
		first := placed.Checkout.GatewayOrderID

		if _, err := f.reconciler.Reconcile(ctx, commands.Confirmation{
			Source: commands.SourceClientDismissal, GatewayOrderID: first, Outcome: commands.OutcomeFailed,
		}); err != nil {
			t.Fatalf("dismissal: %v", err)
		}
		retried, err := f.retry.Handle(ctx, commands.RetryPaymentCommand{UserID: testUser, OrderID: placed.Order.ID})
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if retried.Checkout.GatewayOrderID == first {
			t.Fatal("expected a second attempt")
		}

		// The buyer had completed the first attempt after all.
		if _, err := f.reconciler.Reconcile(ctx, captured(commands.SourceWebhook, first, "pay_A")); err != nil {
			t.Fatalf("late capture: %v", err)
		}

		var refundedPayment string
		f.gateway.refundFn = func(_ context.Context, gatewayPaymentID string, _ int64, _, _ string) (string, error) {
			refundedPayment = gatewayPaymentID
			return "rfnd_A", nil
		}

		order, _ := f.orders.GetByID(ctx, placed.Order.ID)
		updated, err := f.refund.Handle(ctx, commands.RefundOrderCommand{OrderID: order.ID, Amount: order.FinalAmount, Reason: "cancelled"})
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if refundedPayment != "pay_A" {
			t.Errorf("expected refund against pay_A, got %q", refundedPayment)
		}
		if updated.PaymentStatus != domain.PaymentRefunded {
			t.Errorf("expected refunded, got %s", updated.PaymentStatus)
		}
	})

	t.Run("invalid command", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.refund.Handle(context.Background(), commands.RefundOrderCommand{OrderID: "o1", Amount: 0, Reason: "x"})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestRetryPayment(t *testing.T) {
	t.Run("reuses an open attempt", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})

		result, err := f.retry.Handle(context.Background(), commands.RetryPaymentCommand{UserID: testUser, OrderID: placed.Order.ID})
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if result.Checkout.GatewayOrderID != placed.Checkout.GatewayOrderID {
			t.Errorf("expected the open attempt %s, got %s", placed.Checkout.GatewayOrderID, result.Checkout.GatewayOrderID)
		}
	})

	t.Run("opens a new attempt after a failure", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})
		ctx := context.Background()

		if _, err := f.reconciler.Reconcile(ctx, commands.Confirmation{
			Source: commands.SourceClientDismissal, GatewayOrderID: placed.Checkout.GatewayOrderID, Outcome: commands.OutcomeFailed,
		}); err != nil {
			t.Fatalf("dismissal: %v", err)
		}

		result, err := f.retry.Handle(ctx, commands.RetryPaymentCommand{UserID: testUser, OrderID: placed.Order.ID})
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if result.Checkout.GatewayOrderID == placed.Checkout.GatewayOrderID {
			t.Error("expected a fresh gateway order")
		}

		order, _ := f.orders.GetByID(ctx, placed.Order.ID)
		if order.GatewayOrderID != result.Checkout.GatewayOrderID {
			t.Errorf("expected order to point at the new attempt, got %s", order.GatewayOrderID)
		}
	})

	t.Run("opens the first attempt when creation could not", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		failing := true
		f.gateway.createFn = func(_ context.Context, amount int64, currency, _ string) (*ports.GatewayTransaction, error) {
			if failing {
				return nil, &domain.GatewayError{Op: "create_order", Retryable: true, Err: errors.New("timeout")}
			}
			return &ports.GatewayTransaction{ID: "order_late", Amount: amount, Currency: currency}, nil
		}
		f.carts.Add(testUser, domain.CartLine{VariantID: "v1", Quantity: 1})

		created, _ := f.create.Handle(context.Background(), commands.CreateOrderCommand{
			UserID: testUser, AddressID: "addr-1", PaymentMethod: domain.PaymentMethodPrepaid,
		})
		failing = false

		result, err := f.retry.Handle(context.Background(), commands.RetryPaymentCommand{UserID: testUser, OrderID: created.Order.ID})
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if result.Checkout.GatewayOrderID != "order_late" {
			t.Errorf("expected order_late, got %s", result.Checkout.GatewayOrderID)
		}
	})

	t.Run("paid order cannot be retried", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		order := paidOrder(t, f)

		_, err := f.retry.Handle(context.Background(), commands.RetryPaymentCommand{UserID: testUser, OrderID: order.ID})
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("another buyer sees not found", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})

		_, err := f.retry.Handle(context.Background(), commands.RetryPaymentCommand{UserID: "intruder", OrderID: placed.Order.ID})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

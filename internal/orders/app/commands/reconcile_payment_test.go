package commands_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/app/commands"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

func TestReconcileCapture(t *testing.T) {
	t.Run("capture confirms order and applies effects once", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 2})
		ctx := context.Background()

		result, err := f.reconciler.Reconcile(ctx, captured(commands.SourceClientCallback, placed.Checkout.GatewayOrderID, "pay_1"))
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if !result.Transitioned {
			t.Error("expected the first confirmation to transition")
		}

		order, _ := f.orders.GetByID(ctx, placed.Order.ID)
		if order.PaymentStatus != domain.PaymentPaid || order.Status != domain.StatusConfirmed {
			t.Errorf("expected paid/confirmed, got %s/%s", order.PaymentStatus, order.Status)
		}
		if order.GatewayPaymentID != "pay_1" {
			t.Errorf("expected gateway payment id pay_1, got %q", order.GatewayPaymentID)
		}
		if got := f.stock(t, "v1"); got != 3 {
			t.Errorf("expected stock 3, got %d", got)
		}
		if f.notifier.count(domain.NotificationPaymentCaptured) != 1 {
			t.Error("expected one payment.captured notification")
		}
		snapshot, _ := f.carts.Snapshot(ctx, testUser)
		if !snapshot.IsEmpty() {
			t.Error("expected cart cleared")
		}
	})

	t.Run("callback then webhook decrements stock once", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 2})
		ctx := context.Background()
		gwOrder := placed.Checkout.GatewayOrderID

		first, err := f.reconciler.Reconcile(ctx, captured(commands.SourceClientCallback, gwOrder, "pay_1"))
		if err != nil {
			t.Fatalf("callback: %v", err)
		}
		second, err := f.reconciler.Reconcile(ctx, captured(commands.SourceWebhook, gwOrder, "pay_1"))
		if err != nil {
			t.Fatalf("webhook: %v", err)
		}

		if !first.Transitioned || second.Transitioned {
			t.Errorf("expected only the first call to transition, got %v and %v", first.Transitioned, second.Transitioned)
		}
		if second.PaymentStatus != domain.PaymentRecordCaptured {
			t.Errorf("expected captured status on the duplicate, got %s", second.PaymentStatus)
		}
		if got := f.stock(t, "v1"); got != 3 {
			t.Errorf("expected stock 3, got %d", got)
		}
		if f.notifier.count(domain.NotificationPaymentCaptured) != 1 {
			t.Error("expected exactly one notification")
		}
	})

	t.Run("concurrent channels apply effects exactly once", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 50))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 3})
		gwOrder := placed.Checkout.GatewayOrderID

		sources := []commands.ConfirmationSource{
			commands.SourceClientCallback, commands.SourceWebhook,
			commands.SourceClientCallback, commands.SourceWebhook,
		}

		var mu sync.Mutex
		var transitions int
		var wg sync.WaitGroup
		for _, source := range sources {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := f.reconciler.Reconcile(context.Background(), captured(source, gwOrder, "pay_1"))
				if err != nil {
					t.Errorf("%s: %v", source, err)
					return
				}
				if result.Transitioned {
					mu.Lock()
					transitions++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if transitions != 1 {
			t.Errorf("expected exactly one transition, got %d", transitions)
		}
		if got := f.stock(t, "v1"); got != 47 {
			t.Errorf("expected stock 47, got %d", got)
		}
		if f.notifier.count(domain.NotificationPaymentCaptured) != 1 {
			t.Error("expected exactly one notification")
		}
	})

	t.Run("tampered signature leaves state untouched", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 2})
		ctx := context.Background()

		c := captured(commands.SourceWebhook, placed.Checkout.GatewayOrderID, "pay_1")
		c.Signature = "forged"

		_, err := f.reconciler.Reconcile(ctx, c)
		if !errors.Is(err, domain.ErrSignature) {
			t.Fatalf("expected ErrSignature, got %v", err)
		}

		record, _ := f.payments.GetByGatewayOrderID(ctx, placed.Checkout.GatewayOrderID)
		if record.Status != domain.PaymentRecordCreated {
			t.Errorf("expected record to stay created, got %s", record.Status)
		}
		if got := f.stock(t, "v1"); got != 5 {
			t.Errorf("expected stock unchanged, got %d", got)
		}
	})

	t.Run("unknown gateway order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.reconciler.Reconcile(context.Background(), captured(commands.SourceWebhook, "order_missing", "pay_1"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("capture missing payment id is rejected", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})

		_, err := f.reconciler.Reconcile(context.Background(), captured(commands.SourceClientCallback, placed.Checkout.GatewayOrderID, ""))
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("capture on a second attempt of a paid order raises an alert", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})
		ctx := context.Background()
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
		if _, err := f.reconciler.Reconcile(ctx, captured(commands.SourceWebhook, retried.Checkout.GatewayOrderID, "pay_B")); err != nil {
			t.Fatalf("capture second attempt: %v", err)
		}

		result, err := f.reconciler.Reconcile(ctx, captured(commands.SourceWebhook, first, "pay_A"))
		if err != nil {
			t.Fatalf("late capture: %v", err)
		}
		if result.Transitioned {
			t.Error("a capture on an already paid order must not transition it")
		}
		if f.notifier.count(domain.NotificationDuplicateCapture) != 1 {
			t.Error("expected one payment.duplicate_capture notification")
		}
		if f.notifier.count(domain.NotificationPaymentCaptured) != 1 {
			t.Error("expected effects to run once")
		}
		if got := f.stock(t, "v1"); got != 4 {
			t.Errorf("expected stock 4, got %d", got)
		}

		order, _ := f.orders.GetByID(ctx, placed.Order.ID)
		if order.GatewayPaymentID != "pay_B" {
			t.Errorf("order must keep the payment that paid it, got %q", order.GatewayPaymentID)
		}

		// A repeat of the same late event is not a new alert.
		if _, err := f.reconciler.Reconcile(ctx, captured(commands.SourceClientCallback, first, "pay_A")); err != nil {
			t.Fatalf("repeat: %v", err)
		}
		if f.notifier.count(domain.NotificationDuplicateCapture) != 1 {
			t.Error("expected the alert only once")
		}
	})

	t.Run("decrement failure after capture keeps the payment", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 4})
		ctx := context.Background()

		// Another order drained stock between pre-check and confirmation.
		if err := f.catalog.Decrement(ctx, "v1", 3); err != nil {
			t.Fatalf("drain: %v", err)
		}

		result, err := f.reconciler.Reconcile(ctx, captured(commands.SourceWebhook, placed.Checkout.GatewayOrderID, "pay_1"))
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if !result.Transitioned {
			t.Error("expected capture to succeed")
		}
		if got := f.stock(t, "v1"); got != 2 {
			t.Errorf("stock must not go below the floor, got %d", got)
		}
		if len(f.recorder.reasons) != 1 || f.recorder.reasons[0] != "insufficient_stock" {
			t.Errorf("expected one insufficient_stock failure, got %v", f.recorder.reasons)
		}
	})
}

func TestReconcileFailure(t *testing.T) {
	t.Run("dismissal marks the attempt failed", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})
		ctx := context.Background()

		result, err := f.reconciler.Reconcile(ctx, commands.Confirmation{
			Source:         commands.SourceClientDismissal,
			GatewayOrderID: placed.Checkout.GatewayOrderID,
			Outcome:        commands.OutcomeFailed,
			Reason:         "buyer closed the payment window",
			UserID:         testUser,
		})
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if !result.Transitioned || result.PaymentStatus != domain.PaymentRecordFailed {
			t.Errorf("unexpected result %+v", result)
		}

		order, _ := f.orders.GetByID(ctx, placed.Order.ID)
		if order.PaymentStatus != domain.PaymentFailed || order.Status != domain.StatusPending {
			t.Errorf("expected pending/failed, got %s/%s", order.Status, order.PaymentStatus)
		}
		if f.notifier.count(domain.NotificationPaymentFailed) != 1 {
			t.Error("expected one payment.failed notification")
		}
	})

	t.Run("dismissal cannot capture", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})

		c := captured(commands.SourceClientDismissal, placed.Checkout.GatewayOrderID, "pay_1")
		_, err := f.reconciler.Reconcile(context.Background(), c)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("dismissal by another buyer is not found", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})

		_, err := f.reconciler.Reconcile(context.Background(), commands.Confirmation{
			Source:         commands.SourceClientDismissal,
			GatewayOrderID: placed.Checkout.GatewayOrderID,
			Outcome:        commands.OutcomeFailed,
			UserID:         "someone-else",
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("failure after capture never downgrades", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})
		ctx := context.Background()
		gwOrder := placed.Checkout.GatewayOrderID

		if _, err := f.reconciler.Reconcile(ctx, captured(commands.SourceWebhook, gwOrder, "pay_1")); err != nil {
			t.Fatalf("capture: %v", err)
		}

		result, err := f.reconciler.Reconcile(ctx, commands.Confirmation{
			Source:         commands.SourceWebhook,
			Event:          "payment.failed",
			GatewayOrderID: gwOrder,
			Outcome:        commands.OutcomeFailed,
			Signature:      validSig,
		})
		if err != nil {
			t.Fatalf("late failure: %v", err)
		}
		if result.Transitioned || result.PaymentStatus != domain.PaymentRecordCaptured {
			t.Errorf("expected no-op on captured payment, got %+v", result)
		}

		order, _ := f.orders.GetByID(ctx, placed.Order.ID)
		if order.PaymentStatus != domain.PaymentPaid {
			t.Errorf("expected paid, got %s", order.PaymentStatus)
		}
	})

	t.Run("capture after failure still confirms", func(t *testing.T) {
		f := newFixture(t, variant("v1", 1000, 5))
		placed := f.placePrepaid(t, domain.CartLine{VariantID: "v1", Quantity: 1})
		ctx := context.Background()
		gwOrder := placed.Checkout.GatewayOrderID

		if _, err := f.reconciler.Reconcile(ctx, commands.Confirmation{
			Source: commands.SourceClientDismissal, GatewayOrderID: gwOrder, Outcome: commands.OutcomeFailed,
		}); err != nil {
			t.Fatalf("dismissal: %v", err)
		}

		result, err := f.reconciler.Reconcile(ctx, captured(commands.SourceWebhook, gwOrder, "pay_1"))
		if err != nil {
			t.Fatalf("capture: %v", err)
		}
		if !result.Transitioned {
			t.Error("expected capture to transition a failed attempt")
		}
		if got := f.stock(t, "v1"); got != 4 {
			t.Errorf("expected stock 4, got %d", got)
		}
	})

	t.Run("ignored events are acknowledged without lookup", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.reconciler.Reconcile(context.Background(), commands.Confirmation{
			Source:    commands.SourceWebhook,
			Event:     "refund.processed",
			Outcome:   commands.OutcomeIgnored,
			Signature: validSig,
		})
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if result.Outcome != commands.OutcomeIgnored || result.Transitioned {
			t.Errorf("unexpected result %+v", result)
		}
	})
}

func TestReconcilerVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		source    commands.ConfirmationSource
		signature string
		wantErr   error
	}{
		{"webhook with valid signature", commands.SourceWebhook, validSig, nil},
		{"webhook with forged signature", commands.SourceWebhook, "forged", domain.ErrSignature},
		{"webhook without signature", commands.SourceWebhook, "", domain.ErrSignature},
		{"dismissal is unsigned", commands.SourceClientDismissal, "", nil},
		{"unknown source", commands.ConfirmationSource("fax"), validSig, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.reconciler.Verify(ctx, tt.source, []byte(`{"event":`), tt.signature)
			if tt.wantErr == nil && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

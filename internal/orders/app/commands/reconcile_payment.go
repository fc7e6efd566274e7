package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

// ConfirmationSource names the channel a payment outcome arrived through.
type ConfirmationSource string

const (
	SourceClientCallback  ConfirmationSource = "client_callback"
	SourceWebhook         ConfirmationSource = "webhook"
	SourceClientDismissal ConfirmationSource = "client_dismissal"
)

// Outcome is what the channel claims happened at the processor.
type Outcome string

const (
	OutcomeCaptured Outcome = "captured"
	OutcomeFailed   Outcome = "failed"
	// OutcomeIgnored is an authentic event this service does not act on.
	OutcomeIgnored Outcome = "ignored"
)

// Confirmation is a payment outcome from any channel. Message is the exact
// byte sequence the Signature was computed over.
type Confirmation struct {
	Source           ConfirmationSource
	Event            string
	GatewayOrderID   string
	GatewayPaymentID string
	Outcome          Outcome
	Reason           string
	UserID           string
	Message          []byte
	Signature        string
}

// ReconcileResult reports the state after reconciliation. Transitioned is
// true only for the call that moved the payment.
type ReconcileResult struct {
	OrderID       string                     `json:"order_id"`
	Outcome       Outcome                    `json:"outcome"`
	Transitioned  bool                       `json:"transitioned"`
	PaymentStatus domain.PaymentRecordStatus `json:"payment_status,omitempty"`
}

// Reconciler applies confirmations. Verify lets a caller authenticate a raw
// message before it parses anything out of it.
type Reconciler interface {
	Verify(ctx context.Context, source ConfirmationSource, message []byte, signature string) error
	Reconcile(ctx context.Context, c Confirmation) (*ReconcileResult, error)
}

// ReconcilerDeps bundles the collaborators of PaymentReconciler.
type ReconcilerDeps struct {
	Orders    ports.OrderRepository
	Payments  ports.PaymentRepository
	Inventory ports.InventoryAdjuster
	Carts     ports.CartStore
	Notifier  ports.NotificationEmitter
	Recorder  EffectsRecorder
	Logger    *slog.Logger
	// Verifiers maps each signed channel to its signature strategy.
	Verifiers map[ConfirmationSource]ports.SignatureVerifier
}

// PaymentReconciler applies every confirmation channel through one state machine.
type PaymentReconciler struct {
	orders    ports.OrderRepository
	payments  ports.PaymentRepository
	verifiers map[ConfirmationSource]ports.SignatureVerifier
	effects   *confirmationEffects
	notifier  ports.NotificationEmitter
	logger    *slog.Logger
}

func NewPaymentReconciler(deps ReconcilerDeps) *PaymentReconciler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	verifiers := make(map[ConfirmationSource]ports.SignatureVerifier, len(deps.Verifiers)+1)
	for source, v := range deps.Verifiers {
		verifiers[source] = v
	}
	// A dismissal carries no processor signature; it may only report failure.
	verifiers[SourceClientDismissal] = unsigned{}

	return &PaymentReconciler{
		orders:    deps.Orders,
		payments:  deps.Payments,
		verifiers: verifiers,
		effects: &confirmationEffects{
			inventory: deps.Inventory,
			carts:     deps.Carts,
			notifier:  deps.Notifier,
			recorder:  deps.Recorder,
			logger:    logger,
		},
		notifier: deps.Notifier,
		logger:   logger,
	}
}

// Verify checks signature over message with the strategy of source.
func (r *PaymentReconciler) Verify(_ context.Context, source ConfirmationSource, message []byte, signature string) error {
	verifier, ok := r.verifiers[source]
	if !ok {
		return domain.Validationf("unknown confirmation source %q", source)
	}
	if err := verifier.Verify(message, signature); err != nil {
		return fmt.Errorf("%s signature: %w", source, err)
	}
	return nil
}

func (r *PaymentReconciler) Reconcile(ctx context.Context, c Confirmation) (*ReconcileResult, error) {
	if err := r.Verify(ctx, c.Source, c.Message, c.Signature); err != nil {
		return nil, fmt.Errorf("confirmation for %s: %w", c.GatewayOrderID, err)
	}

	if c.Outcome == OutcomeIgnored {
		return &ReconcileResult{Outcome: OutcomeIgnored}, nil
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	record, err := r.payments.GetByGatewayOrderID(ctx, c.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("payment for gateway order %s: %w", c.GatewayOrderID, err)
	}

	order, err := r.orders.GetByID(ctx, record.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order %s for gateway order %s: %w", record.OrderID, c.GatewayOrderID, err)
	}
	if c.UserID != "" && order.UserID != c.UserID {
		return nil, fmt.Errorf("payment for gateway order %s: %w", c.GatewayOrderID, domain.ErrNotFound)
	}

	switch c.Outcome {
	case OutcomeCaptured:
		return r.capture(ctx, record, order, c)
	case OutcomeFailed:
		return r.fail(ctx, record, order, c)
	default:
		return nil, domain.Validationf("unsupported outcome %q", c.Outcome)
	}
}

func (r *PaymentReconciler) capture(ctx context.Context, record *domain.PaymentRecord, order *domain.Order, c Confirmation) (*ReconcileResult, error) {
	result := &ReconcileResult{OrderID: order.ID, Outcome: OutcomeCaptured, PaymentStatus: domain.PaymentRecordCaptured}

	if record.Status == domain.PaymentRecordCaptured && !order.PaymentStatus.CanTransitionTo(domain.PaymentPaid) {
		return result, nil
	}

	if seen, err := r.payments.GetByGatewayPaymentID(ctx, c.GatewayPaymentID); err == nil {
		if seen.Status == domain.PaymentRecordCaptured && seen.GatewayOrderID != record.GatewayOrderID {
			r.logger.WarnContext(ctx, "gateway payment already captured on another record",
				"gateway_payment_id", c.GatewayPaymentID,
				"gateway_order_id", c.GatewayOrderID,
				"captured_gateway_order_id", seen.GatewayOrderID,
			)
			return result, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("look up gateway payment %s: %w", c.GatewayPaymentID, err)
	}

	now := time.Now().UTC()
	won, err := r.payments.MarkCaptured(ctx, record.GatewayOrderID, c.GatewayPaymentID, now)
	if err != nil {
		return nil, fmt.Errorf("capture payment %s: %w", record.GatewayOrderID, err)
	}

	paymentID := c.GatewayPaymentID
	if !won {
		// Another channel captured first; the order carries its payment id.
		current, err := r.payments.GetByGatewayOrderID(ctx, record.GatewayOrderID)
		if err != nil {
			return nil, fmt.Errorf("reload payment %s: %w", record.GatewayOrderID, err)
		}
		paymentID = current.GatewayPaymentID
	}

	// The order update is its own conditional write. Whoever moves the order
	// runs the side effects, which also repairs a capture whose order update
	// was interrupted earlier.
	moved, err := r.orders.MarkPaid(ctx, order.ID, record.GatewayOrderID, paymentID, now)
	if err != nil {
		return nil, fmt.Errorf("mark order %s paid: %w", order.ID, err)
	}
	if !moved {
		if won {
			r.duplicateCapture(ctx, record, order, c, now)
		}
		return result, nil
	}

	result.Transitioned = true
	r.effects.apply(ctx, order, domain.NotificationPaymentCaptured)
	return result, nil
}

// duplicateCapture reports an attempt captured after the order was already
// paid through another one.
func (r *PaymentReconciler) duplicateCapture(ctx context.Context, record *domain.PaymentRecord, order *domain.Order, c Confirmation, at time.Time) {
	current, err := r.orders.GetByID(ctx, order.ID)
	if err == nil {
		order = current
	}
	r.logger.WarnContext(ctx, "payment captured on an already paid order",
		"order_id", order.ID,
		"gateway_order_id", record.GatewayOrderID,
		"gateway_payment_id", c.GatewayPaymentID,
		"paid_gateway_payment_id", order.GatewayPaymentID,
		"amount", record.Amount,
		"source", string(c.Source),
	)

	n := notificationFor(order, domain.NotificationDuplicateCapture, at)
	n.Amount = record.Amount
	n.Message = fmt.Sprintf("order %s: payment %s captured on attempt %s after the order was paid by %s",
		order.OrderNumber, c.GatewayPaymentID, record.GatewayOrderID, order.GatewayPaymentID)
	notify(ctx, r.notifier, n)
}

func (r *PaymentReconciler) fail(ctx context.Context, record *domain.PaymentRecord, order *domain.Order, c Confirmation) (*ReconcileResult, error) {
	result := &ReconcileResult{OrderID: order.ID, Outcome: OutcomeFailed, PaymentStatus: record.Status}

	if record.Status == domain.PaymentRecordCaptured {
		r.logger.InfoContext(ctx, "failure ignored for captured payment",
			"gateway_order_id", record.GatewayOrderID,
			"source", string(c.Source),
		)
		return result, nil
	}

	reason := c.Reason
	if strings.TrimSpace(reason) == "" {
		reason = "payment failed"
	}

	now := time.Now().UTC()
	moved, err := r.payments.MarkFailed(ctx, record.GatewayOrderID, reason, now)
	if err != nil {
		return nil, fmt.Errorf("fail payment %s: %w", record.GatewayOrderID, err)
	}
	if !moved {
		current, err := r.payments.GetByGatewayOrderID(ctx, record.GatewayOrderID)
		if err == nil {
			result.PaymentStatus = current.Status
		}
		return result, nil
	}

	result.Transitioned = true
	result.PaymentStatus = domain.PaymentRecordFailed

	orderMoved, err := r.orders.MarkPaymentFailed(ctx, order.ID, fmt.Sprintf("%s (%s)", reason, c.Source), now)
	if err != nil {
		return nil, fmt.Errorf("record payment failure on order %s: %w", order.ID, err)
	}
	if orderMoved {
		notify(ctx, r.notifier, notificationFor(order, domain.NotificationPaymentFailed, now))
	}
	return result, nil
}

func (c Confirmation) validate() error {
	if strings.TrimSpace(c.GatewayOrderID) == "" {
		return domain.Validationf("gateway_order_id is required")
	}
	switch c.Outcome {
	case OutcomeCaptured:
		if c.Source == SourceClientDismissal {
			return domain.Validationf("a dismissal cannot capture a payment")
		}
		if strings.TrimSpace(c.GatewayPaymentID) == "" {
			return domain.Validationf("gateway_payment_id is required")
		}
	case OutcomeFailed:
	default:
		return domain.Validationf("unsupported outcome %q", c.Outcome)
	}
	return nil
}

type unsigned struct{}

func (unsigned) Verify([]byte, string) error { return nil }

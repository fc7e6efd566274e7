package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus captures the fulfilment lifecycle of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusReturned  OrderStatus = "returned"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {StatusReturned},
	StatusCancelled: nil,
	StatusReturned:  nil,
}

// CanTransitionTo reports whether the order status table allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return allowed(orderTransitions, s, next)
}

// PaymentStatus is the buyer-facing payment state of an order. It is
// monotonic: once paid it can only move to refunded.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentFailed:   {PaymentPaid},
	PaymentPaid:     {PaymentRefunded},
	PaymentRefunded: nil,
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return allowed(paymentTransitions, s, next)
}

// PaymentStatusesInto lists every payment status from which next is reachable.
// Storage adapters use it to build their conditional-update guards.
func PaymentStatusesInto(next PaymentStatus) []PaymentStatus {
	return sourcesOf(paymentTransitions, next)
}

// PaymentMethod selects how the buyer pays.
type PaymentMethod string

const (
	PaymentMethodPrepaid        PaymentMethod = "prepaid"
	PaymentMethodCashOnDelivery PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodPrepaid || m == PaymentMethodCashOnDelivery
}

// OrderItem is a denormalized copy of the catalog line at order time.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id"`
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"line_total"`
}

// HistoryEntry records one status change of an order.
type HistoryEntry struct {
	From   OrderStatus `json:"from,omitempty"`
	To     OrderStatus `json:"to"`
	Reason string      `json:"reason"`
	At     time.Time   `json:"at"`
}

// RefundStatus tracks a ledger entry through the processor call.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

// Refund is one entry of the append-only refund ledger. An entry is reserved
// as pending before the processor is asked to move money.
type Refund struct {
	ID              string       `json:"id"`
	Amount          int64        `json:"amount"`
	Reason          string       `json:"reason"`
	Status          RefundStatus `json:"status"`
	GatewayRefundID string       `json:"gateway_refund_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	SettledAt       *time.Time   `json:"settled_at,omitempty"`
}

// Order is the snapshot of a purchase intent. Amounts are minor currency units.
type Order struct {
	ID               string         `json:"id"`
	OrderNumber      string         `json:"order_number"`
	UserID           string         `json:"user_id"`
	AddressID        string         `json:"address_id"`
	Items            []OrderItem    `json:"items"`
	TotalAmount      int64          `json:"total_amount"`
	DiscountAmount   int64          `json:"discount_amount"`
	ShippingFee      int64          `json:"shipping_fee"`
	FinalAmount      int64          `json:"final_amount"`
	Currency         string         `json:"currency"`
	PaymentMethod    PaymentMethod  `json:"payment_method"`
	Status           OrderStatus    `json:"status"`
	PaymentStatus    PaymentStatus  `json:"payment_status"`
	GatewayOrderID   string         `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string         `json:"gateway_payment_id,omitempty"`
	History          []HistoryEntry `json:"history"`
	Refunds          []Refund       `json:"refunds"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return Validationf("user_id is required")
	}
	if strings.TrimSpace(o.AddressID) == "" {
		return Validationf("address_id is required")
	}
	if !o.PaymentMethod.Valid() {
		return Validationf("payment_method %q is not supported", o.PaymentMethod)
	}
	if len(o.Items) == 0 {
		return Validationf("order has no items")
	}
	var total int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return Validationf("quantity for variant %s must be positive", item.VariantID)
		}
		if item.UnitPrice < 0 {
			return Validationf("price for variant %s must not be negative", item.VariantID)
		}
		total += item.LineTotal
	}
	if total != o.TotalAmount {
		return Validationf("total_amount %d does not match item totals %d", o.TotalAmount, total)
	}
	if o.FinalAmount != o.TotalAmount-o.DiscountAmount+o.ShippingFee {
		return Validationf("final_amount must equal total - discount + shipping")
	}
	if o.FinalAmount <= 0 {
		return Validationf("final_amount must be positive")
	}
	return nil
}

// RefundedAmount sums the completed refunds.
func (o Order) RefundedAmount() int64 {
	var sum int64
	for _, r := range o.Refunds {
		if r.Status == RefundCompleted {
			sum += r.Amount
		}
	}
	return sum
}

// ReservedAmount sums completed refunds and those still awaiting the processor.
func (o Order) ReservedAmount() int64 {
	var sum int64
	for _, r := range o.Refunds {
		if r.Status == RefundCompleted || r.Status == RefundPending {
			sum += r.Amount
		}
	}
	return sum
}

// TransitionTo moves the order to next and appends a history entry.
func (o *Order) TransitionTo(next OrderStatus, reason string, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return Conflictf("order %s cannot move from %s to %s", o.ID, o.Status, next)
	}
	o.History = append(o.History, HistoryEntry{From: o.Status, To: next, Reason: reason, At: at})
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Note appends a history entry without changing the status.
func (o *Order) Note(reason string, at time.Time) {
	o.History = append(o.History, HistoryEntry{From: o.Status, To: o.Status, Reason: reason, At: at})
	o.UpdatedAt = at
}

// MarkPaid records a captured payment. A pending order is confirmed; an
// order that is already past pending keeps its fulfilment status.
func (o *Order) MarkPaid(gatewayOrderID, gatewayPaymentID string, at time.Time) error {
	if !o.PaymentStatus.CanTransitionTo(PaymentPaid) {
		return Conflictf("order %s payment cannot move from %s to paid", o.ID, o.PaymentStatus)
	}
	o.PaymentStatus = PaymentPaid
	o.GatewayOrderID = gatewayOrderID
	o.GatewayPaymentID = gatewayPaymentID
	if o.Status == StatusPending {
		return o.TransitionTo(StatusConfirmed, "payment captured", at)
	}
	o.Note("payment captured", at)
	return nil
}

// MarkPaymentFailed records a failed attempt. Paid and refunded orders are
// never downgraded.
func (o *Order) MarkPaymentFailed(reason string, at time.Time) error {
	if !o.PaymentStatus.CanTransitionTo(PaymentFailed) {
		return Conflictf("order %s payment cannot move from %s to failed", o.ID, o.PaymentStatus)
	}
	o.PaymentStatus = PaymentFailed
	o.Note("payment failed: "+reason, at)
	return nil
}

// ReserveRefund appends a pending refund when the amount still fits under
// the final amount, counting refunds that are in flight.
func (o *Order) ReserveRefund(refund Refund) error {
	if o.PaymentStatus != PaymentPaid {
		return Conflictf("order %s is not refundable in payment status %s", o.ID, o.PaymentStatus)
	}
	if refund.Amount <= 0 {
		return Validationf("refund amount must be positive")
	}
	if remaining := o.FinalAmount - o.ReservedAmount(); refund.Amount > remaining {
		return Conflictf("refund of %d exceeds remaining %d", refund.Amount, remaining)
	}
	refund.Status = RefundPending
	refund.GatewayRefundID = ""
	refund.SettledAt = nil
	o.Refunds = append(o.Refunds, refund)
	o.UpdatedAt = refund.CreatedAt
	return nil
}

// SettleRefund completes a pending refund and flips the payment to refunded
// once completed refunds cover the final amount.
func (o *Order) SettleRefund(refundID, gatewayRefundID string, at time.Time) error {
	i, err := o.pendingRefund(refundID)
	if err != nil {
		return err
	}
	o.Refunds[i].Status = RefundCompleted
	o.Refunds[i].GatewayRefundID = gatewayRefundID
	o.Refunds[i].SettledAt = &at
	o.UpdatedAt = at
	if o.PaymentStatus == PaymentPaid && o.RefundedAmount() >= o.FinalAmount {
		o.PaymentStatus = PaymentRefunded
	}
	return nil
}

// ReleaseRefund marks a pending refund failed so its amount is available again.
func (o *Order) ReleaseRefund(refundID string, at time.Time) error {
	i, err := o.pendingRefund(refundID)
	if err != nil {
		return err
	}
	o.Refunds[i].Status = RefundFailed
	o.Refunds[i].SettledAt = &at
	o.UpdatedAt = at
	return nil
}

func (o *Order) pendingRefund(refundID string) (int, error) {
	for i, r := range o.Refunds {
		if r.ID != refundID {
			continue
		}
		if r.Status != RefundPending {
			return 0, Conflictf("refund %s on order %s is already %s", refundID, o.ID, r.Status)
		}
		return i, nil
	}
	return 0, fmt.Errorf("refund %s on order %s: %w", refundID, o.ID, ErrNotFound)
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, candidate := range table[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func sourcesOf[S comparable](table map[S][]S, to S) []S {
	var out []S
	for from, targets := range table {
		for _, t := range targets {
			if t == to {
				out = append(out, from)
			}
		}
	}
	return out
}

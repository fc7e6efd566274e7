package domain

import "time"

// PaymentRecordStatus tracks one remote transaction attempt.
type PaymentRecordStatus string

const (
	PaymentRecordCreated  PaymentRecordStatus = "created"
	PaymentRecordCaptured PaymentRecordStatus = "captured"
	PaymentRecordFailed   PaymentRecordStatus = "failed"
)

// Captured is terminal. A failed attempt can still be captured because the
// processor may collect funds after the buyer reported a failure.
var paymentRecordTransitions = map[PaymentRecordStatus][]PaymentRecordStatus{
	PaymentRecordCreated:  {PaymentRecordCaptured, PaymentRecordFailed},
	PaymentRecordFailed:   {PaymentRecordCaptured},
	PaymentRecordCaptured: nil,
}

func (s PaymentRecordStatus) CanTransitionTo(next PaymentRecordStatus) bool {
	return allowed(paymentRecordTransitions, s, next)
}

// PaymentRecordStatusesInto lists every record status from which next is reachable.
func PaymentRecordStatusesInto(next PaymentRecordStatus) []PaymentRecordStatus {
	return sourcesOf(paymentRecordTransitions, next)
}

// PaymentRecord is created alongside a prepaid order, one per gateway transaction.
type PaymentRecord struct {
	ID               string              `json:"id"`
	OrderID          string              `json:"order_id"`
	GatewayOrderID   string              `json:"gateway_order_id"`
	GatewayPaymentID string              `json:"gateway_payment_id,omitempty"`
	Amount           int64               `json:"amount"`
	Currency         string              `json:"currency"`
	Status           PaymentRecordStatus `json:"status"`
	FailureReason    string              `json:"failure_reason,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// CheckoutHandle is what the buyer's client needs to launch the payment UI.
type CheckoutHandle struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

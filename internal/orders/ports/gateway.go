package ports

import "context"

// GatewayTransaction is the processor-side handle for an intended payment.
type GatewayTransaction struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// PaymentGateway is the outbound port to the payment processor. Failures are
// reported as *domain.GatewayError.
type PaymentGateway interface {
	CreateTransaction(ctx context.Context, amount int64, currency, reference string) (*GatewayTransaction, error)
	// Refund carries reference, the ledger entry id, so the processor-side
	// refund can be matched to the order's ledger.
	Refund(ctx context.Context, gatewayPaymentID string, amount int64, reference, reason string) (string, error)
}

// SignatureVerifier checks a confirmation signature for one entry point.
type SignatureVerifier interface {
	Verify(message []byte, signature string) error
}

// WebhookEvent is the decoded processor notification.
type WebhookEvent struct {
	Event            string
	GatewayOrderID   string
	GatewayPaymentID string
	ErrorDescription string
}

// WebhookDecoder parses a raw webhook body. It does not verify the signature.
type WebhookDecoder interface {
	Decode(body []byte) (WebhookEvent, error)
}

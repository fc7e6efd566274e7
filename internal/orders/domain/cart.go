package domain

import "time"

// CartLine is one entry of the buyer's cart.
type CartLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// CartSnapshot is a read-only view of a cart at checkout time.
type CartSnapshot struct {
	UserID     string     `json:"user_id"`
	Lines      []CartLine `json:"lines"`
	CapturedAt time.Time  `json:"captured_at"`
}

func (c CartSnapshot) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Variant is the purchasable unit stock is tracked at, joined with its product.
type Variant struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	SKU           string `json:"sku"`
	BasePrice     int64  `json:"base_price"`
	PriceOverride *int64 `json:"price_override,omitempty"`
	StockQuantity int    `json:"stock_quantity"`
}

// UnitPrice returns the override when present, else the product base price.
func (v Variant) UnitPrice() int64 {
	if v.PriceOverride != nil {
		return *v.PriceOverride
	}
	return v.BasePrice
}

// ShippingPolicy holds the store-wide shipping settings.
type ShippingPolicy struct {
	FlatFee               int64
	FreeShippingThreshold int64
}

// FeeFor is zero when total exceeds the free-shipping threshold.
func (p ShippingPolicy) FeeFor(total int64) int64 {
	if total > p.FreeShippingThreshold {
		return 0
	}
	return p.FlatFee
}

// Notification is an administrative alert about an order or payment change.
type Notification struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	NotificationOrderCreated    = "order.created"
	NotificationPaymentCaptured = "payment.captured"
	NotificationPaymentFailed   = "payment.failed"
	NotificationOrderRefunded   = "order.refunded"
	// NotificationDuplicateCapture flags money captured on a second attempt
	// of an order that was already paid. It needs a manual refund.
	NotificationDuplicateCapture = "payment.duplicate_capture"
)

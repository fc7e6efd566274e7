package ports

import "context"

// StoredResponse is the checkout response replayed for a reused key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// IdempotencyStore lets buyers retry order creation without creating a second
// order. Keys are namespaced by buyer before they reach the store. The first
// Save for a key wins until the key falls out of the retention window.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, response StoredResponse) error
	// Purge removes expired keys and reports how many were dropped.
	Purge(ctx context.Context) (int64, error)
}

package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// CartStore is an in-memory stand-in for the cart service.
type CartStore struct {
	mu    sync.Mutex
	carts map[string][]domain.CartLine
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string][]domain.CartLine)}
}

func (s *CartStore) Add(userID string, lines ...domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append(s.carts[userID], lines...)
}

func (s *CartStore) Snapshot(_ context.Context, userID string) (domain.CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CartSnapshot{
		UserID:     userID,
		Lines:      slices.Clone(s.carts[userID]),
		CapturedAt: time.Now().UTC(),
	}, nil
}

func (s *CartStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

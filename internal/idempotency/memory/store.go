package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

type entry struct {
	response ports.StoredResponse
	savedAt  time.Time
}

// Store retains idempotency responses for replaying duplicate requests.
type Store struct {
	mu        sync.RWMutex
	items     map[string]entry
	retention time.Duration
	now       func() time.Time
}

// NewStore creates a new in-memory idempotency store. A zero retention keeps
// entries forever.
func NewStore(retention time.Duration) *Store {
	return &Store{items: make(map[string]entry), retention: retention, now: time.Now}
}

// Get returns the stored response for a given key if present and not expired.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	if !ok || s.expired(value) {
		return nil, nil
	}
	resp := value.response
	resp.Body = slices.Clone(resp.Body)
	return &resp, nil
}

// Save stores the first response for a key. Expired entries are replaced.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && !s.expired(existing) {
		return nil
	}
	response.Body = slices.Clone(response.Body)
	s.items[key] = entry{response: response, savedAt: s.now()}
	return nil
}

// Purge drops expired entries.
func (s *Store) Purge(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, value := range s.items {
		if s.expired(value) {
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) expired(e entry) bool {
	return s.retention > 0 && !s.now().Before(e.savedAt.Add(s.retention))
}

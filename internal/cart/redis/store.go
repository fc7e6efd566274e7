// Package redis keeps buyer carts in Redis hashes, one hash per buyer with a
// field per variant.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

type line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Store implements ports.CartStore.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewStore wraps a connected client. Carts idle for longer than ttl expire;
// zero keeps them until cleared.
func NewStore(client *goredis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// NewClient connects and checks the server answers.
func NewClient(ctx context.Context, opts *goredis.Options) (*goredis.Client, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:{%s}", userID)
}

// Add sets the quantity for each line and refreshes the cart expiry.
func (s *Store) Add(ctx context.Context, userID string, lines ...domain.CartLine) error {
	key := cartKey(userID)

	pipe := s.client.TxPipeline()
	for _, l := range lines {
		value, err := json.Marshal(line{ProductID: l.ProductID, Quantity: l.Quantity})
		if err != nil {
			return fmt.Errorf("encode cart line: %w", err)
		}
		pipe.HSet(ctx, key, l.VariantID, value)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	return nil
}

// Snapshot reads the whole cart. Lines are ordered by variant id.
func (s *Store) Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	fields, err := s.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("read cart: %w", err)
	}

	snapshot := domain.CartSnapshot{UserID: userID, CapturedAt: s.now().UTC()}
	for variantID, raw := range fields {
		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return domain.CartSnapshot{}, fmt.Errorf("decode cart line %s: %w", variantID, err)
		}
		snapshot.Lines = append(snapshot.Lines, domain.CartLine{
			ProductID: l.ProductID,
			VariantID: variantID,
			Quantity:  l.Quantity,
		})
	}

	sort.Slice(snapshot.Lines, func(i, j int) bool {
		return snapshot.Lines[i].VariantID < snapshot.Lines[j].VariantID
	})
	return snapshot, nil
}

func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

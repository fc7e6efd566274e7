package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

// Store keeps checkout responses keyed by buyer-scoped idempotency key.
// Entries older than the retention window are treated as absent.
type Store struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

func NewStore(pool *pgxpool.Pool, retention time.Duration) *Store {
	return &Store{pool: pool, retention: retention}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1 AND created_at > $2
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key, s.cutoff()).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Save keeps the first response for a live key. An expired row is replaced.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
			body = EXCLUDED.body,
			order_id = EXCLUDED.order_id,
			created_at = EXCLUDED.created_at
		WHERE idempotency_keys.created_at <= $5
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID, s.cutoff())
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

// Purge deletes expired keys and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at <= $1`, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) cutoff() time.Time {
	if s.retention <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-s.retention)
}

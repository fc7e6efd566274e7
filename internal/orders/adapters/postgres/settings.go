package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// Settings reads the single store_settings row, falling back to the
// configured policy until an operator has written one.
type Settings struct {
	pool     *pgxpool.Pool
	fallback domain.ShippingPolicy
}

func NewSettings(pool *pgxpool.Pool, fallback domain.ShippingPolicy) *Settings {
	return &Settings{pool: pool, fallback: fallback}
}

func (s *Settings) ShippingPolicy(ctx context.Context) (domain.ShippingPolicy, error) {
	var policy domain.ShippingPolicy
	err := s.pool.QueryRow(ctx,
		`SELECT shipping_flat_fee, free_shipping_threshold FROM store_settings WHERE id = 1`,
	).Scan(&policy.FlatFee, &policy.FreeShippingThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.fallback, nil
		}
		return domain.ShippingPolicy{}, fmt.Errorf("select store settings: %w", err)
	}
	return policy, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const healthTimeout = 2 * time.Second

func CheckHealth(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	return pool.Ping(ctx)
}

// CheckSchema fails until every named table exists, which keeps /readyz red
// while migrations have not been applied.
func CheckSchema(ctx context.Context, pool *pgxpool.Pool, tables ...string) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	for _, table := range tables {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %s is missing", table)
		}
	}
	return nil
}

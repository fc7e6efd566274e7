package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// Catalog reads variants joined with their product and owns the stock column.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) GetVariant(ctx context.Context, variantID string) (*domain.Variant, error) {
	query := `
		SELECT v.id, p.id, p.name, v.sku, p.base_price, v.price_override, v.stock_quantity
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1
	`

	var v domain.Variant
	err := c.pool.QueryRow(ctx, query, variantID).Scan(
		&v.ID,
		&v.ProductID,
		&v.ProductName,
		&v.SKU,
		&v.BasePrice,
		&v.PriceOverride,
		&v.StockQuantity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select variant: %w", err)
	}

	return &v, nil
}

// Decrement subtracts quantity only while the result stays non-negative.
// Check and write happen in the same statement.
func (c *Catalog) Decrement(ctx context.Context, variantID string, quantity int) error {
	if quantity <= 0 {
		return domain.Validationf("decrement quantity must be positive")
	}

	tag, err := c.pool.Exec(ctx, `
		UPDATE product_variants
		SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2
	`, variantID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var (
		sku       string
		available int
	)
	err = c.pool.QueryRow(ctx, `SELECT sku, stock_quantity FROM product_variants WHERE id = $1`, variantID).Scan(&sku, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("read stock: %w", err)
	}

	return &domain.InsufficientStockError{VariantID: variantID, SKU: sku, Requested: quantity, Available: available}
}

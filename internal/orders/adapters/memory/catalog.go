package memory

import (
	"context"
	"sync"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// Catalog holds variants and their stock. It serves both the read side used by
// the pre-check and the floor-guarded decrement.
type Catalog struct {
	mu       sync.RWMutex
	variants map[string]domain.Variant
}

func NewCatalog(variants ...domain.Variant) *Catalog {
	c := &Catalog{variants: make(map[string]domain.Variant, len(variants))}
	for _, v := range variants {
		c.variants[v.ID] = v
	}
	return c
}

// Put inserts or replaces a variant.
func (c *Catalog) Put(v domain.Variant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variants[v.ID] = v
}

func (c *Catalog) GetVariant(_ context.Context, variantID string) (*domain.Variant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variants[variantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

// Decrement never lets stock drop below zero.
func (c *Catalog) Decrement(_ context.Context, variantID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.variants[variantID]
	if !ok {
		return domain.ErrNotFound
	}
	if v.StockQuantity < quantity {
		return &domain.InsufficientStockError{
			VariantID: v.ID,
			SKU:       v.SKU,
			Requested: quantity,
			Available: v.StockQuantity,
		}
	}
	v.StockQuantity -= quantity
	c.variants[variantID] = v
	return nil
}

// Settings serves a fixed shipping policy.
type Settings struct {
	Policy domain.ShippingPolicy
}

func (s Settings) ShippingPolicy(context.Context) (domain.ShippingPolicy, error) {
	return s.Policy, nil
}

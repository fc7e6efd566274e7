package ports

import (
	"context"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// VariantCatalog reads live variant data for the stock pre-check and pricing.
type VariantCatalog interface {
	GetVariant(ctx context.Context, variantID string) (*domain.Variant, error)
}

// InventoryAdjuster decrements stock with a floor guard in a single write.
type InventoryAdjuster interface {
	Decrement(ctx context.Context, variantID string, quantity int) error
}

// CartStore is the external cart service.
type CartStore interface {
	Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error)
	Clear(ctx context.Context, userID string) error
}

// SettingsProvider exposes store-wide settings.
type SettingsProvider interface {
	ShippingPolicy(ctx context.Context) (domain.ShippingPolicy, error)
}

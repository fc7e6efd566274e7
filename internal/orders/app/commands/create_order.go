package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
	"golang.org/x/sync/errgroup"
)

const stockCheckConcurrency = 8

type CreateOrderCommand struct {
	UserID        string
	AddressID     string
	PaymentMethod domain.PaymentMethod
}

func (c CreateOrderCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.Validationf("user_id is required")
	}
	if strings.TrimSpace(c.AddressID) == "" {
		return domain.Validationf("address_id is required")
	}
	if !c.PaymentMethod.Valid() {
		return domain.Validationf("payment_method must be %q or %q", domain.PaymentMethodPrepaid, domain.PaymentMethodCashOnDelivery)
	}
	return nil
}

// CreateOrderResult carries the order and, for prepaid orders, what the
// buyer's client needs to launch the payment UI.
type CreateOrderResult struct {
	Order    *domain.Order          `json:"order"`
	Checkout *domain.CheckoutHandle `json:"checkout,omitempty"`
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error)
}

// CheckoutConfig holds the store currency and the public gateway key handed to clients.
type CheckoutConfig struct {
	Currency string
	KeyID    string
}

// CreateOrderDeps bundles the collaborators of CreateOrderCommandHandler.
type CreateOrderDeps struct {
	Orders    ports.OrderRepository
	Payments  ports.PaymentRepository
	Catalog   ports.VariantCatalog
	Inventory ports.InventoryAdjuster
	Carts     ports.CartStore
	Settings  ports.SettingsProvider
	Gateway   ports.PaymentGateway
	Notifier  ports.NotificationEmitter
	Recorder  EffectsRecorder
	Logger    *slog.Logger
}

type CreateOrderCommandHandler struct {
	orders   ports.OrderRepository
	catalog  ports.VariantCatalog
	carts    ports.CartStore
	settings ports.SettingsProvider
	opener   *paymentOpener
	effects  *confirmationEffects
	cfg      CheckoutConfig
}

func NewCreateOrderCommandHandler(deps CreateOrderDeps, cfg CheckoutConfig) *CreateOrderCommandHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateOrderCommandHandler{
		orders:   deps.Orders,
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		settings: deps.Settings,
		opener: &paymentOpener{
			orders:   deps.Orders,
			payments: deps.Payments,
			gateway:  deps.Gateway,
			keyID:    cfg.KeyID,
		},
		effects: &confirmationEffects{
			inventory: deps.Inventory,
			carts:     deps.Carts,
			notifier:  deps.Notifier,
			recorder:  deps.Recorder,
			logger:    logger,
		},
		cfg: cfg,
	}
}

func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	cart, err := h.carts.Snapshot(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.Validationf("cart is empty")
	}

	lines := mergeLines(cart.Lines)
	variants, err := h.checkStock(ctx, lines)
	if err != nil {
		return nil, err
	}

	policy, err := h.settings.ShippingPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shipping policy: %w", err)
	}

	order := h.buildOrder(cmd, lines, variants, policy)
	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := h.orders.Create(ctx, *order); err != nil {
		return nil, err
	}

	if order.PaymentMethod == domain.PaymentMethodCashOnDelivery {
		// No payment to reconcile: creation is the confirmation edge.
		h.effects.apply(ctx, order, domain.NotificationOrderCreated)
		return &CreateOrderResult{Order: order}, nil
	}

	handle, err := h.opener.open(ctx, order)
	if err != nil {
		return &CreateOrderResult{Order: order}, fmt.Errorf("order %s saved but payment was not opened: %w", order.ID, err)
	}

	return &CreateOrderResult{Order: order, Checkout: handle}, nil
}

// checkStock is a best-effort pre-check without reservation. The floor-guarded
// decrement at confirmation time is what keeps stock non-negative.
func (h *CreateOrderCommandHandler) checkStock(ctx context.Context, lines []domain.CartLine) ([]domain.Variant, error) {
	variants := make([]domain.Variant, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stockCheckConcurrency)
	for i, line := range lines {
		g.Go(func() error {
			if line.Quantity <= 0 {
				return domain.Validationf("quantity for variant %s must be positive", line.VariantID)
			}
			variant, err := h.catalog.GetVariant(gctx, line.VariantID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Validationf("variant %s is no longer available", line.VariantID)
			}
			if err != nil {
				return fmt.Errorf("load variant %s: %w", line.VariantID, err)
			}
			if line.Quantity > variant.StockQuantity {
				return &domain.InsufficientStockError{
					VariantID: variant.ID,
					SKU:       variant.SKU,
					Requested: line.Quantity,
					Available: variant.StockQuantity,
				}
			}
			variants[i] = *variant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (h *CreateOrderCommandHandler) buildOrder(cmd CreateOrderCommand, lines []domain.CartLine, variants []domain.Variant, policy domain.ShippingPolicy) *domain.Order {
	now := time.Now().UTC()
	orderID := uuid.New()

	items := make([]domain.OrderItem, len(lines))
	var total int64
	for i, line := range lines {
		v := variants[i]
		price := v.UnitPrice()
		items[i] = domain.OrderItem{
			ProductID:   v.ProductID,
			VariantID:   v.ID,
			ProductName: v.ProductName,
			SKU:         v.SKU,
			UnitPrice:   price,
			Quantity:    line.Quantity,
			LineTotal:   price * int64(line.Quantity),
		}
		total += items[i].LineTotal
	}

	var discount int64
	shipping := policy.FeeFor(total)

	order := &domain.Order{
		ID:             orderID.String(),
		OrderNumber:    orderNumber(orderID, now),
		UserID:         cmd.UserID,
		AddressID:      cmd.AddressID,
		Items:          items,
		TotalAmount:    total,
		DiscountAmount: discount,
		ShippingFee:    shipping,
		FinalAmount:    total - discount + shipping,
		Currency:       h.cfg.Currency,
		PaymentMethod:  cmd.PaymentMethod,
		Status:         domain.StatusPending,
		PaymentStatus:  domain.PaymentPending,
		History: []domain.HistoryEntry{
			{To: domain.StatusPending, Reason: "order placed", At: now},
		},
		Refunds:   []domain.Refund{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if cmd.PaymentMethod == domain.PaymentMethodCashOnDelivery {
		_ = order.TransitionTo(domain.StatusConfirmed, "cash on delivery", now)
	}

	return order
}

// mergeLines folds repeated variants so stock is checked against the full quantity.
func mergeLines(lines []domain.CartLine) []domain.CartLine {
	index := make(map[string]int, len(lines))
	merged := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.VariantID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.VariantID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func orderNumber(id uuid.UUID, at time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10]))
}

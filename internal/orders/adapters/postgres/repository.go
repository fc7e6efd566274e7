package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

const uniqueViolation = "23505"

const orderColumns = `
	id, order_number, user_id, address_id, items,
	total_amount, discount_amount, shipping_fee, final_amount, currency,
	payment_method, status, payment_status,
	COALESCE(gateway_order_id, ''), COALESCE(gateway_payment_id, ''),
	history, refunds, created_at, updated_at`

// Repository persists orders in Postgres. Items, history and refunds are
// stored as JSONB documents on the order row.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	items, history, refunds, err := marshalDocuments(order)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			id, order_number, user_id, address_id, items,
			total_amount, discount_amount, shipping_fee, final_amount, currency,
			payment_method, status, payment_status,
			gateway_order_id, gateway_payment_id,
			history, refunds, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			NULLIF($14, ''), NULLIF($15, ''), $16, $17, $18, $19)
	`

	_, err = r.pool.Exec(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.AddressID,
		items,
		order.TotalAmount,
		order.DiscountAmount,
		order.ShippingFee,
		order.FinalAmount,
		order.Currency,
		string(order.PaymentMethod),
		string(order.Status),
		string(order.PaymentStatus),
		order.GatewayOrderID,
		order.GatewayPaymentID,
		history,
		refunds,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("order %s already exists", order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, filter.UserID, status, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func (r *Repository) SetGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) error {
	query := `UPDATE orders SET gateway_order_id = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, orderID, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("set gateway order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkPaid moves payment_status to paid in one guarded UPDATE. A pending
// order is confirmed in the same statement.
func (r *Repository) MarkPaid(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error) {
	query := `
		UPDATE orders SET
			payment_status = 'paid',
			status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
			gateway_order_id = $2,
			gateway_payment_id = $3,
			history = history || jsonb_build_array(jsonb_build_object(
				'from', status,
				'to', CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
				'reason', 'payment captured',
				'at', $4::timestamptz
			)),
			updated_at = $4
		WHERE id = $1 AND payment_status = ANY($5)
	`

	tag, err := r.pool.Exec(ctx, query, orderID, gatewayOrderID, gatewayPaymentID, at,
		statusStrings(domain.PaymentStatusesInto(domain.PaymentPaid)))
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return r.moved(ctx, orderID, tag)
}

func (r *Repository) MarkPaymentFailed(ctx context.Context, orderID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE orders SET
			payment_status = 'failed',
			history = history || jsonb_build_array(jsonb_build_object(
				'from', status,
				'to', status,
				'reason', 'payment failed: ' || $2::text,
				'at', $3::timestamptz
			)),
			updated_at = $3
		WHERE id = $1 AND payment_status = ANY($4)
	`

	tag, err := r.pool.Exec(ctx, query, orderID, reason, at,
		statusStrings(domain.PaymentStatusesInto(domain.PaymentFailed)))
	if err != nil {
		return false, fmt.Errorf("mark order payment failed: %w", err)
	}
	return r.moved(ctx, orderID, tag)
}

// ReserveRefund appends a pending refund. The order row is locked so
// concurrent refunds cannot exceed the final amount between the check and
// the write.
func (r *Repository) ReserveRefund(ctx context.Context, orderID string, refund domain.Refund) (*domain.Order, error) {
	return r.updateRefunds(ctx, orderID, "reserve", func(o *domain.Order) error { return o.ReserveRefund(refund) })
}

// SettleRefund completes a pending refund and moves payment_status to
// refunded once the ledger covers the final amount.
func (r *Repository) SettleRefund(ctx context.Context, orderID, refundID, gatewayRefundID string, at time.Time) (*domain.Order, error) {
	return r.updateRefunds(ctx, orderID, "settle", func(o *domain.Order) error {
		return o.SettleRefund(refundID, gatewayRefundID, at)
	})
}

// ReleaseRefund marks a pending refund failed.
func (r *Repository) ReleaseRefund(ctx context.Context, orderID, refundID string, at time.Time) (*domain.Order, error) {
	return r.updateRefunds(ctx, orderID, "release", func(o *domain.Order) error { return o.ReleaseRefund(refundID, at) })
}

func (r *Repository) updateRefunds(ctx context.Context, orderID, op string, apply func(*domain.Order) error) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin %s refund: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if err := apply(order); err != nil {
		return nil, err
	}

	refunds, err := json.Marshal(order.Refunds)
	if err != nil {
		return nil, fmt.Errorf("marshal refunds: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET refunds = $2, payment_status = $3, updated_at = $4 WHERE id = $1`,
		orderID, refunds, string(order.PaymentStatus), order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update refunds: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit %s refund: %w", op, err)
	}

	return order, nil
}

// moved turns a zero-row guarded update into either "already there" or not found.
func (r *Repository) moved(ctx context.Context, orderID string, tag pgconn.CommandTag) (bool, error) {
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order                   domain.Order
		items, history, refunds []byte
		method, status, paid    string
	)

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.AddressID,
		&items,
		&order.TotalAmount,
		&order.DiscountAmount,
		&order.ShippingFee,
		&order.FinalAmount,
		&order.Currency,
		&method,
		&status,
		&paid,
		&order.GatewayOrderID,
		&order.GatewayPaymentID,
		&history,
		&refunds,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentMethod = domain.PaymentMethod(method)
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paid)

	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(history, &order.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if err := json.Unmarshal(refunds, &order.Refunds); err != nil {
		return nil, fmt.Errorf("decode refunds: %w", err)
	}

	return &order, nil
}

func marshalDocuments(order domain.Order) (items, history, refunds []byte, err error) {
	if items, err = json.Marshal(order.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal items: %w", err)
	}
	if order.History == nil {
		order.History = []domain.HistoryEntry{}
	}
	if history, err = json.Marshal(order.History); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal history: %w", err)
	}
	if order.Refunds == nil {
		order.Refunds = []domain.Refund{}
	}
	if refunds, err = json.Marshal(order.Refunds); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal refunds: %w", err)
	}
	return items, history, refunds, nil
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

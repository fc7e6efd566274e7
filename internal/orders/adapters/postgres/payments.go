package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

const paymentColumns = `
	id, order_id, gateway_order_id, COALESCE(gateway_payment_id, ''),
	amount, currency, status, COALESCE(failure_reason, ''), created_at, updated_at`

// PaymentRepository stores one row per remote transaction attempt.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, record domain.PaymentRecord) error {
	query := `
		INSERT INTO payment_records (
			id, order_id, gateway_order_id, gateway_payment_id,
			amount, currency, status, failure_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.OrderID,
		record.GatewayOrderID,
		record.GatewayPaymentID,
		record.Amount,
		record.Currency,
		string(record.Status),
		record.FailureReason,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("payment record for %s already exists", record.GatewayOrderID)
		}
		return fmt.Errorf("insert payment record: %w", err)
	}

	return nil
}

func (r *PaymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payment_records WHERE gateway_order_id = $1`, gatewayOrderID)
}

func (r *PaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payment_records WHERE gateway_payment_id = $1`, gatewayPaymentID)
}

func (r *PaymentRepository) LatestForOrder(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+`
		FROM payment_records
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, orderID)
}

// MarkCaptured is the compare-and-swap both confirmation channels race on.
// Exactly one caller sees true for a given attempt.
func (r *PaymentRepository) MarkCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_records
		SET status = 'captured', gateway_payment_id = $2, failure_reason = NULL, updated_at = $3
		WHERE gateway_order_id = $1 AND status = ANY($4)
	`

	tag, err := r.pool.Exec(ctx, query, gatewayOrderID, gatewayPaymentID, at,
		statusStrings(domain.PaymentRecordStatusesInto(domain.PaymentRecordCaptured)))
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.Conflictf("payment %s already captured on another attempt", gatewayPaymentID)
		}
		return false, fmt.Errorf("mark payment captured: %w", err)
	}
	return r.moved(ctx, gatewayOrderID, tag.RowsAffected())
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, gatewayOrderID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_records
		SET status = 'failed', failure_reason = $2, updated_at = $3
		WHERE gateway_order_id = $1 AND status = ANY($4)
	`

	tag, err := r.pool.Exec(ctx, query, gatewayOrderID, reason, at,
		statusStrings(domain.PaymentRecordStatusesInto(domain.PaymentRecordFailed)))
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	return r.moved(ctx, gatewayOrderID, tag.RowsAffected())
}

func (r *PaymentRepository) moved(ctx context.Context, gatewayOrderID string, affected int64) (bool, error) {
	if affected > 0 {
		return true, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_records WHERE gateway_order_id = $1)`, gatewayOrderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment record: %w", err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg string) (*domain.PaymentRecord, error) {
	var (
		record domain.PaymentRecord
		status string
	)

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&record.ID,
		&record.OrderID,
		&record.GatewayOrderID,
		&record.GatewayPaymentID,
		&record.Amount,
		&record.Currency,
		&status,
		&record.FailureReason,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select payment record: %w", err)
	}

	record.Status = domain.PaymentRecordStatus(status)
	return &record, nil
}

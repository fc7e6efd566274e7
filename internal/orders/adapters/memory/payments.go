package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// PaymentRepository keeps payment records keyed by gateway order id.
type PaymentRepository struct {
	mu      sync.RWMutex
	records map[string]domain.PaymentRecord
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{records: make(map[string]domain.PaymentRecord)}
}

func (r *PaymentRepository) Create(_ context.Context, record domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.GatewayOrderID]; exists {
		return domain.Conflictf("payment for gateway order %s already exists", record.GatewayOrderID)
	}
	r.records[record.GatewayOrderID] = record
	return nil
}

func (r *PaymentRepository) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[gatewayOrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (r *PaymentRepository) GetByGatewayPaymentID(_ context.Context, gatewayPaymentID string) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, record := range r.records {
		if gatewayPaymentID != "" && record.GatewayPaymentID == gatewayPaymentID {
			return &record, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *PaymentRepository) LatestForOrder(_ context.Context, orderID string) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.PaymentRecord
	for _, record := range r.records {
		if record.OrderID != orderID {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = &record
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

// MarkCaptured is the compare-and-swap both confirmation channels race on.
func (r *PaymentRepository) MarkCaptured(_ context.Context, gatewayOrderID, gatewayPaymentID string, at time.Time) (bool, error) {
	return r.transition(gatewayOrderID, domain.PaymentRecordCaptured, at, func(record *domain.PaymentRecord) {
		record.GatewayPaymentID = gatewayPaymentID
		record.FailureReason = ""
	})
}

func (r *PaymentRepository) MarkFailed(_ context.Context, gatewayOrderID, reason string, at time.Time) (bool, error) {
	return r.transition(gatewayOrderID, domain.PaymentRecordFailed, at, func(record *domain.PaymentRecord) {
		record.FailureReason = reason
	})
}

func (r *PaymentRepository) transition(gatewayOrderID string, next domain.PaymentRecordStatus, at time.Time, mutate func(*domain.PaymentRecord)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[gatewayOrderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !slices.Contains(domain.PaymentRecordStatusesInto(next), record.Status) {
		return false, nil
	}
	record.Status = next
	record.UpdatedAt = at
	mutate(&record)
	r.records[gatewayOrderID] = record
	return true, nil
}

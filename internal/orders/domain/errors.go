package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request rejected before anything was persisted.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock is returned when a variant cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrSignature marks a confirmation whose signature did not verify.
	ErrSignature = errors.New("signature verification failed")
	// ErrNotFound is returned when an order, payment or variant reference is unknown.
	ErrNotFound = errors.New("not found")
	// ErrGateway marks a failure talking to the payment processor.
	ErrGateway = errors.New("payment gateway error")
	// ErrConflict is returned when a transition would downgrade or duplicate terminal state.
	ErrConflict = errors.New("conflict")
)

// Validationf builds an error matching ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf builds an error matching ErrConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// InsufficientStockError names the variant that could not be served.
// It matches both ErrInsufficientStock and ErrValidation.
type InsufficientStockError struct {
	VariantID string
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.SKU != "" {
		return fmt.Sprintf("insufficient stock for %s (variant %s): requested %d, available %d", e.SKU, e.VariantID, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for variant %s: requested %d", e.VariantID, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == ErrValidation
}

// GatewayError wraps a processor failure. Retryable is set for transport
// errors, throttling and 5xx responses.
type GatewayError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

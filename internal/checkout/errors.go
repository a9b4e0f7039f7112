package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnknownReference marks a webhook for a session this system never
	// tracked. Acked, never retried.
	ErrUnknownReference = errors.New("unknown provider reference")

	// ErrDuplicateEvent marks a webhook event id that was already processed.
	ErrDuplicateEvent = errors.New("event already processed")
)

// ValidationError rejects a cart before any reservation is attempted. The
// field and reason are safe to surface to the customer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid checkout: %s: %s", e.Field, e.Reason)
}

// InsufficientStockError names the variant that lost the race. Any holds
// already acquired for the attempt have been released by the time it returns.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// PaymentProviderError wraps a failure to create a hosted payment session.
// The order has been cancelled and its holds released.
type PaymentProviderError struct {
	OrderID string
	Err     error
}

func (e *PaymentProviderError) Error() string {
	return fmt.Sprintf("payment provider error for order %s: %v", e.OrderID, e.Err)
}

func (e *PaymentProviderError) Unwrap() error { return e.Err }

package stockledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("stockledger: not found")
	ErrInvalidInput = errors.New("stockledger: invalid input")

	// Entity errors
	ErrSettingsNotFound  = errors.New("stockledger: settings not found")
	ErrInventoryNotFound = errors.New("stockledger: inventory not found")
	ErrSaleNotFound      = errors.New("stockledger: sale not found")
	ErrTipNotFound       = errors.New("stockledger: tip not found")
	ErrUnknownProfile    = errors.New("stockledger: unknown profile")

	// Transaction errors
	ErrInsufficientStock = errors.New("stockledger: insufficient stock")
	ErrConflict          = errors.New("stockledger: transaction conflict")

	// Store errors
	ErrStoreClosed     = errors.New("stockledger: store is closed")
	ErrMigrationFailed = errors.New("stockledger: migration failed")

	// Projection errors
	ErrNotStarted = errors.New("stockledger: live projection not started")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("stockledger: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput, and profile
// failures also match ErrUnknownProfile.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput || (e.Field == "profile" && target == ErrUnknownProfile)
}

// InsufficientStockError reports the flavor whose live stock could not cover a request.
type InsufficientStockError struct {
	Flavor    string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stockledger: insufficient stock for %s: requested %d, available %d",
		e.Flavor, e.Requested, e.Available)
}

// Is makes every InsufficientStockError match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSettingsNotFound) ||
		errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrTipNotFound)
}

// IsInsufficientStock returns true if a sale was rejected for lack of stock.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// IsConflict returns true if the retry budget was exhausted under contention.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation returns true for malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

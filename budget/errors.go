/*
errors.go - Centralized error types for the budget engine

ERROR CATEGORIES:
  1. Caller errors - missing identity, invalid input (never touch the store)
  2. Store errors  - wrapped docstore failures, surfaced so the caller can
     show "failed, try again" instead of silently losing data
  3. Outcomes      - a lost rollover race is reported on RolloverResult,
     not as an error

Nothing here is fatal to the process; every operation is retriable by
re-invocation.
*/
package budget

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/docstore"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotAuthenticated is returned when no user identifier is available.
	// The operation aborts before any store mutation.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError rejects invalid input before any store mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, docstore.ErrDuplicateID)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}

// requireUser guards every operation that needs a caller identity.
func requireUser(userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	return nil
}

// requirePositive validates a money amount strictly greater than zero.
func requirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: field, Message: "must be a positive amount"}
	}
	return nil
}

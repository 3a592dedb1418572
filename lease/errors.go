/*
errors.go - Centralized error types for the lease engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the taxonomy with errors.Is or the category helpers.

ERROR CATEGORIES:
  1. Validation - bad input, rejected synchronously, never retried
  2. Conflict   - overlapping lease, stale concurrent mutation
  3. NotFound   - unknown lease/unit/tenant reference
  (Malformed gateway payloads are NOT errors here: the gateway adapter logs
  and acknowledges them, since the gateway would otherwise retry forever.)

USAGE:
  if lease.IsConflict(err) { ... respond 409 ... }
  if errors.Is(err, lease.ErrLeaseNotFound) { ... respond 404 ... }

SEE ALSO:
  - ledger.go, lifecycle.go: Produce these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package lease

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrLeaseNotFound is returned when a referenced lease does not exist or
	// has been soft-deleted.
	ErrLeaseNotFound = errors.New("lease not found")

	// ErrPaymentNotFound is returned when a referenced payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrUnitNotFound is returned when a referenced unit does not exist.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrTenantNotFound is returned when a referenced tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrDuplicateDedupKey is returned by stores when a dedup key already maps
	// to a payment. The ledger absorbs it by returning the existing payment;
	// callers above the ledger should never observe it.
	ErrDuplicateDedupKey = errors.New("duplicate dedup key")

	// ErrLeaseOverlap is returned when a unit already has a lease with an
	// intersecting [start, end) interval.
	ErrLeaseOverlap = errors.New("unit already leased for overlapping dates")

	// ErrLeaseNotActive is returned when a transition requires an active lease.
	ErrLeaseNotActive = errors.New("lease is not active")

	// ErrInvalidTransition is returned for a status change the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid lease status transition")

	// ErrInvalidAmount is returned when appending a non-positive payment.
	ErrInvalidAmount = errors.New("payment amount must be positive")

	// ErrInvalidDateRange is returned for a malformed date range.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrStaleLease is returned when a concurrent mutation won the
	// compare-and-set on the lease row. Safe to retry with fresh terms.
	ErrStaleLease = errors.New("lease modified concurrently")

	// ErrPaymentTypeUnknown is returned when a type code is not in the catalog.
	ErrPaymentTypeUnknown = errors.New("unknown payment type code")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a bad input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OverlapError reports which existing lease blocks a creation.
type OverlapError struct {
	UnitID     UnitID
	ExistingID LeaseID
	Start      Date
	End        Date
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("unit %s already leased by %s for [%s, %s)",
		e.UnitID, e.ExistingID, e.Start, e.End)
}

func (e *OverlapError) Unwrap() error { return ErrLeaseOverlap }

// TransitionError reports a disallowed status change.
type TransitionError struct {
	LeaseID LeaseID
	From    LeaseStatus
	To      LeaseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lease %s: cannot transition %s -> %s", e.LeaseID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid caller input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrPaymentTypeUnknown)
}

// IsConflict returns true if the error names a conflict with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLeaseOverlap) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrLeaseNotActive) ||
		errors.Is(err, ErrStaleLease)
}

// IsNotFound returns true if the error indicates a missing reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLeaseNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrTenantNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleLease)
}

/*
errors.go - Centralized error types for the time-bank engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is / errors.As; the API layer maps
  classes to HTTP statuses.

ERROR CATEGORIES:
  1. Validation errors - bad input, rejected synchronously, never retried
  2. Conflict errors - state disagrees with the request (retry after fixing)
  3. Not-found errors - referenced record does not exist
  4. Provider errors - external provider unreachable; caller may retry
     (sync upserts are idempotent, so retrying is safe)

SEE ALSO:
  - entries.go, adjustments.go, closure.go, sync.go: producers
  - api/handlers.go: HTTP status mapping
*/
package timebank

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyOpen is returned by clock-in when the employee already has a
	// running entry.
	ErrAlreadyOpen = errors.New("employee already has an open entry")

	// ErrNoOpenEntry is returned by clock-out when no running entry exists.
	ErrNoOpenEntry = errors.New("no open entry for employee")

	// ErrInvalidInterval is returned when an entry would end before it starts.
	ErrInvalidInterval = errors.New("entry end precedes start")

	// ErrInvalidDelta is returned when an adjustment delta is zero or exceeds
	// the 24h bound.
	ErrInvalidDelta = errors.New("adjustment delta out of bounds")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrAlreadyReviewed is returned when deciding an adjustment that already
	// left the pending state.
	ErrAlreadyReviewed = errors.New("adjustment already reviewed")

	// ErrPeriodClosed is returned when a write targets a date inside a closed
	// period and the caller lacks override authority.
	ErrPeriodClosed = errors.New("period is closed for this date")

	// ErrNotClosed is returned when reopening a closure that is already
	// reopened.
	ErrNotClosed = errors.New("closure is not closed")

	// ErrOverlappingClosure is returned when a close request overlaps an
	// existing closed period.
	ErrOverlappingClosure = errors.New("another closed period overlaps selected range")

	// ErrUnmappedUser marks a provider user with no employee mapping. It is
	// per-record during sync: the batch continues and the record is counted.
	ErrUnmappedUser = errors.New("provider user has no employee mapping")

	// ErrProviderUnavailable is returned when the external provider cannot be
	// reached or keeps failing. Caller-driven retry is safe.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderNotConfigured is returned when sync runs without stored
	// provider credentials.
	ErrProviderNotConfigured = errors.New("provider is not configured")

	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrAdjustmentNotFound = errors.New("adjustment not found")
	ErrClosureNotFound    = errors.New("closure not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodClosedError reports which date was frozen.
type PeriodClosedError struct {
	Date Date
}

func (e *PeriodClosedError) Error() string {
	return fmt.Sprintf("period is closed for %s", e.Date)
}

func (e *PeriodClosedError) Unwrap() error { return ErrPeriodClosed }

// InvalidDeltaError reports an out-of-bounds adjustment delta.
type InvalidDeltaError struct {
	SecondsDelta int64
}

func (e *InvalidDeltaError) Error() string {
	return fmt.Sprintf("adjustment delta %d out of bounds (non-zero, at most ±%d seconds)",
		e.SecondsDelta, MaxAdjustmentSeconds)
}

func (e *InvalidDeltaError) Unwrap() error { return ErrInvalidDelta }

// OverlapError reports the closure that already covers part of the range.
type OverlapError struct {
	Requested DateRange
	Existing  ClosureID
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("range %s overlaps closed period %s", e.Requested, e.Existing)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingClosure }

// ProviderError wraps a provider transport failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return ErrProviderUnavailable }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidDelta) ||
		errors.Is(err, ErrInvalidRange)
}

// IsConflict returns true if the error reflects a state conflict the caller
// can resolve and retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyOpen) ||
		errors.Is(err, ErrNoOpenEntry) ||
		errors.Is(err, ErrAlreadyReviewed) ||
		errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrNotClosed) ||
		errors.Is(err, ErrOverlappingClosure)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrAdjustmentNotFound) ||
		errors.Is(err, ErrClosureNotFound)
}

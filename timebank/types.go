/*
Package timebank provides the core time-bank ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for recording work
  presence (clock-in/clock-out), reconciling entries against an external
  time-tracking provider, computing worked vs. expected balances, and
  freezing periods for payroll.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeEntry: One presence interval for one employee (open or closed)
  - PeriodSettings: Tenant configuration driving expected-hours math
  - Adjustment: A manual, approval-gated balance correction
  - Closure: An immutable snapshot of balances for a date range
  - Employee: Directory record (auxiliary data, read-mostly)

DESIGN PRINCIPLES:
  1. Seconds everywhere: all amounts are integer seconds; clients convert
  2. Derived balances: worked/expected/balance are computed, never stored
     (the only stored balances are closure snapshots, by design)
  3. Append-style corrections: reviewed adjustments are immutable; a wrong
     approval is undone by a new opposite-sign adjustment
  4. Typed failures: every error is a sentinel or wraps one (errors.go)

SEE ALSO:
  - entries.go: Entry ledger (clock-in/out, external upsert)
  - balance.go: Balance calculator
  - adjustments.go: Adjustment workflow state machine
  - closure.go: Closure manager (freeze/reopen, write locks)
  - sync.go: External provider reconciler
*/
package timebank

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type EntryID string
type AdjustmentID string
type ClosureID string

// NewID returns a fresh random identifier for ledger records.
func NewID() string { return uuid.NewString() }

// =============================================================================
// TIME ENTRY - One presence interval
// =============================================================================

// Source identifies where a time entry came from. Internal entries are
// created by clock-in/clock-out; provider entries are owned by the sync
// reconciler and replaced wholesale on re-sync.
type Source string

const (
	SourceInternal Source = "internal"
	SourceClockify Source = "clockify"
)

// TimeEntry is one contiguous presence interval for one employee.
//
// INVARIANTS:
//   - At most one open entry (EndAt == nil) per employee at any time.
//   - StartAt < EndAt when both are present.
//   - (EmployeeID, Source, ExternalRef) uniquely identifies a provider-side
//     record; upserts replace the whole row.
type TimeEntry struct {
	ID         EntryID
	EmployeeID EmployeeID
	Source     Source

	// Provider fields (empty for internal entries)
	ExternalRef string
	WorkspaceID string
	ProjectRef  string
	TaskRef     string
	Billable    bool
	SyncedAt    *time.Time

	Description string
	NoteIn      string
	NoteOut     string

	StartAt time.Time
	EndAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Running reports whether the entry is still open.
func (e TimeEntry) Running() bool { return e.EndAt == nil }

// DurationSeconds returns the entry's length in seconds. A running entry is
// measured up to now, floored at zero.
func (e TimeEntry) DurationSeconds(now time.Time) int64 {
	end := now
	if e.EndAt != nil {
		end = *e.EndAt
	}
	d := end.Sub(e.StartAt)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// =============================================================================
// PERIOD SETTINGS - Tenant-wide expected-hours configuration
// =============================================================================

const (
	DefaultTargetDailyMinutes = 480
	MaxTargetDailyMinutes     = 960
)

// PeriodSettings drives the expected-hours side of the balance. Singleton per
// tenant; Sundays never count as working days, Saturdays only when
// IncludeSaturday is set.
type PeriodSettings struct {
	TargetDailyMinutes int
	IncludeSaturday    bool
	UpdatedAt          *time.Time
}

// DefaultSettings returns the settings used before HR ever saved any.
func DefaultSettings() PeriodSettings {
	return PeriodSettings{TargetDailyMinutes: DefaultTargetDailyMinutes}
}

// =============================================================================
// ADJUSTMENT - Approval-gated manual balance correction
// =============================================================================

type AdjustmentStatus string

const (
	AdjustmentPending  AdjustmentStatus = "pending"
	AdjustmentApproved AdjustmentStatus = "approved"
	AdjustmentRejected AdjustmentStatus = "rejected"
)

// MaxAdjustmentSeconds bounds a single correction to one day's worth of
// seconds in either direction.
const MaxAdjustmentSeconds = 24 * 60 * 60

// Adjustment is a proposed correction to an employee's balance, independent
// of raw entries. It transitions exactly once: pending -> approved|rejected.
// After review it is immutable; corrections require a new opposite-sign
// adjustment so the audit trail stays append-only.
type Adjustment struct {
	ID            AdjustmentID
	EmployeeID    EmployeeID
	EffectiveDate Date
	SecondsDelta  int64
	Reason        string
	Status        AdjustmentStatus

	ReviewNote string
	Reviewer   string
	ReviewedAt *time.Time

	CreatedBy string
	CreatedAt time.Time
}

// =============================================================================
// CLOSURE - Frozen snapshot of a period
// =============================================================================

type ClosureStatus string

const (
	ClosureClosed   ClosureStatus = "closed"
	ClosureReopened ClosureStatus = "reopened"
)

// Closure freezes a date range for payroll. Snapshot values never change
// after closing, even if later sync or adjustment activity touches the range;
// reopening only lifts the write lock, the stored rows remain as the record
// of what was closed.
type Closure struct {
	ID          ClosureID
	PeriodStart Date
	PeriodEnd   Date
	Status      ClosureStatus
	Note        string

	ClosedAt   time.Time
	ClosedBy   string
	ReopenedAt *time.Time
	ReopenedBy string

	EmployeesCount int
	Totals         BalanceTotals

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClosureItem is one employee's snapshot row inside a closure.
type ClosureItem struct {
	ClosureID         ClosureID
	EmployeeID        EmployeeID
	EmployeeName      string
	WorkedSeconds     int64
	ExpectedSeconds   int64
	AdjustmentSeconds int64
	BalanceSeconds    int64
}

// =============================================================================
// EMPLOYEE - Directory record (auxiliary data)
// =============================================================================

// Employee is the slice of the HR directory the ledger needs: identity for
// entries, e-mail for provider mapping, hire/termination window for expected
// hours proration.
type Employee struct {
	ID              EmployeeID
	Name            string
	Email           string
	Status          string
	HireDate        *Date
	TerminationDate *Date
	CreatedAt       time.Time
}

// Active reports whether the employee is not terminated.
func (e Employee) Active() bool { return e.Status != "terminated" }

// =============================================================================
// BALANCE OUTPUT - Computed rows, never persisted outside closures
// =============================================================================

// EmployeeBalance is one employee's computed totals for a range.
type EmployeeBalance struct {
	EmployeeID        EmployeeID
	Name              string
	WorkedSeconds     int64
	ExpectedSeconds   int64
	AdjustmentSeconds int64
	BalanceSeconds    int64
}

// BalanceTotals sums balances across employees.
type BalanceTotals struct {
	WorkedSeconds     int64
	ExpectedSeconds   int64
	AdjustmentSeconds int64
	BalanceSeconds    int64
}

// BalanceSummary is the calculator's output for a range: per-employee rows
// plus a totals row.
type BalanceSummary struct {
	Start              Date
	End                Date
	TargetDailyMinutes int
	IncludeSaturday    bool
	Employees          []EmployeeBalance
	Totals             BalanceTotals
}

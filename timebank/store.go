/*
store.go - Persistence interfaces for the time-bank ledger

PURPOSE:
  Defines the interface between the domain logic and the database. Two
  implementations exist: store/sqlite (production) and timebank/store
  (in-memory, for tests and dev).

OWNERSHIP:
  - EntryStore rows belong to the entry ledger (entries.go); provider rows
    are replaced wholesale by the reconciler through it.
  - ClosureStore rows belong to the closure manager, which is the sole
    authority for "is this date frozen" queries.
  - The balance calculator only reads; it never writes through any of these.

SEE ALSO:
  - store/memory.go: In-memory implementation
  - ../store/sqlite/sqlite.go: SQLite implementation
*/
package timebank

import (
	"context"
	"time"
)

// =============================================================================
// ENTRY STORE
// =============================================================================

// EntryFilter narrows ListEntries. From/To are inclusive calendar bounds on
// StartAt. Limit > 0 keeps only the most recent entries.
type EntryFilter struct {
	EmployeeID *EmployeeID
	Source     *Source
	From       *Date
	To         *Date
	Limit      int
}

// EntryStore persists time entries. Results of ListEntries are ordered by
// StartAt ascending; the sequence is finite and restartable.
type EntryStore interface {
	InsertEntry(ctx context.Context, entry TimeEntry) error
	UpdateEntry(ctx context.Context, entry TimeEntry) error
	GetEntry(ctx context.Context, id EntryID) (*TimeEntry, error)

	// FindOpenEntry returns the employee's running entry, or nil.
	FindOpenEntry(ctx context.Context, employeeID EmployeeID) (*TimeEntry, error)

	// FindExternalEntry matches on (employee, source, external ref), or nil.
	FindExternalEntry(ctx context.Context, employeeID EmployeeID, source Source, externalRef string) (*TimeEntry, error)

	ListEntries(ctx context.Context, filter EntryFilter) ([]TimeEntry, error)
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SettingsStore holds the tenant singleton. GetSettings returns
// DefaultSettings() when nothing was ever saved.
type SettingsStore interface {
	GetSettings(ctx context.Context) (PeriodSettings, error)
	SaveSettings(ctx context.Context, settings PeriodSettings) error
}

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

type AdjustmentFilter struct {
	EmployeeID *EmployeeID
	Status     *AdjustmentStatus
	From       *Date
	To         *Date
	Limit      int
}

type AdjustmentStore interface {
	InsertAdjustment(ctx context.Context, adj Adjustment) error
	UpdateAdjustment(ctx context.Context, adj Adjustment) error
	GetAdjustment(ctx context.Context, id AdjustmentID) (*Adjustment, error)
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error)
}

// =============================================================================
// CLOSURE STORE
// =============================================================================

type ClosureStore interface {
	InsertClosure(ctx context.Context, c Closure) error
	UpdateClosure(ctx context.Context, c Closure) error
	GetClosure(ctx context.Context, id ClosureID) (*Closure, error)
	ListClosures(ctx context.Context, limit int) ([]Closure, error)

	// FindClosureByRange matches the exact period, any status, or nil.
	FindClosureByRange(ctx context.Context, r DateRange) (*Closure, error)

	// FindClosedOverlapping returns a closed closure sharing at least one day
	// with the range, ignoring the given id, or nil.
	FindClosedOverlapping(ctx context.Context, r DateRange, ignore ClosureID) (*Closure, error)

	// IsDateClosed reports whether the date falls inside any closed closure.
	IsDateClosed(ctx context.Context, d Date) (bool, error)

	// ReplaceClosureItems swaps the snapshot rows of a closure atomically.
	ReplaceClosureItems(ctx context.Context, id ClosureID, items []ClosureItem) error
	ListClosureItems(ctx context.Context, id ClosureID) ([]ClosureItem, error)
}

// =============================================================================
// EMPLOYEE DIRECTORY (auxiliary data)
// =============================================================================

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// ListEmployees returns employees ordered by name, then id.
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// PROVIDER CONFIG & USER LINKS
// =============================================================================

// ProviderConfig stores the external workspace credentials.
type ProviderConfig struct {
	WorkspaceID string
	APIKey      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProviderLink maps a provider-side user to an employee. Links act as a
// mapping cache: once a user matched (by stored link or e-mail), the match
// is persisted for later runs.
type ProviderLink struct {
	ProviderUserID string
	EmployeeID     EmployeeID
	UserName       string
	UserEmail      string
	LastSyncedAt   time.Time
}

type ProviderStore interface {
	// GetProviderConfig returns nil when not configured.
	GetProviderConfig(ctx context.Context) (*ProviderConfig, error)
	SaveProviderConfig(ctx context.Context, cfg ProviderConfig) error

	SaveProviderLink(ctx context.Context, link ProviderLink) error
	ListProviderLinks(ctx context.Context) ([]ProviderLink, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is what a full backend implements.
type Store interface {
	EntryStore
	SettingsStore
	AdjustmentStore
	ClosureStore
	EmployeeStore
	ProviderStore
}

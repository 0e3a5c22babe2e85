/*
closure.go - Period freeze/reopen and write locks

PURPOSE:
  The closure manager materializes a period's balances into an immutable
  snapshot for payroll, guards mutation of frozen dates, and supports
  controlled reopening. It is the sole authority other components consult
  before writing into a date.

CONCURRENCY:
  Close() must be atomic with respect to concurrent writes into the same
  range: the manager owns an RWMutex; every writer checks the lock under
  RLock (CheckWritable), while Close holds the write lock across the
  overlap check, the snapshot computation, and persistence. A racing write
  therefore lands either entirely before the snapshot or fails with
  ErrPeriodClosed after it.

RE-CLOSING:
  Reopening flips status only; snapshot rows stay as the historical record.
  Closing the exact same range again reuses the record and replaces its
  snapshot rows; any other overlap with a closed period conflicts.

SEE ALSO:
  - balance.go: produces the snapshot values
  - entries.go, adjustments.go, sync.go: callers of CheckWritable
*/
package timebank

import (
	"context"
	"sync"
	"time"
)

// ClosureManager owns Closure rows and the write lock over frozen dates.
type ClosureManager struct {
	store Store
	calc  *Calculator
	now   func() time.Time

	// Guards the close-vs-write race. Writers hold RLock while checking and
	// writing; Close holds the write lock across snapshot and persist.
	mu sync.RWMutex
}

func NewClosureManager(store Store, calc *Calculator) *ClosureManager {
	return &ClosureManager{
		store: store,
		calc:  calc,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// WRITE GUARD
// =============================================================================

// IsLocked reports whether the date falls inside a closed period.
func (m *ClosureManager) IsLocked(ctx context.Context, d Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.IsDateClosed(ctx, d)
}

// CheckWritable fails with ErrPeriodClosed when the date is frozen. The
// caller performs its write while still conceptually inside the same guard
// window; see GuardWrite.
func (m *ClosureManager) CheckWritable(ctx context.Context, d Date) error {
	locked, err := m.IsLocked(ctx, d)
	if err != nil {
		return err
	}
	if locked {
		return &PeriodClosedError{Date: d}
	}
	return nil
}

// GuardWrite runs fn under the read lock after verifying the date is not
// frozen, so a concurrent Close cannot interleave between check and write.
func (m *ClosureManager) GuardWrite(ctx context.Context, d Date, fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	locked, err := m.store.IsDateClosed(ctx, d)
	if err != nil {
		return err
	}
	if locked {
		return &PeriodClosedError{Date: d}
	}
	return fn()
}

// GuardOverride runs fn under the read lock without the frozen-date check,
// for callers with override authority. The write still cannot interleave
// with a racing Close snapshot.
func (m *ClosureManager) GuardOverride(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn()
}

// =============================================================================
// CLOSE / REOPEN
// =============================================================================

// Close freezes [start, end]: computes the balance summary, persists one
// snapshot row per employee active in range, and marks the period closed.
func (m *ClosureManager) Close(ctx context.Context, r DateRange, note, closedBy string) (*Closure, error) {
	if !r.Valid() {
		return nil, ErrInvalidRange
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The exact same range may be re-closed after a reopen; it reuses the
	// record. Anything else overlapping a closed period conflicts.
	existing, err := m.store.FindClosureByRange(ctx, r)
	if err != nil {
		return nil, err
	}
	var ignore ClosureID
	if existing != nil {
		ignore = existing.ID
	}
	overlap, err := m.store.FindClosedOverlapping(ctx, r, ignore)
	if err != nil {
		return nil, err
	}
	if overlap != nil {
		return nil, &OverlapError{Requested: r, Existing: overlap.ID}
	}

	summary, err := m.calc.Summary(ctx, r, nil)
	if err != nil {
		return nil, err
	}

	now := m.now()
	closure := Closure{
		PeriodStart:    r.Start,
		PeriodEnd:      r.End,
		Status:         ClosureClosed,
		Note:           note,
		ClosedAt:       now,
		ClosedBy:       closedBy,
		EmployeesCount: len(summary.Employees),
		Totals:         summary.Totals,
		UpdatedAt:      now,
	}

	if existing != nil {
		closure.ID = existing.ID
		closure.CreatedAt = existing.CreatedAt
		if err := m.store.UpdateClosure(ctx, closure); err != nil {
			return nil, err
		}
	} else {
		closure.ID = ClosureID(NewID())
		closure.CreatedAt = now
		if err := m.store.InsertClosure(ctx, closure); err != nil {
			return nil, err
		}
	}

	items := make([]ClosureItem, 0, len(summary.Employees))
	for _, row := range summary.Employees {
		items = append(items, ClosureItem{
			ClosureID:         closure.ID,
			EmployeeID:        row.EmployeeID,
			EmployeeName:      row.Name,
			WorkedSeconds:     row.WorkedSeconds,
			ExpectedSeconds:   row.ExpectedSeconds,
			AdjustmentSeconds: row.AdjustmentSeconds,
			BalanceSeconds:    row.BalanceSeconds,
		})
	}
	if err := m.store.ReplaceClosureItems(ctx, closure.ID, items); err != nil {
		return nil, err
	}

	return &closure, nil
}

// Reopen lifts the write lock for the closure's range. Snapshot rows are not
// recomputed; they remain the record of what was closed.
func (m *ClosureManager) Reopen(ctx context.Context, id ClosureID, note, reopenedBy string) (*Closure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	closure, err := m.store.GetClosure(ctx, id)
	if err != nil {
		return nil, err
	}
	if closure == nil {
		return nil, ErrClosureNotFound
	}
	if closure.Status != ClosureClosed {
		return nil, ErrNotClosed
	}

	now := m.now()
	closure.Status = ClosureReopened
	closure.ReopenedAt = &now
	closure.ReopenedBy = reopenedBy
	closure.UpdatedAt = now
	if note != "" {
		closure.Note = note
	}

	if err := m.store.UpdateClosure(ctx, *closure); err != nil {
		return nil, err
	}
	return closure, nil
}

// =============================================================================
// READS
// =============================================================================

func (m *ClosureManager) List(ctx context.Context, limit int) ([]Closure, error) {
	return m.store.ListClosures(ctx, limit)
}

func (m *ClosureManager) Get(ctx context.Context, id ClosureID) (*Closure, error) {
	closure, err := m.store.GetClosure(ctx, id)
	if err != nil {
		return nil, err
	}
	if closure == nil {
		return nil, ErrClosureNotFound
	}
	return closure, nil
}

// Items returns the snapshot rows of a closure.
func (m *ClosureManager) Items(ctx context.Context, id ClosureID) ([]ClosureItem, error) {
	closure, err := m.store.GetClosure(ctx, id)
	if err != nil {
		return nil, err
	}
	if closure == nil {
		return nil, ErrClosureNotFound
	}
	return m.store.ListClosureItems(ctx, id)
}

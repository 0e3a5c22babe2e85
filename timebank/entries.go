/*
entries.go - Entry ledger (clock-in/out, external upsert)

PURPOSE:
  Durable record of presence intervals. All entry writes go through here:
  employee clock events and the reconciler's provider upserts.

THE ONE-OPEN-ENTRY INVARIANT:
  At most one open entry per employee, at any time, after any sequence of
  clock/sync calls. Enforced by serializing per-employee writes on a keyed
  mutex; the sqlite store additionally carries a partial unique index on
  (employee_id) WHERE end_at IS NULL as a backstop.

CLOSED PERIODS:
  Writes targeting a frozen date fail with ErrPeriodClosed unless the caller
  has override authority. The check and the write happen inside the closure
  manager's guard window so a racing Close cannot interleave.

SEE ALSO:
  - closure.go: GuardWrite
  - sync.go: UpsertExternal caller
*/
package timebank

import (
	"context"
	"sync"
	"time"
)

// EntryLedger owns TimeEntry rows.
type EntryLedger struct {
	store    Store
	closures *ClosureManager
	now      func() time.Time

	mu    sync.Mutex
	locks map[EmployeeID]*sync.Mutex
}

func NewEntryLedger(store Store, closures *ClosureManager) *EntryLedger {
	return &EntryLedger{
		store:    store,
		closures: closures,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[EmployeeID]*sync.Mutex),
	}
}

// employeeLock returns the serialization point for one employee's clock
// events.
func (l *EntryLedger) employeeLock(id EmployeeID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	return lock
}

// =============================================================================
// CLOCK EVENTS
// =============================================================================

// ClockIn opens a new internal entry. at defaults to now; a caller-supplied
// past timestamp is accepted unless its date is frozen.
func (l *EntryLedger) ClockIn(ctx context.Context, employeeID EmployeeID, at *time.Time, note string) (*TimeEntry, error) {
	emp, err := l.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, ErrEmployeeNotFound
	}

	startAt := l.now()
	if at != nil {
		startAt = at.UTC()
	}

	lock := l.employeeLock(employeeID)
	lock.Lock()
	defer lock.Unlock()

	var entry TimeEntry
	err = l.closures.GuardWrite(ctx, DateOf(startAt), func() error {
		open, err := l.store.FindOpenEntry(ctx, employeeID)
		if err != nil {
			return err
		}
		if open != nil {
			return ErrAlreadyOpen
		}

		now := l.now()
		entry = TimeEntry{
			ID:         EntryID(NewID()),
			EmployeeID: employeeID,
			Source:     SourceInternal,
			NoteIn:     note,
			StartAt:    startAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return l.store.InsertEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ClockOut closes the employee's open entry. at defaults to now and must not
// precede the entry's start.
func (l *EntryLedger) ClockOut(ctx context.Context, employeeID EmployeeID, at *time.Time, note string) (*TimeEntry, error) {
	endAt := l.now()
	if at != nil {
		endAt = at.UTC()
	}

	lock := l.employeeLock(employeeID)
	lock.Lock()
	defer lock.Unlock()

	var entry TimeEntry
	err := l.closures.GuardWrite(ctx, DateOf(endAt), func() error {
		open, err := l.store.FindOpenEntry(ctx, employeeID)
		if err != nil {
			return err
		}
		if open == nil {
			return ErrNoOpenEntry
		}
		if endAt.Before(open.StartAt) {
			return ErrInvalidInterval
		}

		entry = *open
		entry.EndAt = &endAt
		if note != "" {
			entry.NoteOut = note
		}
		entry.UpdatedAt = l.now()
		return l.store.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// =============================================================================
// READS
// =============================================================================

// List returns entries ordered by StartAt ascending.
func (l *EntryLedger) List(ctx context.Context, filter EntryFilter) ([]TimeEntry, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, ErrInvalidRange
	}
	return l.store.ListEntries(ctx, filter)
}

// MyEntries is the clock-screen view: recent internal entries plus today's
// worked seconds and the open entry, if any.
type MyEntries struct {
	Employee     Employee
	Now          time.Time
	TodaySeconds int64
	OpenEntry    *TimeEntry
	Entries      []TimeEntry
}

// Mine returns the employee's own recent internal entries.
func (l *EntryLedger) Mine(ctx context.Context, employeeID EmployeeID, limit int) (*MyEntries, error) {
	emp, err := l.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, ErrEmployeeNotFound
	}

	now := l.now()
	today := DateOf(now)
	internal := SourceInternal

	todayEntries, err := l.store.ListEntries(ctx, EntryFilter{
		EmployeeID: &employeeID,
		Source:     &internal,
		From:       &today,
		To:         &today,
	})
	if err != nil {
		return nil, err
	}
	var todaySeconds int64
	for _, e := range todayEntries {
		todaySeconds += e.DurationSeconds(now)
	}

	open, err := l.store.FindOpenEntry(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	recent, err := l.store.ListEntries(ctx, EntryFilter{
		EmployeeID: &employeeID,
		Source:     &internal,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	return &MyEntries{
		Employee:     *emp,
		Now:          now,
		TodaySeconds: todaySeconds,
		OpenEntry:    open,
		Entries:      recent,
	}, nil
}

// =============================================================================
// EXTERNAL UPSERT
// =============================================================================

// UpsertOutcome reports what UpsertExternal did with a record.
type UpsertOutcome int

const (
	UpsertUnchanged UpsertOutcome = iota
	UpsertCreated
	UpsertUpdated
)

// UpsertExternal inserts or replaces a provider entry matched on
// (employee, source, external ref). Replace is a full field overwrite;
// provider data is authoritative for synced rows. A record identical to the
// stored row is not rewritten: re-syncing an unchanged range performs zero
// net writes.
func (l *EntryLedger) UpsertExternal(ctx context.Context, entry TimeEntry, allowClosed bool) (UpsertOutcome, error) {
	if entry.ExternalRef == "" || entry.Source == SourceInternal {
		return UpsertUnchanged, ErrInvalidInterval
	}
	if entry.EndAt != nil && entry.EndAt.Before(entry.StartAt) {
		return UpsertUnchanged, ErrInvalidInterval
	}

	lock := l.employeeLock(entry.EmployeeID)
	lock.Lock()
	defer lock.Unlock()

	upsert := func() (UpsertOutcome, error) {
		existing, err := l.store.FindExternalEntry(ctx, entry.EmployeeID, entry.Source, entry.ExternalRef)
		if err != nil {
			return UpsertUnchanged, err
		}

		now := l.now()
		entry.UpdatedAt = now
		if existing != nil {
			if sameProviderFields(*existing, entry) {
				return UpsertUnchanged, nil
			}
			entry.ID = existing.ID
			entry.CreatedAt = existing.CreatedAt
			return UpsertUpdated, l.store.UpdateEntry(ctx, entry)
		}
		entry.ID = EntryID(NewID())
		entry.CreatedAt = now
		return UpsertCreated, l.store.InsertEntry(ctx, entry)
	}

	if allowClosed {
		return upsert()
	}

	outcome := UpsertUnchanged
	err := l.closures.GuardWrite(ctx, DateOf(entry.StartAt), func() error {
		var err error
		outcome, err = upsert()
		return err
	})
	return outcome, err
}

// sameProviderFields compares the provider-authoritative fields of two rows.
// Bookkeeping stamps (SyncedAt, UpdatedAt) are excluded so an unchanged
// record syncs to a no-op.
func sameProviderFields(existing, incoming TimeEntry) bool {
	if existing.WorkspaceID != incoming.WorkspaceID ||
		existing.ProjectRef != incoming.ProjectRef ||
		existing.TaskRef != incoming.TaskRef ||
		existing.Billable != incoming.Billable ||
		existing.Description != incoming.Description {
		return false
	}
	if !existing.StartAt.Equal(incoming.StartAt) {
		return false
	}
	if (existing.EndAt == nil) != (incoming.EndAt == nil) {
		return false
	}
	if existing.EndAt != nil && !existing.EndAt.Equal(*incoming.EndAt) {
		return false
	}
	return true
}

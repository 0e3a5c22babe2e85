/*
sync.go - External provider reconciliation

PURPOSE:
  Pulls time entries from an external tracker and merges them into the
  ledger. The provider is authoritative for its own entries: re-syncing a
  range replaces what the provider changed and never duplicates.

MAPPING:
  Provider users resolve to employees through stored links first, then by
  case-insensitive e-mail. A successful match is persisted as a link so
  later runs survive e-mail changes on either side. An unmapped user is
  counted and skipped; the batch keeps going.

CLOSED DATES:
  Entries landing on a frozen date are skipped and counted, unless the
  caller syncs with override authority.

SEE ALSO:
  - entries.go: UpsertExternal
  - ../clockify: the Provider implementation
*/
package timebank

import (
	"context"
	"errors"
	"strings"
	"time"
)

// =============================================================================
// PROVIDER INTERFACE
// =============================================================================

// ProviderUser is a user account on the external tracker.
type ProviderUser struct {
	ID    string
	Name  string
	Email string
}

// ProviderEntry is one tracked interval on the external side. EndAt is nil
// while the timer is still running.
type ProviderEntry struct {
	ID          string
	UserID      string
	Description string
	ProjectRef  string
	TaskRef     string
	Billable    bool
	StartAt     time.Time
	EndAt       *time.Time
}

// Provider is the read-side of an external time tracker.
type Provider interface {
	ListUsers(ctx context.Context, workspaceID string) ([]ProviderUser, error)
	ListTimeEntries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]ProviderEntry, error)
}

// =============================================================================
// SYNC SUMMARY
// =============================================================================

// SyncSummary reports what one reconciliation run did.
type SyncSummary struct {
	RangeStart           Date      `json:"range_start"`
	RangeEnd             Date      `json:"range_end"`
	EmployeesTotal       int       `json:"employees_total"`
	UsersFound           int       `json:"users_found"`
	EmployeesMapped      int       `json:"employees_mapped"`
	UnmappedUsers        []string  `json:"unmapped_users,omitempty"`
	EntriesProcessed     int       `json:"entries_processed"`
	EntriesUpserted      int       `json:"entries_upserted"`
	EntriesSkippedClosed int       `json:"entries_skipped_closed"`
	RunningEntries       int       `json:"running_entries"`
	SyncedAt             time.Time `json:"synced_at"`
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler merges provider entries into the ledger.
type Reconciler struct {
	store   Store
	entries *EntryLedger
	now     func() time.Time
}

func NewReconciler(store Store, entries *EntryLedger) *Reconciler {
	return &Reconciler{
		store:   store,
		entries: entries,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sync pulls entries for [from, to] and upserts them. Per-record failures
// (unmapped user, frozen date) are counted, not fatal; a provider failure
// aborts the run with a ProviderError.
func (r *Reconciler) Sync(ctx context.Context, provider Provider, workspaceID string, rng DateRange, allowClosed bool) (*SyncSummary, error) {
	if !rng.Valid() {
		return nil, ErrInvalidRange
	}

	summary := &SyncSummary{
		RangeStart: rng.Start,
		RangeEnd:   rng.End,
	}

	users, err := provider.ListUsers(ctx, workspaceID)
	if err != nil {
		return nil, &ProviderError{Op: "list users", Err: err}
	}
	summary.UsersFound = len(users)

	employees, err := r.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	summary.EmployeesTotal = len(employees)

	byEmail := make(map[string]EmployeeID, len(employees))
	for _, e := range employees {
		if e.Email != "" {
			byEmail[normalizeEmail(e.Email)] = e.ID
		}
	}

	links, err := r.store.ListProviderLinks(ctx)
	if err != nil {
		return nil, err
	}
	linked := make(map[string]EmployeeID, len(links))
	for _, l := range links {
		linked[l.ProviderUserID] = l.EmployeeID
	}

	from := rng.Start.Time
	to := rng.End.EndExclusive()
	now := r.now()

	for _, user := range users {
		employeeID, ok := r.resolveUser(user, linked, byEmail)
		if !ok {
			summary.UnmappedUsers = append(summary.UnmappedUsers, user.Email)
			continue
		}
		summary.EmployeesMapped++

		if err := r.store.SaveProviderLink(ctx, ProviderLink{
			ProviderUserID: user.ID,
			EmployeeID:     employeeID,
			UserName:       user.Name,
			UserEmail:      user.Email,
			LastSyncedAt:   now,
		}); err != nil {
			return nil, err
		}

		records, err := provider.ListTimeEntries(ctx, workspaceID, user.ID, from, to)
		if err != nil {
			return nil, &ProviderError{Op: "list time entries", Err: err}
		}

		for _, rec := range records {
			summary.EntriesProcessed++

			if rec.EndAt == nil {
				// Still running on the provider side; it lands on the next run
				// once stopped.
				summary.RunningEntries++
				continue
			}

			entry := TimeEntry{
				EmployeeID:  employeeID,
				Source:      SourceClockify,
				ExternalRef: rec.ID,
				WorkspaceID: workspaceID,
				ProjectRef:  rec.ProjectRef,
				TaskRef:     rec.TaskRef,
				Billable:    rec.Billable,
				SyncedAt:    &now,
				Description: rec.Description,
				StartAt:     rec.StartAt.UTC(),
			}
			end := rec.EndAt.UTC()
			entry.EndAt = &end

			outcome, err := r.entries.UpsertExternal(ctx, entry, allowClosed)
			if err != nil {
				var closed *PeriodClosedError
				if errors.As(err, &closed) {
					summary.EntriesSkippedClosed++
					continue
				}
				return nil, err
			}
			if outcome != UpsertUnchanged {
				summary.EntriesUpserted++
			}
		}
	}

	summary.SyncedAt = now
	return summary, nil
}

// resolveUser finds the employee behind a provider user: stored link first,
// then e-mail.
func (r *Reconciler) resolveUser(user ProviderUser, linked map[string]EmployeeID, byEmail map[string]EmployeeID) (EmployeeID, bool) {
	if id, ok := linked[user.ID]; ok {
		return id, true
	}
	if id, ok := byEmail[normalizeEmail(user.Email)]; ok && user.Email != "" {
		return id, true
	}
	return "", false
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

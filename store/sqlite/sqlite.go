/*
Package sqlite provides the SQLite-backed implementation of timebank.Store.

PURPOSE:
  Production persistence for the time-bank ledger. The same schema and
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  time_entries:    All presence intervals, internal and provider-synced
  settings:        Tenant singleton (expected-hours configuration)
  adjustments:     Manual correction workflow rows
  closures:        Period freeze records with aggregate totals
  closure_items:   Per-employee snapshot rows, replaced on re-close
  employees:       Directory slice the ledger needs
  provider_config: External tracker credentials (singleton)
  provider_links:  Provider-user-to-employee mapping cache

INDEXES:
  - idx_one_open_entry: partial unique on (employee_id) WHERE end_at IS NULL;
    database-level backstop for the one-open-entry invariant
  - idx_entries_external: unique (employee_id, source, external_ref) for
    provider rows; makes re-sync upserts race-safe
  - idx_entries_employee_start: the balance calculator's hot path

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - timebank/store.go: Interface definitions
  - timebank/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/timebank/timebank"
)

// Store implements timebank.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ timebank.Store = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Time entries (internal clock events and provider-synced rows)
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		source TEXT NOT NULL,
		external_ref TEXT NOT NULL DEFAULT '',
		workspace_id TEXT NOT NULL DEFAULT '',
		project_ref TEXT NOT NULL DEFAULT '',
		task_ref TEXT NOT NULL DEFAULT '',
		billable BOOLEAN NOT NULL DEFAULT FALSE,
		synced_at TEXT,
		description TEXT NOT NULL DEFAULT '',
		note_in TEXT NOT NULL DEFAULT '',
		note_out TEXT NOT NULL DEFAULT '',
		start_at TEXT NOT NULL,
		end_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one open entry per employee, enforced at the
	-- database level as a backstop for the in-process serialization
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_entry
		ON time_entries(employee_id) WHERE end_at IS NULL;

	-- Provider rows are identified by (employee, source, external ref);
	-- re-sync replaces instead of duplicating
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_external
		ON time_entries(employee_id, source, external_ref)
		WHERE external_ref <> '';

	-- Balance calculation (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_employee_start
		ON time_entries(employee_id, start_at);
	CREATE INDEX IF NOT EXISTS idx_entries_start
		ON time_entries(start_at);

	-- Settings (tenant singleton)
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		target_daily_minutes INTEGER NOT NULL,
		include_saturday BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL
	);

	-- Adjustments (manual correction workflow)
	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		seconds_delta INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		review_note TEXT NOT NULL DEFAULT '',
		reviewer TEXT NOT NULL DEFAULT '',
		reviewed_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_employee_date
		ON adjustments(employee_id, effective_date);
	CREATE INDEX IF NOT EXISTS idx_adjustments_status
		ON adjustments(status);

	-- Closures (period freeze records)
	CREATE TABLE IF NOT EXISTS closures (
		id TEXT PRIMARY KEY,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		closed_at TEXT NOT NULL,
		closed_by TEXT NOT NULL DEFAULT '',
		reopened_at TEXT,
		reopened_by TEXT NOT NULL DEFAULT '',
		employees_count INTEGER NOT NULL DEFAULT 0,
		worked_seconds INTEGER NOT NULL DEFAULT 0,
		expected_seconds INTEGER NOT NULL DEFAULT 0,
		adjustment_seconds INTEGER NOT NULL DEFAULT 0,
		balance_seconds INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(period_start, period_end)
	);

	CREATE INDEX IF NOT EXISTS idx_closures_status_range
		ON closures(status, period_start, period_end);

	-- Closure items (per-employee snapshot rows)
	CREATE TABLE IF NOT EXISTS closure_items (
		closure_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		employee_name TEXT NOT NULL DEFAULT '',
		worked_seconds INTEGER NOT NULL DEFAULT 0,
		expected_seconds INTEGER NOT NULL DEFAULT 0,
		adjustment_seconds INTEGER NOT NULL DEFAULT 0,
		balance_seconds INTEGER NOT NULL DEFAULT 0,
		UNIQUE(closure_id, employee_id)
	);

	CREATE INDEX IF NOT EXISTS idx_closure_items_closure
		ON closure_items(closure_id);

	-- Employees (directory slice)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		hire_date TEXT,
		termination_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_email
		ON employees(email);

	-- Provider config (singleton)
	CREATE TABLE IF NOT EXISTS provider_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		workspace_id TEXT NOT NULL,
		api_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Provider user links (mapping cache)
	CREATE TABLE IF NOT EXISTS provider_links (
		provider_user_id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		user_email TEXT NOT NULL DEFAULT '',
		last_synced_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_provider_links_employee
		ON provider_links(employee_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE
// =============================================================================

const entryColumns = `id, employee_id, source, external_ref, workspace_id, project_ref,
	       task_ref, billable, synced_at, description, note_in, note_out,
	       start_at, end_at, created_at, updated_at`

// InsertEntry adds a time entry.
func (s *Store) InsertEntry(ctx context.Context, entry timebank.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO time_entries
		(id, employee_id, source, external_ref, workspace_id, project_ref,
		 task_ref, billable, synced_at, description, note_in, note_out,
		 start_at, end_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.EmployeeID,
		entry.Source,
		entry.ExternalRef,
		entry.WorkspaceID,
		entry.ProjectRef,
		entry.TaskRef,
		entry.Billable,
		nullTime(entry.SyncedAt),
		entry.Description,
		entry.NoteIn,
		entry.NoteOut,
		entry.StartAt.Format(time.RFC3339),
		nullTime(entry.EndAt),
		entry.CreatedAt.Format(time.RFC3339),
		entry.UpdatedAt.Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "idx_one_open_entry") {
			return timebank.ErrAlreadyOpen
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// UpdateEntry replaces all mutable fields of an entry.
func (s *Store) UpdateEntry(ctx context.Context, entry timebank.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE time_entries SET
			employee_id = ?, source = ?, external_ref = ?, workspace_id = ?,
			project_ref = ?, task_ref = ?, billable = ?, synced_at = ?,
			description = ?, note_in = ?, note_out = ?,
			start_at = ?, end_at = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.EmployeeID,
		entry.Source,
		entry.ExternalRef,
		entry.WorkspaceID,
		entry.ProjectRef,
		entry.TaskRef,
		entry.Billable,
		nullTime(entry.SyncedAt),
		entry.Description,
		entry.NoteIn,
		entry.NoteOut,
		entry.StartAt.Format(time.RFC3339),
		nullTime(entry.EndAt),
		entry.UpdatedAt.Format(time.RFC3339),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID, or nil.
func (s *Store) GetEntry(ctx context.Context, id timebank.EntryID) (*timebank.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + entryColumns + " FROM time_entries WHERE id = ?"
	entries, err := s.queryEntries(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// FindOpenEntry returns the employee's running entry, or nil.
func (s *Store) FindOpenEntry(ctx context.Context, employeeID timebank.EmployeeID) (*timebank.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + entryColumns + ` FROM time_entries
		WHERE employee_id = ? AND end_at IS NULL LIMIT 1`
	entries, err := s.queryEntries(ctx, query, employeeID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// FindExternalEntry matches on (employee, source, external ref), or nil.
func (s *Store) FindExternalEntry(ctx context.Context, employeeID timebank.EmployeeID, source timebank.Source, externalRef string) (*timebank.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + entryColumns + ` FROM time_entries
		WHERE employee_id = ? AND source = ? AND external_ref = ? LIMIT 1`
	entries, err := s.queryEntries(ctx, query, employeeID, source, externalRef)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// ListEntries returns entries matching the filter, ordered by start_at.
func (s *Store) ListEntries(ctx context.Context, filter timebank.EntryFilter) ([]timebank.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *filter.EmployeeID)
	}
	if filter.Source != nil {
		where = append(where, "source = ?")
		args = append(args, *filter.Source)
	}
	if filter.From != nil {
		where = append(where, "start_at >= ?")
		args = append(args, filter.From.Time.Format(time.RFC3339))
	}
	if filter.To != nil {
		where = append(where, "start_at < ?")
		args = append(args, filter.To.EndExclusive().Format(time.RFC3339))
	}

	query := "SELECT " + entryColumns + " FROM time_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	if filter.Limit > 0 {
		// Most recent N, returned in ascending order like the rest.
		query = "SELECT * FROM (" + query + " ORDER BY start_at DESC, id DESC LIMIT ?) ORDER BY start_at ASC, id ASC"
		args = append(args, filter.Limit)
	} else {
		query += " ORDER BY start_at ASC, id ASC"
	}

	return s.queryEntries(ctx, query, args...)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]timebank.TimeEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []timebank.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (timebank.TimeEntry, error) {
	var (
		entry    timebank.TimeEntry
		syncedAt sql.NullString
		startAt  string
		endAt    sql.NullString
		created  string
		updated  string
	)

	err := rows.Scan(
		&entry.ID, &entry.EmployeeID, &entry.Source, &entry.ExternalRef,
		&entry.WorkspaceID, &entry.ProjectRef, &entry.TaskRef, &entry.Billable,
		&syncedAt, &entry.Description, &entry.NoteIn, &entry.NoteOut,
		&startAt, &endAt, &created, &updated,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan entry: %w", err)
	}

	entry.StartAt, _ = time.Parse(time.RFC3339, startAt)
	entry.CreatedAt, _ = time.Parse(time.RFC3339, created)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	entry.SyncedAt = parseNullTime(syncedAt)
	entry.EndAt = parseNullTime(endAt)
	return entry, nil
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// GetSettings returns the tenant settings, or defaults when never saved.
func (s *Store) GetSettings(ctx context.Context) (timebank.PeriodSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		settings timebank.PeriodSettings
		updated  string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT target_daily_minutes, include_saturday, updated_at FROM settings WHERE id = 1",
	).Scan(&settings.TargetDailyMinutes, &settings.IncludeSaturday, &updated)

	if err == sql.ErrNoRows {
		return timebank.DefaultSettings(), nil
	}
	if err != nil {
		return timebank.PeriodSettings{}, err
	}

	t, _ := time.Parse(time.RFC3339, updated)
	settings.UpdatedAt = &t
	return settings, nil
}

// SaveSettings upserts the tenant singleton.
func (s *Store) SaveSettings(ctx context.Context, settings timebank.PeriodSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := time.Now().UTC()
	if settings.UpdatedAt != nil {
		updated = *settings.UpdatedAt
	}

	query := `
		INSERT INTO settings (id, target_daily_minutes, include_saturday, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target_daily_minutes = excluded.target_daily_minutes,
			include_saturday = excluded.include_saturday,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		settings.TargetDailyMinutes, settings.IncludeSaturday,
		updated.Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

const adjustmentColumns = `id, employee_id, effective_date, seconds_delta, reason, status,
	       review_note, reviewer, reviewed_at, created_by, created_at`

// InsertAdjustment adds an adjustment row.
func (s *Store) InsertAdjustment(ctx context.Context, adj timebank.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO adjustments
		(id, employee_id, effective_date, seconds_delta, reason, status,
		 review_note, reviewer, reviewed_at, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		adj.ID,
		adj.EmployeeID,
		adj.EffectiveDate.String(),
		adj.SecondsDelta,
		adj.Reason,
		adj.Status,
		adj.ReviewNote,
		adj.Reviewer,
		nullTime(adj.ReviewedAt),
		adj.CreatedBy,
		adj.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert adjustment: %w", err)
	}
	return nil
}

// UpdateAdjustment replaces the review fields of an adjustment.
func (s *Store) UpdateAdjustment(ctx context.Context, adj timebank.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE adjustments SET
			status = ?, review_note = ?, reviewer = ?, reviewed_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query,
		adj.Status, adj.ReviewNote, adj.Reviewer, nullTime(adj.ReviewedAt), adj.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update adjustment: %w", err)
	}
	return nil
}

// GetAdjustment retrieves an adjustment by ID, or nil.
func (s *Store) GetAdjustment(ctx context.Context, id timebank.AdjustmentID) (*timebank.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + adjustmentColumns + " FROM adjustments WHERE id = ?"
	adjustments, err := s.queryAdjustments(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(adjustments) == 0 {
		return nil, nil
	}
	return &adjustments[0], nil
}

// ListAdjustments returns adjustments matching the filter, most recent first.
func (s *Store) ListAdjustments(ctx context.Context, filter timebank.AdjustmentFilter) ([]timebank.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *filter.EmployeeID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		where = append(where, "effective_date >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		where = append(where, "effective_date <= ?")
		args = append(args, filter.To.String())
	}

	query := "SELECT " + adjustmentColumns + " FROM adjustments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryAdjustments(ctx, query, args...)
}

func (s *Store) queryAdjustments(ctx context.Context, query string, args ...any) ([]timebank.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []timebank.Adjustment
	for rows.Next() {
		var (
			adj        timebank.Adjustment
			effective  string
			reviewedAt sql.NullString
			createdAt  string
		)
		if err := rows.Scan(
			&adj.ID, &adj.EmployeeID, &effective, &adj.SecondsDelta,
			&adj.Reason, &adj.Status, &adj.ReviewNote, &adj.Reviewer,
			&reviewedAt, &adj.CreatedBy, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}

		adj.EffectiveDate, _ = timebank.ParseDate(effective)
		adj.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		adj.ReviewedAt = parseNullTime(reviewedAt)
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// =============================================================================
// CLOSURE STORE
// =============================================================================

const closureColumns = `id, period_start, period_end, status, note, closed_at, closed_by,
	       reopened_at, reopened_by, employees_count, worked_seconds,
	       expected_seconds, adjustment_seconds, balance_seconds,
	       created_at, updated_at`

// InsertClosure adds a closure record.
func (s *Store) InsertClosure(ctx context.Context, c timebank.Closure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO closures
		(id, period_start, period_end, status, note, closed_at, closed_by,
		 reopened_at, reopened_by, employees_count, worked_seconds,
		 expected_seconds, adjustment_seconds, balance_seconds,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.PeriodStart.String(),
		c.PeriodEnd.String(),
		c.Status,
		c.Note,
		c.ClosedAt.Format(time.RFC3339),
		c.ClosedBy,
		nullTime(c.ReopenedAt),
		c.ReopenedBy,
		c.EmployeesCount,
		c.Totals.WorkedSeconds,
		c.Totals.ExpectedSeconds,
		c.Totals.AdjustmentSeconds,
		c.Totals.BalanceSeconds,
		c.CreatedAt.Format(time.RFC3339),
		c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return timebank.ErrOverlappingClosure
		}
		return fmt.Errorf("failed to insert closure: %w", err)
	}
	return nil
}

// UpdateClosure replaces a closure record.
func (s *Store) UpdateClosure(ctx context.Context, c timebank.Closure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE closures SET
			status = ?, note = ?, closed_at = ?, closed_by = ?,
			reopened_at = ?, reopened_by = ?, employees_count = ?,
			worked_seconds = ?, expected_seconds = ?, adjustment_seconds = ?,
			balance_seconds = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query,
		c.Status, c.Note,
		c.ClosedAt.Format(time.RFC3339), c.ClosedBy,
		nullTime(c.ReopenedAt), c.ReopenedBy,
		c.EmployeesCount,
		c.Totals.WorkedSeconds, c.Totals.ExpectedSeconds,
		c.Totals.AdjustmentSeconds, c.Totals.BalanceSeconds,
		c.UpdatedAt.Format(time.RFC3339),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update closure: %w", err)
	}
	return nil
}

// GetClosure retrieves a closure by ID, or nil.
func (s *Store) GetClosure(ctx context.Context, id timebank.ClosureID) (*timebank.Closure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + closureColumns + " FROM closures WHERE id = ?"
	closures, err := s.queryClosures(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(closures) == 0 {
		return nil, nil
	}
	return &closures[0], nil
}

// ListClosures returns closures, most recent period first.
func (s *Store) ListClosures(ctx context.Context, limit int) ([]timebank.Closure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + closureColumns + " FROM closures ORDER BY period_start DESC, id ASC"
	if limit > 0 {
		return s.queryClosures(ctx, query+" LIMIT ?", limit)
	}
	return s.queryClosures(ctx, query)
}

// FindClosureByRange matches the exact period, any status, or nil.
func (s *Store) FindClosureByRange(ctx context.Context, r timebank.DateRange) (*timebank.Closure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + closureColumns + ` FROM closures
		WHERE period_start = ? AND period_end = ? LIMIT 1`
	closures, err := s.queryClosures(ctx, query, r.Start.String(), r.End.String())
	if err != nil {
		return nil, err
	}
	if len(closures) == 0 {
		return nil, nil
	}
	return &closures[0], nil
}

// FindClosedOverlapping returns a closed closure sharing at least one day with
// the range, ignoring the given id, or nil.
func (s *Store) FindClosedOverlapping(ctx context.Context, r timebank.DateRange, ignore timebank.ClosureID) (*timebank.Closure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + closureColumns + ` FROM closures
		WHERE status = 'closed'
		  AND id <> ?
		  AND NOT (period_end < ? OR period_start > ?)
		LIMIT 1`
	closures, err := s.queryClosures(ctx, query, ignore, r.Start.String(), r.End.String())
	if err != nil {
		return nil, err
	}
	if len(closures) == 0 {
		return nil, nil
	}
	return &closures[0], nil
}

// IsDateClosed reports whether the date falls inside any closed closure.
func (s *Store) IsDateClosed(ctx context.Context, d timebank.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM closures
		 WHERE status = 'closed' AND period_start <= ? AND period_end >= ?`,
		d.String(), d.String(),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReplaceClosureItems swaps the snapshot rows of a closure atomically.
func (s *Store) ReplaceClosureItems(ctx context.Context, id timebank.ClosureID, items []timebank.ClosureItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM closure_items WHERE closure_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear closure items: %w", err)
	}

	query := `
		INSERT INTO closure_items
		(closure_id, employee_id, employee_name, worked_seconds,
		 expected_seconds, adjustment_seconds, balance_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, query,
			id, item.EmployeeID, item.EmployeeName,
			item.WorkedSeconds, item.ExpectedSeconds,
			item.AdjustmentSeconds, item.BalanceSeconds,
		); err != nil {
			return fmt.Errorf("failed to insert closure item: %w", err)
		}
	}

	return tx.Commit()
}

// ListClosureItems returns the snapshot rows of a closure, ordered by name.
func (s *Store) ListClosureItems(ctx context.Context, id timebank.ClosureID) ([]timebank.ClosureItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT closure_id, employee_id, employee_name, worked_seconds,
		       expected_seconds, adjustment_seconds, balance_seconds
		FROM closure_items
		WHERE closure_id = ?
		ORDER BY employee_name ASC, employee_id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query closure items: %w", err)
	}
	defer rows.Close()

	var items []timebank.ClosureItem
	for rows.Next() {
		var item timebank.ClosureItem
		if err := rows.Scan(
			&item.ClosureID, &item.EmployeeID, &item.EmployeeName,
			&item.WorkedSeconds, &item.ExpectedSeconds,
			&item.AdjustmentSeconds, &item.BalanceSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan closure item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) queryClosures(ctx context.Context, query string, args ...any) ([]timebank.Closure, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query closures: %w", err)
	}
	defer rows.Close()

	var closures []timebank.Closure
	for rows.Next() {
		var (
			c          timebank.Closure
			start      string
			end        string
			closedAt   string
			reopenedAt sql.NullString
			createdAt  string
			updatedAt  string
		)
		if err := rows.Scan(
			&c.ID, &start, &end, &c.Status, &c.Note, &closedAt, &c.ClosedBy,
			&reopenedAt, &c.ReopenedBy, &c.EmployeesCount,
			&c.Totals.WorkedSeconds, &c.Totals.ExpectedSeconds,
			&c.Totals.AdjustmentSeconds, &c.Totals.BalanceSeconds,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}

		c.PeriodStart, _ = timebank.ParseDate(start)
		c.PeriodEnd, _ = timebank.ParseDate(end)
		c.ClosedAt, _ = time.Parse(time.RFC3339, closedAt)
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		c.ReopenedAt = parseNullTime(reopenedAt)
		closures = append(closures, c)
	}
	return closures, rows.Err()
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

// SaveEmployee upserts an employee.
func (s *Store) SaveEmployee(ctx context.Context, e timebank.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	query := `
		INSERT INTO employees (id, name, email, status, hire_date, termination_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			status = excluded.status,
			hire_date = excluded.hire_date,
			termination_date = excluded.termination_date
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, e.Email, e.Status,
		nullDate(e.HireDate), nullDate(e.TerminationDate),
		created.Format(time.RFC3339),
	)
	return err
}

// GetEmployee retrieves an employee by ID, or nil.
func (s *Store) GetEmployee(ctx context.Context, id timebank.EmployeeID) (*timebank.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		e           timebank.Employee
		hire        sql.NullString
		termination sql.NullString
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, status, hire_date, termination_date, created_at FROM employees WHERE id = ?",
		id,
	).Scan(&e.ID, &e.Name, &e.Email, &e.Status, &hire, &termination, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.HireDate = parseNullDate(hire)
	e.TerminationDate = parseNullDate(termination)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// ListEmployees returns all employees ordered by name, then id.
func (s *Store) ListEmployees(ctx context.Context) ([]timebank.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, status, hire_date, termination_date, created_at FROM employees ORDER BY name ASC, id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []timebank.Employee
	for rows.Next() {
		var (
			e           timebank.Employee
			hire        sql.NullString
			termination sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Status, &hire, &termination, &createdAt); err != nil {
			return nil, err
		}
		e.HireDate = parseNullDate(hire)
		e.TerminationDate = parseNullDate(termination)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// =============================================================================
// PROVIDER CONFIG & LINKS
// =============================================================================

// GetProviderConfig returns the stored credentials, or nil when not
// configured.
func (s *Store) GetProviderConfig(ctx context.Context) (*timebank.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		cfg       timebank.ProviderConfig
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT workspace_id, api_key, created_at, updated_at FROM provider_config WHERE id = 1",
	).Scan(&cfg.WorkspaceID, &cfg.APIKey, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}

// SaveProviderConfig upserts the credentials singleton.
func (s *Store) SaveProviderConfig(ctx context.Context, cfg timebank.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO provider_config (id, workspace_id, api_key, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			api_key = excluded.api_key,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, cfg.WorkspaceID, cfg.APIKey, now, now)
	return err
}

// SaveProviderLink upserts a provider-user-to-employee link.
func (s *Store) SaveProviderLink(ctx context.Context, link timebank.ProviderLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO provider_links (provider_user_id, employee_id, user_name, user_email, last_synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider_user_id) DO UPDATE SET
			employee_id = excluded.employee_id,
			user_name = excluded.user_name,
			user_email = excluded.user_email,
			last_synced_at = excluded.last_synced_at
	`
	_, err := s.db.ExecContext(ctx, query,
		link.ProviderUserID, link.EmployeeID, link.UserName, link.UserEmail,
		link.LastSyncedAt.Format(time.RFC3339),
	)
	return err
}

// ListProviderLinks returns all stored links.
func (s *Store) ListProviderLinks(ctx context.Context) ([]timebank.ProviderLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT provider_user_id, employee_id, user_name, user_email, last_synced_at FROM provider_links ORDER BY provider_user_id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []timebank.ProviderLink
	for rows.Next() {
		var (
			link     timebank.ProviderLink
			lastSync string
		)
		if err := rows.Scan(&link.ProviderUserID, &link.EmployeeID, &link.UserName, &link.UserEmail, &lastSync); err != nil {
			return nil, err
		}
		link.LastSyncedAt, _ = time.Parse(time.RFC3339, lastSync)
		links = append(links, link)
	}
	return links, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"time_entries", "adjustments", "closure_items", "closures",
		"employees", "provider_links", "provider_config", "settings",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullDate(d *timebank.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) *timebank.Date {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := timebank.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

UNITS:
  The domain works in integer seconds. DTOs carry both the raw seconds and
  a decimal hours rendering (two places, half-up) so clients do not redo
  the division.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timebank/timebank"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Status          string `json:"status"`
	HireDate        string `json:"hire_date,omitempty"`
	TerminationDate string `json:"termination_date,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Status          string `json:"status"`
	HireDate        string `json:"hire_date"`
	TerminationDate string `json:"termination_date"`
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// TimeEntryDTO represents one presence interval.
type TimeEntryDTO struct {
	ID              string `json:"id"`
	EmployeeID      string `json:"employee_id"`
	Source          string `json:"source"`
	ExternalRef     string `json:"external_ref,omitempty"`
	ProjectRef      string `json:"project_ref,omitempty"`
	TaskRef         string `json:"task_ref,omitempty"`
	Billable        bool   `json:"billable,omitempty"`
	Description     string `json:"description,omitempty"`
	NoteIn          string `json:"note_in,omitempty"`
	NoteOut         string `json:"note_out,omitempty"`
	StartAt         string `json:"start_at"`
	EndAt           string `json:"end_at,omitempty"`
	Running         bool   `json:"running"`
	DurationSeconds int64  `json:"duration_seconds"`
	SyncedAt        string `json:"synced_at,omitempty"`
}

// ClockRequest is the body of clock-in and clock-out.
type ClockRequest struct {
	EmployeeID string `json:"employee_id"`
	At         string `json:"at,omitempty"`
	Note       string `json:"note,omitempty"`
}

// MyEntriesDTO is the clock-screen view for one employee.
type MyEntriesDTO struct {
	Employee     EmployeeDTO    `json:"employee"`
	Now          string         `json:"now"`
	TodaySeconds int64          `json:"today_seconds"`
	TodayHours   string         `json:"today_hours"`
	OpenEntry    *TimeEntryDTO  `json:"open_entry,omitempty"`
	Entries      []TimeEntryDTO `json:"entries"`
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceRowDTO is one employee's computed totals for a range.
type BalanceRowDTO struct {
	EmployeeID        string `json:"employee_id"`
	Name              string `json:"name"`
	WorkedSeconds     int64  `json:"worked_seconds"`
	ExpectedSeconds   int64  `json:"expected_seconds"`
	AdjustmentSeconds int64  `json:"adjustment_seconds"`
	BalanceSeconds    int64  `json:"balance_seconds"`
	WorkedHours       string `json:"worked_hours"`
	ExpectedHours     string `json:"expected_hours"`
	BalanceHours      string `json:"balance_hours"`
}

// BalanceTotalsDTO sums the rows.
type BalanceTotalsDTO struct {
	WorkedSeconds     int64  `json:"worked_seconds"`
	ExpectedSeconds   int64  `json:"expected_seconds"`
	AdjustmentSeconds int64  `json:"adjustment_seconds"`
	BalanceSeconds    int64  `json:"balance_seconds"`
	BalanceHours      string `json:"balance_hours"`
}

// BalanceSummaryDTO is the balance report for a range.
type BalanceSummaryDTO struct {
	Start              string           `json:"start"`
	End                string           `json:"end"`
	TargetDailyMinutes int              `json:"target_daily_minutes"`
	IncludeSaturday    bool             `json:"include_saturday"`
	Employees          []BalanceRowDTO  `json:"employees"`
	Totals             BalanceTotalsDTO `json:"totals"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsDTO is the tenant expected-hours configuration.
type SettingsDTO struct {
	TargetDailyMinutes int    `json:"target_daily_minutes"`
	IncludeSaturday    bool   `json:"include_saturday"`
	UpdatedAt          string `json:"updated_at,omitempty"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustmentDTO represents one manual correction.
type AdjustmentDTO struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employee_id"`
	EffectiveDate string `json:"effective_date"`
	SecondsDelta  int64  `json:"seconds_delta"`
	HoursDelta    string `json:"hours_delta"`
	Reason        string `json:"reason,omitempty"`
	Status        string `json:"status"`
	ReviewNote    string `json:"review_note,omitempty"`
	Reviewer      string `json:"reviewer,omitempty"`
	ReviewedAt    string `json:"reviewed_at,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// CreateAdjustmentRequest proposes a correction. Exactly one of
// seconds_delta / minutes_delta must be set.
type CreateAdjustmentRequest struct {
	EmployeeID    string `json:"employee_id"`
	EffectiveDate string `json:"effective_date"`
	SecondsDelta  *int64 `json:"seconds_delta,omitempty"`
	MinutesDelta  *int64 `json:"minutes_delta,omitempty"`
	Reason        string `json:"reason"`
	CreatedBy     string `json:"created_by"`
}

// DecideAdjustmentRequest reviews a pending adjustment.
type DecideAdjustmentRequest struct {
	Action         string `json:"action"`
	ReviewNote     string `json:"review_note,omitempty"`
	Reviewer       string `json:"reviewer,omitempty"`
	OverrideClosed bool   `json:"override_closed,omitempty"`
}

// =============================================================================
// CLOSURES
// =============================================================================

// ClosureDTO represents a period freeze record.
type ClosureDTO struct {
	ID             string           `json:"id"`
	PeriodStart    string           `json:"period_start"`
	PeriodEnd      string           `json:"period_end"`
	Status         string           `json:"status"`
	Note           string           `json:"note,omitempty"`
	ClosedAt       string           `json:"closed_at"`
	ClosedBy       string           `json:"closed_by,omitempty"`
	ReopenedAt     string           `json:"reopened_at,omitempty"`
	ReopenedBy     string           `json:"reopened_by,omitempty"`
	EmployeesCount int              `json:"employees_count"`
	Totals         BalanceTotalsDTO `json:"totals"`
}

// ClosureItemDTO is one employee's snapshot row.
type ClosureItemDTO struct {
	EmployeeID        string `json:"employee_id"`
	EmployeeName      string `json:"employee_name"`
	WorkedSeconds     int64  `json:"worked_seconds"`
	ExpectedSeconds   int64  `json:"expected_seconds"`
	AdjustmentSeconds int64  `json:"adjustment_seconds"`
	BalanceSeconds    int64  `json:"balance_seconds"`
	BalanceHours      string `json:"balance_hours"`
}

// ClosureDetailDTO is a closure with its snapshot rows.
type ClosureDetailDTO struct {
	ClosureDTO
	Items []ClosureItemDTO `json:"items"`
}

// CreateClosureRequest freezes a range.
type CreateClosureRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Note      string `json:"note,omitempty"`
	ClosedBy  string `json:"closed_by,omitempty"`
}

// ReopenClosureRequest lifts a freeze.
type ReopenClosureRequest struct {
	Note       string `json:"note,omitempty"`
	ReopenedBy string `json:"reopened_by,omitempty"`
}

// =============================================================================
// CLOCKIFY INTEGRATION
// =============================================================================

// ClockifyConfigRequest stores workspace credentials.
type ClockifyConfigRequest struct {
	APIKey      string `json:"api_key"`
	WorkspaceID string `json:"workspace_id"`
}

// ClockifyConfigDTO echoes the stored config with the key masked.
type ClockifyConfigDTO struct {
	Configured   bool   `json:"configured"`
	WorkspaceID  string `json:"workspace_id,omitempty"`
	APIKeyMasked string `json:"api_key_masked,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// ClockifyStatusDTO summarizes integration health: credential state, how
// fresh the synced data is, and which active employees still lack a
// provider mapping.
type ClockifyStatusDTO struct {
	Configured        bool     `json:"configured"`
	WorkspaceID       string   `json:"workspace_id,omitempty"`
	APIKeyMasked      string   `json:"api_key_masked,omitempty"`
	LastSyncAt        string   `json:"last_sync_at,omitempty"`
	LastEntryAt       string   `json:"last_entry_at,omitempty"`
	EntriesTotal      int      `json:"entries_total"`
	EntriesLast7Days  int      `json:"entries_last_7_days"`
	RunningEntries    int      `json:"running_entries"`
	ActiveEmployees   int      `json:"active_employees"`
	MappedEmployees   int      `json:"mapped_employees"`
	UnmappedEmployees int      `json:"unmapped_employees"`
	UnmappedPreview   []string `json:"unmapped_preview,omitempty"`
}

// SyncRequest triggers a reconciliation run.
type SyncRequest struct {
	StartDate         string `json:"start_date,omitempty"`
	EndDate           string `json:"end_date,omitempty"`
	AllowClosedPeriod bool   `json:"allow_closed_period,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

var secondsPerHour = decimal.NewFromInt(3600)

// hoursString renders seconds as decimal hours with two places.
func hoursString(seconds int64) string {
	return decimal.NewFromInt(seconds).Div(secondsPerHour).Round(2).String()
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalTimeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return timeString(*t)
}

func optionalDateString(d *timebank.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func toEmployeeDTO(e timebank.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:              string(e.ID),
		Name:            e.Name,
		Email:           e.Email,
		Status:          e.Status,
		HireDate:        optionalDateString(e.HireDate),
		TerminationDate: optionalDateString(e.TerminationDate),
		CreatedAt:       timeString(e.CreatedAt),
	}
}

func toTimeEntryDTO(e timebank.TimeEntry, now time.Time) TimeEntryDTO {
	return TimeEntryDTO{
		ID:              string(e.ID),
		EmployeeID:      string(e.EmployeeID),
		Source:          string(e.Source),
		ExternalRef:     e.ExternalRef,
		ProjectRef:      e.ProjectRef,
		TaskRef:         e.TaskRef,
		Billable:        e.Billable,
		Description:     e.Description,
		NoteIn:          e.NoteIn,
		NoteOut:         e.NoteOut,
		StartAt:         timeString(e.StartAt),
		EndAt:           optionalTimeString(e.EndAt),
		Running:         e.Running(),
		DurationSeconds: e.DurationSeconds(now),
		SyncedAt:        optionalTimeString(e.SyncedAt),
	}
}

func toTimeEntryDTOs(entries []timebank.TimeEntry, now time.Time) []TimeEntryDTO {
	dtos := make([]TimeEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toTimeEntryDTO(e, now)
	}
	return dtos
}

func toBalanceRowDTO(row timebank.EmployeeBalance) BalanceRowDTO {
	return BalanceRowDTO{
		EmployeeID:        string(row.EmployeeID),
		Name:              row.Name,
		WorkedSeconds:     row.WorkedSeconds,
		ExpectedSeconds:   row.ExpectedSeconds,
		AdjustmentSeconds: row.AdjustmentSeconds,
		BalanceSeconds:    row.BalanceSeconds,
		WorkedHours:       hoursString(row.WorkedSeconds),
		ExpectedHours:     hoursString(row.ExpectedSeconds),
		BalanceHours:      hoursString(row.BalanceSeconds),
	}
}

func toBalanceTotalsDTO(t timebank.BalanceTotals) BalanceTotalsDTO {
	return BalanceTotalsDTO{
		WorkedSeconds:     t.WorkedSeconds,
		ExpectedSeconds:   t.ExpectedSeconds,
		AdjustmentSeconds: t.AdjustmentSeconds,
		BalanceSeconds:    t.BalanceSeconds,
		BalanceHours:      hoursString(t.BalanceSeconds),
	}
}

func toBalanceSummaryDTO(s timebank.BalanceSummary) BalanceSummaryDTO {
	rows := make([]BalanceRowDTO, len(s.Employees))
	for i, row := range s.Employees {
		rows[i] = toBalanceRowDTO(row)
	}
	return BalanceSummaryDTO{
		Start:              s.Start.String(),
		End:                s.End.String(),
		TargetDailyMinutes: s.TargetDailyMinutes,
		IncludeSaturday:    s.IncludeSaturday,
		Employees:          rows,
		Totals:             toBalanceTotalsDTO(s.Totals),
	}
}

func toAdjustmentDTO(a timebank.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:            string(a.ID),
		EmployeeID:    string(a.EmployeeID),
		EffectiveDate: a.EffectiveDate.String(),
		SecondsDelta:  a.SecondsDelta,
		HoursDelta:    hoursString(a.SecondsDelta),
		Reason:        a.Reason,
		Status:        string(a.Status),
		ReviewNote:    a.ReviewNote,
		Reviewer:      a.Reviewer,
		ReviewedAt:    optionalTimeString(a.ReviewedAt),
		CreatedBy:     a.CreatedBy,
		CreatedAt:     timeString(a.CreatedAt),
	}
}

func toClosureDTO(c timebank.Closure) ClosureDTO {
	return ClosureDTO{
		ID:             string(c.ID),
		PeriodStart:    c.PeriodStart.String(),
		PeriodEnd:      c.PeriodEnd.String(),
		Status:         string(c.Status),
		Note:           c.Note,
		ClosedAt:       timeString(c.ClosedAt),
		ClosedBy:       c.ClosedBy,
		ReopenedAt:     optionalTimeString(c.ReopenedAt),
		ReopenedBy:     c.ReopenedBy,
		EmployeesCount: c.EmployeesCount,
		Totals:         toBalanceTotalsDTO(c.Totals),
	}
}

func toClosureItemDTO(item timebank.ClosureItem) ClosureItemDTO {
	return ClosureItemDTO{
		EmployeeID:        string(item.EmployeeID),
		EmployeeName:      item.EmployeeName,
		WorkedSeconds:     item.WorkedSeconds,
		ExpectedSeconds:   item.ExpectedSeconds,
		AdjustmentSeconds: item.AdjustmentSeconds,
		BalanceSeconds:    item.BalanceSeconds,
		BalanceHours:      hoursString(item.BalanceSeconds),
	}
}

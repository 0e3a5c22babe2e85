/*
handlers.go - HTTP request handlers

PURPOSE:
  Implements the HTTP layer. Handlers decode requests, call the domain
  components, map domain errors to status codes and encode DTOs. No
  business rules live here.

ERROR MAPPING:
  timebank.IsValidation        -> 400
  timebank.IsNotFound          -> 404
  timebank.IsConflict          -> 409
  ErrProviderNotConfigured     -> 400
  ErrProviderUnavailable       -> 502
  everything else              -> 500

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route registration
  - ../timebank: the domain components
*/
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/timebank/clockify"
	"github.com/warp/timebank/timebank"
)

// Handler holds the domain components and implements the HTTP endpoints.
type Handler struct {
	Store       timebank.Store
	Calc        *timebank.Calculator
	Closures    *timebank.ClosureManager
	Entries     *timebank.EntryLedger
	Adjustments *timebank.AdjustmentWorkflow
	Reconciler  *timebank.Reconciler

	// NewProvider builds the external tracker client for an API key. Tests
	// swap it for a fake.
	NewProvider func(apiKey string) timebank.Provider
}

// NewHandler wires the domain components on top of one store.
func NewHandler(store timebank.Store) *Handler {
	calc := timebank.NewCalculator(store)
	closures := timebank.NewClosureManager(store, calc)
	entries := timebank.NewEntryLedger(store, closures)
	return &Handler{
		Store:       store,
		Calc:        calc,
		Closures:    closures,
		Entries:     entries,
		Adjustments: timebank.NewAdjustmentWorkflow(store, closures),
		Reconciler:  timebank.NewReconciler(store, entries),
		NewProvider: func(apiKey string) timebank.Provider {
			return clockify.New(apiKey)
		},
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("Error encoding response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case timebank.IsValidation(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	case timebank.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case timebank.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, timebank.ErrProviderNotConfigured):
		writeError(w, http.StatusBadRequest, "integration not configured", err)
	case errors.Is(err, timebank.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "provider unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// parseOptionalTime accepts an RFC3339 instant or empty.
func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	u := t.UTC()
	return &u, nil
}

// rangeFromQuery reads start_date/end_date, defaulting to the current month.
func rangeFromQuery(r *http.Request, now time.Time) (timebank.DateRange, error) {
	today := timebank.DateOf(now)
	start := timebank.NewDate(today.Time.Year(), today.Time.Month(), 1)
	end := start.AddDays(32)
	end = timebank.NewDate(end.Time.Year(), end.Time.Month(), 1).AddDays(-1)

	if raw := r.URL.Query().Get("start_date"); raw != "" {
		d, err := timebank.ParseDate(raw)
		if err != nil {
			return timebank.DateRange{}, fmt.Errorf("invalid start_date: %w", err)
		}
		start = d
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		d, err := timebank.ParseDate(raw)
		if err != nil {
			return timebank.DateRange{}, fmt.Errorf("invalid end_date: %w", err)
		}
		end = d
	}

	rng := timebank.DateRange{Start: start, End: end}
	if !rng.Valid() {
		return timebank.DateRange{}, timebank.ErrInvalidRange
	}
	return rng, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := timebank.EmployeeID(chi.URLParam(r, "id"))
	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	emp := timebank.Employee{
		ID:        timebank.EmployeeID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		Status:    req.Status,
		CreatedAt: time.Now().UTC(),
	}
	if emp.ID == "" {
		emp.ID = timebank.EmployeeID(timebank.NewID())
	}
	if emp.Status == "" {
		emp.Status = "active"
	}
	if req.HireDate != "" {
		d, err := timebank.ParseDate(req.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hire_date", err)
			return
		}
		emp.HireDate = &d
	}
	if req.TerminationDate != "" {
		d, err := timebank.ParseDate(req.TerminationDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid termination_date", err)
			return
		}
		emp.TerminationDate = &d
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	at, err := parseOptionalTime(req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid at timestamp", err)
		return
	}

	entry, err := h.Entries.ClockIn(r.Context(), timebank.EmployeeID(req.EmployeeID), at, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryDTO(*entry, time.Now().UTC()))
}

func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	at, err := parseOptionalTime(req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid at timestamp", err)
		return
	}

	entry, err := h.Entries.ClockOut(r.Context(), timebank.EmployeeID(req.EmployeeID), at, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(*entry, time.Now().UTC()))
}

func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := timebank.EntryFilter{}

	if raw := q.Get("employee_id"); raw != "" {
		id := timebank.EmployeeID(raw)
		filter.EmployeeID = &id
	}
	if raw := q.Get("source"); raw != "" {
		src := timebank.Source(raw)
		filter.Source = &src
	}
	if raw := q.Get("start_date"); raw != "" {
		d, err := timebank.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date", err)
			return
		}
		filter.From = &d
	}
	if raw := q.Get("end_date"); raw != "" {
		d, err := timebank.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date", err)
			return
		}
		filter.To = &d
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	entries, err := h.Entries.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTOs(entries, time.Now().UTC()))
}

func (h *Handler) MyTimeEntries(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	mine, err := h.Entries.Mine(r.Context(), timebank.EmployeeID(employeeID), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := MyEntriesDTO{
		Employee:     toEmployeeDTO(mine.Employee),
		Now:          timeString(mine.Now),
		TodaySeconds: mine.TodaySeconds,
		TodayHours:   hoursString(mine.TodaySeconds),
		Entries:      toTimeEntryDTOs(mine.Entries, mine.Now),
	}
	if mine.OpenEntry != nil {
		open := toTimeEntryDTO(*mine.OpenEntry, mine.Now)
		dto.OpenEntry = &open
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// BALANCE
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	rng, err := rangeFromQuery(r, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid range", err)
		return
	}

	var employeeID *timebank.EmployeeID
	if raw := r.URL.Query().Get("employee_id"); raw != "" {
		id := timebank.EmployeeID(raw)
		employeeID = &id
	}

	summary, err := h.Calc.Summary(r.Context(), rng, employeeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceSummaryDTO(summary))
}

// =============================================================================
// SETTINGS
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{
		TargetDailyMinutes: settings.TargetDailyMinutes,
		IncludeSaturday:    settings.IncludeSaturday,
		UpdatedAt:          optionalTimeString(settings.UpdatedAt),
	})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TargetDailyMinutes < 1 || req.TargetDailyMinutes > timebank.MaxTargetDailyMinutes {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("target_daily_minutes must be between 1 and %d", timebank.MaxTargetDailyMinutes), nil)
		return
	}

	now := time.Now().UTC()
	settings := timebank.PeriodSettings{
		TargetDailyMinutes: req.TargetDailyMinutes,
		IncludeSaturday:    req.IncludeSaturday,
		UpdatedAt:          &now,
	}
	if err := h.Store.SaveSettings(r.Context(), settings); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{
		TargetDailyMinutes: settings.TargetDailyMinutes,
		IncludeSaturday:    settings.IncludeSaturday,
		UpdatedAt:          timeString(now),
	})
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	effectiveDate, err := timebank.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid effective_date", err)
		return
	}

	var delta int64
	switch {
	case req.SecondsDelta != nil && req.MinutesDelta != nil:
		writeError(w, http.StatusBadRequest, "set either seconds_delta or minutes_delta, not both", nil)
		return
	case req.SecondsDelta != nil:
		delta = *req.SecondsDelta
	case req.MinutesDelta != nil:
		delta = *req.MinutesDelta * 60
	default:
		writeError(w, http.StatusBadRequest, "seconds_delta or minutes_delta is required", nil)
		return
	}

	adj, err := h.Adjustments.Propose(r.Context(),
		timebank.EmployeeID(req.EmployeeID), effectiveDate, delta, req.Reason, req.CreatedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(*adj))
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := timebank.AdjustmentFilter{}

	if raw := q.Get("employee_id"); raw != "" {
		id := timebank.EmployeeID(raw)
		filter.EmployeeID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := timebank.AdjustmentStatus(raw)
		filter.Status = &status
	}
	if raw := q.Get("start_date"); raw != "" {
		d, err := timebank.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date", err)
			return
		}
		filter.From = &d
	}
	if raw := q.Get("end_date"); raw != "" {
		d, err := timebank.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date", err)
			return
		}
		filter.To = &d
	}

	adjustments, err := h.Adjustments.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AdjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) DecideAdjustment(w http.ResponseWriter, r *http.Request) {
	var req DecideAdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	action := timebank.DecisionAction(req.Action)
	if action != timebank.DecisionApprove && action != timebank.DecisionReject {
		writeError(w, http.StatusBadRequest, "action must be approve or reject", nil)
		return
	}
	h.decideAdjustment(w, r, action, req)
}

// ApproveAdjustment is the action-in-path form of DecideAdjustment. The body
// is optional.
func (h *Handler) ApproveAdjustment(w http.ResponseWriter, r *http.Request) {
	var req DecideAdjustmentRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	h.decideAdjustment(w, r, timebank.DecisionApprove, req)
}

func (h *Handler) RejectAdjustment(w http.ResponseWriter, r *http.Request) {
	var req DecideAdjustmentRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	h.decideAdjustment(w, r, timebank.DecisionReject, req)
}

func (h *Handler) decideAdjustment(w http.ResponseWriter, r *http.Request, action timebank.DecisionAction, req DecideAdjustmentRequest) {
	id := timebank.AdjustmentID(chi.URLParam(r, "id"))

	adj, err := h.Adjustments.Decide(r.Context(), id, action, req.ReviewNote, req.Reviewer, req.OverrideClosed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(*adj))
}

// =============================================================================
// CLOSURES
// =============================================================================

func (h *Handler) CreateClosure(w http.ResponseWriter, r *http.Request) {
	var req CreateClosureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := timebank.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date", err)
		return
	}
	end, err := timebank.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date", err)
		return
	}

	closure, err := h.Closures.Close(r.Context(), timebank.DateRange{Start: start, End: end}, req.Note, req.ClosedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClosureDTO(*closure))
}

func (h *Handler) ListClosures(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	closures, err := h.Closures.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ClosureDTO, len(closures))
	for i, c := range closures {
		dtos[i] = toClosureDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetClosure(w http.ResponseWriter, r *http.Request) {
	id := timebank.ClosureID(chi.URLParam(r, "id"))

	closure, err := h.Closures.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items, err := h.Closures.Items(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := ClosureDetailDTO{
		ClosureDTO: toClosureDTO(*closure),
		Items:      make([]ClosureItemDTO, len(items)),
	}
	for i, item := range items {
		dto.Items[i] = toClosureItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListClosureEmployees returns just the per-employee snapshot rows.
func (h *Handler) ListClosureEmployees(w http.ResponseWriter, r *http.Request) {
	id := timebank.ClosureID(chi.URLParam(r, "id"))

	items, err := h.Closures.Items(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ClosureItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toClosureItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ReopenClosure(w http.ResponseWriter, r *http.Request) {
	id := timebank.ClosureID(chi.URLParam(r, "id"))

	var req ReopenClosureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	closure, err := h.Closures.Reopen(r.Context(), id, req.Note, req.ReopenedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClosureDTO(*closure))
}

// ExportClosureCSV streams the snapshot rows as a payroll-friendly CSV.
func (h *Handler) ExportClosureCSV(w http.ResponseWriter, r *http.Request) {
	id := timebank.ClosureID(chi.URLParam(r, "id"))

	closure, err := h.Closures.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items, err := h.Closures.Items(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	filename := fmt.Sprintf("closure_%s_%s.csv", closure.PeriodStart, closure.PeriodEnd)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"employee_id", "employee_name",
		"worked_seconds", "expected_seconds", "adjustment_seconds",
		"balance_seconds", "balance_hours",
	})
	for _, item := range items {
		_ = cw.Write([]string{
			string(item.EmployeeID),
			item.EmployeeName,
			strconv.FormatInt(item.WorkedSeconds, 10),
			strconv.FormatInt(item.ExpectedSeconds, 10),
			strconv.FormatInt(item.AdjustmentSeconds, 10),
			strconv.FormatInt(item.BalanceSeconds, 10),
			hoursString(item.BalanceSeconds),
		})
	}
	cw.Flush()
}

// =============================================================================
// CLOCKIFY INTEGRATION
// =============================================================================

func (h *Handler) GetClockifyConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.GetProviderConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusOK, ClockifyConfigDTO{Configured: false})
		return
	}
	writeJSON(w, http.StatusOK, ClockifyConfigDTO{
		Configured:   true,
		WorkspaceID:  cfg.WorkspaceID,
		APIKeyMasked: clockify.MaskKey(cfg.APIKey),
		CreatedAt:    timeString(cfg.CreatedAt),
		UpdatedAt:    timeString(cfg.UpdatedAt),
	})
}

// SaveClockifyConfig validates the credentials with a live ListUsers call
// before storing them.
func (h *Handler) SaveClockifyConfig(w http.ResponseWriter, r *http.Request) {
	var req ClockifyConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.APIKey == "" || req.WorkspaceID == "" {
		writeError(w, http.StatusBadRequest, "api_key and workspace_id are required", nil)
		return
	}

	provider := h.NewProvider(req.APIKey)
	if _, err := provider.ListUsers(r.Context(), req.WorkspaceID); err != nil {
		writeError(w, http.StatusBadGateway, "credential check failed", err)
		return
	}

	now := time.Now().UTC()
	cfg := timebank.ProviderConfig{
		WorkspaceID: req.WorkspaceID,
		APIKey:      req.APIKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, err := h.Store.GetProviderConfig(r.Context()); err == nil && existing != nil {
		cfg.CreatedAt = existing.CreatedAt
	}
	if err := h.Store.SaveProviderConfig(r.Context(), cfg); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ClockifyConfigDTO{
		Configured:   true,
		WorkspaceID:  cfg.WorkspaceID,
		APIKeyMasked: clockify.MaskKey(cfg.APIKey),
		CreatedAt:    timeString(cfg.CreatedAt),
		UpdatedAt:    timeString(cfg.UpdatedAt),
	})
}

func (h *Handler) GetClockifyStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cfg, err := h.Store.GetProviderConfig(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := ClockifyStatusDTO{}
	if cfg != nil {
		status.Configured = true
		status.WorkspaceID = cfg.WorkspaceID
		status.APIKeyMasked = clockify.MaskKey(cfg.APIKey)
	}

	links, err := h.Store.ListProviderLinks(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status.MappedEmployees = len(links)
	mapped := make(map[timebank.EmployeeID]bool, len(links))
	var lastSync time.Time
	for _, l := range links {
		mapped[l.EmployeeID] = true
		if l.LastSyncedAt.After(lastSync) {
			lastSync = l.LastSyncedAt
		}
	}
	if !lastSync.IsZero() {
		status.LastSyncAt = timeString(lastSync)
	}

	employees, err := h.Store.ListEmployees(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	const previewSize = 5
	for _, e := range employees {
		if !e.Active() {
			continue
		}
		status.ActiveEmployees++
		if !mapped[e.ID] {
			status.UnmappedEmployees++
			if len(status.UnmappedPreview) < previewSize {
				status.UnmappedPreview = append(status.UnmappedPreview, e.Name)
			}
		}
	}

	source := timebank.SourceClockify
	entries, err := h.Store.ListEntries(ctx, timebank.EntryFilter{Source: &source})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status.EntriesTotal = len(entries)

	weekAgo := timebank.DateOf(time.Now().UTC()).AddDays(-7)
	var lastEntry time.Time
	for _, e := range entries {
		if timebank.DateOf(e.StartAt).AfterOrEqual(weekAgo) {
			status.EntriesLast7Days++
		}
		if e.Running() {
			status.RunningEntries++
		}
		if e.StartAt.After(lastEntry) {
			lastEntry = e.StartAt
		}
	}
	if !lastEntry.IsZero() {
		status.LastEntryAt = timeString(lastEntry)
	}

	writeJSON(w, http.StatusOK, status)
}

// SyncClockify runs one reconciliation pass. The range defaults to the last
// seven days through today.
func (h *Handler) SyncClockify(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	ctx := r.Context()
	cfg, err := h.Store.GetProviderConfig(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if cfg == nil {
		writeDomainError(w, timebank.ErrProviderNotConfigured)
		return
	}

	today := timebank.DateOf(time.Now().UTC())
	rng := timebank.DateRange{Start: today.AddDays(-7), End: today}
	if req.StartDate != "" {
		d, err := timebank.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date", err)
			return
		}
		rng.Start = d
	}
	if req.EndDate != "" {
		d, err := timebank.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date", err)
			return
		}
		rng.End = d
	}

	provider := h.NewProvider(cfg.APIKey)
	summary, err := h.Reconciler.Sync(ctx, provider, cfg.WorkspaceID, rng, req.AllowClosedPeriod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

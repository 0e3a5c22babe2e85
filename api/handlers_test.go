package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timebank/api"
	"github.com/warp/timebank/timebank"
	"github.com/warp/timebank/timebank/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	server  *httptest.Server
	handler *api.Handler
	mem     *store.Memory
}

func newFixture(t *testing.T) *fixture {
	mem := store.NewMemory()
	handler := api.NewHandler(mem)
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)

	require.NoError(t, mem.SaveEmployee(context.Background(), timebank.Employee{
		ID:        "emp-1",
		Name:      "Ada Verne",
		Email:     "ada@example.com",
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}))
	return &fixture{server: server, handler: handler, mem: mem}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

// =============================================================================
// CLOCK FLOW
// =============================================================================

func TestAPI_ClockFlow(t *testing.T) {
	// GIVEN: An active employee
	// WHEN: clock-in, clock-in again, clock-out, clock-out again
	// THEN: 201, 409, 200, 409

	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/time-entries/clock-in", map[string]string{"employee_id": "emp-1"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var entry struct {
		ID      string `json:"id"`
		Running bool   `json:"running"`
	}
	decode(t, resp, &entry)
	assert.True(t, entry.Running)
	assert.NotEmpty(t, entry.ID)

	resp = f.do(t, http.MethodPost, "/api/time-entries/clock-in", map[string]string{"employee_id": "emp-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/time-entries/clock-out", map[string]string{"employee_id": "emp-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/time-entries/clock-out", map[string]string{"employee_id": "emp-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_ClockIn_UnknownEmployee(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/time-entries/clock-in", map[string]string{"employee_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ClockIn_MissingEmployeeID(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/time-entries/clock-in", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_MyEntries(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/time-entries/clock-in", map[string]string{"employee_id": "emp-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/time-entries/me?employee_id=emp-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var mine struct {
		Employee  struct{ ID string }    `json:"employee"`
		OpenEntry *struct{ Running bool } `json:"open_entry"`
	}
	decode(t, resp, &mine)
	assert.Equal(t, "emp-1", mine.Employee.ID)
	require.NotNil(t, mine.OpenEntry)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestAPI_Settings_DefaultsAndValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var settings struct {
		TargetDailyMinutes int  `json:"target_daily_minutes"`
		IncludeSaturday    bool `json:"include_saturday"`
	}
	decode(t, resp, &settings)
	assert.Equal(t, timebank.DefaultTargetDailyMinutes, settings.TargetDailyMinutes)

	resp = f.do(t, http.MethodPut, "/api/settings", map[string]any{"target_daily_minutes": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/settings",
		map[string]any{"target_daily_minutes": timebank.MaxTargetDailyMinutes + 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/settings",
		map[string]any{"target_daily_minutes": 420, "include_saturday": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &settings)
	assert.Equal(t, 420, settings.TargetDailyMinutes)
	assert.True(t, settings.IncludeSaturday)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestAPI_Adjustments_ProposeAndDecide(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/adjustments", map[string]any{
		"employee_id":    "emp-1",
		"effective_date": "2025-03-10",
		"minutes_delta":  60,
		"reason":         "forgot badge",
		"created_by":     "hr-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var adj struct {
		ID           string `json:"id"`
		SecondsDelta int64  `json:"seconds_delta"`
		Status       string `json:"status"`
	}
	decode(t, resp, &adj)
	assert.Equal(t, int64(3600), adj.SecondsDelta)
	assert.Equal(t, "pending", adj.Status)

	resp = f.do(t, http.MethodPost, "/api/adjustments/"+adj.ID+"/decide",
		map[string]any{"action": "approve", "reviewer": "hr-2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &adj)
	assert.Equal(t, "approved", adj.Status)

	// Already reviewed.
	resp = f.do(t, http.MethodPost, "/api/adjustments/"+adj.ID+"/decide",
		map[string]any{"action": "reject"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Adjustments_DeltaRequired(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/adjustments", map[string]any{
		"employee_id":    "emp-1",
		"effective_date": "2025-03-10",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// CLOSURES
// =============================================================================

func TestAPI_Closures_CreateOverlapAndExport(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/closures", map[string]string{
		"start_date": "2025-03-10",
		"end_date":   "2025-03-16",
		"closed_by":  "hr-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var closure struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp, &closure)
	assert.Equal(t, "closed", closure.Status)

	// Overlapping range conflicts.
	resp = f.do(t, http.MethodPost, "/api/closures", map[string]string{
		"start_date": "2025-03-14",
		"end_date":   "2025-03-20",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Clock-in on a frozen date is blocked through the API too.
	resp = f.do(t, http.MethodPost, "/api/time-entries/clock-in",
		map[string]string{"employee_id": "emp-1", "at": "2025-03-12T09:00:00Z"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/closures/"+closure.ID+"/export.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "employee_id,employee_name,worked_seconds,expected_seconds,adjustment_seconds,balance_seconds,balance_hours", lines[0])
	assert.Len(t, lines, 2, "header plus one employee row")
}

func TestAPI_Closures_ReopenUnknown(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/closures/nope/reopen", map[string]string{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// HR TIME-BANK SURFACE
// =============================================================================

func TestAPI_HRTimeBankPaths(t *testing.T) {
	// GIVEN: The HR-facing route prefix
	// WHEN: Driving settings, summary, adjustments and closures through it
	// THEN: Same behavior as the short aliases

	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/hr/time-bank/settings",
		map[string]any{"target_daily_minutes": 450})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/hr/time-bank/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var settings struct {
		TargetDailyMinutes int `json:"target_daily_minutes"`
	}
	decode(t, resp, &settings)
	assert.Equal(t, 450, settings.TargetDailyMinutes)

	resp = f.do(t, http.MethodGet, "/api/hr/time-bank/summary?start_date=2025-03-10&end_date=2025-03-16", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary struct {
		Employees []struct{ EmployeeID string } `json:"employees"`
	}
	decode(t, resp, &summary)
	require.Len(t, summary.Employees, 1)

	resp = f.do(t, http.MethodPost, "/api/hr/time-bank/adjustments", map[string]any{
		"employee_id":    "emp-1",
		"effective_date": "2025-03-10",
		"seconds_delta":  -3600,
		"reason":         "lunch not badged",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var adj struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp, &adj)

	resp = f.do(t, http.MethodPost, "/api/hr/time-bank/adjustments/"+adj.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &adj)
	assert.Equal(t, "approved", adj.Status)

	resp = f.do(t, http.MethodPost, "/api/hr/time-bank/closures", map[string]string{
		"start_date": "2025-03-10",
		"end_date":   "2025-03-16",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var closure struct {
		ID string `json:"id"`
	}
	decode(t, resp, &closure)

	resp = f.do(t, http.MethodGet, "/api/hr/time-bank/closures/"+closure.ID+"/employees", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []struct {
		EmployeeID        string `json:"employee_id"`
		AdjustmentSeconds int64  `json:"adjustment_seconds"`
	}
	decode(t, resp, &items)
	require.Len(t, items, 1)
	assert.Equal(t, int64(-3600), items[0].AdjustmentSeconds)
}

func TestAPI_AdjustmentRejectPath(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/adjustments", map[string]any{
		"employee_id":    "emp-1",
		"effective_date": "2025-03-10",
		"seconds_delta":  3600,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var adj struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp, &adj)

	resp = f.do(t, http.MethodPost, "/api/adjustments/"+adj.ID+"/reject",
		map[string]any{"review_note": "no evidence", "reviewer": "hr-2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &adj)
	assert.Equal(t, "rejected", adj.Status)
}

// =============================================================================
// CLOCKIFY INTEGRATION
// =============================================================================

type stubProvider struct {
	users []timebank.ProviderUser
	err   error
}

func (p *stubProvider) ListUsers(context.Context, string) ([]timebank.ProviderUser, error) {
	return p.users, p.err
}

func (p *stubProvider) ListTimeEntries(context.Context, string, string, time.Time, time.Time) ([]timebank.ProviderEntry, error) {
	return nil, p.err
}

func TestAPI_ClockifyConfig_MasksKey(t *testing.T) {
	// GIVEN: Valid credentials (stub provider accepts them)
	// WHEN: Storing and reading back the config
	// THEN: The key is never echoed, only its masked form

	f := newFixture(t)
	f.handler.NewProvider = func(string) timebank.Provider { return &stubProvider{} }

	resp := f.do(t, http.MethodGet, "/api/integrations/clockify/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg struct {
		Configured   bool   `json:"configured"`
		WorkspaceID  string `json:"workspace_id"`
		APIKeyMasked string `json:"api_key_masked"`
	}
	decode(t, resp, &cfg)
	assert.False(t, cfg.Configured)

	resp = f.do(t, http.MethodPut, "/api/integrations/clockify/config",
		map[string]string{"api_key": "abcd123456789012wxyz", "workspace_id": "ws-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &cfg)
	assert.True(t, cfg.Configured)
	assert.Equal(t, "ws-1", cfg.WorkspaceID)
	assert.Equal(t, "abcd************wxyz", cfg.APIKeyMasked)

	resp = f.do(t, http.MethodGet, "/api/integrations/clockify/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &cfg)
	assert.Equal(t, "abcd************wxyz", cfg.APIKeyMasked)
}

func TestAPI_ClockifyConfig_RejectedWhenProviderFails(t *testing.T) {
	f := newFixture(t)
	f.handler.NewProvider = func(string) timebank.Provider {
		return &stubProvider{err: fmt.Errorf("401 unauthorized")}
	}

	resp := f.do(t, http.MethodPut, "/api/integrations/clockify/config",
		map[string]string{"api_key": "bad-key-123", "workspace_id": "ws-1"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAPI_ClockifyConfig_PostAlias(t *testing.T) {
	f := newFixture(t)
	f.handler.NewProvider = func(string) timebank.Provider { return &stubProvider{} }

	resp := f.do(t, http.MethodPost, "/api/integrations/clockify/config",
		map[string]string{"api_key": "abcd123456789012wxyz", "workspace_id": "ws-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_ClockifyStatus_ReportsSyncHealth(t *testing.T) {
	// GIVEN: Two mapped-era entries (one recent, one old, one running) and a
	//        second active employee with no provider link
	// WHEN: Fetching the integration status
	// THEN: Freshness counters and the unmapped preview are populated

	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.mem.SaveEmployee(ctx, timebank.Employee{
		ID:        "emp-2",
		Name:      "Zoe Quist",
		Email:     "zoe@example.com",
		Status:    "active",
		CreatedAt: now,
	}))
	require.NoError(t, f.mem.SaveProviderLink(ctx, timebank.ProviderLink{
		ProviderUserID: "u-1",
		EmployeeID:     "emp-1",
		LastSyncedAt:   now.Add(-time.Hour),
	}))

	synced := func(id string, start time.Time, open bool) timebank.TimeEntry {
		e := timebank.TimeEntry{
			ID:          timebank.EntryID(id),
			EmployeeID:  "emp-1",
			Source:      timebank.SourceClockify,
			ExternalRef: id,
			StartAt:     start,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if !open {
			end := start.Add(time.Hour)
			e.EndAt = &end
		}
		return e
	}
	require.NoError(t, f.mem.InsertEntry(ctx, synced("ck-old", now.AddDate(0, 0, -30), false)))
	require.NoError(t, f.mem.InsertEntry(ctx, synced("ck-recent", now.AddDate(0, 0, -1), false)))
	require.NoError(t, f.mem.InsertEntry(ctx, synced("ck-open", now.Add(-30*time.Minute), true)))

	resp := f.do(t, http.MethodGet, "/api/integrations/clockify/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		EntriesTotal      int      `json:"entries_total"`
		EntriesLast7Days  int      `json:"entries_last_7_days"`
		RunningEntries    int      `json:"running_entries"`
		LastEntryAt       string   `json:"last_entry_at"`
		LastSyncAt        string   `json:"last_sync_at"`
		ActiveEmployees   int      `json:"active_employees"`
		MappedEmployees   int      `json:"mapped_employees"`
		UnmappedEmployees int      `json:"unmapped_employees"`
		UnmappedPreview   []string `json:"unmapped_preview"`
	}
	decode(t, resp, &status)

	assert.Equal(t, 3, status.EntriesTotal)
	assert.Equal(t, 2, status.EntriesLast7Days)
	assert.Equal(t, 1, status.RunningEntries)
	assert.NotEmpty(t, status.LastEntryAt)
	assert.NotEmpty(t, status.LastSyncAt)
	assert.Equal(t, 2, status.ActiveEmployees)
	assert.Equal(t, 1, status.MappedEmployees)
	assert.Equal(t, 1, status.UnmappedEmployees)
	assert.Equal(t, []string{"Zoe Quist"}, status.UnmappedPreview)
}

func TestAPI_Sync_NotConfigured(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/integrations/clockify/sync", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Sync_RunsWithStubProvider(t *testing.T) {
	f := newFixture(t)
	f.handler.NewProvider = func(string) timebank.Provider {
		return &stubProvider{users: []timebank.ProviderUser{
			{ID: "u-1", Name: "Ada V", Email: "ada@example.com"},
		}}
	}

	require.NoError(t, f.mem.SaveProviderConfig(context.Background(), timebank.ProviderConfig{
		WorkspaceID: "ws-1",
		APIKey:      "key-123456789",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}))

	resp := f.do(t, http.MethodPost, "/api/integrations/clockify/sync", map[string]string{
		"start_date": "2025-03-10",
		"end_date":   "2025-03-16",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary timebank.SyncSummary
	decode(t, resp, &summary)
	assert.Equal(t, 1, summary.UsersFound)
	assert.Equal(t, 1, summary.EmployeesMapped)
}

// =============================================================================
// BALANCE
// =============================================================================

func TestAPI_Balance_InvalidRange(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/balance?start_date=2025-03-16&end_date=2025-03-10", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Balance_ReportsEmployeeRow(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/balance?start_date=2025-03-10&end_date=2025-03-16", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		TargetDailyMinutes int `json:"target_daily_minutes"`
		Employees          []struct {
			EmployeeID      string `json:"employee_id"`
			ExpectedSeconds int64  `json:"expected_seconds"`
		} `json:"employees"`
	}
	decode(t, resp, &summary)
	assert.Equal(t, timebank.DefaultTargetDailyMinutes, summary.TargetDailyMinutes)
	require.Len(t, summary.Employees, 1)
	assert.Equal(t, "emp-1", summary.Employees[0].EmployeeID)
	assert.Equal(t, int64(5*8*3600), summary.Employees[0].ExpectedSeconds)
}

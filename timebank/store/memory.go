// Package store provides timebank.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/timebank/timebank"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	entries      map[timebank.EntryID]timebank.TimeEntry
	adjustments  map[timebank.AdjustmentID]timebank.Adjustment
	closures     map[timebank.ClosureID]timebank.Closure
	closureItems map[timebank.ClosureID][]timebank.ClosureItem
	employees    map[timebank.EmployeeID]timebank.Employee
	links        map[string]timebank.ProviderLink
	settings     *timebank.PeriodSettings
	providerCfg  *timebank.ProviderConfig
}

func NewMemory() *Memory {
	return &Memory{
		entries:      make(map[timebank.EntryID]timebank.TimeEntry),
		adjustments:  make(map[timebank.AdjustmentID]timebank.Adjustment),
		closures:     make(map[timebank.ClosureID]timebank.Closure),
		closureItems: make(map[timebank.ClosureID][]timebank.ClosureItem),
		employees:    make(map[timebank.EmployeeID]timebank.Employee),
		links:        make(map[string]timebank.ProviderLink),
	}
}

var _ timebank.Store = (*Memory)(nil)

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) InsertEntry(_ context.Context, entry timebank.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.EndAt == nil {
		for _, e := range m.entries {
			if e.EmployeeID == entry.EmployeeID && e.EndAt == nil {
				return timebank.ErrAlreadyOpen
			}
		}
	}
	m.entries[entry.ID] = entry
	return nil
}

func (m *Memory) UpdateEntry(_ context.Context, entry timebank.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id timebank.EntryID) (*timebank.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *Memory) FindOpenEntry(_ context.Context, employeeID timebank.EmployeeID) (*timebank.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.EmployeeID == employeeID && e.EndAt == nil {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindExternalEntry(_ context.Context, employeeID timebank.EmployeeID, source timebank.Source, externalRef string) (*timebank.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.EmployeeID == employeeID && e.Source == source && e.ExternalRef == externalRef {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListEntries(_ context.Context, filter timebank.EntryFilter) ([]timebank.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []timebank.TimeEntry
	for _, e := range m.entries {
		if filter.EmployeeID != nil && e.EmployeeID != *filter.EmployeeID {
			continue
		}
		if filter.Source != nil && e.Source != *filter.Source {
			continue
		}
		day := timebank.DateOf(e.StartAt)
		if filter.From != nil && day.Before(*filter.From) {
			continue
		}
		if filter.To != nil && day.After(*filter.To) {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartAt.Equal(result[j].StartAt) {
			return result[i].StartAt.Before(result[j].StartAt)
		}
		return result[i].ID < result[j].ID
	})

	// Limit keeps the most recent entries, still in ascending order.
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) GetSettings(_ context.Context) (timebank.PeriodSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.settings == nil {
		return timebank.DefaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, settings timebank.PeriodSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &settings
	return nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (m *Memory) InsertAdjustment(_ context.Context, adj timebank.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[adj.ID] = adj
	return nil
}

func (m *Memory) UpdateAdjustment(_ context.Context, adj timebank.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[adj.ID] = adj
	return nil
}

func (m *Memory) GetAdjustment(_ context.Context, id timebank.AdjustmentID) (*timebank.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adj, ok := m.adjustments[id]
	if !ok {
		return nil, nil
	}
	return &adj, nil
}

func (m *Memory) ListAdjustments(_ context.Context, filter timebank.AdjustmentFilter) ([]timebank.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []timebank.Adjustment
	for _, a := range m.adjustments {
		if filter.EmployeeID != nil && a.EmployeeID != *filter.EmployeeID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.From != nil && a.EffectiveDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && a.EffectiveDate.After(*filter.To) {
			continue
		}
		result = append(result, a)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// =============================================================================
// CLOSURES
// =============================================================================

func (m *Memory) InsertClosure(_ context.Context, c timebank.Closure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closures[c.ID] = c
	return nil
}

func (m *Memory) UpdateClosure(_ context.Context, c timebank.Closure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closures[c.ID] = c
	return nil
}

func (m *Memory) GetClosure(_ context.Context, id timebank.ClosureID) (*timebank.Closure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.closures[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListClosures(_ context.Context, limit int) ([]timebank.Closure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]timebank.Closure, 0, len(m.closures))
	for _, c := range m.closures {
		result = append(result, c)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].PeriodStart.Equal(result[j].PeriodStart) {
			return result[i].PeriodStart.After(result[j].PeriodStart)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) FindClosureByRange(_ context.Context, r timebank.DateRange) (*timebank.Closure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.closures {
		if c.PeriodStart.Equal(r.Start) && c.PeriodEnd.Equal(r.End) {
			closure := c
			return &closure, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindClosedOverlapping(_ context.Context, r timebank.DateRange, ignore timebank.ClosureID) (*timebank.Closure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.closures {
		if c.ID == ignore || c.Status != timebank.ClosureClosed {
			continue
		}
		if r.Overlaps(timebank.DateRange{Start: c.PeriodStart, End: c.PeriodEnd}) {
			closure := c
			return &closure, nil
		}
	}
	return nil, nil
}

func (m *Memory) IsDateClosed(_ context.Context, d timebank.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.closures {
		if c.Status != timebank.ClosureClosed {
			continue
		}
		if d.AfterOrEqual(c.PeriodStart) && d.BeforeOrEqual(c.PeriodEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ReplaceClosureItems(_ context.Context, id timebank.ClosureID, items []timebank.ClosureItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closureItems[id] = append([]timebank.ClosureItem(nil), items...)
	return nil
}

func (m *Memory) ListClosureItems(_ context.Context, id timebank.ClosureID) ([]timebank.ClosureItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]timebank.ClosureItem, len(m.closureItems[id]))
	copy(result, m.closureItems[id])
	sort.Slice(result, func(i, j int) bool {
		if result[i].EmployeeName != result[j].EmployeeName {
			return result[i].EmployeeName < result[j].EmployeeName
		}
		return result[i].EmployeeID < result[j].EmployeeID
	})
	return result, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e timebank.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id timebank.EmployeeID) (*timebank.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]timebank.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]timebank.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// PROVIDER CONFIG & LINKS
// =============================================================================

func (m *Memory) GetProviderConfig(_ context.Context) (*timebank.ProviderConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.providerCfg == nil {
		return nil, nil
	}
	cfg := *m.providerCfg
	return &cfg, nil
}

func (m *Memory) SaveProviderConfig(_ context.Context, cfg timebank.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providerCfg = &cfg
	return nil
}

func (m *Memory) SaveProviderLink(_ context.Context, link timebank.ProviderLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.ProviderUserID] = link
	return nil
}

func (m *Memory) ListProviderLinks(_ context.Context) ([]timebank.ProviderLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]timebank.ProviderLink, 0, len(m.links))
	for _, l := range m.links {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ProviderUserID < result[j].ProviderUserID
	})
	return result, nil
}

/*
balance.go - Worked vs. expected balance calculation

PURPOSE:
  Turns entries + adjustments + settings into per-employee
  worked/expected/adjustment/balance totals for an arbitrary date range.
  Pure given its inputs: no caching, no mutation; every read recomputes.

THE ARITHMETIC:
  working_days     = days in range, minus Sundays, minus Saturdays unless
                     configured in; clamped per employee to the
                     [hire, termination] window
  expected_seconds = working_days * target_daily_minutes * 60
  worked_seconds   = sum of entry durations with StartAt inside the range;
                     a running entry counts up to "now" if now falls inside
                     the range, else up to the range end - the only
                     time-dependent input, which keeps closed-range summaries
                     deterministic and the current day live
  balance_seconds  = worked - expected + adjustments(approved, in range)

SEE ALSO:
  - date.go: WorkingDays
  - closure.go: freezes this output into snapshot rows
*/
package timebank

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// PURE COMPUTATION
// =============================================================================

// ComputeInput carries everything Compute needs. Entries must already be
// limited to StartAt within the range; adjustments to the range by effective
// date. Compute filters defensively anyway.
type ComputeInput struct {
	Range       DateRange
	Settings    PeriodSettings
	Employees   []Employee
	Entries     []TimeEntry
	Adjustments []Adjustment
	Now         time.Time
}

// Compute derives the balance summary. Referentially transparent: identical
// input yields identical output.
func Compute(in ComputeInput) BalanceSummary {
	workedByEmployee := make(map[EmployeeID]int64, len(in.Employees))
	for _, entry := range in.Entries {
		startDate := DateOf(entry.StartAt)
		if !in.Range.Contains(startDate) {
			continue
		}
		workedByEmployee[entry.EmployeeID] += workedSeconds(entry, in.Range, in.Now)
	}

	adjustedByEmployee := make(map[EmployeeID]int64, len(in.Employees))
	for _, adj := range in.Adjustments {
		if adj.Status != AdjustmentApproved {
			continue
		}
		if !in.Range.Contains(adj.EffectiveDate) {
			continue
		}
		adjustedByEmployee[adj.EmployeeID] += adj.SecondsDelta
	}

	summary := BalanceSummary{
		Start:              in.Range.Start,
		End:                in.Range.End,
		TargetDailyMinutes: in.Settings.TargetDailyMinutes,
		IncludeSaturday:    in.Settings.IncludeSaturday,
		Employees:          make([]EmployeeBalance, 0, len(in.Employees)),
	}

	employees := append([]Employee(nil), in.Employees...)
	sort.Slice(employees, func(i, j int) bool {
		if employees[i].Name != employees[j].Name {
			return employees[i].Name < employees[j].Name
		}
		return employees[i].ID < employees[j].ID
	})

	for _, emp := range employees {
		expected := expectedForEmployee(emp, in.Range, in.Settings)

		row := EmployeeBalance{
			EmployeeID:        emp.ID,
			Name:              emp.Name,
			WorkedSeconds:     workedByEmployee[emp.ID],
			ExpectedSeconds:   expected,
			AdjustmentSeconds: adjustedByEmployee[emp.ID],
		}
		row.BalanceSeconds = row.WorkedSeconds - row.ExpectedSeconds + row.AdjustmentSeconds
		summary.Employees = append(summary.Employees, row)

		summary.Totals.WorkedSeconds += row.WorkedSeconds
		summary.Totals.ExpectedSeconds += row.ExpectedSeconds
		summary.Totals.AdjustmentSeconds += row.AdjustmentSeconds
		summary.Totals.BalanceSeconds += row.BalanceSeconds
	}

	return summary
}

// workedSeconds measures one entry's contribution. Closed entries contribute
// end-start. Running entries are capped at now when now falls inside the
// range, else at the end of the range's last day.
func workedSeconds(entry TimeEntry, r DateRange, now time.Time) int64 {
	end := r.End.EndExclusive()
	if entry.EndAt != nil {
		end = *entry.EndAt
	} else if now.Before(end) {
		end = now
	}
	d := end.Sub(entry.StartAt)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// expectedForEmployee clamps the range to the employee's active window before
// counting working days. No partial-day proration inside a day.
func expectedForEmployee(emp Employee, r DateRange, settings PeriodSettings) int64 {
	start := r.Start
	if emp.HireDate != nil && emp.HireDate.After(start) {
		start = *emp.HireDate
	}
	end := r.End
	if emp.TerminationDate != nil && emp.TerminationDate.Before(end) {
		end = *emp.TerminationDate
	}
	if end.Before(start) {
		return 0
	}
	return ExpectedSeconds(WorkingDays(start, end, settings.IncludeSaturday), settings)
}

// =============================================================================
// CALCULATOR - Store-backed wrapper
// =============================================================================

// Calculator loads the inputs and delegates to Compute. It never writes.
type Calculator struct {
	store Store
	now   func() time.Time
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Summary computes balances for [start, end], optionally for one employee.
func (c *Calculator) Summary(ctx context.Context, r DateRange, employeeID *EmployeeID) (BalanceSummary, error) {
	if !r.Valid() {
		return BalanceSummary{}, ErrInvalidRange
	}

	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return BalanceSummary{}, err
	}

	employees, err := c.store.ListEmployees(ctx)
	if err != nil {
		return BalanceSummary{}, err
	}
	if employeeID != nil {
		filtered := employees[:0]
		for _, e := range employees {
			if e.ID == *employeeID {
				filtered = append(filtered, e)
			}
		}
		employees = filtered
	}

	entries, err := c.store.ListEntries(ctx, EntryFilter{
		EmployeeID: employeeID,
		From:       &r.Start,
		To:         &r.End,
	})
	if err != nil {
		return BalanceSummary{}, err
	}

	approved := AdjustmentApproved
	adjustments, err := c.store.ListAdjustments(ctx, AdjustmentFilter{
		EmployeeID: employeeID,
		Status:     &approved,
		From:       &r.Start,
		To:         &r.End,
	})
	if err != nil {
		return BalanceSummary{}, err
	}

	return Compute(ComputeInput{
		Range:       r,
		Settings:    settings,
		Employees:   employees,
		Entries:     entries,
		Adjustments: adjustments,
		Now:         c.now(),
	}), nil
}

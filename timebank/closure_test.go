package timebank_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timebank/timebank"
	"github.com/warp/timebank/timebank/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type closureFixture struct {
	mem      *store.Memory
	closures *timebank.ClosureManager
	ledger   *timebank.EntryLedger
}

func newClosureFixture(t *testing.T) *closureFixture {
	mem := store.NewMemory()
	calc := timebank.NewCalculator(mem)
	closures := timebank.NewClosureManager(mem, calc)
	ledger := timebank.NewEntryLedger(mem, closures)

	require.NoError(t, mem.SaveEmployee(context.Background(), timebank.Employee{
		ID:        "emp-1",
		Name:      "Ada Verne",
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}))
	return &closureFixture{mem: mem, closures: closures, ledger: ledger}
}

func (f *closureFixture) workDay(t *testing.T, d timebank.Date, hours int) {
	t.Helper()
	ctx := context.Background()
	start := d.Time.Add(9 * time.Hour)
	_, err := f.ledger.ClockIn(ctx, "emp-1", &start, "")
	require.NoError(t, err)
	end := start.Add(time.Duration(hours) * time.Hour)
	_, err = f.ledger.ClockOut(ctx, "emp-1", &end, "")
	require.NoError(t, err)
}

var (
	weekStart = timebank.NewDate(2025, time.March, 10)
	weekEnd   = timebank.NewDate(2025, time.March, 16)
	week      = timebank.DateRange{Start: weekStart, End: weekEnd}
)

// =============================================================================
// CLOSE
// =============================================================================

func TestClose_SnapshotsBalances(t *testing.T) {
	// GIVEN: One 8h day worked in the week
	// WHEN: Closing the week
	// THEN: The snapshot carries worked/expected/balance per employee

	f := newClosureFixture(t)
	ctx := context.Background()
	f.workDay(t, weekStart, 8)

	closure, err := f.closures.Close(ctx, week, "march week 2", "hr-1")
	require.NoError(t, err)

	assert.Equal(t, timebank.ClosureClosed, closure.Status)
	assert.Equal(t, 1, closure.EmployeesCount)
	assert.Equal(t, int64(8*3600), closure.Totals.WorkedSeconds)
	assert.Equal(t, int64(5*8*3600), closure.Totals.ExpectedSeconds)

	items, err := f.closures.Items(ctx, closure.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, timebank.EmployeeID("emp-1"), items[0].EmployeeID)
	assert.Equal(t, int64(8*3600-5*8*3600), items[0].BalanceSeconds)
}

func TestClose_InvalidRange(t *testing.T) {
	f := newClosureFixture(t)

	_, err := f.closures.Close(context.Background(),
		timebank.DateRange{Start: weekEnd, End: weekStart}, "", "hr-1")
	assert.ErrorIs(t, err, timebank.ErrInvalidRange)
}

func TestClose_OverlapConflicts(t *testing.T) {
	// GIVEN: A closed week
	// WHEN: Closing a range sharing one day with it
	// THEN: OverlapError naming the existing closure

	f := newClosureFixture(t)
	ctx := context.Background()

	first, err := f.closures.Close(ctx, week, "", "hr-1")
	require.NoError(t, err)

	overlap := timebank.DateRange{Start: weekEnd, End: weekEnd.AddDays(6)}
	_, err = f.closures.Close(ctx, overlap, "", "hr-1")
	assert.ErrorIs(t, err, timebank.ErrOverlappingClosure)

	var overlapErr *timebank.OverlapError
	require.ErrorAs(t, err, &overlapErr)
	assert.Equal(t, first.ID, overlapErr.Existing)
}

func TestClose_AdjacentRangeAllowed(t *testing.T) {
	f := newClosureFixture(t)
	ctx := context.Background()

	_, err := f.closures.Close(ctx, week, "", "hr-1")
	require.NoError(t, err)

	next := timebank.DateRange{Start: weekEnd.AddDays(1), End: weekEnd.AddDays(7)}
	_, err = f.closures.Close(ctx, next, "", "hr-1")
	assert.NoError(t, err)
}

// =============================================================================
// WRITE GUARD
// =============================================================================

func TestClosedPeriodBlocksClockEvents(t *testing.T) {
	// GIVEN: A closed week
	// WHEN: Clocking in on a frozen date
	// THEN: ErrPeriodClosed carrying the date

	f := newClosureFixture(t)
	ctx := context.Background()

	_, err := f.closures.Close(ctx, week, "", "hr-1")
	require.NoError(t, err)

	inside := weekStart.AddDays(2).Time.Add(9 * time.Hour)
	_, err = f.ledger.ClockIn(ctx, "emp-1", &inside, "")
	assert.ErrorIs(t, err, timebank.ErrPeriodClosed)

	var closedErr *timebank.PeriodClosedError
	require.ErrorAs(t, err, &closedErr)
	assert.Equal(t, weekStart.AddDays(2), closedErr.Date)

	// A date outside the closure still works.
	outside := weekEnd.AddDays(1).Time.Add(9 * time.Hour)
	_, err = f.ledger.ClockIn(ctx, "emp-1", &outside, "")
	assert.NoError(t, err)
}

// =============================================================================
// REOPEN
// =============================================================================

func TestReopen_LiftsLockKeepsSnapshot(t *testing.T) {
	// GIVEN: A closed week with a snapshot
	// WHEN: Reopening and adding a new entry inside the range
	// THEN: Writes succeed again; snapshot rows stay untouched

	f := newClosureFixture(t)
	ctx := context.Background()
	f.workDay(t, weekStart, 8)

	closure, err := f.closures.Close(ctx, week, "", "hr-1")
	require.NoError(t, err)

	reopened, err := f.closures.Reopen(ctx, closure.ID, "late entry", "hr-2")
	require.NoError(t, err)
	assert.Equal(t, timebank.ClosureReopened, reopened.Status)
	assert.Equal(t, "hr-2", reopened.ReopenedBy)
	require.NotNil(t, reopened.ReopenedAt)

	f.workDay(t, weekStart.AddDays(1), 4)

	items, err := f.closures.Items(ctx, closure.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(8*3600), items[0].WorkedSeconds, "snapshot must not move after reopen")
}

func TestReopen_NotClosed(t *testing.T) {
	f := newClosureFixture(t)
	ctx := context.Background()

	closure, err := f.closures.Close(ctx, week, "", "hr-1")
	require.NoError(t, err)
	_, err = f.closures.Reopen(ctx, closure.ID, "", "hr-2")
	require.NoError(t, err)

	_, err = f.closures.Reopen(ctx, closure.ID, "", "hr-2")
	assert.ErrorIs(t, err, timebank.ErrNotClosed)
}

func TestReopen_NotFound(t *testing.T) {
	f := newClosureFixture(t)

	_, err := f.closures.Reopen(context.Background(), "nope", "", "hr-2")
	assert.ErrorIs(t, err, timebank.ErrClosureNotFound)
}

// =============================================================================
// RE-CLOSE
// =============================================================================

func TestReclose_SameRangeReusesRecordAndRefreshesSnapshot(t *testing.T) {
	// GIVEN: A week closed, reopened, and a new 4h day added
	// WHEN: Closing the exact same range again
	// THEN: Same closure row, snapshot recomputed with the new entry

	f := newClosureFixture(t)
	ctx := context.Background()
	f.workDay(t, weekStart, 8)

	first, err := f.closures.Close(ctx, week, "", "hr-1")
	require.NoError(t, err)
	_, err = f.closures.Reopen(ctx, first.ID, "", "hr-2")
	require.NoError(t, err)

	f.workDay(t, weekStart.AddDays(1), 4)

	second, err := f.closures.Close(ctx, week, "final", "hr-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same range reuses the record")
	assert.Equal(t, timebank.ClosureClosed, second.Status)
	assert.Equal(t, int64(12*3600), second.Totals.WorkedSeconds)

	all, err := f.closures.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

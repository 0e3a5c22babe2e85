package timebank_test

import (
	"context"
	"sync"
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

func newTestLedger(t *testing.T) (*timebank.EntryLedger, *timebank.ClosureManager, *store.Memory) {
	mem := store.NewMemory()
	calc := timebank.NewCalculator(mem)
	closures := timebank.NewClosureManager(mem, calc)
	ledger := timebank.NewEntryLedger(mem, closures)

	require.NoError(t, mem.SaveEmployee(context.Background(), timebank.Employee{
		ID:        "emp-1",
		Name:      "Ada Verne",
		Email:     "ada@example.com",
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}))
	return ledger, closures, mem
}

func timePtr(t time.Time) *time.Time { return &t }

// =============================================================================
// ONE-OPEN-ENTRY INVARIANT
// =============================================================================

func TestClockIn_SecondOpenRejected(t *testing.T) {
	// GIVEN: Employee has a running entry
	// WHEN: Clocking in again
	// THEN: ErrAlreadyOpen

	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.ClockIn(ctx, "emp-1", nil, "morning")
	require.NoError(t, err)

	_, err = ledger.ClockIn(ctx, "emp-1", nil, "again")
	assert.ErrorIs(t, err, timebank.ErrAlreadyOpen)
}

func TestClockIn_Concurrent_OnlyOneOpens(t *testing.T) {
	// GIVEN: No open entry
	// WHEN: 16 goroutines clock in simultaneously
	// THEN: Exactly one succeeds, the rest see ErrAlreadyOpen

	ledger, _, mem := newTestLedger(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.ClockIn(ctx, "emp-1", nil, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, timebank.ErrAlreadyOpen)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one clock-in should win")

	open, err := mem.FindOpenEntry(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, open)
}

func TestClockIn_UnknownEmployee(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.ClockIn(context.Background(), "ghost", nil, "")
	assert.ErrorIs(t, err, timebank.ErrEmployeeNotFound)
}

// =============================================================================
// CLOCK OUT
// =============================================================================

func TestClockOut_NoOpenEntry(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.ClockOut(context.Background(), "emp-1", nil, "")
	assert.ErrorIs(t, err, timebank.ErrNoOpenEntry)
}

func TestClockOut_BeforeStartRejected(t *testing.T) {
	// GIVEN: An entry opened at 09:00
	// WHEN: Clocking out at 08:00
	// THEN: ErrInvalidInterval, entry stays open

	ledger, _, mem := newTestLedger(t)
	ctx := context.Background()

	start := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	_, err := ledger.ClockIn(ctx, "emp-1", timePtr(start), "")
	require.NoError(t, err)

	_, err = ledger.ClockOut(ctx, "emp-1", timePtr(start.Add(-time.Hour)), "")
	assert.ErrorIs(t, err, timebank.ErrInvalidInterval)

	open, err := mem.FindOpenEntry(ctx, "emp-1")
	require.NoError(t, err)
	assert.NotNil(t, open, "entry should still be open")
}

func TestClockOut_ClosesEntry(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	start := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	_, err := ledger.ClockIn(ctx, "emp-1", timePtr(start), "in")
	require.NoError(t, err)

	entry, err := ledger.ClockOut(ctx, "emp-1", timePtr(start.Add(8*time.Hour)), "out")
	require.NoError(t, err)

	require.NotNil(t, entry.EndAt)
	assert.False(t, entry.Running())
	assert.Equal(t, int64(8*3600), entry.DurationSeconds(time.Now().UTC()))
	assert.Equal(t, "in", entry.NoteIn)
	assert.Equal(t, "out", entry.NoteOut)
}

// =============================================================================
// EXTERNAL UPSERT
// =============================================================================

func externalEntry(ref string, start time.Time, hours int) timebank.TimeEntry {
	end := start.Add(time.Duration(hours) * time.Hour)
	return timebank.TimeEntry{
		EmployeeID:  "emp-1",
		Source:      timebank.SourceClockify,
		ExternalRef: ref,
		StartAt:     start,
		EndAt:       &end,
	}
}

func TestUpsertExternal_ReplaceNotDuplicate(t *testing.T) {
	// GIVEN: A synced entry at 09:00
	// WHEN: The same external ref comes back moved to 13:00
	// THEN: One row exists, starting at 13:00

	ledger, _, mem := newTestLedger(t)
	ctx := context.Background()

	start := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	outcome, err := ledger.UpsertExternal(ctx, externalEntry("ck-1", start, 4), false)
	require.NoError(t, err)
	assert.Equal(t, timebank.UpsertCreated, outcome)

	moved := start.Add(4 * time.Hour)
	outcome, err = ledger.UpsertExternal(ctx, externalEntry("ck-1", moved, 4), false)
	require.NoError(t, err)
	assert.Equal(t, timebank.UpsertUpdated, outcome, "second upsert should replace")

	entries, err := mem.ListEntries(ctx, timebank.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, moved, entries[0].StartAt)
}

func TestUpsertExternal_IdenticalRecordIsNoOp(t *testing.T) {
	// GIVEN: A synced entry
	// WHEN: The exact same record comes back
	// THEN: UpsertUnchanged, and the stored row keeps its UpdatedAt stamp

	ledger, _, mem := newTestLedger(t)
	ctx := context.Background()

	start := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	_, err := ledger.UpsertExternal(ctx, externalEntry("ck-1", start, 4), false)
	require.NoError(t, err)

	before, err := mem.ListEntries(ctx, timebank.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, before, 1)

	outcome, err := ledger.UpsertExternal(ctx, externalEntry("ck-1", start, 4), false)
	require.NoError(t, err)
	assert.Equal(t, timebank.UpsertUnchanged, outcome)

	after, err := mem.ListEntries(ctx, timebank.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].UpdatedAt, after[0].UpdatedAt, "unchanged record must not be rewritten")
}

func TestUpsertExternal_RejectsInternalSource(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	entry := externalEntry("ck-1", time.Now().UTC(), 1)
	entry.Source = timebank.SourceInternal

	_, err := ledger.UpsertExternal(context.Background(), entry, false)
	assert.ErrorIs(t, err, timebank.ErrInvalidInterval)
}

func TestUpsertExternal_RejectsMissingRef(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	entry := externalEntry("", time.Now().UTC(), 1)

	_, err := ledger.UpsertExternal(context.Background(), entry, false)
	assert.ErrorIs(t, err, timebank.ErrInvalidInterval)
}

// =============================================================================
// MINE
// =============================================================================

func TestMine_ReportsOpenEntryAndTodaySeconds(t *testing.T) {
	// GIVEN: A closed 2h entry earlier today and a running one
	// WHEN: Fetching the clock-screen view
	// THEN: Today's seconds cover both, open entry present

	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if now.Hour() < 4 {
		t.Skip("too close to midnight for a same-day fixture")
	}

	start := now.Add(-3 * time.Hour)
	_, err := ledger.ClockIn(ctx, "emp-1", timePtr(start), "")
	require.NoError(t, err)
	_, err = ledger.ClockOut(ctx, "emp-1", timePtr(start.Add(2*time.Hour)), "")
	require.NoError(t, err)

	_, err = ledger.ClockIn(ctx, "emp-1", timePtr(now.Add(-30*time.Minute)), "")
	require.NoError(t, err)

	mine, err := ledger.Mine(ctx, "emp-1", 10)
	require.NoError(t, err)

	require.NotNil(t, mine.OpenEntry)
	assert.GreaterOrEqual(t, mine.TodaySeconds, int64(2*3600+29*60))
	assert.Len(t, mine.Entries, 2)
}

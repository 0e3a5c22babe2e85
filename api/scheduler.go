/*
scheduler.go - Nightly Clockify auto-sync

PURPOSE:
  Runs one reconciliation pass at startup and then once per day at a fixed
  UTC hour, pulling the configured lookback window. Skips quietly when the
  integration is not configured so the server runs fine without Clockify.

FAILURE BEHAVIOR:
  A failed run is logged and the loop keeps its schedule. Re-running a
  window is safe: upserts are idempotent.

SEE ALSO:
  - handlers.go: SyncClockify, the manual counterpart
  - ../timebank/sync.go: Reconciler
*/
package api

import (
	"context"
	"log"
	"time"

	"github.com/warp/timebank/timebank"
)

const (
	defaultSyncHourUTC  = 3
	defaultLookbackDays = 7
)

// StartAutoSync blocks until ctx is cancelled, syncing once immediately and
// then daily at hourUTC. Run it in its own goroutine.
func StartAutoSync(ctx context.Context, h *Handler, hourUTC, lookbackDays int) {
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = defaultSyncHourUTC
	}
	if lookbackDays < 1 {
		lookbackDays = defaultLookbackDays
	}

	log.Printf("[AutoSync] started: daily at %02d:00 UTC, lookback %d days", hourUTC, lookbackDays)

	runAutoSync(ctx, h, lookbackDays)

	for {
		next := nextRunAtUTCHour(time.Now().UTC(), hourUTC)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[AutoSync] stopped")
			return
		case <-timer.C:
			runAutoSync(ctx, h, lookbackDays)
		}
	}
}

func runAutoSync(ctx context.Context, h *Handler, lookbackDays int) {
	cfg, err := h.Store.GetProviderConfig(ctx)
	if err != nil {
		log.Printf("[AutoSync] config load failed: %v", err)
		return
	}
	if cfg == nil {
		log.Printf("[AutoSync] skipped: clockify not configured")
		return
	}

	today := timebank.DateOf(time.Now().UTC())
	rng := timebank.DateRange{Start: today.AddDays(-lookbackDays), End: today}

	provider := h.NewProvider(cfg.APIKey)
	summary, err := h.Reconciler.Sync(ctx, provider, cfg.WorkspaceID, rng, false)
	if err != nil {
		log.Printf("[AutoSync] sync %s failed: %v", rng, err)
		return
	}
	log.Printf("[AutoSync] sync %s: %d users, %d mapped, %d entries upserted, %d skipped closed, %d running",
		rng, summary.UsersFound, summary.EmployeesMapped,
		summary.EntriesUpserted, summary.EntriesSkippedClosed, summary.RunningEntries)
}

// nextRunAtUTCHour returns the next instant at hourUTC strictly after now.
func nextRunAtUTCHour(now time.Time, hourUTC int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// scheduler.go - Automated refresh scheduler
//
// PURPOSE:
//
//	Periodically recomputes every child's status so that arrivals, departures
//	and vacation boundaries are published close to when they happen, and
//	timeline changes (new vacation calendar, edited overrides) are noticed.
//
// DESIGN:
//   - Driven by a cron expression (refresh.cron, default every 15 minutes)
//   - Runs once immediately on start to seed the change detector
//   - Overlapping runs are skipped; the tracker serializes refreshes anyway
//   - Every run is recorded as a RefreshRun for audit and UI display
//
// USAGE:
//
//	scheduler, err := NewRefreshScheduler(tracker, "*/15 * * * *", loc)
//	scheduler.Start()
//	// ... later
//	scheduler.Stop()
//
// SEE ALSO:
//   - handlers.go: TriggerRefresh endpoint (manual refresh)
//   - schedule/tracker.go: Refresh
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/custody-engine/internal/logger"
	"github.com/warp/custody-engine/schedule"
)

// Refresh triggers recorded on runs.
const (
	TriggerCron    = "cron"
	TriggerManual  = "manual"
	TriggerStartup = "startup"
)

// refreshTimeout bounds a single refresh pass, vacation fetches included.
const refreshTimeout = 5 * time.Minute

// RefreshScheduler handles automated refreshes.
type RefreshScheduler struct {
	tracker *schedule.Tracker
	cron    *cron.Cron
	entry   cron.EntryID
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// NewRefreshScheduler parses spec (standard 5-field cron) in loc.
func NewRefreshScheduler(tracker *schedule.Tracker, spec string, loc *time.Location) (*RefreshScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	log := logger.Component("scheduler")
	cl := cronLogger{log: log}

	rs := &RefreshScheduler{
		tracker: tracker,
		log:     log,
		now:     time.Now,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	id, err := rs.cron.AddFunc(spec, func() { rs.run(TriggerCron) })
	if err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	rs.entry = id
	return rs, nil
}

// Start runs a startup refresh in the background and begins the schedule.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.started {
		return
	}
	rs.started = true

	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		rs.run(TriggerStartup)
	}()
	rs.cron.Start()

	rs.log.Info("scheduler started", "next_run", rs.NextRun())
}

// Stop stops the schedule and waits for running refreshes to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.started {
		return
	}
	rs.started = false

	<-rs.cron.Stop().Done()
	rs.wg.Wait()
	rs.log.Info("scheduler stopped")
}

// RunNow refreshes immediately, outside the schedule.
func (rs *RefreshScheduler) RunNow(ctx context.Context) (*schedule.RefreshRun, error) {
	return rs.tracker.Refresh(ctx, rs.now(), TriggerManual)
}

// NextRun returns the next scheduled refresh (zero before Start).
func (rs *RefreshScheduler) NextRun() time.Time {
	return rs.cron.Entry(rs.entry).Next
}

func (rs *RefreshScheduler) run(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if _, err := rs.tracker.Refresh(ctx, rs.now(), trigger); err != nil {
		rs.log.Error("refresh failed", "trigger", trigger, "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

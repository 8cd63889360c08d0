/*
tracker.go - Per-child custody computations and the refresh loop

PURPOSE:
  The Tracker glues the pure engine to the outside world: it loads a child's
  settings and manual periods from the Store, fetches the vacation calendar
  for the school years the horizon touches, resolves the timeline and
  projects the status at "now".

REFRESH:
  Refresh recomputes every child, compares each result with the previous
  one and publishes arrival/departure/vacation/timeline events. The first
  computation of a child after startup only seeds the comparison.

VACATION FAILURES:
  A vacation source failure is not fatal: the timeline is resolved with
  whatever entries were fetched and the error is kept on the Computation.

SEE ALSO:
  - custody/resolver.go: Resolve
  - custody/status.go: Project
  - vacation/source.go: Collect
  - notify/notify.go: Diff
*/
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/samber/mo"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/factory"
	"github.com/warp/custody-engine/internal/logger"
	"github.com/warp/custody-engine/internal/metrics"
	"github.com/warp/custody-engine/notify"
	"github.com/warp/custody-engine/vacation"
)

// DefaultHorizon is how far ahead Compute resolves.
const DefaultHorizon = 90 * 24 * time.Hour

// lookBehind keeps the period that started yesterday in the timeline.
const lookBehind = 24 * time.Hour

// Options configures a Tracker. Zero values are replaced by defaults.
type Options struct {
	Vacations vacation.Source // nil: no vacation layer
	Publisher notify.Publisher
	Metrics   metrics.Recorder
	Horizon   time.Duration
	Location  *time.Location // Default zone for settings without a timezone
	Now       func() time.Time
}

// Tracker computes and refreshes custody timelines of stored children.
type Tracker struct {
	store     Store
	vacations vacation.Source
	factory   *factory.SettingsFactory
	publisher notify.Publisher
	metrics   metrics.Recorder
	horizon   time.Duration
	log       *slog.Logger
	now       func() time.Time

	last      *xsync.Map[string, lastState]
	refreshMu sync.Mutex
}

// lastState is what the previous refresh saw for one child.
type lastState struct {
	status  notify.Status
	periods []custody.Period
	window  custody.Window
}

func NewTracker(store Store, opts Options) *Tracker {
	if opts.Publisher == nil {
		opts.Publisher = notify.Noop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		store:     store,
		vacations: opts.Vacations,
		factory:   factory.NewSettingsFactory(opts.Location),
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		horizon:   opts.Horizon,
		log:       logger.Component("tracker"),
		now:       opts.Now,
		last:      xsync.NewMap[string, lastState](),
	}
}

// Factory exposes the settings factory, configured with the tracker's zone.
func (t *Tracker) Factory() *factory.SettingsFactory { return t.factory }

// =============================================================================
// CHILDREN
// =============================================================================

// CreateChild validates the settings and stores a new child.
func (t *Tracker) CreateChild(ctx context.Context, c Child) (*Child, error) {
	if _, err := t.factory.ParseSettings(c.Settings); err != nil {
		return nil, err
	}
	now := t.now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	if err := t.store.SaveChild(ctx, c); err != nil {
		return nil, fmt.Errorf("save child: %w", err)
	}
	return &c, nil
}

// UpdateChild replaces name, location, notes and settings of an existing
// child. The next refresh reports the new timeline.
func (t *Tracker) UpdateChild(ctx context.Context, c Child) (*Child, error) {
	existing, err := t.GetChild(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if _, err := t.factory.ParseSettings(c.Settings); err != nil {
		return nil, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = t.now().UTC()
	if err := t.store.SaveChild(ctx, c); err != nil {
		return nil, fmt.Errorf("save child: %w", err)
	}
	return &c, nil
}

// GetChild returns the child or custody.ErrChildNotFound.
func (t *Tracker) GetChild(ctx context.Context, id string) (*Child, error) {
	c, err := t.store.GetChild(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load child %s: %w", id, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", custody.ErrChildNotFound, id)
	}
	return c, nil
}

func (t *Tracker) ListChildren(ctx context.Context) ([]Child, error) {
	return t.store.ListChildren(ctx)
}

func (t *Tracker) DeleteChild(ctx context.Context, id string) error {
	if err := t.store.DeleteChild(ctx, id); err != nil {
		return err
	}
	t.last.Delete(id)
	return nil
}

// =============================================================================
// OVERRIDES & EXCEPTIONS
// =============================================================================

// AddOverride stores an ad-hoc period.
func (t *Tracker) AddOverride(ctx context.Context, childID string, o custody.Override) (*Override, error) {
	if _, err := t.GetChild(ctx, childID); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return t.saveOverride(ctx, childID, SourceManual, o)
}

// SetPresence replaces the child's forced presence switch. It runs from now
// until expiry, or until cleared when expiry is None.
func (t *Tracker) SetPresence(ctx context.Context, childID string, presence custody.Presence, expiry mo.Option[time.Time]) (*Override, error) {
	if !presence.Valid() {
		return nil, &custody.InvalidRuleError{Rule: "presence", Field: "state", Reason: fmt.Sprintf("must be on or off, got %q", presence)}
	}
	now := t.now()
	if until, ok := expiry.Get(); ok && !until.After(now) {
		return nil, &custody.InvalidWindowError{From: now, To: until}
	}
	if err := t.ClearPresence(ctx, childID); err != nil {
		return nil, err
	}
	return t.saveOverride(ctx, childID, SourcePresence, custody.PresenceOverride(presence, now, expiry))
}

// ClearPresence removes the forced presence switch, if any.
func (t *Tracker) ClearPresence(ctx context.Context, childID string) error {
	overrides, err := t.ListOverrides(ctx, childID)
	if err != nil {
		return err
	}
	for _, o := range overrides {
		if o.Source != SourcePresence {
			continue
		}
		if err := t.store.DeleteOverride(ctx, o.ID); err != nil {
			return fmt.Errorf("delete presence override: %w", err)
		}
	}
	return nil
}

func (t *Tracker) saveOverride(ctx context.Context, childID, source string, o custody.Override) (*Override, error) {
	o.ID = uuid.NewString()
	stored := Override{Override: o, ChildID: childID, Source: source, CreatedAt: t.now().UTC()}
	if err := t.store.SaveOverride(ctx, stored); err != nil {
		return nil, fmt.Errorf("save override: %w", err)
	}
	return &stored, nil
}

// ListOverrides returns every override of an existing child.
func (t *Tracker) ListOverrides(ctx context.Context, childID string) ([]Override, error) {
	if _, err := t.GetChild(ctx, childID); err != nil {
		return nil, err
	}
	return t.store.ListOverrides(ctx, childID)
}

func (t *Tracker) DeleteOverride(ctx context.Context, id string) error {
	return t.store.DeleteOverride(ctx, id)
}

// AddException stores a weekly recurring exception.
func (t *Tracker) AddException(ctx context.Context, childID string, ex custody.RecurringException) (*Exception, error) {
	if _, err := t.GetChild(ctx, childID); err != nil {
		return nil, err
	}
	if err := ex.Validate(); err != nil {
		return nil, err
	}
	ex.ID = uuid.NewString()
	stored := Exception{RecurringException: ex, ChildID: childID, CreatedAt: t.now().UTC()}
	if err := t.store.SaveException(ctx, stored); err != nil {
		return nil, fmt.Errorf("save exception: %w", err)
	}
	return &stored, nil
}

func (t *Tracker) ListExceptions(ctx context.Context, childID string) ([]Exception, error) {
	if _, err := t.GetChild(ctx, childID); err != nil {
		return nil, err
	}
	return t.store.ListExceptions(ctx, childID)
}

func (t *Tracker) DeleteException(ctx context.Context, id string) error {
	return t.store.DeleteException(ctx, id)
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Computation is the state of one child at one instant.
type Computation struct {
	Child        Child
	Snapshot     custody.Snapshot
	Resolution   custody.Resolution
	Status       custody.Status
	Phase        string // notify.PhaseSchool or notify.PhaseVacation
	VacationName string
	Vacations    []custody.VacationCalendarEntry
	Fingerprint  uint64
	VacationErr  error // Set when some school years could not be fetched
}

func (c *Computation) notifyStatus() notify.Status {
	return notify.Status{
		Custody:      c.Status,
		Phase:        c.Phase,
		VacationName: c.VacationName,
		Fingerprint:  c.Fingerprint,
	}
}

// Compute resolves [now - 1 day, now + horizon) and projects the status at now.
func (t *Tracker) Compute(ctx context.Context, childID string, now time.Time) (*Computation, error) {
	child, err := t.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	w, err := custody.NewWindow(now.Add(-lookBehind), now.Add(t.horizon))
	if err != nil {
		return nil, err
	}
	comp, err := t.resolve(ctx, *child, w)
	if err != nil {
		return nil, err
	}
	comp.Status = custody.Project(comp.Resolution.Periods, now)
	comp.Phase, comp.VacationName = notify.PhaseSchool, ""
	snap := comp.Snapshot
	if e, ok := custody.VacationAt(comp.Vacations, snap.Vacation().Level, snap.Handover(), now).Get(); ok {
		comp.Phase, comp.VacationName = notify.PhaseVacation, e.Name
	}
	return comp, nil
}

// Timeline resolves an arbitrary window for one child.
func (t *Tracker) Timeline(ctx context.Context, childID string, w custody.Window) (*Computation, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	child, err := t.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	return t.resolve(ctx, *child, w)
}

func (t *Tracker) resolve(ctx context.Context, child Child, w custody.Window) (*Computation, error) {
	snap, err := t.factory.ParseSettings(child.Settings)
	if err != nil {
		return nil, fmt.Errorf("child %s settings: %w", child.ID, err)
	}
	loc := snap.Location()
	comp := &Computation{Child: child, Snapshot: snap}

	if zone := snap.Vacation().Zone; zone != "" && t.vacations != nil {
		years := vacation.SchoolYearsFor(custody.DateOf(w.From.In(loc)), custody.DateOf(w.To.In(loc)))
		comp.Vacations, comp.VacationErr = vacation.Collect(ctx, t.vacations, zone, years)
		if comp.VacationErr != nil {
			logger.Warn(ctx, "vacation calendar incomplete", "child_id", child.ID, "zone", zone, "error", comp.VacationErr)
		}
	}

	stored, err := t.store.ListOverrides(ctx, child.ID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	overrides := make([]custody.Override, 0, len(stored))
	for _, o := range stored {
		overrides = append(overrides, o.Override)
	}
	exceptions, err := t.store.ListExceptions(ctx, child.ID)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	recurring := make([]custody.RecurringException, 0, len(exceptions))
	for _, e := range exceptions {
		recurring = append(recurring, e.RecurringException)
	}
	overrides = append(overrides, custody.ExpandRecurring(recurring, w, loc)...)

	start := time.Now()
	res, err := custody.Resolve(snap, comp.Vacations, overrides, w)
	if err != nil {
		return nil, fmt.Errorf("resolve child %s: %w", child.ID, err)
	}
	t.metrics.ObserveResolve(time.Since(start).Seconds(), len(res.Periods), len(res.Defects))
	for _, d := range res.Defects {
		logger.Debug(ctx, "vacation entry skipped", "child_id", child.ID, "entry", d.Entry.Name, "error", d.Err)
	}

	comp.Resolution = res
	comp.Fingerprint = custody.Fingerprint(res.Periods)
	return comp, nil
}

// =============================================================================
// REFRESH
// =============================================================================

// Refresh recomputes every child at now, publishes transitions and records
// the run. Only one refresh runs at a time. trigger is stored on the run
// (cron, manual, startup).
func (t *Tracker) Refresh(ctx context.Context, now time.Time, trigger string) (*RefreshRun, error) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	run := RefreshRun{ID: uuid.NewString(), Trigger: trigger, StartedAt: now.UTC()}

	children, err := t.store.ListChildren(ctx)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	run.Children = len(children)

	var errs []error
	present := 0
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := t.pruneExpired(ctx, child.ID, now); err != nil {
			logger.Warn(ctx, "prune expired overrides failed", "child_id", child.ID, "error", err)
		}
		comp, err := t.Compute(ctx, child.ID, now)
		if err != nil {
			run.Failed++
			errs = append(errs, fmt.Errorf("child %s: %w", child.ID, err))
			continue
		}
		if comp.Status.Active {
			present++
		}

		next := comp.notifyStatus()
		prev, seen := t.last.Load(child.ID)
		t.last.Store(child.ID, lastState{status: next, periods: comp.Resolution.Periods, window: comp.Resolution.Window})
		if !seen {
			continue
		}
		before := prev.status
		if timelineChanged(prev.periods, comp.Resolution.Periods, prev.window, comp.Resolution.Window) {
			run.Changed++
		} else {
			before.Fingerprint = next.Fingerprint
		}
		events := notify.Diff(before, next)
		for _, e := range events {
			e.ChildID = child.ID
			if err := t.publisher.Publish(ctx, e); err != nil {
				logger.Error(ctx, "publish event failed", err, "child_id", child.ID, "type", e.Type)
				continue
			}
			run.Events++
			t.metrics.RecordNotification(string(e.Type))
		}
	}

	run.CompletedAt = t.now().UTC()
	switch {
	case len(errs) == 0:
		run.Status = RunCompleted
	case run.Failed < run.Children:
		run.Status = RunPartial
	default:
		run.Status = RunFailed
	}
	if joined := errors.Join(errs...); joined != nil {
		run.Error = joined.Error()
	}

	t.metrics.SetChildrenPresent(present)
	t.metrics.RecordRefresh(run.Status, run.CompletedAt.Sub(run.StartedAt).Seconds())
	if err := t.store.SaveRefreshRun(ctx, run); err != nil {
		return &run, fmt.Errorf("save refresh run: %w", err)
	}

	t.log.Info("refresh completed",
		"trigger", trigger,
		"status", run.Status,
		"children", run.Children,
		"changed", run.Changed,
		"events", run.Events,
		"failed", run.Failed,
	)
	return &run, nil
}

// Forget drops the previous state of every child, so the next refresh
// seeds instead of diffing. Used after the store is reset.
func (t *Tracker) Forget() { t.last.Clear() }

// ListRefreshRuns returns the newest runs first.
func (t *Tracker) ListRefreshRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	return t.store.ListRefreshRuns(ctx, limit)
}

// timelineChanged compares two timelines over the range both windows cover,
// so a window sliding forward with the clock is not reported as a change.
func timelineChanged(prev, next []custody.Period, prevW, nextW custody.Window) bool {
	common := custody.Window{From: prevW.From, To: prevW.To}
	if nextW.From.After(common.From) {
		common.From = nextW.From
	}
	if nextW.To.Before(common.To) {
		common.To = nextW.To
	}
	if !common.From.Before(common.To) {
		return true
	}
	return custody.Fingerprint(clip(prev, common)) != custody.Fingerprint(clip(next, common))
}

func clip(periods []custody.Period, w custody.Window) []custody.Period {
	out := make([]custody.Period, 0, len(periods))
	for _, p := range periods {
		if c, ok := p.Clip(w); ok {
			out = append(out, c)
		}
	}
	return out
}

// pruneExpired drops presence switches whose expiry has passed.
func (t *Tracker) pruneExpired(ctx context.Context, childID string, now time.Time) error {
	overrides, err := t.store.ListOverrides(ctx, childID)
	if err != nil {
		return err
	}
	for _, o := range overrides {
		if o.Source == SourcePresence && !o.End.IsZero() && !o.End.After(now) {
			if err := t.store.DeleteOverride(ctx, o.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

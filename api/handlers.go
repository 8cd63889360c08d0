/*
handlers.go - HTTP API handlers for the custody engine

PURPOSE:
  Exposes the tracker via REST API. Handles HTTP request/response and JSON
  serialization; every rule lives in custody/ and schedule/.

ENDPOINTS:
  Children:
    GET    /api/children                        List children
    POST   /api/children                        Create child (settings validated)
    GET    /api/children/{id}                   Get child
    PUT    /api/children/{id}                   Update child
    DELETE /api/children/{id}                   Delete child

  Timeline:
    GET    /api/children/{id}/timeline?from&to  Resolved periods + defects
    GET    /api/children/{id}/status?at         Presence and next transitions
    GET    /api/children/{id}/calendar.ics      iCalendar feed

  Manual periods:
    GET    /api/children/{id}/overrides         List overrides
    POST   /api/children/{id}/overrides         Add ad-hoc override
    POST   /api/children/{id}/presence          Force presence on/off
    DELETE /api/overrides/{id}                  Delete override
    GET    /api/children/{id}/exceptions        List recurring exceptions
    POST   /api/children/{id}/exceptions        Add recurring exception
    DELETE /api/exceptions/{id}                 Delete exception

  Calendars:
    GET    /api/holidays?year                   Public holidays
    GET    /api/vacations?zone&school_year      School vacations

  Refresh:
    POST   /api/refresh                         Refresh all children now
    GET    /api/refresh/runs?limit              Refresh history

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with:
  - 400: Invalid input, invalid settings or window (custody.IsClientError)
  - 404: Unknown child, override or exception (custody.IsNotFound)
  - 502: Vacation source unavailable
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Deploy behind a reverse proxy that handles it.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/mo"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/factory"
	"github.com/warp/custody-engine/feed"
	"github.com/warp/custody-engine/internal/logger"
	"github.com/warp/custody-engine/notify"
	"github.com/warp/custody-engine/schedule"
	"github.com/warp/custody-engine/vacation"
)

const (
	defaultTimelineSpan = 31 * 24 * time.Hour
	maxTimelineSpan     = 2 * 366 * 24 * time.Hour
	feedPast            = 31 * 24 * time.Hour
	feedFuture          = 366 * 24 * time.Hour
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears the store for demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tracker   *schedule.Tracker
	Vacations vacation.Source
	Store     Resetter
	Scheduler *RefreshScheduler

	location *time.Location
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. vacations and store may be nil.
func NewHandler(tracker *schedule.Tracker, vacations vacation.Source, store Resetter, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Tracker:   tracker,
		Vacations: vacations,
		Store:     store,
		location:  loc,
		now:       time.Now,
	}
}

// =============================================================================
// CHILD HANDLERS
// =============================================================================

// ListChildren returns all children.
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.Tracker.ListChildren(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list children", err)
		return
	}

	dtos := make([]ChildDTO, len(children))
	for i, c := range children {
		dtos[i] = toChildDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChild returns a single child.
func (h *Handler) GetChild(w http.ResponseWriter, r *http.Request) {
	child, err := h.Tracker.GetChild(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get child", err)
		return
	}
	writeJSON(w, http.StatusOK, toChildDTO(*child))
}

// CreateChild creates a child; the settings must parse into a snapshot.
func (h *Handler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req ChildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	child, err := h.Tracker.CreateChild(r.Context(), schedule.Child{
		Name:     req.Name,
		Location: req.Location,
		Notes:    req.Notes,
		Settings: string(req.Settings),
	})
	if err != nil {
		h.fail(w, r, "Failed to create child", err)
		return
	}

	logger.Info(r.Context(), "child created", "child_id", child.ID)
	writeJSON(w, http.StatusCreated, toChildDTO(*child))
}

// UpdateChild replaces a child's fields and settings.
func (h *Handler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	var req ChildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	child, err := h.Tracker.UpdateChild(r.Context(), schedule.Child{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Location: req.Location,
		Notes:    req.Notes,
		Settings: string(req.Settings),
	})
	if err != nil {
		h.fail(w, r, "Failed to update child", err)
		return
	}
	writeJSON(w, http.StatusOK, toChildDTO(*child))
}

// DeleteChild removes a child with its overrides and exceptions.
func (h *Handler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteChild(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "Failed to delete child", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TIMELINE HANDLERS
// =============================================================================

// GetTimeline resolves the child's periods over [from, to). Both accept
// RFC3339 instants or dates (midnight in the server zone). Defaults to the
// next 31 days.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	from, err := h.parseInstant(r.URL.Query().Get("from"), now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339 or YYYY-MM-DD)", err)
		return
	}
	to, err := h.parseInstant(r.URL.Query().Get("to"), from.Add(defaultTimelineSpan))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339 or YYYY-MM-DD)", err)
		return
	}
	if to.Sub(from) > maxTimelineSpan {
		writeError(w, http.StatusBadRequest, "Window too large (max two years)", nil)
		return
	}

	comp, err := h.Tracker.Timeline(r.Context(), chi.URLParam(r, "id"), custody.Window{From: from, To: to})
	if err != nil {
		h.fail(w, r, "Failed to resolve timeline", err)
		return
	}

	loc := comp.Snapshot.Location()
	dto := TimelineDTO{
		ChildID:     comp.Child.ID,
		From:        from.In(loc),
		To:          to.In(loc),
		Periods:     make([]PeriodDTO, len(comp.Resolution.Periods)),
		Fingerprint: notify.FormatFingerprint(comp.Fingerprint),
	}
	for i, p := range comp.Resolution.Periods {
		dto.Periods[i] = toPeriodDTO(p, loc)
	}
	for _, d := range comp.Resolution.Defects {
		dto.Defects = append(dto.Defects, DefectDTO{Entry: d.Entry, Error: d.Err.Error()})
	}
	if comp.VacationErr != nil {
		dto.VacationError = comp.VacationErr.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetStatus projects the child's status at ?at (default now).
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	at, err := h.parseInstant(r.URL.Query().Get("at"), h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339 or YYYY-MM-DD)", err)
		return
	}

	comp, err := h.Tracker.Compute(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		h.fail(w, r, "Failed to compute status", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(comp))
}

// GetCalendar exports the last month and the next year as iCalendar.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	comp, err := h.Tracker.Timeline(r.Context(), chi.URLParam(r, "id"), custody.Window{
		From: now.Add(-feedPast),
		To:   now.Add(feedFuture),
	})
	if err != nil {
		h.fail(w, r, "Failed to resolve timeline", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "custody-"+comp.Child.ID+".ics"))
	if err := feed.Encode(w, comp.Child, comp.Resolution.Periods); err != nil {
		logger.Error(r.Context(), "calendar export failed", err, "child_id", comp.Child.ID)
	}
}

// =============================================================================
// OVERRIDE HANDLERS
// =============================================================================

// ListOverrides returns the child's overrides.
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.Tracker.ListOverrides(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to list overrides", err)
		return
	}
	dtos := make([]OverrideDTO, len(overrides))
	for i, o := range overrides {
		dtos[i] = toOverrideDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOverride adds an ad-hoc period.
func (h *Handler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	o := custody.Override{Start: req.Start, Label: req.Label, Presence: custody.Presence(req.Presence)}
	if o.Presence == "" {
		o.Presence = custody.PresenceOn
	}
	if req.End != nil {
		o.End = *req.End
	}

	stored, err := h.Tracker.AddOverride(r.Context(), chi.URLParam(r, "id"), o)
	if err != nil {
		h.fail(w, r, "Failed to create override", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOverrideDTO(*stored))
}

// SetPresence forces presence on or off, optionally for a duration.
func (h *Handler) SetPresence(w http.ResponseWriter, r *http.Request) {
	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	childID := chi.URLParam(r, "id")

	if req.State == "auto" {
		if err := h.Tracker.ClearPresence(r.Context(), childID); err != nil {
			h.fail(w, r, "Failed to clear presence", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}

	expiry := mo.None[time.Time]()
	switch {
	case req.Until != nil:
		expiry = mo.Some(*req.Until)
	case req.Duration != "":
		d, err := time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid duration (use e.g. 2h30m)", err)
			return
		}
		expiry = mo.Some(h.now().Add(d))
	}

	stored, err := h.Tracker.SetPresence(r.Context(), childID, custody.Presence(req.State), expiry)
	if err != nil {
		h.fail(w, r, "Failed to set presence", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOverrideDTO(*stored))
}

// DeleteOverride removes an override.
func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteOverride(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "Failed to delete override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXCEPTION HANDLERS
// =============================================================================

// ListExceptions returns the child's recurring exceptions.
func (h *Handler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	exceptions, err := h.Tracker.ListExceptions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to list exceptions", err)
		return
	}
	dtos := make([]ExceptionDTO, len(exceptions))
	for i, e := range exceptions {
		dtos[i] = toExceptionDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateException adds a weekly recurring exception.
func (h *Handler) CreateException(w http.ResponseWriter, r *http.Request) {
	var req ExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	weekday, err := factory.ParseWeekday(req.Weekday)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid weekday", err)
		return
	}
	start, err := custody.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_time (use HH:MM)", err)
		return
	}
	end, err := custody.ParseClock(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_time (use HH:MM)", err)
		return
	}

	ex := custody.RecurringException{
		Weekday: weekday,
		Start:   start,
		End:     end,
		From:    mo.PointerToOption(req.From),
		Until:   mo.PointerToOption(req.Until),
		Label:   req.Label,
	}
	stored, err := h.Tracker.AddException(r.Context(), chi.URLParam(r, "id"), ex)
	if err != nil {
		h.fail(w, r, "Failed to create exception", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExceptionDTO(*stored))
}

// DeleteException removes a recurring exception.
func (h *Handler) DeleteException(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteException(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "Failed to delete exception", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// ListHolidays returns the public holidays of ?year (default current year).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.now().In(h.location).Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1970 || y > 2200 {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	holidays := custody.HolidaysForYear(year)
	dtos := make([]HolidayDTO, len(holidays))
	for i, hd := range holidays {
		dtos[i] = HolidayDTO{Date: hd.Date, Name: hd.Name, Weekday: weekdayName(hd.Date.Weekday())}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListVacations returns the school vacations of ?zone for ?school_year
// (default: the current school year).
func (h *Handler) ListVacations(w http.ResponseWriter, r *http.Request) {
	if h.Vacations == nil {
		writeError(w, http.StatusServiceUnavailable, "No vacation source configured", nil)
		return
	}
	zone := vacation.NormalizeZone(r.URL.Query().Get("zone"))
	if zone == "" {
		writeError(w, http.StatusBadRequest, "zone is required", nil)
		return
	}
	schoolYear := r.URL.Query().Get("school_year")
	if schoolYear == "" {
		schoolYear = vacation.SchoolYearOf(custody.DateOf(h.now().In(h.location)))
	}

	entries, err := h.Vacations.Fetch(r.Context(), zone, schoolYear)
	if err != nil {
		logger.Error(r.Context(), "vacation fetch failed", err, "zone", zone, "school_year", schoolYear)
		writeError(w, http.StatusBadGateway, "Vacation source unavailable", err)
		return
	}
	if entries == nil {
		entries = []custody.VacationCalendarEntry{}
	}
	writeJSON(w, http.StatusOK, VacationsDTO{Zone: zone, SchoolYear: schoolYear, Entries: entries})
}

// =============================================================================
// REFRESH HANDLERS
// =============================================================================

// TriggerRefresh recomputes every child now.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	var (
		run *schedule.RefreshRun
		err error
	)
	if h.Scheduler != nil {
		run, err = h.Scheduler.RunNow(r.Context())
	} else {
		run, err = h.Tracker.Refresh(r.Context(), h.now(), TriggerManual)
	}
	if err != nil {
		h.fail(w, r, "Refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRefreshRunDTO(*run))
}

// ListRefreshRuns returns the newest refresh runs (?limit, default 20).
func (h *Handler) ListRefreshRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Tracker.ListRefreshRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "Failed to list refresh runs", err)
		return
	}
	dtos := make([]RefreshRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRefreshRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps engine errors to a status: 400 for bad input, 404 for unknown
// IDs, 500 (logged) for everything else.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case custody.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case custody.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		logger.Error(r.Context(), message, err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// parseInstant accepts RFC3339 or a date (midnight in the server zone).
// Empty input returns def.
func (h *Handler) parseInstant(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := custody.ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return d.Midnight(h.location), nil
}

func weekdayName(wd time.Weekday) string { return strings.ToLower(wd.String()) }

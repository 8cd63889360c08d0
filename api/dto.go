/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model (custody.Period, schedule.Child, ...) from the external
  API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TIME FORMATS:
  Instants are RFC3339 with offset; calendar dates are "2006-01-02";
  clocks are "15:04".

VALIDATION:
  Validation is done in handlers and the tracker, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/settings.go: SettingsJSON, the settings payload
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/notify"
	"github.com/warp/custody-engine/schedule"
)

// =============================================================================
// CHILDREN
// =============================================================================

// ChildDTO represents a child in API responses.
type ChildDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Location  string          `json:"location,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// ChildRequest is the body of POST/PUT /api/children.
type ChildRequest struct {
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Notes    string          `json:"notes"`
	Settings json.RawMessage `json:"settings"`
}

func toChildDTO(c schedule.Child) ChildDTO {
	settings := json.RawMessage(c.Settings)
	if !json.Valid(settings) {
		settings = json.RawMessage("null")
	}
	return ChildDTO{
		ID:        c.ID,
		Name:      c.Name,
		Location:  c.Location,
		Notes:     c.Notes,
		Settings:  settings,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// TIMELINE & STATUS
// =============================================================================

// PeriodDTO is one resolved custody period.
type PeriodDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Kind  string    `json:"kind"`
	Label string    `json:"label"`
}

func toPeriodDTO(p custody.Period, loc *time.Location) PeriodDTO {
	return PeriodDTO{Start: p.Start.In(loc), End: p.End.In(loc), Kind: string(p.Kind), Label: p.Label}
}

// DefectDTO is a vacation entry the resolver skipped.
type DefectDTO struct {
	Entry custody.VacationCalendarEntry `json:"entry"`
	Error string                        `json:"error"`
}

// TimelineDTO is the response of GET /api/children/{id}/timeline.
type TimelineDTO struct {
	ChildID       string      `json:"child_id"`
	From          time.Time   `json:"from"`
	To            time.Time   `json:"to"`
	Periods       []PeriodDTO `json:"periods"`
	Defects       []DefectDTO `json:"defects,omitempty"`
	VacationError string      `json:"vacation_error,omitempty"`
	Fingerprint   string      `json:"fingerprint"`
}

// StatusDTO is the response of GET /api/children/{id}/status.
type StatusDTO struct {
	ChildID       string           `json:"child_id"`
	At            time.Time        `json:"at"`
	Present       bool             `json:"present"`
	Current       *PeriodDTO       `json:"current,omitempty"`
	NextArrival   *time.Time       `json:"next_arrival,omitempty"`
	NextDeparture *time.Time       `json:"next_departure,omitempty"`
	DaysRemaining *decimal.Decimal `json:"days_remaining,omitempty"`
	NextVacation  *PeriodDTO       `json:"next_vacation,omitempty"`
	Phase         string           `json:"phase"`
	VacationName  string           `json:"vacation_name,omitempty"`
	Rhythm        string           `json:"rhythm"`
	Fingerprint   string           `json:"fingerprint"`
	VacationError string           `json:"vacation_error,omitempty"`
}

func toStatusDTO(comp *schedule.Computation) StatusDTO {
	loc := comp.Snapshot.Location()
	st := comp.Status
	dto := StatusDTO{
		ChildID:      comp.Child.ID,
		At:           st.At.In(loc),
		Present:      st.Active,
		Phase:        comp.Phase,
		VacationName: comp.VacationName,
		Rhythm:       comp.Snapshot.Rhythm().Label(),
		Fingerprint:  notify.FormatFingerprint(comp.Fingerprint),
	}
	if p, ok := st.Current.Get(); ok {
		v := toPeriodDTO(p, loc)
		dto.Current = &v
	}
	if t, ok := st.NextArrival.Get(); ok {
		t = t.In(loc)
		dto.NextArrival = &t
	}
	if t, ok := st.NextDeparture.Get(); ok {
		t = t.In(loc)
		dto.NextDeparture = &t
	}
	if d, ok := st.DaysRemaining.Get(); ok {
		dto.DaysRemaining = &d
	}
	if p, ok := st.NextVacation.Get(); ok {
		v := toPeriodDTO(p, loc)
		dto.NextVacation = &v
	}
	if comp.VacationErr != nil {
		dto.VacationError = comp.VacationErr.Error()
	}
	return dto
}

// =============================================================================
// OVERRIDES & EXCEPTIONS
// =============================================================================

// OverrideDTO represents an ad-hoc period or a presence switch.
type OverrideDTO struct {
	ID        string     `json:"id"`
	ChildID   string     `json:"child_id"`
	Source    string     `json:"source"`
	Presence  string     `json:"presence"`
	Label     string     `json:"label"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	CreatedAt string     `json:"created_at"`
}

func toOverrideDTO(o schedule.Override) OverrideDTO {
	dto := OverrideDTO{
		ID:        o.ID,
		ChildID:   o.ChildID,
		Source:    o.Source,
		Presence:  string(o.Presence),
		Label:     o.Label,
		Start:     o.Start,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
	if !o.End.IsZero() {
		end := o.End
		dto.End = &end
	}
	return dto
}

// OverrideRequest is the body of POST /api/children/{id}/overrides.
// Presence defaults to "on".
type OverrideRequest struct {
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end"`
	Label    string     `json:"label"`
	Presence string     `json:"presence"`
}

// PresenceRequest is the body of POST /api/children/{id}/presence.
// State "auto" clears the switch. Duration is a Go duration ("2h30m");
// Until wins when both are given.
type PresenceRequest struct {
	State    string     `json:"state"`
	Duration string     `json:"duration"`
	Until    *time.Time `json:"until"`
}

// ExceptionDTO represents a weekly recurring exception.
type ExceptionDTO struct {
	ID        string        `json:"id"`
	ChildID   string        `json:"child_id"`
	Weekday   string        `json:"weekday"`
	Start     string        `json:"start_time"`
	End       string        `json:"end_time"`
	From      *custody.Date `json:"from,omitempty"`
	Until     *custody.Date `json:"until,omitempty"`
	Label     string        `json:"label"`
	CreatedAt string        `json:"created_at"`
}

func toExceptionDTO(e schedule.Exception) ExceptionDTO {
	dto := ExceptionDTO{
		ID:        e.ID,
		ChildID:   e.ChildID,
		Weekday:   weekdayName(e.Weekday),
		Start:     e.Start.String(),
		End:       e.End.String(),
		Label:     e.Label,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if d, ok := e.From.Get(); ok {
		dto.From = &d
	}
	if d, ok := e.Until.Get(); ok {
		dto.Until = &d
	}
	return dto
}

// ExceptionRequest is the body of POST /api/children/{id}/exceptions.
// Weekday accepts English or French names.
type ExceptionRequest struct {
	Weekday string        `json:"weekday"`
	Start   string        `json:"start_time"`
	End     string        `json:"end_time"`
	From    *custody.Date `json:"from"`
	Until   *custody.Date `json:"until"`
	Label   string        `json:"label"`
}

// =============================================================================
// CALENDARS
// =============================================================================

// HolidayDTO is one public holiday.
type HolidayDTO struct {
	Date    custody.Date `json:"date"`
	Name    string       `json:"name"`
	Weekday string       `json:"weekday"`
}

// VacationsDTO is the response of GET /api/vacations.
type VacationsDTO struct {
	Zone       string                          `json:"zone"`
	SchoolYear string                          `json:"school_year"`
	Entries    []custody.VacationCalendarEntry `json:"entries"`
}

// =============================================================================
// REFRESH & SCENARIOS
// =============================================================================

// RefreshRunDTO represents one refresh pass.
type RefreshRunDTO struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"`
	Status      string `json:"status"`
	Children    int    `json:"children"`
	Changed     int    `json:"changed"`
	Failed      int    `json:"failed"`
	Events      int    `json:"events"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

func toRefreshRunDTO(r schedule.RefreshRun) RefreshRunDTO {
	return RefreshRunDTO{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Status:      r.Status,
		Children:    r.Children,
		Changed:     r.Changed,
		Failed:      r.Failed,
		Events:      r.Events,
		Error:       r.Error,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		CompletedAt: r.CompletedAt.Format(time.RFC3339),
	}
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Children    int    `json:"children"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

/*
notify.go - Transition events for custody timelines

PURPOSE:
  The refresh loop compares each child's previous and current state and
  publishes what changed: arrivals, departures, vacation start/end and
  timeline rewrites (settings, overrides or vacation calendar changed).

SUBJECTS:
  <prefix>.<child id>.<event type>, e.g. custody.9b1d....arrival

SEE ALSO:
  - schedule/tracker.go: Calls Diff and Publish on every refresh
  - nats.go: The NATS publisher
*/
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/warp/custody-engine/custody"
)

// EventType names a transition.
type EventType string

const (
	EventArrival         EventType = "arrival"
	EventDeparture       EventType = "departure"
	EventVacationStart   EventType = "vacation_start"
	EventVacationEnd     EventType = "vacation_end"
	EventTimelineChanged EventType = "timeline_changed"
)

// Phase names.
const (
	PhaseSchool   = "school"
	PhaseVacation = "vacation"
)

// PeriodJSON is the wire form of a custody period.
type PeriodJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Kind  string    `json:"kind"`
	Label string    `json:"label"`
}

// NewPeriodJSON converts a period for the wire.
func NewPeriodJSON(p custody.Period) *PeriodJSON {
	return &PeriodJSON{Start: p.Start, End: p.End, Kind: string(p.Kind), Label: p.Label}
}

// Event is one published transition.
type Event struct {
	Type          EventType   `json:"type"`
	ChildID       string      `json:"child_id"`
	At            time.Time   `json:"at"`
	Period        *PeriodJSON `json:"period,omitempty"`
	Vacation      string      `json:"vacation,omitempty"`
	NextArrival   *time.Time  `json:"next_arrival,omitempty"`
	NextDeparture *time.Time  `json:"next_departure,omitempty"`
	Fingerprint   string      `json:"fingerprint"`
}

// Status is the part of a computation that transitions are derived from.
type Status struct {
	Custody      custody.Status
	Phase        string
	VacationName string
	Fingerprint  uint64
}

// FormatFingerprint renders a timeline fingerprint as 16 hex digits.
func FormatFingerprint(fp uint64) string {
	s := strconv.FormatUint(fp, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}

// Diff derives the events between two successive states of one child.
// ChildID is left to the caller.
func Diff(prev, next Status) []Event {
	var events []Event
	base := func(t EventType) Event {
		e := Event{Type: t, At: next.Custody.At, Fingerprint: FormatFingerprint(next.Fingerprint)}
		if at, ok := next.Custody.NextArrival.Get(); ok {
			e.NextArrival = &at
		}
		if at, ok := next.Custody.NextDeparture.Get(); ok {
			e.NextDeparture = &at
		}
		return e
	}

	switch {
	case !prev.Custody.Active && next.Custody.Active:
		e := base(EventArrival)
		if p, ok := next.Custody.Current.Get(); ok {
			e.Period = NewPeriodJSON(p)
		}
		events = append(events, e)
	case prev.Custody.Active && !next.Custody.Active:
		e := base(EventDeparture)
		if p, ok := prev.Custody.Current.Get(); ok {
			e.Period = NewPeriodJSON(p)
		}
		events = append(events, e)
	}

	if prev.Phase != next.Phase {
		switch next.Phase {
		case PhaseVacation:
			e := base(EventVacationStart)
			e.Vacation = next.VacationName
			events = append(events, e)
		case PhaseSchool:
			e := base(EventVacationEnd)
			e.Vacation = prev.VacationName
			events = append(events, e)
		}
	}

	if prev.Fingerprint != next.Fingerprint {
		events = append(events, base(EventTimelineChanged))
	}
	return events
}

// =============================================================================
// PUBLISHERS
// =============================================================================

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

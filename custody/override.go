package custody

import (
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// =============================================================================
// OVERRIDES - Highest priority layer
// =============================================================================

// Presence is the effect of an override on the range it covers.
type Presence string

const (
	PresenceOn  Presence = "on"  // Child is present, whatever the rules say
	PresenceOff Presence = "off" // Child is absent, whatever the rules say
)

func (p Presence) Valid() bool { return p == PresenceOn || p == PresenceOff }

// DefaultOverrideLabel is used for ad-hoc periods without a label.
const DefaultOverrideLabel = "Garde exceptionnelle"

// Override is an externally supplied ad-hoc period. It removes everything it
// intersects; PresenceOn additionally contributes a KindOverride period.
// A zero End means open-ended (until the end of the resolved window).
type Override struct {
	ID       string
	Start    time.Time
	End      time.Time
	Label    string
	Presence Presence
}

// Validate checks the override bounds and presence.
func (o Override) Validate() error {
	if !o.Presence.Valid() {
		return fmt.Errorf("override presence %q: %w", o.Presence, ErrInvalidRule)
	}
	if o.Start.IsZero() {
		return fmt.Errorf("override start: %w", ErrInvalidWindow)
	}
	if !o.End.IsZero() && !o.Start.Before(o.End) {
		return &InvalidWindowError{From: o.Start, To: o.End}
	}
	return nil
}

// PresenceOverride is the forced on/off switch: from now until expiry, or
// open-ended when no expiry is given.
func PresenceOverride(presence Presence, now time.Time, expiry mo.Option[time.Time]) Override {
	label := "Présence forcée"
	if presence == PresenceOff {
		label = "Absence forcée"
	}
	return Override{
		Start:    now,
		End:      expiry.OrElse(time.Time{}),
		Label:    label,
		Presence: presence,
	}
}

// span returns the override as a period bounded by w.
func (o Override) span(w Window) Period {
	end := o.End
	if end.IsZero() {
		end = w.To
	}
	label := o.Label
	if label == "" {
		label = DefaultOverrideLabel
	}
	return Period{Start: o.Start, End: end, Kind: KindOverride, Label: label}
}

// =============================================================================
// RECURRING EXCEPTIONS - Weekly override windows
// =============================================================================

// RecurringException is a weekly window (e.g. every Wednesday 12:00-18:00)
// optionally bounded by dates. Start > End wraps past midnight.
type RecurringException struct {
	ID      string
	Weekday time.Weekday
	Start   Clock
	End     Clock
	From    mo.Option[Date]
	Until   mo.Option[Date]
	Label   string
}

// DefaultExceptionLabel is used for recurring exceptions without a label.
const DefaultExceptionLabel = "Exception récurrente"

// Validate checks the weekday, both clocks and the optional date bounds.
func (ex RecurringException) Validate() error {
	if _, ok := rruleWeekdays[ex.Weekday]; !ok {
		return &InvalidRuleError{Rule: "exception", Field: "weekday", Reason: fmt.Sprintf("not a weekday: %d", int(ex.Weekday))}
	}
	if !ex.Start.Valid() || !ex.End.Valid() || ex.Start == ex.End {
		return &InvalidRuleError{Rule: "exception", Field: "time", Reason: ex.Start.String() + "-" + ex.End.String()}
	}
	from, hasFrom := ex.From.Get()
	until, hasUntil := ex.Until.Get()
	if hasFrom && hasUntil && until.Before(from) {
		return &InvalidRuleError{Rule: "exception", Field: "until", Reason: "before " + from.String()}
	}
	return nil
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// ExpandRecurring turns recurring exceptions into presence-on overrides
// intersecting w. Invalid exceptions are skipped.
func ExpandRecurring(exceptions []RecurringException, w Window, loc *time.Location) []Override {
	if loc == nil {
		loc = time.UTC
	}
	var out []Override
	for _, ex := range exceptions {
		occurrences, err := ex.occurrences(w, loc)
		if err != nil {
			continue
		}
		label := ex.Label
		if label == "" {
			label = DefaultExceptionLabel
		}
		for _, start := range occurrences {
			day := DateOf(start.In(loc))
			end := day.At(ex.End, loc)
			if !end.After(start) {
				end = day.AddDays(1).At(ex.End, loc)
			}
			if !end.After(w.From) || !start.Before(w.To) {
				continue
			}
			out = append(out, Override{
				ID:       fmt.Sprintf("%s@%s", ex.ID, day),
				Start:    start,
				End:      end,
				Label:    label,
				Presence: PresenceOn,
			})
		}
	}
	return out
}

func (ex RecurringException) occurrences(w Window, loc *time.Location) ([]time.Time, error) {
	wd, ok := rruleWeekdays[ex.Weekday]
	if !ok || !ex.Start.Valid() || !ex.End.Valid() {
		return nil, fmt.Errorf("recurring exception %s: %w", ex.ID, ErrInvalidRule)
	}

	// Occurrences starting the day before w.From may still run into it.
	first := DateOf(w.From.In(loc)).AddDays(-1)
	if from, ok := ex.From.Get(); ok && from.After(first) {
		first = from
	}
	first = onOrAfter(first, ex.Weekday)

	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   first.At(ex.Start, loc),
		Byweekday: []rrule.Weekday{wd},
	}
	if until, ok := ex.Until.Get(); ok {
		if until.Before(first) {
			return nil, nil
		}
		opt.Until = until.At(ex.Start, loc)
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurring exception %s: %w", ex.ID, err)
	}
	return rule.Between(opt.Dtstart, w.To, true), nil
}

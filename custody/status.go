package custody

import (
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS PROJECTOR - Point queries over a resolved timeline
// =============================================================================
//
// All queries take resolver output (sorted, non-overlapping). Periods that
// touch (one ends exactly where the next starts) form one presence span: the
// child does not leave at a vacation/weekend seam, so no transition is
// reported there. None means the timeline does not reach far enough and the
// caller should resolve a wider window.

// Status aggregates every point query at one instant.
type Status struct {
	At            time.Time
	Active        bool
	Current       mo.Option[Period]
	NextArrival   mo.Option[time.Time]
	NextDeparture mo.Option[time.Time]
	DaysRemaining mo.Option[decimal.Decimal]
	NextVacation  mo.Option[Period]
}

// Project evaluates all queries at t.
func Project(periods []Period, t time.Time) Status {
	return Status{
		At:            t,
		Active:        IsActive(periods, t),
		Current:       CurrentPeriod(periods, t),
		NextArrival:   NextArrival(periods, t),
		NextDeparture: NextDeparture(periods, t),
		DaysRemaining: DaysRemaining(periods, t),
		NextVacation:  NextVacation(periods, t),
	}
}

// IsActive reports whether t falls inside a period.
func IsActive(periods []Period, t time.Time) bool {
	return CurrentPeriod(periods, t).IsPresent()
}

// CurrentPeriod returns the period containing t.
func CurrentPeriod(periods []Period, t time.Time) mo.Option[Period] {
	for _, p := range periods {
		if p.Contains(t) {
			return mo.Some(p)
		}
		if p.Start.After(t) {
			break
		}
	}
	return mo.None[Period]()
}

// NextArrival is the first presence start strictly after t.
func NextArrival(periods []Period, t time.Time) mo.Option[time.Time] {
	for _, s := range spans(periods) {
		if s.From.After(t) {
			return mo.Some(s.From)
		}
	}
	return mo.None[time.Time]()
}

// NextDeparture is the first presence end strictly after t.
func NextDeparture(periods []Period, t time.Time) mo.Option[time.Time] {
	for _, s := range spans(periods) {
		if s.To.After(t) {
			return mo.Some(s.To)
		}
	}
	return mo.None[time.Time]()
}

// DaysRemaining is the fractional number of days until the next transition:
// the departure when active, the arrival otherwise. Rounded to two places,
// never negative.
func DaysRemaining(periods []Period, t time.Time) mo.Option[decimal.Decimal] {
	next := NextArrival(periods, t)
	if IsActive(periods, t) {
		next = NextDeparture(periods, t)
	}
	at, ok := next.Get()
	if !ok {
		return mo.None[decimal.Decimal]()
	}
	seconds := int64(at.Sub(t) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	days := decimal.NewFromInt(seconds).Div(decimal.NewFromInt(86400)).Round(2)
	return mo.Some(days)
}

// NextVacation is the first vacation period starting strictly after t.
func NextVacation(periods []Period, t time.Time) mo.Option[Period] {
	for _, p := range periods {
		if p.Kind == KindVacation && p.Start.After(t) {
			return mo.Some(p)
		}
	}
	return mo.None[Period]()
}

// spans coalesces touching periods into presence spans.
func spans(periods []Period) []Window {
	out := make([]Window, 0, len(periods))
	for _, p := range periods {
		if n := len(out); n > 0 && !p.Start.After(out[n-1].To) {
			if p.End.After(out[n-1].To) {
				out[n-1].To = p.End
			}
			continue
		}
		out = append(out, Window{From: p.Start, To: p.End})
	}
	return out
}

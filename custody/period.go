package custody

import (
	"sort"
	"time"
)

// =============================================================================
// PERIOD - The core concept of a custody timeline
// =============================================================================

// Period is a half-open interval [Start, End) during which the child is with
// this configuration. Resolver output is ordered by Start and never overlaps.
type Period struct {
	Start time.Time
	End   time.Time
	Kind  Kind
	Label string
}

// Kind records which rule layer produced a period.
type Kind string

const (
	KindClassic         Kind = "classic"          // Plain rhythm period
	KindClassicExtended Kind = "classic_extended" // Rhythm period bridged over a holiday
	KindVacation        Kind = "vacation"         // School vacation allocation
	KindOverride        Kind = "override"         // Manual ad-hoc period
)

// Valid reports whether Start < End.
func (p Period) Valid() bool { return p.Start.Before(p.End) }

// Contains returns true if t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Overlaps returns true if the two periods share any instant. Touching
// periods (p.End == o.Start) do not overlap.
func (p Period) Overlaps(o Period) bool {
	return p.Start.Before(o.End) && o.Start.Before(p.End)
}

func (p Period) Duration() time.Duration { return p.End.Sub(p.Start) }

// Clip restricts p to w. The second result is false when nothing is left.
// Clipping never changes Kind or Label.
func (p Period) Clip(w Window) (Period, bool) {
	if p.Start.Before(w.From) {
		p.Start = w.From
	}
	if p.End.After(w.To) {
		p.End = w.To
	}
	return p, p.Valid()
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + ") " + string(p.Kind)
}

// =============================================================================
// WINDOW - Requested resolution range
// =============================================================================

// Window is the half-open query range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow validates and returns a window.
func NewWindow(from, to time.Time) (Window, error) {
	w := Window{From: from, To: to}
	return w, w.Validate()
}

// Validate fails with ErrInvalidWindow when From >= To.
func (w Window) Validate() error {
	if !w.From.Before(w.To) {
		return &InvalidWindowError{From: w.From, To: w.To}
	}
	return nil
}

// Pad widens the window by d on both sides.
func (w Window) Pad(d time.Duration) Window {
	return Window{From: w.From.Add(-d), To: w.To.Add(d)}
}

// Years returns every calendar year (in loc) touched by the window.
func (w Window) Years(loc *time.Location) []int {
	first, last := w.From.In(loc).Year(), w.To.In(loc).Year()
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// =============================================================================
// INTERVAL ARITHMETIC
// =============================================================================

// clipAll clips every period to w and drops empty remainders.
func clipAll(periods []Period, w Window) []Period {
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		if c, ok := p.Clip(w); ok {
			out = append(out, c)
		}
	}
	return out
}

// subtract removes from every period each sub-interval covered by a mask.
// A period fully inside a mask disappears; a mask strictly inside a period
// splits it into two remnants that keep the original kind and label.
func subtract(periods []Period, masks []Period) []Period {
	if len(masks) == 0 {
		return periods
	}
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		remaining := []Period{p}
		for _, m := range masks {
			var next []Period
			for _, r := range remaining {
				if !r.Overlaps(m) {
					next = append(next, r)
					continue
				}
				if r.Start.Before(m.Start) {
					left := r
					left.End = m.Start
					next = append(next, left)
				}
				if m.End.Before(r.End) {
					right := r
					right.Start = m.End
					next = append(next, right)
				}
			}
			remaining = next
		}
		out = append(out, remaining...)
	}
	return out
}

// flatten sorts a single layer and trims later periods that overlap earlier
// ones, so a layer never competes with itself.
func flatten(periods []Period) []Period {
	sorted := append([]Period(nil), periods...)
	sortPeriods(sorted)
	out := make([]Period, 0, len(sorted))
	for _, p := range sorted {
		if n := len(out); n > 0 && p.Start.Before(out[n-1].End) {
			p.Start = out[n-1].End
		}
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

func sortPeriods(periods []Period) {
	sort.SliceStable(periods, func(i, j int) bool {
		if periods[i].Start.Equal(periods[j].Start) {
			return periods[i].End.Before(periods[j].End)
		}
		return periods[i].Start.Before(periods[j].Start)
	})
}

// checkOrdered verifies the resolver output invariant.
func checkOrdered(periods []Period) error {
	for i := 1; i < len(periods); i++ {
		if periods[i].Start.Before(periods[i-1].End) {
			return &OverlapError{First: periods[i-1], Second: periods[i]}
		}
	}
	return nil
}

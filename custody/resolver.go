/*
resolver.go - Period Resolver, the engine root

PURPOSE:
  Combines the four rule layers of one configuration into a single ordered,
  non-overlapping timeline for a window.

PRIORITY (highest first):
  1. Overrides        manual periods and forced absences
  2. Vacation         allocated school vacation shares
  3. Bridged classic  weekends extended over a holiday
  4. Plain classic    the recurring rhythm

  A higher layer removes every instant it covers from all lower layers.
  Partial overlap truncates the lower period at the boundary; a higher
  period strictly inside a lower one splits it into two remnants. Bridged
  and plain classic periods never compete: they come from the same rhythm.

ALGORITHM:
  1. Validate the window (ErrInvalidWindow)
  2. Holidays for every year the padded window touches
  3. Allocate each vacation entry for its start year; malformed entries are
     recorded as defects and skipped
  4. Generate + Extend the rhythm on a window padded by a week, then clip,
     so a weekend bridged across the window edge looks the same whichever
     window is requested
  5. Subtract overrides from vacation and classic, vacation from classic
  6. Merge, sort, verify the non-overlap invariant

DETERMINISM:
  No clock reads, no randomness, no shared state. Identical inputs always
  produce identical output; Fingerprint(res.Periods) is stable across calls.

SEE ALSO:
  - rhythm.go, bridge.go, vacation.go, override.go: The layers
  - status.go: Point queries over the result
  - schedule/tracker.go: Calls Resolve with stored settings
*/
package custody

import (
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// classicPadding lets weekends that straddle the window edge be bridged.
const classicPadding = 7 * 24 * time.Hour

// EntryDefect is a vacation entry skipped during resolution.
type EntryDefect struct {
	Entry VacationCalendarEntry
	Err   error
}

// Resolution is the output of Resolve.
type Resolution struct {
	Window  Window
	Periods []Period
	Defects []EntryDefect
}

// Resolve computes the custody timeline of snap over w.
func Resolve(snap Snapshot, entries []VacationCalendarEntry, overrides []Override, w Window) (Resolution, error) {
	if err := w.Validate(); err != nil {
		return Resolution{}, err
	}
	if snap.IsZero() {
		return Resolution{}, rhythmErr("type", "snapshot was not built with NewSnapshot")
	}
	h := snap.Handover()
	padded := w.Pad(classicPadding)
	holidays := HolidaySetFor(padded.Years(h.loc())...)

	res := Resolution{Window: w}

	// Overrides: masks for everything below, on-periods for the output.
	var masks, manual []Period
	for _, o := range overrides {
		if err := o.Validate(); err != nil {
			continue
		}
		span, ok := o.span(w).Clip(w)
		if !ok {
			continue
		}
		masks = append(masks, span)
		if o.Presence == PresenceOn {
			manual = append(manual, span)
		}
	}
	manual = flatten(manual)

	// Vacation layer.
	var vacation []Period
	for _, e := range entries {
		alloc, err := Allocate(e, snap.Vacation(), h, e.Start.Year)
		if err != nil {
			res.Defects = append(res.Defects, EntryDefect{Entry: e, Err: err})
			continue
		}
		if p, ok := alloc.Get(); ok {
			vacation = append(vacation, p)
		}
	}
	vacation = flatten(clipAll(vacation, w))
	vacation = subtract(vacation, masks)

	// Classic layer.
	classic := Generate(snap.Rhythm(), h, padded)
	if Bridges(snap.Rhythm()) {
		classic = Extend(classic, holidays, h)
	}
	classic = flatten(clipAll(classic, w))
	classic = subtract(classic, vacation)
	classic = subtract(classic, masks)

	periods := make([]Period, 0, len(manual)+len(vacation)+len(classic))
	periods = append(periods, manual...)
	periods = append(periods, vacation...)
	periods = append(periods, classic...)
	sortPeriods(periods)

	if err := checkOrdered(periods); err != nil {
		return Resolution{}, err
	}
	res.Periods = periods
	return res, nil
}

// Fingerprint hashes a timeline so callers can detect changes between two
// resolutions without comparing period by period.
func Fingerprint(periods []Period) uint64 {
	var b strings.Builder
	for _, p := range periods {
		b.WriteString(strconv.FormatInt(p.Start.Unix(), 10))
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(p.End.Unix(), 10))
		b.WriteByte('|')
		b.WriteString(string(p.Kind))
		b.WriteByte('|')
		b.WriteString(p.Label)
		b.WriteByte('\n')
	}
	return xxh3.HashString(b.String())
}

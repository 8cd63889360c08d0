/*
vacation.go - School vacation allocation

PURPOSE:
  Turns one vacation calendar entry into the share of it that belongs to this
  configuration, if any.

EFFECTIVE RANGE:
  Published entries say "classes end on Saturday X, resume on Monday Y".
  Custody actually changes hands at:

    start  primary:      the Friday on/before X, at the arrival time
           middle/high:  the Saturday on/after X, at the arrival time
    end    the Sunday on/before the last day off (Y-1 when Y is a Monday),
           at the departure time

ALLOCATION:
  Non-summer entries are split at the exact instant midpoint of the range.
  The rule's parity selects the years it applies in; the split mode selects
  which half it gets:

    split       parity  year    share
    odd_first   odd     odd     first half
    odd_first   even    even    second half
    odd_second  odd     odd     second half
    odd_second  even    even    first half

  Summer entries follow the summer rule when one is set:

    auto                 July when year parity != rule parity, else August
    july/august_first    applies when year parity != rule parity
    july/august_second   applies when year parity == rule parity

  Month and fortnight slices are cut at the arrival time of Jul 16, Aug 1 and
  Aug 16, and clipped to the effective range. Adjacent slices share their cut
  instant, so complementary rules tile the range with no gap and no overlap.

SEE ALSO:
  - resolver.go: Calls Allocate for every entry
  - vacation/: Fetches the entries
*/
package custody

import (
	"strings"
	"time"

	"github.com/samber/mo"
)

// VacationCalendarEntry is one published school vacation for one zone.
type VacationCalendarEntry struct {
	Name       string `json:"name"`
	Zone       string `json:"zone"`
	SchoolYear string `json:"school_year"` // "2025-2026"
	Start      Date   `json:"start_date"`  // First day without school
	End        Date   `json:"end_date"`    // Day classes resume
}

// Validate rejects entries that cannot be allocated.
func (e VacationCalendarEntry) Validate() error {
	if e.Start.IsZero() || e.End.IsZero() {
		return &MalformedEntryError{Entry: e, Reason: "missing date"}
	}
	if e.Start.After(e.End) {
		return &MalformedEntryError{Entry: e, Reason: "start after end"}
	}
	return nil
}

// IsSummer detects the summer vacation by name or by month.
func (e VacationCalendarEntry) IsSummer() bool {
	name := strings.ToLower(e.Name)
	return strings.Contains(name, "été") || e.Start.Month == time.July || e.Start.Month == time.August
}

// EffectiveRange returns the handover-adjusted range of an entry as a
// vacation period labelled with the entry name.
func EffectiveRange(e VacationCalendarEntry, level SchoolLevel, h Handover) (Period, error) {
	if err := e.Validate(); err != nil {
		return Period{}, err
	}

	var first Date
	if level == LevelMiddle || level == LevelHigh {
		first = onOrAfter(e.Start, time.Saturday)
	} else {
		first = onOrBefore(e.Start, time.Friday)
	}

	lastOff := e.End
	if lastOff.Weekday() == time.Monday {
		lastOff = lastOff.AddDays(-1)
	}
	last := onOrBefore(lastOff, time.Sunday)

	p := Period{
		Start: h.ArriveOn(first),
		End:   h.DepartOn(last),
		Kind:  KindVacation,
		Label: "Vacances scolaires - " + e.Name,
	}
	if !p.Valid() {
		// Very short entries: fall back to the published dates.
		p.Start, p.End = h.ArriveOn(e.Start), h.DepartOn(e.End)
	}
	if !p.Valid() {
		return Period{}, &MalformedEntryError{Entry: e, Reason: "empty effective range"}
	}
	return p, nil
}

// Halves splits a range at start + (end-start)/2. The halves share the
// midpoint instant: first = [start, mid), second = [mid, end).
func Halves(p Period) (Period, Period) {
	mid := p.Start.Add(p.End.Sub(p.Start) / 2)
	first, second := p, p
	first.End = mid
	second.Start = mid
	first.Label += " (1ère moitié)"
	second.Label += " (2ème moitié)"
	return first, second
}

// Allocate returns the part of entry that belongs to rule in calendarYear.
// It returns None when the rule does not apply that year, and a
// *MalformedEntryError for entries with start after end.
func Allocate(e VacationCalendarEntry, rule VacationRule, h Handover, calendarYear int) (mo.Option[Period], error) {
	rng, err := EffectiveRange(e, rule.Level, h)
	if err != nil {
		return mo.None[Period](), err
	}
	yearParity := ParityOf(calendarYear)

	if summer, ok := rule.Summer.Get(); ok && e.IsSummer() {
		return allocateSummer(rng, summer, rule.Parity, yearParity, calendarYear, h), nil
	}

	if yearParity != rule.Parity {
		return mo.None[Period](), nil
	}
	first, second := Halves(rng)
	takeFirst := rule.Parity == ParityOdd
	if rule.Split == SplitOddSecond {
		takeFirst = !takeFirst
	}
	if takeFirst {
		return mo.Some(first), nil
	}
	return mo.Some(second), nil
}

func allocateSummer(rng Period, rule SummerRule, parity, yearParity Parity, year int, h Handover) mo.Option[Period] {
	jul16 := h.ArriveOn(NewDate(year, time.July, 16))
	aug1 := h.ArriveOn(NewDate(year, time.August, 1))
	aug16 := h.ArriveOn(NewDate(year, time.August, 16))

	var from, to time.Time
	var suffix string
	switch rule {
	case SummerAuto:
		if yearParity != parity {
			from, to, suffix = rng.Start, aug1, "Juillet"
		} else {
			from, to, suffix = aug1, rng.End, "Août"
		}
	case SummerJulyFirstHalf:
		from, to, suffix = rng.Start, jul16, "Juillet, 1ère quinzaine"
	case SummerJulySecondHalf:
		from, to, suffix = jul16, aug1, "Juillet, 2ème quinzaine"
	case SummerAugustFirstHalf:
		from, to, suffix = aug1, aug16, "Août, 1ère quinzaine"
	case SummerAugustSecondHalf:
		from, to, suffix = aug16, rng.End, "Août, 2ème quinzaine"
	default:
		return mo.None[Period]()
	}

	switch rule {
	case SummerJulyFirstHalf, SummerAugustFirstHalf:
		if yearParity == parity {
			return mo.None[Period]()
		}
	case SummerJulySecondHalf, SummerAugustSecondHalf:
		if yearParity != parity {
			return mo.None[Period]()
		}
	}

	slice := Period{Start: from, End: to, Kind: KindVacation, Label: rng.Label + " (" + suffix + ")"}
	clipped, ok := slice.Clip(Window{From: rng.Start, To: rng.End})
	if !ok {
		return mo.None[Period]()
	}
	return mo.Some(clipped)
}

// CheckDisjoint reports an AmbiguousAllocationError when two allocations of
// the same entry overlap. Callers comparing two configurations use it; the
// resolver itself only ever sees one configuration.
func CheckDisjoint(entry string, a, b mo.Option[Period]) error {
	pa, okA := a.Get()
	pb, okB := b.Get()
	if okA && okB && pa.Overlaps(pb) {
		return &AmbiguousAllocationError{Entry: entry, First: pa, Second: pb}
	}
	return nil
}

// VacationAt returns the entry whose effective range covers t, whoever it is
// allocated to. Malformed entries are ignored.
func VacationAt(entries []VacationCalendarEntry, level SchoolLevel, h Handover, t time.Time) mo.Option[VacationCalendarEntry] {
	for _, e := range entries {
		rng, err := EffectiveRange(e, level, h)
		if err != nil {
			continue
		}
		if rng.Contains(t) {
			return mo.Some(e)
		}
	}
	return mo.None[VacationCalendarEntry]()
}

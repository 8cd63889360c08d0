package custody

import "time"

// =============================================================================
// HOLIDAY BRIDGE EXTENDER
// =============================================================================

const (
	suffixMonday = " + Lundi férié"
	suffixFriday = " + Vendredi férié"
	suffixBridge = " + Pont"
)

// Bridges reports whether rule produces weekends that Extend may bridge.
// Rotations (2-2-3, 2-2-5-5) can yield Friday to Sunday segments that abut
// the next segment, so they are never bridged.
func Bridges(rule RhythmRule) bool {
	switch r := rule.(type) {
	case WeekParity:
		return r.Span == SpanWeekend
	case BiweeklyCycle:
		return r.Span == SpanWeekend
	}
	return false
}

// Extend bridges weekend-shaped classic periods over adjacent holidays.
// The resolver only applies it to rules for which Bridges is true.
//
// A period qualifies when it is KindClassic, starts on a Friday and ends on
// the Sunday two days later. A holiday on the following Monday moves the end
// to Monday's departure time; a holiday on the Friday itself moves the start
// to Thursday's arrival time. Everything else passes through unchanged, so
// applying Extend to its own output is a no-op.
func Extend(periods []Period, holidays HolidaySet, h Handover) []Period {
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		if p.Kind != KindClassic {
			out = append(out, p)
			continue
		}
		startDay, endDay := h.Local(p.Start), h.Local(p.End)
		if startDay.Weekday() != time.Friday || endDay.Weekday() != time.Sunday || endDay.DaysSince(startDay) != 2 {
			out = append(out, p)
			continue
		}

		fridayOff := holidays.Contains(startDay)
		mondayOff := holidays.Contains(endDay.AddDays(1))
		if !fridayOff && !mondayOff {
			out = append(out, p)
			continue
		}

		if fridayOff {
			p.Start = h.ArriveOn(startDay.AddDays(-1))
		}
		if mondayOff {
			p.End = h.DepartOn(endDay.AddDays(1))
		}
		switch {
		case fridayOff && mondayOff:
			p.Label += suffixBridge
		case fridayOff:
			p.Label += suffixFriday
		default:
			p.Label += suffixMonday
		}
		p.Kind = KindClassicExtended
		out = append(out, p)
	}
	return out
}

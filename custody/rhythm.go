package custody

import "time"

// =============================================================================
// CLASSIC RHYTHM GENERATOR
// =============================================================================

// cycleReference is the Monday all cycle phases are counted from. Counting
// from a fixed day keeps odd and even configurations complementary across
// year boundaries, which ISO week numbers (53-week years) cannot guarantee.
var cycleReference = NewDate(1970, time.January, 5)

// Generate returns the classic periods of rule overlapping w, clipped to w,
// ordered by start. The output for a window is the same whichever way the
// window is sliced: periods only depend on the calendar, never on w.From.
func Generate(rule RhythmRule, h Handover, w Window) []Period {
	if rule == nil {
		return nil
	}
	// Start two cycles early so periods already running at w.From are seen.
	from := h.Local(w.From).AddDays(-14)
	to := h.Local(w.To)

	periods := clipAll(rule.periods(h, from, to), w)
	sortPeriods(periods)
	return periods
}

func (r WeekParity) periods(h Handover, from, to Date) []Period {
	label := "Garde - " + r.Label()
	var out []Period
	for monday := onOrBefore(from, time.Monday); !monday.After(to); monday = monday.AddDays(7) {
		_, week := monday.ISOWeek()
		if ParityOf(week) != r.Parity {
			continue
		}
		first := monday
		if r.Span == SpanWeekend {
			first = monday.AddDays(4)
		}
		out = append(out, Period{
			Start: h.ArriveOn(first),
			End:   h.DepartOn(monday.AddDays(6)),
			Kind:  KindClassic,
			Label: label,
		})
	}
	return out
}

func (r BiweeklyCycle) periods(h Handover, from, to Date) []Period {
	label := "Garde - " + r.Label()
	var out []Period
	for day0 := onOrBefore(from, r.Anchor); !day0.After(to); day0 = day0.AddDays(7) {
		if ParityOf(cycleWeek(day0, r.Anchor)) != r.Parity {
			continue
		}
		p := Period{Start: h.ArriveOn(day0), Kind: KindClassic, Label: label}
		if r.Span == SpanWeekend {
			p.End = h.DepartOn(day0.AddDays(2))
		} else {
			// One handover instant: the other parity starts exactly here.
			p.End = h.ArriveOn(day0.AddDays(7))
		}
		out = append(out, p)
	}
	return out
}

func (r TwoTwoThree) periods(h Handover, from, to Date) []Period {
	label := "Garde - " + r.Label()
	var out []Period
	for day0 := onOrBefore(from, r.Anchor); !day0.After(to); day0 = day0.AddDays(7) {
		out = append(out, onSegments(h, day0, label, [][2]int{{0, 2}, {4, 7}})...)
	}
	return out
}

func (r TwoTwoFiveFive) periods(h Handover, from, to Date) []Period {
	label := "Garde - " + r.Label()
	var out []Period
	for day0 := onOrBefore(from, r.Anchor); !day0.After(to); day0 = day0.AddDays(7) {
		if cycleWeek(day0, r.Anchor)%2 != 0 {
			continue
		}
		out = append(out, onSegments(h, day0, label, [][2]int{{0, 2}, {4, 9}})...)
	}
	return out
}

func (Custom) periods(Handover, Date, Date) []Period { return nil }

// onSegments turns [fromDay, toDay) day offsets into periods handing over at
// the arrival time.
func onSegments(h Handover, day0 Date, label string, segments [][2]int) []Period {
	out := make([]Period, 0, len(segments))
	for _, seg := range segments {
		out = append(out, Period{
			Start: h.ArriveOn(day0.AddDays(seg[0])),
			End:   h.ArriveOn(day0.AddDays(seg[1])),
			Kind:  KindClassic,
			Label: label,
		})
	}
	return out
}

// cycleWeek numbers the anchor-weekday dates consecutively from the
// reference; d must fall on anchor.
func cycleWeek(d Date, anchor time.Weekday) int {
	ref := onOrAfter(cycleReference, anchor)
	return floorDiv(d.DaysSince(ref), 7)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

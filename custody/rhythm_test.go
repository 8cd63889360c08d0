package custody_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/custody-engine/custody"
)

// =============================================================================
// WEEK PARITY
// =============================================================================

func TestGenerate_AlternateWeekendEven_May2025(t *testing.T) {
	// GIVEN: Even ISO weeks, weekend span, 16:15 -> 19:00
	rule := custody.WeekParity{Parity: custody.ParityEven, Span: custody.SpanWeekend}
	w := window(t, at(2025, time.May, 1, 0, 0), at(2025, time.June, 2, 0, 0))

	// WHEN: Generating May 2025
	periods := custody.Generate(rule, handover(), w)

	// THEN: Weeks 18, 20 and 22 only, Friday 16:15 to Sunday 19:00
	require.Len(t, periods, 3)
	assertPeriod(t, periods[0], at(2025, time.May, 2, 16, 15), at(2025, time.May, 4, 19, 0), custody.KindClassic)
	assertPeriod(t, periods[1], at(2025, time.May, 16, 16, 15), at(2025, time.May, 18, 19, 0), custody.KindClassic)
	assertPeriod(t, periods[2], at(2025, time.May, 30, 16, 15), at(2025, time.June, 1, 19, 0), custody.KindClassic)

	for i, wantWeek := range []int{18, 20, 22} {
		_, week := periods[i].Start.ISOWeek()
		assert.Equal(t, wantWeek, week)
	}
	assert.Equal(t, "Garde - Week-ends alternés", periods[0].Label)
}

func TestGenerate_WeekParityFullWeek(t *testing.T) {
	rule := custody.WeekParity{Parity: custody.ParityOdd, Span: custody.SpanWeek}
	w := window(t, at(2025, time.May, 5, 0, 0), at(2025, time.May, 19, 0, 0))

	periods := custody.Generate(rule, handover(), w)

	// Week 19 (May 5-11) is odd; week 20 is not
	require.Len(t, periods, 1)
	assertPeriod(t, periods[0], at(2025, time.May, 5, 16, 15), at(2025, time.May, 11, 19, 0), custody.KindClassic)
}

func TestGenerate_ClipsToWindow(t *testing.T) {
	// GIVEN: A window starting on a Saturday inside an even weekend
	rule := custody.WeekParity{Parity: custody.ParityEven, Span: custody.SpanWeekend}
	w := window(t, at(2025, time.May, 3, 0, 0), at(2025, time.May, 4, 12, 0))

	periods := custody.Generate(rule, handover(), w)

	// THEN: The weekend is clipped on both sides, kind unchanged
	require.Len(t, periods, 1)
	assertPeriod(t, periods[0], w.From, w.To, custody.KindClassic)
}

func TestGenerate_SlicingIndependent(t *testing.T) {
	rule := custody.BiweeklyCycle{Anchor: time.Friday, Parity: custody.ParityOdd, Span: custody.SpanWeekend}
	full := custody.Generate(rule, handover(), window(t, at(2025, time.January, 1, 0, 0), at(2025, time.July, 1, 0, 0)))
	first := custody.Generate(rule, handover(), window(t, at(2025, time.January, 1, 0, 0), at(2025, time.April, 1, 0, 0)))
	second := custody.Generate(rule, handover(), window(t, at(2025, time.March, 4, 0, 0), at(2025, time.July, 1, 0, 0)))

	seen := map[string]bool{}
	var merged []custody.Period
	for _, p := range append(first, second...) {
		key := p.Start.String() + p.End.String()
		if !seen[key] {
			seen[key] = true
			merged = append(merged, p)
		}
	}

	require.Len(t, merged, len(full))
	for i := range full {
		assertInstant(t, full[i].Start, merged[i].Start)
		assertInstant(t, full[i].End, merged[i].End)
	}
}

// =============================================================================
// CYCLES
// =============================================================================

func TestGenerate_BiweeklyComplementary(t *testing.T) {
	// GIVEN: Two configurations differing only by parity, across the
	// 53-week year 2026
	w := window(t, at(2025, time.January, 1, 0, 0), at(2027, time.February, 1, 0, 0))
	odd := custody.Generate(custody.BiweeklyCycle{Anchor: time.Monday, Parity: custody.ParityOdd, Span: custody.SpanWeek}, handover(), w)
	even := custody.Generate(custody.BiweeklyCycle{Anchor: time.Monday, Parity: custody.ParityEven, Span: custody.SpanWeek}, handover(), w)

	// THEN: Never overlap, and together they tile the whole window
	all := append(append([]custody.Period{}, odd...), even...)
	sortByStart(all)
	assertNoOverlap(t, all)

	assertInstant(t, w.From, all[0].Start)
	assertInstant(t, w.To, all[len(all)-1].End)
	for i := 1; i < len(all); i++ {
		assertInstant(t, all[i-1].End, all[i].Start, "gap at %d", i)
	}
	for _, p := range odd {
		for _, q := range even {
			assert.False(t, p.Overlaps(q))
		}
	}
}

func TestGenerate_WeekParityComplementary(t *testing.T) {
	w := window(t, at(2026, time.November, 1, 0, 0), at(2027, time.March, 1, 0, 0))
	odd := custody.Generate(custody.WeekParity{Parity: custody.ParityOdd, Span: custody.SpanWeek}, handover(), w)
	even := custody.Generate(custody.WeekParity{Parity: custody.ParityEven, Span: custody.SpanWeek}, handover(), w)

	all := append(append([]custody.Period{}, odd...), even...)
	sortByStart(all)
	assertNoOverlap(t, all)

	// Every Monday of the window belongs to exactly one side
	owners := map[custody.Date]int{}
	for _, p := range all {
		owners[custody.DateOf(p.Start)]++
	}
	for d := day(2026, time.November, 2); d.Before(day(2027, time.February, 22)); d = d.AddDays(7) {
		assert.Equal(t, 1, owners[d], "monday %s", d)
	}
}

func TestGenerate_TwoTwoThree(t *testing.T) {
	rule := custody.TwoTwoThree{Anchor: time.Monday}
	w := window(t, at(2025, time.May, 5, 0, 0), at(2025, time.May, 12, 0, 0))

	periods := custody.Generate(rule, handover(), w)

	// Days 0-1 on, 2-3 off, 4-6 on; the previous cycle's last segment runs
	// until Monday's handover
	require.Len(t, periods, 3)
	assertPeriod(t, periods[0], w.From, at(2025, time.May, 5, 16, 15), custody.KindClassic)
	assertPeriod(t, periods[1], at(2025, time.May, 5, 16, 15), at(2025, time.May, 7, 16, 15), custody.KindClassic)
	assertPeriod(t, periods[2], at(2025, time.May, 9, 16, 15), w.To, custody.KindClassic)
}

func TestGenerate_TwoTwoFiveFive(t *testing.T) {
	rule := custody.TwoTwoFiveFive{Anchor: time.Monday}
	w := window(t, at(2025, time.January, 1, 0, 0), at(2025, time.March, 15, 0, 0))

	periods := custody.Generate(rule, handover(), w)
	require.Greater(t, len(periods), 6)

	// Alternating 2-day and 5-day segments, one pair per fortnight
	for _, p := range periods[1 : len(periods)-1] {
		days := p.Duration().Hours() / 24
		assert.Contains(t, []float64{2, 5}, days, "segment %s", p)
	}
	for i := 3; i < len(periods)-1; i++ {
		assertInstant(t, periods[i-2].Start.AddDate(0, 0, 14), periods[i].Start)
	}
}

func TestGenerate_Custom(t *testing.T) {
	w := window(t, at(2025, time.January, 1, 0, 0), at(2026, time.January, 1, 0, 0))
	assert.Empty(t, custody.Generate(custody.Custom{}, handover(), w))
}

func sortByStart(periods []custody.Period) {
	for i := 1; i < len(periods); i++ {
		for j := i; j > 0 && periods[j].Start.Before(periods[j-1].Start); j-- {
			periods[j], periods[j-1] = periods[j-1], periods[j]
		}
	}
}

package custody_test

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/custody-engine/custody"
)

func halfRule(parity custody.Parity) custody.VacationRule {
	return custody.VacationRule{
		Zone:   "C",
		Parity: parity,
		Split:  custody.SplitOddFirst,
		Level:  custody.LevelPrimary,
	}
}

func summerRule(parity custody.Parity, rule custody.SummerRule) custody.VacationRule {
	r := halfRule(parity)
	r.Summer = mo.Some(rule)
	return r
}

// =============================================================================
// EFFECTIVE RANGE
// =============================================================================

func TestEffectiveRange_Noel2025_Primary(t *testing.T) {
	rng, err := custody.EffectiveRange(noelEntry(), custody.LevelPrimary, handover())
	require.NoError(t, err)

	// Saturday 20/12 -> Friday 19/12 pick-up; resume Monday 05/01 -> Sunday 04/01
	assertPeriod(t, rng, at(2025, time.December, 19, 16, 15), at(2026, time.January, 4, 19, 0), custody.KindVacation)
	assert.Equal(t, "Vacances scolaires - Vacances de Noël", rng.Label)
}

func TestEffectiveRange_MiddleSchoolStartsSaturday(t *testing.T) {
	rng, err := custody.EffectiveRange(noelEntry(), custody.LevelMiddle, handover())
	require.NoError(t, err)

	assertInstant(t, at(2025, time.December, 20, 16, 15), rng.Start)
	assertInstant(t, at(2026, time.January, 4, 19, 0), rng.End)
}

func TestEffectiveRange_Malformed(t *testing.T) {
	e := noelEntry()
	e.Start, e.End = e.End, e.Start

	_, err := custody.EffectiveRange(e, custody.LevelPrimary, handover())

	require.ErrorIs(t, err, custody.ErrMalformedEntry)
	var malformed *custody.MalformedEntryError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "Vacances de Noël", malformed.Entry.Name)
}

// =============================================================================
// HALF SPLIT
// =============================================================================

func TestAllocate_Noel2025_OddFirstHalf(t *testing.T) {
	// WHEN: Odd parity in odd year 2025
	alloc, err := custody.Allocate(noelEntry(), halfRule(custody.ParityOdd), handover(), 2025)
	require.NoError(t, err)

	// THEN: First half, midpoint to the second
	p, ok := alloc.Get()
	require.True(t, ok)
	mid := time.Date(2025, time.December, 27, 17, 37, 30, 0, paris)
	assertPeriod(t, p, at(2025, time.December, 19, 16, 15), mid, custody.KindVacation)
	assert.Equal(t, "Vacances scolaires - Vacances de Noël (1ère moitié)", p.Label)
}

func TestAllocate_Noel2025_EvenGetsNothingInOddYear(t *testing.T) {
	alloc, err := custody.Allocate(noelEntry(), halfRule(custody.ParityEven), handover(), 2025)
	require.NoError(t, err)
	assert.True(t, alloc.IsAbsent())
}

func TestAllocate_EvenSecondHalfInEvenYear(t *testing.T) {
	e := custody.VacationCalendarEntry{
		Name:  "Vacances d'Hiver",
		Start: day(2026, time.February, 21),
		End:   day(2026, time.March, 9),
	}
	alloc, err := custody.Allocate(e, halfRule(custody.ParityEven), handover(), 2026)
	require.NoError(t, err)

	p, ok := alloc.Get()
	require.True(t, ok)
	rng, err := custody.EffectiveRange(e, custody.LevelPrimary, handover())
	require.NoError(t, err)
	_, second := custody.Halves(rng)
	assertInstant(t, second.Start, p.Start)
	assertInstant(t, rng.End, p.End)
}

func TestAllocate_OddSecondSplit(t *testing.T) {
	rule := halfRule(custody.ParityOdd)
	rule.Split = custody.SplitOddSecond

	alloc, err := custody.Allocate(noelEntry(), rule, handover(), 2025)
	require.NoError(t, err)

	p, ok := alloc.Get()
	require.True(t, ok)
	assertInstant(t, time.Date(2025, time.December, 27, 17, 37, 30, 0, paris), p.Start)
	assertInstant(t, at(2026, time.January, 4, 19, 0), p.End)
}

func TestHalves_Complementary(t *testing.T) {
	// GIVEN: Every entry of a school year, including one across a DST change
	entries := []custody.VacationCalendarEntry{noelEntry(), toussaintEntry()}

	for _, e := range entries {
		rng, err := custody.EffectiveRange(e, custody.LevelPrimary, handover())
		require.NoError(t, err)

		first, second := custody.Halves(rng)

		// THEN: No gap, no overlap, exact instant midpoint
		assertInstant(t, rng.Start, first.Start)
		assertInstant(t, first.End, second.Start)
		assertInstant(t, rng.End, second.End)
		assert.False(t, first.Overlaps(second))
		assert.Equal(t, rng.Duration(), first.Duration()+second.Duration())
		assertInstant(t, rng.Start.Add(rng.End.Sub(rng.Start)/2), first.End)
		assert.NoError(t, custody.CheckDisjoint(e.Name, mo.Some(first), mo.Some(second)))
	}
}

func TestCheckDisjoint_Ambiguous(t *testing.T) {
	rng, err := custody.EffectiveRange(noelEntry(), custody.LevelPrimary, handover())
	require.NoError(t, err)
	first, _ := custody.Halves(rng)

	err = custody.CheckDisjoint("Noël", mo.Some(first), mo.Some(rng))

	require.ErrorIs(t, err, custody.ErrAmbiguousAllocation)
	assert.True(t, custody.IsClientError(err))
	assert.NoError(t, custody.CheckDisjoint("Noël", mo.Some(first), mo.None[custody.Period]()))
}

// =============================================================================
// SUMMER
// =============================================================================

func summer2024() custody.VacationCalendarEntry {
	return summerEntry(2024, day(2024, time.July, 6), day(2024, time.September, 2))
}

func summer2025() custody.VacationCalendarEntry {
	return summerEntry(2025, day(2025, time.July, 5), day(2025, time.September, 1))
}

func TestAllocate_SummerAuto_EvenYearAugust(t *testing.T) {
	alloc, err := custody.Allocate(summer2024(), summerRule(custody.ParityEven, custody.SummerAuto), handover(), 2024)
	require.NoError(t, err)

	p, ok := alloc.Get()
	require.True(t, ok)
	assertPeriod(t, p, at(2024, time.August, 1, 16, 15), at(2024, time.September, 1, 19, 0), custody.KindVacation)
	assert.Contains(t, p.Label, "Août")
}

func TestAllocate_SummerAuto_OddYearJuly(t *testing.T) {
	alloc, err := custody.Allocate(summer2025(), summerRule(custody.ParityEven, custody.SummerAuto), handover(), 2025)
	require.NoError(t, err)

	p, ok := alloc.Get()
	require.True(t, ok)
	assertPeriod(t, p, at(2025, time.July, 4, 16, 15), at(2025, time.August, 1, 16, 15), custody.KindVacation)
	assert.Contains(t, p.Label, "Juillet")
}

func TestAllocate_SummerAuto_Complementary(t *testing.T) {
	e := summer2025()
	odd, err := custody.Allocate(e, summerRule(custody.ParityOdd, custody.SummerAuto), handover(), 2025)
	require.NoError(t, err)
	even, err := custody.Allocate(e, summerRule(custody.ParityEven, custody.SummerAuto), handover(), 2025)
	require.NoError(t, err)

	rng, err := custody.EffectiveRange(e, custody.LevelPrimary, handover())
	require.NoError(t, err)

	july, august := even.MustGet(), odd.MustGet()
	assert.NoError(t, custody.CheckDisjoint(e.Name, odd, even))
	assertInstant(t, rng.Start, july.Start)
	assertInstant(t, july.End, august.Start)
	assertInstant(t, rng.End, august.End)
}

func TestAllocate_SummerQuinzaines(t *testing.T) {
	e := summer2025()
	h := handover()

	// First-half rules apply when year parity differs from the rule parity
	alloc, err := custody.Allocate(e, summerRule(custody.ParityEven, custody.SummerJulyFirstHalf), h, 2025)
	require.NoError(t, err)
	p, ok := alloc.Get()
	require.True(t, ok)
	assertPeriod(t, p, at(2025, time.July, 4, 16, 15), at(2025, time.July, 16, 16, 15), custody.KindVacation)

	alloc, err = custody.Allocate(e, summerRule(custody.ParityOdd, custody.SummerJulyFirstHalf), h, 2025)
	require.NoError(t, err)
	assert.True(t, alloc.IsAbsent())

	// Second-half rules apply when the parities match
	alloc, err = custody.Allocate(e, summerRule(custody.ParityOdd, custody.SummerJulySecondHalf), h, 2025)
	require.NoError(t, err)
	p, ok = alloc.Get()
	require.True(t, ok)
	assertPeriod(t, p, at(2025, time.July, 16, 16, 15), at(2025, time.August, 1, 16, 15), custody.KindVacation)

	alloc, err = custody.Allocate(e, summerRule(custody.ParityOdd, custody.SummerAugustSecondHalf), h, 2025)
	require.NoError(t, err)
	p, ok = alloc.Get()
	require.True(t, ok)
	assertPeriod(t, p, at(2025, time.August, 16, 16, 15), at(2025, time.August, 31, 19, 0), custody.KindVacation)

	alloc, err = custody.Allocate(e, summerRule(custody.ParityEven, custody.SummerAugustFirstHalf), h, 2025)
	require.NoError(t, err)
	p, ok = alloc.Get()
	require.True(t, ok)
	assertPeriod(t, p, at(2025, time.August, 1, 16, 15), at(2025, time.August, 16, 16, 15), custody.KindVacation)
}

func TestAllocate_SummerWithoutRuleIsHalved(t *testing.T) {
	alloc, err := custody.Allocate(summer2025(), halfRule(custody.ParityOdd), handover(), 2025)
	require.NoError(t, err)

	p, ok := alloc.Get()
	require.True(t, ok)
	assert.Contains(t, p.Label, "1ère moitié")
	assertInstant(t, at(2025, time.July, 4, 16, 15), p.Start)
}

func TestVacationAt(t *testing.T) {
	entries := []custody.VacationCalendarEntry{toussaintEntry(), noelEntry()}

	found := custody.VacationAt(entries, custody.LevelPrimary, handover(), at(2025, time.December, 24, 12, 0))
	require.True(t, found.IsPresent())
	assert.Equal(t, "Vacances de Noël", found.MustGet().Name)

	assert.True(t, custody.VacationAt(entries, custody.LevelPrimary, handover(), at(2025, time.December, 10, 12, 0)).IsAbsent())
}

package custody_test

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/custody-engine/custody"
)

// =============================================================================
// ERRORS
// =============================================================================

func TestResolve_InvalidWindow(t *testing.T) {
	snap := snapshot(t, evenWeekends(), halfRule(custody.ParityOdd))

	_, err := custody.Resolve(snap, nil, nil, custody.Window{From: at(2025, time.May, 2, 0, 0), To: at(2025, time.May, 1, 0, 0)})

	require.ErrorIs(t, err, custody.ErrInvalidWindow)
	assert.True(t, custody.IsClientError(err))
}

func TestResolve_ZeroSnapshot(t *testing.T) {
	_, err := custody.Resolve(custody.Snapshot{}, nil, nil, window(t, at(2025, time.May, 1, 0, 0), at(2025, time.June, 1, 0, 0)))
	require.ErrorIs(t, err, custody.ErrInvalidRule)
}

func TestNewSnapshot_InvalidRules(t *testing.T) {
	cases := []struct {
		name     string
		rhythm   custody.RhythmRule
		vacation custody.VacationRule
		field    string
	}{
		{"parity type without parity", custody.WeekParity{Span: custody.SpanWeekend}, halfRule(custody.ParityOdd), "parity"},
		{"unknown span", custody.WeekParity{Parity: custody.ParityOdd, Span: "month"}, halfRule(custody.ParityOdd), "span"},
		{"bad anchor", custody.TwoTwoThree{Anchor: time.Weekday(9)}, halfRule(custody.ParityOdd), "cycle_anchor_day"},
		{"biweekly without parity", custody.BiweeklyCycle{Anchor: time.Friday, Span: custody.SpanWeek}, halfRule(custody.ParityOdd), "parity"},
		{"vacation without parity", custody.Custom{}, custody.VacationRule{Level: custody.LevelPrimary}, "parity"},
		{"unknown summer rule", custody.Custom{}, summerRule(custody.ParityOdd, "september"), "summer_rule"},
		{"unknown level", custody.Custom{}, custody.VacationRule{Parity: custody.ParityOdd, Level: "college"}, "school_level"},
		{"nil rhythm", nil, halfRule(custody.ParityOdd), "type"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := custody.NewSnapshot(tc.rhythm, tc.vacation, handover())

			require.ErrorIs(t, err, custody.ErrInvalidRule)
			var ruleErr *custody.InvalidRuleError
			require.ErrorAs(t, err, &ruleErr)
			assert.Equal(t, tc.field, ruleErr.Field)
		})
	}
}

// =============================================================================
// PRIORITY
// =============================================================================

func TestResolve_ClassicInsideVacationRemoved(t *testing.T) {
	// GIVEN: Even weekends and the odd first half of Toussaint 2025
	snap := snapshot(t, evenWeekends(), halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.October, 1, 0, 0), at(2025, time.November, 10, 0, 0))

	// The rhythm alone has the week-42 weekend Fri 17/10 -> Sun 19/10
	alone := custody.Generate(snap.Rhythm(), snap.Handover(), w)
	require.True(t, containsStart(alone, at(2025, time.October, 17, 16, 15)))

	// WHEN: Resolving with the vacation entry
	res, err := custody.Resolve(snap, []custody.VacationCalendarEntry{toussaintEntry()}, nil, w)
	require.NoError(t, err)

	// THEN: The weekend is gone, replaced by the vacation half
	assertNoOverlap(t, res.Periods)
	for _, p := range res.Periods {
		if p.Kind == custody.KindClassic || p.Kind == custody.KindClassicExtended {
			assert.False(t, p.Start.Equal(at(2025, time.October, 17, 16, 15)), "classic weekend inside vacation: %s", p)
		}
	}
	vac := kindOf(res.Periods, custody.KindVacation)
	require.Len(t, vac, 1)
	assertInstant(t, at(2025, time.October, 17, 16, 15), vac[0].Start)

	// Week 44 weekend (Fri 31/10) is in the other half: still classic
	assert.True(t, containsStart(res.Periods, at(2025, time.October, 31, 16, 15)))
}

func TestResolve_PartialOverlapTruncatesClassic(t *testing.T) {
	// GIVEN: Middle school vacation starts Saturday 18/10 16:15, inside the
	// Fri 17/10 -> Sun 19/10 weekend
	vacation := halfRule(custody.ParityOdd)
	vacation.Level = custody.LevelMiddle
	snap := snapshot(t, evenWeekends(), vacation)
	w := window(t, at(2025, time.October, 13, 0, 0), at(2025, time.October, 27, 0, 0))

	res, err := custody.Resolve(snap, []custody.VacationCalendarEntry{toussaintEntry()}, nil, w)
	require.NoError(t, err)

	// THEN: Classic is cut at the vacation start, never the other way round
	require.GreaterOrEqual(t, len(res.Periods), 2)
	assertPeriod(t, res.Periods[0], at(2025, time.October, 17, 16, 15), at(2025, time.October, 18, 16, 15), custody.KindClassic)
	assert.Equal(t, custody.KindVacation, res.Periods[1].Kind)
	assertInstant(t, at(2025, time.October, 18, 16, 15), res.Periods[1].Start)
	assertNoOverlap(t, res.Periods)
}

func TestResolve_OverrideSplitsClassic(t *testing.T) {
	// GIVEN: An odd full week and a forced absence on its Wednesday
	snap := snapshot(t, custody.WeekParity{Parity: custody.ParityOdd, Span: custody.SpanWeek}, halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.May, 5, 0, 0), at(2025, time.May, 12, 0, 0))
	absence := custody.Override{
		ID:       "ov-1",
		Start:    at(2025, time.May, 7, 8, 0),
		End:      at(2025, time.May, 8, 8, 0),
		Presence: custody.PresenceOff,
	}

	res, err := custody.Resolve(snap, nil, []custody.Override{absence}, w)
	require.NoError(t, err)

	// THEN: Two classic remnants around the absence
	require.Len(t, res.Periods, 2)
	assertPeriod(t, res.Periods[0], at(2025, time.May, 5, 16, 15), at(2025, time.May, 7, 8, 0), custody.KindClassic)
	assertPeriod(t, res.Periods[1], at(2025, time.May, 8, 8, 0), at(2025, time.May, 11, 19, 0), custody.KindClassic)
}

func TestResolve_OverrideAboveVacation(t *testing.T) {
	snap := snapshot(t, custody.Custom{}, halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.December, 1, 0, 0), at(2026, time.January, 10, 0, 0))
	manual := custody.Override{
		ID:       "ov-2",
		Start:    at(2025, time.December, 24, 10, 0),
		End:      at(2025, time.December, 29, 10, 0),
		Label:    "Noël chez les grands-parents",
		Presence: custody.PresenceOn,
	}

	res, err := custody.Resolve(snap, []custody.VacationCalendarEntry{noelEntry()}, []custody.Override{manual}, w)
	require.NoError(t, err)

	// Vacation half truncated at the override start; override kept whole
	require.Len(t, res.Periods, 2)
	assertPeriod(t, res.Periods[0], at(2025, time.December, 19, 16, 15), at(2025, time.December, 24, 10, 0), custody.KindVacation)
	assertPeriod(t, res.Periods[1], manual.Start, manual.End, custody.KindOverride)
	assert.Equal(t, "Noël chez les grands-parents", res.Periods[1].Label)
}

func TestResolve_OpenEndedPresence(t *testing.T) {
	snap := snapshot(t, custody.Custom{}, halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.March, 1, 0, 0), at(2025, time.April, 1, 0, 0))
	forced := custody.PresenceOverride(custody.PresenceOn, at(2025, time.March, 10, 9, 0), mo.None[time.Time]())

	res, err := custody.Resolve(snap, nil, []custody.Override{forced}, w)
	require.NoError(t, err)

	require.Len(t, res.Periods, 1)
	assertPeriod(t, res.Periods[0], at(2025, time.March, 10, 9, 0), w.To, custody.KindOverride)
}

// =============================================================================
// BRIDGING THROUGH THE RESOLVER
// =============================================================================

func TestResolve_EasterMondayExtended(t *testing.T) {
	snap := snapshot(t, evenWeekends(), halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.April, 1, 0, 0), at(2025, time.April, 30, 0, 0))

	res, err := custody.Resolve(snap, nil, nil, w)
	require.NoError(t, err)

	found := false
	for _, p := range res.Periods {
		if p.Start.Equal(at(2025, time.April, 18, 16, 15)) {
			found = true
			assertPeriod(t, p, at(2025, time.April, 18, 16, 15), at(2025, time.April, 21, 19, 0), custody.KindClassicExtended)
		}
	}
	assert.True(t, found)
}

func TestResolve_AlternateWeekendsMay2025(t *testing.T) {
	// GIVEN: Even weekends, no vacation entries, no overrides
	snap := snapshot(t, evenWeekends(), halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.May, 1, 0, 0), at(2025, time.June, 2, 0, 0))

	// WHEN: Resolving May 2025
	res, err := custody.Resolve(snap, nil, nil, w)
	require.NoError(t, err)

	// THEN: Weeks 18, 20 and 22 only; the Thursday holidays do not bridge
	require.Len(t, res.Periods, 3)
	assertPeriod(t, res.Periods[0], at(2025, time.May, 2, 16, 15), at(2025, time.May, 4, 19, 0), custody.KindClassic)
	assertPeriod(t, res.Periods[1], at(2025, time.May, 16, 16, 15), at(2025, time.May, 18, 19, 0), custody.KindClassic)
	assertPeriod(t, res.Periods[2], at(2025, time.May, 30, 16, 15), at(2025, time.June, 1, 19, 0), custody.KindClassic)
	for i, wantWeek := range []int{18, 20, 22} {
		_, week := res.Periods[i].Start.ISOWeek()
		assert.Equal(t, wantWeek, week)
	}
	assert.False(t, containsStart(res.Periods, at(2025, time.May, 9, 16, 15)), "week 19")
	assert.False(t, containsStart(res.Periods, at(2025, time.May, 23, 16, 15)), "week 21")
}

func TestResolve_RotationNotBridged(t *testing.T) {
	// GIVEN: A 2-2-3 rotation anchored on Friday; 15 August 2025 is a Friday holiday
	rules := []custody.RhythmRule{
		custody.TwoTwoThree{Anchor: time.Friday},
		custody.TwoTwoFiveFive{Anchor: time.Friday},
	}
	w := window(t, at(2025, time.August, 1, 0, 0), at(2025, time.September, 1, 0, 0))

	for _, rule := range rules {
		snap := snapshot(t, rule, halfRule(custody.ParityOdd))

		// WHEN: Resolving August without vacation entries
		res, err := custody.Resolve(snap, nil, nil, w)
		require.NoError(t, err)

		// THEN: Segments keep their rotation boundaries and plain labels
		assert.Empty(t, kindOf(res.Periods, custody.KindClassicExtended), "%T", rule)
		for _, p := range res.Periods {
			assert.NotContains(t, p.Label, "férié", "%T %s", rule, p)
			assert.NotEqual(t, at(2025, time.August, 14, 16, 15), p.Start, "%T %s", rule, p)
		}
		assertNoOverlap(t, res.Periods)
	}

	snap := snapshot(t, rules[0], halfRule(custody.ParityOdd))
	res, err := custody.Resolve(snap, nil, nil, w)
	require.NoError(t, err)
	require.True(t, containsStart(res.Periods, at(2025, time.August, 15, 16, 15)))
	for _, p := range res.Periods {
		if p.Start.Equal(at(2025, time.August, 15, 16, 15)) {
			assert.Equal(t, custody.KindClassic, p.Kind)
			assertInstant(t, at(2025, time.August, 17, 16, 15), p.End)
		}
	}
}

func TestResolve_BridgeAcrossWindowEdge(t *testing.T) {
	// GIVEN: A window opening on Easter Monday
	snap := snapshot(t, evenWeekends(), halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.April, 21, 0, 0), at(2025, time.April, 28, 0, 0))

	res, err := custody.Resolve(snap, nil, nil, w)
	require.NoError(t, err)

	// THEN: The bridged weekend still shows up, clipped to the window
	require.Len(t, res.Periods, 1)
	assertPeriod(t, res.Periods[0], w.From, at(2025, time.April, 21, 19, 0), custody.KindClassicExtended)
}

// =============================================================================
// DEFECTS, DETERMINISM, NON-OVERLAP
// =============================================================================

func TestResolve_MalformedEntrySkipped(t *testing.T) {
	snap := snapshot(t, evenWeekends(), halfRule(custody.ParityOdd))
	w := window(t, at(2025, time.October, 1, 0, 0), at(2026, time.January, 31, 0, 0))
	bad := custody.VacationCalendarEntry{Name: "Broken", Start: day(2025, time.November, 20), End: day(2025, time.November, 10)}

	res, err := custody.Resolve(snap, []custody.VacationCalendarEntry{toussaintEntry(), bad, noelEntry()}, nil, w)
	require.NoError(t, err)

	require.Len(t, res.Defects, 1)
	assert.Equal(t, "Broken", res.Defects[0].Entry.Name)
	assert.ErrorIs(t, res.Defects[0].Err, custody.ErrMalformedEntry)
	assert.Len(t, kindOf(res.Periods, custody.KindVacation), 2)
}

func TestResolve_Deterministic(t *testing.T) {
	snap := snapshot(t, custody.BiweeklyCycle{Anchor: time.Friday, Parity: custody.ParityOdd, Span: custody.SpanWeekend}, summerRule(custody.ParityEven, custody.SummerAuto))
	entries := []custody.VacationCalendarEntry{toussaintEntry(), noelEntry(), summer2025()}
	w := window(t, at(2025, time.January, 1, 0, 0), at(2026, time.June, 1, 0, 0))

	a, err := custody.Resolve(snap, entries, nil, w)
	require.NoError(t, err)
	b, err := custody.Resolve(snap, entries, nil, w)
	require.NoError(t, err)

	assert.Equal(t, custody.Fingerprint(a.Periods), custody.Fingerprint(b.Periods))
	assert.Len(t, b.Periods, len(a.Periods))
}

func TestResolve_NeverOverlaps(t *testing.T) {
	rhythms := []custody.RhythmRule{
		custody.WeekParity{Parity: custody.ParityEven, Span: custody.SpanWeekend},
		custody.WeekParity{Parity: custody.ParityOdd, Span: custody.SpanWeek},
		custody.BiweeklyCycle{Anchor: time.Wednesday, Parity: custody.ParityEven, Span: custody.SpanWeek},
		custody.TwoTwoThree{Anchor: time.Monday},
		custody.TwoTwoFiveFive{Anchor: time.Thursday},
	}
	vacations := []custody.VacationRule{
		halfRule(custody.ParityOdd),
		halfRule(custody.ParityEven),
		summerRule(custody.ParityOdd, custody.SummerAuto),
		summerRule(custody.ParityEven, custody.SummerAugustSecondHalf),
	}
	entries := []custody.VacationCalendarEntry{summer2024(), toussaintEntry(), noelEntry(), summer2025()}
	overrides := []custody.Override{{
		Start: at(2025, time.July, 20, 10, 0), End: at(2025, time.July, 27, 10, 0), Presence: custody.PresenceOn,
	}}
	w := window(t, at(2024, time.June, 1, 0, 0), at(2026, time.February, 1, 0, 0))

	for _, r := range rhythms {
		for _, v := range vacations {
			res, err := custody.Resolve(snapshot(t, r, v), entries, overrides, w)
			require.NoError(t, err)
			assertNoOverlap(t, res.Periods)
			for _, p := range res.Periods {
				assert.True(t, p.Valid())
				assert.False(t, p.Start.Before(w.From))
				assert.False(t, p.End.After(w.To))
			}
		}
	}
}

func containsStart(periods []custody.Period, start time.Time) bool {
	for _, p := range periods {
		if p.Start.Equal(start) {
			return true
		}
	}
	return false
}

func kindOf(periods []custody.Period, kind custody.Kind) []custody.Period {
	var out []custody.Period
	for _, p := range periods {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

package custody_test

import (
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/custody-engine/custody"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var paris = mustLoad("Europe/Paris")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// at builds a Paris instant.
func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, paris)
}

func day(year int, month time.Month, d int) custody.Date {
	return custody.NewDate(year, month, d)
}

func handover() custody.Handover {
	return custody.Handover{
		Arrival:   custody.MustClock("16:15"),
		Departure: custody.MustClock("19:00"),
		Location:  paris,
	}
}

func window(t *testing.T, from, to time.Time) custody.Window {
	w, err := custody.NewWindow(from, to)
	require.NoError(t, err)
	return w
}

func snapshot(t *testing.T, rhythm custody.RhythmRule, vacation custody.VacationRule) custody.Snapshot {
	if vacation.Parity == "" {
		vacation.Parity = custody.ParityOdd
	}
	if vacation.Level == "" {
		vacation.Level = custody.LevelPrimary
	}
	snap, err := custody.NewSnapshot(rhythm, vacation, handover())
	require.NoError(t, err)
	return snap
}

func assertInstant(t *testing.T, want, got time.Time, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func assertPeriod(t *testing.T, p custody.Period, start, end time.Time, kind custody.Kind) {
	t.Helper()
	assertInstant(t, start, p.Start, "start")
	assertInstant(t, end, p.End, "end")
	assert.Equal(t, kind, p.Kind)
}

func assertNoOverlap(t *testing.T, periods []custody.Period) {
	t.Helper()
	for i := 1; i < len(periods); i++ {
		assert.False(t, periods[i].Start.Before(periods[i-1].End),
			"period %d %s overlaps %s", i, periods[i], periods[i-1])
	}
}

func noelEntry() custody.VacationCalendarEntry {
	return custody.VacationCalendarEntry{
		Name:       "Vacances de Noël",
		Zone:       "C",
		SchoolYear: "2025-2026",
		Start:      day(2025, time.December, 20),
		End:        day(2026, time.January, 5),
	}
}

func toussaintEntry() custody.VacationCalendarEntry {
	return custody.VacationCalendarEntry{
		Name:       "Vacances de la Toussaint",
		Zone:       "C",
		SchoolYear: "2025-2026",
		Start:      day(2025, time.October, 18),
		End:        day(2025, time.November, 3),
	}
}

func summerEntry(year int, start, end custody.Date) custody.VacationCalendarEntry {
	return custody.VacationCalendarEntry{
		Name:       "Vacances d'Été",
		Zone:       "C",
		SchoolYear: fmt.Sprintf("%d-%d", year-1, year),
		Start:      start,
		End:        end,
	}
}

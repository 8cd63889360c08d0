package custody_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/custody-engine/custody"
)

func TestEasterSunday_KnownYears(t *testing.T) {
	cases := map[int]custody.Date{
		2000: day(2000, time.April, 23),
		2019: day(2019, time.April, 21),
		2024: day(2024, time.March, 31),
		2025: day(2025, time.April, 20),
		2026: day(2026, time.April, 5),
		2038: day(2038, time.April, 25),
	}
	for year, want := range cases {
		assert.Equal(t, want, custody.EasterSunday(year), "easter %d", year)
	}
}

func TestHolidaysForYear_2025(t *testing.T) {
	// GIVEN: The 2025 calendar
	holidays := custody.HolidaysForYear(2025)

	// THEN: 8 fixed + 3 movable holidays, ordered by date
	assert.Len(t, holidays, 11)
	for i := 1; i < len(holidays); i++ {
		assert.True(t, holidays[i-1].Date.Before(holidays[i].Date))
	}

	set := custody.HolidaySetFor(2025)
	assert.True(t, set.Contains(day(2025, time.January, 1)))
	assert.True(t, set.Contains(day(2025, time.May, 8)))
	assert.True(t, set.Contains(day(2025, time.July, 14)))
	assert.True(t, set.Contains(day(2025, time.December, 25)))

	// Movable: Easter Monday, Ascension, Whit Monday
	assert.Equal(t, "Lundi de Pâques", set[day(2025, time.April, 21)])
	assert.Equal(t, "Ascension", set[day(2025, time.May, 29)])
	assert.Equal(t, "Lundi de Pentecôte", set[day(2025, time.June, 9)])

	assert.False(t, set.Contains(day(2025, time.April, 20)), "Easter Sunday itself is not listed")
}

func TestHolidaySetFor_MultipleYears(t *testing.T) {
	set := custody.HolidaySetFor(2025, 2026)

	assert.Len(t, set, 22)
	assert.True(t, set.Contains(day(2026, time.April, 6)), "Easter Monday 2026")
	assert.True(t, set.Contains(day(2026, time.May, 14)), "Ascension 2026")
}

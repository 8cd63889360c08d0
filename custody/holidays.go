package custody

import (
	"sort"
	"time"

	"github.com/rickar/cal/v2"
)

// =============================================================================
// HOLIDAY CALENDAR - French public holidays
// =============================================================================

// HolidayDate is one observed public holiday.
type HolidayDate struct {
	Date Date
	Name string
}

// publicHolidays are the holidays that can bridge a custody weekend.
// Fixed dates use cal.CalcDayOfMonth; movable ones are offsets from Easter.
var publicHolidays = []*cal.Holiday{
	{Name: "Jour de l'an", Type: cal.ObservancePublic, Month: time.January, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Fête du Travail", Type: cal.ObservancePublic, Month: time.May, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Victoire 1945", Type: cal.ObservancePublic, Month: time.May, Day: 8, Func: cal.CalcDayOfMonth},
	{Name: "Fête nationale", Type: cal.ObservancePublic, Month: time.July, Day: 14, Func: cal.CalcDayOfMonth},
	{Name: "Assomption", Type: cal.ObservancePublic, Month: time.August, Day: 15, Func: cal.CalcDayOfMonth},
	{Name: "Toussaint", Type: cal.ObservancePublic, Month: time.November, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Armistice 1918", Type: cal.ObservancePublic, Month: time.November, Day: 11, Func: cal.CalcDayOfMonth},
	{Name: "Noël", Type: cal.ObservancePublic, Month: time.December, Day: 25, Func: cal.CalcDayOfMonth},
	{Name: "Lundi de Pâques", Type: cal.ObservancePublic, Offset: 1, Func: calcEasterOffset},
	{Name: "Ascension", Type: cal.ObservancePublic, Offset: 39, Func: calcEasterOffset},
	{Name: "Lundi de Pentecôte", Type: cal.ObservancePublic, Offset: 50, Func: calcEasterOffset},
}

// calcEasterOffset is a cal.HolidayFn placing a holiday h.Offset days after
// Easter Sunday.
func calcEasterOffset(h *cal.Holiday, year int) time.Time {
	e := EasterSunday(year)
	return time.Date(e.Year, e.Month, e.Day+h.Offset, 0, 0, 0, 0, time.UTC)
}

// EasterSunday computes Easter with the anonymous Gregorian algorithm.
func EasterSunday(year int) Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return NewDate(year, time.Month(month), day)
}

// HolidaysForYear returns the public holidays of one year, ordered by date.
func HolidaysForYear(year int) []HolidayDate {
	out := make([]HolidayDate, 0, len(publicHolidays))
	for _, h := range publicHolidays {
		actual, _ := h.Calc(year)
		if actual.IsZero() {
			continue
		}
		out = append(out, HolidayDate{Date: DateOf(actual), Name: h.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// HolidaySet is a date-indexed lookup over one or more years of holidays.
type HolidaySet map[Date]string

// HolidaySetFor merges the holidays of every given year.
func HolidaySetFor(years ...int) HolidaySet {
	set := make(HolidaySet)
	for _, y := range years {
		for _, h := range HolidaysForYear(y) {
			set[h.Date] = h.Name
		}
	}
	return set
}

// Contains reports whether d is a holiday.
func (s HolidaySet) Contains(d Date) bool {
	_, ok := s[d]
	return ok
}

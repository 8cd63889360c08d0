package custody

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil calendar date (no time of day, no zone)
// =============================================================================

// Date is a calendar day. Vacation calendars and holidays are expressed in
// dates; periods are expressed in zoned instants built from a Date and a Clock.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a normalized date (NewDate(2025, 1, 32) is Feb 1).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) utc() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

// Arithmetic
func (d Date) AddDays(n int) Date      { return DateOf(d.utc().AddDate(0, 0, n)) }
func (d Date) DaysSince(other Date) int { return int(d.utc().Sub(other.utc()).Hours() / 24) }

// Comparison
func (d Date) Before(other Date) bool { return d.utc().Before(other.utc()) }
func (d Date) After(other Date) bool  { return d.utc().After(other.utc()) }
func (d Date) IsZero() bool           { return d == Date{} }

// Properties
func (d Date) Weekday() time.Weekday { return d.utc().Weekday() }
func (d Date) ISOWeek() (int, int)   { return d.utc().ISOWeek() }

// At returns the instant of clock c on this day in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// Midnight returns 00:00 of this day in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string { return d.utc().Format(time.DateOnly) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// onOrBefore walks back to the nearest wd (d itself if it matches).
func onOrBefore(d Date, wd time.Weekday) Date {
	back := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDays(-back)
}

// onOrAfter walks forward to the nearest wd (d itself if it matches).
func onOrAfter(d Date, wd time.Weekday) Date {
	fwd := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDays(fwd)
}

// =============================================================================
// CLOCK - Wall-clock handover time
// =============================================================================

// Clock is a local time of day with minute precision, e.g. 16:15.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts "HH:MM" and "HH:MM:SS" (seconds are dropped).
func ParseClock(s string) (Clock, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return Clock{}, fmt.Errorf("invalid clock %q: want HH:MM", s)
}

// MustClock is ParseClock for constants and tests.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Valid() bool { return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60 }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// =============================================================================
// HANDOVER - Where and when the child changes hands
// =============================================================================

// Handover carries the configured arrival/departure times and the zone they
// are expressed in. Shared by the rhythm and vacation layers.
type Handover struct {
	Arrival   Clock
	Departure Clock
	Location  *time.Location
}

// ArriveOn returns the arrival instant on day d.
func (h Handover) ArriveOn(d Date) time.Time { return d.At(h.Arrival, h.loc()) }

// DepartOn returns the departure instant on day d.
func (h Handover) DepartOn(d Date) time.Time { return d.At(h.Departure, h.loc()) }

// Local returns the calendar day of t in the handover zone.
func (h Handover) Local(t time.Time) Date { return DateOf(t.In(h.loc())) }

func (h Handover) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

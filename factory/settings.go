/*
Package factory provides JSON to Go custody settings conversion.

PURPOSE:
  Converts stored child settings (JSON) into a validated custody.Snapshot.
  Settings live in the database as JSON so the arrangement can change
  without code changes; the factory is the single place that knows the
  persisted names.

JSON SCHEMA:
  {
    "custody_type": "alternate_weekend",
    "reference_year_custody": "even",
    "reference_year_vacations": "odd",
    "start_day": "friday",
    "arrival_time": "16:15",
    "departure_time": "19:00",
    "school_level": "primary",
    "zone": "C",
    "vacation_split_mode": "odd_first",
    "summer_rule": "auto",
    "timezone": "Europe/Paris"
  }

CUSTODY TYPES:
  alternate_weekend       -> WeekParity{weekend}
  alternate_week_parity   -> WeekParity{week}
  alternate_week          -> BiweeklyCycle{week}
  weekly_parity           -> WeekParity{span}
  biweekly_cycle          -> BiweeklyCycle{span}
  two_two_three           -> TwoTwoThree
  two_two_five_five       -> TwoTwoFiveFive
  custom                  -> Custom

  "reference_year" is the legacy single parity; it fills whichever of
  reference_year_custody / reference_year_vacations is missing.

USAGE:
  f := factory.NewSettingsFactory(paris)
  snap, err := f.ParseSettings(child.Settings)

SEE ALSO:
  - custody/snapshot.go: Snapshot and rule types
  - factory/presets.go: Ready-made settings
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/vacation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SettingsJSON is the JSON representation of a child's arrangement.
type SettingsJSON struct {
	CustodyType            string `json:"custody_type"`
	ReferenceYear          string `json:"reference_year,omitempty"` // Legacy
	ReferenceYearCustody   string `json:"reference_year_custody,omitempty"`
	ReferenceYearVacations string `json:"reference_year_vacations,omitempty"`
	Span                   string `json:"span,omitempty"`      // weekly_parity / biweekly_cycle only
	StartDay               string `json:"start_day,omitempty"` // Cycle anchor
	ArrivalTime            string `json:"arrival_time"`
	DepartureTime          string `json:"departure_time"`
	SchoolLevel            string `json:"school_level,omitempty"`
	Zone                   string `json:"zone,omitempty"`
	VacationSplitMode      string `json:"vacation_split_mode,omitempty"`
	SummerRule             string `json:"summer_rule,omitempty"`
	Timezone               string `json:"timezone,omitempty"`
}

// Default handover is Friday after school to Sunday evening. Cycles start on
// Monday unless start_day says otherwise.
const (
	DefaultArrival   = "16:15"
	DefaultDeparture = "19:00"
	DefaultStartDay  = "monday"
)

// =============================================================================
// SETTINGS FACTORY
// =============================================================================

// SettingsFactory converts JSON settings to custody snapshots.
type SettingsFactory struct {
	location *time.Location
}

// NewSettingsFactory creates a factory. loc is used when the settings carry
// no timezone.
func NewSettingsFactory(loc *time.Location) *SettingsFactory {
	if loc == nil {
		loc = time.UTC
	}
	return &SettingsFactory{location: loc}
}

// ParseSettings parses a JSON string into a Snapshot.
func (f *SettingsFactory) ParseSettings(jsonStr string) (custody.Snapshot, error) {
	sj, err := Decode(jsonStr)
	if err != nil {
		return custody.Snapshot{}, err
	}
	return f.FromJSON(sj)
}

// Decode unmarshals settings without building a snapshot.
func Decode(jsonStr string) (SettingsJSON, error) {
	var sj SettingsJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return SettingsJSON{}, &custody.InvalidRuleError{Rule: "settings", Field: "json", Reason: err.Error()}
	}
	return sj, nil
}

// FromJSON converts SettingsJSON to a validated Snapshot.
func (f *SettingsFactory) FromJSON(sj SettingsJSON) (custody.Snapshot, error) {
	sj = sj.Normalize()

	loc := f.location
	if sj.Timezone != "" {
		l, err := time.LoadLocation(sj.Timezone)
		if err != nil {
			return custody.Snapshot{}, &custody.InvalidRuleError{Rule: "handover", Field: "timezone", Reason: err.Error()}
		}
		loc = l
	}

	arrival, err := custody.ParseClock(sj.ArrivalTime)
	if err != nil {
		return custody.Snapshot{}, &custody.InvalidRuleError{Rule: "handover", Field: "arrival_time", Reason: err.Error()}
	}
	departure, err := custody.ParseClock(sj.DepartureTime)
	if err != nil {
		return custody.Snapshot{}, &custody.InvalidRuleError{Rule: "handover", Field: "departure_time", Reason: err.Error()}
	}

	rhythm, err := parseRhythm(sj)
	if err != nil {
		return custody.Snapshot{}, err
	}

	rule := custody.VacationRule{
		Zone:   sj.Zone,
		Parity: custody.Parity(sj.ReferenceYearVacations),
		Split:  custody.SplitMode(sj.VacationSplitMode),
		Level:  custody.SchoolLevel(sj.SchoolLevel),
	}
	if sj.SummerRule != "" {
		rule.Summer = mo.Some(custody.SummerRule(sj.SummerRule))
	}

	return custody.NewSnapshot(rhythm, rule, custody.Handover{
		Arrival:   arrival,
		Departure: departure,
		Location:  loc,
	})
}

// Normalize fills defaults and resolves the legacy reference year.
func (sj SettingsJSON) Normalize() SettingsJSON {
	sj.CustodyType = strings.ToLower(strings.TrimSpace(sj.CustodyType))
	if sj.ReferenceYearCustody == "" {
		sj.ReferenceYearCustody = sj.ReferenceYear
	}
	if sj.ReferenceYearVacations == "" {
		sj.ReferenceYearVacations = sj.ReferenceYear
	}
	if sj.ReferenceYearCustody == "" {
		sj.ReferenceYearCustody = string(custody.ParityEven)
	}
	if sj.ReferenceYearVacations == "" {
		sj.ReferenceYearVacations = string(custody.ParityEven)
	}
	if sj.StartDay == "" {
		sj.StartDay = DefaultStartDay
	}
	if sj.ArrivalTime == "" {
		sj.ArrivalTime = DefaultArrival
	}
	if sj.DepartureTime == "" {
		sj.DepartureTime = DefaultDeparture
	}
	if sj.SchoolLevel == "" {
		sj.SchoolLevel = string(custody.LevelPrimary)
	}
	if sj.VacationSplitMode == "" {
		sj.VacationSplitMode = string(custody.SplitOddFirst)
	}
	sj.Zone = vacation.NormalizeZone(sj.Zone)
	return sj
}

// ToJSON converts a Snapshot back to its settings form.
func (f *SettingsFactory) ToJSON(snap custody.Snapshot) SettingsJSON {
	h := snap.Handover()
	v := snap.Vacation()
	sj := SettingsJSON{
		ReferenceYearVacations: string(v.Parity),
		ArrivalTime:            h.Arrival.String(),
		DepartureTime:          h.Departure.String(),
		SchoolLevel:            string(v.Level),
		Zone:                   v.Zone,
		VacationSplitMode:      string(v.Split),
		Timezone:               snap.Location().String(),
	}
	if s, ok := v.Summer.Get(); ok {
		sj.SummerRule = string(s)
	}

	switch r := snap.Rhythm().(type) {
	case custody.WeekParity:
		sj.CustodyType = "alternate_week_parity"
		if r.Span == custody.SpanWeekend {
			sj.CustodyType = "alternate_weekend"
		}
		sj.ReferenceYearCustody = string(r.Parity)
	case custody.BiweeklyCycle:
		sj.CustodyType = string(custody.RhythmBiweeklyCycle)
		sj.Span = string(r.Span)
		sj.StartDay = weekdayName(r.Anchor)
		sj.ReferenceYearCustody = string(r.Parity)
	case custody.TwoTwoThree:
		sj.CustodyType = string(custody.RhythmTwoTwoThree)
		sj.StartDay = weekdayName(r.Anchor)
	case custody.TwoTwoFiveFive:
		sj.CustodyType = string(custody.RhythmTwoTwoFiveFive)
		sj.StartDay = weekdayName(r.Anchor)
	case custody.Custom:
		sj.CustodyType = string(custody.RhythmCustom)
	}
	return sj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRhythm(sj SettingsJSON) (custody.RhythmRule, error) {
	parity := custody.Parity(sj.ReferenceYearCustody)

	switch sj.CustodyType {
	case "alternate_weekend":
		return custody.WeekParity{Parity: parity, Span: custody.SpanWeekend}, nil
	case "alternate_week_parity":
		return custody.WeekParity{Parity: parity, Span: custody.SpanWeek}, nil
	case string(custody.RhythmWeeklyParity):
		return custody.WeekParity{Parity: parity, Span: parseSpan(sj.Span)}, nil
	case "alternate_week", string(custody.RhythmBiweeklyCycle):
		anchor, err := parseWeekday(sj.StartDay)
		if err != nil {
			return nil, err
		}
		span := custody.SpanWeek
		if sj.CustodyType != "alternate_week" {
			span = parseSpan(sj.Span)
		}
		return custody.BiweeklyCycle{Anchor: anchor, Parity: parity, Span: span}, nil
	case string(custody.RhythmTwoTwoThree):
		anchor, err := parseWeekday(sj.StartDay)
		if err != nil {
			return nil, err
		}
		return custody.TwoTwoThree{Anchor: anchor}, nil
	case string(custody.RhythmTwoTwoFiveFive):
		anchor, err := parseWeekday(sj.StartDay)
		if err != nil {
			return nil, err
		}
		return custody.TwoTwoFiveFive{Anchor: anchor}, nil
	case string(custody.RhythmCustom):
		return custody.Custom{}, nil
	case "":
		return nil, &custody.InvalidRuleError{Rule: "rhythm", Field: "custody_type", Reason: "missing"}
	default:
		return nil, &custody.InvalidRuleError{Rule: "rhythm", Field: "custody_type", Reason: fmt.Sprintf("unknown type %q", sj.CustodyType)}
	}
}

func parseSpan(s string) custody.Span {
	if s == "" {
		return custody.SpanWeek
	}
	return custody.Span(s)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "dimanche": time.Sunday,
	"monday": time.Monday, "lundi": time.Monday,
	"tuesday": time.Tuesday, "mardi": time.Tuesday,
	"wednesday": time.Wednesday, "mercredi": time.Wednesday,
	"thursday": time.Thursday, "jeudi": time.Thursday,
	"friday": time.Friday, "vendredi": time.Friday,
	"saturday": time.Saturday, "samedi": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, &custody.InvalidRuleError{Rule: "rhythm", Field: "start_day", Reason: fmt.Sprintf("unknown weekday %q", s)}
	}
	return wd, nil
}

// ParseWeekday is exported for the recurring exception endpoints.
func ParseWeekday(s string) (time.Weekday, error) { return parseWeekday(s) }

func weekdayName(wd time.Weekday) string { return strings.ToLower(wd.String()) }

/*
presets.go - Ready-made custody settings

PURPOSE:
  Returns settings JSON for the common arrangements so demo scenarios,
  tests and API clients do not have to spell out every field.

AVAILABLE PRESETS:
  AlternateWeekendsJSON:  Every other weekend, Friday after school to Sunday
  AlternateWeeksJSON:     One week on, one week off, from the anchor day
  TwoTwoThreeJSON:        2-2-3 weekly rotation
  TwoTwoFiveFiveJSON:     2-2-5-5 fortnightly rotation
  CustomJSON:             No rhythm, overrides only

SEE ALSO:
  - settings.go: JSON to Snapshot
  - api/scenarios.go: Demo children built from these presets
*/
package factory

import "encoding/json"

// AlternateWeekendsJSON returns settings for alternating weekends on ISO
// weeks of the given parity, with the default handover times.
func AlternateWeekendsJSON(weekParity, vacationParity, zone string) string {
	return marshal(map[string]interface{}{
		"custody_type":             "alternate_weekend",
		"reference_year_custody":   weekParity,
		"reference_year_vacations": vacationParity,
		"arrival_time":             DefaultArrival,
		"departure_time":           DefaultDeparture,
		"school_level":             "primary",
		"zone":                     zone,
		"vacation_split_mode":      "odd_first",
		"summer_rule":              "auto",
		"timezone":                 "Europe/Paris",
	})
}

// AlternateWeeksJSON returns settings for a one-week-on, one-week-off
// cycle starting on startDay.
func AlternateWeeksJSON(startDay, parity, zone string) string {
	return marshal(map[string]interface{}{
		"custody_type":        "alternate_week",
		"reference_year":      parity,
		"start_day":           startDay,
		"arrival_time":        "18:00",
		"departure_time":      "18:00",
		"school_level":        "middle",
		"zone":                zone,
		"vacation_split_mode": "odd_first",
		"timezone":            "Europe/Paris",
	})
}

// TwoTwoThreeJSON returns settings for the 2-2-3 rotation.
func TwoTwoThreeJSON(startDay, zone string) string {
	return marshal(map[string]interface{}{
		"custody_type":             "two_two_three",
		"start_day":                startDay,
		"reference_year_vacations": "even",
		"arrival_time":             "08:30",
		"departure_time":           "08:30",
		"zone":                     zone,
		"timezone":                 "Europe/Paris",
	})
}

// TwoTwoFiveFiveJSON returns settings for the 2-2-5-5 rotation.
func TwoTwoFiveFiveJSON(startDay, zone string) string {
	return marshal(map[string]interface{}{
		"custody_type":             "two_two_five_five",
		"start_day":                startDay,
		"reference_year_vacations": "odd",
		"arrival_time":             "08:30",
		"departure_time":           "08:30",
		"zone":                     zone,
		"timezone":                 "Europe/Paris",
	})
}

// CustomJSON returns settings with no rhythm; presence comes only from
// overrides and vacations.
func CustomJSON(vacationParity, zone string) string {
	return marshal(map[string]interface{}{
		"custody_type":             "custom",
		"reference_year_vacations": vacationParity,
		"zone":                     zone,
		"timezone":                 "Europe/Paris",
	})
}

func marshal(v map[string]interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

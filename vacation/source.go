/*
Package vacation supplies the school vacation calendar the resolver consumes.

PURPOSE:
  The engine never fetches anything itself: it takes a list of
  custody.VacationCalendarEntry values. This package is the collaborator that
  produces them, from the national open-data API or from an iCalendar feed,
  with a TTL cache in front.

SOURCES:
  APIClient   data.education.gouv.fr "fr-en-calendrier-scolaire" dataset,
              disk cache with ETag/Last-Modified and stale fallback
  ICSSource   any VEVENT feed with one event per vacation
  Cache       in-memory TTL wrapper over either

SCHOOL YEARS:
  A school year runs September to August and is written "2025-2026".
  Dates before September belong to the previous school year.

SEE ALSO:
  - custody/vacation.go: Effective range and allocation of entries
  - schedule/tracker.go: Fetches entries for every school year in the horizon
*/
package vacation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/warp/custody-engine/custody"
)

// Source fetches the vacation entries of one zone for one school year.
type Source interface {
	Fetch(ctx context.Context, zone, schoolYear string) ([]custody.VacationCalendarEntry, error)
}

// SchoolYearOf returns the "YYYY-YYYY" school year containing d.
func SchoolYearOf(d custody.Date) string {
	y := d.Year
	if d.Month < time.September {
		y--
	}
	return fmt.Sprintf("%d-%d", y, y+1)
}

// SchoolYearsFor returns every school year touching [from, to], oldest first.
func SchoolYearsFor(from, to custody.Date) []string {
	var years []string
	for d := from; !d.After(to); {
		sy := SchoolYearOf(d)
		years = append(years, sy)

		// Jump to the next September 1st
		next := custody.NewDate(d.Year, time.September, 1)
		if !next.After(d) {
			next = custody.NewDate(d.Year+1, time.September, 1)
		}
		d = next
	}
	return years
}

// NormalizeZone maps user input to the zone names of the school calendar:
// "a" and "Zone A" become "A", "DOM-TOM" becomes "Guadeloupe". Other
// overseas territories are kept as given.
func NormalizeZone(zone string) string {
	z := strings.TrimSpace(zone)
	if len(z) > 5 && strings.EqualFold(z[:5], "zone ") {
		z = strings.TrimSpace(z[5:])
	}
	switch strings.ToLower(z) {
	case "a", "b", "c":
		return strings.ToUpper(z)
	case "corse":
		return "Corse"
	case "dom-tom", "domtom", "dom":
		return "Guadeloupe"
	}
	return z
}

// Collect fetches every school year and merges the results: duplicates by
// (name, start, end) are dropped and entries are sorted by start. Entries
// from the years that succeeded are returned alongside the joined errors.
func Collect(ctx context.Context, src Source, zone string, schoolYears []string) ([]custody.VacationCalendarEntry, error) {
	type key struct {
		name       string
		start, end custody.Date
	}
	seen := make(map[key]bool)

	var (
		out  []custody.VacationCalendarEntry
		errs []error
	)
	for _, sy := range schoolYears {
		entries, err := src.Fetch(ctx, zone, sy)
		if err != nil {
			errs = append(errs, fmt.Errorf("school year %s: %w", sy, err))
			continue
		}
		for _, e := range entries {
			k := key{e.Name, e.Start, e.End}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].End.Before(out[j].End)
	})
	return out, errors.Join(errs...)
}

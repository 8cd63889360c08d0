package vacation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/internal/logger"
	"github.com/warp/custody-engine/internal/metrics"
)

// ICSSource reads vacations from an iCalendar feed with one VEVENT per
// vacation. All-day events use DTEND as the resume day; timed events are
// converted to local days. The feed is assumed to be for a single zone.
type ICSSource struct {
	url      string
	client   *http.Client
	location *time.Location
	metrics  metrics.Recorder
	log      *slog.Logger
}

func NewICSSource(url string, loc *time.Location, rec metrics.Recorder) *ICSSource {
	if loc == nil {
		loc = time.UTC
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &ICSSource{
		url:      url,
		client:   &http.Client{Timeout: 15 * time.Second},
		location: loc,
		metrics:  rec,
		log:      logger.Component("vacation"),
	}
}

// Fetch implements Source. Events whose start falls outside schoolYear are
// ignored.
func (s *ICSSource) Fetch(ctx context.Context, zone, schoolYear string) ([]custody.VacationCalendarEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.RecordVacationFetch("ics", "error")
		return nil, fmt.Errorf("fetch vacation feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.metrics.RecordVacationFetch("ics", "error")
		return nil, fmt.Errorf("fetch vacation feed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordVacationFetch("ics", "miss")

	entries, err := ParseICS(body, NormalizeZone(zone), s.location)
	if err != nil {
		return nil, err
	}

	s.log.Debug("vacation feed parsed", "events", len(entries), "school_year", schoolYear)

	out := entries[:0]
	for _, e := range entries {
		if SchoolYearOf(e.Start) == schoolYear {
			e.SchoolYear = schoolYear
			out = append(out, e)
		}
	}
	return out, nil
}

// ParseICS converts every VEVENT of body into an entry for zone. Events
// without a usable DTSTART/DTEND are skipped.
func ParseICS(body []byte, zone string, loc *time.Location) ([]custody.VacationCalendarEntry, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse vacation feed: %w", err)
	}

	log := logger.Component("vacation")
	var entries []custody.VacationCalendarEntry
	for _, ve := range cal.Events() {
		name := "Vacances scolaires"
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
			name = p.Value
		}
		start, err := propertyDate(ve.GetProperty(ical.ComponentPropertyDtStart), loc)
		if err != nil {
			log.Debug("skipping vevent", "summary", name, "error", err)
			continue
		}
		end, err := propertyDate(ve.GetProperty(ical.ComponentPropertyDtEnd), loc)
		if err != nil {
			log.Debug("skipping vevent", "summary", name, "error", err)
			continue
		}
		entries = append(entries, custody.VacationCalendarEntry{
			Name:       name,
			Zone:       zone,
			SchoolYear: SchoolYearOf(start),
			Start:      start,
			End:        end,
		})
	}
	return entries, nil
}

// propertyDate reads a DATE (YYYYMMDD) or DATE-TIME value. UTC values
// ("Z" suffix) are converted to loc; floating values are taken as local.
func propertyDate(p *ical.IANAProperty, loc *time.Location) (custody.Date, error) {
	if p == nil || len(p.Value) < 8 {
		return custody.Date{}, errors.New("missing date property")
	}
	v := strings.TrimSpace(p.Value)
	if !strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102", v[:8], loc)
		if err != nil {
			return custody.Date{}, err
		}
		return custody.DateOf(t), nil
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return custody.Date{}, err
		}
		return custody.DateOf(t.In(loc)), nil
	}
	t, err := time.ParseInLocation("20060102T150405", v, loc)
	if err != nil {
		return custody.Date{}, err
	}
	return custody.DateOf(t), nil
}

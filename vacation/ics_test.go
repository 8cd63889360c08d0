package vacation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/custody-engine/custody"
)

var vacationFeed = strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//vacances//FR
BEGIN:VEVENT
UID:toussaint-2025@test
DTSTAMP:20250101T000000Z
SUMMARY:Vacances de la Toussaint
DTSTART;VALUE=DATE:20251018
DTEND;VALUE=DATE:20251103
END:VEVENT
BEGIN:VEVENT
UID:noel-2025@test
DTSTAMP:20250101T000000Z
SUMMARY:Vacances de Noël
DTSTART:20251219T230000Z
DTEND:20260104T230000Z
END:VEVENT
BEGIN:VEVENT
UID:ete-2025@test
DTSTAMP:20250101T000000Z
SUMMARY:Vacances d'Été
DTSTART;VALUE=DATE:20250705
DTEND;VALUE=DATE:20250901
END:VEVENT
BEGIN:VEVENT
UID:broken@test
DTSTAMP:20250101T000000Z
SUMMARY:No dates
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")

func TestParseICS(t *testing.T) {
	entries, err := ParseICS([]byte(vacationFeed), "C", paris(t))
	require.NoError(t, err)

	// THEN: Three usable events, the broken one skipped
	require.Len(t, entries, 3)
	assert.Equal(t, "Vacances de la Toussaint", entries[0].Name)
	assert.Equal(t, custody.NewDate(2025, time.October, 18), entries[0].Start)
	assert.Equal(t, custody.NewDate(2025, time.November, 3), entries[0].End)

	// UTC instants are converted to Paris days
	assert.Equal(t, custody.NewDate(2025, time.December, 20), entries[1].Start)
	assert.Equal(t, custody.NewDate(2026, time.January, 5), entries[1].End)
	assert.Equal(t, "2025-2026", entries[1].SchoolYear)
	assert.Equal(t, "2024-2025", entries[2].SchoolYear)
}

func TestParseICS_Empty(t *testing.T) {
	_, err := ParseICS(nil, "C", paris(t))
	assert.Error(t, err)
}

func TestICSSource_FiltersSchoolYear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(vacationFeed))
	}))
	t.Cleanup(srv.Close)

	entries, err := NewICSSource(srv.URL, paris(t), nil).Fetch(context.Background(), "zone c", "2025-2026")

	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "2025-2026", e.SchoolYear)
		assert.Equal(t, "C", e.Zone)
	}
}

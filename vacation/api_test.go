package vacation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/custody-engine/custody"
)

const zoneCPayload = `{
  "nhits": 3,
  "records": [
    {"fields": {"description": "Vacances de Noël", "population": "-", "start_date": "2025-12-19T23:00:00+00:00", "end_date": "2026-01-04T23:00:00+00:00", "zones": "Zone C", "annee_scolaire": "2025-2026"}},
    {"fields": {"description": "Vacances de la Toussaint", "population": "Élèves", "start_date": "2025-10-17T22:00:00+00:00", "end_date": "2025-11-02T23:00:00+00:00", "zones": "Zone C", "annee_scolaire": "2025-2026"}},
    {"fields": {"description": "Pont de l'Ascension", "population": "Enseignants", "start_date": "2026-05-13T22:00:00+00:00", "end_date": "2026-05-17T22:00:00+00:00", "zones": "Zone C", "annee_scolaire": "2025-2026"}}
  ]
}`

const allZonesPayload = `{
  "records": [
    {"fields": {"description": "Vacances d'Hiver", "start_date": "2026-02-06T23:00:00+00:00", "end_date": "2026-02-22T23:00:00+00:00", "zones": "Zone A", "annee_scolaire": "2025-2026"}},
    {"fields": {"description": "Vacances d'Hiver", "start_date": "2026-02-20T23:00:00+00:00", "end_date": "2026-03-08T23:00:00+00:00", "zones": "Zone C", "annee_scolaire": "2025-2026"}}
  ]
}`

func paris(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func TestAPIClient_Fetch(t *testing.T) {
	// GIVEN: An API answering the zone-refined query
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(zoneCPayload))
	}))
	t.Cleanup(srv.Close)

	client := NewAPIClient(srv.URL, "", paris(t), nil)

	// WHEN: Fetching zone c for 2025-2026
	entries, err := client.Fetch(context.Background(), "c", "2025-2026")
	require.NoError(t, err)

	// THEN: Query parameters follow the dataset conventions
	q := query.Load().(url.Values)
	assert.Equal(t, []string{Dataset}, q["dataset"])
	assert.Equal(t, []string{"2025-2026"}, q["refine.annee_scolaire"])
	assert.Equal(t, []string{"Zone C"}, q["refine.zones"])
	assert.Equal(t, []string{"100"}, q["rows"])

	// THEN: Teacher-only rows are dropped, instants become Paris days
	require.Len(t, entries, 2)
	assert.Equal(t, "Vacances de Noël", entries[0].Name)
	assert.Equal(t, custody.NewDate(2025, time.December, 20), entries[0].Start)
	assert.Equal(t, custody.NewDate(2026, time.January, 5), entries[0].End)
	assert.Equal(t, "C", entries[0].Zone)
	assert.Equal(t, custody.NewDate(2025, time.October, 18), entries[1].Start)
}

func TestAPIClient_FallsBackToLocalZoneFilter(t *testing.T) {
	// GIVEN: The refined query returns nothing
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("refine.zones") != "" {
			_, _ = w.Write([]byte(`{"records": []}`))
			return
		}
		_, _ = w.Write([]byte(allZonesPayload))
	}))
	t.Cleanup(srv.Close)

	entries, err := NewAPIClient(srv.URL, "", paris(t), nil).Fetch(context.Background(), "C", "2025-2026")

	// THEN: Only the zone C row of the unrefined query is kept
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, custody.NewDate(2026, time.February, 21), entries[0].Start)
	assert.Equal(t, custody.NewDate(2026, time.March, 9), entries[0].End)
}

func TestAPIClient_DiskCache(t *testing.T) {
	// GIVEN: A server that honours If-None-Match, then goes down
	var (
		hits        atomic.Int32
		revalidated atomic.Bool
		down        atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			revalidated.Store(true)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(zoneCPayload))
	}))
	t.Cleanup(srv.Close)

	client := NewAPIClient(srv.URL, t.TempDir(), paris(t), nil)
	ctx := context.Background()

	first, err := client.Fetch(ctx, "C", "2025-2026")
	require.NoError(t, err)

	// WHEN: Fetching again, the cached body is revalidated
	second, err := client.Fetch(ctx, "C", "2025-2026")
	require.NoError(t, err)
	assert.True(t, revalidated.Load(), "second request must be conditional")
	assert.Equal(t, first, second)

	// WHEN: The server fails, the stale body is served
	down.Store(true)
	third, err := client.Fetch(ctx, "C", "2025-2026")
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, int32(3), hits.Load())
}

func TestAPIClient_ErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewAPIClient(srv.URL, "", paris(t), nil).Fetch(context.Background(), "C", "2025-2026")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

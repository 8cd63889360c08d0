package vacation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/internal/logger"
	"github.com/warp/custody-engine/internal/metrics"
)

// Dataset is the open-data dataset holding the French school calendar.
const Dataset = "fr-en-calendrier-scolaire"

// APIClient fetches vacation entries from the open-data records API.
type APIClient struct {
	baseURL  string
	client   *http.Client
	cacheDir string // Empty disables the disk cache
	location *time.Location
	metrics  metrics.Recorder
	log      *slog.Logger
}

// NewAPIClient creates a client for baseURL (the ".../records/1.0/search/"
// endpoint). Instants in the payload are converted to dates in loc.
func NewAPIClient(baseURL, cacheDir string, loc *time.Location, rec metrics.Recorder) *APIClient {
	if loc == nil {
		loc = time.UTC
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &APIClient{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 20 * time.Second},
		cacheDir: cacheDir,
		location: loc,
		metrics:  rec,
		log:      logger.Component("vacation"),
	}
}

// =============================================================================
// PAYLOAD
// =============================================================================

type searchResponse struct {
	Records []record `json:"records"`
}

type record struct {
	Fields recordFields `json:"fields"`
}

type recordFields struct {
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Zones       string `json:"zones"`
	SchoolYear  string `json:"annee_scolaire"`
	Population  string `json:"population"`
	LegacyStart string `json:"date_debut"`
	LegacyEnd   string `json:"date_fin"`
	LegacyZone  string `json:"zone"`
	LegacyLabel string `json:"libelle"`
}

// teacherOnly marks rows that do not apply to pupils.
const teacherOnly = "Enseignants"

// =============================================================================
// FETCH
// =============================================================================

// Fetch implements Source. When the zone-refined query returns nothing for
// a mainland zone, the whole school year is fetched and filtered locally.
func (c *APIClient) Fetch(ctx context.Context, zone, schoolYear string) ([]custody.VacationCalendarEntry, error) {
	zone = NormalizeZone(zone)

	resp, err := c.search(ctx, c.searchURL(schoolYear, apiZone(zone)))
	if err != nil {
		return nil, err
	}

	records := resp.Records
	if len(records) == 0 && isMainland(zone) {
		c.log.Debug("no records with zone filter, filtering locally", "zone", zone, "school_year", schoolYear)
		all, err := c.search(ctx, c.searchURL(schoolYear, ""))
		if err != nil {
			return nil, err
		}
		for _, r := range all.Records {
			if matchesZone(r.Fields, zone) {
				records = append(records, r)
			}
		}
	}

	entries := make([]custody.VacationCalendarEntry, 0, len(records))
	for _, r := range records {
		e, ok := c.toEntry(r.Fields, zone, schoolYear)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		c.log.Warn("no vacation records", "zone", zone, "school_year", schoolYear)
	}
	return entries, nil
}

func (c *APIClient) searchURL(schoolYear, zone string) string {
	q := url.Values{}
	q.Set("dataset", Dataset)
	q.Set("refine.annee_scolaire", schoolYear)
	if zone != "" {
		q.Set("refine.zones", zone)
	}
	q.Set("rows", "100")
	return c.baseURL + "?" + q.Encode()
}

func (c *APIClient) search(ctx context.Context, u string) (searchResponse, error) {
	body, err := c.get(ctx, u)
	if err != nil {
		return searchResponse{}, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return searchResponse{}, fmt.Errorf("decode school calendar: %w", err)
	}
	return resp, nil
}

func (c *APIClient) toEntry(f recordFields, zone, schoolYear string) (custody.VacationCalendarEntry, bool) {
	if f.Population == teacherOnly {
		return custody.VacationCalendarEntry{}, false
	}
	name := firstNonEmpty(f.Description, f.LegacyLabel, "Vacances scolaires")
	start, err := c.parseDate(firstNonEmpty(f.StartDate, f.LegacyStart))
	if err != nil {
		c.log.Debug("skipping record", "name", name, "error", err)
		return custody.VacationCalendarEntry{}, false
	}
	end, err := c.parseDate(firstNonEmpty(f.EndDate, f.LegacyEnd))
	if err != nil {
		c.log.Debug("skipping record", "name", name, "error", err)
		return custody.VacationCalendarEntry{}, false
	}
	return custody.VacationCalendarEntry{
		Name:       name,
		Zone:       zone,
		SchoolYear: firstNonEmpty(f.SchoolYear, schoolYear),
		Start:      start,
		End:        end,
	}, true
}

// parseDate accepts RFC 3339 instants (converted to the local day) and
// plain dates.
func (c *APIClient) parseDate(s string) (custody.Date, error) {
	if s == "" {
		return custody.Date{}, errors.New("missing date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return custody.DateOf(t.In(c.location)), nil
	}
	return custody.ParseDate(s)
}

func apiZone(zone string) string {
	if isMainland(zone) {
		return "Zone " + zone
	}
	return zone
}

func isMainland(zone string) bool { return zone == "A" || zone == "B" || zone == "C" }

func matchesZone(f recordFields, zone string) bool {
	field := firstNonEmpty(f.Zones, f.LegacyZone)
	if isMainland(zone) {
		return field == "Zone "+zone || field == zone
	}
	return strings.Contains(field, zone)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// HTTP + DISK CACHE
// =============================================================================

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// get performs a conditional GET. The cached body is reused on 304 and, as
// a stale fallback, on network errors and non-OK statuses.
func (c *APIClient) get(ctx context.Context, u string) ([]byte, error) {
	dir := c.cachePath(u)
	var (
		meta   cacheMeta
		cached []byte
	)
	if dir != "" {
		meta, _ = loadMeta(dir)
		cached, _ = os.ReadFile(filepath.Join(dir, "body.json"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			c.log.Warn("school calendar unreachable, using cached body", "error", err)
			c.metrics.RecordVacationFetch("api", "stale")
			return cached, nil
		}
		c.metrics.RecordVacationFetch("api", "error")
		return nil, fmt.Errorf("fetch school calendar: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if dir != "" {
			if err := saveCache(dir, cacheMeta{
				URL:          u,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}, body); err != nil {
				c.log.Error("school calendar cache save failed", "error", err)
			}
		}
		c.metrics.RecordVacationFetch("api", "miss")
		return body, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, errors.New("received 304 Not Modified but no cached body available")
		}
		c.metrics.RecordVacationFetch("api", "hit")
		return cached, nil

	default:
		if len(cached) > 0 {
			c.log.Warn("school calendar non-OK, using cached body", "status", resp.StatusCode)
			c.metrics.RecordVacationFetch("api", "stale")
			return cached, nil
		}
		c.metrics.RecordVacationFetch("api", "error")
		return nil, fmt.Errorf("fetch school calendar: %s", resp.Status)
	}
}

func (c *APIClient) cachePath(u string) string {
	if c.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Body first so meta never points at a missing body
	if err := os.WriteFile(filepath.Join(dir, "body.json"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

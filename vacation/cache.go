package vacation

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/internal/metrics"
)

type cacheKey struct {
	zone       string
	schoolYear string
}

type cacheEntry struct {
	entries   []custody.VacationCalendarEntry
	fetchedAt time.Time
}

// Cache is a TTL cache over any Source, keyed by (zone, school year).
// Concurrent misses for the same key may both reach the source.
type Cache struct {
	src     Source
	ttl     time.Duration
	entries *xsync.Map[cacheKey, cacheEntry]
	metrics metrics.Recorder
	now     func() time.Time
}

func NewCache(src Source, ttl time.Duration, rec metrics.Recorder) *Cache {
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Cache{
		src:     src,
		ttl:     ttl,
		entries: xsync.NewMap[cacheKey, cacheEntry](),
		metrics: rec,
		now:     time.Now,
	}
}

// Fetch implements Source.
func (c *Cache) Fetch(ctx context.Context, zone, schoolYear string) ([]custody.VacationCalendarEntry, error) {
	key := cacheKey{zone: NormalizeZone(zone), schoolYear: schoolYear}
	if e, ok := c.entries.Load(key); ok && c.now().Sub(e.fetchedAt) < c.ttl {
		c.metrics.RecordVacationFetch("cache", "hit")
		return e.entries, nil
	}

	c.metrics.RecordVacationFetch("cache", "miss")
	entries, err := c.src.Fetch(ctx, key.zone, schoolYear)
	if err != nil {
		// Serve an expired value rather than nothing
		if e, ok := c.entries.Load(key); ok {
			c.metrics.RecordVacationFetch("cache", "stale")
			return e.entries, nil
		}
		return nil, err
	}
	c.entries.Store(key, cacheEntry{entries: entries, fetchedAt: c.now()})
	return entries, nil
}

// Invalidate drops every cached school year.
func (c *Cache) Invalidate() {
	c.entries.Clear()
}

// Len reports how many (zone, school year) pairs are cached.
func (c *Cache) Len() int {
	return c.entries.Size()
}

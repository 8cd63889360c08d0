/*
Package sqlite provides a SQLite-backed implementation of schedule.Store.

PURPOSE:
  Persists children (with their settings JSON), ad-hoc overrides, weekly
  recurring exceptions and the refresh history. Timelines are never stored:
  they are recomputed from these rows on every request.

KEY TABLES:
  children:             One row per tracked arrangement
  overrides:            Ad-hoc and forced-presence periods (ON DELETE CASCADE)
  recurring_exceptions: Weekly windows (ON DELETE CASCADE)
  refresh_runs:         One row per refresh pass

TIME ENCODING:
  Instants are RFC3339 TEXT in UTC; calendar dates are "2006-01-02";
  clocks are "15:04". An open-ended override has a NULL end_at.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the refresh loop's writes.

USAGE:
  store, err := sqlite.New("./custody.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  tracker := schedule.NewTracker(store, schedule.Options{})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - schedule/store.go: Interface definition
  - schedule/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/mo"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/schedule"
)

// Store implements schedule.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ schedule.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS children (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		settings_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS overrides (
		id TEXT PRIMARY KEY,
		child_id TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		source TEXT NOT NULL,
		presence TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		start_at TEXT NOT NULL,
		end_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_overrides_child
		ON overrides(child_id, created_at);

	CREATE TABLE IF NOT EXISTS recurring_exceptions (
		id TEXT PRIMARY KEY,
		child_id TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		weekday INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		from_date TEXT,
		until_date TEXT,
		label TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exceptions_child
		ON recurring_exceptions(child_id, created_at);

	CREATE TABLE IF NOT EXISTS refresh_runs (
		id TEXT PRIMARY KEY,
		trigger_name TEXT NOT NULL,
		status TEXT NOT NULL,
		children INTEGER NOT NULL DEFAULT 0,
		changed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		events INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_runs_started
		ON refresh_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CHILDREN
// =============================================================================

// SaveChild inserts or updates a child. created_at is kept on update.
func (s *Store) SaveChild(ctx context.Context, c schedule.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO children (id, name, location, notes, settings_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			notes = excluded.notes,
			settings_json = excluded.settings_json,
			updated_at = excluded.updated_at
	`

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Location, c.Notes, c.Settings,
		formatTime(createdAt), formatTime(updatedAt),
	)
	return err
}

// GetChild retrieves a child by ID.
func (s *Store) GetChild(ctx context.Context, id string) (*schedule.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c schedule.Child
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, location, notes, settings_json, created_at, updated_at FROM children WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Name, &c.Location, &c.Notes, &c.Settings, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

// ListChildren returns all children, oldest first.
func (s *Store) ListChildren(ctx context.Context) ([]schedule.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, location, notes, settings_json, created_at, updated_at FROM children ORDER BY created_at, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []schedule.Child
	for rows.Next() {
		var c schedule.Child
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.Notes, &c.Settings, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		children = append(children, c)
	}
	return children, rows.Err()
}

// DeleteChild removes a child; its overrides and exceptions cascade.
func (s *Store) DeleteChild(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteOne(ctx, s.db, "DELETE FROM children WHERE id = ?", id, custody.ErrChildNotFound)
}

// =============================================================================
// OVERRIDES
// =============================================================================

// SaveOverride inserts or updates an override.
func (s *Store) SaveOverride(ctx context.Context, o schedule.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO overrides (id, child_id, source, presence, label, start_at, end_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			presence = excluded.presence,
			label = excluded.label,
			start_at = excluded.start_at,
			end_at = excluded.end_at
	`

	var endAt sql.NullString
	if !o.End.IsZero() {
		endAt = sql.NullString{String: formatTime(o.End), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.ChildID, o.Source, string(o.Presence), o.Label,
		formatTime(o.Start), endAt, formatTime(o.CreatedAt),
	)
	if isForeignKeyError(err) {
		return fmt.Errorf("%w: %s", custody.ErrChildNotFound, o.ChildID)
	}
	return err
}

// ListOverrides returns the overrides of one child, oldest first.
func (s *Store) ListOverrides(ctx context.Context, childID string) ([]schedule.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, child_id, source, presence, label, start_at, end_at, created_at
		FROM overrides
		WHERE child_id = ?
		ORDER BY created_at, id
	`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []schedule.Override
	for rows.Next() {
		var o schedule.Override
		var presence, startAt, createdAt string
		var endAt sql.NullString
		if err := rows.Scan(&o.ID, &o.ChildID, &o.Source, &presence, &o.Label, &startAt, &endAt, &createdAt); err != nil {
			return nil, err
		}
		o.Presence = custody.Presence(presence)
		o.Start, _ = time.Parse(time.RFC3339, startAt)
		if endAt.Valid {
			o.End, _ = time.Parse(time.RFC3339, endAt.String)
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// DeleteOverride removes an override.
func (s *Store) DeleteOverride(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteOne(ctx, s.db, "DELETE FROM overrides WHERE id = ?", id, custody.ErrOverrideNotFound)
}

// =============================================================================
// RECURRING EXCEPTIONS
// =============================================================================

// SaveException inserts or updates a recurring exception.
func (s *Store) SaveException(ctx context.Context, e schedule.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO recurring_exceptions (id, child_id, weekday, start_time, end_time,
			from_date, until_date, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			weekday = excluded.weekday,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			from_date = excluded.from_date,
			until_date = excluded.until_date,
			label = excluded.label
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.ChildID, int(e.Weekday), e.Start.String(), e.End.String(),
		nullDate(e.From), nullDate(e.Until), e.Label, formatTime(e.CreatedAt),
	)
	if isForeignKeyError(err) {
		return fmt.Errorf("%w: %s", custody.ErrChildNotFound, e.ChildID)
	}
	return err
}

// ListExceptions returns the recurring exceptions of one child, oldest first.
func (s *Store) ListExceptions(ctx context.Context, childID string) ([]schedule.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, child_id, weekday, start_time, end_time, from_date, until_date, label, created_at
		FROM recurring_exceptions
		WHERE child_id = ?
		ORDER BY created_at, id
	`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exceptions []schedule.Exception
	for rows.Next() {
		var e schedule.Exception
		var weekday int
		var startTime, endTime, createdAt string
		var fromDate, untilDate sql.NullString
		if err := rows.Scan(&e.ID, &e.ChildID, &weekday, &startTime, &endTime,
			&fromDate, &untilDate, &e.Label, &createdAt); err != nil {
			return nil, err
		}
		e.Weekday = time.Weekday(weekday)
		e.Start, _ = custody.ParseClock(startTime)
		e.End, _ = custody.ParseClock(endTime)
		e.From = parseNullDate(fromDate)
		e.Until = parseNullDate(untilDate)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		exceptions = append(exceptions, e)
	}
	return exceptions, rows.Err()
}

// DeleteException removes a recurring exception.
func (s *Store) DeleteException(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteOne(ctx, s.db, "DELETE FROM recurring_exceptions WHERE id = ?", id, custody.ErrExceptionNotFound)
}

// =============================================================================
// REFRESH RUNS
// =============================================================================

// SaveRefreshRun saves a refresh run.
func (s *Store) SaveRefreshRun(ctx context.Context, r schedule.RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO refresh_runs (id, trigger_name, status, children, changed, failed,
			events, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			children = excluded.children,
			changed = excluded.changed,
			failed = excluded.failed,
			events = excluded.events,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, r.Status, r.Children, r.Changed, r.Failed,
		r.Events, r.Error, formatTime(r.StartedAt), formatTime(r.CompletedAt),
	)
	return err
}

// ListRefreshRuns returns the newest runs first. limit <= 0 returns all.
func (s *Store) ListRefreshRuns(ctx context.Context, limit int) ([]schedule.RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, trigger_name, status, children, changed, failed, events, error,
			started_at, completed_at
		FROM refresh_runs
		ORDER BY started_at DESC, id
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []schedule.RefreshRun
	for rows.Next() {
		var r schedule.RefreshRun
		var startedAt, completedAt string
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &r.Children, &r.Changed, &r.Failed,
			&r.Events, &r.Error, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"overrides", "recurring_exceptions", "children", "refresh_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func deleteOne(ctx context.Context, db *sql.DB, query, id string, notFound error) error {
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

func nullDate(d mo.Option[custody.Date]) sql.NullString {
	v, ok := d.Get()
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func parseNullDate(s sql.NullString) mo.Option[custody.Date] {
	if !s.Valid {
		return mo.None[custody.Date]()
	}
	d, err := custody.ParseDate(s.String)
	if err != nil {
		return mo.None[custody.Date]()
	}
	return mo.Some(d)
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

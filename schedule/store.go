/*
store.go - Persistence interface for children and their manual periods

PURPOSE:
  Defines the interface between the tracker and the database. A child row
  carries the settings JSON (the factory turns it into a custody.Snapshot);
  overrides and recurring exceptions hang off a child and are deleted with it.

CONTRACT:
  - Get* returns (nil, nil) when the row does not exist
  - Delete* returns custody.ErrChildNotFound, custody.ErrOverrideNotFound or
    custody.ErrExceptionNotFound when nothing was deleted
  - List* returns rows in a stable order (creation time, then ID)
  - ListRefreshRuns returns the newest runs first

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - schedule/store/memory.go: In-memory for testing

SEE ALSO:
  - tracker.go: The only consumer
*/
package schedule

import (
	"context"
	"time"

	"github.com/warp/custody-engine/custody"
)

// =============================================================================
// RECORDS
// =============================================================================

// Child is one tracked custody arrangement.
type Child struct {
	ID        string
	Name      string
	Location  string // Free-form handover place
	Notes     string
	Settings  string // Settings JSON, see factory.SettingsJSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Override sources.
const (
	SourceManual   = "manual"   // Ad-hoc period added by a user
	SourcePresence = "presence" // Forced on/off switch; at most one per child
)

// Override is a persisted ad-hoc period of one child.
type Override struct {
	custody.Override
	ChildID   string
	Source    string
	CreatedAt time.Time
}

// Exception is a persisted weekly exception of one child.
type Exception struct {
	custody.RecurringException
	ChildID   string
	CreatedAt time.Time
}

// Refresh run statuses.
const (
	RunCompleted = "completed"
	RunPartial   = "partial" // Some children failed
	RunFailed    = "failed"
)

// RefreshRun records one pass of the refresh loop.
type RefreshRun struct {
	ID          string
	Trigger     string // cron, manual, startup
	Status      string
	Children    int
	Changed     int
	Failed      int
	Events      int
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store persists children, overrides, exceptions and refresh history.
type Store interface {
	SaveChild(ctx context.Context, c Child) error
	GetChild(ctx context.Context, id string) (*Child, error)
	ListChildren(ctx context.Context) ([]Child, error)
	DeleteChild(ctx context.Context, id string) error

	SaveOverride(ctx context.Context, o Override) error
	ListOverrides(ctx context.Context, childID string) ([]Override, error)
	DeleteOverride(ctx context.Context, id string) error

	SaveException(ctx context.Context, e Exception) error
	ListExceptions(ctx context.Context, childID string) ([]Exception, error)
	DeleteException(ctx context.Context, id string) error

	SaveRefreshRun(ctx context.Context, r RefreshRun) error
	ListRefreshRuns(ctx context.Context, limit int) ([]RefreshRun, error)
}

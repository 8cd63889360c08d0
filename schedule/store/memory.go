// Package store provides in-memory schedule.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	children   map[string]schedule.Child
	overrides  map[string]schedule.Override
	exceptions map[string]schedule.Exception
	runs       []schedule.RefreshRun
}

func NewMemory() *Memory {
	return &Memory{
		children:   make(map[string]schedule.Child),
		overrides:  make(map[string]schedule.Override),
		exceptions: make(map[string]schedule.Exception),
	}
}

var _ schedule.Store = (*Memory)(nil)

// =============================================================================
// CHILDREN
// =============================================================================

func (m *Memory) SaveChild(_ context.Context, c schedule.Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.children[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	m.children[c.ID] = c
	return nil
}

func (m *Memory) GetChild(_ context.Context, id string) (*schedule.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.children[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListChildren(_ context.Context) ([]schedule.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schedule.Child, 0, len(m.children))
	for _, c := range m.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return less(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

// DeleteChild removes the child and everything attached to it.
func (m *Memory) DeleteChild(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.children[id]; !ok {
		return custody.ErrChildNotFound
	}
	delete(m.children, id)
	for oid, o := range m.overrides {
		if o.ChildID == id {
			delete(m.overrides, oid)
		}
	}
	for eid, e := range m.exceptions {
		if e.ChildID == id {
			delete(m.exceptions, eid)
		}
	}
	return nil
}

// =============================================================================
// OVERRIDES & EXCEPTIONS
// =============================================================================

func (m *Memory) SaveOverride(_ context.Context, o schedule.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.children[o.ChildID]; !ok {
		return custody.ErrChildNotFound
	}
	m.overrides[o.ID] = o
	return nil
}

func (m *Memory) ListOverrides(_ context.Context, childID string) ([]schedule.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Override
	for _, o := range m.overrides {
		if o.ChildID == childID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return less(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (m *Memory) DeleteOverride(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.overrides[id]; !ok {
		return custody.ErrOverrideNotFound
	}
	delete(m.overrides, id)
	return nil
}

func (m *Memory) SaveException(_ context.Context, e schedule.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.children[e.ChildID]; !ok {
		return custody.ErrChildNotFound
	}
	m.exceptions[e.ID] = e
	return nil
}

func (m *Memory) ListExceptions(_ context.Context, childID string) ([]schedule.Exception, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schedule.Exception
	for _, e := range m.exceptions {
		if e.ChildID == childID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return less(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (m *Memory) DeleteException(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exceptions[id]; !ok {
		return custody.ErrExceptionNotFound
	}
	delete(m.exceptions, id)
	return nil
}

// =============================================================================
// REFRESH RUNS
// =============================================================================

func (m *Memory) SaveRefreshRun(_ context.Context, r schedule.RefreshRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == r.ID {
			m.runs[i] = r
			return nil
		}
	}
	m.runs = append(m.runs, r)
	return nil
}

func (m *Memory) ListRefreshRuns(_ context.Context, limit int) ([]schedule.RefreshRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schedule.RefreshRun, len(m.runs))
	copy(out, m.runs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func less(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}

// Reset clears all data (for demo scenarios).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children = make(map[string]schedule.Child)
	m.overrides = make(map[string]schedule.Override)
	m.exceptions = make(map[string]schedule.Exception)
	m.runs = nil
	return nil
}

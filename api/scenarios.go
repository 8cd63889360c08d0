/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	children for demos. Each scenario creates children from factory presets
	and optionally adds recurring exceptions and overrides.

AVAILABLE SCENARIOS:

	alternate-weekends: Even weekends, odd half of vacations, zone C
	alternate-weeks:    One week on, one week off from Friday, zone A
	siblings:           Two children on 2-2-3 and 2-2-5-5, zone B
	custom:             No rhythm; Wednesday afternoons plus a forced stay

HOW SCENARIOS WORK:
 1. Reset store (clear all data) and the tracker's change detector
 2. Create children via factory presets
 3. Add recurring exceptions and overrides

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "siblings"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context
  - factory/presets.go: Settings JSON presets
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/factory"
	"github.com/warp/custody-engine/internal/logger"
	"github.com/warp/custody-engine/schedule"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "alternate-weekends",
		Name:        "Week-ends alternés",
		Description: "Even ISO weekends, odd half of every vacation, zone C",
		Children:    1,
	},
	{
		ID:          "alternate-weeks",
		Name:        "Semaines alternées",
		Description: "One week on, one week off, handover on Friday, zone A",
		Children:    1,
	},
	{
		ID:          "siblings",
		Name:        "Fratrie",
		Description: "Two children: 2-2-3 from Monday and 2-2-5-5 from Monday, zone B",
		Children:    2,
	},
	{
		ID:          "custom",
		Name:        "Personnalisé",
		Description: "No rhythm: every Wednesday afternoon plus a forced weekend stay",
		Children:    1,
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "alternate-weekends":
		load = h.loadAlternateWeekendsScenario
	case "alternate-weeks":
		load = h.loadAlternateWeeksScenario
	case "siblings":
		load = h.loadSiblingsScenario
	case "custom":
		load = h.loadCustomScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(ctx); err != nil {
		logger.Error(ctx, "scenario reset failed", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := load(ctx); err != nil {
		logger.Error(ctx, "scenario load failed", err, "scenario", req.ScenarioID)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	logger.Info(ctx, "scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// reset must be called with h.mu held.
func (h *Handler) reset(ctx context.Context) error {
	if h.Store == nil {
		return errors.New("store does not support reset")
	}
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Tracker.Forget()
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadAlternateWeekendsScenario(ctx context.Context) error {
	_, err := h.Tracker.CreateChild(ctx, schedule.Child{
		Name:     "Léa",
		Location: "École Jules Ferry",
		Settings: factory.AlternateWeekendsJSON("even", "odd", "C"),
	})
	return err
}

func (h *Handler) loadAlternateWeeksScenario(ctx context.Context) error {
	_, err := h.Tracker.CreateChild(ctx, schedule.Child{
		Name:     "Hugo",
		Settings: factory.AlternateWeeksJSON("friday", "even", "A"),
	})
	return err
}

func (h *Handler) loadSiblingsScenario(ctx context.Context) error {
	if _, err := h.Tracker.CreateChild(ctx, schedule.Child{
		Name:     "Jade",
		Settings: factory.TwoTwoThreeJSON("monday", "B"),
	}); err != nil {
		return fmt.Errorf("create Jade: %w", err)
	}
	if _, err := h.Tracker.CreateChild(ctx, schedule.Child{
		Name:     "Louis",
		Settings: factory.TwoTwoFiveFiveJSON("monday", "B"),
	}); err != nil {
		return fmt.Errorf("create Louis: %w", err)
	}
	return nil
}

func (h *Handler) loadCustomScenario(ctx context.Context) error {
	child, err := h.Tracker.CreateChild(ctx, schedule.Child{
		Name:     "Emma",
		Notes:    "Mercredis après-midi uniquement",
		Settings: factory.CustomJSON("even", "C"),
	})
	if err != nil {
		return err
	}

	if _, err := h.Tracker.AddException(ctx, child.ID, custody.RecurringException{
		Weekday: time.Wednesday,
		Start:   custody.MustClock("12:00"),
		End:     custody.MustClock("18:00"),
		Label:   "Mercredi après-midi",
	}); err != nil {
		return fmt.Errorf("add exception: %w", err)
	}

	// Forced stay over the next weekend
	loc := h.location
	today := custody.DateOf(h.now().In(loc))
	saturday := today.AddDays((int(time.Saturday) - int(today.Weekday()) + 7) % 7)
	if _, err := h.Tracker.AddOverride(ctx, child.ID, custody.Override{
		Start:    saturday.At(custody.MustClock("10:00"), loc),
		End:      saturday.AddDays(1).At(custody.MustClock("18:00"), loc),
		Label:    "Week-end chez papa",
		Presence: custody.PresenceOn,
	}); err != nil {
		return fmt.Errorf("add override: %w", err)
	}
	return nil
}

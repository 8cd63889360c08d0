/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. logger:     Puts the request ID on the context logger
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for calendar frontends

ROUTE GROUPS:
  /api/children/*       Children, timelines, overrides, exceptions
  /api/overrides/*      Override deletion
  /api/exceptions/*     Exception deletion
  /api/holidays         Public holidays
  /api/vacations        School vacations
  /api/refresh/*        Manual refresh and history
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus (when enabled)
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/custody-engine/internal/logger"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Child routes
		r.Route("/children", func(r chi.Router) {
			r.Get("/", h.ListChildren)
			r.Post("/", h.CreateChild)
			r.Get("/{id}", h.GetChild)
			r.Put("/{id}", h.UpdateChild)
			r.Delete("/{id}", h.DeleteChild)
			r.Get("/{id}/timeline", h.GetTimeline)
			r.Get("/{id}/status", h.GetStatus)
			r.Get("/{id}/calendar.ics", h.GetCalendar)
			r.Get("/{id}/overrides", h.ListOverrides)
			r.Post("/{id}/overrides", h.CreateOverride)
			r.Post("/{id}/presence", h.SetPresence)
			r.Get("/{id}/exceptions", h.ListExceptions)
			r.Post("/{id}/exceptions", h.CreateException)
		})

		r.Delete("/overrides/{id}", h.DeleteOverride)
		r.Delete("/exceptions/{id}", h.DeleteException)

		// Calendar routes
		r.Get("/holidays", h.ListHolidays)
		r.Get("/vacations", h.ListVacations)

		// Refresh routes
		r.Route("/refresh", func(r chi.Router) {
			r.Post("/", h.TriggerRefresh)
			r.Get("/runs", h.ListRefreshRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

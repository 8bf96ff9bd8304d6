/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the operator console
  5. Identity:   JWT subject or X-Actor-ID (api routes only)

ROUTE GROUPS:
  /api/assignments/*    Assignment runs
  /api/configs/*        Level config lifecycle
  /api/roster           Duty entries
  /api/agents/*         Agent levels
  /api/seed             YAML seed documents
  /api/scenarios/*      Demo scenarios
  /api/health           Liveness
  /metrics              Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Identity middleware
  - cmd/collections/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/collections-engine/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Auth           AuthConfig
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(identityMiddleware(opts.Auth))

			r.Route("/assignments", func(r chi.Router) {
				r.Post("/stratified", h.RunStratified)
				r.Post("/simple", h.RunSimple)
			})

			r.Route("/configs", func(r chi.Router) {
				r.Get("/suggested", h.GetSuggested)
				r.Post("/", h.SaveConfig)
				r.Get("/{id}", h.GetConfig)
				r.Post("/{id}/approve", h.ApproveConfig)
			})

			r.Route("/roster", func(r chi.Router) {
				r.Put("/", h.SetDuty)
				r.Delete("/", h.RemoveDuty)
			})

			r.Route("/agents", func(r chi.Router) {
				r.Put("/{id}/level", h.SetAgentLevel)
				r.Get("/{id}/levels", h.LevelHistory)
			})

			r.Post("/seed", h.ApplySeed)

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		})
	})

	return r
}

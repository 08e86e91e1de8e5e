package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the full route tree for one Handler.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User"},
		AllowCredentials: false,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ingest/files", func(r chi.Router) {
			r.Post("/", h.PostIngestFile)
			r.Get("/{id}/status", h.GetIngestFileStatus)
		})

		r.Route("/match", func(r chi.Router) {
			r.Route("/runs", func(r chi.Router) {
				r.Post("/", h.PostMatchRun)
				r.Get("/", h.ListMatchRuns)
				r.Get("/{id}", h.GetMatchRun)
			})
			r.Get("/status", h.GetMatchStatus)
		})

		r.Route("/results", func(r chi.Router) {
			r.Get("/run/{id}", h.GetResultsByRun)
			r.Get("/latest", h.GetLatestResults)
			r.Get("/details/{rowId}", h.GetResultDetails)
		})

		r.Route("/exceptions", func(r chi.Router) {
			r.Get("/", h.ListExceptions)
			r.Get("/{id}", h.GetException)
			r.Post("/{id}/actions", h.PostExceptionAction)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Route("/rulesets", func(r chi.Router) {
				r.Get("/", h.GetRulesets)
				r.Put("/", h.PutRuleset)
			})
			r.Get("/users", h.ListUsers)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/events", h.ListAuditEvents)
		})

		r.Route("/monitor", func(r chi.Router) {
			r.Get("/source-balance", h.GetSourceBalance)
		})

		r.Get("/analytics/hardcoded", h.GetAnalytics)
	})

	return r
}

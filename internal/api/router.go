package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(requestLogger(logger))

	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.createAccount)
			r.Get("/{id}", h.getAccount)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.createCampaign)
			r.Get("/", h.listCampaigns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getCampaign)
				r.Put("/", h.updateCampaign)
				r.Delete("/", h.deleteCampaign)

				r.Post("/drafts/generate", h.generateDrafts)
				r.Get("/drafts", h.listDrafts)
				r.Post("/schedule", h.createSchedule)
				r.Get("/logs", h.listLogs)
			})
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Get("/{id}", h.getDraft)
			r.Put("/{id}", h.updateDraft)
			r.Delete("/{id}", h.deleteDraft)
		})
	})

	return r
}

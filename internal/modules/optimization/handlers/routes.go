package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Get("/", h.HandleGetStatus)
		r.Post("/run", h.HandleRun)
		r.Get("/history", h.HandleGetHistory)
		r.Get("/runs/{id}", h.HandleGetRun)
	})
}

package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all position routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/positions", func(r chi.Router) {
		r.Get("/options", h.HandleGetOpenOptions) // Open option rows
		r.Get("/shares", h.HandleGetOpenShares)   // Open long positions
	})
}

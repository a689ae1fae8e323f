package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all IBKR routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ibkr", func(r chi.Router) {
		r.Post("/test", h.HandleTestConnection) // Test gateway connection
		r.Post("/sync", h.HandleSync)           // Run a sync pass
		r.Get("/status", h.HandleGetStatus)     // Connection, last run and store counts
		r.Get("/history", h.HandleGetHistory)   // Recorded sync runs
		r.Post("/disconnect", h.HandleDisconnect)
	})
}

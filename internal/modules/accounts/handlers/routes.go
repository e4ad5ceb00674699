package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all account routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.HandleListAccounts)
		r.Post("/", h.HandleCreateAccount)
		r.Get("/{id}", h.HandleGetAccount)
		r.Patch("/{id}", h.HandleUpdateAccount)
		r.Delete("/{id}", h.HandleDeactivateAccount)
	})
}

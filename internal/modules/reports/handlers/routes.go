package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all report routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/daily", h.HandleDailySummary)
		r.Get("/monthly", h.HandleMonthlySummary)
		r.Get("/cash-flow", h.HandleCashFlow)
	})
}

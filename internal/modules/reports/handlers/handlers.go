// Package handlers provides HTTP handlers for period reports.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/apperr"
	"github.com/sandoghapp/sandogh/internal/modules/reports"
	"github.com/sandoghapp/sandogh/pkg/jalali"
)

// Handler handles report HTTP requests
type Handler struct {
	service *reports.Service
	log     zerolog.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *reports.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "reports").Logger(),
	}
}

// HandleDailySummary handles GET /api/reports/daily?date=1403/01/10
func (h *Handler) HandleDailySummary(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		h.writeError(w, apperr.New(apperr.ErrInvalidDate, "date is required", nil))
		return
	}

	date, err := jalali.Parse(raw)
	if err != nil {
		h.writeError(w, apperr.Wrap(apperr.ErrInvalidDate, "invalid date "+raw, err))
		return
	}

	summary, err := h.service.DailySummary(date)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandleMonthlySummary handles GET /api/reports/monthly?year=1403&month=1
func (h *Handler) HandleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.ErrValidation, "year is required", nil))
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.ErrValidation, "month is required", nil))
		return
	}

	summary, err := h.service.MonthlySummary(year, month)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandleCashFlow handles GET /api/reports/cash-flow?start=2024-03-21&end=2024-04-21.
// Bounds are Gregorian, start inclusive and end exclusive.
func (h *Handler) HandleCashFlow(w http.ResponseWriter, r *http.Request) {
	start, err := parseGregorianDate(r.URL.Query().Get("start"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	end, err := parseGregorianDate(r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	report, err := h.service.CashFlow(start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func parseGregorianDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, apperr.New(apperr.ErrInvalidDate, "start and end dates are required", nil)
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.ErrInvalidDate, "invalid date "+s, err)
	}
	return ts, nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps an error to its HTTP status and a structured error body
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	body := map[string]interface{}{
		"code":    apperr.CodeOf(err),
		"message": err.Error(),
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body["message"] = appErr.Message
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
	}

	h.writeJSON(w, status, map[string]interface{}{"error": body})
}

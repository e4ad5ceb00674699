// Package handlers provides HTTP handlers for account administration.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/apperr"
	"github.com/sandoghapp/sandogh/internal/events"
	"github.com/sandoghapp/sandogh/internal/modules/accounts"
)

// Handler handles account HTTP requests
type Handler struct {
	repo         *accounts.Repository
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new accounts handler
func NewHandler(repo *accounts.Repository, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:         repo,
		eventManager: eventManager,
		log:          log.With().Str("handler", "accounts").Logger(),
	}
}

type createAccountRequest struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Bank           string `json:"bank"`
	OpeningBalance int64  `json:"opening_balance"`
	Description    string `json:"description"`
}

type updateAccountRequest struct {
	Name        *string `json:"name"`
	Bank        *string `json:"bank"`
	Description *string `json:"description"`
}

// HandleListAccounts handles GET /api/accounts
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "true"

	list, err := h.repo.List(activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": list,
		"count":    len(list),
	})
}

// HandleCreateAccount handles POST /api/accounts
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.New(apperr.ErrValidation, "invalid request body", nil))
		return
	}

	account, err := h.repo.Create(accounts.Account{
		Name:           req.Name,
		Type:           accounts.AccountType(req.Type),
		Bank:           req.Bank,
		OpeningBalance: req.OpeningBalance,
		Description:    req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.emitUpdated(account)
	h.writeJSON(w, http.StatusCreated, account)
}

// HandleGetAccount handles GET /api/accounts/{id}
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	account, err := h.repo.Get(id, true)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// HandleUpdateAccount handles PATCH /api/accounts/{id}.
// Only descriptive fields can change; type and balances cannot.
func (h *Handler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.New(apperr.ErrValidation, "invalid request body", nil))
		return
	}

	current, err := h.repo.Get(id, true)
	if err != nil {
		h.writeError(w, err)
		return
	}

	name, bank, description := current.Name, current.Bank, current.Description
	if req.Name != nil {
		name = *req.Name
	}
	if req.Bank != nil {
		bank = *req.Bank
	}
	if req.Description != nil {
		description = *req.Description
	}

	account, err := h.repo.Update(id, name, bank, description)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.emitUpdated(account)
	h.writeJSON(w, http.StatusOK, account)
}

// HandleDeactivateAccount handles DELETE /api/accounts/{id}.
// Accounts are never deleted; deactivation hides them from new transactions
// while their history stays intact.
func (h *Handler) HandleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.repo.Deactivate(id); err != nil {
		h.writeError(w, err)
		return
	}

	account, err := h.repo.Get(id, true)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.emitUpdated(account)
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) emitUpdated(account *accounts.Account) {
	if h.eventManager == nil {
		return
	}
	h.eventManager.EmitTyped(events.AccountUpdated, "accounts", &events.AccountEventData{
		AccountID: account.ID,
		Name:      account.Name,
		Active:    account.Active,
	})
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.ErrValidation, "invalid account id %q", raw)
	}
	return id, nil
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

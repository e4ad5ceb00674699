// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/apperr"
	"github.com/sandoghapp/sandogh/internal/modules/ledger"
	"github.com/sandoghapp/sandogh/pkg/jalali"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// transactionRequest is the JSON body for creating a transaction. The date
// is a Jalali "YYYY/MM/DD" string, the way shop staff enter it.
type transactionRequest struct {
	Date          string            `json:"date"`
	Kind          string            `json:"kind"`
	FromAccountID *int64            `json:"from_account_id"`
	ToAccountID   *int64            `json:"to_account_id"`
	Amount        int64             `json:"amount"`
	Description   string            `json:"description"`
	Reference     *ledger.Reference `json:"reference"`
	CreatedBy     string            `json:"created_by"`
}

// updateRequest carries corrections. Absent fields stay unchanged.
type updateRequest struct {
	Date          *string           `json:"date"`
	Amount        *int64            `json:"amount"`
	Description   *string           `json:"description"`
	Reference     *ledger.Reference `json:"reference"`
	FromAccountID *int64            `json:"from_account_id"`
	ToAccountID   *int64            `json:"to_account_id"`
}

// reverseRequest is the JSON body for reversing a transaction
type reverseRequest struct {
	Reason    string `json:"reason"`
	CreatedBy string `json:"created_by"`
}

// transactionView is the response shape: the canonical Gregorian date plus
// its Jalali rendering, so the UI never converts on its own.
type transactionView struct {
	ID            int64             `json:"id"`
	Date          string            `json:"date"`
	OccurredAt    string            `json:"occurred_at"`
	Kind          ledger.Kind       `json:"kind"`
	FromAccountID *int64            `json:"from_account_id,omitempty"`
	ToAccountID   *int64            `json:"to_account_id,omitempty"`
	Amount        int64             `json:"amount"`
	Description   string            `json:"description"`
	Reference     *ledger.Reference `json:"reference,omitempty"`
	Status        ledger.Status     `json:"status"`
	CreatedBy     string            `json:"created_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func toView(t *ledger.Transaction) transactionView {
	view := transactionView{
		ID:            t.ID,
		Date:          jalali.FromTime(t.OccurredAt).String(),
		OccurredAt:    t.OccurredAt.Format("2006-01-02"),
		Kind:          t.Kind,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount,
		Description:   t.Description,
		Status:        t.Status,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if !t.Reference.IsZero() {
		ref := t.Reference
		view.Reference = &ref
	}
	return view
}

// HandleCreateTransaction handles POST /api/ledger/transactions
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.New(apperr.ErrValidation, "invalid request body", nil))
		return
	}

	occurredAt, err := parseJalaliDate(req.Date)
	if err != nil {
		h.writeError(w, err)
		return
	}

	transaction := ledger.Transaction{
		OccurredAt:    occurredAt,
		Kind:          ledger.Kind(req.Kind),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Description:   req.Description,
		CreatedBy:     req.CreatedBy,
	}
	if req.Reference != nil {
		transaction.Reference = *req.Reference
	}

	created, err := h.service.Create(transaction)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toView(created))
}

// HandleGetTransaction handles GET /api/ledger/transactions/{id}
func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	transaction, err := h.service.GetByID(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := map[string]interface{}{"transaction": toView(transaction)}

	link, err := h.service.GetReversalLink(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if link != nil {
		response["reversal"] = link
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleListTransactions handles GET /api/ledger/transactions.
// Date filters are Jalali and inclusive on both ends.
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	filters, err := parseListFilters(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	transactions, err := h.service.List(filters)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]transactionView, 0, len(transactions))
	for i := range transactions {
		views = append(views, toView(&transactions[i]))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": views,
		"count":        len(views),
	})
}

// HandleUpdateTransaction handles PATCH /api/ledger/transactions/{id}
func (h *Handler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.New(apperr.ErrValidation, "invalid request body", nil))
		return
	}

	params := ledger.UpdateParams{
		Amount:        req.Amount,
		Description:   req.Description,
		Reference:     req.Reference,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
	}
	if req.Date != nil {
		occurredAt, err := parseJalaliDate(*req.Date)
		if err != nil {
			h.writeError(w, err)
			return
		}
		params.OccurredAt = &occurredAt
	}

	updated, err := h.service.Update(id, params)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toView(updated))
}

// HandleReverseTransaction handles POST /api/ledger/transactions/{id}/reverse
func (h *Handler) HandleReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req reverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.New(apperr.ErrValidation, "invalid request body", nil))
		return
	}

	reversal, err := h.service.Reverse(id, req.Reason, req.CreatedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"reversal": toView(reversal),
		"message":  "Transaction reversed",
	})
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.ErrValidation, "invalid transaction id %q", raw)
	}
	return id, nil
}

// parseJalaliDate parses and converts a required Jalali date string.
// An empty or malformed date is an error; today is never assumed.
func parseJalaliDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, apperr.New(apperr.ErrInvalidDate, "date is required", nil)
	}
	date, err := jalali.Parse(s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.ErrInvalidDate, "invalid date "+s, err)
	}
	ts, err := date.ToGregorian()
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.ErrInvalidDate, "invalid date "+s, err)
	}
	return ts, nil
}

func parseListFilters(r *http.Request) (ledger.ListFilters, error) {
	var filters ledger.ListFilters
	query := r.URL.Query()

	if from := query.Get("from"); from != "" {
		ts, err := parseJalaliDate(from)
		if err != nil {
			return filters, err
		}
		filters.From = &ts
	}
	if to := query.Get("to"); to != "" {
		date, err := jalali.Parse(to)
		if err != nil {
			return filters, apperr.Wrap(apperr.ErrInvalidDate, "invalid date "+to, err)
		}
		// Inclusive upper bound: filter up to the start of the next day
		_, end, err := jalali.DayRange(date)
		if err != nil {
			return filters, apperr.Wrap(apperr.ErrInvalidDate, "invalid date "+to, err)
		}
		filters.To = &end
	}
	if kind := query.Get("kind"); kind != "" {
		k := ledger.Kind(kind)
		if !k.Valid() {
			return filters, apperr.Newf(apperr.ErrValidation, "unknown transaction kind %q", kind)
		}
		filters.Kind = &k
	}
	if status := query.Get("status"); status != "" {
		s := ledger.Status(status)
		filters.Status = &s
	}
	if account := query.Get("account_id"); account != "" {
		id, err := strconv.ParseInt(account, 10, 64)
		if err != nil {
			return filters, apperr.Newf(apperr.ErrValidation, "invalid account id %q", account)
		}
		filters.AccountID = &id
	}
	if raw := query.Get("min_amount"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filters, apperr.Newf(apperr.ErrValidation, "invalid min_amount %q", raw)
		}
		filters.MinAmount = &v
	}
	if raw := query.Get("max_amount"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filters, apperr.Newf(apperr.ErrValidation, "invalid max_amount %q", raw)
		}
		filters.MaxAmount = &v
	}
	if raw := query.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			filters.Limit = v
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			filters.Offset = v
		}
	}

	return filters, nil
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

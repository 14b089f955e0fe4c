package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tally/internal/core"
	"tally/internal/storage"
)

const dateLayout = "2006-01-02"

type transactionRequest struct {
	Name                 string `json:"name"`
	Amount               string `json:"amount"`
	Type                 string `json:"type"`
	Notes                string `json:"notes,omitempty"`
	Date                 string `json:"date,omitempty"`
	IsSettlement         bool   `json:"isSettlement,omitempty"`
	RelatedTransactionID string `json:"relatedTransactionId,omitempty"`
}

type transactionResponse struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Amount               string `json:"amount"`
	Type                 string `json:"type"`
	Notes                string `json:"notes,omitempty"`
	Date                 string `json:"date"`
	IsSettlement         bool   `json:"isSettlement"`
	RelatedTransactionID string `json:"relatedTransactionId,omitempty"`
}

type summaryResponse struct {
	Balance         string `json:"balance"`
	TotalIncome     string `json:"totalIncome"`
	TotalExpense    string `json:"totalExpense"`
	TotalPayable    string `json:"totalPayable"`
	TotalReceivable string `json:"totalReceivable"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (req transactionRequest) toDraft() (core.Draft, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.Draft{}, err
	}

	var date time.Time
	if v := strings.TrimSpace(req.Date); v != "" {
		date, err = time.Parse(dateLayout, v)
		if err != nil {
			return core.Draft{}, errors.New("invalid date, expected YYYY-MM-DD")
		}
	}

	return core.Draft{
		Name:                 req.Name,
		Amount:               core.Money{Cents: cents},
		Type:                 core.TransactionType(strings.TrimSpace(req.Type)),
		Notes:                req.Notes,
		Date:                 date,
		IsSettlement:         req.IsSettlement,
		RelatedTransactionID: req.RelatedTransactionID,
	}, nil
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                   tx.ID,
		Name:                 tx.Name,
		Amount:               tx.Amount.String(),
		Type:                 string(tx.Type),
		Notes:                tx.Notes,
		Date:                 tx.Date.Format(dateLayout),
		IsSettlement:         tx.IsSettlement,
		RelatedTransactionID: tx.RelatedTransactionID,
	}
}

func toSummaryResponse(a core.AggregateState) summaryResponse {
	return summaryResponse{
		Balance:         a.Balance.String(),
		TotalIncome:     a.TotalIncome.String(),
		TotalExpense:    a.TotalExpense.String(),
		TotalPayable:    a.TotalPayable.String(),
		TotalReceivable: a.TotalReceivable.String(),
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	tx, err := s.ledger.CreateTransaction(r.Context(), userID, draft)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	s.summaryCache.Delete(userID)
	writeJSON(w, r, http.StatusCreated, toTransactionResponse(*tx))
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	tx, err := s.ledger.EditTransaction(r.Context(), userID, id, draft)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	s.summaryCache.Delete(userID)
	writeJSON(w, r, http.StatusOK, toTransactionResponse(*tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.ledger.DeleteTransaction(r.Context(), userID, id); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	s.summaryCache.Delete(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if cached, found := s.summaryCache.Get(userID); found {
		writeJSON(w, r, http.StatusOK, cached.(summaryResponse))
		return
	}

	state, err := s.ledger.GetSummary(r.Context(), userID)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	resp := toSummaryResponse(state)
	s.summaryCache.SetDefault(userID, resp)
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	items, err := s.ledger.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	out := make([]transactionResponse, 0, len(items))
	for _, tx := range items {
		out = append(out, toTransactionResponse(tx))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{Query: strings.TrimSpace(q.Get("q"))}

	if v := strings.TrimSpace(q.Get("type")); v != "" {
		t := core.TransactionType(v)
		if !t.Valid() {
			return storage.Filter{}, errors.New("invalid type filter")
		}
		f.Type = t
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			return storage.Filter{}, errors.New("invalid from date, expected YYYY-MM-DD")
		}
		f.From = from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			return storage.Filter{}, errors.New("invalid to date, expected YYYY-MM-DD")
		}
		// Inclusive upper bound for a calendar date.
		f.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return storage.Filter{}, errors.New("invalid limit")
		}
		f.Limit = n
	}
	return f, nil
}

// requireUser extracts the account scope from the X-User-ID header.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		writeError(w, r, http.StatusUnauthorized, errors.New("missing X-User-ID header"))
		return "", false
	}
	return userID, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrInvalidSettlementPairing),
		errors.Is(err, core.ErrSettlementExceedsOutstanding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrMissingRelated),
		errors.Is(err, core.ErrDanglingRelated):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response", "error", err, "url", r.URL.Path)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err, "method", r.Method, "url", r.URL.Path, "status", status)
		err = errors.New("internal error")
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

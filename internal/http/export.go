package http

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// handleExportTransactions streams the filtered history as CSV.
func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		`attachment; filename="transactions-`+time.Now().UTC().Format(dateLayout)+`.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "name", "amount", "type", "notes", "date", "is_settlement", "related_transaction_id"})
	for _, tx := range items {
		record := []string{
			tx.ID,
			tx.Name,
			tx.Amount.String(),
			string(tx.Type),
			tx.Notes,
			tx.Date.Format(dateLayout),
			strconv.FormatBool(tx.IsSettlement),
			tx.RelatedTransactionID,
		}
		if err := cw.Write(record); err != nil {
			slog.ErrorContext(r.Context(), "Failed to write CSV record", "error", err, "transaction_id", tx.ID)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.ErrorContext(r.Context(), "Failed to flush CSV export", "error", err)
	}
}

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"messbook/internal/core"
	"messbook/internal/ledger"
	"messbook/internal/storage"
)

// unknownMemberLabel is shown for transactions whose target was removed
// from the roster after the fact.
const unknownMemberLabel = "Unknown member"

type createTransactionRequest struct {
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	Kind           string  `json:"kind"`
	TargetMemberID string  `json:"target_member_id,omitempty"`
	Date           string  `json:"date"`
}

type transactionResponse struct {
	ID             string  `json:"id"`
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	AmountDisplay  string  `json:"amount_display"`
	Kind           string  `json:"kind"`
	TargetMemberID string  `json:"target_member_id,omitempty"`
	TargetName     string  `json:"target_name,omitempty"`
	Date           string  `json:"date"`
}

func (s *Server) toTransactionResponse(t core.Transaction, names map[string]string) transactionResponse {
	resp := transactionResponse{
		ID:             t.ID,
		Description:    t.Description,
		Amount:         t.Amount,
		AmountDisplay:  core.FormatAmount(t.Amount, s.currencyCode),
		Kind:           string(t.Kind),
		TargetMemberID: t.TargetMemberID,
		Date:           t.Date.Format(dateLayout),
	}
	if t.TargetMemberID != "" {
		name, ok := names[t.TargetMemberID]
		if !ok {
			name = unknownMemberLabel
		}
		resp.TargetName = name
	}
	return resp
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r.Context())

	transactions, err := s.ledger.Transactions(r.Context(), uid)
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions failed", "error", err)
		internalError(w, "could not load transactions")
		return
	}
	members, err := s.ledger.Members(r.Context(), uid)
	if err != nil {
		slog.ErrorContext(r.Context(), "List members failed", "error", err)
		internalError(w, "could not load transactions")
		return
	}

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, s.toTransactionResponse(t, names))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		unprocessable(w, "date must be formatted as YYYY-MM-DD")
		return
	}

	t, err := s.ledger.AddTransaction(r.Context(), userID(r.Context()), core.Transaction{
		Description:    sanitizeInput(req.Description),
		Amount:         req.Amount,
		Kind:           core.TransactionKind(req.Kind),
		TargetMemberID: req.TargetMemberID,
		Date:           date,
	})
	switch {
	case errors.Is(err, ledger.ErrUnknownTarget):
		unprocessable(w, "target member does not exist")
		return
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrMissingTarget):
		unprocessable(w, err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Create transaction failed", "error", err)
		internalError(w, "could not record transaction")
		return
	}

	names := map[string]string{}
	if t.TargetMemberID != "" {
		if members, err := s.ledger.Members(r.Context(), userID(r.Context())); err == nil {
			for _, m := range members {
				names[m.ID] = m.Name
			}
		}
	}
	writeJSON(w, http.StatusCreated, s.toTransactionResponse(t, names))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("id")
	err := s.ledger.RemoveTransaction(r.Context(), userID(r.Context()), txID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		notFound(w, "transaction not found")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete transaction failed", "error", err, "tx_id", txID)
		internalError(w, "could not delete transaction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

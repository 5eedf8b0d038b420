package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/services"
)

type accountView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

type transactionView struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Note        string `json:"note"`
}

type mutationView struct {
	Transaction transactionView `json:"transaction"`
	Account     accountView     `json:"account"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorView struct {
	Error errorBody `json:"error"`
}

func toAccountView(a core.Account) accountView {
	return accountView{
		ID:           a.ID,
		Name:         a.Name,
		BalanceCents: a.BalanceCents,
		Balance:      core.FormatCents(a.BalanceCents),
	}
}

func toTransactionView(t core.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Type:        string(t.Type),
		AmountCents: t.AmountCents,
		Amount:      core.FormatCents(t.AmountCents),
		Date:        t.Date.String(),
		Note:        t.Note,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses: validation failures are
// 422, an overdraft rejection is 409, missing entities are 404, everything
// else is a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var kind string

	switch {
	case core.IsValidation(err):
		status = http.StatusUnprocessableEntity
		kind = "validation"
	case errors.Is(err, core.ErrOverdraft):
		status = http.StatusConflict
		kind = "overdraft"
	case core.IsNotFound(err):
		status = http.StatusNotFound
		kind = "not_found"
	default:
		status = http.StatusInternalServerError
		kind = "storage"
		s.logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}

	writeJSON(w, status, errorView{Error: errorBody{Kind: kind, Message: err.Error()}})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, toAccountView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid JSON body"}})
		return
	}

	account, err := s.ledger.CreateAccount(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountView(account))
}

func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid account id"}})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid JSON body"}})
		return
	}

	if err := s.ledger.RenameAccount(r.Context(), id, req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}

	account, err := s.ledger.GetAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid account id"}})
		return
	}

	if err := s.ledger.DeleteAccount(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid account id"}})
		return
	}

	if _, err := s.ledger.GetAccount(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	transactions, err := s.ledger.ListTransactions(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]transactionView, 0, len(transactions))
	for _, t := range transactions {
		views = append(views, toTransactionView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

type transactionRequest struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Note   string `json:"note"`
}

func (req transactionRequest) input() services.TransactionInput {
	return services.TransactionInput{
		Type:   req.Type,
		Amount: req.Amount,
		Date:   req.Date,
		Note:   req.Note,
	}
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid account id"}})
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid JSON body"}})
		return
	}

	created, account, err := s.ledger.AddTransaction(r.Context(), id, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationView{
		Transaction: toTransactionView(created),
		Account:     toAccountView(account),
	})
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid transaction id"}})
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid JSON body"}})
		return
	}

	updated, account, err := s.ledger.EditTransaction(r.Context(), id, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationView{
		Transaction: toTransactionView(updated),
		Account:     toAccountView(account),
	})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: errorBody{Kind: "bad_request", Message: "invalid transaction id"}})
		return
	}

	account, err := s.ledger.DeleteTransaction(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Account accountView `json:"account"`
	}{Account: toAccountView(account)})
}

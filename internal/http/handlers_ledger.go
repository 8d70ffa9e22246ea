package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"duit/internal/core"
	"duit/internal/docstore"
)

// requireFamilyMember checks the actor belongs to the family in the
// path. Returns false after writing the error response.
func (s *Server) requireFamilyMember(w http.ResponseWriter, r *http.Request, familyID, uid string) bool {
	family, err := s.directory.GetFamily(r.Context(), familyID)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Keluarga tidak ditemukan")
		return false
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Get family failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not load family")
		return false
	}
	if _, ok := family.Members[uid]; !ok {
		writeError(w, http.StatusForbidden, "Anda bukan anggota keluarga ini")
		return false
	}
	return true
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	if !s.requireFamilyMember(w, r, familyID, uid) {
		return
	}
	wallets, err := s.ledger.ListWallets(r.Context(), familyID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List wallets failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not list wallets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": wallets})
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	if !s.requireFamilyMember(w, r, familyID, uid) {
		return
	}
	var req struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Amount      amountField `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	wallet, res, err := s.ledger.CreateWallet(r.Context(), familyID, req.Name, req.Description, req.Amount.Money())
	if err != nil {
		slog.ErrorContext(r.Context(), "Create wallet failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not create wallet")
		return
	}
	writeResult(w, res, wallet)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	if !s.requireFamilyMember(w, r, familyID, uid) {
		return
	}
	budgets, err := s.ledger.ListBudgets(r.Context(), familyID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List budgets failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not list budgets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": budgets})
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	if !s.requireFamilyMember(w, r, familyID, uid) {
		return
	}
	var req struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Amount      amountField `json:"amount"`
		Limit       amountField `json:"limit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	budget, res, err := s.ledger.CreateBudget(r.Context(), familyID, req.Name, req.Description, req.Amount.Money(), req.Limit.Money())
	if err != nil {
		slog.ErrorContext(r.Context(), "Create budget failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not create budget")
		return
	}
	writeResult(w, res, budget)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	if !s.requireFamilyMember(w, r, familyID, uid) {
		return
	}
	var req struct {
		SourceID string      `json:"sourceId"`
		DestID   string      `json:"destId"`
		Amount   amountField `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.ledger.Transfer(r.Context(), familyID, uid, req.SourceID, req.DestID, req.Amount.Money())
	if err != nil {
		slog.ErrorContext(r.Context(), "Transfer failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not execute transfer")
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	if !s.requireFamilyMember(w, r, familyID, uid) {
		return
	}

	ref := time.Now()
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := time.Parse("2006-01", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid month, use YYYY-MM")
			return
		}
		ref = parsed
	}

	txs, err := s.ledger.ListTransactions(r.Context(), familyID, ref)
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not list transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": txs})
}

func (s *Server) handleRecordDaily(w http.ResponseWriter, r *http.Request, uid string) {
	familyID := r.PathValue("id")
	if !s.requireFamilyMember(w, r, familyID, uid) {
		return
	}
	var req struct {
		Type        string      `json:"type"`
		TargetID    string      `json:"targetId"`
		Amount      amountField `json:"amount"`
		Description string      `json:"description"`
		Date        string      `json:"date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, use YYYY-MM-DD")
			return
		}
		date = parsed
	} else {
		date = time.Now()
	}

	tx, res, err := s.ledger.RecordDaily(r.Context(), familyID, uid,
		core.TransactionKind(req.Type), req.TargetID, req.Amount.Money(), req.Description, date)
	if err != nil {
		slog.ErrorContext(r.Context(), "Record daily entry failed", "error", err, "family_id", familyID)
		writeError(w, http.StatusInternalServerError, "could not record entry")
		return
	}
	writeResult(w, res, tx)
}

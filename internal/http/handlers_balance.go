package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
)

type setBalanceRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	EffectiveDate string           `json:"effective_date"`
}

// PUT /balance
func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	var req setBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	if req.Amount == nil {
		s.writeError(w, r, applog.OpUpdate, core.NewValidationError("amount", "amount is required"))
		return
	}
	effective, err := parseDate("effective_date", req.EffectiveDate)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}

	snap, err := s.engine.SetCurrentBalance(r.Context(), ownerFrom(r), *req.Amount, effective, req.Currency)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(snap))
}

// GET /balance
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.CurrentBalance(r.Context(), ownerFrom(r))
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(snap))
}

// GET /balance/history
func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.BalanceHistory(r.Context(), ownerFrom(r))
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]balanceResponse, 0, len(history))
	for _, b := range history {
		out = append(out, toBalance(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

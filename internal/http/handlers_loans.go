package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
)

type createLoanRequest struct {
	Name               string          `json:"name"`
	OriginalAmount     decimal.Decimal `json:"original_amount"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	AnnualInterestRate decimal.Decimal `json:"annual_interest_rate"`
	TotalPayments      int             `json:"total_payments"`
	Currency           string          `json:"currency"`
	StartDate          string          `json:"start_date"`
	DayOfMonth         int             `json:"day_of_month"`
}

type loanPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// POST /loans
func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	loan, err := s.engine.CreateLoan(r.Context(), core.Loan{
		OwnerID:            ownerFrom(r),
		Name:               req.Name,
		OriginalAmount:     req.OriginalAmount,
		MonthlyPayment:     req.MonthlyPayment,
		AnnualInterestRate: req.AnnualInterestRate,
		TotalPayments:      req.TotalPayments,
		Currency:           req.Currency,
		StartDate:          start,
		DayOfMonth:         req.DayOfMonth,
	})
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoan(loan))
}

// POST /loans/{id}/payments
func (s *Server) handleLoanPayment(w http.ResponseWriter, r *http.Request) {
	var req loanPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, applog.OpPayment, err)
		return
	}
	if req.Amount == nil {
		s.writeError(w, r, applog.OpPayment, core.NewValidationError("amount", "amount is required"))
		return
	}

	loan, err := s.engine.RecordLoanPayment(r.Context(), ownerFrom(r), mux.Vars(r)["id"], *req.Amount)
	if err != nil {
		s.writeError(w, r, applog.OpPayment, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoan(loan))
}

// GET /loans/{id}/schedule
func (s *Server) handleLoanSchedule(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.LoanSchedule(r.Context(), ownerFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toSchedule(entries)})
}

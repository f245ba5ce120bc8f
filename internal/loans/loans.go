// Package loans creates loans and records actual payments against them.
package loans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/currency"
	"cashflow/internal/keylock"
	"cashflow/internal/schedule"
)

// Store persists loans. UpdateLoan runs fn inside a write transaction that
// holds the loan row exclusively, and persists the result only if fn succeeds.
type Store interface {
	CreateLoan(ctx context.Context, l core.Loan) error
	GetLoan(ctx context.Context, ownerID, id string) (core.Loan, error)
	UpdateLoan(ctx context.Context, ownerID, id string, fn func(*core.Loan) error) (core.Loan, error)
}

type Service struct {
	store Store
	locks *keylock.Locker
	base  string
	now   func() time.Time
}

func NewService(store Store, baseCurrency string, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, locks: keylock.New(), base: baseCurrency, now: now}
}

// Create validates the loan terms and stores a fresh loan with nothing paid.
func (s *Service) Create(ctx context.Context, l core.Loan) (core.Loan, error) {
	if l.OwnerID == "" {
		return core.Loan{}, core.NewValidationError("owner_id", "owner is required")
	}
	if l.Name == "" {
		return core.Loan{}, core.NewValidationError("name", "name is required")
	}
	if err := schedule.ValidateLoanTerms(l.OriginalAmount, l.MonthlyPayment, l.AnnualInterestRate, l.TotalPayments); err != nil {
		return core.Loan{}, err
	}
	l.Currency = core.NormalizeCurrency(l.Currency, s.base)
	if err := currency.ValidateCode(l.Currency); err != nil {
		return core.Loan{}, err
	}
	if l.StartDate.IsZero() {
		return core.Loan{}, core.NewValidationError("start_date", "start date is required")
	}
	l.StartDate = core.DateOf(l.StartDate)
	if l.DayOfMonth == 0 {
		l.DayOfMonth = l.StartDate.Day()
	}
	if l.DayOfMonth < 1 || l.DayOfMonth > 31 {
		return core.Loan{}, core.NewValidationError("day_of_month", core.ErrInvalidDayOfMonth.Error())
	}

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.OriginalAmount = core.Round2(l.OriginalAmount)
	l.MonthlyPayment = core.Round2(l.MonthlyPayment)
	l.RemainingBalance = l.OriginalAmount
	l.PaymentsMade = 0
	l.UpdatedAt = s.now().UTC()

	if err := s.store.CreateLoan(ctx, l); err != nil {
		return core.Loan{}, fmt.Errorf("create loan: %w", err)
	}

	slog.InfoContext(ctx, "Loan created",
		"owner_id", l.OwnerID,
		"loan_id", l.ID,
		"original_amount", l.OriginalAmount.StringFixed(core.MoneyPlaces),
		"total_payments", l.TotalPayments)
	return l, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (core.Loan, error) {
	return s.store.GetLoan(ctx, ownerID, id)
}

// RecordPayment applies one actual payment as a locked read-modify-write.
// The whole amount reduces the remaining balance and payments_made grows by
// one.
func (s *Service) RecordPayment(ctx context.Context, ownerID, loanID string, amount decimal.Decimal) (core.Loan, error) {
	amount = core.Round2(amount)
	if !amount.IsPositive() {
		return core.Loan{}, core.NewValidationError("amount", "payment amount must be greater than zero")
	}

	unlock := s.locks.Lock(loanID)
	defer unlock()

	now := s.now().UTC()
	updated, err := s.store.UpdateLoan(ctx, ownerID, loanID, func(l *core.Loan) error {
		return applyPayment(l, amount, now)
	})
	if err != nil {
		return core.Loan{}, err
	}

	slog.InfoContext(ctx, "Loan payment recorded",
		"owner_id", ownerID,
		"loan_id", loanID,
		"amount", amount.StringFixed(core.MoneyPlaces),
		"payments_made", updated.PaymentsMade,
		"remaining_balance", updated.RemainingBalance.StringFixed(core.MoneyPlaces))
	return updated, nil
}

func applyPayment(l *core.Loan, amount decimal.Decimal, now time.Time) error {
	if err := l.CheckIntegrity(); err != nil {
		return err
	}
	if l.PaymentsMade >= l.TotalPayments || l.RemainingBalance.IsZero() {
		return core.NewValidationError("amount", "loan is already fully paid")
	}
	if amount.GreaterThan(l.RemainingBalance) {
		return core.NewValidationError("amount", fmt.Sprintf(
			"payment %s exceeds remaining balance %s",
			core.FormatAmount(amount, l.Currency), core.FormatAmount(l.RemainingBalance, l.Currency)))
	}
	if l.PaymentsMade+1 == l.TotalPayments && amount.LessThan(l.RemainingBalance) {
		return core.NewValidationError("amount", fmt.Sprintf(
			"final payment must settle the remaining balance %s",
			core.FormatAmount(l.RemainingBalance, l.Currency)))
	}

	l.RemainingBalance = l.RemainingBalance.Sub(amount)
	l.PaymentsMade++
	l.UpdatedAt = now
	return nil
}

// Schedule derives the amortization schedule of a stored loan.
func (s *Service) Schedule(ctx context.Context, ownerID, loanID string) ([]schedule.AmortizationEntry, error) {
	l, err := s.store.GetLoan(ctx, ownerID, loanID)
	if err != nil {
		return nil, err
	}
	return schedule.Amortize(l)
}

package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

const (
	Monthly    BillingCycle = "monthly"
	Quarterly  BillingCycle = "quarterly"
	SemiAnnual BillingCycle = "semi_annual"
	Annual     BillingCycle = "annual"
)

type (
	Direction string

	BillingCycle string

	// RecurringCommitment is a fixed income or expense charged on the same
	// day every month.
	RecurringCommitment struct {
		ID         string
		OwnerID    string
		Name       string
		Amount     decimal.Decimal
		Currency   string
		Direction  Direction
		DayOfMonth int
		StartDate  time.Time
		EndDate    time.Time // zero means open-ended
		Paused     bool
		PausedAt   time.Time
		ResumedAt  time.Time
		CreatedAt  time.Time
	}

	// Installment splits a purchase into NumberOfPayments monthly charges.
	Installment struct {
		ID                string
		OwnerID           string
		Name              string
		TotalAmount       decimal.Decimal
		NumberOfPayments  int
		MonthlyAmount     decimal.Decimal
		PaymentsCompleted int
		Currency          string
		StartDate         time.Time
		DayOfMonth        int
	}

	Loan struct {
		ID                 string
		OwnerID            string
		Name               string
		OriginalAmount     decimal.Decimal
		MonthlyPayment     decimal.Decimal
		AnnualInterestRate decimal.Decimal // percent, 3.5 means 3.5%
		TotalPayments      int
		PaymentsMade       int
		RemainingBalance   decimal.Decimal
		Currency           string
		StartDate          time.Time
		DayOfMonth         int
		UpdatedAt          time.Time
	}

	Subscription struct {
		ID              string
		OwnerID         string
		Name            string
		Amount          decimal.Decimal
		Currency        string
		BillingCycle    BillingCycle
		NextRenewalDate time.Time
		AutoRenew       bool
		Active          bool
	}

	// ExpectedIncome is a one-off income override for a calendar month.
	ExpectedIncome struct {
		ID       string
		OwnerID  string
		Month    time.Time // first day of the month
		Amount   decimal.Decimal
		Currency string
		Note     string
	}

	Transaction struct {
		ID          string
		OwnerID     string
		Description string
		Amount      decimal.Decimal
		Currency    string
		Direction   Direction
		Date        time.Time
	}

	// Commitments is every input record of one owner context.
	Commitments struct {
		Fixed          []RecurringCommitment
		Installments   []Installment
		Loans          []Loan
		Subscriptions  []Subscription
		ExpectedIncome []ExpectedIncome
		Transactions   []Transaction
	}
)

var (
	ErrInvalidDirection  = errors.New("invalid direction")
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
	ErrInvalidCycle      = errors.New("invalid billing cycle")
)

func (d Direction) Valid() bool {
	return d == Income || d == Expense
}

// Months returns the cycle length in calendar months.
func (c BillingCycle) Months() (int, error) {
	switch c {
	case Monthly:
		return 1, nil
	case Quarterly:
		return 3, nil
	case SemiAnnual:
		return 6, nil
	case Annual:
		return 12, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCycle, string(c))
	}
}

// Pause stops the commitment from contributing until Resume is called.
func (rc *RecurringCommitment) Pause(at time.Time) {
	if rc.Paused {
		return
	}
	rc.Paused = true
	rc.PausedAt = at
}

func (rc *RecurringCommitment) Resume(at time.Time) {
	if !rc.Paused {
		return
	}
	rc.Paused = false
	rc.ResumedAt = at
}

func (rc RecurringCommitment) Validate() error {
	if !rc.Direction.Valid() {
		return NewValidationError("direction", ErrInvalidDirection.Error())
	}
	if rc.DayOfMonth < 1 || rc.DayOfMonth > 31 {
		return NewValidationError("day_of_month", ErrInvalidDayOfMonth.Error())
	}
	if !rc.Amount.IsPositive() {
		return NewValidationError("amount", "amount must be greater than zero")
	}
	if rc.StartDate.IsZero() {
		return NewValidationError("start_date", "start date is required")
	}
	if !rc.EndDate.IsZero() && rc.EndDate.Before(rc.StartDate) {
		return NewValidationError("end_date", "end date must not be before start date")
	}
	return nil
}

// Validate checks the installment for internal consistency. A completed count
// beyond the plan is reported as an integrity problem, not clamped.
func (in Installment) Validate() error {
	if in.NumberOfPayments < 1 {
		return NewValidationError("number_of_payments", "number of payments must be at least 1")
	}
	if !in.TotalAmount.IsPositive() {
		return NewValidationError("total_amount", "total amount must be greater than zero")
	}
	if in.DayOfMonth < 1 || in.DayOfMonth > 31 {
		return NewValidationError("day_of_month", ErrInvalidDayOfMonth.Error())
	}
	if in.StartDate.IsZero() {
		return NewValidationError("start_date", "start date is required")
	}
	if in.PaymentsCompleted < 0 || in.PaymentsCompleted > in.NumberOfPayments {
		return NewIntegrityError("installment", in.ID,
			fmt.Sprintf("payments completed %d outside 0..%d", in.PaymentsCompleted, in.NumberOfPayments))
	}
	return nil
}

// CheckIntegrity verifies the stored payment counters of a loan.
func (l Loan) CheckIntegrity() error {
	if l.PaymentsMade < 0 || l.PaymentsMade > l.TotalPayments {
		return NewIntegrityError("loan", l.ID,
			fmt.Sprintf("payments made %d outside 0..%d", l.PaymentsMade, l.TotalPayments))
	}
	if l.RemainingBalance.IsNegative() {
		return NewIntegrityError("loan", l.ID, "remaining balance is negative")
	}
	return nil
}

func (s Subscription) Validate() error {
	if _, err := s.BillingCycle.Months(); err != nil {
		return NewValidationError("billing_cycle", err.Error())
	}
	if !s.Amount.IsPositive() {
		return NewValidationError("amount", "amount must be greater than zero")
	}
	if s.NextRenewalDate.IsZero() {
		return NewValidationError("next_renewal_date", "next renewal date is required")
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Direction.Valid() {
		return NewValidationError("direction", ErrInvalidDirection.Error())
	}
	if !t.Amount.IsPositive() {
		return NewValidationError("amount", "amount must be greater than zero")
	}
	if t.Date.IsZero() {
		return NewValidationError("date", "date is required")
	}
	return nil
}

// NormalizeCurrency upper-cases a currency code and substitutes base when empty.
func NormalizeCurrency(code, base string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return base
	}
	return code
}

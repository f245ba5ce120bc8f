// Package seed loads commitment records from a JSON document into a store.
// The API manages balances, loans and alerts; recurring inputs arrive here.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/schedule"
)

// Target receives the commitment records.
type Target interface {
	SaveFixed(ctx context.Context, c core.RecurringCommitment) error
	SaveInstallment(ctx context.Context, in core.Installment) error
	SaveSubscription(ctx context.Context, s core.Subscription) error
	SaveExpectedIncome(ctx context.Context, ei core.ExpectedIncome) error
	SaveTransaction(ctx context.Context, tx core.Transaction) error
}

// Engine receives the records that go through validated engine operations.
type Engine interface {
	SetCurrentBalance(ctx context.Context, ownerID string, amount decimal.Decimal, effective time.Time, currency string) (core.BalanceSnapshot, error)
	CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error)
}

// Date is a YYYY-MM-DD calendar date.
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

type Document struct {
	Balances       []Balance        `json:"balances"`
	Fixed          []Fixed          `json:"fixed"`
	Installments   []Installment    `json:"installments"`
	Loans          []Loan           `json:"loans"`
	Subscriptions  []Subscription   `json:"subscriptions"`
	ExpectedIncome []ExpectedIncome `json:"expected_income"`
	Transactions   []Transaction    `json:"transactions"`
}

type Balance struct {
	OwnerID  string          `json:"owner_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Date     Date            `json:"effective_date"`
}

type Fixed struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Direction  core.Direction  `json:"direction"`
	DayOfMonth int             `json:"day_of_month"`
	StartDate  Date            `json:"start_date"`
	EndDate    Date            `json:"end_date"`
	Paused     bool            `json:"paused"`
}

type Installment struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	Name              string          `json:"name"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	NumberOfPayments  int             `json:"number_of_payments"`
	PaymentsCompleted int             `json:"payments_completed"`
	Currency          string          `json:"currency"`
	StartDate         Date            `json:"start_date"`
	DayOfMonth        int             `json:"day_of_month"`
}

type Loan struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id"`
	Name               string          `json:"name"`
	OriginalAmount     decimal.Decimal `json:"original_amount"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	AnnualInterestRate decimal.Decimal `json:"annual_interest_rate"`
	TotalPayments      int             `json:"total_payments"`
	Currency           string          `json:"currency"`
	StartDate          Date            `json:"start_date"`
	DayOfMonth         int             `json:"day_of_month"`
}

type Subscription struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Name            string            `json:"name"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	BillingCycle    core.BillingCycle `json:"billing_cycle"`
	NextRenewalDate Date              `json:"next_renewal_date"`
	AutoRenew       bool              `json:"auto_renew"`
	Active          *bool             `json:"active"` // omitted means active
}

type ExpectedIncome struct {
	ID       string          `json:"id"`
	OwnerID  string          `json:"owner_id"`
	Month    Date            `json:"month"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Note     string          `json:"note"`
}

type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Direction   core.Direction  `json:"direction"`
	Date        Date            `json:"date"`
}

// LoadFile decodes a seed document from path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	var doc Document
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return &doc, nil
}

// Stats counts applied records.
type Stats struct {
	Balances, Fixed, Installments, Loans, Subscriptions, ExpectedIncome, Transactions int
	// Skipped counts loans already present from an earlier run.
	Skipped int
}

// Apply writes every record of doc. Records without an id get a new one, so
// re-applying a document without ids duplicates them. It stops at the first
// failure.
func Apply(ctx context.Context, doc *Document, target Target, engine Engine) (Stats, error) {
	var st Stats

	for _, b := range doc.Balances {
		if _, err := engine.SetCurrentBalance(ctx, b.OwnerID, b.Amount, b.Date.Time, b.Currency); err != nil {
			return st, fmt.Errorf("balance for %s: %w", b.OwnerID, err)
		}
		st.Balances++
	}

	for _, r := range doc.Fixed {
		c := core.RecurringCommitment{
			ID: idOr(r.ID), OwnerID: r.OwnerID, Name: r.Name,
			Amount: r.Amount, Currency: r.Currency, Direction: r.Direction,
			DayOfMonth: r.DayOfMonth, StartDate: r.StartDate.Time, EndDate: r.EndDate.Time,
		}
		if r.Paused {
			c.Pause(r.StartDate.Time)
		}
		if err := c.Validate(); err != nil {
			return st, fmt.Errorf("fixed %q: %w", r.Name, err)
		}
		if err := target.SaveFixed(ctx, c); err != nil {
			return st, fmt.Errorf("fixed %q: %w", r.Name, err)
		}
		st.Fixed++
	}

	for _, r := range doc.Installments {
		in := core.Installment{
			ID: idOr(r.ID), OwnerID: r.OwnerID, Name: r.Name,
			TotalAmount: r.TotalAmount, NumberOfPayments: r.NumberOfPayments,
			PaymentsCompleted: r.PaymentsCompleted, Currency: r.Currency,
			StartDate: r.StartDate.Time, DayOfMonth: r.DayOfMonth,
		}
		if err := in.Validate(); err != nil {
			return st, fmt.Errorf("installment %q: %w", r.Name, err)
		}
		first, err := schedule.InstallmentPayment(in.TotalAmount, in.NumberOfPayments, 1)
		if err != nil {
			return st, fmt.Errorf("installment %q: %w", r.Name, err)
		}
		in.MonthlyAmount = first
		if err := target.SaveInstallment(ctx, in); err != nil {
			return st, fmt.Errorf("installment %q: %w", r.Name, err)
		}
		st.Installments++
	}

	for _, r := range doc.Loans {
		l := core.Loan{
			ID: r.ID, OwnerID: r.OwnerID, Name: r.Name,
			OriginalAmount: r.OriginalAmount, MonthlyPayment: r.MonthlyPayment,
			AnnualInterestRate: r.AnnualInterestRate, TotalPayments: r.TotalPayments,
			Currency: r.Currency, StartDate: r.StartDate.Time, DayOfMonth: r.DayOfMonth,
		}
		if _, err := engine.CreateLoan(ctx, l); err != nil {
			// A loan carrying its own id was seeded before; keep its recorded payments.
			if r.ID != "" && errors.Is(err, core.ErrConflict) {
				slog.InfoContext(ctx, "Seeded loan already exists, skipping", "loan_id", r.ID)
				st.Skipped++
				continue
			}
			return st, fmt.Errorf("loan %q: %w", r.Name, err)
		}
		st.Loans++
	}

	for _, r := range doc.Subscriptions {
		s := core.Subscription{
			ID: idOr(r.ID), OwnerID: r.OwnerID, Name: r.Name,
			Amount: r.Amount, Currency: r.Currency, BillingCycle: r.BillingCycle,
			NextRenewalDate: r.NextRenewalDate.Time, AutoRenew: r.AutoRenew, Active: r.Active == nil || *r.Active,
		}
		if err := s.Validate(); err != nil {
			return st, fmt.Errorf("subscription %q: %w", r.Name, err)
		}
		if err := target.SaveSubscription(ctx, s); err != nil {
			return st, fmt.Errorf("subscription %q: %w", r.Name, err)
		}
		st.Subscriptions++
	}

	for _, r := range doc.ExpectedIncome {
		ei := core.ExpectedIncome{
			ID: idOr(r.ID), OwnerID: r.OwnerID, Month: r.Month.Time,
			Amount: r.Amount, Currency: r.Currency, Note: r.Note,
		}
		if err := target.SaveExpectedIncome(ctx, ei); err != nil {
			return st, fmt.Errorf("expected income %s: %w", r.Month.Format("2006-01"), err)
		}
		st.ExpectedIncome++
	}

	for _, r := range doc.Transactions {
		tx := core.Transaction{
			ID: idOr(r.ID), OwnerID: r.OwnerID, Description: r.Description,
			Amount: r.Amount, Currency: r.Currency, Direction: r.Direction, Date: r.Date.Time,
		}
		if err := tx.Validate(); err != nil {
			return st, fmt.Errorf("transaction %q: %w", r.Description, err)
		}
		if err := target.SaveTransaction(ctx, tx); err != nil {
			return st, fmt.Errorf("transaction %q: %w", r.Description, err)
		}
		st.Transactions++
	}

	slog.InfoContext(ctx, "Seed data applied",
		"balances", st.Balances,
		"fixed", st.Fixed,
		"installments", st.Installments,
		"loans", st.Loans,
		"subscriptions", st.Subscriptions,
		"expected_income", st.ExpectedIncome,
		"transactions", st.Transactions,
		"skipped", st.Skipped)
	return st, nil
}

func idOr(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

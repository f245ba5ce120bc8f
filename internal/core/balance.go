package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot records the account balance at a point in time. Only the
// IsCurrent flag of a stored snapshot ever changes.
type BalanceSnapshot struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	EffectiveDate time.Time       `json:"effective_date"`
	IsCurrent     bool            `json:"is_current"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ForecastPeriod is one computed period of a projection. Breakdown maps are
// keyed by source kind (fixed, installment, loan, subscription,
// expected_income, transaction).
type ForecastPeriod struct {
	Label            string                     `json:"label"`
	Start            time.Time                  `json:"start"`
	End              time.Time                  `json:"end"`
	OpeningBalance   decimal.Decimal            `json:"opening_balance"`
	IncomeBreakdown  map[string]decimal.Decimal `json:"income_breakdown"`
	ExpenseBreakdown map[string]decimal.Decimal `json:"expense_breakdown"`
	TotalIncome      decimal.Decimal            `json:"total_income"`
	TotalExpenses    decimal.Decimal            `json:"total_expenses"`
	NetChange        decimal.Decimal            `json:"net_change"`
	ClosingBalance   decimal.Decimal            `json:"closing_balance"`
}

package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
)

var monthsPerYear = decimal.NewFromInt(12)

// AmortizationEntry is one payment of a loan schedule.
type AmortizationEntry struct {
	Number           int             `json:"number"`
	Payment          decimal.Decimal `json:"payment"`
	Principal        decimal.Decimal `json:"principal"`
	Interest         decimal.Decimal `json:"interest"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// MonthlyInterest is balance * rate / 100 / 12, rounded to cents.
func MonthlyInterest(balance, annualRate decimal.Decimal) decimal.Decimal {
	if annualRate.IsZero() {
		return decimal.Zero
	}
	return core.Round2(core.Percent(balance.Mul(annualRate)).Div(monthsPerYear))
}

// ValidateLoanTerms rejects loans whose payment never reduces the balance.
func ValidateLoanTerms(original, payment, annualRate decimal.Decimal, totalPayments int) error {
	if !original.IsPositive() {
		return core.NewValidationError("original_amount", "original amount must be greater than zero")
	}
	if !payment.IsPositive() {
		return core.NewValidationError("monthly_payment", "monthly payment must be greater than zero")
	}
	if annualRate.IsNegative() {
		return core.NewValidationError("annual_interest_rate", "interest rate cannot be negative")
	}
	if totalPayments < 1 {
		return core.NewValidationError("total_payments", "total payments must be at least 1")
	}
	firstInterest := MonthlyInterest(original, annualRate)
	if payment.LessThanOrEqual(firstInterest) {
		return core.NewValidationError("monthly_payment", fmt.Sprintf(
			"monthly payment %s does not cover the first month's interest %s; the balance would never decrease",
			core.FormatAmount(payment, ""), core.FormatAmount(firstInterest, "")))
	}
	return nil
}

// Amortize builds the full schedule of a loan from its original terms. The
// balance never goes below zero: once it is repaid later entries are zero,
// and the final entry absorbs whatever rounding residue is left.
func Amortize(l core.Loan) ([]AmortizationEntry, error) {
	if err := ValidateLoanTerms(l.OriginalAmount, l.MonthlyPayment, l.AnnualInterestRate, l.TotalPayments); err != nil {
		return nil, err
	}

	entries := make([]AmortizationEntry, 0, l.TotalPayments)
	remaining := core.Round2(l.OriginalAmount)
	for n := 1; n <= l.TotalPayments; n++ {
		interest := MonthlyInterest(remaining, l.AnnualInterestRate)
		principal := l.MonthlyPayment.Sub(interest)

		switch {
		case remaining.IsZero():
			interest, principal = decimal.Zero, decimal.Zero
		case principal.GreaterThan(remaining) || n == l.TotalPayments:
			principal = remaining
		}
		remaining = remaining.Sub(principal)

		entries = append(entries, AmortizationEntry{
			Number:           n,
			Payment:          principal.Add(interest),
			Principal:        principal,
			Interest:         interest,
			RemainingBalance: remaining,
		})
	}
	return entries, nil
}

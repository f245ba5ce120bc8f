// Package schedule computes payment plans: installment splits and loan
// amortization. Plans are derived on demand and never persisted.
package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
)

// SplitInstallment divides total into n cent-rounded payments. Every payment
// but the last is round(total/n, 2); the last one absorbs the remainder so
// the payments sum to total exactly.
func SplitInstallment(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n < 1 {
		return nil, core.NewValidationError("number_of_payments", fmt.Sprintf("number of payments must be at least 1, got %d", n))
	}
	if !total.IsPositive() {
		return nil, core.NewValidationError("total_amount", "total amount must be greater than zero")
	}
	total = core.Round2(total)
	base := total.DivRound(decimal.NewFromInt(int64(n)), core.MoneyPlaces)

	payments := make([]decimal.Decimal, n)
	paid := decimal.Zero
	for i := 0; i < n-1; i++ {
		payments[i] = base
		paid = paid.Add(base)
	}
	payments[n-1] = total.Sub(paid)
	return payments, nil
}

// InstallmentPayment returns the amount of the k-th payment (1-based) of the
// plan SplitInstallment builds.
func InstallmentPayment(total decimal.Decimal, n, k int) (decimal.Decimal, error) {
	if k < 1 || k > n {
		return decimal.Zero, fmt.Errorf("payment index %d outside 1..%d", k, n)
	}
	payments, err := SplitInstallment(total, n)
	if err != nil {
		return decimal.Zero, err
	}
	return payments[k-1], nil
}

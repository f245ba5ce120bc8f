package forecast

import "github.com/shopspring/decimal"

// Summary aggregates a projection into horizon totals.
type Summary struct {
	TotalExpectedIncome   decimal.Decimal `json:"total_expected_income"`
	TotalExpectedExpenses decimal.Decimal `json:"total_expected_expenses"`
	NetProjected          decimal.Decimal `json:"net_projected"`
	EndBalance            decimal.Decimal `json:"end_balance"`
	HasNegativeMonths     bool            `json:"has_negative_months"`
	AlertsCount           int             `json:"alerts_count"`
	RatesStale            bool            `json:"rates_stale"`
}

// Summarize folds the periods of p. AlertsCount is left for the caller.
func Summarize(p Projection) Summary {
	s := Summary{
		TotalExpectedIncome:   decimal.Zero,
		TotalExpectedExpenses: decimal.Zero,
		EndBalance:            p.CurrentBalance,
		HasNegativeMonths:     p.HasNegativePeriods,
		RatesStale:            p.RatesStale,
	}
	for _, fp := range p.Periods {
		s.TotalExpectedIncome = s.TotalExpectedIncome.Add(fp.TotalIncome)
		s.TotalExpectedExpenses = s.TotalExpectedExpenses.Add(fp.TotalExpenses)
	}
	s.NetProjected = s.TotalExpectedIncome.Sub(s.TotalExpectedExpenses)
	if n := len(p.Periods); n > 0 {
		s.EndBalance = p.Periods[n-1].ClosingBalance
	}
	return s
}

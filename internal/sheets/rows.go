package sheets

import (
	"time"

	"cashflow/internal/core"
	"cashflow/internal/forecast"
)

// Rows renders a projection as spreadsheet rows matching Header, one per
// period. Amounts are fixed two-decimal strings.
func Rows(p forecast.Projection, exportedAt time.Time) [][]string {
	stamp := exportedAt.UTC().Format(time.RFC3339)
	stale := "no"
	if p.RatesStale {
		stale = "yes"
	}

	out := make([][]string, 0, len(p.Periods))
	for _, fp := range p.Periods {
		out = append(out, []string{
			stamp,
			p.OwnerID,
			fp.Label,
			fp.OpeningBalance.StringFixed(core.MoneyPlaces),
			fp.TotalIncome.StringFixed(core.MoneyPlaces),
			fp.TotalExpenses.StringFixed(core.MoneyPlaces),
			fp.NetChange.StringFixed(core.MoneyPlaces),
			fp.ClosingBalance.StringFixed(core.MoneyPlaces),
			p.BaseCurrency,
			stale,
		})
	}
	return out
}

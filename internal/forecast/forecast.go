// Package forecast projects an owner's balance over future periods by
// folding every commitment into per-period income and expense totals.
//
// Projection is read-only: it never writes and can run concurrently for the
// same owner.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
	"cashflow/internal/currency"
)

// Source supplies the already scoped records of one owner.
type Source interface {
	Commitments(ctx context.Context, ownerID string) (core.Commitments, error)
}

// BalanceReader returns the owner's current snapshot or core.ErrNotFound.
type BalanceReader interface {
	Current(ctx context.Context, ownerID string) (core.BalanceSnapshot, error)
}

// RateSource returns the rate table of the day.
type RateSource interface {
	Rates(ctx context.Context) (currency.RateTable, error)
}

// Projection is the result of one forecast run.
type Projection struct {
	OwnerID             string                `json:"owner_id"`
	CurrentBalance      decimal.Decimal       `json:"current_balance"`
	BaseCurrency        string                `json:"base_currency"`
	Granularity         core.Granularity      `json:"granularity"`
	Periods             []core.ForecastPeriod `json:"periods"`
	HasNegativePeriods  bool                  `json:"has_negative_periods"`
	FirstNegativePeriod string                `json:"first_negative_period,omitempty"`
	RatesStale          bool                  `json:"rates_stale"`
	RatesAsOf           *time.Time            `json:"rates_as_of,omitempty"`
}

type Aggregator struct {
	source  Source
	balance BalanceReader
	rates   RateSource
	base    string
	now     func() time.Time
}

func NewAggregator(source Source, balance BalanceReader, rates RateSource, baseCurrency string, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		source:  source,
		balance: balance,
		rates:   rates,
		base:    strings.ToUpper(baseCurrency),
		now:     now,
	}
}

// Project builds a monthly projection of horizon periods.
func (a *Aggregator) Project(ctx context.Context, ownerID string, horizon int) (Projection, error) {
	return a.project(ctx, ownerID, core.Month, horizon)
}

// ProjectWeekly builds an ISO-week projection of horizon periods.
func (a *Aggregator) ProjectWeekly(ctx context.Context, ownerID string, horizon int) (Projection, error) {
	return a.project(ctx, ownerID, core.Week, horizon)
}

func (a *Aggregator) project(ctx context.Context, ownerID string, g core.Granularity, horizon int) (Projection, error) {
	periods, err := core.BuildPeriods(g, a.now(), horizon)
	if err != nil {
		return Projection{}, err
	}

	commitments, err := a.source.Commitments(ctx, ownerID)
	if err != nil {
		return Projection{}, fmt.Errorf("load commitments: %w", err)
	}
	contributors, err := Contributors(commitments)
	if err != nil {
		return Projection{}, err
	}

	conv := &converter{ctx: ctx, rates: a.rates, base: a.base}

	opening := decimal.Zero
	snap, err := a.balance.Current(ctx, ownerID)
	switch {
	case err == nil:
		if opening, err = conv.toBase(snap.Amount, snap.Currency); err != nil {
			return Projection{}, fmt.Errorf("convert current balance: %w", err)
		}
	case errors.Is(err, core.ErrNotFound):
	default:
		return Projection{}, fmt.Errorf("read current balance: %w", err)
	}

	proj := Projection{
		OwnerID:        ownerID,
		CurrentBalance: opening,
		BaseCurrency:   a.base,
		Granularity:    g,
		Periods:        make([]core.ForecastPeriod, 0, len(periods)),
	}

	for _, p := range periods {
		fp, err := buildPeriod(p, opening, contributors, conv)
		if err != nil {
			return Projection{}, fmt.Errorf("period %s: %w", p.Label, err)
		}
		proj.Periods = append(proj.Periods, fp)
		if fp.ClosingBalance.IsNegative() && !proj.HasNegativePeriods {
			proj.HasNegativePeriods = true
			proj.FirstNegativePeriod = fp.Label
		}
		opening = fp.ClosingBalance
	}

	if conv.table != nil {
		proj.RatesStale = conv.table.Stale
		asOf := conv.table.AsOf
		proj.RatesAsOf = &asOf
	}
	return proj, nil
}

func buildPeriod(p core.Period, opening decimal.Decimal, contributors []Contributor, conv *converter) (core.ForecastPeriod, error) {
	fp := core.ForecastPeriod{
		Label:            p.Label,
		Start:            p.Start,
		End:              p.End,
		OpeningBalance:   opening,
		IncomeBreakdown:  map[string]decimal.Decimal{},
		ExpenseBreakdown: map[string]decimal.Decimal{},
		TotalIncome:      decimal.Zero,
		TotalExpenses:    decimal.Zero,
	}

	for _, c := range contributors {
		contrib, ok := c.Contribute(p)
		if !ok {
			continue
		}
		amount, err := conv.toBase(contrib.Amount, contrib.Currency)
		if err != nil {
			return core.ForecastPeriod{}, err
		}
		if contrib.Direction == core.Income {
			fp.IncomeBreakdown[contrib.Source] = fp.IncomeBreakdown[contrib.Source].Add(amount)
			fp.TotalIncome = fp.TotalIncome.Add(amount)
		} else {
			fp.ExpenseBreakdown[contrib.Source] = fp.ExpenseBreakdown[contrib.Source].Add(amount)
			fp.TotalExpenses = fp.TotalExpenses.Add(amount)
		}
	}

	fp.NetChange = fp.TotalIncome.Sub(fp.TotalExpenses)
	fp.ClosingBalance = fp.OpeningBalance.Add(fp.NetChange)
	return fp, nil
}

// converter fetches the rate table at most once per projection so every
// period is converted with the same rates.
type converter struct {
	ctx   context.Context
	rates RateSource
	base  string
	table *currency.RateTable
}

func (c *converter) toBase(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	code = core.NormalizeCurrency(code, c.base)
	if code == c.base {
		return core.Round2(amount), nil
	}
	if err := currency.ValidateCode(code); err != nil {
		return decimal.Zero, err
	}
	if c.table == nil {
		if c.rates == nil {
			return decimal.Zero, &core.DegradedDataError{Reason: "no exchange rate source configured"}
		}
		t, err := c.rates.Rates(c.ctx)
		if err != nil {
			return decimal.Zero, err
		}
		c.table = &t
	}
	return c.table.Convert(amount, code, c.base)
}

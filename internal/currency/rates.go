// Package currency converts amounts between currencies using a daily rate
// table fetched from an external provider.
package currency

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
)

var codePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// RateTable says that 1 unit of Base equals Rates[C] units of currency C.
type RateTable struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
	AsOf  time.Time                  `json:"as_of"`
	Stale bool                       `json:"stale"`
}

// RateProvider fetches a fresh rate table. Providers may return a table in a
// different base than requested; conversion does not depend on it.
type RateProvider interface {
	FetchRates(ctx context.Context, base string) (RateTable, error)
}

// ValidateCode checks the shape of an ISO 4217 code.
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return core.UnknownCurrency(code)
	}
	return nil
}

func (t RateTable) rate(code string) (decimal.Decimal, error) {
	if code == t.Base {
		return decimal.NewFromInt(1), nil
	}
	r, ok := t.Rates[code]
	if !ok || !r.IsPositive() {
		return decimal.Zero, core.UnknownCurrency(code)
	}
	return r, nil
}

// Convert applies amount / rate[from] * rate[to], rounded to cents. The same
// formula serves every pair, including pairs involving the table base.
func (t RateTable) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return core.Round2(amount), nil
	}
	rFrom, err := t.rate(from)
	if err != nil {
		return decimal.Zero, err
	}
	rTo, err := t.rate(to)
	if err != nil {
		return decimal.Zero, err
	}
	return core.Round2(amount.Div(rFrom).Mul(rTo)), nil
}

func (t RateTable) clone() RateTable {
	rates := make(map[string]decimal.Decimal, len(t.Rates))
	for k, v := range t.Rates {
		rates[k] = v
	}
	t.Rates = rates
	return t
}

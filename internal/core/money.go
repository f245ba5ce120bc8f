// Package core provides money parsing and handling utilities.
//
// Amounts are decimal.Decimal values with two fractional digits once they
// leave a calculation. Intermediate values (interest, converted amounts) keep
// full precision until Round2 is applied.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits stored for an amount.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ParseAmount converts a decimal string to a cent-rounded amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up on the third decimal place. Negative values are accepted;
// callers that require positive amounts check IsPositive.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-5000")  -> -5000.00
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, NewValidationError("amount", "amount is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "invalid amount "+quote(s))
	}
	return Round2(d), nil
}

// Percent returns d/100.
func Percent(d decimal.Decimal) decimal.Decimal {
	return d.Div(hundred)
}

// FormatAmount renders an amount with two decimals and its currency code.
func FormatAmount(d decimal.Decimal, currency string) string {
	s := Round2(d).StringFixed(MoneyPlaces)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

func quote(s string) string {
	return "'" + s + "'"
}

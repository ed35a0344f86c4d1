// Package money holds the few conversions between ledger amounts (two-decimal
// NUMERIC values) and the integer minor units payment processors expect.
package money

import "github.com/shopspring/decimal"

const scale = 2

var hundred = decimal.NewFromInt(100)

// Round rounds an amount to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

// ToMinorUnits converts an amount to cents.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts cents to an amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -scale)
}

// Positive reports whether d > 0.
func Positive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// Package money converts between the integer minor-unit amounts stored in
// the database and the decimal representation exposed on the wire. All
// internal arithmetic stays in minor units; these helpers are the only
// conversion points.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinor converts a decimal amount to integer minor units, rounding to the
// nearest cent.
func ToMinor(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts integer minor units back to a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// Parse reads a decimal string ("125.99") into minor units.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return ToMinor(d), nil
}

// Format renders minor units as a fixed two-decimal string.
func Format(minor int64) string {
	return FromMinor(minor).StringFixed(2)
}

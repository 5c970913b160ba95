// Package money converts between minor-unit integers, which every entity
// stores, and decimal major units used for rule values and display.
package money

import "github.com/shopspring/decimal"

// Scale is the number of decimal places carried by minor units.
const Scale = 2

// ToDecimal converts minor units to a major-unit decimal.
func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// FromDecimal converts a major-unit decimal to minor units, rounding half away from zero.
func FromDecimal(major decimal.Decimal) int64 {
	return major.Round(Scale).Shift(Scale).IntPart()
}

// Format renders minor units as a fixed two-decimal string, e.g. 3000 -> "30.00".
func Format(minor int64) string {
	return ToDecimal(minor).StringFixed(Scale)
}

// Percent returns round(pct/100 × minor) in minor units.
func Percent(pct decimal.Decimal, minor int64) int64 {
	return pct.Mul(decimal.NewFromInt(minor)).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Share returns floor(total × part / whole) for non-negative operands. The
// product is taken in decimal so large subtotals cannot overflow int64.
func Share(total, part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	q, _ := decimal.NewFromInt(total).Mul(decimal.NewFromInt(part)).QuoRem(decimal.NewFromInt(whole), 0)
	return q.IntPart()
}

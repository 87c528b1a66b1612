package money

import "github.com/shopspring/decimal"

// Monetary amounts are kept to two decimal places. Rounding is half away
// from zero, so 0.005 rounds to 0.01 and -0.005 to -0.01.

var hundred = decimal.NewFromInt(100)

// Round2 normalizes an amount to the cent.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Gross returns unit price times quantity, rounded to the cent.
func Gross(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Commission computes the platform cut of gross at the given percent,
// rounded to the cent.
func Commission(gross, percent decimal.Decimal) decimal.Decimal {
	return Round2(gross.Mul(percent).Div(hundred))
}

// IsPositive reports whether the amount is strictly greater than zero.
func IsPositive(amount decimal.Decimal) bool {
	return amount.GreaterThan(decimal.Zero)
}

// MustParse converts a decimal literal into an amount; it panics on invalid
// input and is intended for configuration defaults and tests.
func MustParse(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

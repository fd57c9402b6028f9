package common

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a decimal string. Empty input yields (zero, false).
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParsePercent parses a percentage string and reports whether it is a usable
// percentage value. Malformed, negative or out-of-range values report false
// rather than an error so callers can treat them as "not evaluated".
func ParsePercent(raw string) (decimal.Decimal, bool) {
	d, ok := ParseDecimal(raw)
	if !ok {
		return decimal.Zero, false
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseWeight parses a non-negative weight in kilograms.
func ParseWeight(raw string) (decimal.Decimal, bool) {
	d, ok := ParseDecimal(raw)
	if !ok || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// MoneyString renders a monetary amount at the currency's minor-unit
// precision. Internal arithmetic stays full precision; rounding happens here,
// at the presentation edge only.
func MoneyString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// WeightString renders a weight in kilograms with three decimals.
func WeightString(d decimal.Decimal) string {
	return d.StringFixed(3)
}

package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Round2 rounds the shortest decimal representation of f half away from zero to 2 decimals,
// so Round2(1.005) is 1.01.
func Round2(f float64) float64 {
	return Round2Decimal(decimal.NewFromFloat(f))
}

// Round2Decimal rounds d half away from zero to 2 decimals.
func Round2Decimal(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// StringIn reports whether s is one of list.
func StringIn(s string, list ...string) bool {
	return contains(list, s)
}

// Package money holds minor-unit arithmetic shared by checkout and the API.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const basisPointsPerUnit = 10000

var hundred = decimal.NewFromInt(100)

// PercentOfBps returns round(amount × bps / 10000) using banker's rounding, so
// a half cent rounds to the even neighbour.
func PercentOfBps(amountCents int64, bps int) int64 {
	if amountCents == 0 || bps == 0 {
		return 0
	}
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(basisPointsPerUnit)).
		RoundBank(0).
		IntPart()
}

// Major renders cents as a fixed two-decimal amount, e.g. 1999 -> "19.99".
func Major(amountCents int64) string {
	return decimal.NewFromInt(amountCents).Div(hundred).StringFixed(2)
}

// Format renders cents with an upper-case currency suffix, e.g. "19.99 USD".
func Format(amountCents int64, currency string) string {
	return Major(amountCents) + " " + strings.ToUpper(currency)
}

package services

import (
	"github.com/shopspring/decimal"
)

var half = decimal.NewFromFloat(0.5)

// roundHalfUp rounds towards positive infinity on ties, so -2.5 becomes -2.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Add(half).Floor().IntPart()
}

// scaleMinor returns round(amount × factor) in minor units.
func scaleMinor(amount int64, factor float64) int64 {
	return roundHalfUp(decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(factor)))
}

// markupMinor returns round(amount × (1 + rate)).
func markupMinor(amount int64, rate float64) int64 {
	return roundHalfUp(decimal.NewFromInt(amount).Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(rate))))
}

// basisPointsOf returns round(amount × bps / 10000).
func basisPointsOf(amount, bps int64) int64 {
	return roundHalfUp(decimal.NewFromInt(amount).Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000)))
}

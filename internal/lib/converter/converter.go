package converter

import (
	"github.com/shopspring/decimal"
)

// AmountToCents converts an API-facing decimal amount into int64 cents.
// Going through decimal avoids the usual float*100 rounding surprises
// (e.g. 19.99 -> 1998).
func AmountToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func CentsToAmount(cents int64) float64 {
	f, _ := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).Float64()

	return f
}

func CentsToString(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

package pricing

import "github.com/shopspring/decimal"

var (
	markupRate  = decimal.RequireFromString("1.3")
	centsPerUSD = decimal.NewFromInt(100)
)

// Markup converts a raw provider cost into the amount charged to the user:
// ceil(apiCost * 1.3). Estimates and final charges both go through here.
func Markup(apiCost int64) int64 {
	if apiCost <= 0 {
		return 0
	}
	return decimal.NewFromInt(apiCost).Mul(markupRate).Ceil().IntPart()
}

// CreditsFromUSD converts a provider price in US dollars to credits (cents),
// rounding up.
func CreditsFromUSD(usd decimal.Decimal) int64 {
	if !usd.IsPositive() {
		return 0
	}
	return usd.Mul(centsPerUSD).Ceil().IntPart()
}

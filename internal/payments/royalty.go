package payments

import "github.com/shopspring/decimal"

const bpsScale = 10000

// RoyaltyShare computes the royalty owed for one item: price * rateBps/10000,
// rounded down to 8 decimal places so the sum of shares never exceeds the
// price paid.
func RoyaltyShare(price decimal.Decimal, rateBps int) decimal.Decimal {
	if rateBps <= 0 || !price.IsPositive() {
		return decimal.Zero
	}
	rate := decimal.New(int64(rateBps), 0).Div(decimal.New(bpsScale, 0))
	return price.Mul(rate).RoundDown(8)
}

// Overpayment returns the refundable excess of paid over due, never negative.
func Overpayment(paid, due decimal.Decimal) decimal.Decimal {
	excess := paid.Sub(due)
	if excess.IsNegative() {
		return decimal.Zero
	}
	return excess
}

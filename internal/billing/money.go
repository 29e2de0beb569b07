package billing

import "github.com/shopspring/decimal"

const microsExp = 6

// ToMicros converts a USD amount to integer micro-USD, rounding up so a
// debit never undercharges.
func ToMicros(usd decimal.Decimal) int64 {
	return usd.Shift(microsExp).RoundCeil(0).IntPart()
}

// FromMicros converts integer micro-USD back to USD.
func FromMicros(micros int64) decimal.Decimal {
	return decimal.New(micros, -microsExp)
}

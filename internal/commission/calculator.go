package commission

import (
	"github.com/shopspring/decimal"
)

// minorUnitPlaces is the rounding precision for every supported currency.
const minorUnitPlaces int32 = 2

// LineItem is one priced cart line.
type LineItem struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the result of ComputeTotals. Total always equals
// Subtotal + Commission exactly.
type Totals struct {
	Subtotal   decimal.Decimal
	Commission decimal.Decimal
	Total      decimal.Decimal
}

// ComputeTotals sums the lines and applies rate. Rounding is banker's rounding
// to two places, applied to the subtotal and then to the commission, so the
// result does not depend on line order.
func ComputeTotals(lines []LineItem, rate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineTotal(line.UnitPrice, line.Quantity))
	}
	subtotal = subtotal.RoundBank(minorUnitPlaces)
	commission := subtotal.Mul(rate).RoundBank(minorUnitPlaces)
	return Totals{
		Subtotal:   subtotal,
		Commission: commission,
		Total:      subtotal.Add(commission),
	}
}

// LineTotal is price × quantity without rounding.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// ToMinorUnits converts an amount to integer minor units (cents for exponent 2).
func ToMinorUnits(amount decimal.Decimal, exponent int32) int64 {
	return amount.Shift(exponent).RoundBank(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, exponent int32) decimal.Decimal {
	return decimal.New(minor, -exponent)
}

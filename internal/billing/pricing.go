// Package billing holds the line-item pricing and validation rules shared by
// customer bills, supplier bills and stock transfers.
package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Gross returns unitPrice*quantity before any discount.
func Gross(unitPrice, quantity decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(quantity)
}

// ComputeAmount returns unitPrice*quantity less discountPercent of it. The
// result is not clamped; a percentage above 100 yields a negative amount.
func ComputeAmount(unitPrice, quantity, discountPercent decimal.Decimal) decimal.Decimal {
	gross := Gross(unitPrice, quantity)
	return gross.Sub(gross.Mul(discountPercent).Div(hundred))
}

// ComputeAmountFromDiscountValue returns unitPrice*quantity less a flat discount.
func ComputeAmountFromDiscountValue(unitPrice, quantity, discountAmount decimal.Decimal) decimal.Decimal {
	return Gross(unitPrice, quantity).Sub(discountAmount)
}

// PercentFromAmount converts a flat discount into a percentage of the line
// gross. A zero gross yields zero.
func PercentFromAmount(unitPrice, quantity, discountAmount decimal.Decimal) decimal.Decimal {
	gross := Gross(unitPrice, quantity)
	if gross.IsZero() {
		return decimal.Zero
	}
	return discountAmount.Mul(hundred).Div(gross)
}

// AmountFromPercent converts a percentage into a flat discount on the line gross.
func AmountFromPercent(unitPrice, quantity, percent decimal.Decimal) decimal.Decimal {
	return Gross(unitPrice, quantity).Mul(percent).Div(hundred)
}

// Coerce parses raw user input, mapping blank, malformed or negative values to zero.
func Coerce(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func parseNumber(field, raw string, required bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return decimal.Zero, reject(field, ErrMissingField, "")
		}
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, reject(field, ErrInvalidNumber, raw)
	}
	return v, nil
}

package billing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountKind tells which representation of a line discount is authoritative.
type DiscountKind string

const (
	DiscountNone    DiscountKind = "none"
	DiscountPercent DiscountKind = "percent"
	DiscountAmount  DiscountKind = "amount"
)

// Discount is either a percentage of the line gross or a flat amount. The
// other representation is always derived from the current price and quantity.
type Discount struct {
	kind  DiscountKind
	value decimal.Decimal
}

// NoDiscount is the zero discount.
func NoDiscount() Discount {
	return Discount{kind: DiscountNone}
}

// PercentDiscount discounts the line by a percentage of its gross.
func PercentDiscount(percent decimal.Decimal) Discount {
	return Discount{kind: DiscountPercent, value: percent}
}

// AmountDiscount discounts the line by a flat amount.
func AmountDiscount(amount decimal.Decimal) Discount {
	return Discount{kind: DiscountAmount, value: amount}
}

// Kind reports the authoritative representation.
func (d Discount) Kind() DiscountKind {
	if d.kind == "" {
		return DiscountNone
	}
	return d.kind
}

// Value is the stored percentage or amount.
func (d Discount) Value() decimal.Decimal {
	return d.value
}

// Resolve returns the consistent (percent, amount) pair for a line.
func (d Discount) Resolve(unitPrice, quantity decimal.Decimal) (percent, amount decimal.Decimal) {
	switch d.Kind() {
	case DiscountPercent:
		return d.value, AmountFromPercent(unitPrice, quantity, d.value)
	case DiscountAmount:
		return PercentFromAmount(unitPrice, quantity, d.value), d.value
	default:
		return decimal.Zero, decimal.Zero
	}
}

// Apply returns the line amount after the discount.
func (d Discount) Apply(unitPrice, quantity decimal.Decimal) decimal.Decimal {
	switch d.Kind() {
	case DiscountPercent:
		return ComputeAmount(unitPrice, quantity, d.value)
	case DiscountAmount:
		return ComputeAmountFromDiscountValue(unitPrice, quantity, d.value)
	default:
		return Gross(unitPrice, quantity)
	}
}

// Validate checks the discount against the line gross: percentages must lie in
// [0,100] and amounts in [0,gross].
func (d Discount) Validate(unitPrice, quantity decimal.Decimal) error {
	switch d.Kind() {
	case DiscountPercent:
		if d.value.IsNegative() || d.value.GreaterThan(hundred) {
			return reject(string(FieldDiscountPercentage), ErrDiscountOutOfRange, "must be between 0 and 100")
		}
	case DiscountAmount:
		gross := Gross(unitPrice, quantity)
		if d.value.IsNegative() || d.value.GreaterThan(gross) {
			return reject(string(FieldDiscountAmount), ErrDiscountOutOfRange,
				fmt.Sprintf("must be between 0 and %s", gross.String()))
		}
	}
	return nil
}

type discountJSON struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// MarshalJSON encodes the tagged form.
func (d Discount) MarshalJSON() ([]byte, error) {
	return json.Marshal(discountJSON{Kind: d.Kind(), Value: d.value})
}

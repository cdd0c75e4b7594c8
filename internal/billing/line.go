package billing

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Field names accepted by Session.Edit.
type Field string

const (
	FieldItemCode           Field = "item_code"
	FieldItemName           Field = "item_name"
	FieldUnitPrice          Field = "unit_price"
	FieldQuantity           Field = "quantity"
	FieldUnit               Field = "unit"
	FieldDiscountPercentage Field = "discount_percentage"
	FieldDiscountAmount     Field = "discount_amount"
	FieldFreeQuantity       Field = "free_quantity"
	FieldCategory           Field = "category"
)

// stockBound reports whether editing the field can change what a line draws
// from stock.
func (f Field) stockBound() bool {
	return f == FieldItemCode || f == FieldQuantity
}

// LineItem is one committed product row. Amount is derived and only changes
// through recompute.
type LineItem struct {
	ID           int64
	ItemCode     string
	ItemName     string
	UnitPrice    decimal.Decimal
	Quantity     decimal.Decimal
	Unit         string
	Discount     Discount
	FreeQuantity decimal.Decimal
	Category     string

	amount decimal.Decimal
}

// Amount is unitPrice*quantity less the effective discount.
func (l LineItem) Amount() decimal.Decimal {
	return l.amount
}

// Gross is unitPrice*quantity.
func (l LineItem) Gross() decimal.Decimal {
	return Gross(l.UnitPrice, l.Quantity)
}

// DiscountPercentage is the percentage view of the discount.
func (l LineItem) DiscountPercentage() decimal.Decimal {
	p, _ := l.Discount.Resolve(l.UnitPrice, l.Quantity)
	return p
}

// DiscountAmount is the flat view of the discount.
func (l LineItem) DiscountAmount() decimal.Decimal {
	_, a := l.Discount.Resolve(l.UnitPrice, l.Quantity)
	return a
}

func (l *LineItem) recompute() {
	l.amount = l.Discount.Apply(l.UnitPrice, l.Quantity)
}

type lineItemJSON struct {
	ID                 int64           `json:"id"`
	ItemCode           string          `json:"item_code"`
	ItemName           string          `json:"item_name"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit,omitempty"`
	DiscountKind       DiscountKind    `json:"discount_kind"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	FreeQuantity       decimal.Decimal `json:"free_quantity"`
	Category           string          `json:"category,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
}

// MarshalJSON flattens the discount into both of its views.
func (l LineItem) MarshalJSON() ([]byte, error) {
	percent, amount := l.Discount.Resolve(l.UnitPrice, l.Quantity)
	return json.Marshal(lineItemJSON{
		ID:                 l.ID,
		ItemCode:           l.ItemCode,
		ItemName:           l.ItemName,
		UnitPrice:          l.UnitPrice,
		Quantity:           l.Quantity,
		Unit:               l.Unit,
		DiscountKind:       l.Discount.Kind(),
		DiscountPercentage: percent,
		DiscountAmount:     amount,
		FreeQuantity:       l.FreeQuantity,
		Category:           l.Category,
		Amount:             l.amount,
	})
}

// NormalizeCode canonicalises item codes for comparison and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

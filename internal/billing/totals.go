package billing

import "github.com/shopspring/decimal"

// Totals is the invoice roll-up derived from the committed lines.
type Totals struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	ExtraDiscountPercent decimal.Decimal `json:"extra_discount_percent"`
	ExtraDiscountAmount  decimal.Decimal `json:"extra_discount_amount"`
	FinalTotal           decimal.Decimal `json:"final_total"`
	TotalQuantity        decimal.Decimal `json:"total_quantity"`
	LineCount            int             `json:"line_count"`
}

// Aggregate recomputes totals from scratch. The extra discount is not clamped.
func Aggregate(items []LineItem, extraDiscountPercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	qty := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Amount())
		qty = qty.Add(it.Quantity)
	}
	extra := subtotal.Mul(extraDiscountPercent).Div(hundred)
	return Totals{
		Subtotal:             subtotal,
		ExtraDiscountPercent: extraDiscountPercent,
		ExtraDiscountAmount:  extra,
		FinalTotal:           subtotal.Sub(extra),
		TotalQuantity:        qty,
		LineCount:            len(items),
	}
}

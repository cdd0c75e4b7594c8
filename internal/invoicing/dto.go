package invoicing

import "github.com/odyssey-erp/odyssey-billing/internal/billing"

// OpenRequest is the body of POST /sessions.
type OpenRequest struct {
	Kind                string `json:"kind" validate:"required,oneof=customer_bill supplier_bill stock_transfer"`
	CustomerID          string `json:"customer_id" validate:"omitempty,max=64"`
	SupplierID          string `json:"supplier_id" validate:"omitempty,max=64"`
	SourceLocation      string `json:"source_location" validate:"omitempty,max=64"`
	DestinationLocation string `json:"destination_location" validate:"omitempty,max=64"`
	Date                string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// LineRequest is the body of POST /sessions/{id}/lines. Numbers travel as
// strings so blank and malformed input reach the billing rules unchanged.
type LineRequest struct {
	ItemCode           string `json:"item_code" validate:"max=64"`
	ItemName           string `json:"item_name" validate:"max=200"`
	UnitPrice          string `json:"unit_price" validate:"max=32"`
	Quantity           string `json:"quantity" validate:"max=32"`
	Unit               string `json:"unit" validate:"max=16"`
	DiscountPercentage string `json:"discount_percentage" validate:"max=32"`
	DiscountAmount     string `json:"discount_amount" validate:"max=32"`
	FreeQuantity       string `json:"free_quantity" validate:"max=32"`
	Category           string `json:"category" validate:"max=64"`
}

func (l LineRequest) draft() billing.Draft {
	return billing.Draft{
		ItemCode:           l.ItemCode,
		ItemName:           l.ItemName,
		UnitPrice:          l.UnitPrice,
		Quantity:           l.Quantity,
		Unit:               l.Unit,
		DiscountPercentage: l.DiscountPercentage,
		DiscountAmount:     l.DiscountAmount,
		FreeQuantity:       l.FreeQuantity,
		Category:           l.Category,
	}
}

// EditRequest is the body of PATCH /sessions/{id}/lines/{lineID}.
type EditRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value" validate:"max=200"`
}

// ExtraDiscountRequest is the body of PUT /sessions/{id}/extra-discount.
type ExtraDiscountRequest struct {
	Percent string `json:"percent" validate:"max=32"`
}

// SubmitRequest is the optional body of POST /sessions/{id}/submit.
type SubmitRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

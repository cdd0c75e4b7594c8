package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Header carries the party and routing details of a bill or transfer.
type Header struct {
	CustomerID          string    `json:"customer_id,omitempty"`
	SupplierID          string    `json:"supplier_id,omitempty"`
	SourceLocation      string    `json:"source_location,omitempty"`
	DestinationLocation string    `json:"destination_location,omitempty"`
	Date                time.Time `json:"date"`
}

// Validate checks that the header has what the kind needs.
func (h Header) Validate(kind Kind) error {
	switch kind {
	case KindCustomerBill:
		if strings.TrimSpace(h.CustomerID) == "" {
			return reject("customer_id", ErrInvalidHeader, "customer is required")
		}
	case KindSupplierBill:
		if strings.TrimSpace(h.SupplierID) == "" {
			return reject("supplier_id", ErrInvalidHeader, "supplier is required")
		}
	case KindStockTransfer:
		src := strings.TrimSpace(h.SourceLocation)
		dst := strings.TrimSpace(h.DestinationLocation)
		if src == "" || dst == "" {
			return reject("source_location", ErrInvalidHeader, "source and destination are required")
		}
		if src == dst {
			return reject("destination_location", ErrInvalidHeader, "destination must differ from source")
		}
	default:
		return reject("kind", ErrInvalidKind, string(kind))
	}
	return nil
}

// PayloadItem is one line as sent to the bill submission endpoint.
type PayloadItem struct {
	ItemCode           string          `json:"item_code"`
	ItemName           string          `json:"item_name"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit,omitempty"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	FreeQuantity       decimal.Decimal `json:"free_quantity"`
	Category           string          `json:"category,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
}

// Payload is the serialised bill handed to the backend.
type Payload struct {
	CustomerID          string          `json:"customer_id,omitempty"`
	SupplierID          string          `json:"supplier_id,omitempty"`
	SourceLocation      string          `json:"source_location,omitempty"`
	DestinationLocation string          `json:"destination_location,omitempty"`
	Date                string          `json:"date"`
	Items               []PayloadItem   `json:"items"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	ExtraDiscount       decimal.Decimal `json:"extraDiscount"`
	ExtraDiscountAmount decimal.Decimal `json:"extraDiscountAmount"`
	FinalTotal          decimal.Decimal `json:"finalTotal"`
	TotalQuantity       decimal.Decimal `json:"totalQuantity"`
}

const moneyPlaces = 2

// BuildPayload serialises the session for submission. Money is rounded to
// two places; quantities are sent as entered.
func BuildPayload(s *Session, h Header) (Payload, error) {
	if err := h.Validate(s.Kind()); err != nil {
		return Payload{}, err
	}
	if s.Len() == 0 {
		return Payload{}, reject("items", ErrEmptyBill, "")
	}
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	items := s.Items()
	out := Payload{
		Date:  date.Format("2006-01-02"),
		Items: make([]PayloadItem, 0, len(items)),
	}
	switch s.Kind() {
	case KindCustomerBill:
		out.CustomerID = strings.TrimSpace(h.CustomerID)
	case KindSupplierBill:
		out.SupplierID = strings.TrimSpace(h.SupplierID)
	case KindStockTransfer:
		out.SourceLocation = strings.TrimSpace(h.SourceLocation)
		out.DestinationLocation = strings.TrimSpace(h.DestinationLocation)
	}
	for _, it := range items {
		percent, amount := it.Discount.Resolve(it.UnitPrice, it.Quantity)
		out.Items = append(out.Items, PayloadItem{
			ItemCode:           it.ItemCode,
			ItemName:           it.ItemName,
			UnitPrice:          it.UnitPrice,
			Quantity:           it.Quantity,
			Unit:               it.Unit,
			DiscountPercentage: percent.Round(moneyPlaces),
			DiscountAmount:     amount.Round(moneyPlaces),
			FreeQuantity:       it.FreeQuantity,
			Category:           it.Category,
			Amount:             it.Amount().Round(moneyPlaces),
		})
	}
	totals := s.Totals()
	out.Subtotal = totals.Subtotal.Round(moneyPlaces)
	out.ExtraDiscount = totals.ExtraDiscountPercent
	out.ExtraDiscountAmount = totals.ExtraDiscountAmount.Round(moneyPlaces)
	out.FinalTotal = totals.FinalTotal.Round(moneyPlaces)
	out.TotalQuantity = totals.TotalQuantity
	return out, nil
}

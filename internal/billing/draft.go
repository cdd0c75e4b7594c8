package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Draft is an uncommitted row as typed by the user. Numeric fields stay raw
// strings so partial input survives until commit.
type Draft struct {
	ItemCode           string `json:"item_code"`
	ItemName           string `json:"item_name"`
	UnitPrice          string `json:"unit_price"`
	Quantity           string `json:"quantity"`
	Unit               string `json:"unit"`
	DiscountPercentage string `json:"discount_percentage"`
	DiscountAmount     string `json:"discount_amount"`
	FreeQuantity       string `json:"free_quantity"`
	Category           string `json:"category"`
}

// Parse converts the draft into a line candidate without an id. Item code,
// item name, unit price and quantity are required. When both discount fields
// are filled the percentage wins.
func (d Draft) Parse() (LineItem, error) {
	code := NormalizeCode(d.ItemCode)
	if code == "" {
		return LineItem{}, reject(string(FieldItemCode), ErrMissingField, "")
	}
	name := strings.TrimSpace(d.ItemName)
	if name == "" {
		return LineItem{}, reject(string(FieldItemName), ErrMissingField, "")
	}
	price, err := parseNumber(string(FieldUnitPrice), d.UnitPrice, true)
	if err != nil {
		return LineItem{}, err
	}
	if price.IsNegative() {
		return LineItem{}, reject(string(FieldUnitPrice), ErrInvalidPrice, "")
	}
	qty, err := parseNumber(string(FieldQuantity), d.Quantity, true)
	if err != nil {
		return LineItem{}, err
	}
	if !qty.IsPositive() {
		return LineItem{}, reject(string(FieldQuantity), ErrInvalidQuantity, "")
	}

	discount, err := d.discount()
	if err != nil {
		return LineItem{}, err
	}

	item := LineItem{
		ItemCode:     code,
		ItemName:     name,
		UnitPrice:    price,
		Quantity:     qty,
		Unit:         strings.TrimSpace(d.Unit),
		Discount:     discount,
		FreeQuantity: Coerce(d.FreeQuantity),
		Category:     strings.TrimSpace(d.Category),
	}
	item.recompute()
	return item, nil
}

func (d Draft) discount() (Discount, error) {
	if strings.TrimSpace(d.DiscountPercentage) != "" {
		p, err := parseNumber(string(FieldDiscountPercentage), d.DiscountPercentage, false)
		if err != nil {
			return Discount{}, err
		}
		return PercentDiscount(p), nil
	}
	if strings.TrimSpace(d.DiscountAmount) != "" {
		a, err := parseNumber(string(FieldDiscountAmount), d.DiscountAmount, false)
		if err != nil {
			return Discount{}, err
		}
		return AmountDiscount(a), nil
	}
	return PercentDiscount(decimal.Zero), nil
}

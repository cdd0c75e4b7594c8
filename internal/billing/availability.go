package billing

import "github.com/shopspring/decimal"

// LocationStock is the on-hand quantity of an item at one location.
type LocationStock struct {
	Location string          `json:"location"`
	Quantity decimal.Decimal `json:"quantity"`
}

// StockAvailability is a read-only snapshot of one item as reported by the
// inventory collaborator.
type StockAvailability struct {
	ItemCode          string          `json:"item_code"`
	ItemName          string          `json:"item_name"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Unit              string          `json:"unit,omitempty"`
	Locations         []LocationStock `json:"locations,omitempty"`
}

// Available sums the item's quantity across locations. An empty location
// restricts nothing; otherwise only that location counts. Snapshots without a
// location breakdown fall back to AvailableQuantity.
func (s StockAvailability) Available(location string) decimal.Decimal {
	if len(s.Locations) == 0 {
		if location != "" {
			return decimal.Zero
		}
		return s.AvailableQuantity
	}
	total := decimal.Zero
	for _, loc := range s.Locations {
		if location != "" && loc.Location != location {
			continue
		}
		total = total.Add(loc.Quantity)
	}
	return total
}

// AvailabilityTable maps item codes to availability, bounded to an optional
// source location.
type AvailabilityTable struct {
	location string
	items    map[string]StockAvailability
}

// NewAvailabilityTable indexes snapshots by normalised item code.
func NewAvailabilityTable(location string, snapshots []StockAvailability) *AvailabilityTable {
	items := make(map[string]StockAvailability, len(snapshots))
	for _, s := range snapshots {
		items[NormalizeCode(s.ItemCode)] = s
	}
	return &AvailabilityTable{location: location, items: items}
}

// Location is the source location the table is bounded to, if any.
func (t *AvailabilityTable) Location() string {
	if t == nil {
		return ""
	}
	return t.location
}

// Item returns the snapshot for an item code.
func (t *AvailabilityTable) Item(itemCode string) (StockAvailability, bool) {
	if t == nil {
		return StockAvailability{}, false
	}
	s, ok := t.items[NormalizeCode(itemCode)]
	return s, ok
}

// Lookup returns the available quantity for an item code.
func (t *AvailabilityTable) Lookup(itemCode string) (decimal.Decimal, bool) {
	s, ok := t.Item(itemCode)
	if !ok {
		return decimal.Zero, false
	}
	return s.Available(t.location), true
}

// Len reports how many items the table knows.
func (t *AvailabilityTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.items)
}

// IsWithinAvailability reports 0 < requested <= available.
func IsWithinAvailability(requested, available decimal.Decimal) bool {
	return requested.IsPositive() && requested.LessThanOrEqual(available)
}

// IsAlreadyCommitted reports whether a line with this item code exists.
func IsAlreadyCommitted(itemCode string, items []LineItem) bool {
	code := NormalizeCode(itemCode)
	for _, it := range items {
		if NormalizeCode(it.ItemCode) == code {
			return true
		}
	}
	return false
}

package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the entry flow a session belongs to.
type Kind string

const (
	KindCustomerBill  Kind = "customer_bill"
	KindSupplierBill  Kind = "supplier_bill"
	KindStockTransfer Kind = "stock_transfer"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindCustomerBill, KindSupplierBill, KindStockTransfer:
		return true
	default:
		return false
	}
}

// StockBounded reports whether line quantities are limited by availability.
// Supplier bills bring stock in and are not bounded.
func (k Kind) StockBounded() bool {
	return k == KindCustomerBill || k == KindStockTransfer
}

// Session owns the ordered lines of one bill or transfer being entered. It has
// a single writer and is not safe for concurrent use.
type Session struct {
	kind          Kind
	items         []LineItem
	extraDiscount decimal.Decimal
	stock         *AvailabilityTable
	now           func() time.Time
	lastID        int64
}

// Option configures a Session.
type Option func(*Session)

// WithAvailability bounds quantities by the given table.
func WithAvailability(table *AvailabilityTable) Option {
	return func(s *Session) { s.stock = table }
}

// WithClock replaces the id clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession starts an empty session.
func NewSession(kind Kind, opts ...Option) *Session {
	s := &Session{kind: kind, extraDiscount: decimal.Zero, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the session kind.
func (s *Session) Kind() Kind { return s.kind }

// Availability returns the current stock table, if any.
func (s *Session) Availability() *AvailabilityTable { return s.stock }

// SetAvailability replaces the stock snapshot. Existing lines are kept even if
// they no longer fit; the bound applies to the next mutation.
func (s *Session) SetAvailability(table *AvailabilityTable) { s.stock = table }

// Items returns a copy of the lines in entry order.
func (s *Session) Items() []LineItem {
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of committed lines.
func (s *Session) Len() int { return len(s.items) }

// Line returns the line with the given id.
func (s *Session) Line(id int64) (LineItem, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return LineItem{}, false
	}
	return s.items[idx], true
}

// ExtraDiscount returns the invoice-level discount percentage.
func (s *Session) ExtraDiscount() decimal.Decimal { return s.extraDiscount }

// SetExtraDiscount sets the invoice-level discount; values outside [0,100]
// are rejected.
func (s *Session) SetExtraDiscount(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return reject("extra_discount", ErrDiscountOutOfRange, "must be between 0 and 100")
	}
	s.extraDiscount = percent
	return nil
}

// Totals aggregates the current lines.
func (s *Session) Totals() Totals {
	return Aggregate(s.items, s.extraDiscount)
}

// Check validates a draft against the collection without committing it.
func (s *Session) Check(d Draft) (LineItem, error) {
	item, err := d.Parse()
	if err != nil {
		return LineItem{}, err
	}
	if err := s.validate(item, 0, true); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// Add commits a draft as a new line.
func (s *Session) Add(d Draft) (LineItem, error) {
	item, err := s.Check(d)
	if err != nil {
		return LineItem{}, err
	}
	item.ID = s.nextID()
	s.items = append(s.items, item)
	return item, nil
}

// Edit changes one field of a line in place. Price, quantity and discount
// edits recompute the amount. Every edit runs the discount and duplicate
// checks; only item code and quantity edits are bounded by stock.
func (s *Session) Edit(id int64, field Field, value string) (LineItem, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return LineItem{}, reject("id", ErrLineNotFound, fmt.Sprintf("%d", id))
	}
	item := s.items[idx]
	if err := applyField(&item, field, value); err != nil {
		return LineItem{}, err
	}
	item.recompute()
	if err := s.validate(item, id, field.stockBound()); err != nil {
		return LineItem{}, err
	}
	s.items[idx] = item
	return item, nil
}

// Remove deletes a line.
func (s *Session) Remove(id int64) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return reject("id", ErrLineNotFound, fmt.Sprintf("%d", id))
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return nil
}

func (s *Session) validate(item LineItem, selfID int64, checkStock bool) error {
	if err := item.Discount.Validate(item.UnitPrice, item.Quantity); err != nil {
		return err
	}
	for _, other := range s.items {
		if other.ID == selfID {
			continue
		}
		if NormalizeCode(other.ItemCode) == NormalizeCode(item.ItemCode) {
			return reject(string(FieldItemCode), ErrDuplicateItem, item.ItemCode, item.ItemCode)
		}
	}
	if !checkStock || !s.kind.StockBounded() {
		return nil
	}
	available, ok := s.stock.Lookup(item.ItemCode)
	if !ok {
		return reject(string(FieldItemCode), ErrUnknownItem, item.ItemCode, item.ItemCode)
	}
	if !IsWithinAvailability(item.Quantity, available) {
		return reject(string(FieldQuantity), ErrInsufficientStock,
			fmt.Sprintf("requested %s, available %s", item.Quantity.String(), available.String()),
			item.Quantity.String(), available.String())
	}
	return nil
}

func (s *Session) indexOf(id int64) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// nextID is time based and strictly increasing within the session.
func (s *Session) nextID() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func applyField(item *LineItem, field Field, value string) error {
	switch field {
	case FieldItemCode:
		code := NormalizeCode(value)
		if code == "" {
			return reject(string(field), ErrMissingField, "")
		}
		item.ItemCode = code
	case FieldItemName:
		name := strings.TrimSpace(value)
		if name == "" {
			return reject(string(field), ErrMissingField, "")
		}
		item.ItemName = name
	case FieldUnit:
		item.Unit = strings.TrimSpace(value)
	case FieldCategory:
		item.Category = strings.TrimSpace(value)
	case FieldFreeQuantity:
		item.FreeQuantity = Coerce(value)
	case FieldUnitPrice:
		v, err := parseNumber(string(field), value, true)
		if err != nil {
			return err
		}
		if v.IsNegative() {
			return reject(string(field), ErrInvalidPrice, "")
		}
		item.UnitPrice = v
	case FieldQuantity:
		v, err := parseNumber(string(field), value, true)
		if err != nil {
			return err
		}
		if !v.IsPositive() {
			return reject(string(field), ErrInvalidQuantity, "")
		}
		item.Quantity = v
	case FieldDiscountPercentage:
		v, err := parseNumber(string(field), value, false)
		if err != nil {
			return err
		}
		item.Discount = PercentDiscount(v)
	case FieldDiscountAmount:
		v, err := parseNumber(string(field), value, false)
		if err != nil {
			return err
		}
		item.Discount = AmountDiscount(v)
	default:
		return reject(string(field), ErrUnknownField, "")
	}
	return nil
}

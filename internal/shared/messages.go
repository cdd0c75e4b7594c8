package shared

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MessageKey identifies a user-facing message in the catalog.
type MessageKey string

// Message keys. Formats with verbs expect the offending field, item code or
// quantities as arguments.
const (
	MsgMissingField       MessageKey = "missing_field"
	MsgInvalidNumber      MessageKey = "invalid_number"
	MsgInvalidQuantity    MessageKey = "invalid_quantity"
	MsgInvalidPrice       MessageKey = "invalid_price"
	MsgDiscountRange      MessageKey = "discount_range"
	MsgDuplicateItem      MessageKey = "duplicate_item"
	MsgUnknownItem        MessageKey = "unknown_item"
	MsgInsufficientStock  MessageKey = "insufficient_stock"
	MsgLineNotFound       MessageKey = "line_not_found"
	MsgUnknownField       MessageKey = "unknown_field"
	MsgEmptyBill          MessageKey = "empty_bill"
	MsgInvalidHeader      MessageKey = "invalid_header"
	MsgSessionNotFound    MessageKey = "session_not_found"
	MsgSubmitInFlight     MessageKey = "submit_in_flight"
	MsgDuplicateSubmit    MessageKey = "duplicate_submit"
	MsgPartyNotFound      MessageKey = "party_not_found"
	MsgOrderNotFound      MessageKey = "order_not_found"
	MsgInvalidTransition  MessageKey = "invalid_transition"
	MsgUnknownAction      MessageKey = "unknown_action"
	MsgActorRequired      MessageKey = "actor_required"
	MsgBackendUnavailable MessageKey = "backend_unavailable"
	MsgBackendRejected    MessageKey = "backend_rejected"
	MsgBadRequest         MessageKey = "bad_request"
	MsgInternal           MessageKey = "internal"

	MsgSummaryLine     MessageKey = "summary_line"
	MsgSummarySubtotal MessageKey = "summary_subtotal"
	MsgSummaryDiscount MessageKey = "summary_discount"
	MsgSummaryTotal    MessageKey = "summary_total"
	MsgSummaryQuantity MessageKey = "summary_quantity"
)

var catalogs = map[language.Tag]map[MessageKey]string{
	language.English: {
		MsgMissingField:       "%s is required",
		MsgInvalidNumber:      "%s must be a number",
		MsgInvalidQuantity:    "%s must be greater than zero",
		MsgInvalidPrice:       "%s must not be negative",
		MsgDiscountRange:      "%s is out of range",
		MsgDuplicateItem:      "item %s is already on this bill",
		MsgUnknownItem:        "item %s has no stock record",
		MsgInsufficientStock:  "requested %s but only %s available",
		MsgLineNotFound:       "line item not found",
		MsgUnknownField:       "%s cannot be edited",
		MsgEmptyBill:          "add at least one item before submitting",
		MsgInvalidHeader:      "bill header is incomplete: %s",
		MsgSessionNotFound:    "billing session not found or expired",
		MsgSubmitInFlight:     "a submission is already in progress",
		MsgDuplicateSubmit:    "this bill was already submitted",
		MsgPartyNotFound:      "customer or supplier not found",
		MsgOrderNotFound:      "order not found",
		MsgInvalidTransition:  "cannot %s an order that is %s",
		MsgUnknownAction:      "unknown order action %q",
		MsgActorRequired:      "actor is required",
		MsgBackendUnavailable: "the backend service is unavailable, please retry",
		MsgBackendRejected:    "the backend rejected the request: %s",
		MsgBadRequest:         "malformed request",
		MsgInternal:           "unexpected error",
		MsgSummaryLine:        "%s %s: %v x %.2f = %.2f",
		MsgSummarySubtotal:    "Subtotal: %.2f",
		MsgSummaryDiscount:    "Extra discount %v%%: -%.2f",
		MsgSummaryTotal:       "Total: %.2f",
		MsgSummaryQuantity:    "Total quantity: %v",
	},
	language.Indonesian: {
		MsgMissingField:       "%s wajib diisi",
		MsgInvalidNumber:      "%s harus berupa angka",
		MsgInvalidQuantity:    "%s harus lebih dari nol",
		MsgInvalidPrice:       "%s tidak boleh negatif",
		MsgDiscountRange:      "%s di luar rentang",
		MsgDuplicateItem:      "barang %s sudah ada di tagihan ini",
		MsgUnknownItem:        "barang %s tidak memiliki data stok",
		MsgInsufficientStock:  "diminta %s tetapi hanya tersedia %s",
		MsgLineNotFound:       "baris barang tidak ditemukan",
		MsgUnknownField:       "%s tidak dapat diubah",
		MsgEmptyBill:          "tambahkan minimal satu barang sebelum mengirim",
		MsgInvalidHeader:      "kepala tagihan belum lengkap: %s",
		MsgSessionNotFound:    "sesi tagihan tidak ditemukan atau kedaluwarsa",
		MsgSubmitInFlight:     "pengiriman sedang diproses",
		MsgDuplicateSubmit:    "tagihan ini sudah pernah dikirim",
		MsgPartyNotFound:      "pelanggan atau pemasok tidak ditemukan",
		MsgOrderNotFound:      "pesanan tidak ditemukan",
		MsgInvalidTransition:  "tidak dapat %s pesanan berstatus %s",
		MsgUnknownAction:      "aksi pesanan %q tidak dikenal",
		MsgActorRequired:      "pelaku wajib diisi",
		MsgBackendUnavailable: "layanan backend tidak tersedia, silakan coba lagi",
		MsgBackendRejected:    "backend menolak permintaan: %s",
		MsgBadRequest:         "permintaan tidak valid",
		MsgInternal:           "terjadi kesalahan",
		MsgSummaryLine:        "%s %s: %v x %.2f = %.2f",
		MsgSummarySubtotal:    "Subtotal: %.2f",
		MsgSummaryDiscount:    "Diskon tambahan %v%%: -%.2f",
		MsgSummaryTotal:       "Total akhir: %.2f",
		MsgSummaryQuantity:    "Jumlah barang: %v",
	},
}

func init() {
	for tag, entries := range catalogs {
		for key, format := range entries {
			_ = message.SetString(tag, string(key), format)
		}
	}
}

// Localizer resolves message printers from Accept-Language.
type Localizer struct {
	supported []language.Tag
	matcher   language.Matcher
}

// NewLocalizer builds a Localizer falling back to defaultLocale.
func NewLocalizer(defaultLocale string) *Localizer {
	supported := []language.Tag{language.English, language.Indonesian}
	if tag, err := language.Parse(defaultLocale); err == nil {
		if base, _ := tag.Base(); base.String() == "id" {
			supported = []language.Tag{language.Indonesian, language.English}
		}
	}
	return &Localizer{supported: supported, matcher: language.NewMatcher(supported)}
}

// Printer returns a printer for the request's preferred language. The first
// supported tag is the fallback.
func (l *Localizer) Printer(r *http.Request) *message.Printer {
	if l == nil {
		return message.NewPrinter(language.English)
	}
	tag := l.supported[0]
	if r != nil {
		if accept := r.Header.Get("Accept-Language"); accept != "" {
			if prefs, _, err := language.ParseAcceptLanguage(accept); err == nil && len(prefs) > 0 {
				if _, idx, conf := l.matcher.Match(prefs...); conf != language.No {
					tag = l.supported[idx]
				}
			}
		}
	}
	return message.NewPrinter(tag)
}

// Message renders key for the request's language.
func (l *Localizer) Message(r *http.Request, key MessageKey, args ...any) string {
	return l.Printer(r).Sprintf(string(key), args...)
}

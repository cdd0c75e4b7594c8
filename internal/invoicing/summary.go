package invoicing

import (
	"bufio"
	"io"

	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// WriteSummary prints one line per item followed by the totals, with numbers
// formatted for p's language.
func WriteSummary(w io.Writer, p *message.Printer, v SessionView) error {
	bw := bufio.NewWriter(w)
	line := func(key shared.MessageKey, args ...any) {
		_, _ = bw.WriteString(p.Sprintf(string(key), args...))
		_ = bw.WriteByte('\n')
	}
	for _, it := range v.Items {
		line(shared.MsgSummaryLine, it.ItemCode, it.ItemName,
			it.Quantity.InexactFloat64(), it.UnitPrice.InexactFloat64(), it.Amount().InexactFloat64())
	}
	t := v.Totals
	line(shared.MsgSummarySubtotal, t.Subtotal.InexactFloat64())
	if t.ExtraDiscountPercent.IsPositive() {
		line(shared.MsgSummaryDiscount, t.ExtraDiscountPercent.InexactFloat64(), t.ExtraDiscountAmount.InexactFloat64())
	}
	line(shared.MsgSummaryTotal, t.FinalTotal.InexactFloat64())
	line(shared.MsgSummaryQuantity, t.TotalQuantity.InexactFloat64())
	return bw.Flush()
}

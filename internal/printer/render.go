package printer

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/mmynk/billagent/internal/calculator"
	"github.com/mmynk/billagent/internal/models"
)

const (
	DefaultTitle    = "General Billing"
	DefaultCurrency = "₹"
	// DefaultWidth is the character width of an 80mm roll in font A.
	DefaultWidth = 48

	timestampLayout = "2006-01-02 15:04:05"
)

// Renderer turns a bill into receipt text. The output depends only on the
// bill and the renderer fields.
type Renderer struct {
	Title    string
	Currency string
	Width    int
	Location *time.Location
}

// DefaultRenderer returns a renderer with the default title, currency and
// width, formatting timestamps in the local zone.
func DefaultRenderer() *Renderer {
	return &Renderer{
		Title:    DefaultTitle,
		Currency: DefaultCurrency,
		Width:    DefaultWidth,
		Location: time.Local,
	}
}

// Render produces the receipt:
//
//	<title, centred>
//	<rule>
//
//	User: <user>
//	Date: <created at>
//	<desc> - <qty> x <price> = <line total>   (one per line item)
//	<rule>
//	Total: <total>
//
// Line totals are derived from qty and price; the footer prints the bill
// total as sent.
func (r *Renderer) Render(bill *models.Bill) string {
	width := r.Width
	if width <= 0 {
		width = DefaultWidth
	}
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	rule := strings.Repeat("-", width)

	var b strings.Builder
	b.WriteString(center(r.Title, width))
	b.WriteByte('\n')
	b.WriteString(rule)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "User: %s\n", bill.User)
	fmt.Fprintf(&b, "Date: %s\n", time.UnixMilli(bill.CreatedAt).In(loc).Format(timestampLayout))
	for _, l := range bill.Lines {
		fmt.Fprintf(&b, "%s - %s x %s%s = %s%s\n",
			l.Desc,
			calculator.Quantity(l.Qty),
			r.Currency, calculator.Money(l.Price),
			r.Currency, calculator.LineTotal(l.Qty, l.Price).StringFixed(2),
		)
	}
	b.WriteString(rule)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Total: %s%s\n", r.Currency, calculator.Money(bill.Total))
	return b.String()
}

// center pads s on the left so it sits in the middle of width columns,
// measuring display width rather than bytes.
func center(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", (width-w)/2) + s
}

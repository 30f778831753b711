package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/billagent/internal/models"
)

// LineTotal returns qty × price rounded to cents.
// Multiplying in decimal avoids float artefacts such as 3 × 0.1 = 0.30000000000000004.
func LineTotal(qty, price float64) decimal.Decimal {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price)).Round(2)
}

// BillTotal sums the derived line totals of a bill.
func BillTotal(lines []models.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l.Qty, l.Price))
	}
	return sum
}

// TotalMatches reports whether the client-supplied total agrees with the
// sum of its lines to the cent. The agent only logs a mismatch; it never
// rejects a bill for it.
func TotalMatches(bill *models.Bill) bool {
	return decimal.NewFromFloat(bill.Total).Round(2).Equal(BillTotal(bill.Lines))
}

// Money formats an amount with two decimals.
func Money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Quantity formats a quantity without trailing zeros, so 2 prints as "2"
// and 1.5 as "1.5".
func Quantity(v float64) string {
	return decimal.NewFromFloat(v).String()
}

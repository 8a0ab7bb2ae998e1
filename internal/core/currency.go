package core

import (
	"fmt"
	"strings"
)

// Display symbols for the currencies the mess commonly runs on. Anything
// else falls back to the ISO code itself.
var currencySymbols = map[string]string{
	"SAR": "SR",
	"BDT": "Tk",
	"USD": "$",
	"EUR": "€",
	"INR": "₹",
}

// FormatAmount renders a signed amount for display: symbol, two decimals,
// leading minus for debts. The engine emits signed values, so the sign is
// handled here and nowhere else.
func FormatAmount(amount float64, currencyCode string) string {
	symbol, ok := currencySymbols[strings.ToUpper(currencyCode)]
	if !ok {
		symbol = strings.ToUpper(currencyCode)
	}
	if amount < 0 {
		return fmt.Sprintf("-%s %.2f", symbol, -amount)
	}
	return fmt.Sprintf("%s %.2f", symbol, amount)
}

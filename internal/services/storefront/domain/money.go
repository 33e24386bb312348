package domain

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatCents renders an amount for receipts and admin views, with digit
// grouping: 123456 becomes "$1,234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + moneyPrinter.Sprintf("$%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
}

// services/format.go
package services

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// French-locale printer for the Telegram messages (grouped thousands).
var amountPrinter = message.NewPrinter(language.French)

// FormatCentimes renders an integer minor-unit amount as "1 234.50 CHF".
// The amount stays integral; the decimal point only appears at this boundary.
func FormatCentimes(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%s.%02d %s", sign, amountPrinter.Sprintf("%d", amount/100), amount%100, currency)
}

// FormatScore renders a score with locale thousands grouping.
func FormatScore(n int64) string {
	return amountPrinter.Sprintf("%d", n)
}

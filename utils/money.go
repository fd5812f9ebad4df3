package utils

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMinor renders a minor-unit amount as "<currency> 1,234.56".
func FormatMinor(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	major := moneyPrinter.Sprintf("%d", minor/100)
	out := fmt.Sprintf("%s%s.%02d", sign, major, minor%100)
	if currency == "" {
		return out
	}
	return currency + " " + out
}

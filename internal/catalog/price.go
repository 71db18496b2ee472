package catalog

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonPriceChars = regexp.MustCompile(`[^0-9.]`)

// ParsePrice reads a price out of display text such as "R1,234.50 off".
// Everything but digits and dots is dropped, text that still does not parse
// yields zero.
func ParsePrice(text string) decimal.Decimal {
	cleaned := nonPriceChars.ReplaceAllString(text, "")
	cleaned = strings.TrimRight(cleaned, ".")
	if cleaned == "" {
		return decimal.Zero
	}
	if cleaned[0] == '.' {
		cleaned = "0" + cleaned
	}
	// "12.99.50" style leftovers keep the leading number only
	if first := strings.Index(cleaned, "."); first >= 0 {
		if second := strings.Index(cleaned[first+1:], "."); second >= 0 {
			cleaned = cleaned[:first+1+second]
		}
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return value
}

package util

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func SafeAtoi(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

var nonNumericRegex = regexp.MustCompile(`[^\d]`)

func CleanNumericString(s string) string {
	return nonNumericRegex.ReplaceAllString(s, "")
}

var priceRegex = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ParsePrice extracts the first decimal number from strings like "$1,299.99"
// or "12.50 USD". Thousands separators are dropped before matching.
func ParsePrice(s string) (decimal.Decimal, bool) {
	match := priceRegex.FindString(strings.ReplaceAll(s, ",", ""))
	if match == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

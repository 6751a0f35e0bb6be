package normalize

import "strings"

var currencySymbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"£":   "GBP",
	"€":   "EUR",
	"C$":  "CAD",
	"CA$": "CAD",
	"MX$": "MXN",
}

var currencyCodes = map[string]bool{
	"USD": true,
	"GBP": true,
	"EUR": true,
	"CAD": true,
	"MXN": true,
}

// CurrencyCode maps a currency symbol (or an already-known ISO code) to its
// ISO 4217 code. Unknown symbols map to "".
func CurrencyCode(symbol string) string {
	s := strings.TrimSpace(symbol)
	if code, ok := currencySymbols[s]; ok {
		return code
	}
	if up := strings.ToUpper(s); currencyCodes[up] {
		return up
	}
	return ""
}

package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/pauljones0/catalog-crawler/internal/util"
)

// first returns the first path under node that holds a usable value.
func first(node gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		r := node.Get(p)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if r.Type == gjson.String && strings.TrimSpace(r.Str) == "" {
			continue
		}
		return r
	}
	return gjson.Result{}
}

// str returns the first non-empty scalar under paths as a trimmed string.
func str(node gjson.Result, paths ...string) string {
	r := first(node, paths...)
	if r.IsObject() || r.IsArray() {
		return ""
	}
	return strings.TrimSpace(r.String())
}

func intPtr(node gjson.Result, paths ...string) *int {
	r := first(node, paths...)
	switch r.Type {
	case gjson.Number:
		v := int(r.Int())
		return &v
	case gjson.String:
		if digits := util.CleanNumericString(r.Str); digits != "" {
			v := util.SafeAtoi(digits)
			return &v
		}
	}
	return nil
}

func floatPtr(node gjson.Result, paths ...string) *float64 {
	r := first(node, paths...)
	switch r.Type {
	case gjson.Number:
		v := r.Float()
		return &v
	case gjson.String:
		if d, ok := util.ParsePrice(r.Str); ok {
			v := d.InexactFloat64()
			return &v
		}
	}
	return nil
}

func boolPtr(node gjson.Result, paths ...string) *bool {
	r := first(node, paths...)
	switch r.Type {
	case gjson.True, gjson.False:
		v := r.Bool()
		return &v
	}
	return nil
}

func price(node gjson.Result, paths ...string) decimal.NullDecimal {
	r := first(node, paths...)
	switch r.Type {
	case gjson.Number:
		if d, err := decimal.NewFromString(r.Raw); err == nil {
			return decimal.NewNullDecimal(d)
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(r.Num))
	case gjson.String:
		if d, ok := util.ParsePrice(r.Str); ok {
			return decimal.NewNullDecimal(d)
		}
	case gjson.JSON:
		// {"value": 12.5} or {"price": "12.50"}
		return price(r, "value", "price", "amount")
	}
	return decimal.NullDecimal{}
}

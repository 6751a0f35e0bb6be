package normalize

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/util"
)

// SellerRecordFrom maps a seller_profile payload to a SellerRecord for ref.
// ok is false when the payload is unusable or the upstream reported failure.
// The returned record may still lack contact details; callers decide what
// counts as enriched.
func SellerRecordFrom(payload []byte, ref models.SellerRef, opts Options) (models.SellerRecord, bool) {
	if !gjson.ValidBytes(payload) {
		return models.SellerRecord{}, false
	}
	root := gjson.ParseBytes(payload)
	if ok := root.Get("request_info.success"); ok.Exists() && !ok.Bool() {
		return models.SellerRecord{}, false
	}

	node := root.Get("seller_details")
	if !node.IsObject() {
		node = root
	}

	rec := models.SellerRecord{
		Ref:          ref,
		Name:         str(node, "name", "legal_name"),
		BusinessName: str(node, "legal_name", "business_name", "name"),
		Email:        str(node, "email", "email_address"),
		Phone:        str(node, "phone", "telephone", "phone_number"),
		PictureURL:   absoluteURL(str(node, "logo", "image"), opts.Domain),
		Rating:       floatPtr(node, "rating"),
		ReviewCount:  intPtr(node, "reviews_count", "ratings_total"),
	}

	if u := absoluteURL(str(node, "seller_url", "url", "link"), opts.Domain); u != "" {
		if normalized, err := util.NormalizeProfileURL(u); err == nil {
			rec.ProfileURL = normalized
		}
	}

	address := node.Get("address")
	switch {
	case address.IsObject():
		street := str(address, "address1", "street1", "streetAddress")
		city := str(address, "city", "addressLocality")
		rec.StateProvince = str(address, "state", "addressRegion")
		rec.PostalCode = str(address, "zipcode", "postalCode", "zip")
		rec.Country = str(address, "country", "addressCountry", "addressCountry.name")
		rec.Address = str(node, "address_text")
		if rec.Address == "" {
			rec.Address = joinNonEmpty(street, city, rec.StateProvince, rec.PostalCode, rec.Country)
		}
	default:
		rec.Address = str(node, "address_text", "address")
	}

	if rec.ReviewCount == nil {
		if breakdown := node.Get("rating_breakdown"); breakdown.IsObject() {
			total := 0
			breakdown.ForEach(func(_, v gjson.Result) bool {
				total += int(v.Int())
				return true
			})
			rec.ReviewCount = &total
		}
	}

	return rec, true
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

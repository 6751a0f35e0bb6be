package normalize

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/util"
)

// Options carries the context normalization needs beyond the payload.
type Options struct {
	// Domain is the catalog domain used to build seller profile URLs from
	// non-numeric seller ids.
	Domain string
}

var itemPaths = []string{
	"search_results",
	"items",
	"results",
	"data.search_results",
	"data.items",
	"data.results",
}

// SearchItems returns the raw items of a search page, probing the known
// container paths in order. A missing or empty container yields nil.
func SearchItems(payload []byte) []gjson.Result {
	if !gjson.ValidBytes(payload) {
		return nil
	}
	root := gjson.ParseBytes(payload)
	for _, p := range itemPaths {
		r := root.Get(p)
		if r.IsArray() {
			if items := r.Array(); len(items) > 0 {
				return items
			}
		}
	}
	return nil
}

// TotalResults returns the upstream's reported result count, if any.
func TotalResults(payload []byte) (int, bool) {
	if !gjson.ValidBytes(payload) {
		return 0, false
	}
	r := first(gjson.ParseBytes(payload),
		"pagination.total_results",
		"data.pagination.total_results",
		"search_information.total_results",
	)
	if r.Type != gjson.Number && r.Type != gjson.String {
		return 0, false
	}
	n := int(r.Int())
	if r.Type == gjson.String {
		n = util.SafeAtoi(util.CleanNumericString(r.Str))
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// ListingID probes the id paths of a raw search item.
func ListingID(item gjson.Result) string {
	return str(item, "product.item_id", "product.product_id", "item_id", "product_id", "id")
}

// ListingFromSearch maps one raw search item to a Listing. ok is false when
// the item carries no identifier.
func ListingFromSearch(item gjson.Result, keyword string, opts Options) (models.Listing, bool) {
	id := ListingID(item)
	if id == "" {
		return models.Listing{}, false
	}

	product := item.Get("product")
	offers := item.Get("offers")

	l := models.Listing{
		ListingID:      id,
		Keyword:        keyword,
		Title:          str(item, "product.title", "title"),
		Brand:          str(item, "product.brand", "brand"),
		UPC:            str(item, "product.upc", "product.gtin", "upc", "gtin"),
		ASIN:           str(item, "product.asin", "asin"),
		URL:            absoluteURL(str(item, "product.link", "product.url", "link", "url"), opts.Domain),
		SKU:            str(item, "product.sku", "sku"),
		Description:    str(item, "product.description", "description"),
		ImageURLs:      Images(first(product, "images"), first(product, "main_image"), first(item, "images", "image")),
		InStock:        boolPtr(item, "inventory.in_stock", "product.in_stock", "in_stock", "offers.primary.in_stock"),
		UnitsAvailable: intPtr(item, "inventory.quantity", "inventory.available_quantity", "available_quantity"),
	}

	l.PrimaryOffer = primaryOffer(item, offers, opts)
	l.Price = l.PrimaryOffer.Price
	if !l.Price.Valid {
		l.Price = price(item, "price", "product.price", "product.buybox_winner.price")
	}
	l.Currency = l.PrimaryOffer.Currency
	if l.Currency == "" {
		l.Currency = CurrencyCode(str(item, "currency_symbol", "currency", "product.currency"))
	}
	l.OfferCount = offerCount(item, offers)
	l.Seller = models.SellerRecord{
		Ref:        l.PrimaryOffer.SellerRef,
		State:      models.SellerPending,
		Name:       l.PrimaryOffer.SellerName,
		ProfileURL: l.PrimaryOffer.SellerRef.URL,
	}
	return l, true
}

func offerCount(item, offers gjson.Result) int {
	if n := first(item, "offers_count", "product.offers_count", "offers.count"); n.Type == gjson.Number && n.Int() >= 0 {
		return int(n.Int())
	}
	switch {
	case offers.IsArray():
		return len(offers.Array())
	case offers.Get("primary").IsObject():
		return 1 + len(offers.Get("other").Array())
	}
	return 0
}

func primaryOffer(item, offers gjson.Result, opts Options) models.Offer {
	node := first(offers, "primary", "0")
	if !node.Exists() {
		node = first(item, "offer", "buybox_winner", "product.buybox_winner")
	}
	o := offerFrom(node, opts)
	if o.SellerRef.IsZero() {
		// Flat seller fields sometimes sit next to the product.
		o.SellerRef = sellerRef(str(item, "seller_id", "sellerId", "seller.id"), str(item, "seller_url", "seller.url"), opts)
		if o.SellerName == "" {
			o.SellerName = str(item, "seller_name", "seller.name")
		}
	}
	if o.SellerRef.IsZero() {
		if id := FindNumericSellerID(offers); id != "" {
			o.SellerRef = models.SellerRef{ID: id}
		}
	}
	return o
}

func offerFrom(node gjson.Result, opts Options) models.Offer {
	if !node.Exists() {
		return models.Offer{}
	}
	return models.Offer{
		SellerRef: sellerRef(
			str(node, "seller_id", "seller.id", "sellerId"),
			str(node, "seller_url", "seller.url", "seller.link"),
			opts,
		),
		SellerName:   str(node, "seller_name", "seller.name"),
		SellerRating: floatPtr(node, "seller.rating", "seller_rating"),
		ReviewCount:  intPtr(node, "seller.ratings_total", "seller.reviews_count", "seller_reviews_count"),
		Price:        price(node, "price", "current_price"),
		Currency:     CurrencyCode(str(node, "currency_symbol", "currency")),
		Quantity:     intPtr(node, "quantity", "available_quantity", "inventory.quantity"),
	}
}

// sellerRef prefers a numeric id. A non-numeric id without a URL is turned
// into the seller's profile URL on the catalog domain.
func sellerRef(id, rawURL string, opts Options) models.SellerRef {
	profileURL, err := util.NormalizeProfileURL(absoluteURL(rawURL, opts.Domain))
	if err != nil {
		profileURL = ""
	}
	if profileURL == "" && id != "" && !models.IsNumeric(id) {
		profileURL = util.SellerProfileURL(opts.Domain, id)
	}
	return models.SellerRef{ID: id, URL: profileURL}
}

// absoluteURL resolves site-relative links against the catalog domain.
func absoluteURL(raw, domain string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.Contains(raw, "://"):
		return raw
	case strings.HasPrefix(raw, "/") && domain != "":
		return "https://www." + strings.TrimPrefix(domain, "www.") + raw
	case looksLikeHost(raw):
		return "https://" + raw
	}
	return raw
}

// looksLikeHost matches scheme-less links such as "www.walmart.com/ip/1".
func looksLikeHost(raw string) bool {
	host, _, _ := strings.Cut(raw, "/")
	return strings.Contains(host, ".") && !strings.ContainsAny(host, " @")
}

// Images flattens image values that may be strings, objects carrying a
// url/link/src/image field, or arrays of either. Order is preserved and
// duplicates dropped.
func Images(nodes ...gjson.Result) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "//") {
			s = "https:" + s
		}
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			return
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	var walk func(r gjson.Result)
	walk = func(r gjson.Result) {
		switch {
		case r.IsArray():
			for _, el := range r.Array() {
				walk(el)
			}
		case r.IsObject():
			add(str(r, "url", "link", "src", "image"))
		case r.Type == gjson.String:
			add(r.Str)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

// FindNumericSellerID walks node depth-first looking for a numeric
// seller_id, sellerId, id, or seller.id.
func FindNumericSellerID(node gjson.Result) string {
	switch {
	case node.IsObject():
		for _, key := range []string{"seller_id", "sellerId", "id", "seller.id"} {
			if v := node.Get(key); v.Type == gjson.Number || v.Type == gjson.String {
				if s := strings.TrimSpace(v.String()); models.IsNumeric(s) {
					return s
				}
			}
		}
		var found string
		node.ForEach(func(_, value gjson.Result) bool {
			found = FindNumericSellerID(value)
			return found == ""
		})
		return found
	case node.IsArray():
		for _, el := range node.Array() {
			if found := FindNumericSellerID(el); found != "" {
				return found
			}
		}
	}
	return ""
}

// MergeProductDetail fills fields the search result lacked from a product
// endpoint payload. Fields already present on the listing are kept.
func MergeProductDetail(l *models.Listing, payload []byte, opts Options) {
	if !gjson.ValidBytes(payload) {
		return
	}
	root := gjson.ParseBytes(payload)
	product := root.Get("product")
	if !product.Exists() {
		product = root
	}

	fill := func(dst *string, paths ...string) {
		if *dst == "" {
			*dst = str(product, paths...)
		}
	}
	fill(&l.Title, "title")
	fill(&l.Brand, "brand")
	fill(&l.SKU, "sku", "usItemId")
	fill(&l.Description, "description", "short_description")
	fill(&l.UPC, "upc", "gtin")
	fill(&l.ASIN, "asin")
	if l.URL == "" {
		l.URL = absoluteURL(str(product, "link", "url"), opts.Domain)
	}
	if len(l.ImageURLs) == 0 {
		l.ImageURLs = Images(first(product, "images"), first(product, "main_image"))
	}
	if !l.Price.Valid {
		l.Price = price(product, "buybox_winner.price", "price")
	}
	if l.Currency == "" {
		l.Currency = CurrencyCode(str(product, "buybox_winner.currency_symbol", "currency_symbol", "currency"))
	}
	if l.InStock == nil {
		l.InStock = boolPtr(product, "in_stock", "buybox_winner.in_stock")
	}
	if l.PrimaryOffer.SellerRef.IsZero() {
		if winner := first(product, "buybox_winner", "seller"); winner.Exists() {
			o := offerFrom(winner, opts)
			if o.SellerRef.IsZero() && winner.Get("name").Exists() {
				o.SellerRef = sellerRef(str(winner, "id"), str(winner, "url", "link"), opts)
				o.SellerName = str(winner, "name")
			}
			if !o.SellerRef.IsZero() {
				applyPrimaryOffer(l, o)
			}
		}
	}
}

// OffersFrom parses an offers endpoint payload.
func OffersFrom(payload []byte, opts Options) []models.Offer {
	if !gjson.ValidBytes(payload) {
		return nil
	}
	root := gjson.ParseBytes(payload)
	list := first(root, "offers", "data.offers", "offers_results")
	var out []models.Offer
	for _, node := range list.Array() {
		o := offerFrom(node, opts)
		if o.SellerRef.IsZero() {
			if id := FindNumericSellerID(node); id != "" {
				o.SellerRef = models.SellerRef{ID: id, URL: o.SellerRef.URL}
			}
		}
		out = append(out, o)
	}
	return out
}

// ApplyOffers attaches offers to a listing and adopts the first one with a
// usable seller as primary when the listing had none.
func ApplyOffers(l *models.Listing, offers []models.Offer) {
	if len(offers) == 0 {
		return
	}
	l.Offers = offers
	if len(offers) > l.OfferCount {
		l.OfferCount = len(offers)
	}
	if !l.PrimaryOffer.SellerRef.IsZero() {
		return
	}
	for _, o := range offers {
		if !o.SellerRef.IsZero() {
			applyPrimaryOffer(l, o)
			return
		}
	}
}

func applyPrimaryOffer(l *models.Listing, o models.Offer) {
	l.PrimaryOffer = o
	l.Seller.Ref = o.SellerRef
	if l.Seller.Name == "" {
		l.Seller.Name = o.SellerName
	}
	if l.Seller.ProfileURL == "" {
		l.Seller.ProfileURL = o.SellerRef.URL
	}
	if !l.Price.Valid && o.Price.Valid {
		l.Price = o.Price
	}
	if l.Currency == "" {
		l.Currency = o.Currency
	}
}

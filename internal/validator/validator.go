package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pauljones0/catalog-crawler/internal/models"
)

// Validator checks normalized records against their struct tags.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateStruct validates s and reports every failing field by its JSON name,
// e.g. "validation failed: listing_id (required)".
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation failed: %w", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s (%s)", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s: %w", strings.Join(parts, ", "), err)
}

// Sanitize clears optional listing fields that hold unusable values so the
// record can still be kept. It returns the names of the fields it changed.
func (v *Validator) Sanitize(l *models.Listing) []string {
	var cleared []string
	mark := func(name string) { cleared = append(cleared, name) }

	if l.URL != "" && v.validate.Var(l.URL, "url") != nil {
		l.URL = ""
		mark("url")
	}
	if len(l.ImageURLs) > 0 {
		kept := l.ImageURLs[:0]
		for _, u := range l.ImageURLs {
			if v.validate.Var(u, "url") == nil {
				kept = append(kept, u)
			}
		}
		if len(kept) != len(l.ImageURLs) {
			mark("image_urls")
		}
		l.ImageURLs = kept
	}
	if l.Currency != "" && v.validate.Var(l.Currency, "len=3,alpha,uppercase") != nil {
		l.Currency = ""
		mark("currency")
	}
	if l.OfferCount < 0 {
		l.OfferCount = 0
		mark("offer_count")
	}
	if negativeInt(l.UnitsAvailable) {
		l.UnitsAvailable = nil
		mark("units_available")
	}
	if negativePrice(l.Price) {
		l.Price = decimal.NullDecimal{}
		mark("price")
	}
	if sanitizeOffer(&l.PrimaryOffer) {
		mark("primary_offer")
	}
	for i := range l.Offers {
		if sanitizeOffer(&l.Offers[i]) {
			mark(fmt.Sprintf("offers[%d]", i))
		}
	}
	return cleared
}

func sanitizeOffer(o *models.Offer) bool {
	changed := false
	if negativePrice(o.Price) {
		o.Price = decimal.NullDecimal{}
		changed = true
	}
	if negativeInt(o.Quantity) {
		o.Quantity = nil
		changed = true
	}
	if negativeInt(o.ReviewCount) {
		o.ReviewCount = nil
		changed = true
	}
	return changed
}

func negativePrice(p decimal.NullDecimal) bool {
	return p.Valid && p.Decimal.IsNegative()
}

func negativeInt(n *int) bool {
	return n != nil && *n < 0
}

// fieldPath drops the root type name from a namespace like "Listing.listing_id".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

package enrich

import (
	"strings"

	"github.com/pauljones0/catalog-crawler/internal/models"
)

// DefaultOperatorContact is the published contact record of the catalog
// operator.
func DefaultOperatorContact() models.SellerRecord {
	return models.SellerRecord{
		Name:         "Walmart.com",
		BusinessName: "Walmart Inc.",
		Email:        "help@walmart.com",
		Phone:        "1-800-925-6278",
		Address:      "702 SW 8th St, Bentonville, AR 72716, USA",
		Country:      "US",
	}
}

// OperatorPolicy recognizes listings sold by the catalog operator itself.
// Those sellers get a fixed contact record instead of a profile lookup.
type OperatorPolicy struct {
	names   map[string]bool
	contact models.SellerRecord
}

func NewOperatorPolicy(names []string, contact models.SellerRecord) *OperatorPolicy {
	p := &OperatorPolicy{names: make(map[string]bool), contact: contact}
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			p.names[n] = true
		}
	}
	return p
}

// Matches reports whether a seller name is one of the operator's names.
func (p *OperatorPolicy) Matches(name string) bool {
	return p.names[strings.ToLower(strings.TrimSpace(name))]
}

// Apply fills the operator contact into l when its seller is the operator.
// Fields the listing already has are kept.
func (p *OperatorPolicy) Apply(l *models.Listing) bool {
	name := l.Seller.Name
	if name == "" {
		name = l.PrimaryOffer.SellerName
	}
	if !p.Matches(name) {
		return false
	}
	s := &l.Seller
	fillString(&s.Name, name)
	fillString(&s.BusinessName, p.contact.BusinessName)
	fillString(&s.Email, p.contact.Email)
	fillString(&s.Phone, p.contact.Phone)
	fillString(&s.Address, p.contact.Address)
	fillString(&s.Country, p.contact.Country)
	s.State = models.SellerEnriched
	return true
}

func fillString(dst *string, v string) bool {
	if *dst != "" || v == "" {
		return false
	}
	*dst = v
	return true
}

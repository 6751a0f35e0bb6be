package enrich

import (
	"github.com/pauljones0/catalog-crawler/internal/models"
)

// Reconcile copies cached seller records into the listings that reference
// them and returns how many listings changed. Only empty listing fields are
// filled, except the profile URL which an enriched record always refines.
// Running it twice in a row changes nothing the second time.
func Reconcile(listings []models.Listing, cache *SellerCache) int {
	changed := 0
	for i := range listings {
		s := &listings[i].Seller
		key := s.Ref.Key()
		if key == "" {
			continue
		}
		rec, ok := cache.Get(key)
		if !ok {
			continue
		}
		if apply(s, rec) {
			changed++
		}
	}
	return changed
}

type stringField struct {
	dst *string
	v   string
}

func apply(s *models.SellerRecord, rec models.SellerRecord) bool {
	if rec.State == models.SellerExhausted {
		if s.State == models.SellerPending || s.State == "" {
			s.State = models.SellerExhausted
			return true
		}
		return false
	}
	if rec.State != models.SellerEnriched {
		return false
	}

	changed := false
	for _, f := range []stringField{
		{&s.Name, rec.Name},
		{&s.Email, rec.Email},
		{&s.Phone, rec.Phone},
		{&s.BusinessName, rec.BusinessName},
		{&s.Address, rec.Address},
		{&s.Country, rec.Country},
		{&s.StateProvince, rec.StateProvince},
		{&s.PostalCode, rec.PostalCode},
		{&s.PictureURL, rec.PictureURL},
	} {
		if fillString(f.dst, f.v) {
			changed = true
		}
	}
	if s.Rating == nil && rec.Rating != nil {
		v := *rec.Rating
		s.Rating = &v
		changed = true
	}
	if s.ReviewCount == nil && rec.ReviewCount != nil {
		v := *rec.ReviewCount
		s.ReviewCount = &v
		changed = true
	}
	if rec.ProfileURL != "" && s.ProfileURL != rec.ProfileURL {
		s.ProfileURL = rec.ProfileURL
		changed = true
	}
	if s.State != models.SellerEnriched {
		s.State = models.SellerEnriched
		changed = true
	}
	return changed
}

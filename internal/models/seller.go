package models

import (
	"strings"
)

// SellerState tracks a seller through enrichment.
type SellerState string

const (
	SellerPending   SellerState = "pending"
	SellerEnriched  SellerState = "enriched"
	SellerExhausted SellerState = "exhausted"
)

// SellerRef identifies a seller by numeric id, or by profile URL when only a
// non-numeric id is known.
type SellerRef struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

// Key returns the enrichment dedup key, or "" when the ref is empty.
func (r SellerRef) Key() string {
	if IsNumeric(r.ID) {
		return "id:" + r.ID
	}
	if r.URL != "" {
		return "url:" + r.URL
	}
	return ""
}

func (r SellerRef) IsZero() bool {
	return r.Key() == ""
}

// SellerRecord holds the contact details of a seller.
type SellerRecord struct {
	Ref           SellerRef   `json:"ref"`
	State         SellerState `json:"state,omitempty"`
	Name          string      `json:"name,omitempty"`
	Email         string      `json:"email,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	BusinessName  string      `json:"business_name,omitempty"`
	Address       string      `json:"address,omitempty"`
	Country       string      `json:"country,omitempty"`
	StateProvince string      `json:"state_province,omitempty"`
	PostalCode    string      `json:"postal_code,omitempty"`
	Rating        *float64    `json:"rating,omitempty"`
	ReviewCount   *int        `json:"review_count,omitempty"`
	ProfileURL    string      `json:"profile_url,omitempty"`
	PictureURL    string      `json:"picture_url,omitempty"`
}

// HasContact reports whether any contact field is populated. Names and
// profile links identify a seller but are not contact details.
func (s SellerRecord) HasContact() bool {
	for _, v := range []string{s.Email, s.Phone, s.Address, s.Country, s.StateProvince, s.PostalCode} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// IsNumeric reports whether s is a non-empty string of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

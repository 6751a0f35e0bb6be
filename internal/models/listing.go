package models

import (
	"github.com/shopspring/decimal"
)

// Listing is the canonical record for one catalog item collected under one keyword.
type Listing struct {
	ListingID      string              `json:"listing_id" validate:"required"`
	Keyword        string              `json:"keyword"`
	Title          string              `json:"title"`
	Brand          string              `json:"brand,omitempty"`
	Price          decimal.NullDecimal `json:"price"`
	Currency       string              `json:"currency,omitempty"`
	ImageURLs      []string            `json:"image_urls,omitempty"`
	UPC            string              `json:"upc,omitempty"`
	ASIN           string              `json:"asin,omitempty"`
	URL            string              `json:"url,omitempty"`
	OfferCount     int                 `json:"offer_count"`
	SKU            string              `json:"sku,omitempty"`
	Description    string              `json:"description,omitempty"`
	InStock        *bool               `json:"in_stock,omitempty"`
	UnitsAvailable *int                `json:"units_available,omitempty"`

	PrimaryOffer Offer        `json:"primary_offer"`
	Offers       []Offer      `json:"offers,omitempty"`
	Seller       SellerRecord `json:"seller"`
}

// NeedsDetail reports whether the search result lacked the fields only the
// product endpoint carries.
func (l *Listing) NeedsDetail() bool {
	return l.SKU == "" && l.Description == "" && l.Brand == ""
}

// Offer is a seller-specific price for a listing.
type Offer struct {
	SellerRef    SellerRef           `json:"seller_ref"`
	SellerName   string              `json:"seller_name,omitempty"`
	SellerRating *float64            `json:"seller_rating,omitempty"`
	ReviewCount  *int                `json:"review_count,omitempty"`
	Price        decimal.NullDecimal `json:"price"`
	Currency     string              `json:"currency,omitempty"`
	Quantity     *int                `json:"quantity,omitempty"`
}

// OfferRow flattens one offer of one listing for downstream exporters.
type OfferRow struct {
	ListingID string `json:"listing_id"`
	Keyword   string `json:"keyword"`
	Title     string `json:"title"`
	Offer
}

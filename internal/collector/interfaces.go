package collector

import (
	"context"

	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/upstream"
)

// Catalog abstracts the upstream calls a session makes.
type Catalog interface {
	Search(ctx context.Context, term string, page int, extra map[string]string) (upstream.Payload, error)
	Product(ctx context.Context, itemID string) (upstream.Payload, error)
	Offers(ctx context.Context, itemID string, page int) (upstream.Payload, error)
}

// HistorySink receives an append-only snapshot of every accepted listing.
type HistorySink interface {
	Record(ctx context.Context, entityID string, payload []byte) error
}

// SummarySink keeps one current summary row per listing.
type SummarySink interface {
	Upsert(ctx context.Context, entityID, title, brand, url string) error
}

// Filter rejects listings that do not belong in a keyword's results. It
// returns a short reason when it rejects.
type Filter interface {
	Reject(keyword string, l *models.Listing) (string, bool)
}

package processor

import (
	"context"

	"github.com/pauljones0/catalog-crawler/internal/collector"
	"github.com/pauljones0/catalog-crawler/internal/enrich"
	"github.com/pauljones0/catalog-crawler/internal/models"
)

// KeywordCollector runs the collection sessions of a crawl.
type KeywordCollector interface {
	Collect(ctx context.Context, keywords []string) []*collector.Session
}

// SellerEnricher resolves seller contact details for collected listings.
type SellerEnricher interface {
	Enrich(ctx context.Context, listings []models.Listing) enrich.Report
}

// HistoryStore abstracts the append-only snapshot store.
type HistoryStore interface {
	Record(ctx context.Context, entityID string, payload []byte) error
	TrimHistory(ctx context.Context, maxEntries int) error
}

// Exporter receives the cleaned records of a run.
type Exporter interface {
	Export(ctx context.Context, runID string, listings []models.Listing, offers []models.OfferRow) error
}

// RunNotifier abstracts the notification layer.
type RunNotifier interface {
	SendRunSummary(ctx context.Context, summary models.RunSummary) error
}

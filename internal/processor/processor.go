package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/catalog-crawler/internal/collector"
	"github.com/pauljones0/catalog-crawler/internal/enrich"
	"github.com/pauljones0/catalog-crawler/internal/metrics"
	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/upstream"
)

var (
	// ErrUpstreamUnavailable is returned when every keyword session failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNoKeywords          = errors.New("no keywords to crawl")
)

type Processor interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

type Request struct {
	Keywords []string `json:"keywords"`
}

// Result is everything one run produced.
type Result struct {
	RunID      string
	Sessions   []*collector.Session
	Listings   []models.Listing
	Offers     []models.OfferRow
	Enrichment enrich.Report
	Reconciled int
	Summary    models.RunSummary
}

type Options struct {
	// Enricher and Sellers are both required for enrichment to run.
	Enricher SellerEnricher
	Sellers  *enrich.SellerCache
	History  HistoryStore
	Exporter Exporter
	Notifier RunNotifier
	// UpstreamStats reports access layer counters for the run summary.
	UpstreamStats     func() upstream.Stats
	MaxHistoryEntries int
}

type CrawlProcessor struct {
	collector KeywordCollector
	opts      Options
	now       func() time.Time
}

func New(c KeywordCollector, opts Options) *CrawlProcessor {
	return &CrawlProcessor{collector: c, opts: opts, now: time.Now}
}

// Run collects every keyword, enriches sellers, reconciles and cleans the
// records, then hands them to the exporter and notifier.
func (p *CrawlProcessor) Run(ctx context.Context, req Request) (*Result, error) {
	keywords := collector.NormalizeKeywords(req.Keywords)
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}

	start := p.now()
	res := &Result{RunID: uuid.NewString()}
	logger := slog.With("run_id", res.RunID)
	logger.Info("Starting crawl", "keywords", len(keywords))

	res.Sessions = p.collector.Collect(ctx, keywords)
	if collector.Failed(res.Sessions) {
		return res, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, res.Sessions[0].Err)
	}
	listings := collector.Listings(res.Sessions)
	logger.Info("Collection finished", "listings", len(listings))

	if p.opts.Enricher != nil && p.opts.Sellers != nil {
		res.Enrichment = p.opts.Enricher.Enrich(ctx, listings)
		res.Reconciled = enrich.Reconcile(listings, p.opts.Sellers)
		logger.Info("Reconciled seller records", "listings_changed", res.Reconciled)
		p.recordSellers(ctx)
	}

	res.Listings = Clean(listings)
	res.Offers = OfferRows(res.Listings)

	if p.opts.History != nil && p.opts.MaxHistoryEntries > 0 {
		if err := p.opts.History.TrimHistory(ctx, p.opts.MaxHistoryEntries); err != nil {
			logger.Warn("Failed to trim history", "error", err)
		}
	}

	var exportErr error
	if p.opts.Exporter != nil {
		if err := p.opts.Exporter.Export(ctx, res.RunID, res.Listings, res.Offers); err != nil {
			exportErr = fmt.Errorf("failed to export run %s: %w", res.RunID, err)
		}
	}

	elapsed := p.now().Sub(start)
	metrics.CrawlDuration.Observe(elapsed.Seconds())
	res.Summary = p.summary(res, keywords, start, elapsed)

	if p.opts.Notifier != nil {
		if err := p.opts.Notifier.SendRunSummary(ctx, res.Summary); err != nil {
			logger.Warn("Failed to send run summary", "error", err)
		}
	}

	logger.Info("Crawl finished",
		"listings", len(res.Listings), "offers", len(res.Offers),
		"failed_keywords", len(res.Summary.FailedKeywords), "duration", elapsed)
	return res, exportErr
}

func (p *CrawlProcessor) recordSellers(ctx context.Context) {
	if p.opts.History == nil {
		return
	}
	snapshot := p.opts.Sellers.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		blob, err := json.Marshal(snapshot[key])
		if err == nil {
			err = p.opts.History.Record(ctx, "seller:"+key, blob)
		}
		if err != nil {
			slog.Warn("Failed to record seller snapshot", "seller", key, "error", err)
		}
	}
}

func (p *CrawlProcessor) summary(res *Result, keywords []string, start time.Time, elapsed time.Duration) models.RunSummary {
	s := models.RunSummary{
		RunID:            res.RunID,
		StartedAt:        start.UTC(),
		Duration:         elapsed,
		Keywords:         keywords,
		Listings:         len(res.Listings),
		Offers:           len(res.Offers),
		SellersQueued:    len(res.Enrichment.Queued),
		SellersEnriched:  len(res.Enrichment.Enriched),
		SellersExhausted: len(res.Enrichment.Exhausted),
		OperatorSellers:  res.Enrichment.Operator,
	}
	for _, sess := range res.Sessions {
		if sess.Err != nil {
			s.FailedKeywords = append(s.FailedKeywords, sess.Keyword)
		}
	}
	if p.opts.UpstreamStats != nil {
		stats := p.opts.UpstreamStats()
		s.NetworkCalls = stats.NetworkCalls
		s.CacheHits = stats.CacheHits
	}
	return s
}

// Clean drops records without an id or title and keeps the first record of
// each (listing_id, keyword) pair.
func Clean(listings []models.Listing) []models.Listing {
	out := make([]models.Listing, 0, len(listings))
	seen := make(map[[2]string]bool)
	for _, l := range listings {
		if l.ListingID == "" || strings.TrimSpace(l.Title) == "" {
			continue
		}
		key := [2]string{l.ListingID, l.Keyword}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

// OfferRows flattens listing offers, falling back to the primary offer when a
// listing has no offer list. Rows repeating (listing, seller name, price) are
// dropped.
func OfferRows(listings []models.Listing) []models.OfferRow {
	var rows []models.OfferRow
	seen := make(map[string]bool)
	for _, l := range listings {
		offers := l.Offers
		if len(offers) == 0 && (!l.PrimaryOffer.SellerRef.IsZero() || l.PrimaryOffer.SellerName != "" || l.PrimaryOffer.Price.Valid) {
			offers = []models.Offer{l.PrimaryOffer}
		}
		for _, o := range offers {
			price := ""
			if o.Price.Valid {
				price = o.Price.Decimal.String()
			}
			key := l.ListingID + "|" + l.Keyword + "|" + strings.ToLower(o.SellerName) + "|" + price
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, models.OfferRow{ListingID: l.ListingID, Keyword: l.Keyword, Title: l.Title, Offer: o})
		}
	}
	return rows
}

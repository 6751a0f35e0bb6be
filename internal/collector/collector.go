package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/catalog-crawler/internal/metrics"
	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/normalize"
	"github.com/pauljones0/catalog-crawler/internal/upstream"
	"github.com/pauljones0/catalog-crawler/internal/validator"
)

// SessionState is the lifecycle state of one keyword session.
type SessionState string

const (
	StateStarting       SessionState = "starting"
	StatePaging         SessionState = "paging"
	StateExhausted      SessionState = "exhausted"
	StateStoppedByLimit SessionState = "stopped_by_limit"
)

// StopReason records which stop condition ended a session.
type StopReason string

const (
	StopTargetReached StopReason = "target_reached"
	StopPageCeiling   StopReason = "page_ceiling"
	StopAllDuplicates StopReason = "all_duplicates"
	StopNoItems       StopReason = "no_items"
	StopError         StopReason = "error"
)

type Options struct {
	// MaxPerKeyword caps accepted listings per keyword; 0 means unbounded,
	// in which case the upstream's reported total becomes the target.
	MaxPerKeyword int
	// MaxPages is the page ceiling; 0 means no ceiling.
	MaxPages    int
	CategoryID  string
	Concurrency int
	// FetchDetails calls the product endpoint for items missing sku,
	// description and brand.
	FetchDetails bool
	// LookupOffers calls the offers endpoint for items without a seller ref.
	LookupOffers bool
	Domain       string
}

// Session is the outcome of collecting one keyword.
type Session struct {
	Keyword    string
	State      SessionState
	StopReason StopReason
	// Target is the effective item target; 0 means unbounded.
	Target   int
	Pages    int
	Listings []models.Listing
	Err      error
}

func (s *Session) finish(state SessionState, reason StopReason) {
	s.State = state
	s.StopReason = reason
	metrics.SessionsTotal.WithLabelValues(string(state)).Inc()
}

// Collector runs keyword sessions against the catalog.
type Collector struct {
	catalog   Catalog
	history   HistorySink
	summary   SummarySink
	filters   []Filter
	validator *validator.Validator
	opts      Options
	now       func() time.Time
	progress  *progressBoard
}

// New creates a Collector. history and summary may be nil.
func New(catalog Catalog, history HistorySink, summary SummarySink, filters []Filter, opts Options) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Collector{
		catalog:   catalog,
		history:   history,
		summary:   summary,
		filters:   filters,
		validator: validator.New(),
		opts:      opts,
		now:       time.Now,
		progress:  newProgressBoard(),
	}
}

// Collect runs one session per keyword, up to Options.Concurrency at a time.
// Sessions are returned in keyword order. A failing session never affects
// the others.
func (c *Collector) Collect(ctx context.Context, keywords []string) []*Session {
	sessions := make([]*Session, len(keywords))
	c.progress.reset(keywords, c.now())

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, kw := range keywords {
		g.Go(func() error {
			sessions[i] = c.Run(ctx, kw)
			return nil
		})
	}
	_ = g.Wait()
	return sessions
}

// Run collects a single keyword. Pages are requested strictly in order.
func (c *Collector) Run(ctx context.Context, keyword string) *Session {
	s := &Session{Keyword: keyword, State: StateStarting}
	logger := slog.With("keyword", keyword)
	c.track(s)
	defer c.track(s)

	page := 1
	payload, err := c.fetchPage(ctx, keyword, page)
	if err != nil {
		logger.Error("First search page failed", "error", err)
		s.Err = err
		s.finish(StateExhausted, StopError)
		return s
	}

	target := c.opts.MaxPerKeyword
	if target <= 0 {
		if total, ok := normalize.TotalResults(payload); ok {
			logger.Info("Adopting upstream total as target", "total_results", total)
			target = total
		}
	}
	s.Target = target
	s.State = StatePaging

	seen := make(map[string]bool)
	for {
		s.Pages = page
		items := normalize.SearchItems(payload)
		accepted := 0
		for _, item := range items {
			if target > 0 && len(s.Listings) >= target {
				break
			}
			l, ok := c.accept(ctx, keyword, item, seen)
			if !ok {
				continue
			}
			s.Listings = append(s.Listings, l)
			accepted++
		}
		logger.Debug("Processed page", "page", page, "raw", len(items), "accepted", accepted, "total", len(s.Listings))

		switch {
		case target > 0 && len(s.Listings) >= target:
			s.finish(StateStoppedByLimit, StopTargetReached)
		case c.opts.MaxPages > 0 && page+1 > c.opts.MaxPages:
			s.finish(StateStoppedByLimit, StopPageCeiling)
		case page > 1 && accepted == 0:
			s.finish(StateExhausted, StopAllDuplicates)
		case len(items) == 0:
			s.finish(StateExhausted, StopNoItems)
		}
		if s.State != StatePaging {
			break
		}
		c.track(s)

		page++
		payload, err = c.fetchPage(ctx, keyword, page)
		if err != nil {
			logger.Warn("Search page failed, ending keyword early", "page", page, "collected", len(s.Listings), "error", err)
			s.Err = err
			s.finish(StateExhausted, StopError)
			break
		}
	}

	logger.Info("Keyword session finished",
		"state", s.State, "reason", s.StopReason, "pages", s.Pages, "collected", len(s.Listings), "target", s.Target)
	return s
}

// fetchPage requests one search page. A client error that still carried a
// JSON body is treated as that page's response.
func (c *Collector) fetchPage(ctx context.Context, keyword string, page int) (upstream.Payload, error) {
	var extra map[string]string
	if c.opts.CategoryID != "" {
		extra = map[string]string{"category_id": c.opts.CategoryID}
	}
	payload, err := c.catalog.Search(ctx, keyword, page, extra)
	if err != nil {
		if body, ok := upstream.ClientErrorPayload(err); ok {
			slog.Warn("Search page rejected, using returned body", "keyword", keyword, "page", page, "error", err)
			return body, nil
		}
		return nil, err
	}
	return payload, nil
}

// accept normalizes, deduplicates, filters and registers one raw item.
func (c *Collector) accept(ctx context.Context, keyword string, item gjson.Result, seen map[string]bool) (models.Listing, bool) {
	opts := normalize.Options{Domain: c.opts.Domain}
	l, ok := normalize.ListingFromSearch(item, keyword, opts)
	if !ok {
		metrics.ListingsCollectedTotal.WithLabelValues("skipped").Inc()
		return models.Listing{}, false
	}
	if seen[l.ListingID] {
		metrics.ListingsCollectedTotal.WithLabelValues("duplicate").Inc()
		return models.Listing{}, false
	}
	seen[l.ListingID] = true

	for _, f := range c.filters {
		if reason, rejected := f.Reject(keyword, &l); rejected {
			slog.Debug("Listing filtered", "keyword", keyword, "listing_id", l.ListingID, "reason", reason)
			metrics.ListingsCollectedTotal.WithLabelValues("filtered").Inc()
			return models.Listing{}, false
		}
	}

	c.complete(ctx, &l, opts)

	if cleared := c.validator.Sanitize(&l); len(cleared) > 0 {
		slog.Debug("Cleared unusable listing fields", "keyword", keyword, "listing_id", l.ListingID, "fields", cleared)
	}
	if err := c.validator.ValidateStruct(l); err != nil {
		slog.Warn("Dropping invalid listing", "keyword", keyword, "listing_id", l.ListingID, "error", err)
		metrics.ListingsCollectedTotal.WithLabelValues("invalid").Inc()
		return models.Listing{}, false
	}

	c.register(ctx, l)
	metrics.ListingsCollectedTotal.WithLabelValues("accepted").Inc()
	return l, true
}

// complete fills gaps from the product and offers endpoints. Failures keep
// whatever the search item provided.
func (c *Collector) complete(ctx context.Context, l *models.Listing, opts normalize.Options) {
	if c.opts.FetchDetails && l.NeedsDetail() {
		payload, err := c.catalog.Product(ctx, l.ListingID)
		if err != nil {
			slog.Debug("Product detail lookup failed", "listing_id", l.ListingID, "error", err)
		} else {
			normalize.MergeProductDetail(l, payload, opts)
		}
	}

	if c.opts.LookupOffers && l.PrimaryOffer.SellerRef.IsZero() {
		payload, err := c.catalog.Offers(ctx, l.ListingID, 1)
		if err != nil {
			slog.Debug("Offers lookup failed", "listing_id", l.ListingID, "error", err)
			return
		}
		normalize.ApplyOffers(l, normalize.OffersFrom(payload, opts))
	}
}

type historySnapshot struct {
	Keyword     string         `json:"keyword"`
	CollectedAt time.Time      `json:"collected_at"`
	Listing     models.Listing `json:"listing"`
}

func (c *Collector) register(ctx context.Context, l models.Listing) {
	if c.history != nil {
		blob, err := json.Marshal(historySnapshot{Keyword: l.Keyword, CollectedAt: c.now().UTC(), Listing: l})
		if err == nil {
			err = c.history.Record(ctx, l.ListingID, blob)
		}
		if err != nil {
			slog.Warn("Failed to record listing history", "listing_id", l.ListingID, "error", err)
		}
	}
	if c.summary != nil {
		if err := c.summary.Upsert(ctx, l.ListingID, l.Title, l.Brand, l.URL); err != nil {
			slog.Warn("Failed to upsert listing summary", "listing_id", l.ListingID, "error", err)
		}
	}
}

// Listings flattens the listings of all sessions.
func Listings(sessions []*Session) []models.Listing {
	var out []models.Listing
	for _, s := range sessions {
		out = append(out, s.Listings...)
	}
	return out
}

// Failed reports whether every session ended in error without collecting
// anything.
func Failed(sessions []*Session) bool {
	if len(sessions) == 0 {
		return false
	}
	for _, s := range sessions {
		if s.Err == nil || len(s.Listings) > 0 {
			return false
		}
	}
	return true
}

// NormalizeKeywords trims, drops empties and removes case-insensitive repeats.
func NormalizeKeywords(keywords []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}

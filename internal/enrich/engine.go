package enrich

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pauljones0/catalog-crawler/internal/metrics"
	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/normalize"
	"github.com/pauljones0/catalog-crawler/internal/upstream"
)

const minDispatchInterval = 20 * time.Millisecond

// SellerSource fetches a seller profile payload.
type SellerSource interface {
	SellerProfile(ctx context.Context, ref models.SellerRef) (upstream.Payload, error)
}

type Options struct {
	Passes         int
	MaxConcurrency int
	// PassDelay is the time budget one pass spreads its dispatches over.
	PassDelay time.Duration
	Domain    string
}

// Report summarizes one Enrich call. Key lists are sorted.
type Report struct {
	Queued    []string
	Enriched  []string
	Exhausted []string
	Operator  int
}

// Engine resolves missing seller contact details in bounded parallel passes.
type Engine struct {
	source   SellerSource
	cache    *SellerCache
	operator *OperatorPolicy
	opts     Options
}

// New creates an Engine. operator may be nil.
func New(source SellerSource, cache *SellerCache, operator *OperatorPolicy, opts Options) *Engine {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	return &Engine{source: source, cache: cache, operator: operator, opts: opts}
}

// Enrich applies the operator policy to listings, then looks up every
// distinct seller that still lacks contact details. Results land in the
// seller cache; use Reconcile to copy them into the listings.
func (e *Engine) Enrich(ctx context.Context, listings []models.Listing) Report {
	var report Report
	refs := make(map[string]models.SellerRef)
	for i := range listings {
		l := &listings[i]
		if e.operator != nil && e.operator.Apply(l) {
			report.Operator++
			metrics.SellerEnrichmentTotal.WithLabelValues("operator").Inc()
			continue
		}
		if l.Seller.HasContact() {
			continue
		}
		key := l.Seller.Ref.Key()
		if key == "" {
			continue
		}
		if rec, ok := e.cache.Get(key); ok && rec.State == models.SellerEnriched {
			continue
		}
		if _, queued := refs[key]; !queued {
			refs[key] = l.Seller.Ref
			report.Queued = append(report.Queued, key)
		}
	}
	slices.Sort(report.Queued)

	pending := slices.Clone(report.Queued)
	for pass := 1; pass <= e.opts.Passes && len(pending) > 0; pass++ {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		succeeded := e.runPass(ctx, pending, refs)
		report.Enriched = append(report.Enriched, succeeded...)
		pending = slices.DeleteFunc(pending, func(k string) bool {
			return slices.Contains(succeeded, k)
		})
		slog.Info("Enrichment pass finished",
			"pass", pass, "enriched", len(succeeded), "pending", len(pending), "duration", time.Since(start))
	}

	for _, key := range pending {
		e.cache.MarkExhausted(key, refs[key])
		metrics.SellerEnrichmentTotal.WithLabelValues("exhausted").Inc()
	}
	report.Exhausted = pending
	slices.Sort(report.Enriched)

	slog.Info("Seller enrichment complete",
		"queued", len(report.Queued), "enriched", len(report.Enriched),
		"exhausted", len(report.Exhausted), "operator", report.Operator)
	return report
}

// runPass attempts every key once and returns the keys that were enriched.
// Dispatches are paced so the pass takes about PassDelay.
func (e *Engine) runPass(ctx context.Context, keys []string, refs map[string]models.SellerRef) []string {
	limiter := rate.NewLimiter(e.pacing(len(keys)), 1)

	var (
		mu        sync.Mutex
		succeeded []string
		g         errgroup.Group
	)
	g.SetLimit(e.opts.MaxConcurrency)
	for _, key := range keys {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		ref := refs[key]
		g.Go(func() error {
			if e.enrichOne(ctx, key, ref) {
				mu.Lock()
				succeeded = append(succeeded, key)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return succeeded
}

func (e *Engine) pacing(pending int) rate.Limit {
	if e.opts.PassDelay <= 0 || pending == 0 {
		return rate.Inf
	}
	return rate.Every(max(e.opts.PassDelay/time.Duration(pending), minDispatchInterval))
}

func (e *Engine) enrichOne(ctx context.Context, key string, ref models.SellerRef) bool {
	payload, err := e.source.SellerProfile(ctx, ref)
	if err != nil {
		body, ok := upstream.ClientErrorPayload(err)
		if !ok {
			slog.Debug("Seller profile lookup failed", "seller", key, "error", err)
			metrics.SellerEnrichmentTotal.WithLabelValues("failed").Inc()
			return false
		}
		payload = body
	}

	rec, ok := normalize.SellerRecordFrom(payload, ref, normalize.Options{Domain: e.opts.Domain})
	if !ok || !rec.HasContact() {
		slog.Debug("Seller profile had no contact details", "seller", key)
		metrics.SellerEnrichmentTotal.WithLabelValues("empty").Inc()
		return false
	}
	if rec.ProfileURL == "" {
		rec.ProfileURL = ref.URL
	}
	rec.State = models.SellerEnriched
	e.cache.Put(key, rec)
	metrics.SellerEnrichmentTotal.WithLabelValues("enriched").Inc()
	return true
}

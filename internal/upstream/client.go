package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pauljones0/catalog-crawler/internal/metrics"
	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/util"
)

// Endpoint is an upstream call type.
type Endpoint string

const (
	EndpointSearch        Endpoint = "search"
	EndpointProduct       Endpoint = "product"
	EndpointOffers        Endpoint = "offers"
	EndpointSellerProfile Endpoint = "seller_profile"
)

// DefaultSource is the catalog the upstream queries when none is configured.
const DefaultSource = "walmart"

// Payload is a raw JSON response body.
type Payload []byte

const maxResponseBytes = 16 << 20

// DefaultTTLs are the cache lifetimes per call type.
var DefaultTTLs = map[Endpoint]time.Duration{
	EndpointSearch:  30 * time.Minute,
	EndpointOffers:  30 * time.Minute,
	EndpointProduct: 2 * time.Hour,
}

type Options struct {
	BaseURL string
	APIKey  string
	Source  string
	Domain  string

	Timeout    time.Duration
	MaxRetries int
	Backoff    util.Backoff

	// TTLs overrides DefaultTTLs per endpoint; DefaultTTL covers the rest.
	TTLs       map[Endpoint]time.Duration
	DefaultTTL time.Duration

	Store    Store
	Limiter  *WindowLimiter
	Breakers *BreakerRegistry
	Dedup    *Deduplicator

	HTTPClient *http.Client
}

// Stats is a point-in-time view of the access layer counters.
type Stats struct {
	CacheHits    int64
	CacheMisses  int64
	DedupHits    int64
	NetworkCalls int64
	Breakers     map[string]BreakerState
}

// Client is the single entry point for upstream calls. Every call goes through
// cache, dedup, circuit breaker, rate limiter and retry, in that order.
type Client struct {
	baseURL    string
	apiKey     string
	source     string
	domain     string
	timeout    time.Duration
	maxRetries int
	backoff    util.Backoff
	ttls       map[Endpoint]time.Duration
	defaultTTL time.Duration

	store    Store
	limiter  *WindowLimiter
	breakers *BreakerRegistry
	dedup    *Deduplicator
	client   *http.Client

	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	dedupHits    atomic.Int64
	networkCalls atomic.Int64
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("upstream: base URL is required")
	}
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = util.Backoff{Base: 1750 * time.Millisecond, Multiplier: 2, Max: 30 * time.Second, Jitter: 0.25}
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.Store == nil {
		store, err := NewMemoryStore(1000)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}
	if opts.Limiter == nil {
		opts.Limiter = NewWindowLimiter(60, 1000, 0)
	}
	if opts.Breakers == nil {
		opts.Breakers = NewBreakerRegistry(5, time.Minute)
	}
	if opts.Dedup == nil {
		opts.Dedup = NewDeduplicator(5 * time.Second)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	ttls := make(map[Endpoint]time.Duration, len(DefaultTTLs))
	for k, v := range DefaultTTLs {
		ttls[k] = v
	}
	for k, v := range opts.TTLs {
		ttls[k] = v
	}

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		source:     opts.Source,
		domain:     opts.Domain,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		ttls:       ttls,
		defaultTTL: opts.DefaultTTL,
		store:      opts.Store,
		limiter:    opts.Limiter,
		breakers:   opts.Breakers,
		dedup:      opts.Dedup,
		client:     opts.HTTPClient,
	}, nil
}

// Domain is the catalog domain requests are scoped to.
func (c *Client) Domain() string { return c.domain }

// Search fetches one page of search results.
func (c *Client) Search(ctx context.Context, term string, page int, extra map[string]string) (Payload, error) {
	params := map[string]string{
		"search_term": term,
		"page":        strconv.Itoa(page),
	}
	for k, v := range extra {
		if v != "" {
			params[k] = v
		}
	}
	return c.Call(ctx, EndpointSearch, params)
}

func (c *Client) Product(ctx context.Context, itemID string) (Payload, error) {
	return c.Call(ctx, EndpointProduct, map[string]string{"item_id": itemID})
}

func (c *Client) Offers(ctx context.Context, itemID string, page int) (Payload, error) {
	return c.Call(ctx, EndpointOffers, map[string]string{"item_id": itemID, "page": strconv.Itoa(page)})
}

// SellerProfile looks a seller up by numeric id when it has one, otherwise by
// profile URL.
func (c *Client) SellerProfile(ctx context.Context, ref models.SellerRef) (Payload, error) {
	params := map[string]string{}
	switch {
	case models.IsNumeric(ref.ID):
		params["seller_id"] = ref.ID
	case ref.URL != "":
		params["url"] = ref.URL
	default:
		return nil, fmt.Errorf("seller ref has neither numeric id nor url")
	}
	return c.Call(ctx, EndpointSellerProfile, params)
}

// Call performs one logical upstream request. On a 4xx other than 429 it
// returns the parsed body, when there is one, together with a
// *TerminalClientError.
func (c *Client) Call(ctx context.Context, endpoint Endpoint, params map[string]string) (Payload, error) {
	full := c.requestParams(endpoint, params)
	key := CacheKey(endpoint, full)

	cached, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("Cache lookup failed, continuing without cache", "endpoint", endpoint, "error", err)
	}
	if ok {
		c.cacheHits.Add(1)
		metrics.UpstreamRequestsTotal.WithLabelValues(string(endpoint), "cache_hit").Inc()
		return cached, nil
	}
	c.cacheMisses.Add(1)

	if payload, err, ok := c.dedup.Recent(key); ok {
		c.dedupHits.Add(1)
		metrics.UpstreamRequestsTotal.WithLabelValues(string(endpoint), "dedup_hit").Inc()
		return payload, err
	}

	payload, err, shared := c.dedup.Do(key, func() (Payload, error) {
		return c.fetch(ctx, endpoint, key, full)
	})
	if shared {
		c.dedupHits.Add(1)
		metrics.UpstreamRequestsTotal.WithLabelValues(string(endpoint), "dedup_hit").Inc()
	}
	return payload, err
}

func (c *Client) fetch(ctx context.Context, endpoint Endpoint, key string, params map[string]string) (Payload, error) {
	breaker := c.breakers.Get(c.dependency(endpoint))
	if err := breaker.Allow(); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(string(endpoint), "circuit_open").Inc()
		return nil, err
	}

	var (
		result   Payload
		attempts int
	)
	err := util.RetryWithBackoff(ctx, c.maxRetries, c.backoff, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			breaker.Release()
			return util.Permanent(err)
		}
		attempts++

		status, body, err := c.do(ctx, endpoint, params)
		if err != nil {
			if ctx.Err() != nil {
				breaker.Release()
				return util.Permanent(ctx.Err())
			}
			return c.transientFailure(breaker, &TransientUpstreamError{Endpoint: endpoint, Err: err})
		}

		switch {
		case status >= 200 && status < 300:
			if !json.Valid(body) {
				return c.transientFailure(breaker, &TransientUpstreamError{
					Endpoint: endpoint, StatusCode: status, Err: errors.New("invalid JSON body"),
				})
			}
			breaker.RecordSuccess()
			result = body
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			return c.transientFailure(breaker, &TransientUpstreamError{
				Endpoint: endpoint, StatusCode: status, Err: fmt.Errorf("status %d", status),
			})
		default:
			// 4xx: terminal for this call, not a breaker failure.
			breaker.RecordSuccess()
			clientErr := &TerminalClientError{Endpoint: endpoint, StatusCode: status}
			if json.Valid(body) {
				clientErr.Body = body
			}
			return util.Permanent(clientErr)
		}
	})

	if err == nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(string(endpoint), "success").Inc()
		if setErr := c.store.Set(ctx, key, result, c.ttl(endpoint)); setErr != nil {
			slog.Warn("Failed to cache upstream response", "endpoint", endpoint, "error", setErr)
		}
		c.dedup.Remember(key, result, nil)
		return result, nil
	}

	var clientErr *TerminalClientError
	if errors.As(err, &clientErr) {
		metrics.UpstreamRequestsTotal.WithLabelValues(string(endpoint), "client_error").Inc()
		slog.Warn("Upstream rejected request", "endpoint", endpoint, "status", clientErr.StatusCode)
		c.dedup.Remember(key, clientErr.Body, clientErr)
		return clientErr.Body, clientErr
	}

	var transient *TransientUpstreamError
	if errors.As(err, &transient) {
		transient.Attempts = attempts
		metrics.UpstreamRequestsTotal.WithLabelValues(string(endpoint), "transient_error").Inc()
		slog.Warn("Upstream call failed", "endpoint", endpoint, "attempts", attempts, "status", transient.StatusCode, "error", transient.Err)
		return nil, transient
	}
	breaker.Release()
	return nil, err
}

// transientFailure counts a failed attempt against the breaker. Once the
// breaker opens the remaining retries are abandoned.
func (c *Client) transientFailure(breaker *Breaker, err *TransientUpstreamError) error {
	if breaker.RecordFailure() {
		slog.Warn("Circuit breaker opened", "dependency", breaker.name, "failures", breaker.ConsecutiveFailures())
		return util.Permanent(err)
	}
	return err
}

func (c *Client) do(ctx context.Context, endpoint Endpoint, params map[string]string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")

	c.networkCalls.Add(1)
	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(string(endpoint)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamAttemptsTotal.WithLabelValues(string(endpoint), "error").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()
	metrics.UpstreamAttemptsTotal.WithLabelValues(string(endpoint), strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) requestParams(endpoint Endpoint, params map[string]string) map[string]string {
	full := make(map[string]string, len(params)+3)
	full["type"] = string(endpoint)
	if c.source != "" {
		full["source"] = c.source
	}
	if c.domain != "" {
		full["walmart_domain"] = c.domain
	}
	for k, v := range params {
		full[k] = v
	}
	return full
}

func (c *Client) ttl(endpoint Endpoint) time.Duration {
	if d, ok := c.ttls[endpoint]; ok && d > 0 {
		return d
	}
	return c.defaultTTL
}

// dependency names the breaker guarding an endpoint; each call type trips
// independently.
func (c *Client) dependency(endpoint Endpoint) string {
	return "catalog_api." + string(endpoint)
}

func (c *Client) Stats() Stats {
	return Stats{
		CacheHits:    c.cacheHits.Load(),
		CacheMisses:  c.cacheMisses.Load(),
		DedupHits:    c.dedupHits.Load(),
		NetworkCalls: c.networkCalls.Load(),
		Breakers:     c.breakers.States(),
	}
}

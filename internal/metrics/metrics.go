package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Upstream calls by endpoint and outcome (cache_hit, dedup_hit, success, client_error, transient_error, circuit_open).",
		},
		[]string{"endpoint", "outcome"},
	)

	UpstreamAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_attempts_total",
			Help: "Network attempts sent upstream, including retries.",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of individual upstream network attempts.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upstream_rate_limit_wait_seconds",
			Help:    "Time spent blocked on the rolling rate-limit windows.",
			Buckets: []float64{0, 0.1, 1, 5, 15, 30, 60},
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 half_open, 2 open).",
		},
		[]string{"dependency"},
	)

	ListingsCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_listings_total",
			Help: "Listings seen by the collector by result (accepted, duplicate, filtered, invalid, skipped).",
		},
		[]string{"result"},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_sessions_total",
			Help: "Keyword sessions by final state.",
		},
		[]string{"state"},
	)

	SellerEnrichmentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_sellers_total",
			Help: "Seller enrichment outcomes (enriched, failed, empty, exhausted, operator).",
		},
		[]string{"outcome"},
	)

	CrawlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawl_duration_seconds",
			Help:    "Duration of full crawl runs.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800},
		},
	)
)

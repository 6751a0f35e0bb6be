package models

import "time"

// RunSummary describes one finished crawl run.
type RunSummary struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Keywords         []string      `json:"keywords"`
	FailedKeywords   []string      `json:"failed_keywords,omitempty"`
	Listings         int           `json:"listings"`
	Offers           int           `json:"offers"`
	SellersQueued    int           `json:"sellers_queued"`
	SellersEnriched  int           `json:"sellers_enriched"`
	SellersExhausted int           `json:"sellers_exhausted"`
	OperatorSellers  int           `json:"operator_sellers"`
	NetworkCalls     int64         `json:"network_calls"`
	CacheHits        int64         `json:"cache_hits"`
}

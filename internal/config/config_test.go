package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("BLUECART_API_KEY", "test-key")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://test.webhook")
	t.Setenv("PORT", "9090")
	t.Setenv("WALMART_DOMAIN", "walmart.ca")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.APIKey != "test-key" {
		t.Errorf("Expected test-key, got %s", cfg.APIKey)
	}
	if cfg.DiscordWebhookURL != "https://test.webhook" {
		t.Errorf("Expected https://test.webhook, got %s", cfg.DiscordWebhookURL)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected 9090, got %s", cfg.Port)
	}
	if cfg.Domain != "walmart.ca" {
		t.Errorf("Expected walmart.ca, got %s", cfg.Domain)
	}
	if cfg.BaseURL != "https://api.bluecartapi.com/request" {
		t.Errorf("Expected default base URL, got %s", cfg.BaseURL)
	}
	if cfg.Source != "walmart" {
		t.Errorf("Expected default source walmart, got %s", cfg.Source)
	}
	if cfg.CacheTTLSearch != 30*time.Minute || cfg.CacheTTLProduct != 2*time.Hour || cfg.CacheTTLOffers != 30*time.Minute {
		t.Errorf("Unexpected per-type cache TTLs: %s / %s / %s", cfg.CacheTTLSearch, cfg.CacheTTLProduct, cfg.CacheTTLOffers)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("Expected default timeout 60s, got %s", cfg.RequestTimeout)
	}
	if cfg.RetryBaseDelay != 1750*time.Millisecond {
		t.Errorf("Expected default retry base 1.75s, got %s", cfg.RetryBaseDelay)
	}
	if cfg.MaxRetries != 4 {
		t.Errorf("Expected default MaxRetries 4, got %d", cfg.MaxRetries)
	}
	if cfg.BreakerFailureThreshold != 5 || cfg.BreakerRecoveryTimeout != time.Minute {
		t.Errorf("Unexpected breaker defaults: %d / %s", cfg.BreakerFailureThreshold, cfg.BreakerRecoveryTimeout)
	}
	if cfg.RateLimitPerMinute != 60 || cfg.RateLimitPerHour != 1000 {
		t.Errorf("Unexpected rate limit defaults: %d / %d", cfg.RateLimitPerMinute, cfg.RateLimitPerHour)
	}
	if cfg.CacheBackend != CacheBackendMemory || cfg.StorageBackend != StorageBackendMemory {
		t.Errorf("Unexpected backends: cache=%s storage=%s", cfg.CacheBackend, cfg.StorageBackend)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("Expected info level, got %s", cfg.LogLevel)
	}
	if len(cfg.OperatorSellerNames) != 3 {
		t.Errorf("Expected 3 default operator names, got %v", cfg.OperatorSellerNames)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("BLUECART_API_KEY", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Load() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "REQUEST_TIMEOUT", "not-a-duration"},
		{"bad int", "MAX_RETRIES", "four"},
		{"negative int", "MAX_PAGES", "-1"},
		{"bad float", "RETRY_MULTIPLIER", "x2"},
		{"bad bool", "LOOKUP_OFFERS", "maybe"},
		{"bad level", "LOG_LEVEL", "loud"},
		{"bad cache backend", "CACHE_BACKEND", "memcached"},
		{"bad storage backend", "STORAGE_BACKEND", "mongo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BLUECART_API_KEY", "test-key")
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() should return error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_StorageBackendRequirements(t *testing.T) {
	t.Setenv("BLUECART_API_KEY", "test-key")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("POSTGRES_URL", "")

	if _, err := Load(); err == nil {
		t.Error("Load() should require POSTGRES_URL for the postgres backend")
	}

	t.Setenv("POSTGRES_URL", "postgres://localhost/catalog")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.StorageBackend != StorageBackendPostgres {
		t.Errorf("Expected postgres backend, got %s", cfg.StorageBackend)
	}
}

func TestLoad_OperatorSellerNames(t *testing.T) {
	t.Setenv("BLUECART_API_KEY", "test-key")
	t.Setenv("OPERATOR_SELLER_NAMES", " Walmart.com , ,Acme Direct")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	want := []string{"walmart.com", "acme direct"}
	if len(cfg.OperatorSellerNames) != len(want) {
		t.Fatalf("OperatorSellerNames = %v, want %v", cfg.OperatorSellerNames, want)
	}
	for i := range want {
		if cfg.OperatorSellerNames[i] != want[i] {
			t.Errorf("OperatorSellerNames[%d] = %q, want %q", i, cfg.OperatorSellerNames[i], want[i])
		}
	}
}

func TestLoad_CustomDurations(t *testing.T) {
	t.Setenv("BLUECART_API_KEY", "test-key")
	t.Setenv("DEDUP_WINDOW", "2s")
	t.Setenv("ENRICH_PASS_DELAY", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.DedupWindow != 2*time.Second {
		t.Errorf("Expected 2s, got %s", cfg.DedupWindow)
	}
	if cfg.EnrichPassDelay != 0 {
		t.Errorf("Expected 0s, got %s", cfg.EnrichPassDelay)
	}
}

func TestLoad_PerTypeCacheTTLs(t *testing.T) {
	t.Setenv("BLUECART_API_KEY", "test-key")
	t.Setenv("BLUECART_SOURCE", "walmart_ca")
	t.Setenv("CACHE_TTL", "45m")
	t.Setenv("CACHE_TTL_SEARCH", "5m")
	t.Setenv("CACHE_TTL_PRODUCT", "6h")
	t.Setenv("CACHE_TTL_OFFERS", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Source != "walmart_ca" {
		t.Errorf("Source = %s, want walmart_ca", cfg.Source)
	}
	if cfg.CacheTTL != 45*time.Minute {
		t.Errorf("CacheTTL = %s, want 45m", cfg.CacheTTL)
	}
	if cfg.CacheTTLSearch != 5*time.Minute || cfg.CacheTTLProduct != 6*time.Hour || cfg.CacheTTLOffers != 10*time.Minute {
		t.Errorf("per-type TTLs = %s / %s / %s", cfg.CacheTTLSearch, cfg.CacheTTLProduct, cfg.CacheTTLOffers)
	}
}

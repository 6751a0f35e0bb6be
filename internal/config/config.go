package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingAPIKey is returned when BLUECART_API_KEY is not set.
var ErrMissingAPIKey = errors.New("BLUECART_API_KEY environment variable is required but not set")

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	StorageBackendMemory    = "memory"
	StorageBackendPostgres  = "postgres"
	StorageBackendFirestore = "firestore"
)

type Config struct {
	APIKey    string
	BaseURL   string
	Source    string
	Domain    string
	OutputDir string
	Port      string
	LogLevel  slog.Level

	RequestTimeout  time.Duration
	RequestInterval time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMultiplier float64
	RetryMaxDelay   time.Duration

	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration

	RateLimitPerMinute int
	RateLimitPerHour   int
	DedupWindow        time.Duration

	CacheBackend    string
	CacheMaxEntries int
	CacheTTL        time.Duration
	// Per call type; CacheTTL covers seller profiles and anything unlisted.
	CacheTTLSearch  time.Duration
	CacheTTLProduct time.Duration
	CacheTTLOffers  time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	StorageBackend    string
	PostgresURL       string
	ProjectID         string
	MaxHistoryEntries int

	DiscordWebhookURL string

	MaxPerKeyword       int
	MaxPages            int
	KeywordConcurrency  int
	FetchProductDetails bool
	LookupOffers        bool

	EnrichPasses        int
	EnrichConcurrency   int
	EnrichPassDelay     time.Duration
	OperatorSellerNames []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	apiKey := strings.TrimSpace(os.Getenv("BLUECART_API_KEY"))
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := &Config{
		APIKey:            apiKey,
		BaseURL:           envString("BLUECART_BASE_URL", "https://api.bluecartapi.com/request"),
		Source:            envString("BLUECART_SOURCE", "walmart"),
		Domain:            envString("WALMART_DOMAIN", "walmart.com"),
		OutputDir:         envString("OUTPUT_DIR", "output"),
		Port:              envString("PORT", "8080"),
		CacheBackend:      strings.ToLower(envString("CACHE_BACKEND", CacheBackendMemory)),
		RedisAddr:         envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		StorageBackend:    strings.ToLower(envString("STORAGE_BACKEND", StorageBackendMemory)),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		ProjectID:         os.Getenv("GOOGLE_CLOUD_PROJECT"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		OperatorSellerNames: envList("OPERATOR_SELLER_NAMES",
			[]string{"walmart.com", "walmart", "walmart inc."}),
	}

	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, run summaries will be skipped")
	}

	level, err := parseLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"REQUEST_TIMEOUT", 60 * time.Second, &cfg.RequestTimeout},
		{"REQUEST_INTERVAL", 0, &cfg.RequestInterval},
		{"RETRY_BASE_DELAY", 1750 * time.Millisecond, &cfg.RetryBaseDelay},
		{"RETRY_MAX_DELAY", 30 * time.Second, &cfg.RetryMaxDelay},
		{"BREAKER_RECOVERY_TIMEOUT", 60 * time.Second, &cfg.BreakerRecoveryTimeout},
		{"DEDUP_WINDOW", 5 * time.Second, &cfg.DedupWindow},
		{"CACHE_TTL", time.Hour, &cfg.CacheTTL},
		{"CACHE_TTL_SEARCH", 30 * time.Minute, &cfg.CacheTTLSearch},
		{"CACHE_TTL_PRODUCT", 2 * time.Hour, &cfg.CacheTTLProduct},
		{"CACHE_TTL_OFFERS", 30 * time.Minute, &cfg.CacheTTLOffers},
		{"ENRICH_PASS_DELAY", 15 * time.Second, &cfg.EnrichPassDelay},
	}
	for _, d := range durations {
		v, err := envDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"MAX_RETRIES", 4, &cfg.MaxRetries},
		{"BREAKER_FAILURE_THRESHOLD", 5, &cfg.BreakerFailureThreshold},
		{"RATE_LIMIT_PER_MINUTE", 60, &cfg.RateLimitPerMinute},
		{"RATE_LIMIT_PER_HOUR", 1000, &cfg.RateLimitPerHour},
		{"CACHE_MAX_ENTRIES", 1000, &cfg.CacheMaxEntries},
		{"REDIS_DB", 0, &cfg.RedisDB},
		{"MAX_HISTORY_ENTRIES", 0, &cfg.MaxHistoryEntries},
		{"MAX_PER_KEYWORD", 10, &cfg.MaxPerKeyword},
		{"MAX_PAGES", 50, &cfg.MaxPages},
		{"KEYWORD_CONCURRENCY", 5, &cfg.KeywordConcurrency},
		{"ENRICH_PASSES", 2, &cfg.EnrichPasses},
		{"ENRICH_CONCURRENCY", 5, &cfg.EnrichConcurrency},
	}
	for _, i := range ints {
		v, err := envInt(i.key, i.def)
		if err != nil {
			return nil, err
		}
		*i.dest = v
	}

	if cfg.RetryMultiplier, err = envFloat("RETRY_MULTIPLIER", 2.0); err != nil {
		return nil, err
	}
	if cfg.FetchProductDetails, err = envBool("FETCH_PRODUCT_DETAILS", true); err != nil {
		return nil, err
	}
	if cfg.LookupOffers, err = envBool("LOOKUP_OFFERS", true); err != nil {
		return nil, err
	}

	switch cfg.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q: want %q or %q", cfg.CacheBackend, CacheBackendMemory, CacheBackendRedis)
	}

	switch cfg.StorageBackend {
	case StorageBackendMemory:
	case StorageBackendPostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required when STORAGE_BACKEND=%s", StorageBackendPostgres)
		}
	case StorageBackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when STORAGE_BACKEND=%s", StorageBackendFirestore)
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return parsed, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

// envList splits a comma separated variable, lowercasing and trimming each entry.
func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pauljones0/catalog-crawler/internal/collector"
	"github.com/pauljones0/catalog-crawler/internal/config"
	"github.com/pauljones0/catalog-crawler/internal/enrich"
	"github.com/pauljones0/catalog-crawler/internal/logger"
	"github.com/pauljones0/catalog-crawler/internal/models"
	"github.com/pauljones0/catalog-crawler/internal/notifier"
	"github.com/pauljones0/catalog-crawler/internal/processor"
	"github.com/pauljones0/catalog-crawler/internal/storage"
	"github.com/pauljones0/catalog-crawler/internal/upstream"
	"github.com/pauljones0/catalog-crawler/internal/util"
)

const maxRunDuration = 2 * time.Hour

// store is what every storage backend provides.
type store interface {
	collector.HistorySink
	collector.SummarySink
	processor.HistoryStore
	Close() error
}

type Server struct {
	processor processor.Processor
	collector *collector.Collector
	upstream  *upstream.Client
	running   atomic.Bool

	mu      sync.RWMutex
	lastRun *models.RunSummary
}

func main() {
	logger.Init(os.Stdout, slog.LevelInfo)
	slog.Info("Starting catalog crawler server...")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(os.Stdout, cfg.LogLevel)

	ctx := context.Background()
	st, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	cache, err := newResponseCache(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing response cache", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}

	client, err := upstream.NewClient(upstream.Options{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Source:     cfg.Source,
		Domain:     cfg.Domain,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		Backoff: util.Backoff{
			Base:       cfg.RetryBaseDelay,
			Multiplier: cfg.RetryMultiplier,
			Max:        cfg.RetryMaxDelay,
			Jitter:     0.25,
		},
		TTLs: map[upstream.Endpoint]time.Duration{
			upstream.EndpointSearch:  cfg.CacheTTLSearch,
			upstream.EndpointProduct: cfg.CacheTTLProduct,
			upstream.EndpointOffers:  cfg.CacheTTLOffers,
		},
		DefaultTTL: cfg.CacheTTL,
		Store:      cache,
		Limiter:    upstream.NewWindowLimiter(cfg.RateLimitPerMinute, cfg.RateLimitPerHour, cfg.RequestInterval),
		Breakers:   upstream.NewBreakerRegistry(cfg.BreakerFailureThreshold, cfg.BreakerRecoveryTimeout),
		Dedup:      upstream.NewDeduplicator(cfg.DedupWindow),
	})
	if err != nil {
		slog.Error("Critical error initializing upstream client", "error", err)
		os.Exit(1)
	}

	col := collector.New(client, st, st, []collector.Filter{collector.NewToyFilter()}, collector.Options{
		MaxPerKeyword: cfg.MaxPerKeyword,
		MaxPages:      cfg.MaxPages,
		Concurrency:   cfg.KeywordConcurrency,
		FetchDetails:  cfg.FetchProductDetails,
		LookupOffers:  cfg.LookupOffers,
		Domain:        cfg.Domain,
	})

	sellers := enrich.NewSellerCache()
	opts := processor.Options{
		Sellers:           sellers,
		History:           st,
		Exporter:          storage.NewFileExporter(cfg.OutputDir),
		Notifier:          notifier.New(cfg.DiscordWebhookURL),
		UpstreamStats:     client.Stats,
		MaxHistoryEntries: cfg.MaxHistoryEntries,
	}
	if cfg.EnrichPasses > 0 {
		operator := enrich.NewOperatorPolicy(cfg.OperatorSellerNames, enrich.DefaultOperatorContact())
		opts.Enricher = enrich.New(client, sellers, operator, enrich.Options{
			Passes:         cfg.EnrichPasses,
			MaxConcurrency: cfg.EnrichConcurrency,
			PassDelay:      cfg.EnrichPassDelay,
			Domain:         cfg.Domain,
		})
	}

	srv := &Server{processor: processor.New(col, opts), collector: col, upstream: client}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /crawl", srv.CrawlHandler)
	mux.HandleFunc("GET /status", srv.StatusHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func newStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendPostgres:
		pg, err := storage.NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.StorageBackendFirestore:
		fs, err := storage.NewFirestore(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

func newResponseCache(ctx context.Context, cfg *config.Config) (upstream.Store, error) {
	if cfg.CacheBackend == config.CacheBackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return upstream.NewRedisStore(rdb), nil
	}
	return upstream.NewMemoryStore(cfg.CacheMaxEntries)
}

// CrawlHandler starts a crawl in the background. Only one crawl runs at a time.
func (s *Server) CrawlHandler(w http.ResponseWriter, r *http.Request) {
	var req processor.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(collector.NormalizeKeywords(req.Keywords)) == 0 {
		http.Error(w, "at least one keyword is required", http.StatusBadRequest)
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		http.Error(w, "a crawl is already running", http.StatusConflict)
		return
	}

	// Run asynchronously so the HTTP response isn't blocked by a crawl that
	// may take far longer than any request timeout.
	go func() {
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in crawl", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), maxRunDuration)
		defer cancel()

		res, err := s.processor.Run(ctx, req)
		if res != nil && res.Summary.RunID != "" {
			s.mu.Lock()
			s.lastRun = &res.Summary
			s.mu.Unlock()
		}
		switch {
		case errors.Is(err, processor.ErrUpstreamUnavailable):
			slog.Error("Crawl aborted, upstream unavailable", "error", err)
		case err != nil:
			slog.Error("Error running crawl", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Crawl started.")
}

type statusResponse struct {
	Running  bool                 `json:"running"`
	Sessions []collector.Progress `json:"sessions,omitempty"`
	LastRun  *models.RunSummary   `json:"last_run,omitempty"`
	Upstream upstream.Stats       `json:"upstream"`
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := statusResponse{
		Running:  s.running.Load(),
		Sessions: s.collector.Progress(),
		LastRun:  s.lastRun,
		Upstream: s.upstream.Stats(),
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("Failed to write status response", "error", err)
	}
}

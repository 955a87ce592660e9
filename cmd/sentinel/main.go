// Command sentinel runs the autonomous bounty verification agent: it watches
// configured bounties for new claims, verifies their proofs, and triggers
// payouts for winners.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/poidh-labs/sentinel/infrastructure/cache"
	"github.com/poidh-labs/sentinel/infrastructure/checks"
	"github.com/poidh-labs/sentinel/infrastructure/gateway"
	"github.com/poidh-labs/sentinel/infrastructure/judge"
	"github.com/poidh-labs/sentinel/infrastructure/ledger"
	"github.com/poidh-labs/sentinel/infrastructure/llm"
	"github.com/poidh-labs/sentinel/infrastructure/resolver"
	"github.com/poidh-labs/sentinel/internal/application"
	"github.com/poidh-labs/sentinel/internal/engine"
	"github.com/poidh-labs/sentinel/internal/metrics"
	"github.com/poidh-labs/sentinel/internal/monitor"
	"github.com/poidh-labs/sentinel/internal/resilience"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "sentinel.yaml", "path to configuration file")
	flag.Parse()

	// Secrets come from the environment; .env is a local convenience and its
	// absence is not an error.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := application.Load(*configPath)
	if err != nil {
		return err
	}

	collector := metrics.New(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	store, err := cache.Open(cfg.Cache.Path, cacheOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to open proof cache: %w", err)
	}

	ledgerClient := ledger.New(cfg.Chain.LedgerBaseURL, cfg.Chain.LedgerAPIKey())
	indexClient := resolver.NewIndexedLogClient(cfg.Chain.IndexBaseURL, cfg.Chain.IndexAPIKey())

	// Shared singletons: one breaker per external dependency, one token
	// bucket for the model provider, all injected rather than global.
	indexBreaker := resilience.NewBreaker(resilience.DefaultMaxFailures, resilience.DefaultCooldown)
	chainBreaker := resilience.NewBreaker(resilience.DefaultMaxFailures, resilience.DefaultCooldown)
	judgeBreaker := resilience.NewBreaker(resilience.DefaultMaxFailures, resilience.DefaultCooldown)
	limiter := rate.NewLimiter(rate.Limit(cfg.Judge.RateLimit), cfg.Judge.RateBurst)

	proofResolver, err := resolver.New(
		resolver.Config{
			ContractAddress: cfg.Chain.ContractAddress,
			BlockWindow:     cfg.Chain.BlockWindow,
		},
		resolver.Deps{
			Cache:        store,
			Index:        indexClient,
			Ledger:       ledgerClient,
			IndexBreaker: indexBreaker,
			ChainBreaker: chainBreaker,
			Metrics:      collector,
		},
	)
	if err != nil {
		return err
	}

	gw := gateway.New(cfg.Gateway)

	// The judge owns retries and its breaker, so the client chain carries
	// only rate limiting, timeouts, and observability.
	visionClient, err := llm.NewClient(cfg.Judge.Provider, llm.ClientConfig{
		APIKey: cfg.Judge.APIKey(),
		Model:  cfg.Judge.Model,
		Middleware: []llm.Middleware{
			llm.TracingMiddleware("sentinel"),
			llm.MetricsMiddleware(collector),
			llm.RateLimitMiddlewareWithLimiter(limiter),
			llm.TimeoutMiddleware(cfg.Judge.RequestTimeout()),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create vision client: %w", err)
	}

	aiJudge, err := judge.New(visionClient, gw, judgeBreaker, judge.WithMetrics(collector))
	if err != nil {
		return err
	}

	eng, err := engine.New(checks.NewValidator(), aiJudge, collector)
	if err != nil {
		return err
	}

	mon, err := monitor.New(ledgerClient, proofResolver, gw, eng,
		monitor.WithPollInterval(cfg.Monitor.PollInterval()),
		monitor.WithMetrics(collector),
		monitor.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	for _, b := range cfg.Bounties {
		mon.Watch(b.Bounty())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.ListenAddr != "" {
		go serveMetrics(cfg.Metrics.ListenAddr, logger)
	}

	if err := mon.Start(ctx); err != nil {
		return err
	}
	logger.Info("sentinel started",
		"bounties", len(cfg.Bounties),
		"poll_interval", cfg.Monitor.PollInterval().String(),
		"provider", cfg.Judge.Provider)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := mon.Stop(); err != nil {
		logger.Error("scheduler shutdown failed", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(flushCtx); err != nil {
		return fmt.Errorf("failed to close proof cache: %w", err)
	}
	return nil
}

func cacheOptions(cfg *application.Config) []cache.Option {
	if cfg.Cache.FlushInterval() > 0 {
		return []cache.Option{cache.WithFlushInterval(cfg.Cache.FlushInterval())}
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}

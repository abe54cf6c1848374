package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/analyze"
	"github.com/sells-group/edgar-monitor/internal/config"
	"github.com/sells-group/edgar-monitor/internal/edgar"
	"github.com/sells-group/edgar-monitor/internal/fetcher"
	"github.com/sells-group/edgar-monitor/internal/pipeline"
	"github.com/sells-group/edgar-monitor/internal/queue"
	"github.com/sells-group/edgar-monitor/internal/resilience"
	"github.com/sells-group/edgar-monitor/internal/scheduler"
	"github.com/sells-group/edgar-monitor/internal/store"
	"github.com/sells-group/edgar-monitor/pkg/anthropic"
)

// appEnv bundles the shared dependencies behind every command.
type appEnv struct {
	Store    store.Store
	Fetch    fetcher.Fetcher
	Edgar    *edgar.Client
	Breakers *resilience.ServiceBreakers
	Config   *config.Config
}

// newAppEnv opens the store and builds the EDGAR client. Callers own Close.
func newAppEnv(ctx context.Context) (*appEnv, error) {
	if cfg.Edgar.UserAgent == "" {
		return nil, eris.New("edgar.user_agent is required (SEC fair-access policy)")
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	fetch := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Edgar.UserAgent,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	return &appEnv{
		Store: st,
		Fetch: fetch,
		Edgar: edgar.NewClient(fetch, cfg.Edgar),
		Breakers: resilience.NewServiceBreakers(resilience.FromCircuitConfig(
			cfg.Anthropic.BreakerFailures, cfg.Anthropic.BreakerResetSecs)),
		Config: cfg,
	}, nil
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres", "":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newAnalyzer wires the Anthropic client with the per-form prompt rules.
func (e *appEnv) newAnalyzer() (*analyze.Analyzer, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic.key is required")
	}

	rules, err := analyze.LoadRules(cfg.Pipeline.RulesFile)
	if err != nil {
		return nil, err
	}

	retry := resilience.FromRetryConfig(
		cfg.Anthropic.MaxRetries, cfg.Anthropic.RetryBackoffMs, 0, 0, 0)

	client := anthropic.NewClient(cfg.Anthropic.Key, retry)
	return analyze.NewAnalyzer(client, rules, analyze.Options{
		Model:           cfg.Anthropic.Model,
		Temperature:     cfg.Anthropic.Temperature,
		MaxContentChars: cfg.Pipeline.MaxContentChars,
		MaxTokens:       cfg.Anthropic.MaxTokens,
		Breaker:         e.Breakers.Get("anthropic"),
	}), nil
}

// newDispatcher builds the two stage worker pools.
func (e *appEnv) newDispatcher(analyzer *analyze.Analyzer) *queue.Dispatcher {
	retryBase := time.Duration(cfg.Pipeline.RetryBaseSecs) * time.Second

	downloader := pipeline.NewDownloader(e.Store, e.Edgar, e.Fetch, pipeline.DownloaderOptions{
		DataDir:     cfg.Pipeline.DataDir,
		MinBytes:    cfg.Pipeline.MinDocumentBytes,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		RetryBase:   retryBase,
	})
	processor := pipeline.NewProcessor(e.Store, analyzer, pipeline.ProcessorOptions{
		MinTextChars: cfg.Pipeline.MinTextChars,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RetryBase:    retryBase,
	})

	return queue.NewDispatcher(e.Store, []queue.PoolConfig{
		{Worker: downloader, Concurrency: cfg.Pipeline.DownloadConcurrency},
		{Worker: processor, Concurrency: cfg.Pipeline.AnalyzeConcurrency},
	}, queue.Options{RetryBase: retryBase})
}

// newScheduler builds the discovery loop.
func (e *appEnv) newScheduler() *scheduler.Scheduler {
	scanner := edgar.NewScanner(e.Edgar, e.Store,
		time.Duration(cfg.Edgar.LookbackMinutes)*time.Minute)
	return scheduler.New(scanner, e.Store, scheduler.Options{
		Interval:    time.Duration(cfg.Scheduler.IntervalSecs) * time.Second,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})
}

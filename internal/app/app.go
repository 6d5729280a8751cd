// Package app builds and holds the long-lived services of the crawler,
// acting as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/api"
	"github.com/sonhaber/newswatch/internal/cache"
	"github.com/sonhaber/newswatch/internal/clock/system"
	"github.com/sonhaber/newswatch/internal/config"
	"github.com/sonhaber/newswatch/internal/dedup"
	"github.com/sonhaber/newswatch/internal/dispatcher"
	"github.com/sonhaber/newswatch/internal/extract"
	"github.com/sonhaber/newswatch/internal/feed"
	"github.com/sonhaber/newswatch/internal/fetch"
	"github.com/sonhaber/newswatch/internal/headless"
	"github.com/sonhaber/newswatch/internal/id/uuid"
	"github.com/sonhaber/newswatch/internal/judge"
	"github.com/sonhaber/newswatch/internal/metrics"
	"github.com/sonhaber/newswatch/internal/pipeline"
	"github.com/sonhaber/newswatch/internal/queue/memory"
	"github.com/sonhaber/newswatch/internal/scheduler"
	"github.com/sonhaber/newswatch/internal/store/postgres"
	"github.com/sonhaber/newswatch/internal/watch"
	"github.com/sonhaber/newswatch/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App holds every initialized service. Build one with New, run the full
// pipeline with Run, and release resources with Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     *postgres.Store
	htmlCache *cache.Cache
	renderer  *headless.Renderer
	queue     *memory.Queue
	dedup     *dedup.Engine

	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler
	server     *http.Server
}

// New initializes all services from the configuration and fails fast when a
// critical dependency (Postgres) is unreachable. Redis, the headless
// renderer, and the judge are optional: each degrades to a reduced mode when
// its configuration is absent.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
		MinConns: int32(cfg.DB.MinOpenConns),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	var htmlCache *cache.Cache
	if cfg.Redis.Address != "" {
		htmlCache, err = cache.New(cache.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	} else {
		logger.Info("redis address not set, running in always-miss cache mode")
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	})
	detector := fetch.NewHeuristic(0)

	var concreteRenderer *headless.Renderer
	var renderer pipeline.Renderer
	if cfg.Headless.Enabled {
		concreteRenderer, err = headless.New(headless.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			SettleDelay:       time.Duration(cfg.Headless.SettleDelayMs) * time.Millisecond,
		})
		if err != nil {
			htmlCache.Close()
			store.Close()
			return nil, fmt.Errorf("start headless renderer: %w", err)
		}
		renderer = concreteRenderer
	} else {
		logger.Info("headless rendering disabled, JS-dependent pages will fail")
	}

	extractor := extract.New(extract.Limits{
		ContentMaxChars: cfg.Extract.ContentMaxChars,
		SummaryMaxChars: cfg.Extract.SummaryMaxChars,
	})
	feeds := feed.New(feed.Config{
		UserAgent:       cfg.Crawler.UserAgent,
		Timeout:         time.Duration(cfg.Feed.TimeoutSec) * time.Second,
		PartialMinChars: cfg.Feed.PartialMinChars,
		ContentMaxChars: cfg.Extract.ContentMaxChars,
		SummaryMaxChars: cfg.Extract.SummaryMaxChars,
	})

	// judge.New returns nil on an empty API key. Keep the interface
	// variables truly nil in that case so downstream nil checks hold.
	judgeClient := judge.New(judge.Config{
		APIKey:  cfg.Judge.APIKey,
		Model:   cfg.Judge.Model,
		Timeout: time.Duration(cfg.Judge.TimeoutSec) * time.Second,
	}, logger)
	var semanticJudge pipeline.Judge
	var fieldExtractor pipeline.Extractor
	if judgeClient != nil {
		semanticJudge = judgeClient
		if cfg.Extract.AIFallback {
			fieldExtractor = judgeClient
		}
	} else {
		logger.Info("judge api key not set, running in hash/lexical-only mode")
	}

	clk := system.New()
	ids := uuid.NewUUIDGenerator()

	dedupEngine := dedup.New(store, htmlCache, semanticJudge, clk, dedup.Config{
		LookbackDays:       cfg.Dedup.LookbackDays,
		CandidateCap:       cfg.Dedup.CandidateCap,
		PrefilterThreshold: cfg.Dedup.PrefilterThreshold,
		DuplicateThreshold: cfg.Dedup.DuplicateThreshold,
		EarlyStopScore:     cfg.Dedup.EarlyStopScore,
		JudgeDelay:         time.Duration(cfg.Dedup.JudgeDelayMs) * time.Millisecond,
		JudgeCacheTTL:      time.Duration(cfg.Dedup.JudgeCacheTTLHours) * time.Hour,
		MaxJudgeErrors:     cfg.Dedup.MaxJudgeErrors,
	}, logger.Named("dedup"))

	watchEngine := watch.New(store, semanticJudge, clk, watch.Config{
		ConfidenceThreshold: cfg.Watch.ConfidenceThreshold,
		SweepBatch:          cfg.Watch.SweepBatchSize,
		SweepLookback:       time.Duration(cfg.Watch.SweepLookbackMin) * time.Minute,
	}, logger.Named("watch"))

	jobQueue := memory.NewQueue(cfg.Crawler.QueueDepth)

	workers := make([]*worker.Worker, cfg.Crawler.Concurrency)
	for i := range workers {
		workers[i] = worker.New(jobQueue, store, htmlCache, fetcher, renderer,
			detector, extractor, feeds, fieldExtractor, dedupEngine, watchEngine,
			clk, ids, worker.Config{HTMLCacheTTL: cfg.HTMLCacheTTL()},
			logger.Named(fmt.Sprintf("worker-%d", i)))
	}

	sched := scheduler.New(store, jobQueue, watchEngine, clk, ids, scheduler.Config{
		CrawlInterval:    time.Duration(cfg.Crawler.ScheduleEverySec) * time.Second,
		ArticleRetention: time.Duration(cfg.Retention.ArticleDays) * 24 * time.Hour,
		JobRetention:     time.Duration(cfg.Retention.JobDays) * 24 * time.Hour,
	}, logger.Named("scheduler"))

	apiServer := api.NewServer(store, jobQueue, ids, clk, logger.Named("api"))

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		htmlCache:  htmlCache,
		renderer:   concreteRenderer,
		queue:      jobQueue,
		dedup:      dedupEngine,
		dispatcher: dispatcher.New(jobQueue, workers),
		scheduler:  sched,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run starts the worker pool, the scheduler, and the ops HTTP server, then
// blocks until ctx is canceled. Shutdown drains the HTTP server before
// returning.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		a.dispatcher.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	<-dispatcherDone
	return nil
}

// Dedup exposes the dedup engine for the backfill command.
func (a *App) Dedup() *dedup.Engine {
	return a.dedup
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases all held resources. Safe to call after Run returns.
func (a *App) Close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	a.queue.Close()
	a.htmlCache.Close()
	a.store.Close()
	_ = a.logger.Sync()
}

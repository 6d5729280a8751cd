// Package scheduler enqueues periodic crawl jobs and runs housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Enqueuer accepts jobs for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item pipeline.QueueItem) error
}

// Sweeper re-analyzes articles the watch engine has not seen yet.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Config sets the periodic intervals and retention windows.
type Config struct {
	CrawlInterval        time.Duration
	WatchSweepInterval   time.Duration
	HousekeepingInterval time.Duration
	ArticleRetention     time.Duration
	JobRetention         time.Duration
}

func (c *Config) applyDefaults() {
	if c.CrawlInterval <= 0 {
		c.CrawlInterval = 5 * time.Minute
	}
	if c.WatchSweepInterval <= 0 {
		c.WatchSweepInterval = time.Hour
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = time.Hour
	}
	if c.ArticleRetention <= 0 {
		c.ArticleRetention = 30 * 24 * time.Hour
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 7 * 24 * time.Hour
	}
}

// Scheduler periodically enqueues one crawl job per due ACTIVE source,
// triggers the watch sweep and purges aged rows.
type Scheduler struct {
	store    pipeline.Store
	enqueuer Enqueuer
	watch    Sweeper
	clock    pipeline.Clock
	ids      pipeline.IDGenerator
	cfg      Config
	logger   *zap.Logger

	cron *cron.Cron
	// sweeping guards against overlapping scheduled sweeps; a run that finds
	// the flag set is skipped outright rather than queueing a partial batch.
	sweeping atomic.Bool
}

// New constructs a Scheduler. watch may be nil; the sweep task is then not
// registered.
func New(
	store pipeline.Store,
	enqueuer Enqueuer,
	watch Sweeper,
	clock pipeline.Clock,
	ids pipeline.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    store,
		enqueuer: enqueuer,
		watch:    watch,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the periodic tasks and starts the cron loop. Stop the
// scheduler by cancelling ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(every(s.cfg.CrawlInterval), func() {
		s.RunSweep(ctx)
	}); err != nil {
		return fmt.Errorf("register crawl sweep: %w", err)
	}
	if s.watch != nil {
		if _, err := s.cron.AddFunc(every(s.cfg.WatchSweepInterval), func() {
			s.runWatchSweep(ctx)
		}); err != nil {
			return fmt.Errorf("register watch sweep: %w", err)
		}
	}
	if _, err := s.cron.AddFunc(every(s.cfg.HousekeepingInterval), func() {
		s.runHousekeeping(ctx)
	}); err != nil {
		return fmt.Errorf("register housekeeping: %w", err)
	}

	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// RunSweep enqueues one scheduled job per due ACTIVE source. Returns the
// number of jobs enqueued; a sweep skipped because one is already in flight
// returns 0.
func (s *Scheduler) RunSweep(ctx context.Context) int {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Warn("scheduled sweep still in flight, skipping run")
		return 0
	}
	defer s.sweeping.Store(false)

	sources, err := s.store.ListActiveSources(ctx)
	if err != nil {
		s.logger.Error("list active sources failed", zap.Error(err))
		return 0
	}

	now := s.clock.Now()
	enqueued := 0
	for _, src := range sources {
		if !s.due(src, now) {
			continue
		}
		if err := s.enqueueJob(ctx, src, pipeline.TriggerScheduled); err != nil {
			s.logger.Error("enqueue scheduled job failed",
				zap.String("source_id", src.ID), zap.Error(err))
			continue
		}
		enqueued++
	}
	s.logger.Debug("scheduled sweep finished",
		zap.Int("sources", len(sources)), zap.Int("enqueued", enqueued))
	return enqueued
}

// due honors the per-source refresh interval against the last crawl time.
func (s *Scheduler) due(src pipeline.Source, now time.Time) bool {
	if src.RefreshInterval <= 0 || src.LastCrawledAt == nil {
		return true
	}
	return now.Sub(*src.LastCrawledAt) >= src.RefreshInterval
}

// enqueueJob creates the audit record and hands the job to the queue.
func (s *Scheduler) enqueueJob(ctx context.Context, src pipeline.Source, reason pipeline.TriggerReason) error {
	jobID, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := pipeline.CrawlJob{
		ID:          jobID,
		SourceID:    src.ID,
		Status:      pipeline.JobStatusPending,
		TriggeredBy: reason,
		CreatedAt:   now,
	}
	if err := s.store.CreateCrawlJob(ctx, job); err != nil {
		return fmt.Errorf("create crawl job: %w", err)
	}
	item := pipeline.QueueItem{
		JobID:     jobID,
		Payload:   pipeline.NewJobPayload(src, reason),
		Submitted: now.Unix(),
	}
	if err := s.enqueuer.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (s *Scheduler) runWatchSweep(ctx context.Context) {
	processed, err := s.watch.Sweep(ctx)
	if err != nil {
		s.logger.Error("watch sweep failed", zap.Error(err))
		return
	}
	if processed > 0 {
		s.logger.Info("watch sweep finished", zap.Int("articles", processed))
	}
}

func (s *Scheduler) runHousekeeping(ctx context.Context) {
	now := s.clock.Now()
	articles, err := s.store.PurgeArticles(ctx, now.Add(-s.cfg.ArticleRetention))
	if err != nil {
		s.logger.Error("article purge failed", zap.Error(err))
	}
	jobs, err := s.store.PurgeCrawlJobs(ctx, now.Add(-s.cfg.JobRetention))
	if err != nil {
		s.logger.Error("job purge failed", zap.Error(err))
	}
	if articles > 0 || jobs > 0 {
		s.logger.Info("housekeeping finished",
			zap.Int64("articles_purged", articles),
			zap.Int64("jobs_purged", jobs))
	}
}

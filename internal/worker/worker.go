// Package worker executes crawl jobs end to end: fetch, extract, persist,
// deduplicate and watch-match.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/cache"
	"github.com/sonhaber/newswatch/internal/hash/sha256"
	"github.com/sonhaber/newswatch/internal/metrics"
	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Config controls Worker behavior.
type Config struct {
	HTMLCacheTTL time.Duration
}

// Worker consumes queue items and runs the crawl pipeline for one source
// per job, routed by source kind.
type Worker struct {
	queue          pipeline.Queue
	store          pipeline.Store
	cacheLayer     pipeline.Cache
	fetcher        pipeline.Fetcher
	renderer       pipeline.Renderer
	detector       pipeline.Detector
	extractor      pipeline.SelectorExtractor
	feeds          pipeline.FeedParser
	fieldExtractor pipeline.Extractor
	dedup          pipeline.Deduper
	relevance      pipeline.RelevanceAnalyzer
	clock          pipeline.Clock
	ids            pipeline.IDGenerator
	cfg            Config
	logger         *zap.Logger
}

// New constructs a Worker. renderer and fieldExtractor may be nil; the
// headless fallback and the AI extraction fallback are then disabled.
func New(
	queue pipeline.Queue,
	store pipeline.Store,
	cacheLayer pipeline.Cache,
	fetcher pipeline.Fetcher,
	renderer pipeline.Renderer,
	detector pipeline.Detector,
	extractor pipeline.SelectorExtractor,
	feeds pipeline.FeedParser,
	fieldExtractor pipeline.Extractor,
	dedup pipeline.Deduper,
	relevance pipeline.RelevanceAnalyzer,
	clock pipeline.Clock,
	ids pipeline.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.HTMLCacheTTL <= 0 {
		cfg.HTMLCacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:          queue,
		store:          store,
		cacheLayer:     cacheLayer,
		fetcher:        fetcher,
		renderer:       renderer,
		detector:       detector,
		extractor:      extractor,
		feeds:          feeds,
		fieldExtractor: fieldExtractor,
		dedup:          dedup,
		relevance:      relevance,
		clock:          clock,
		ids:            ids,
		cfg:            cfg,
		logger:         logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.JobID),
			zap.Int("attempt", item.Attempt))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item pipeline.QueueItem) {
	metrics.WorkerStarted()
	defer metrics.WorkerFinished()

	payload := item.Payload
	if item.Attempt == 0 {
		if err := w.store.MarkCrawlJobRunning(ctx, item.JobID, w.clock.Now()); err != nil {
			w.logger.Error("mark job running failed",
				zap.String("job_id", item.JobID), zap.Error(err))
			return
		}
	}

	src, err := w.store.GetSource(ctx, payload.SourceID)
	if err != nil {
		w.finishJob(ctx, item, pipeline.JobResult{SourceID: payload.SourceID},
			fmt.Errorf("load source: %w", err), 0)
		return
	}

	start := w.clock.Now()
	result, runErr := w.runJob(ctx, payload, src)
	duration := w.clock.Now().Sub(start)
	result.SourceID = payload.SourceID
	result.DurationMs = duration.Milliseconds()

	w.finishJob(ctx, item, result, runErr, duration)
}

// finishJob finalizes the audit record and source health, or re-enqueues
// when attempts remain. Health is updated once per final outcome, not per
// attempt, so a flaky source does not burn its failure budget on one job.
func (w *Worker) finishJob(
	ctx context.Context,
	item pipeline.QueueItem,
	result pipeline.JobResult,
	runErr error,
	duration time.Duration,
) {
	payload := item.Payload
	if runErr != nil && item.Attempt+1 < maxAttempts {
		w.logger.Warn("job attempt failed, requeueing",
			zap.String("job_id", item.JobID),
			zap.Int("attempt", item.Attempt),
			zap.Error(runErr))
		w.requeue(ctx, item)
		return
	}

	status := pipeline.JobStatusCompleted
	errText := ""
	if runErr != nil {
		status = pipeline.JobStatusFailed
		errText = runErr.Error()
	}

	if err := w.store.FinalizeCrawlJob(ctx, item.JobID, status, result, errText, w.clock.Now()); err != nil {
		w.logger.Error("finalize job failed",
			zap.String("job_id", item.JobID), zap.Error(err))
	}

	srcStatus, err := w.store.UpdateSourceHealth(
		ctx, payload.SourceID, runErr == nil, result.DurationMs, errText)
	if err != nil {
		w.logger.Error("source health update failed",
			zap.String("source_id", payload.SourceID), zap.Error(err))
	} else if srcStatus == pipeline.SourceStatusError {
		w.logger.Warn("source entered ERROR status",
			zap.String("source_id", payload.SourceID),
			zap.String("last_error", errText))
	}

	metrics.ObserveCrawlJob(string(payload.SourceKind), string(status), duration)
	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.String("status", string(status)),
		zap.Int("items_found", result.ItemsFound),
		zap.Int("items_inserted", result.ItemsInserted),
		zap.Duration("duration", duration))
}

func (w *Worker) runJob(ctx context.Context, payload pipeline.JobPayload, src pipeline.Source) (pipeline.JobResult, error) {
	switch payload.SourceKind {
	case pipeline.SourceKindSelector:
		return w.runSelectorJob(ctx, payload, src)
	case pipeline.SourceKindFeed:
		return w.runFeedJob(ctx, payload, src)
	default:
		return pipeline.JobResult{}, fmt.Errorf("unknown source kind %q", payload.SourceKind)
	}
}

func (w *Worker) runSelectorJob(ctx context.Context, payload pipeline.JobPayload, src pipeline.Source) (pipeline.JobResult, error) {
	var result pipeline.JobResult
	if payload.Selectors == nil {
		return result, fmt.Errorf("selector source %s has no rules", payload.SourceID)
	}
	rules := *payload.Selectors

	listPage, err := w.fetchPage(ctx, payload.URL)
	if err != nil {
		return result, fmt.Errorf("fetch list page: %w", err)
	}

	links, err := w.extractor.ExtractLinks(listPage.Body, payload.URL, rules)
	if err != nil {
		return result, fmt.Errorf("extract links: %w", err)
	}
	result.ItemsFound = len(links)
	if len(links) == 0 {
		// Recoverable by contract: the list selector matched nothing.
		w.logger.Warn("list page yielded no links",
			zap.String("source_id", payload.SourceID),
			zap.String("url", payload.URL))
		return result, nil
	}

	for _, link := range links {
		if ctx.Err() != nil {
			return result, fmt.Errorf("job canceled: %w", ctx.Err())
		}
		art, err := w.extractArticle(ctx, link, rules)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", link, err))
			continue
		}
		if w.persistAndAnalyze(ctx, payload, src, art, &result) {
			result.ItemsInserted++
		}
	}

	if result.ItemsInserted == 0 && len(result.Errors) == len(links) {
		return result, fmt.Errorf("all %d detail pages failed: %s", len(links), result.Errors[0])
	}
	return result, nil
}

// extractArticle fetches one detail page through the cascade and extracts
// fields, falling back to AI extraction for partial articles when enabled.
func (w *Worker) extractArticle(ctx context.Context, link string, rules pipeline.SelectorRules) (pipeline.ExtractedArticle, error) {
	page, err := w.fetchPage(ctx, link)
	if err != nil {
		return pipeline.ExtractedArticle{}, fmt.Errorf("fetch detail page: %w", err)
	}

	art := w.extractor.ExtractDetail(page.Body, link, rules)
	art.URL = link
	if !art.Partial || w.fieldExtractor == nil {
		return art, nil
	}

	recovered, err := w.fieldExtractor.ExtractFields(ctx, link, string(page.Body))
	if err != nil {
		w.logger.Warn("ai field extraction failed, keeping partial article",
			zap.String("url", link), zap.Error(err))
		return art, nil
	}
	if recovered.Content == "" && recovered.Summary == "" {
		return art, nil
	}
	recovered.URL = link
	if recovered.Title == "" {
		recovered.Title = art.Title
	}
	recovered.Partial = false
	return recovered, nil
}

func (w *Worker) runFeedJob(ctx context.Context, payload pipeline.JobPayload, src pipeline.Source) (pipeline.JobResult, error) {
	var result pipeline.JobResult
	if payload.FeedURL == "" {
		return result, fmt.Errorf("feed source %s has no feed url", payload.SourceID)
	}

	fr, err := w.feeds.Fetch(ctx, payload.FeedURL, payload.LastEtag, payload.LastFeedModified)
	if err != nil {
		return result, fmt.Errorf("fetch feed: %w", err)
	}
	if fr.NotModified {
		// Success with zero items; stored validators stay untouched.
		w.logger.Debug("feed not modified", zap.String("source_id", payload.SourceID))
		return result, nil
	}

	if err := w.store.UpdateFeedMetadata(ctx, payload.SourceID, fr.Etag, fr.LastModified); err != nil {
		w.logger.Error("feed metadata update failed",
			zap.String("source_id", payload.SourceID), zap.Error(err))
	}

	result.ItemsFound = len(fr.Items)
	for _, item := range fr.Items {
		if ctx.Err() != nil {
			return result, fmt.Errorf("job canceled: %w", ctx.Err())
		}
		if item.Partial && payload.EnrichContent && payload.ContentSelector != "" {
			item = w.enrichFeedItem(ctx, item, payload.ContentSelector)
		}
		if w.persistAndAnalyze(ctx, payload, src, item, &result) {
			result.ItemsInserted++
		}
	}
	return result, nil
}

// enrichFeedItem fetches the item's own page and re-runs the single
// configured content selector. Enrichment failures keep the partial item.
func (w *Worker) enrichFeedItem(ctx context.Context, item pipeline.ExtractedArticle, selector string) pipeline.ExtractedArticle {
	page, err := w.fetchPage(ctx, item.URL)
	if err != nil {
		w.logger.Warn("feed enrichment fetch failed",
			zap.String("url", item.URL), zap.Error(err))
		return item
	}
	content, err := w.extractor.ExtractWithSelector(page.Body, selector)
	if err != nil || content == "" {
		return item
	}
	item.Content = content
	item.Partial = false
	return item
}

// persistAndAnalyze inserts one article and pushes it through dedup and
// watch matching. Returns true when a new row was inserted; a duplicate is
// counted but is not an error.
func (w *Worker) persistAndAnalyze(
	ctx context.Context,
	payload pipeline.JobPayload,
	src pipeline.Source,
	item pipeline.ExtractedArticle,
	result *pipeline.JobResult,
) bool {
	if item.Title == "" || item.URL == "" {
		return false
	}

	id, err := w.ids.NewID()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: generate id: %v", item.URL, err))
		return false
	}
	art := pipeline.Article{
		ID:          id,
		SourceID:    payload.SourceID,
		Title:       item.Title,
		URL:         item.URL,
		PublishedAt: item.PublishedAt,
		Content:     item.Content,
		Summary:     item.Summary,
		ImageURL:    item.ImageURL,
		Partial:     item.Partial,
		ContentHash: sha256.ArticleHash(payload.SourceID, item.URL),
		URLHash:     sha256.URLHash(item.URL),
		CreatedAt:   w.clock.Now(),
	}

	inserted, err := w.store.InsertArticle(ctx, art)
	if err != nil {
		if errors.Is(err, pipeline.ErrDuplicateArticle) {
			metrics.ObserveArticle("duplicate")
			return false
		}
		metrics.ObserveArticle("error")
		result.Errors = append(result.Errors, fmt.Sprintf("%s: insert: %v", item.URL, err))
		return false
	}
	metrics.ObserveArticle("inserted")

	if w.dedup != nil {
		if err := w.dedup.ProcessNew(ctx, inserted); err != nil {
			w.logger.Warn("dedup pass failed",
				zap.String("article_id", inserted.ID), zap.Error(err))
		}
	}
	if w.relevance != nil {
		if err := w.relevance.Analyze(ctx, inserted, src.OwnerID); err != nil {
			w.logger.Warn("watch analysis failed",
				zap.String("article_id", inserted.ID), zap.Error(err))
		}
	}
	return true
}

// fetchPage runs the cache, lightweight HTTP and headless cascade for one
// URL. Successful lightweight HTML is written back into the cache; headless
// output is not cached.
func (w *Worker) fetchPage(ctx context.Context, url string) (pipeline.FetchResult, error) {
	key := cache.HTMLKey(url)
	if w.cacheLayer != nil {
		if raw, ok := w.cacheLayer.Get(ctx, key); ok {
			metrics.ObserveFetch("cache", "hit")
			return pipeline.FetchResult{URL: url, StatusCode: 200, Body: []byte(raw), FromCache: true}, nil
		}
	}

	res, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch("http", "error")
		if w.renderer == nil {
			return pipeline.FetchResult{}, err
		}
		w.logger.Debug("lightweight fetch failed, promoting to headless",
			zap.String("url", url), zap.Error(err))
		return w.renderPage(ctx, url)
	}
	metrics.ObserveFetch("http", "ok")

	if w.detector != nil && w.detector.RequiresJS(res.Body) {
		if w.renderer == nil {
			// A near-empty SPA shell would otherwise become a silent
			// partial article.
			return pipeline.FetchResult{}, fmt.Errorf("page %s requires javascript and no renderer is configured", url)
		}
		w.logger.Debug("page classified js-dependent, promoting to headless",
			zap.String("url", url))
		return w.renderPage(ctx, url)
	}

	if w.cacheLayer != nil {
		w.cacheLayer.Set(ctx, key, string(res.Body), w.cfg.HTMLCacheTTL)
	}
	return res, nil
}

func (w *Worker) renderPage(ctx context.Context, url string) (pipeline.FetchResult, error) {
	res, err := w.renderer.Render(ctx, url)
	if err != nil {
		metrics.ObserveFetch("headless", "error")
		return pipeline.FetchResult{}, fmt.Errorf("headless render: %w", err)
	}
	metrics.ObserveFetch("headless", "ok")
	return res, nil
}

package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/metrics"
	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Config tunes relevance matching and the unanalyzed-article sweep.
type Config struct {
	ConfidenceThreshold float64
	SweepBatch          int
	SweepLookback       time.Duration
	JudgeDelay          time.Duration
}

func (c *Config) applyDefaults() {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = pipeline.WatchConfidenceThreshold
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 50
	}
	if c.SweepLookback <= 0 {
		c.SweepLookback = time.Hour
	}
	if c.JudgeDelay <= 0 {
		c.JudgeDelay = time.Second
	}
}

// judgeRetries bounds local retry on rate-limit errors; backoff is linear.
const (
	judgeRetries      = 3
	judgeRetryBackoff = 2 * time.Second
)

// Engine checks new articles against active watch keywords and records
// matches above the confidence threshold.
type Engine struct {
	store  pipeline.RelevanceStore
	judge  pipeline.Judge
	clock  pipeline.Clock
	logger *zap.Logger
	cfg    Config

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New constructs an Engine. judge may be nil; articles are then marked
// analyzed without any matches so they are not rechecked forever.
func New(
	store pipeline.RelevanceStore,
	judge pipeline.Judge,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		judge:  judge,
		clock:  clock,
		logger: logger,
		cfg:    cfg,
		sleep:  time.Sleep,
	}
}

// Analyze checks one article against the applicable active keywords and
// marks it analyzed. ownerID scopes the keyword set: empty means the source
// is system-wide and every user's keywords apply; otherwise only the owning
// user's keywords are checked. Judge failures degrade to "not relevant".
func (e *Engine) Analyze(ctx context.Context, art pipeline.Article, ownerID string) error {
	keywords, err := e.store.ActiveKeywords(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load watch keywords: %w", err)
	}

	if e.judge != nil {
		for i, kw := range keywords {
			if ctx.Err() != nil {
				return fmt.Errorf("watch analysis canceled: %w", ctx.Err())
			}
			if i > 0 {
				e.sleep(e.cfg.JudgeDelay)
			}

			verdict, err := e.judgeRelevance(ctx, kw, art)
			if err != nil {
				e.logger.Warn("relevance judge failed, treating as not relevant",
					zap.String("article_id", art.ID),
					zap.String("keyword", kw.Term),
					zap.Error(err))
				continue
			}
			if !verdict.IsRelevant || verdict.Confidence < e.cfg.ConfidenceThreshold {
				continue
			}

			match := pipeline.WatchMatch{
				ArticleID:  art.ID,
				KeywordID:  kw.ID,
				Confidence: verdict.Confidence,
				Reason:     verdict.Reason,
				CreatedAt:  e.clock.Now(),
			}
			if err := e.store.UpsertWatchMatch(ctx, match); err != nil {
				return fmt.Errorf("persist watch match: %w", err)
			}
			metrics.ObserveWatchMatch()
		}
	}

	// Marked even with zero keywords so the sweep never revisits.
	if err := e.store.MarkArticleAnalyzed(ctx, art.ID, e.clock.Now()); err != nil {
		return fmt.Errorf("mark article analyzed: %w", err)
	}
	return nil
}

// judgeRelevance invokes the relevance judge with bounded retry on rate
// limits only.
func (e *Engine) judgeRelevance(ctx context.Context, kw pipeline.WatchKeyword, art pipeline.Article) (pipeline.RelevanceVerdict, error) {
	for attempt := 1; ; attempt++ {
		verdict, err := e.judge.Relevance(ctx, kw, art)
		if err == nil {
			metrics.ObserveJudgeCall("relevance", "ok")
			return verdict, nil
		}
		if !errors.Is(err, pipeline.ErrRateLimited) || attempt >= judgeRetries {
			metrics.ObserveJudgeCall("relevance", "error")
			return pipeline.RelevanceVerdict{}, err
		}
		e.sleep(time.Duration(attempt) * judgeRetryBackoff)
	}
}

// Sweep re-analyzes articles left unanalyzed within the lookback window,
// bounded to one batch per run. Returns the number of articles processed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	since := e.clock.Now().Add(-e.cfg.SweepLookback)
	articles, err := e.store.UnanalyzedArticles(ctx, since, e.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("load unanalyzed articles: %w", err)
	}

	processed := 0
	for _, art := range articles {
		src, err := e.store.GetSource(ctx, art.SourceID)
		if err != nil {
			e.logger.Warn("skipping article with unknown source",
				zap.String("article_id", art.ID),
				zap.String("source_id", art.SourceID),
				zap.Error(err))
			continue
		}
		if err := e.Analyze(ctx, art, src.OwnerID); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

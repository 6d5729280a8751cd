package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/cache"
	"github.com/sonhaber/newswatch/internal/hash/sha256"
	"github.com/sonhaber/newswatch/internal/metrics"
	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Config tunes the layered duplicate detection.
type Config struct {
	LookbackDays       int
	CandidateCap       int
	PrefilterThreshold float64
	DuplicateThreshold float64
	EarlyStopScore     float64
	JudgeDelay         time.Duration
	JudgeCacheTTL      time.Duration
	MaxJudgeErrors     int
}

func (c *Config) applyDefaults() {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 7
	}
	if c.CandidateCap <= 0 {
		c.CandidateCap = 500
	}
	if c.PrefilterThreshold <= 0 {
		c.PrefilterThreshold = 0.15
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = 0.8
	}
	if c.EarlyStopScore <= 0 {
		c.EarlyStopScore = 0.9
	}
	if c.JudgeDelay <= 0 {
		c.JudgeDelay = time.Second
	}
	if c.JudgeCacheTTL <= 0 {
		c.JudgeCacheTTL = 24 * time.Hour
	}
	if c.MaxJudgeErrors <= 0 {
		c.MaxJudgeErrors = 5
	}
}

// judgeRetries bounds local retry on rate-limit errors; backoff is linear.
const (
	judgeRetries      = 3
	judgeRetryBackoff = 2 * time.Second
)

// Engine decides whether a new article duplicates an existing one from a
// different source and maintains article groups.
type Engine struct {
	store  pipeline.DedupStore
	cache  pipeline.Cache
	judge  pipeline.Judge
	clock  pipeline.Clock
	logger *zap.Logger
	cfg    Config

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New constructs an Engine. judge may be nil; the engine then runs the
// lexical stages only and never forms fuzzy groups.
func New(
	store pipeline.DedupStore,
	cacheLayer pipeline.Cache,
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
		cache:  cacheLayer,
		judge:  judge,
		clock:  clock,
		logger: logger,
		cfg:    cfg,
		sleep:  time.Sleep,
	}
}

// scored pairs a candidate with its judge verdict for ranking.
type scored struct {
	article pipeline.Article
	verdict pipeline.Verdict
}

// ProcessNew runs stages 2-5 for one freshly inserted article. Stage 1, the
// exact (source, url) hash, already happened at insert time via the storage
// uniqueness constraint. Judge unavailability degrades to "no duplicate".
func (e *Engine) ProcessNew(ctx context.Context, art pipeline.Article) error {
	if e.judge == nil {
		return nil
	}
	since := e.clock.Now().AddDate(0, 0, -e.cfg.LookbackDays)
	candidates, err := e.store.RecentArticles(ctx, art.SourceID, since, e.cfg.CandidateCap)
	if err != nil {
		return fmt.Errorf("load dedup candidates: %w", err)
	}

	matches, _ := e.scoreCandidates(ctx, art, candidates, 0)
	if len(matches) == 0 {
		return nil
	}
	best := matches[0]
	if err := e.attachToGroup(ctx, art, best.article, best.verdict.Similarity); err != nil {
		return err
	}
	return nil
}

// scoreCandidates runs the lexical prefilter and the semantic judge over the
// candidate set. The returned slice is sorted by similarity descending and
// holds only candidates at or above the duplicate threshold. failStreak
// carries the consecutive-judge-failure count across calls so the backfill
// circuit breaker can span articles; the updated streak is returned.
func (e *Engine) scoreCandidates(
	ctx context.Context,
	art pipeline.Article,
	candidates []pipeline.Article,
	failStreak int,
) ([]scored, int) {
	var (
		matches          []scored
		consecutiveFails = failStreak
		calls            int
	)
	for _, candidate := range candidates {
		if consecutiveFails >= e.cfg.MaxJudgeErrors {
			break
		}
		if candidate.SourceID == art.SourceID {
			continue
		}
		if TitleSimilarity(art.Title, candidate.Title) < e.cfg.PrefilterThreshold {
			continue
		}

		if calls > 0 {
			e.sleep(e.cfg.JudgeDelay)
		}
		calls++

		verdict, err := e.judgePair(ctx, art, candidate)
		if err != nil {
			consecutiveFails++
			e.logger.Warn("semantic judge failed, treating as non-duplicate",
				zap.String("article_id", art.ID),
				zap.String("candidate_id", candidate.ID),
				zap.Error(err))
			continue
		}
		consecutiveFails = 0

		if !verdict.IsSameNews || verdict.Similarity < e.cfg.DuplicateThreshold {
			continue
		}
		matches = append(matches, scored{article: candidate, verdict: verdict})
		if verdict.Similarity >= e.cfg.EarlyStopScore {
			break
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].verdict.Similarity > matches[j].verdict.Similarity
	})
	return matches, consecutiveFails
}

// judgePair invokes the same-story judge with verdict caching and bounded
// retry on rate limits. Non-rate-limit judge errors surface to the caller,
// which degrades them to a non-duplicate verdict.
func (e *Engine) judgePair(ctx context.Context, a, b pipeline.Article) (pipeline.Verdict, error) {
	key := cache.JudgeKey(sha256.PairHash(a.Title, b.Title))
	if raw, ok := e.cache.Get(ctx, key); ok {
		var cached pipeline.Verdict
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			metrics.ObserveJudgeCacheHit()
			return cached, nil
		}
	}

	var (
		verdict pipeline.Verdict
		err     error
	)
	for attempt := 1; ; attempt++ {
		verdict, err = e.judge.SameStory(ctx,
			pipeline.StoryRef{Title: a.Title, Content: a.Content},
			pipeline.StoryRef{Title: b.Title, Content: b.Content},
		)
		if err == nil {
			break
		}
		if !errors.Is(err, pipeline.ErrRateLimited) || attempt >= judgeRetries {
			metrics.ObserveJudgeCall("same_story", "error")
			return pipeline.Verdict{}, err
		}
		e.sleep(time.Duration(attempt) * judgeRetryBackoff)
	}
	metrics.ObserveJudgeCall("same_story", "ok")

	if encoded, marshalErr := json.Marshal(verdict); marshalErr == nil {
		e.cache.Set(ctx, key, string(encoded), e.cfg.JudgeCacheTTL)
	}
	return verdict, nil
}

// attachToGroup links the candidate into the best match's group, creating
// the group first when the match is still ungrouped. A new group seeds its
// representative fields from whichever article has longer content, and the
// previously existing article is retroactively linked at similarity 1.0.
func (e *Engine) attachToGroup(ctx context.Context, art, match pipeline.Article, similarity float64) error {
	if match.GroupID != "" {
		if err := e.store.LinkArticleToGroup(ctx, art.ID, match.GroupID, similarity); err != nil {
			return fmt.Errorf("join group: %w", err)
		}
		return nil
	}

	representative := match
	if len(art.Content) > len(match.Content) {
		representative = art
	}
	group, err := e.store.CreateGroup(ctx, pipeline.ArticleGroup{
		Title:     representative.Title,
		Content:   representative.Content,
		Summary:   representative.Summary,
		ImageURL:  representative.ImageURL,
		CreatedAt: e.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	metrics.ObserveGroupCreated()

	if err := e.store.LinkArticleToGroup(ctx, match.ID, group.ID, 1.0); err != nil {
		return fmt.Errorf("link matched article: %w", err)
	}
	if err := e.store.LinkArticleToGroup(ctx, art.ID, group.ID, similarity); err != nil {
		return fmt.Errorf("link new article: %w", err)
	}
	return nil
}

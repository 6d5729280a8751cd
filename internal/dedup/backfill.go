package dedup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/metrics"
	"github.com/sonhaber/newswatch/internal/pipeline"
)

// BackfillResult summarizes one bulk grouping pass.
type BackfillResult struct {
	Scanned      int
	ExactGrouped int
	FuzzyGrouped int
	Aborted      bool
}

// Backfill groups historical ungrouped articles. A pure title-equality pass
// runs first (normalize, compare, zero judge spend); the fuzzy stages then
// cover the remainder, stopping outright once the judge fails
// MaxJudgeErrors times in a row.
func (e *Engine) Backfill(ctx context.Context, limit int) (BackfillResult, error) {
	since := e.clock.Now().AddDate(0, 0, -e.cfg.LookbackDays)
	articles, err := e.store.UngroupedArticles(ctx, since, limit)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("load ungrouped articles: %w", err)
	}

	result := BackfillResult{Scanned: len(articles)}

	remainder, exactGrouped, err := e.exactTitlePass(ctx, articles)
	if err != nil {
		return result, err
	}
	result.ExactGrouped = exactGrouped

	if e.judge == nil {
		return result, nil
	}

	fuzzyGrouped, aborted, err := e.fuzzyPass(ctx, remainder)
	result.FuzzyGrouped = fuzzyGrouped
	result.Aborted = aborted
	return result, err
}

// exactTitlePass buckets articles by normalized title and groups buckets
// spanning more than one source, linking every member at similarity 1.0.
func (e *Engine) exactTitlePass(ctx context.Context, articles []pipeline.Article) ([]pipeline.Article, int, error) {
	buckets := make(map[string][]int)
	order := make([]string, 0)
	for i, art := range articles {
		key := NormalizeTitle(art.Title)
		if key == "" {
			continue
		}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], i)
	}

	grouped := make(map[int]bool)
	count := 0
	for _, key := range order {
		idxs := buckets[key]
		if len(idxs) < 2 || !spansSources(articles, idxs) {
			continue
		}

		representative := articles[idxs[0]]
		for _, i := range idxs[1:] {
			if len(articles[i].Content) > len(representative.Content) {
				representative = articles[i]
			}
		}
		group, err := e.store.CreateGroup(ctx, pipeline.ArticleGroup{
			Title:     representative.Title,
			Content:   representative.Content,
			Summary:   representative.Summary,
			ImageURL:  representative.ImageURL,
			CreatedAt: e.clock.Now(),
		})
		if err != nil {
			return nil, count, fmt.Errorf("create exact-title group: %w", err)
		}
		metrics.ObserveGroupCreated()

		for _, i := range idxs {
			if err := e.store.LinkArticleToGroup(ctx, articles[i].ID, group.ID, 1.0); err != nil {
				return nil, count, fmt.Errorf("link exact-title member: %w", err)
			}
			grouped[i] = true
			count++
		}
	}

	remainder := make([]pipeline.Article, 0, len(articles))
	for i, art := range articles {
		if !grouped[i] {
			remainder = append(remainder, art)
		}
	}
	return remainder, count, nil
}

// fuzzyPass runs the prefilter+judge stages over the remainder, matching
// each article against the others. The consecutive-failure streak persists
// across articles; hitting the limit aborts the pass.
func (e *Engine) fuzzyPass(ctx context.Context, articles []pipeline.Article) (int, bool, error) {
	grouped := make(map[string]bool)
	streak := 0
	count := 0

	for i, art := range articles {
		if ctx.Err() != nil {
			return count, false, fmt.Errorf("backfill canceled: %w", ctx.Err())
		}
		if streak >= e.cfg.MaxJudgeErrors {
			e.logger.Warn("backfill fuzzy pass aborted after consecutive judge failures",
				zap.Int("streak", streak))
			return count, true, nil
		}
		if grouped[art.ID] {
			continue
		}

		candidates := make([]pipeline.Article, 0, len(articles)-i-1)
		for _, other := range articles[i+1:] {
			if !grouped[other.ID] {
				candidates = append(candidates, other)
			}
		}

		var matches []scored
		matches, streak = e.scoreCandidates(ctx, art, candidates, streak)
		if len(matches) == 0 {
			continue
		}
		best := matches[0]
		if err := e.attachToGroup(ctx, art, best.article, best.verdict.Similarity); err != nil {
			return count, false, err
		}
		grouped[art.ID] = true
		grouped[best.article.ID] = true
		count += 2
	}
	return count, false, nil
}

func spansSources(articles []pipeline.Article, idxs []int) bool {
	first := articles[idxs[0]].SourceID
	for _, i := range idxs[1:] {
		if articles[i].SourceID != first {
			return true
		}
	}
	return false
}

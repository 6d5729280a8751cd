package pipeline

import (
	"context"
	"time"
)

// SourceStore persists source records and their health bookkeeping.
type SourceStore interface {
	GetSource(ctx context.Context, id string) (Source, error)
	ListActiveSources(ctx context.Context) ([]Source, error)
	// UpdateSourceHealth applies one job outcome atomically and returns the
	// status the source landed on after the update.
	UpdateSourceHealth(ctx context.Context, sourceID string, success bool, durationMs int64, errText string) (SourceStatus, error)
	UpdateFeedMetadata(ctx context.Context, sourceID, etag, lastModified string) error
	SetSourceStatus(ctx context.Context, sourceID string, status SourceStatus) error
	ResetSourceHealth(ctx context.Context, sourceID string) error
}

// ArticleStore persists normalized articles and their mutable flags.
type ArticleStore interface {
	InsertArticle(ctx context.Context, a Article) (Article, error)
	GetArticle(ctx context.Context, id string) (Article, error)
	RecentArticles(ctx context.Context, excludeSourceID string, since time.Time, limit int) ([]Article, error)
	LinkArticleToGroup(ctx context.Context, articleID, groupID string, similarity float64) error
	UnanalyzedArticles(ctx context.Context, since time.Time, limit int) ([]Article, error)
	MarkArticleAnalyzed(ctx context.Context, articleID string, at time.Time) error
	UngroupedArticles(ctx context.Context, since time.Time, limit int) ([]Article, error)
	PurgeArticles(ctx context.Context, olderThan time.Time) (int64, error)
}

// GroupStore persists article groups.
type GroupStore interface {
	CreateGroup(ctx context.Context, g ArticleGroup) (ArticleGroup, error)
}

// CrawlJobStore persists per-run audit records.
type CrawlJobStore interface {
	CreateCrawlJob(ctx context.Context, job CrawlJob) error
	MarkCrawlJobRunning(ctx context.Context, jobID string, at time.Time) error
	FinalizeCrawlJob(ctx context.Context, jobID string, status JobStatus, result JobResult, errText string, at time.Time) error
	GetCrawlJob(ctx context.Context, jobID string) (CrawlJob, error)
	PurgeCrawlJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// WatchStore persists watch keywords and matches.
type WatchStore interface {
	// ActiveKeywords lists active keywords for one user, or for every user
	// when userID is empty (system-wide sources).
	ActiveKeywords(ctx context.Context, userID string) ([]WatchKeyword, error)
	UpsertWatchMatch(ctx context.Context, m WatchMatch) error
}

// DedupStore is what the deduplication engine needs from persistence.
type DedupStore interface {
	ArticleStore
	GroupStore
}

// RelevanceStore is what the watch relevance engine needs from persistence.
type RelevanceStore interface {
	ArticleStore
	WatchStore
	GetSource(ctx context.Context, id string) (Source, error)
}

// Store is the full persistence surface the pipeline consumes.
type Store interface {
	SourceStore
	ArticleStore
	GroupStore
	CrawlJobStore
	WatchStore
}

// Cache is a best-effort get/set-with-TTL layer. A missing or unreachable
// cache degrades to "always miss", never to an error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// Fetcher retrieves a URL over plain HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Renderer retrieves a URL through a script-executing browser.
type Renderer interface {
	Render(ctx context.Context, url string) (FetchResult, error)
	Close()
}

// Detector decides whether fetched HTML needs script execution to be useful.
type Detector interface {
	RequiresJS(body []byte) bool
}

// StoryRef carries the fields the same-story judge compares.
type StoryRef struct {
	Title   string
	Content string
}

// Verdict is the structured same-story answer from the semantic judge.
type Verdict struct {
	IsSameNews bool    `json:"isSameNews"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// RelevanceVerdict is the structured watch-relevance answer.
type RelevanceVerdict struct {
	IsRelevant bool    `json:"isRelevant"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Judge is the LLM-backed semantic judge. Implementations must tolerate
// being unavailable; callers fall back to hash/lexical-only behavior on error.
type Judge interface {
	SameStory(ctx context.Context, a, b StoryRef) (Verdict, error)
	Relevance(ctx context.Context, kw WatchKeyword, art Article) (RelevanceVerdict, error)
}

// Extractor pulls structured fields from a detail page as a fallback for
// articles the selector pass left partial.
type Extractor interface {
	ExtractFields(ctx context.Context, pageURL, html string) (ExtractedArticle, error)
}

// FeedParser fetches and normalizes a feed with conditional-request support.
type FeedParser interface {
	Fetch(ctx context.Context, feedURL, etag, lastModified string) (FeedResult, error)
}

// SelectorExtractor runs the two-phase rule-driven extraction over raw HTML.
type SelectorExtractor interface {
	ExtractLinks(html []byte, pageURL string, rules SelectorRules) ([]string, error)
	ExtractDetail(html []byte, pageURL string, rules SelectorRules) ExtractedArticle
	ExtractWithSelector(html []byte, selector string) (string, error)
}

// Deduper groups a freshly inserted article with duplicates from other sources.
type Deduper interface {
	ProcessNew(ctx context.Context, art Article) error
}

// RelevanceAnalyzer checks one article against the owner-scoped active watch
// keywords and marks it analyzed.
type RelevanceAnalyzer interface {
	Analyze(ctx context.Context, art Article, ownerID string) error
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

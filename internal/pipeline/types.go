// Package pipeline defines core types shared across the crawl, extract,
// deduplicate and watch subsystems.
package pipeline

import "time"

// SourceKind discriminates how a source is crawled.
type SourceKind string

// Source kinds persisted on the source record and carried by job payloads.
const (
	SourceKindSelector SourceKind = "selector"
	SourceKindFeed     SourceKind = "feed"
)

// SourceStatus is the operator-facing health state of a source.
type SourceStatus string

// Source status values.
const (
	SourceStatusActive SourceStatus = "ACTIVE"
	SourceStatusPaused SourceStatus = "PAUSED"
	SourceStatusError  SourceStatus = "ERROR"
)

// ConsecutiveFailureLimit is the failure streak that flips a source to ERROR.
const ConsecutiveFailureLimit = 5

// SelectorRules configures two-phase extraction for a selector source.
// ListItem and the detail-page selectors are required; article links are
// auto-detected from the list nodes, so there is no link selector.
type SelectorRules struct {
	ListItem string `json:"list_item" mapstructure:"list_item"`
	Title    string `json:"title" mapstructure:"title"`
	Date     string `json:"date,omitempty" mapstructure:"date"`
	Content  string `json:"content" mapstructure:"content"`
	Summary  string `json:"summary,omitempty" mapstructure:"summary"`
	Image    string `json:"image,omitempty" mapstructure:"image"`
}

// SourceHealth tracks crawl bookkeeping updated on every job completion.
type SourceHealth struct {
	TotalCrawls         int    `json:"total_crawls"`
	SuccessfulCrawls    int    `json:"successful_crawls"`
	FailedCrawls        int    `json:"failed_crawls"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	AvgDurationMs       int64  `json:"avg_duration_ms"`
}

// Source is a configured crawl origin, either selector-rule based or a feed.
// An empty OwnerID marks a system-wide source whose articles are matched
// against every user's watch keywords.
type Source struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	URL             string         `json:"url"`
	Kind            SourceKind     `json:"kind"`
	OwnerID         string         `json:"owner_id,omitempty"`
	Status          SourceStatus   `json:"status"`
	RefreshInterval time.Duration  `json:"refresh_interval"`
	Selectors       *SelectorRules `json:"selectors,omitempty"`
	FeedURL         string         `json:"feed_url,omitempty"`
	EnrichContent   bool           `json:"enrich_content,omitempty"`
	ContentSelector string         `json:"content_selector,omitempty"`
	LastEtag        string         `json:"last_etag,omitempty"`
	LastModified    string         `json:"last_modified,omitempty"`
	LastCrawledAt   *time.Time     `json:"last_crawled_at,omitempty"`
	Health          SourceHealth   `json:"health"`
}

// Article is one normalized piece of content. Content fields are immutable
// once set; only group linkage, read state and watch-analysis flags mutate.
type Article struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Content     string     `json:"content,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Partial     bool       `json:"partial"`
	ContentHash string     `json:"content_hash"`
	URLHash     string     `json:"url_hash"`
	GroupID     string     `json:"group_id,omitempty"`
	Similarity  float64    `json:"similarity,omitempty"`
	Read        bool       `json:"read"`
	Analyzed    bool       `json:"analyzed"`
	AnalyzedAt  *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ArticleGroup clusters articles from different sources judged to report the
// same event. Representative fields come from the member with longer content.
type ArticleGroup struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus represents the lifecycle state of a crawl job audit record.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// TriggerReason records why a job was enqueued.
type TriggerReason string

// Trigger reasons.
const (
	TriggerManual    TriggerReason = "manual"
	TriggerScheduled TriggerReason = "scheduled"
)

// JobPayload is the discriminated job contract handed to workers.
type JobPayload struct {
	SourceID         string         `json:"source_id"`
	URL              string         `json:"url"`
	SourceKind       SourceKind     `json:"source_kind"`
	TriggeredBy      TriggerReason  `json:"triggered_by"`
	Selectors        *SelectorRules `json:"selectors,omitempty"`
	FeedURL          string         `json:"feed_url,omitempty"`
	LastEtag         string         `json:"last_etag,omitempty"`
	LastFeedModified string         `json:"last_feed_modified,omitempty"`
	EnrichContent    bool           `json:"enrich_content,omitempty"`
	ContentSelector  string         `json:"content_selector,omitempty"`
}

// NewJobPayload builds the worker contract for one source crawl.
func NewJobPayload(src Source, reason TriggerReason) JobPayload {
	return JobPayload{
		SourceID:         src.ID,
		URL:              src.URL,
		SourceKind:       src.Kind,
		TriggeredBy:      reason,
		Selectors:        src.Selectors,
		FeedURL:          src.FeedURL,
		LastEtag:         src.LastEtag,
		LastFeedModified: src.LastModified,
		EnrichContent:    src.EnrichContent,
		ContentSelector:  src.ContentSelector,
	}
}

// JobResult summarizes one completed job run.
type JobResult struct {
	SourceID      string   `json:"source_id"`
	ItemsFound    int      `json:"items_found"`
	ItemsInserted int      `json:"items_inserted"`
	Errors        []string `json:"errors,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
}

// CrawlJob is the audit record persisted per orchestrator run per source.
type CrawlJob struct {
	ID            string        `json:"id"`
	SourceID      string        `json:"source_id"`
	Status        JobStatus     `json:"status"`
	TriggeredBy   TriggerReason `json:"triggered_by"`
	ItemsFound    int           `json:"items_found"`
	ItemsInserted int           `json:"items_inserted"`
	DurationMs    int64         `json:"duration_ms"`
	ErrorText     string        `json:"error_text,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// WatchKeyword is a user-owned topic term checked against incoming articles.
// Description is a free-text disambiguation hint passed to the semantic judge.
type WatchKeyword struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Term        string `json:"term"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	Color       string `json:"color,omitempty"`
}

// WatchConfidenceThreshold gates WatchMatch persistence.
const WatchConfidenceThreshold = 0.7

// WatchMatch links an article to a keyword; unique per (article, keyword).
type WatchMatch struct {
	ArticleID  string    `json:"article_id"`
	KeywordID  string    `json:"keyword_id"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExtractedArticle is the normalized shape produced by both the selector
// extractor and the feed parser before persistence.
type ExtractedArticle struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Content     string     `json:"content,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Partial     bool       `json:"partial"`
}

// FetchResult is raw HTML plus metadata from any fetch path.
type FetchResult struct {
	URL          string
	StatusCode   int
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	FromCache    bool
}

// FeedResult is the outcome of one conditional feed fetch. NotModified is an
// explicit success state; callers must not treat it as a failure or reset the
// stored validators.
type FeedResult struct {
	Items        []ExtractedArticle
	NotModified  bool
	Etag         string
	LastModified string
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Payload   JobPayload
	Attempt   int
	Submitted int64
}

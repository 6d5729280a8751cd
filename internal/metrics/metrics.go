// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	crawlJobsTotal       *prometheus.CounterVec
	crawlDurationSeconds *prometheus.HistogramVec
	fetchesTotal         *prometheus.CounterVec
	articlesTotal        *prometheus.CounterVec
	judgeCallsTotal      *prometheus.CounterVec
	judgeCacheHitsTotal  prometheus.Counter
	groupsCreatedTotal   prometheus.Counter
	watchMatchesTotal    prometheus.Counter
	activeWorkers        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_crawl_jobs_total",
				Help: "Total crawl jobs processed, labeled by source kind and status.",
			},
			[]string{"kind", "status"},
		)

		crawlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newswatch_crawl_duration_seconds",
				Help:    "Histogram of crawl job durations, labeled by source kind.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_fetches_total",
				Help: "Total page fetches, labeled by path (cache, probe, headless) and outcome.",
			},
			[]string{"path", "outcome"},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_articles_total",
				Help: "Total articles handled, labeled by outcome (inserted, duplicate, partial).",
			},
			[]string{"outcome"},
		)

		judgeCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_judge_calls_total",
				Help: "Total semantic judge calls, labeled by kind (same_story, relevance) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		judgeCacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newswatch_judge_cache_hits_total",
				Help: "Verdict cache hits that avoided a judge call.",
			},
		)

		groupsCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newswatch_groups_created_total",
				Help: "Article groups created by the deduplication engine.",
			},
		)

		watchMatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newswatch_watch_matches_total",
				Help: "Watch matches persisted above the confidence threshold.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "newswatch_active_workers",
				Help: "Workers currently processing a job.",
			},
		)
	})
}

// ObserveCrawlJob records one finished job.
func ObserveCrawlJob(kind, status string, duration time.Duration) {
	if crawlJobsTotal == nil {
		return
	}
	crawlJobsTotal.WithLabelValues(kind, status).Inc()
	crawlDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveFetch records one fetch attempt on a given path.
func ObserveFetch(path, outcome string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(path, outcome).Inc()
}

// ObserveArticle records one article outcome.
func ObserveArticle(outcome string) {
	if articlesTotal == nil {
		return
	}
	articlesTotal.WithLabelValues(outcome).Inc()
}

// ObserveJudgeCall records one semantic judge invocation.
func ObserveJudgeCall(kind, outcome string) {
	if judgeCallsTotal == nil {
		return
	}
	judgeCallsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveJudgeCacheHit records a verdict served from cache.
func ObserveJudgeCacheHit() {
	if judgeCacheHitsTotal == nil {
		return
	}
	judgeCacheHitsTotal.Inc()
}

// ObserveGroupCreated records a newly formed article group.
func ObserveGroupCreated() {
	if groupsCreatedTotal == nil {
		return
	}
	groupsCreatedTotal.Inc()
}

// ObserveWatchMatch records one persisted watch match.
func ObserveWatchMatch() {
	if watchMatchesTotal == nil {
		return
	}
	watchMatchesTotal.Inc()
}

// WorkerStarted marks a worker as busy.
func WorkerStarted() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// WorkerFinished marks a worker as idle.
func WorkerFinished() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

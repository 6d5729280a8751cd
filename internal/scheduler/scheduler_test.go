package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

type fakeStore struct {
	pipeline.Store

	sources []pipeline.Source
	listErr error

	jobs            []pipeline.CrawlJob
	articleCutoff   time.Time
	jobCutoff       time.Time
	articlesDropped int64
	jobsDropped     int64
}

func (s *fakeStore) ListActiveSources(ctx context.Context) ([]pipeline.Source, error) {
	return s.sources, s.listErr
}

func (s *fakeStore) CreateCrawlJob(ctx context.Context, job pipeline.CrawlJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *fakeStore) PurgeArticles(ctx context.Context, olderThan time.Time) (int64, error) {
	s.articleCutoff = olderThan
	return s.articlesDropped, nil
}

func (s *fakeStore) PurgeCrawlJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	s.jobCutoff = olderThan
	return s.jobsDropped, nil
}

type fakeEnqueuer struct {
	items []pipeline.QueueItem
	err   error
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, item pipeline.QueueItem) error {
	if e.err != nil {
		return e.err
	}
	e.items = append(e.items, item)
	return nil
}

type fakeSweeper struct {
	processed int
	calls     int
}

func (s *fakeSweeper) Sweep(ctx context.Context) (int, error) {
	s.calls++
	return s.processed, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return string(rune('0' + g.n)), nil
}

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestScheduler(store *fakeStore, enq *fakeEnqueuer, sweep Sweeper) *Scheduler {
	return New(store, enq, sweep, fixedClock{now: testNow}, &seqIDs{}, Config{}, zap.NewNop())
}

func TestRunSweepEnqueuesDueSourcesOnly(t *testing.T) {
	fresh := testNow.Add(-time.Minute)
	stale := testNow.Add(-2 * time.Hour)
	store := &fakeStore{sources: []pipeline.Source{
		{ID: "due-never-crawled", Kind: pipeline.SourceKindFeed, RefreshInterval: time.Hour},
		{ID: "due-stale", Kind: pipeline.SourceKindFeed, RefreshInterval: time.Hour, LastCrawledAt: &stale},
		{ID: "not-due", Kind: pipeline.SourceKindFeed, RefreshInterval: time.Hour, LastCrawledAt: &fresh},
		{ID: "no-interval", Kind: pipeline.SourceKindFeed, LastCrawledAt: &fresh},
	}}
	enq := &fakeEnqueuer{}
	s := newTestScheduler(store, enq, nil)

	require.Equal(t, 3, s.RunSweep(context.Background()))

	var ids []string
	for _, item := range enq.items {
		ids = append(ids, item.Payload.SourceID)
	}
	require.Equal(t, []string{"due-never-crawled", "due-stale", "no-interval"}, ids)

	require.Len(t, store.jobs, 3)
	require.Equal(t, pipeline.JobStatusPending, store.jobs[0].Status)
	require.Equal(t, pipeline.TriggerScheduled, store.jobs[0].TriggeredBy)
}

func TestRunSweepSkipsWhenAlreadyRunning(t *testing.T) {
	store := &fakeStore{sources: []pipeline.Source{{ID: "s1"}}}
	enq := &fakeEnqueuer{}
	s := newTestScheduler(store, enq, nil)

	s.sweeping.Store(true)
	require.Zero(t, s.RunSweep(context.Background()))
	require.Empty(t, enq.items)

	// The next run proceeds once the flag clears.
	s.sweeping.Store(false)
	require.Equal(t, 1, s.RunSweep(context.Background()))
}

func TestEnqueueJobCarriesSourceContract(t *testing.T) {
	src := pipeline.Source{
		ID:              "s1",
		URL:             "https://haber.example",
		Kind:            pipeline.SourceKindFeed,
		FeedURL:         "https://haber.example/rss",
		LastEtag:        `W/"abc"`,
		LastModified:    "Mon, 31 Aug 2026 10:00:00 GMT",
		EnrichContent:   true,
		ContentSelector: ".govde",
	}
	store := &fakeStore{}
	enq := &fakeEnqueuer{}
	s := newTestScheduler(store, enq, nil)

	require.NoError(t, s.enqueueJob(context.Background(), src, pipeline.TriggerScheduled))

	require.Len(t, enq.items, 1)
	payload := enq.items[0].Payload
	require.Equal(t, pipeline.SourceKindFeed, payload.SourceKind)
	require.Equal(t, `W/"abc"`, payload.LastEtag)
	require.Equal(t, "Mon, 31 Aug 2026 10:00:00 GMT", payload.LastFeedModified)
	require.True(t, payload.EnrichContent)
	require.Equal(t, ".govde", payload.ContentSelector)
	require.Equal(t, enq.items[0].JobID, store.jobs[0].ID)
}

func TestEnqueueJobFailuresDoNotStopSweep(t *testing.T) {
	store := &fakeStore{sources: []pipeline.Source{{ID: "s1"}, {ID: "s2"}}}
	enq := &fakeEnqueuer{err: errors.New("queue closed")}
	s := newTestScheduler(store, enq, nil)

	require.Zero(t, s.RunSweep(context.Background()))
	// Both sources were attempted; audit rows exist even though enqueue failed.
	require.Len(t, store.jobs, 2)
}

func TestHousekeepingUsesRetentionWindows(t *testing.T) {
	store := &fakeStore{articlesDropped: 12, jobsDropped: 4}
	s := newTestScheduler(store, &fakeEnqueuer{}, nil)

	s.runHousekeeping(context.Background())

	require.Equal(t, testNow.Add(-30*24*time.Hour), store.articleCutoff)
	require.Equal(t, testNow.Add(-7*24*time.Hour), store.jobCutoff)
}

func TestWatchSweepRuns(t *testing.T) {
	sweep := &fakeSweeper{processed: 3}
	s := newTestScheduler(&fakeStore{}, &fakeEnqueuer{}, sweep)

	s.runWatchSweep(context.Background())
	require.Equal(t, 1, sweep.calls)
}

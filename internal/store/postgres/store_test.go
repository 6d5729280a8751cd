package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock, zap.NewNop()), mock
}

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func TestInsertArticleMapsUniqueViolation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	art := pipeline.Article{
		ID:          "a1",
		SourceID:    "s1",
		Title:       "Ankara deprem oldu",
		URL:         "https://haber.example/1",
		ContentHash: "hash-1",
		URLHash:     "urlhash-1",
		CreatedAt:   testNow,
	}

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(art.ID, art.SourceID, art.Title, art.URL, art.PublishedAt,
			art.Content, art.Summary, art.ImageURL, art.Partial,
			art.ContentHash, art.URLHash, art.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	_, err := store.InsertArticle(context.Background(), art)
	require.ErrorIs(t, err, pipeline.ErrDuplicateArticle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleSucceeds(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	art := pipeline.Article{
		ID: "a1", SourceID: "s1", Title: "Haber", URL: "https://haber.example/1",
		ContentHash: "hash-1", URLHash: "urlhash-1", CreatedAt: testNow,
	}

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(art.ID, art.SourceID, art.Title, art.URL, art.PublishedAt,
			art.Content, art.Summary, art.ImageURL, art.Partial,
			art.ContentHash, art.URLHash, art.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	got, err := store.InsertArticle(context.Background(), art)
	require.NoError(t, err)
	require.Equal(t, art.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSourceHealthReturnsStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE sources SET").
		WithArgs("s1", false, "connection refused", int64(1200), pipeline.ConsecutiveFailureLimit).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(pipeline.SourceStatusError))

	status, err := store.UpdateSourceHealth(context.Background(), "s1", false, 1200, "connection refused")
	require.NoError(t, err)
	require.Equal(t, pipeline.SourceStatusError, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSourceNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.GetSource(context.Background(), "missing")
	require.ErrorIs(t, err, pipeline.ErrSourceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSourceDecodesSelectors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"id", "name", "url", "kind", "owner_id", "status",
		"refresh_interval_sec", "selectors", "feed_url", "enrich_content",
		"content_selector", "last_etag", "last_modified", "last_crawled_at",
		"total_crawls", "successful_crawls", "failed_crawls",
		"consecutive_failures", "last_error", "avg_duration_ms"}

	mock.ExpectQuery("SELECT").
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"s1", "Haber Sitesi", "https://haber.example", pipeline.SourceKindSelector,
			"u1", pipeline.SourceStatusActive, int64(900),
			[]byte(`{"list_item":".haber","title":"h1","content":".govde"}`),
			"", false, "", "", "", (*time.Time)(nil),
			10, 9, 1, 0, "", int64(340),
		))

	src, err := store.GetSource(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, src.RefreshInterval)
	require.NotNil(t, src.Selectors)
	require.Equal(t, ".haber", src.Selectors.ListItem)
	require.Equal(t, 9, src.Health.SuccessfulCrawls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFeedMetadataMissingSource(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE sources SET last_etag").
		WithArgs("missing", `W/"abc"`, "Mon, 31 Aug 2026 10:00:00 GMT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateFeedMetadata(context.Background(), "missing", `W/"abc"`, "Mon, 31 Aug 2026 10:00:00 GMT")
	require.ErrorIs(t, err, pipeline.ErrSourceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentArticlesScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"id", "source_id", "title", "url", "published_at",
		"content", "summary", "image_url", "partial", "content_hash",
		"url_hash", "group_id", "similarity", "read", "analyzed",
		"analyzed_at", "created_at"}
	since := testNow.AddDate(0, 0, -7)
	groupID := "g1"

	mock.ExpectQuery("SELECT").
		WithArgs("s1", since, 500).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("a1", "s2", "Haber bir", "https://a.example/1", (*time.Time)(nil),
				"içerik", "", "", false, "h1", "u1", &groupID, 0.91, false, true,
				&testNow, testNow).
			AddRow("a2", "s3", "Haber iki", "https://b.example/2", (*time.Time)(nil),
				"içerik", "", "", false, "h2", "u2", (*string)(nil), 0.0, false, false,
				(*time.Time)(nil), testNow))

	articles, err := store.RecentArticles(context.Background(), "s1", since, 500)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.Equal(t, "g1", articles[0].GroupID)
	require.Empty(t, articles[1].GroupID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeCrawlJobMissingJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE crawl_jobs SET").
		WithArgs("missing", pipeline.JobStatusCompleted, 3, 2, int64(4200), "", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.FinalizeCrawlJob(context.Background(), "missing",
		pipeline.JobStatusCompleted,
		pipeline.JobResult{ItemsFound: 3, ItemsInserted: 2, DurationMs: 4200},
		"", testNow)
	require.ErrorIs(t, err, pipeline.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCrawlJobRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := testNow.Add(-time.Minute)

	mock.ExpectQuery("SELECT").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source_id", "status",
			"triggered_by", "items_found", "items_inserted", "duration_ms",
			"error_text", "started_at", "finished_at", "created_at"}).
			AddRow("job-1", "s1", pipeline.JobStatusCompleted, pipeline.TriggerManual,
				5, 4, int64(3100), "", &started, &testNow, started))

	job, err := store.GetCrawlJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, pipeline.JobStatusCompleted, job.Status)
	require.Equal(t, 4, job.ItemsInserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveKeywordsScopesByUser(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"id", "user_id", "term", "description", "active", "color"}

	t.Run("single user", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, term").
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow("kw1", "u1", "deprem", "", true, "#ff0000"))

		keywords, err := store.ActiveKeywords(context.Background(), "u1")
		require.NoError(t, err)
		require.Len(t, keywords, 1)
		require.Equal(t, "deprem", keywords[0].Term)
	})

	t.Run("all users", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, term").
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow("kw1", "u1", "deprem", "", true, "").
				AddRow("kw2", "u2", "seçim", "", true, ""))

		keywords, err := store.ActiveKeywords(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, keywords, 2)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWatchMatch(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	m := pipeline.WatchMatch{
		ArticleID:  "a1",
		KeywordID:  "kw1",
		Confidence: 0.85,
		Reason:     "deprem haberi",
		CreatedAt:  testNow,
	}

	mock.ExpectExec("INSERT INTO watch_matches").
		WithArgs(m.ArticleID, m.KeywordID, m.Confidence, m.Reason, m.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertWatchMatch(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeCountsRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cutoff := testNow.AddDate(0, 0, -30)

	mock.ExpectExec("DELETE FROM articles").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := store.PurgeArticles(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

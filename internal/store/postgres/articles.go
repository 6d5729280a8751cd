package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// CREATE TABLE articles (
//   id           UUID PRIMARY KEY,
//   source_id    UUID NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
//   title        TEXT NOT NULL,
//   url          TEXT NOT NULL,
//   published_at TIMESTAMPTZ,
//   content      TEXT NOT NULL DEFAULT '',
//   summary      TEXT NOT NULL DEFAULT '',
//   image_url    TEXT NOT NULL DEFAULT '',
//   partial      BOOLEAN NOT NULL DEFAULT FALSE,
//   content_hash TEXT NOT NULL UNIQUE,
//   url_hash     TEXT NOT NULL,
//   group_id     UUID REFERENCES article_groups(id),
//   similarity   DOUBLE PRECISION NOT NULL DEFAULT 0,
//   read         BOOLEAN NOT NULL DEFAULT FALSE,
//   analyzed     BOOLEAN NOT NULL DEFAULT FALSE,
//   analyzed_at  TIMESTAMPTZ,
//   created_at   TIMESTAMPTZ NOT NULL
// );
// CREATE INDEX articles_created_at_idx ON articles (created_at DESC);
// CREATE INDEX articles_analyzed_idx ON articles (analyzed, created_at);

const articleColumns = `id, source_id, title, url, published_at, content, summary,
	image_url, partial, content_hash, url_hash, group_id, similarity, read,
	analyzed, analyzed_at, created_at`

const uniqueViolation = "23505"

// InsertArticle persists one article. The UNIQUE constraint on content_hash
// makes the (source, url) exact-duplicate check race-safe; a violating insert
// comes back as pipeline.ErrDuplicateArticle.
func (s *Store) InsertArticle(ctx context.Context, a pipeline.Article) (pipeline.Article, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO articles (id, source_id, title, url, published_at, content,
			summary, image_url, partial, content_hash, url_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.SourceID, a.Title, a.URL, a.PublishedAt, a.Content,
		a.Summary, a.ImageURL, a.Partial, a.ContentHash, a.URLHash, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return pipeline.Article{}, pipeline.ErrDuplicateArticle
		}
		return pipeline.Article{}, fmt.Errorf("insert article: %w", err)
	}
	return a, nil
}

// GetArticle loads one article by id.
func (s *Store) GetArticle(ctx context.Context, id string) (pipeline.Article, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	art, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Article{}, fmt.Errorf("article %s not found", id)
	}
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("get article: %w", err)
	}
	return art, nil
}

// RecentArticles returns dedup candidates from other sources within the
// lookback window, newest first, capped by limit.
func (s *Store) RecentArticles(ctx context.Context, excludeSourceID string, since time.Time, limit int) ([]pipeline.Article, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE source_id <> $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`,
		excludeSourceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent articles: %w", err)
	}
	return collectArticles(rows)
}

// LinkArticleToGroup attaches an article to a group with its similarity score.
func (s *Store) LinkArticleToGroup(ctx context.Context, articleID, groupID string, similarity float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE articles SET group_id = $2, similarity = $3 WHERE id = $1`,
		articleID, groupID, similarity)
	if err != nil {
		return fmt.Errorf("link article to group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %s not found", articleID)
	}
	return nil
}

// UnanalyzedArticles returns articles the watch sweep still has to visit.
func (s *Store) UnanalyzedArticles(ctx context.Context, since time.Time, limit int) ([]pipeline.Article, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE NOT analyzed AND created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("unanalyzed articles: %w", err)
	}
	return collectArticles(rows)
}

// MarkArticleAnalyzed stamps an article as watch-checked.
func (s *Store) MarkArticleAnalyzed(ctx context.Context, articleID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE articles SET analyzed = TRUE, analyzed_at = $2 WHERE id = $1`,
		articleID, at)
	if err != nil {
		return fmt.Errorf("mark article analyzed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %s not found", articleID)
	}
	return nil
}

// UngroupedArticles feeds the dedup backfill pass.
func (s *Store) UngroupedArticles(ctx context.Context, since time.Time, limit int) ([]pipeline.Article, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE group_id IS NULL AND created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("ungrouped articles: %w", err)
	}
	return collectArticles(rows)
}

// PurgeArticles drops articles past the retention window and returns the
// number of rows removed.
func (s *Store) PurgeArticles(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM articles WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge articles: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanArticle(row pgx.Row) (pipeline.Article, error) {
	var (
		a       pipeline.Article
		groupID *string
	)
	err := row.Scan(
		&a.ID, &a.SourceID, &a.Title, &a.URL, &a.PublishedAt, &a.Content,
		&a.Summary, &a.ImageURL, &a.Partial, &a.ContentHash, &a.URLHash,
		&groupID, &a.Similarity, &a.Read, &a.Analyzed, &a.AnalyzedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return pipeline.Article{}, err
	}
	if groupID != nil {
		a.GroupID = *groupID
	}
	return a, nil
}

func collectArticles(rows pgx.Rows) ([]pipeline.Article, error) {
	defer rows.Close()
	var articles []pipeline.Article
	for rows.Next() {
		art, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, art)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

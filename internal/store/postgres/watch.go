package postgres

import (
	"context"
	"fmt"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// CREATE TABLE watch_keywords (
//   id          UUID PRIMARY KEY,
//   user_id     TEXT NOT NULL,
//   term        TEXT NOT NULL,
//   description TEXT NOT NULL DEFAULT '',
//   active      BOOLEAN NOT NULL DEFAULT TRUE,
//   color       TEXT NOT NULL DEFAULT ''
// );
//
// CREATE TABLE watch_matches (
//   article_id UUID NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
//   keyword_id UUID NOT NULL REFERENCES watch_keywords(id) ON DELETE CASCADE,
//   confidence DOUBLE PRECISION NOT NULL,
//   reason     TEXT NOT NULL DEFAULT '',
//   created_at TIMESTAMPTZ NOT NULL,
//   PRIMARY KEY (article_id, keyword_id)
// );

// ActiveKeywords lists active keywords for one user, or for every user when
// userID is empty (system-wide sources).
func (s *Store) ActiveKeywords(ctx context.Context, userID string) ([]pipeline.WatchKeyword, error) {
	query := `SELECT id, user_id, term, description, active, color
		FROM watch_keywords WHERE active`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY term`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("active keywords: %w", err)
	}
	defer rows.Close()

	var keywords []pipeline.WatchKeyword
	for rows.Next() {
		var kw pipeline.WatchKeyword
		if err := rows.Scan(&kw.ID, &kw.UserID, &kw.Term, &kw.Description, &kw.Active, &kw.Color); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return keywords, nil
}

// UpsertWatchMatch inserts or refreshes the match for one (article, keyword)
// pair; re-analysis updates confidence and reason instead of duplicating.
func (s *Store) UpsertWatchMatch(ctx context.Context, m pipeline.WatchMatch) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO watch_matches (article_id, keyword_id, confidence, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (article_id, keyword_id) DO UPDATE
		SET confidence = EXCLUDED.confidence, reason = EXCLUDED.reason`,
		m.ArticleID, m.KeywordID, m.Confidence, m.Reason, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert watch match: %w", err)
	}
	return nil
}

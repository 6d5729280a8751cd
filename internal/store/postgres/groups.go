package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// CREATE TABLE article_groups (
//   id         UUID PRIMARY KEY,
//   title      TEXT NOT NULL,
//   content    TEXT NOT NULL DEFAULT '',
//   summary    TEXT NOT NULL DEFAULT '',
//   image_url  TEXT NOT NULL DEFAULT '',
//   created_at TIMESTAMPTZ NOT NULL
// );

// CreateGroup persists a new article group and returns it with its id set.
func (s *Store) CreateGroup(ctx context.Context, g pipeline.ArticleGroup) (pipeline.ArticleGroup, error) {
	if g.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return pipeline.ArticleGroup{}, fmt.Errorf("generate group id: %w", err)
		}
		g.ID = id.String()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO article_groups (id, title, content, summary, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.Title, g.Content, g.Summary, g.ImageURL, g.CreatedAt)
	if err != nil {
		return pipeline.ArticleGroup{}, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

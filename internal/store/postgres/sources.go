package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// CREATE TABLE sources (
//   id                   UUID PRIMARY KEY,
//   name                 TEXT NOT NULL,
//   url                  TEXT NOT NULL,
//   kind                 TEXT NOT NULL,
//   owner_id             TEXT NOT NULL DEFAULT '',
//   status               TEXT NOT NULL DEFAULT 'ACTIVE',
//   refresh_interval_sec BIGINT NOT NULL DEFAULT 0,
//   selectors            JSONB,
//   feed_url             TEXT NOT NULL DEFAULT '',
//   enrich_content       BOOLEAN NOT NULL DEFAULT FALSE,
//   content_selector     TEXT NOT NULL DEFAULT '',
//   last_etag            TEXT NOT NULL DEFAULT '',
//   last_modified        TEXT NOT NULL DEFAULT '',
//   last_crawled_at      TIMESTAMPTZ,
//   total_crawls         INT NOT NULL DEFAULT 0,
//   successful_crawls    INT NOT NULL DEFAULT 0,
//   failed_crawls        INT NOT NULL DEFAULT 0,
//   consecutive_failures INT NOT NULL DEFAULT 0,
//   last_error           TEXT NOT NULL DEFAULT '',
//   avg_duration_ms      BIGINT NOT NULL DEFAULT 0
// );

const sourceColumns = `id, name, url, kind, owner_id, status, refresh_interval_sec,
	selectors, feed_url, enrich_content, content_selector, last_etag, last_modified,
	last_crawled_at, total_crawls, successful_crawls, failed_crawls,
	consecutive_failures, last_error, avg_duration_ms`

// GetSource loads one source by id.
func (s *Store) GetSource(ctx context.Context, id string) (pipeline.Source, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Source{}, pipeline.ErrSourceNotFound
	}
	if err != nil {
		return pipeline.Source{}, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// ListActiveSources returns every source the scheduler should consider.
func (s *Store) ListActiveSources(ctx context.Context) ([]pipeline.Source, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE status = $1 ORDER BY name`,
		pipeline.SourceStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	defer rows.Close()

	var sources []pipeline.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceHealth applies one job outcome in a single atomic statement and
// returns the status the source landed on. The counters are incremented
// server-side so concurrent updates cannot lose writes; the ERROR transition
// happens in the same statement once the failure streak reaches the limit.
func (s *Store) UpdateSourceHealth(
	ctx context.Context,
	sourceID string,
	success bool,
	durationMs int64,
	errText string,
) (pipeline.SourceStatus, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE sources SET
			total_crawls = total_crawls + 1,
			successful_crawls = successful_crawls + CASE WHEN $2 THEN 1 ELSE 0 END,
			failed_crawls = failed_crawls + CASE WHEN $2 THEN 0 ELSE 1 END,
			consecutive_failures = CASE WHEN $2 THEN 0 ELSE consecutive_failures + 1 END,
			last_error = CASE WHEN $2 THEN '' ELSE $3 END,
			avg_duration_ms = (avg_duration_ms * total_crawls + $4) / (total_crawls + 1),
			last_crawled_at = NOW(),
			status = CASE
				WHEN $2 AND status = 'ERROR' THEN 'ACTIVE'
				WHEN NOT $2 AND status = 'ACTIVE' AND consecutive_failures + 1 >= $5 THEN 'ERROR'
				ELSE status
			END
		WHERE id = $1
		RETURNING status`,
		sourceID, success, errText, durationMs, pipeline.ConsecutiveFailureLimit)

	var status pipeline.SourceStatus
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", pipeline.ErrSourceNotFound
		}
		return "", fmt.Errorf("update source health: %w", err)
	}
	return status, nil
}

// UpdateFeedMetadata stores the conditional-request validators from a 200
// feed response. Callers must not invoke this on a 304.
func (s *Store) UpdateFeedMetadata(ctx context.Context, sourceID, etag, lastModified string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sources SET last_etag = $2, last_modified = $3 WHERE id = $1`,
		sourceID, etag, lastModified)
	if err != nil {
		return fmt.Errorf("update feed metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrSourceNotFound
	}
	return nil
}

// SetSourceStatus applies an operator-driven status change.
func (s *Store) SetSourceStatus(ctx context.Context, sourceID string, status pipeline.SourceStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sources SET status = $2 WHERE id = $1`, sourceID, status)
	if err != nil {
		return fmt.Errorf("set source status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrSourceNotFound
	}
	return nil
}

// ResetSourceHealth zeroes the failure bookkeeping and reactivates the source.
func (s *Store) ResetSourceHealth(ctx context.Context, sourceID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE sources SET
			consecutive_failures = 0,
			last_error = '',
			status = 'ACTIVE'
		WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("reset source health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrSourceNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (pipeline.Source, error) {
	var (
		src          pipeline.Source
		intervalSec  int64
		selectorsRaw []byte
	)
	err := row.Scan(
		&src.ID, &src.Name, &src.URL, &src.Kind, &src.OwnerID, &src.Status,
		&intervalSec, &selectorsRaw, &src.FeedURL, &src.EnrichContent,
		&src.ContentSelector, &src.LastEtag, &src.LastModified,
		&src.LastCrawledAt,
		&src.Health.TotalCrawls, &src.Health.SuccessfulCrawls,
		&src.Health.FailedCrawls, &src.Health.ConsecutiveFailures,
		&src.Health.LastError, &src.Health.AvgDurationMs,
	)
	if err != nil {
		return pipeline.Source{}, err
	}
	src.RefreshInterval = time.Duration(intervalSec) * time.Second
	if len(selectorsRaw) > 0 {
		var rules pipeline.SelectorRules
		if err := json.Unmarshal(selectorsRaw, &rules); err != nil {
			return pipeline.Source{}, fmt.Errorf("decode selectors: %w", err)
		}
		src.Selectors = &rules
	}
	return src, nil
}

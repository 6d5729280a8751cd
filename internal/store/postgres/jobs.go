package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// CREATE TABLE crawl_jobs (
//   id             UUID PRIMARY KEY,
//   source_id      UUID NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
//   status         TEXT NOT NULL DEFAULT 'PENDING',
//   triggered_by   TEXT NOT NULL,
//   items_found    INT NOT NULL DEFAULT 0,
//   items_inserted INT NOT NULL DEFAULT 0,
//   duration_ms    BIGINT NOT NULL DEFAULT 0,
//   error_text     TEXT NOT NULL DEFAULT '',
//   started_at     TIMESTAMPTZ,
//   finished_at    TIMESTAMPTZ,
//   created_at     TIMESTAMPTZ NOT NULL
// );
// CREATE INDEX crawl_jobs_created_at_idx ON crawl_jobs (created_at);

// CreateCrawlJob persists a PENDING audit record before the job is enqueued.
func (s *Store) CreateCrawlJob(ctx context.Context, job pipeline.CrawlJob) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO crawl_jobs (id, source_id, status, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.SourceID, job.Status, job.TriggeredBy, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create crawl job: %w", err)
	}
	return nil
}

// MarkCrawlJobRunning transitions PENDING to RUNNING.
func (s *Store) MarkCrawlJobRunning(ctx context.Context, jobID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_jobs SET status = $2, started_at = $3 WHERE id = $1`,
		jobID, pipeline.JobStatusRunning, at)
	if err != nil {
		return fmt.Errorf("mark crawl job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrJobNotFound
	}
	return nil
}

// FinalizeCrawlJob records the terminal status plus the run counters.
func (s *Store) FinalizeCrawlJob(
	ctx context.Context,
	jobID string,
	status pipeline.JobStatus,
	result pipeline.JobResult,
	errText string,
	at time.Time,
) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE crawl_jobs SET
			status = $2,
			items_found = $3,
			items_inserted = $4,
			duration_ms = $5,
			error_text = $6,
			finished_at = $7
		WHERE id = $1`,
		jobID, status, result.ItemsFound, result.ItemsInserted,
		result.DurationMs, errText, at)
	if err != nil {
		return fmt.Errorf("finalize crawl job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrJobNotFound
	}
	return nil
}

// GetCrawlJob loads one audit record by id.
func (s *Store) GetCrawlJob(ctx context.Context, jobID string) (pipeline.CrawlJob, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, source_id, status, triggered_by, items_found, items_inserted,
			duration_ms, error_text, started_at, finished_at, created_at
		FROM crawl_jobs WHERE id = $1`, jobID)

	var job pipeline.CrawlJob
	err := row.Scan(
		&job.ID, &job.SourceID, &job.Status, &job.TriggeredBy,
		&job.ItemsFound, &job.ItemsInserted, &job.DurationMs, &job.ErrorText,
		&job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.CrawlJob{}, pipeline.ErrJobNotFound
	}
	if err != nil {
		return pipeline.CrawlJob{}, fmt.Errorf("get crawl job: %w", err)
	}
	return job, nil
}

// PurgeCrawlJobs drops audit rows past the retention window.
func (s *Store) PurgeCrawlJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM crawl_jobs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge crawl jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

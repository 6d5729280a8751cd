package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// maxAttempts bounds how many times one job runs before it is finalized as
// FAILED; retryBaseDelay doubles per attempt.
const (
	maxAttempts    = 3
	retryBaseDelay = 5 * time.Second
)

// retryDelay returns the backoff before re-running a job that already ran
// attempt+1 times.
func retryDelay(attempt int) time.Duration {
	return retryBaseDelay << attempt
}

// requeue schedules the next attempt after the backoff without holding the
// worker loop. The job stays RUNNING in the audit record while it waits.
func (w *Worker) requeue(ctx context.Context, item pipeline.QueueItem) {
	next := pipeline.QueueItem{
		JobID:     item.JobID,
		Payload:   item.Payload,
		Attempt:   item.Attempt + 1,
		Submitted: w.clock.Now().Unix(),
	}
	delay := retryDelay(item.Attempt)

	go func() {
		select {
		case <-ctx.Done():
			w.abandonRetry(next)
			return
		case <-time.After(delay):
		}
		if err := w.queue.Enqueue(ctx, next); err != nil {
			w.logger.Error("retry enqueue failed",
				zap.String("job_id", next.JobID),
				zap.Int("attempt", next.Attempt),
				zap.Error(err))
			w.abandonRetry(next)
		}
	}()
}

// abandonRetry finalizes a job whose retry will never run, so the audit row
// does not stay RUNNING forever. Uses a fresh context because the worker's
// own context is already canceled on this path.
func (w *Worker) abandonRetry(item pipeline.QueueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := pipeline.JobResult{SourceID: item.Payload.SourceID}
	err := w.store.FinalizeCrawlJob(ctx, item.JobID, pipeline.JobStatusFailed,
		result, "retry abandoned during shutdown", w.clock.Now())
	if err != nil {
		w.logger.Error("finalize abandoned job failed",
			zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.logger.Warn("pending retry abandoned, job finalized as failed",
		zap.String("job_id", item.JobID),
		zap.Int("attempt", item.Attempt))
}

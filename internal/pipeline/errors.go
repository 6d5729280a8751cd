package pipeline

import "errors"

// Sentinel errors shared across subsystems.
var (
	// ErrDuplicateArticle reports an insert that raced or repeated an
	// existing (source, url) pair. Counted as a duplicate, never surfaced.
	ErrDuplicateArticle = errors.New("article already exists")

	// ErrNotModified reports a conditional feed fetch answered with 304.
	ErrNotModified = errors.New("feed not modified")

	// ErrRateLimited marks judge failures caused by provider rate limits or
	// quota; only these get local retry with backoff.
	ErrRateLimited = errors.New("judge rate limited")

	// ErrSourceNotFound reports a lookup for an unknown source.
	ErrSourceNotFound = errors.New("source not found")

	// ErrJobNotFound reports a lookup for an unknown crawl job.
	ErrJobNotFound = errors.New("crawl job not found")
)

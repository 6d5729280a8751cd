// Package feed fetches and normalizes RSS/Atom sources with conditional
// requests.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Config controls the feed fetcher.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	PartialMinChars int
	ContentMaxChars int
	SummaryMaxChars int
}

// Parser fetches feeds conditionally and normalizes entries into the same
// article shape the selector extractor produces.
type Parser struct {
	cfg    Config
	client *http.Client
	parser *gofeed.Parser
}

// New builds a Parser.
func New(cfg Config) *Parser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PartialMinChars <= 0 {
		cfg.PartialMinChars = 200
	}
	if cfg.ContentMaxChars <= 0 {
		cfg.ContentMaxChars = 5000
	}
	if cfg.SummaryMaxChars <= 0 {
		cfg.SummaryMaxChars = 500
	}
	return &Parser{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		parser: gofeed.NewParser(),
	}
}

// Fetch performs one conditional feed request. A 304 answer yields
// NotModified with zero items and empty validators; the caller must treat it
// as success and keep the stored ETag/Last-Modified untouched. A 200 answer
// always carries the response validators for the caller to persist.
func (p *Parser) Fetch(ctx context.Context, feedURL, etag, lastModified string) (pipeline.FeedResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return pipeline.FeedResult{}, fmt.Errorf("build feed request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pipeline.FeedResult{}, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return pipeline.FeedResult{NotModified: true, Items: []pipeline.ExtractedArticle{}}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return pipeline.FeedResult{}, fmt.Errorf("fetch feed %s: status %d", feedURL, resp.StatusCode)
	}

	parsed, err := p.parser.Parse(resp.Body)
	if err != nil {
		return pipeline.FeedResult{}, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := make([]pipeline.ExtractedArticle, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		item, ok := p.normalize(entry)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	return pipeline.FeedResult{
		Items:        items,
		Etag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// normalize maps one feed entry into the shared article shape. Entries
// without a usable link are skipped.
func (p *Parser) normalize(entry *gofeed.Item) (pipeline.ExtractedArticle, bool) {
	link := extractLink(entry)
	if link == "" {
		return pipeline.ExtractedArticle{}, false
	}

	content := stripHTML(pickContent(entry))
	summary := stripHTML(entry.Description)
	if summary == "" {
		summary = truncateRunes(content, p.cfg.SummaryMaxChars)
	}

	art := pipeline.ExtractedArticle{
		Title:    stripHTML(entry.Title),
		URL:      link,
		Content:  truncateRunes(content, p.cfg.ContentMaxChars),
		Summary:  truncateRunes(summary, p.cfg.SummaryMaxChars),
		ImageURL: extractImage(entry),
		Partial:  len([]rune(content)) < p.cfg.PartialMinChars,
	}
	if ts := publishedAt(entry); ts != nil {
		art.PublishedAt = ts
	}
	return art, true
}

// pickContent chooses entry content by priority: full encoded content,
// then content, then description, then summary.
func pickContent(entry *gofeed.Item) string {
	if encoded := encodedContent(entry); encoded != "" {
		return encoded
	}
	if entry.Content != "" {
		return entry.Content
	}
	if entry.Description != "" {
		return entry.Description
	}
	if summary, ok := entry.Custom["summary"]; ok {
		return summary
	}
	return ""
}

// encodedContent digs content:encoded out of the extension map; gofeed only
// maps it onto Item.Content for some feed dialects.
func encodedContent(entry *gofeed.Item) string {
	exts, ok := entry.Extensions["content"]
	if !ok {
		return ""
	}
	for _, ext := range exts["encoded"] {
		if ext.Value != "" {
			return ext.Value
		}
	}
	return ""
}

func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if len(entry.Links) > 0 && entry.Links[0] != "" {
		return entry.Links[0]
	}
	if len(entry.GUID) > 4 && entry.GUID[:4] == "http" {
		return entry.GUID
	}
	return ""
}

func publishedAt(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		utc := entry.PublishedParsed.UTC()
		return &utc
	}
	if entry.UpdatedParsed != nil {
		utc := entry.UpdatedParsed.UTC()
		return &utc
	}
	return nil
}

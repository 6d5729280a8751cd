// Package judge implements the LLM-backed semantic judge used by the
// deduplication and watch engines.
package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Config controls the judge client.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client implements pipeline.Judge and pipeline.Extractor against the
// Anthropic Messages API.
type Client struct {
	api     anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a judge client. An empty API key returns nil: the pipeline then
// runs in hash/lexical-only mode, which callers must tolerate.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:     anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   anthropic.Model(cfg.Model),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// SameStory asks whether two articles report the same real-world event.
func (c *Client) SameStory(ctx context.Context, a, b pipeline.StoryRef) (pipeline.Verdict, error) {
	prompt := sameStoryPrompt(a, b)
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return pipeline.Verdict{}, err
	}
	var verdict pipeline.Verdict
	if err := decodeJSON(raw, &verdict); err != nil {
		return pipeline.Verdict{}, fmt.Errorf("same-story verdict: %w", err)
	}
	verdict.Similarity = clamp01(verdict.Similarity)
	return verdict, nil
}

// Relevance asks whether an article is contextually relevant to a watch
// keyword, rejecting plain substring coincidence.
func (c *Client) Relevance(ctx context.Context, kw pipeline.WatchKeyword, art pipeline.Article) (pipeline.RelevanceVerdict, error) {
	prompt := relevancePrompt(kw, art)
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return pipeline.RelevanceVerdict{}, err
	}
	var verdict pipeline.RelevanceVerdict
	if err := decodeJSON(raw, &verdict); err != nil {
		return pipeline.RelevanceVerdict{}, fmt.Errorf("relevance verdict: %w", err)
	}
	verdict.Confidence = clamp01(verdict.Confidence)
	return verdict, nil
}

// ExtractFields recovers article fields from a markdown-reduced page; the
// selector extractor falls back to this for partial articles when enabled.
func (c *Client) ExtractFields(ctx context.Context, pageURL, html string) (pipeline.ExtractedArticle, error) {
	prompt := extractPrompt(pageURL, reduceToMarkdown(html))
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return pipeline.ExtractedArticle{}, err
	}
	var fields struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Summary string `json:"summary"`
	}
	if err := decodeJSON(raw, &fields); err != nil {
		return pipeline.ExtractedArticle{}, fmt.Errorf("extraction fields: %w", err)
	}
	return pipeline.ExtractedArticle{
		URL:     pageURL,
		Title:   fields.Title,
		Content: fields.Content,
		Summary: fields.Summary,
		Partial: fields.Content == "" && fields.Summary == "",
	}, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyError(err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("judge response contained no text block")
}

// classifyError tags rate-limit and quota failures with ErrRateLimited so
// callers can apply bounded retry only there.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode == 529 {
			return fmt.Errorf("%w: %v", pipeline.ErrRateLimited, err)
		}
	}
	return fmt.Errorf("judge call: %w", err)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// contentPreview bounds how much article body rides along in a prompt.
const contentPreview = 600

func sameStoryPrompt(a, b pipeline.StoryRef) string {
	var sb strings.Builder
	sb.WriteString("You compare two news articles and decide whether they report the same real-world event.\n")
	sb.WriteString("Different sources wording the same event differently still counts as the same news.\n")
	sb.WriteString("Articles about the same topic but different events are NOT the same news.\n\n")
	fmt.Fprintf(&sb, "Article 1 title: %s\n", a.Title)
	fmt.Fprintf(&sb, "Article 1 content: %s\n\n", preview(a.Content))
	fmt.Fprintf(&sb, "Article 2 title: %s\n", b.Title)
	fmt.Fprintf(&sb, "Article 2 content: %s\n\n", preview(b.Content))
	sb.WriteString(`Answer with only a JSON object: {"isSameNews": bool, "similarity": number 0-1, "reason": "short"}`)
	return sb.String()
}

func relevancePrompt(kw pipeline.WatchKeyword, art pipeline.Article) string {
	var sb strings.Builder
	sb.WriteString("You decide whether a news article is contextually about a watched topic.\n")
	sb.WriteString("A keyword appearing as a substring inside an unrelated word does NOT count.\n")
	sb.WriteString("Judge meaning, not string matching.\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n", kw.Term)
	if kw.Description != "" {
		fmt.Fprintf(&sb, "Topic description: %s\n", kw.Description)
	}
	fmt.Fprintf(&sb, "\nArticle title: %s\n", art.Title)
	if art.Summary != "" {
		fmt.Fprintf(&sb, "Article summary: %s\n", art.Summary)
	}
	fmt.Fprintf(&sb, "Article content: %s\n\n", preview(art.Content))
	sb.WriteString(`Answer with only a JSON object: {"isRelevant": bool, "confidence": number 0-1, "reason": "short"}`)
	return sb.String()
}

func extractPrompt(pageURL, markdown string) string {
	var sb strings.Builder
	sb.WriteString("Extract the news article from this page.\n")
	fmt.Fprintf(&sb, "Page URL: %s\n\nPage text:\n%s\n\n", pageURL, markdown)
	sb.WriteString(`Answer with only a JSON object: {"title": "...", "content": "full article text", "summary": "1-2 sentences"}`)
	return sb.String()
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) > contentPreview {
		return string(runes[:contentPreview])
	}
	return content
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// decodeJSON pulls the first JSON object out of a completion, tolerating
// markdown fences and prose around it.
func decodeJSON(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return fmt.Errorf("no JSON object in response %q", truncateForError(raw))
	}
	if err := json.Unmarshal([]byte(match), out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func truncateForError(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

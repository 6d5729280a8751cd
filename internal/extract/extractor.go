package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Limits bound the extracted field sizes.
type Limits struct {
	ContentMaxChars int
	SummaryMaxChars int
}

// Extractor runs the two-phase list/detail scrape for selector sources.
type Extractor struct {
	limits Limits
}

// New builds an Extractor; zero limits fall back to 5000/500 chars.
func New(limits Limits) *Extractor {
	if limits.ContentMaxChars <= 0 {
		limits.ContentMaxChars = 5000
	}
	if limits.SummaryMaxChars <= 0 {
		limits.SummaryMaxChars = 500
	}
	return &Extractor{limits: limits}
}

// ExtractLinks runs the list phase over a list page: select the configured
// list items, auto-detect each item's article link, resolve and dedupe. A
// page yielding zero nodes or zero links returns an empty slice, not an
// error; the caller decides whether that is a problem.
func (e *Extractor) ExtractLinks(html []byte, pageURL string, rules pipeline.SelectorRules) ([]string, error) {
	if rules.ListItem == "" {
		return nil, fmt.Errorf("selector rules missing list_item")
	}
	doc, err := Parse(html)
	if err != nil {
		return nil, err
	}

	var links []string
	for _, node := range doc.Select(rules.ListItem) {
		href := detectLink(node)
		if href == "" {
			continue
		}
		resolved := ResolveURL(pageURL, href)
		if resolved == "" || !strings.HasPrefix(resolved, "http") {
			continue
		}
		links = append(links, resolved)
	}
	return dedupeOrdered(links), nil
}

// ExtractDetail runs the detail phase on one article page. An article with
// neither content nor summary comes back flagged partial.
func (e *Extractor) ExtractDetail(html []byte, pageURL string, rules pipeline.SelectorRules) pipeline.ExtractedArticle {
	art := pipeline.ExtractedArticle{URL: pageURL}

	doc, err := Parse(html)
	if err != nil {
		art.Partial = true
		return art
	}

	art.Title = Sanitize(firstText(doc, rules.Title))
	art.Content = Truncate(Sanitize(firstText(doc, rules.Content)), e.limits.ContentMaxChars)
	art.Summary = Truncate(Sanitize(firstText(doc, rules.Summary)), e.limits.SummaryMaxChars)

	if raw := Sanitize(firstText(doc, rules.Date)); raw != "" {
		if ts := parseDate(raw); ts != nil {
			art.PublishedAt = ts
		}
	}

	if rules.Image != "" {
		if nodes := doc.Select(rules.Image); len(nodes) > 0 {
			if src := imageSource(nodes[0]); src != "" {
				art.ImageURL = ResolveURL(pageURL, src)
			}
		}
	}

	art.Partial = art.Content == "" && art.Summary == ""
	return art
}

// ExtractWithSelector pulls text with a single selector; the feed enrichment
// path uses this instead of the full two-phase extractor.
func (e *Extractor) ExtractWithSelector(html []byte, selector string) (string, error) {
	if selector == "" {
		return "", fmt.Errorf("content selector is empty")
	}
	doc, err := Parse(html)
	if err != nil {
		return "", err
	}
	text := Sanitize(firstText(doc, selector))
	return Truncate(text, e.limits.ContentMaxChars), nil
}

func firstText(doc Document, selector string) string {
	if selector == "" {
		return ""
	}
	nodes := doc.Select(selector)
	if len(nodes) == 0 {
		return ""
	}
	return nodes[0].Text()
}

// lazyAttrs are the usual deferred-image attributes, checked after src.
var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original", "data-lazy", "data-srcset"}

// imageSource pulls an image URL from the node: src first, then lazy-load
// attributes, then a nested img.
func imageSource(node Node) string {
	if src := attrValue(node, "src"); src != "" {
		return src
	}
	for _, attr := range lazyAttrs {
		if src := attrValue(node, attr); src != "" {
			return firstSrcsetEntry(src)
		}
	}
	for _, img := range node.Select("img") {
		if src := attrValue(img, "src"); src != "" {
			return src
		}
		for _, attr := range lazyAttrs {
			if src := attrValue(img, attr); src != "" {
				return firstSrcsetEntry(src)
			}
		}
	}
	return ""
}

func attrValue(node Node, name string) string {
	if v, ok := node.Attr(name); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// firstSrcsetEntry strips srcset descriptors ("url 2x, url2 480w") down to
// the first URL.
func firstSrcsetEntry(v string) string {
	if comma := strings.IndexByte(v, ','); comma >= 0 {
		v = v[:comma]
	}
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// dateLayouts are tried in order against sanitized date text.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
	"02/01/2006",
	"2 January 2006",
	"January 2, 2006",
}

func parseDate(raw string) *time.Time {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

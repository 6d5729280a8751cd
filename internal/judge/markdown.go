package judge

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// markdownMaxChars bounds what the extraction fallback sends to the model.
const markdownMaxChars = 8000

// reduceToMarkdown strips a page down to a compact text representation:
// script/style/nav noise removed, headings marked, paragraphs separated.
func reduceToMarkdown(html string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return truncateChars(html, markdownMaxChars)
	}
	doc.Find("script, style, noscript, iframe, nav, footer, header, aside, form").Remove()

	var sb strings.Builder
	doc.Find("h1, h2, h3, p, article, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			sb.WriteString("# " + text + "\n\n")
		case "h2", "h3":
			sb.WriteString("## " + text + "\n\n")
		default:
			sb.WriteString(text + "\n\n")
		}
	})

	out := strings.TrimSpace(sb.String())
	if out == "" {
		out = strings.TrimSpace(doc.Text())
	}
	return truncateChars(out, markdownMaxChars)
}

func truncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Heuristic implements pipeline.Detector with a handful of rule-based checks
// for pages that render their content with JavaScript.
type Heuristic struct {
	MinBodyTextLen int
}

// NewHeuristic creates a detector. A zero threshold falls back to 500 chars
// of visible body text.
func NewHeuristic(minBodyTextLen int) *Heuristic {
	if minBodyTextLen == 0 {
		minBodyTextLen = 500
	}
	return &Heuristic{MinBodyTextLen: minBodyTextLen}
}

// spaRoots are container IDs frameworks mount into; a near-empty one is a
// strong signal the real markup arrives via script.
var spaRoots = []string{"#root", "#app", "#__next", "#___gatsby", "#q-app"}

var frameworkMarkers = [][]byte{
	[]byte("data-reactroot"),
	[]byte("data-react-helmet"),
	[]byte("ng-version="),
	[]byte("data-v-app"),
	[]byte("__NUXT__"),
	[]byte("window.__INITIAL_STATE__"),
}

var loadingPlaceholders = []string{"loading...", "yükleniyor", "please wait"}

// RequiresJS reports whether the fetched HTML needs script execution before
// extraction is worthwhile.
func (h *Heuristic) RequiresJS(body []byte) bool {
	if len(body) == 0 {
		return true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// Unparseable markup: let the renderer take a shot.
		return true
	}

	text := strings.TrimSpace(doc.Find("body").Text())
	if len(text) < h.MinBodyTextLen {
		return true
	}
	if emptySPARoot(doc) {
		return true
	}
	for _, marker := range frameworkMarkers {
		if bytes.Contains(body, marker) && len(text) < h.MinBodyTextLen*2 {
			return true
		}
	}
	loweredText := strings.ToLower(text)
	if len(text) < h.MinBodyTextLen*2 {
		for _, placeholder := range loadingPlaceholders {
			if strings.Contains(loweredText, placeholder) {
				return true
			}
		}
	}
	return false
}

// emptySPARoot reports a known framework mount point whose text is near-empty.
func emptySPARoot(doc *goquery.Document) bool {
	for _, selector := range spaRoots {
		node := doc.Find(selector)
		if node.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(node.Text())) < 50 {
			return true
		}
	}
	return false
}

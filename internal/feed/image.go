package feed

import (
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
)

var imgSrcPattern = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)

// extractImage resolves an entry image by priority: media extension fields,
// then an image-typed enclosure, then the first <img src> in the content.
func extractImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}

	if media, ok := entry.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}

	for _, enc := range entry.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}

	for _, html := range []string{pickContent(entry), entry.Description} {
		if m := imgSrcPattern.FindStringSubmatch(html); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

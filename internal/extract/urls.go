package extract

import (
	"net/url"
	"strings"
)

// ResolveURL turns a possibly relative reference into an absolute URL
// against the page it appeared on. Protocol-relative (//cdn.x.com/a.jpg) and
// root-relative (/a.jpg) forms are handled explicitly; anything else goes
// through standard reference resolution.
func ResolveURL(pageURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" {
		return ref
	}

	switch {
	case strings.HasPrefix(ref, "//"):
		return base.Scheme + ":" + ref
	case strings.HasPrefix(ref, "/"):
		return base.Scheme + "://" + base.Host + ref
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

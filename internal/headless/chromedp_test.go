package headless

import (
	"strings"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer r.Close()

	if r.cfg.NavigationTimeout != 30*time.Second {
		t.Fatalf("expected default nav timeout 30s, got %v", r.cfg.NavigationTimeout)
	}
	if r.cfg.SettleDelay != 1500*time.Millisecond {
		t.Fatalf("expected default settle delay 1.5s, got %v", r.cfg.SettleDelay)
	}
	// The allocator must exist before the first Render; the browser itself
	// launches lazily.
	if r.allocator == nil {
		t.Fatal("allocator context not initialized")
	}
}

func TestBlockedPatternsCoverHeavyResources(t *testing.T) {
	t.Parallel()

	var hasImage, hasFont, hasMedia, hasTracker bool
	for _, p := range blockedPatterns {
		switch {
		case strings.HasSuffix(p, ".jpg"):
			hasImage = true
		case strings.HasSuffix(p, ".woff2"):
			hasFont = true
		case strings.HasSuffix(p, ".mp4"):
			hasMedia = true
		case strings.Contains(p, "doubleclick"):
			hasTracker = true
		}
	}
	if !hasImage || !hasFont || !hasMedia || !hasTracker {
		t.Fatalf("blocklist missing a resource class: image=%v font=%v media=%v tracker=%v",
			hasImage, hasFont, hasMedia, hasTracker)
	}
}

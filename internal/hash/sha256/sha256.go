// Package sha256 provides SHA-256 hashing utilities for dedup keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ArticleHash is the per-source dedup key over (sourceID, url). The storage
// layer carries a uniqueness constraint on this value.
func ArticleHash(sourceID, url string) string {
	sum := sha256.Sum256([]byte(sourceID + "|" + url))
	return hex.EncodeToString(sum[:])
}

// URLHash is the cross-source key over the canonical URL alone.
func URLHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// PairHash keys judge-verdict cache entries by the two titles, order
// independent so (a, b) and (b, a) share one entry.
func PairHash(titleA, titleB string) string {
	a := strings.TrimSpace(strings.ToLower(titleA))
	b := strings.TrimSpace(strings.ToLower(titleB))
	if a > b {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "|" + b))
	return hex.EncodeToString(sum[:])
}

// Package dedup implements layered duplicate detection: exact hash, lexical
// prefilter, and semantic judge.
package dedup

import (
	"strings"
	"unicode"
)

// turkishSuffixes is a fixed list of common inflection suffixes, longest
// first. Stripping one matching suffix is enough for prefilter purposes; the
// goal is to make "depremde" and "depremin" collide, not morphology.
// Single-vowel endings are deliberately absent: stripping the final "a" from
// a bare word like "ankara" would stop it colliding with "ankarada".
var turkishSuffixes = []string{
	"larından", "lerinden",
	"larında", "lerinde",
	"lardan", "lerden",
	"larda", "lerde",
	"ların", "lerin",
	"ları", "leri",
	"dan", "den", "tan", "ten",
	"lar", "ler",
	"nın", "nin", "nun", "nün",
	"da", "de", "ta", "te",
	"ın", "in", "un", "ün",
	"ya", "ye",
	"sı", "si", "su", "sü",
}

// turkishLower lowercases with Turkish casing rules so "İ" maps to "i" and
// "I" to "ı".
func turkishLower(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'İ':
			return 'i'
		case 'I':
			return 'ı'
		}
		return unicode.ToLower(r)
	}, s)
}

// NormalizeTitle lowercases, strips punctuation and collapses whitespace.
// The backfill title-equality pass compares these values directly.
func NormalizeTitle(title string) string {
	lowered := turkishLower(title)
	var b strings.Builder
	b.Grow(len(lowered))
	inSpace := false
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if inSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inSpace = false
			b.WriteRune(r)
			continue
		}
		inSpace = true
	}
	return b.String()
}

// StemTokens tokenizes a normalized title into lightly stemmed tokens.
// Tokens shorter than 3 runes are dropped; tokens of 4+ runes lose one
// matching suffix as long as at least 2 runes remain.
func StemTokens(title string) []string {
	fields := strings.Fields(NormalizeTitle(title))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		runes := []rune(field)
		if len(runes) < 3 {
			continue
		}
		tokens = append(tokens, stem(runes))
	}
	return tokens
}

func stem(runes []rune) string {
	if len(runes) < 4 {
		return string(runes)
	}
	word := string(runes)
	for _, suffix := range turkishSuffixes {
		if !strings.HasSuffix(word, suffix) {
			continue
		}
		remaining := len(runes) - len([]rune(suffix))
		if remaining < 2 {
			continue
		}
		return string(runes[:remaining])
	}
	return word
}

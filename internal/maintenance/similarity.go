package maintenance

import (
	"regexp"
	"strings"
)

// Scorer compares two strings and returns a similarity score in [0,1].
// It is injected into the resolver and consolidator; the engine is agnostic
// to whether it is string- or vector-based.
type Scorer func(a, b string) float64

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// NormalizeName canonicalizes a name for exact-duplicate grouping:
// lowercase, trimmed, punctuation stripped, whitespace collapsed.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = punctRe.ReplaceAllString(name, "")
	name = whitespaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// OverlapScorer is the default similarity scorer: containment ratio for
// near-identical strings, word overlap for longer content.
func OverlapScorer(a, b string) float64 {
	a, b = NormalizeName(a), NormalizeName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	// One contained in the other: score by length ratio
	if strings.Contains(a, b) || strings.Contains(b, a) {
		la, lb := len(a), len(b)
		if la > lb {
			la, lb = lb, la
		}
		return float64(la) / float64(lb)
	}

	// Word overlap for multi-word content
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		if len(w) > 3 {
			seen[w] = true
		}
	}
	matches := 0
	for _, w := range wordsB {
		if len(w) > 3 && seen[w] {
			matches++
		}
	}

	avgWords := float64(len(wordsA)+len(wordsB)) / 2.0
	if avgWords == 0 {
		return 0
	}
	score := float64(matches) / avgWords
	if score > 1 {
		score = 1
	}
	return score
}

package textutil

import (
	"strings"
	"sync"

	"github.com/orsinium-labs/stopwords"
)

var (
	stopwordsOnce    sync.Once
	stopwordsChecker *stopwords.Stopwords
)

// stopwordChecker lazily loads the English stopword list, deferred so
// packages that never run fuzzy search don't pay for it.
func stopwordChecker() *stopwords.Stopwords {
	stopwordsOnce.Do(func() {
		checker := stopwords.MustGet("en")
		stopwordsChecker = checker
	})
	return stopwordsChecker
}

// IsStopword reports whether word is a common English stopword ("the",
// "and", ...), case-insensitively. Used by the fuzzy-match phase (§4.5
// Phase 3) to skip Levenshtein comparisons that would otherwise produce
// noisy false positives against short, frequent words.
func IsStopword(word string) bool {
	return stopwordChecker().Contains(strings.ToLower(word))
}

// FilterStopwords returns words with stopwords removed, preserving order.
func FilterStopwords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !IsStopword(w) {
			out = append(out, w)
		}
	}
	return out
}

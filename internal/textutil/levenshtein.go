// Package textutil implements the small text primitives shared by the
// search subsystems: Levenshtein distance, Unicode-aware word splitting,
// and the title-line stripper used by the document assembler (§4.9).
package textutil

import "strings"

// Levenshtein computes edit distance between a and b on code points
// (runes), not bytes, case-folded. Classic dynamic-programming matrix.
func Levenshtein(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// FuzzyThreshold returns the maximum edit distance a term of the given
// length may be from a candidate word and still count as a fuzzy match
// (§4.5 Phase 3, §8 invariant 8): ≤5 characters gets τ=2, longer gets τ=3.
func FuzzyThreshold(term string) int {
	if len([]rune(term)) <= 5 {
		return 2
	}
	return 3
}

package textutil

import (
	"strings"
	"unicode"
)

// SplitWords splits s into maximal runs of letters and digits (§4.9),
// discarding everything else (whitespace, punctuation, symbols).
func SplitWords(s string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current = append(current, r)
			continue
		}
		flush()
	}
	flush()
	return words
}

// StripLeadingTitle removes a note's duplicated leading title line from
// its decoded body text, along with the blank line(s) Notes inserts
// between the title and the body (§4.4, scenario S1). The comparison is
// case-insensitive, matching the whole first line against title; if they
// don't match, text is returned unchanged.
//
// Returns the stripped text and the number of runes removed from the
// front, so callers (the document assembler) can shrink the leading
// style runs by the same amount.
func StripLeadingTitle(text, title string) (string, int) {
	if title == "" {
		return text, 0
	}

	rt := []rune(text)
	nl := -1
	for i, r := range rt {
		if r == '\n' {
			nl = i
			break
		}
	}

	lineEnd := nl
	if lineEnd < 0 {
		lineEnd = len(rt)
	}
	firstLine := string(rt[:lineEnd])
	if !strings.EqualFold(firstLine, title) {
		return text, 0
	}

	removed := lineEnd
	if nl >= 0 {
		removed++ // consume the newline that terminates the title line
	}
	rest := rt[removed:]
	for len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
		removed++
	}

	return string(rest), removed
}

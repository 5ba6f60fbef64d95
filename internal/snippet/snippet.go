// Package snippet extracts a windowed excerpt around the first query
// match in a text and highlights every term occurrence within it (§4.8).
package snippet

import (
	"strings"
	"unicode"
)

// Extract locates the earliest lowercased occurrence of any term in
// text, takes a window of w runes to either side (plus 20 trailing
// runes of lookahead), and wraps every case-insensitive match of every
// term in the extracted window with "**...**". Returns ok=false if no
// term matches anywhere in text — callers must not substitute the empty
// string for "no match" (§8 invariant 9).
func Extract(text string, terms []string, w int) (string, bool) {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))

	pos := -1
	for _, term := range terms {
		t := []rune(strings.ToLower(term))
		if len(t) == 0 {
			continue
		}
		if idx := indexRunes(lower, t); idx >= 0 && (pos < 0 || idx < pos) {
			pos = idx
		}
	}
	if pos < 0 {
		return "", false
	}

	start := pos - w
	if start < 0 {
		start = 0
	}
	end := pos + w + 20
	if end > len(runes) {
		end = len(runes)
	}

	window := string(runes[start:end])
	highlighted := highlight(window, terms)

	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(highlighted)
	if end < len(runes) {
		b.WriteString("…")
	}

	return collapseWhitespace(b.String()), true
}

// span is a half-open [start, end) rune range within a highlighted window.
type span struct{ start, end int }

// highlight wraps every case-insensitive, non-overlapping occurrence of
// any term in window with "**...**". Overlapping matches across terms
// are merged into a single highlighted span.
func highlight(window string, terms []string) string {
	runes := []rune(window)
	lower := []rune(strings.ToLower(window))

	var spans []span
	for _, term := range terms {
		t := []rune(strings.ToLower(term))
		if len(t) == 0 {
			continue
		}
		for i := 0; i+len(t) <= len(lower); i++ {
			if runesEqual(lower[i:i+len(t)], t) {
				spans = append(spans, span{i, i + len(t)})
			}
		}
	}
	if len(spans) == 0 {
		return window
	}

	spans = mergeSpans(spans)

	var b strings.Builder
	prev := 0
	for _, s := range spans {
		b.WriteString(string(runes[prev:s.start]))
		b.WriteString("**")
		b.WriteString(string(runes[s.start:s.end]))
		b.WriteString("**")
		prev = s.end
	}
	b.WriteString(string(runes[prev:]))
	return b.String()
}

func mergeSpans(spans []span) []span {
	// simple insertion sort by start; span counts per snippet are tiny.
	for i := 1; i < len(spans); i++ {
		j := i
		for j > 0 && spans[j-1].start > spans[j].start {
			spans[j-1], spans[j] = spans[j], spans[j-1]
			j--
		}
	}

	var merged []span
	for _, s := range spans {
		if len(merged) > 0 && s.start <= merged[len(merged)-1].end {
			if s.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if runesEqual(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}

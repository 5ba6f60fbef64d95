// Package searchmodel holds the result type shared by every search
// backend (C5-C7) so callers can merge basic, FTS, and semantic hits
// without each backend depending on the others (§3).
package searchmodel

import "github.com/lasmarois/notesbridge/internal/store"

// Source identifies which search backend produced a Result.
type Source string

const (
	SourceBasic    Source = "basic"
	SourceFTS      Source = "fts"
	SourceSemantic Source = "semantic"
	SourceMulti    Source = "multi"
)

// Result is a note summary annotated with the backend that found it and,
// optionally, a relevance score and a highlighted snippet.
type Result struct {
	Note     store.NoteSummary
	Source   Source
	HasScore bool
	Score    float64 // 0..1, meaningful only if HasScore
	Snippet  string  // empty if no snippet was produced
}

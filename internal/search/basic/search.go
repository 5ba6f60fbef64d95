package basic

import (
	"strings"

	"github.com/coregx/ahocorasick"

	"github.com/lasmarois/notesbridge/internal/blob"
	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/searchmodel"
	"github.com/lasmarois/notesbridge/internal/snippet"
	"github.com/lasmarois/notesbridge/internal/store"
	"github.com/lasmarois/notesbridge/internal/textutil"
)

// Options bounds a Basic Search request (§4.5).
type Options struct {
	Query       string
	Limit       int
	ContentScan bool
	Fuzzy       bool

	FolderID       string
	ModifiedAfter  *int64
	ModifiedBefore *int64
	CreatedAfter   *int64
	CreatedBefore  *int64
}

func (o Options) filter() store.ListFilter {
	return store.ListFilter{
		FolderID:       o.FolderID,
		ModifiedAfter:  o.ModifiedAfter,
		ModifiedBefore: o.ModifiedBefore,
		CreatedAfter:   o.CreatedAfter,
		CreatedBefore:  o.CreatedBefore,
	}
}

// Search runs the three-phase pipeline: an indexed SQL scan, then (if
// requested and the result set is still under the limit) a content scan
// over decoded bodies, then a Levenshtein fuzzy fallback over
// title|folder. Phases run in that order; within each phase, results
// are modified-descending (§4.5).
func Search(tok cancel.Token, s *store.Store, opts Options) ([]searchmodel.Result, error) {
	terms, matchAll := ParseQuery(opts.Query)
	if len(terms) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var results []searchmodel.Result

	phase1Filter := opts.filter()
	phase1Filter.Limit = opts.Limit
	indexed, err := s.SearchIndexed(tok, terms, matchAll, phase1Filter)
	if err != nil {
		return nil, err
	}
	for _, n := range indexed {
		seen[n.ID] = true
		results = append(results, indexedResult(n, terms))
	}

	if underLimit(len(results), opts.Limit) && opts.ContentScan {
		if err := contentScan(tok, s, opts, terms, matchAll, seen, &results); err != nil {
			return nil, err
		}
	}

	if underLimit(len(results), opts.Limit) && opts.Fuzzy {
		if err := fuzzyScan(tok, s, opts, terms, matchAll, seen, &results); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func underLimit(have, limit int) bool {
	return limit <= 0 || have < limit
}

func indexedResult(n store.NoteSummary, terms []string) searchmodel.Result {
	searchable := n.Title + " | " + n.Snippet + " | " + n.FolderName
	r := searchmodel.Result{Note: n, Source: searchmodel.SourceBasic}
	if s, ok := snippet.Extract(searchable, terms, 40); ok {
		r.Snippet = s
	}
	return r
}

func contentScan(tok cancel.Token, s *store.Store, opts Options, terms []string, matchAll bool, seen map[string]bool, results *[]searchmodel.Result) error {
	notes, err := s.ListNotes(tok, opts.filter())
	if err != nil {
		return err
	}

	ac, err := termAutomaton(terms)
	if err != nil {
		return err
	}

	for _, n := range notes {
		if err := tok.Check(); err != nil {
			return err
		}
		if !underLimit(len(*results), opts.Limit) {
			break
		}
		if seen[n.ID] {
			continue
		}

		raw, err := s.FetchBlobByPrimaryKey(n.PrimaryKey)
		if err != nil {
			continue
		}
		doc, err := blob.Decode(raw)
		if err != nil {
			continue
		}

		lower := strings.ToLower(doc.Text)
		if !matchesViaAutomaton(ac, lower, len(terms), matchAll) {
			continue
		}

		seen[n.ID] = true
		r := searchmodel.Result{Note: n, Source: searchmodel.SourceBasic}
		if snip, ok := snippet.Extract(doc.Text, terms, 60); ok {
			r.Snippet = snip
		}
		*results = append(*results, r)
	}
	return nil
}

func fuzzyScan(tok cancel.Token, s *store.Store, opts Options, terms []string, matchAll bool, seen map[string]bool, results *[]searchmodel.Result) error {
	notes, err := s.ListNotes(tok, opts.filter())
	if err != nil {
		return err
	}

	for _, n := range notes {
		if err := tok.Check(); err != nil {
			return err
		}
		if !underLimit(len(*results), opts.Limit) {
			break
		}
		if seen[n.ID] {
			continue
		}

		searchable := n.Title + " | " + n.FolderName
		lower := strings.ToLower(searchable)
		words := textutil.SplitWords(searchable)
		if !matchesFuzzyPredicate(lower, words, terms, matchAll) {
			continue
		}

		seen[n.ID] = true
		r := searchmodel.Result{Note: n, Source: searchmodel.SourceBasic}
		if snip, ok := snippet.Extract(searchable, terms, 40); ok {
			r.Snippet = snip
		}
		*results = append(*results, r)
	}
	return nil
}

// termAutomaton compiles terms into a single Aho-Corasick automaton so the
// content-scan phase finds every literal term hit in one pass over a note's
// decoded text, rather than N separate strings.Contains scans.
func termAutomaton(terms []string) (*ahocorasick.Automaton, error) {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return ahocorasick.NewBuilder().
		AddStrings(lowered).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
}

// matchesViaAutomaton reports whether lowerText satisfies the AND/OR
// combinator over the automaton's compiled terms. Pattern IDs line up
// positionally with the terms slice passed to termAutomaton.
func matchesViaAutomaton(ac *ahocorasick.Automaton, lowerText string, numTerms int, matchAll bool) bool {
	hit := make([]bool, numTerms)
	for _, m := range ac.FindAllOverlapping([]byte(lowerText)) {
		hit[m.PatternID] = true
	}
	for _, h := range hit {
		if matchAll && !h {
			return false
		}
		if !matchAll && h {
			return true
		}
	}
	return matchAll
}

func matchesFuzzyPredicate(lowerText string, words, terms []string, matchAll bool) bool {
	for _, t := range terms {
		hit := termFuzzyMatches(t, lowerText, words)
		if matchAll && !hit {
			return false
		}
		if !matchAll && hit {
			return true
		}
	}
	return matchAll
}

// termFuzzyMatches reports whether term's substring occurs in lowerText,
// or any non-stopword candidate word is within its Levenshtein threshold
// (§4.5 Phase 3; stopword skip per the §4.9 wiring of
// orsinium-labs/stopwords).
func termFuzzyMatches(term, lowerText string, words []string) bool {
	if strings.Contains(lowerText, strings.ToLower(term)) {
		return true
	}
	threshold := textutil.FuzzyThreshold(term)
	for _, w := range words {
		if textutil.IsStopword(w) {
			continue
		}
		if textutil.Levenshtein(term, w) <= threshold {
			return true
		}
	}
	return false
}

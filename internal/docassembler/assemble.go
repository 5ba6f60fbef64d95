// Package docassembler ties together the blob decoder, the table
// parser, and the store accessor to produce a fully resolved document
// for a single note (C4, §4.4).
package docassembler

import (
	"sort"
	"strings"

	"github.com/lasmarois/notesbridge/internal/blob"
	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/store"
	"github.com/lasmarois/notesbridge/internal/table"
	"github.com/lasmarois/notesbridge/internal/textutil"
)

// ResolvedTable pairs a table reference's wire position in the document
// with its reconstructed rows.
type ResolvedTable struct {
	UUID     string
	Position int
	Table    table.Table
}

// Hashtag is a hashtag inline attachment attached to a note.
type Hashtag struct {
	DisplayText string
}

// NoteLink is an inter-note link inline attachment. TargetNoteID is the
// UUID extracted from an applenotes:note/<UUID> URL; empty if the URL
// didn't parse as expected.
type NoteLink struct {
	DisplayText  string
	TargetNoteID string
}

// Document is the fully assembled view of a note: decoded styled text
// with the leading title line stripped, resolved tables in document
// order, and the hashtags/links gathered from its inline attachments.
type Document struct {
	ID       string
	Title    string
	Text     string
	Runs     []blob.Run
	Tables   []ResolvedTable
	Hashtags []Hashtag
	Links    []NoteLink
}

const notePrefix = "applenotes:note/"

// Assemble fetches a note's blob, decodes it, resolves every table
// reference, strips the duplicated leading title line, and attaches
// hashtags and note links (§4.4).
func Assemble(tok cancel.Token, s *store.Store, noteID string) (Document, error) {
	summary, err := s.GetNoteByID(noteID)
	if err != nil {
		return Document{}, err
	}

	if err := tok.Check(); err != nil {
		return Document{}, err
	}

	raw, err := s.FetchBlobByPrimaryKey(summary.PrimaryKey)
	if err != nil {
		return Document{}, err
	}

	doc, err := blob.Decode(raw)
	if err != nil {
		return Document{}, err
	}

	sortedRefs := append([]blob.TableRef(nil), doc.Tables...)
	sort.Slice(sortedRefs, func(i, j int) bool { return sortedRefs[i].Position < sortedRefs[j].Position })

	resolved := make([]ResolvedTable, 0, len(sortedRefs))
	for _, ref := range sortedRefs {
		if err := tok.Check(); err != nil {
			return Document{}, err
		}
		mergeable, err := s.FetchMergeableDataByUUID(ref.UUID)
		if err != nil {
			return Document{}, err
		}
		resolved = append(resolved, ResolvedTable{
			UUID:     ref.UUID,
			Position: ref.Position,
			Table:    table.Parse(mergeable),
		})
	}

	text, removed := textutil.StripLeadingTitle(doc.Text, summary.Title)
	runs := shrinkLeadingRuns(doc.Runs, removed)

	hashtags, err := fetchHashtags(s, summary.PrimaryKey)
	if err != nil {
		return Document{}, err
	}
	links, err := fetchLinks(s, summary.PrimaryKey)
	if err != nil {
		return Document{}, err
	}

	return Document{
		ID:       summary.ID,
		Title:    summary.Title,
		Text:     text,
		Runs:     runs,
		Tables:   resolved,
		Hashtags: hashtags,
		Links:    links,
	}, nil
}

// shrinkLeadingRuns drops n code points' worth of run length from the
// front of runs, removing runs entirely once consumed, so the run list
// stays aligned with the title-stripped text.
func shrinkLeadingRuns(runs []blob.Run, n int) []blob.Run {
	if n <= 0 {
		return runs
	}
	out := make([]blob.Run, 0, len(runs))
	for _, r := range runs {
		if n >= r.Length {
			n -= r.Length
			continue
		}
		r.Length -= n
		n = 0
		out = append(out, r)
	}
	return out
}

func fetchHashtags(s *store.Store, notePK int64) ([]Hashtag, error) {
	rows, err := s.ListInlineAttachments(notePK, store.UTIHashtag)
	if err != nil {
		return nil, err
	}
	out := make([]Hashtag, 0, len(rows))
	for _, r := range rows {
		out = append(out, Hashtag{DisplayText: r.DisplayText})
	}
	return out, nil
}

func fetchLinks(s *store.Store, notePK int64) ([]NoteLink, error) {
	rows, err := s.ListInlineAttachments(notePK, store.UTILink)
	if err != nil {
		return nil, err
	}
	out := make([]NoteLink, 0, len(rows))
	for _, r := range rows {
		out = append(out, NoteLink{
			DisplayText:  r.DisplayText,
			TargetNoteID: targetNoteID(r.TargetURL),
		})
	}
	return out, nil
}

// targetNoteID extracts <UUID> from applenotes:note/<UUID>[?...]; returns
// "" if url doesn't have that shape.
func targetNoteID(url string) string {
	if !strings.HasPrefix(url, notePrefix) {
		return ""
	}
	rest := url[len(notePrefix):]
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

package semantic

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/noteserr"
	"github.com/lasmarois/notesbridge/internal/store"
)

const (
	wireLenDel     = 2
	wireVarint     = 0
	fieldDocument  = 2
	fieldNote      = 3
	fieldNoteText  = 2
	fieldNoteRuns  = 5
	fieldRunLength = 1
)

type encoder struct{ buf bytes.Buffer }

func (e *encoder) tag(field, wt int) { e.varint(uint64(field)<<3 | uint64(wt)) }

func (e *encoder) varint(v uint64) {
	for v >= 0x80 {
		e.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	e.buf.WriteByte(byte(v))
}

func (e *encoder) lenDelimited(field int, payload []byte) {
	e.tag(field, wireLenDel)
	e.varint(uint64(len(payload)))
	e.buf.Write(payload)
}

func (e *encoder) varintField(field int, v uint64) {
	e.tag(field, wireVarint)
	e.varint(v)
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func encodeNoteBlob(text string) []byte {
	var note encoder
	note.lenDelimited(fieldNoteText, []byte(text))
	note.lenDelimited(fieldNoteRuns, func() []byte {
		var run encoder
		run.varintField(fieldRunLength, uint64(len([]rune(text))))
		return run.bytes()
	}())
	var doc encoder
	doc.lenDelimited(fieldNote, note.bytes())
	var top encoder
	top.lenDelimited(fieldDocument, doc.bytes())

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write(top.bytes())
	w.Close()
	return gz.Bytes()
}

const testSchema = `
CREATE TABLE Z_PRIMARYKEY (Z_ENT INTEGER PRIMARY KEY, Z_NAME TEXT, Z_SUPER INTEGER, Z_MAX INTEGER);
CREATE TABLE ZICCLOUDSYNCINGOBJECT (
	Z_PK INTEGER PRIMARY KEY,
	Z_ENT INTEGER,
	ZIDENTIFIER TEXT,
	ZTITLE1 TEXT,
	ZTITLE2 TEXT,
	ZSNIPPET TEXT,
	ZFOLDER INTEGER,
	ZACCOUNT3 INTEGER,
	ZCREATIONDATE1 REAL,
	ZMODIFICATIONDATE1 REAL,
	ZMARKEDFORDELETION INTEGER
);
CREATE TABLE ZICNOTEDATA (
	Z_PK INTEGER PRIMARY KEY,
	Z_ENT INTEGER,
	ZNOTE INTEGER,
	ZDATA BLOB
);
`

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "NoteStore.sqlite")

	setup, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open setup db: %v", err)
	}
	if _, err := setup.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := setup.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE2, ZACCOUNT3, ZCREATIONDATE1) VALUES (1, 15, 'folder-1', 'Work', 1, 0)`); err != nil {
		t.Fatalf("seed folder: %v", err)
	}

	notes := []struct {
		pk                   int64
		uuid, title, snippet string
		body                 string
	}{
		{10, "note-waffles", "Breakfast Ideas", "morning food", "Waffles with syrup and berries."},
		{11, "note-pancakes", "Weekend Brunch", "brunch plan", "Pancakes stacked with butter."},
	}
	for _, n := range notes {
		if _, err := setup.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZSNIPPET, ZFOLDER, ZCREATIONDATE1, ZMODIFICATIONDATE1) VALUES (?, 12, ?, ?, ?, 1, 0, 0)`,
			n.pk, n.uuid, n.title, n.snippet); err != nil {
			t.Fatalf("seed note %s: %v", n.uuid, err)
		}
		if _, err := setup.Exec(`INSERT INTO ZICNOTEDATA (Z_PK, Z_ENT, ZNOTE, ZDATA) VALUES (?, 19, ?, ?)`,
			n.pk+100, n.pk, encodeNoteBlob(n.body)); err != nil {
			t.Fatalf("seed blob for %s: %v", n.uuid, err)
		}
	}
	setup.Close()

	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeEmbedder maps text deterministically onto one of a few unit basis
// vectors by keyword, standing in for a real model in tests that only
// care about the vector-store and search plumbing, not tokenisation.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(tok cancel.Token, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, Dim)
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "waffle"):
			v[0] = 1
		case strings.Contains(lower, "pancake"):
			v[1] = 1
		default:
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}

func openIndex(t *testing.T, src *store.Store, embedder Embedder) *Index {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "semantic.sqlite")
	idx, err := Open(src, embedder, dbPath, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBuildEmbedsNotesAndSearchFindsExactMatch(t *testing.T) {
	src := newTestStore(t)
	idx := openIndex(t, src, fakeEmbedder{})

	if err := idx.Build(cancel.Background(), src); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	status, err := idx.StatusReport(cancel.Background())
	if err != nil {
		t.Fatalf("StatusReport() error = %v", err)
	}
	if status.RowCount != 2 {
		t.Fatalf("StatusReport().RowCount = %d, want 2", status.RowCount)
	}

	results, err := idx.Search(cancel.Background(), SearchOptions{Query: "waffle", TopK: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Note.ID != "note-waffles" {
		t.Fatalf("Search() = %+v, want [note-waffles]", results)
	}
	if !results[0].HasScore || results[0].Score < 0.99 {
		t.Errorf("Search() score = %+v, want HasScore with ~1.0 for an exact match", results[0])
	}
}

func TestSearchBuildsSynchronouslyWhenEmpty(t *testing.T) {
	src := newTestStore(t)
	idx := openIndex(t, src, fakeEmbedder{})

	results, err := idx.Search(cancel.Background(), SearchOptions{Query: "pancake"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Note.ID != "note-pancakes" {
		t.Fatalf("Search() = %+v, want [note-pancakes]", results)
	}
}

func TestSearchAppliesScoreThreshold(t *testing.T) {
	src := newTestStore(t)
	idx := openIndex(t, src, fakeEmbedder{})
	if err := idx.Build(cancel.Background(), src); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// "waffle" embeds to basis vector 0; neither note's own embedding is
	// an exact match to a "banana" query, which embeds to basis vector
	// 2, so both are orthogonal to it (cosine similarity 0) and should be
	// filtered out by a high threshold.
	results, err := idx.Search(cancel.Background(), SearchOptions{Query: "banana", ScoreThreshold: 0.9})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() = %+v, want no results above threshold 0.9", results)
	}
}

func TestInvalidateForcesRebuildOnNextSearch(t *testing.T) {
	src := newTestStore(t)
	idx := openIndex(t, src, fakeEmbedder{})
	if err := idx.Build(cancel.Background(), src); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := idx.Invalidate(cancel.Background()); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	status, err := idx.StatusReport(cancel.Background())
	if err != nil {
		t.Fatalf("StatusReport() error = %v", err)
	}
	if status.RowCount != 0 {
		t.Fatalf("StatusReport().RowCount = %d after Invalidate(), want 0", status.RowCount)
	}

	results, err := idx.Search(cancel.Background(), SearchOptions{Query: "waffle"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Search() after invalidate = %+v, want a synchronous rebuild to find results again", results)
	}
}

func TestSearchWithoutEmbedderReportsModelUnavailable(t *testing.T) {
	src := newTestStore(t)
	idx := openIndex(t, src, nil)

	_, err := idx.Search(cancel.Background(), SearchOptions{Query: "waffle"})
	var target *noteserr.ModelUnavailableError
	if !errors.As(err, &target) {
		t.Fatalf("Search() error = %v, want *ModelUnavailableError", err)
	}
}

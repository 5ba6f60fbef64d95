package docassembler

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/store"
)

// Local hand-written wire encoder: no codegen exists for this schema, so
// every package that needs fixtures builds its own (see internal/blob
// and internal/table's equivalents).

const (
	wireVarint = 0
	wireLenDel = 2

	fieldDocument  = 2
	fieldNote      = 3
	fieldNoteText  = 2
	fieldNoteRuns  = 5
	fieldRunLength = 1
	fieldRunStyle  = 2
	fieldStyleType = 1
	fieldRunObject = 12
	fieldObjectID  = 1
	fieldObjectUTI = 2

	cellStringField = 10
	cellTextField   = 2

	tableUTI = "com.apple.notes.table"
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

type testRun struct {
	length      int
	hasStyle    bool
	styleType   int64
	tableUUID   string
	tableUTI    string
}

func encodeRun(r testRun) []byte {
	var e encoder
	e.varintField(fieldRunLength, uint64(r.length))
	if r.hasStyle {
		var style encoder
		style.varintField(fieldStyleType, uint64(r.styleType))
		e.lenDelimited(fieldRunStyle, style.bytes())
	}
	if r.tableUUID != "" {
		var obj encoder
		obj.lenDelimited(fieldObjectID, []byte(r.tableUUID))
		obj.lenDelimited(fieldObjectUTI, []byte(r.tableUTI))
		e.lenDelimited(fieldRunObject, obj.bytes())
	}
	return e.bytes()
}

func encodeNote(text string, runs []testRun) []byte {
	var note encoder
	note.lenDelimited(fieldNoteText, []byte(text))
	for _, r := range runs {
		note.lenDelimited(fieldNoteRuns, encodeRun(r))
	}
	var doc encoder
	doc.lenDelimited(fieldNote, note.bytes())
	var top encoder
	top.lenDelimited(fieldDocument, doc.bytes())
	return top.bytes()
}

func gzipBytes(raw []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(raw)
	w.Close()
	return buf.Bytes()
}

func encodeCell(text string) []byte {
	var cellMsg encoder
	cellMsg.lenDelimited(cellTextField, []byte(text))
	var op encoder
	op.lenDelimited(cellStringField, cellMsg.bytes())
	return op.bytes()
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
	ZACCOUNTTYPE INTEGER,
	ZCREATIONDATE1 REAL,
	ZMODIFICATIONDATE1 REAL,
	ZMARKEDFORDELETION INTEGER,
	ZTYPEUTI TEXT,
	ZTYPEUTI1 TEXT,
	ZALTTEXT TEXT,
	ZTOKENCONTENTIDENTIFIER TEXT,
	ZNOTE INTEGER,
	ZNOTE1 INTEGER,
	ZATTACHMENT INTEGER,
	ZMERGEABLEDATA1 BLOB
);
CREATE TABLE ZICNOTEDATA (
	Z_PK INTEGER PRIMARY KEY,
	Z_ENT INTEGER,
	ZNOTE INTEGER,
	ZDATA BLOB
);
INSERT INTO Z_PRIMARYKEY (Z_ENT, Z_NAME, Z_SUPER, Z_MAX) VALUES
	(12, 'ICNote', 0, 0), (19, 'ICNoteData', 0, 0), (14, 'ICAccount', 0, 0),
	(15, 'ICFolder', 0, 0), (5, 'ICAttachment', 0, 0);
`

// testStore bundles the Store under test with the raw file path, since
// seeding fixtures needs a second unrestricted connection for DDL/DML
// shapes the Store's own API doesn't expose (hashtags, links, raw table
// blobs).
type testStore struct {
	*store.Store
	path string
}

func newTestStore(t *testing.T) testStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "NoteStore.sqlite")

	setup, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open setup db: %v", err)
	}
	if _, err := setup.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	setup.Close()

	s, err := store.OpenWritable(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return testStore{Store: s, path: path}
}

// seedNote inserts a note with a table reference, a hashtag, and a note
// link, returning the note's UUID.
func seedNote(t *testing.T, s testStore) string {
	t.Helper()

	raw := func(query string, args ...any) {
		t.Helper()
		if _, err := execOn(s.path, query, args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	raw(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZACCOUNTTYPE) VALUES (1, 14, 'acct-1', 'iCloud', 0)`)
	raw(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE2, ZACCOUNT3, ZCREATIONDATE1) VALUES (2, 15, 'folder-1', 'Notes', 1, 0)`)

	blobBytes := gzipBytes(encodeNote("Meeting\n\nAgenda\n", []testRun{
		{length: 8, hasStyle: false},
		{length: 7, hasStyle: true, styleType: 1, tableUUID: "table-uuid-1", tableUTI: tableUTI},
		{length: 1, hasStyle: false},
	}))

	raw(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZFOLDER, ZCREATIONDATE1, ZMODIFICATIONDATE1) VALUES (3, 12, 'note-1', 'Meeting', 2, 0, 0)`)
	raw(`INSERT INTO ZICNOTEDATA (Z_PK, Z_ENT, ZNOTE, ZDATA) VALUES (4, 19, 3, ?)`, blobBytes)

	raw(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTYPEUTI1, ZMERGEABLEDATA1) VALUES (5, 19, 'table-uuid-1', ?, ?)`,
		tableUTI, gzipBytes(append(encodeCell("a"), encodeCell("b")...)))

	raw(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTYPEUTI, ZALTTEXT, ZNOTE) VALUES (6, 20, 'hashtag-1', 'com.apple.notes.inlinetextattachment.hashtag', 'project', 3)`)
	raw(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTYPEUTI, ZALTTEXT, ZTOKENCONTENTIDENTIFIER, ZNOTE) VALUES (7, 21, 'link-1', 'com.apple.notes.inlinetextattachment.link', 'see other note', 'applenotes:note/note-2?ownerIdentifier=x', 3)`)

	return "note-1"
}

func TestAssembleStripsTitleResolvesTableAndAttachments(t *testing.T) {
	s := newTestStore(t)
	id := seedNote(t, s)

	doc, err := Assemble(cancel.Background(), s.Store, id)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if doc.Title != "Meeting" {
		t.Errorf("Title = %q, want %q", doc.Title, "Meeting")
	}
	if doc.Text != "Agenda\n" {
		t.Errorf("Text = %q, want %q", doc.Text, "Agenda\n")
	}
	if len(doc.Tables) != 1 || len(doc.Tables[0].Table.Rows) != 1 {
		t.Fatalf("Tables = %+v, want one resolved 1-row table", doc.Tables)
	}
	if len(doc.Hashtags) != 1 || doc.Hashtags[0].DisplayText != "project" {
		t.Errorf("Hashtags = %+v, want [project]", doc.Hashtags)
	}
	if len(doc.Links) != 1 || doc.Links[0].TargetNoteID != "note-2" {
		t.Errorf("Links = %+v, want target note-2", doc.Links)
	}
}

func TestAssembleNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := Assemble(cancel.Background(), s.Store, "missing"); err == nil {
		t.Fatalf("Assemble() error = nil, want not-found error")
	}
}

// execOn opens a second connection to the same file to insert fixture
// rows the Store's own API has no writer for (hashtags, links, raw
// mergeable-data blobs).
func execOn(path, query string, args ...any) (sql.Result, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.Exec(query, args...)
}

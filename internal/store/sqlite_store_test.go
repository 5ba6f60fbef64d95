package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/coredata"
	"github.com/lasmarois/notesbridge/internal/noteserr"
)

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

func newTestStore(t *testing.T, writable bool) *Store {
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

	var s *Store
	if writable {
		s, err = OpenWritable(path)
	} else {
		s, err = Open(path)
	}
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccountAndFolder(t *testing.T, s *Store) (accountPK, folderPK int64) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZACCOUNTTYPE) VALUES (1, ?, 'acct-1', 'iCloud', 0)`, EntAccount)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	_, err = s.db.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE2, ZACCOUNT3, ZCREATIONDATE1) VALUES (2, ?, 'folder-1', 'Notes', 1, 0)`, EntFolder)
	if err != nil {
		t.Fatalf("seed folder: %v", err)
	}
	return 1, 2
}

func TestListNotesExcludesDeletedAndUntitled(t *testing.T) {
	s := newTestStore(t, true)
	_, folderPK := seedAccountAndFolder(t, s)

	now := coredata.FromTime(time.Now())
	if _, err := s.db.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZFOLDER, ZCREATIONDATE1, ZMODIFICATIONDATE1) VALUES (10, ?, 'note-1', 'Alive', ?, ?, ?)`,
		EntNote, folderPK, now, now); err != nil {
		t.Fatalf("seed note: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZFOLDER, ZCREATIONDATE1, ZMODIFICATIONDATE1, ZMARKEDFORDELETION) VALUES (11, ?, 'note-2', 'Gone', ?, ?, ?, 1)`,
		EntNote, folderPK, now, now); err != nil {
		t.Fatalf("seed deleted note: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZFOLDER, ZCREATIONDATE1, ZMODIFICATIONDATE1) VALUES (12, ?, 'note-3', ?, ?, ?)`,
		EntNote, folderPK, now, now); err != nil {
		t.Fatalf("seed untitled note: %v", err)
	}

	notes, err := s.ListNotes(cancel.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "note-1" {
		t.Fatalf("ListNotes = %+v, want exactly note-1", notes)
	}
}

func TestGetNoteByIDNotFound(t *testing.T) {
	s := newTestStore(t, false)
	_, err := s.GetNoteByID("missing")
	var nf *noteserr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("GetNoteByID error = %v, want NotFoundError", err)
	}
}

func TestLatestModification(t *testing.T) {
	s := newTestStore(t, true)
	_, folderPK := seedAccountAndFolder(t, s)

	ref := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	cd := coredata.FromTime(ref)
	if _, err := s.db.Exec(`INSERT INTO ZICCLOUDSYNCINGOBJECT (Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZFOLDER, ZCREATIONDATE1, ZMODIFICATIONDATE1) VALUES (20, ?, 'note-x', 'X', ?, ?, ?)`,
		EntNote, folderPK, cd, cd); err != nil {
		t.Fatalf("seed note: %v", err)
	}

	got, err := s.LatestModification()
	if err != nil {
		t.Fatalf("LatestModification: %v", err)
	}
	if !time.Unix(got, 0).UTC().Equal(ref) {
		t.Errorf("LatestModification = %v, want %v", time.Unix(got, 0).UTC(), ref)
	}
}

func TestCreateNoteRequiresWritable(t *testing.T) {
	s := newTestStore(t, false)
	_, err := s.CreateNote(2, "uuid", "Title", "Title", []byte("x"), time.Now())
	var su *noteserr.StoreUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("CreateNote on read-only store = %v, want StoreUnavailableError", err)
	}
}

func TestCreateNoteAllocatesAndInserts(t *testing.T) {
	s := newTestStore(t, true)
	_, folderPK := seedAccountAndFolder(t, s)

	pk, err := s.CreateNote(folderPK, "new-uuid", "Groceries", "Groceries", []byte("blob"), time.Now())
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if pk == 0 {
		t.Fatalf("CreateNote returned zero primary key")
	}

	got, err := s.GetNoteByID("new-uuid")
	if err != nil {
		t.Fatalf("GetNoteByID: %v", err)
	}
	if got.Title != "Groceries" || got.PrimaryKey != pk {
		t.Errorf("GetNoteByID = %+v", got)
	}

	blob, err := s.FetchBlobByPrimaryKey(pk)
	if err != nil || string(blob) != "blob" {
		t.Errorf("FetchBlobByPrimaryKey = %q, %v", blob, err)
	}
}

func TestAllocatePrimaryKeysIsNotCached(t *testing.T) {
	s := newTestStore(t, true)

	first, err := s.AllocatePrimaryKeys(EntNote)
	if err != nil {
		t.Fatalf("AllocatePrimaryKeys: %v", err)
	}
	second, err := s.AllocatePrimaryKeys(EntNote)
	if err != nil {
		t.Fatalf("AllocatePrimaryKeys: %v", err)
	}
	if second[0] != first[0]+1 {
		t.Errorf("successive allocations = %d, %d; want monotonically increasing", first[0], second[0])
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/coredata"
	"github.com/lasmarois/notesbridge/internal/noteserr"
)

// Store is a handle onto the Notes application's Core Data SQLite store.
// Not safe to share across goroutines; callers that run searches
// concurrently must open one Store per request (§5).
type Store struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	writable bool
}

// Open opens the store read-only. Read operations work immediately;
// mutating operations return an error until the caller calls OpenWritable.
func Open(path string) (*Store, error) {
	return open(path, false)
}

// OpenWritable opens the store read-write, required by CreateNote.
func OpenWritable(path string) (*Store, error) {
	return open(path, true)
}

func open(path string, writable bool) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, noteserr.StoreUnavailable(path, err)
	}

	mode := "ro"
	if writable {
		mode = "rw"
	}
	dsn := fmt.Sprintf("file:%s?mode=%s", path, mode)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, noteserr.StoreUnavailable(path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, noteserr.StoreUnavailable(path, err)
	}

	return &Store{db: db, path: path, writable: writable}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Writable reports whether this handle was opened read-write.
func (s *Store) Writable() bool { return s.writable }

// ListNotes returns notes joined against their folder, newest-modified
// first, excluding tombstones and the Recently Deleted folder unless the
// filter says otherwise.
func (s *Store) ListNotes(tok cancel.Token, f ListFilter) ([]NoteSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := tok.Check(); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(`
		SELECT n.Z_PK, n.ZIDENTIFIER, n.ZTITLE1, n.ZSNIPPET, n.ZCREATIONDATE1,
			n.ZMODIFICATIONDATE1, n.ZMARKEDFORDELETION,
			f.ZIDENTIFIER, f.ZTITLE2
		FROM ZICCLOUDSYNCINGOBJECT n
		LEFT JOIN ZICCLOUDSYNCINGOBJECT f ON f.Z_PK = n.ZFOLDER AND f.Z_ENT = ?
		WHERE n.Z_ENT = ? AND n.ZTITLE1 IS NOT NULL
	`)
	args := []any{EntFolder, EntNote}

	if !f.IncludeDeleted {
		b.WriteString(" AND (n.ZMARKEDFORDELETION IS NULL OR n.ZMARKEDFORDELETION = 0)")
		b.WriteString(" AND (f.ZTITLE2 IS NULL OR f.ZTITLE2 != ?)")
		args = append(args, recentlyDeleted)
	}
	if f.FolderID != "" {
		b.WriteString(" AND f.ZIDENTIFIER = ?")
		args = append(args, f.FolderID)
	}
	if f.ModifiedAfter != nil {
		b.WriteString(" AND n.ZMODIFICATIONDATE1 >= ?")
		args = append(args, coredata.FromUnix(*f.ModifiedAfter))
	}
	if f.ModifiedBefore != nil {
		b.WriteString(" AND n.ZMODIFICATIONDATE1 <= ?")
		args = append(args, coredata.FromUnix(*f.ModifiedBefore))
	}
	if f.CreatedAfter != nil {
		b.WriteString(" AND n.ZCREATIONDATE1 >= ?")
		args = append(args, coredata.FromUnix(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		b.WriteString(" AND n.ZCREATIONDATE1 <= ?")
		args = append(args, coredata.FromUnix(*f.CreatedBefore))
	}

	b.WriteString(" ORDER BY n.ZMODIFICATIONDATE1 DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(tok.Context(), b.String(), args...)
	if err != nil {
		return nil, noteserr.QueryFailed("list notes", err)
	}
	defer rows.Close()

	var out []NoteSummary
	for rows.Next() {
		if err := tok.Check(); err != nil {
			return nil, err
		}

		var n NoteSummary
		var snippet, folderID, folderName sql.NullString
		var markedForDeletion sql.NullInt64
		var created, modified float64

		if err := rows.Scan(&n.PrimaryKey, &n.ID, &n.Title, &snippet, &created,
			&modified, &markedForDeletion, &folderID, &folderName); err != nil {
			return nil, noteserr.QueryFailed("scan note row", err)
		}

		n.CreatedAt = coredata.ToUnix(created)
		n.ModifiedAt = coredata.ToUnix(modified)
		n.Deleted = markedForDeletion.Valid && markedForDeletion.Int64 != 0
		if snippet.Valid {
			n.Snippet = snippet.String
		}
		if folderID.Valid {
			n.FolderID = folderID.String
		}
		if folderName.Valid {
			n.FolderName = folderName.String
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// escapeLike escapes the LIKE metacharacters '\', '%', and '_' in term so
// it can be safely wrapped in a "%...%" pattern with ESCAPE '\' and still
// match only as a literal substring (§4.5's case-folded substring match).
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// SearchIndexed runs the Phase 1 indexed scan (§4.5): a disjunction over
// title, snippet, and folder title for each term, case-folded substring
// match, combined across terms with AND or OR, plus the same filter
// clauses as ListNotes. Each term is bound three times (once per
// column), then the filter parameters, then the limit, matching the
// declared parameter order in the query text.
func (s *Store) SearchIndexed(tok cancel.Token, terms []string, matchAll bool, f ListFilter) ([]NoteSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := tok.Check(); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(`
		SELECT n.Z_PK, n.ZIDENTIFIER, n.ZTITLE1, n.ZSNIPPET, n.ZCREATIONDATE1,
			n.ZMODIFICATIONDATE1, n.ZMARKEDFORDELETION,
			f.ZIDENTIFIER, f.ZTITLE2
		FROM ZICCLOUDSYNCINGOBJECT n
		LEFT JOIN ZICCLOUDSYNCINGOBJECT f ON f.Z_PK = n.ZFOLDER AND f.Z_ENT = ?
		WHERE n.Z_ENT = ? AND n.ZTITLE1 IS NOT NULL
	`)
	args := []any{EntFolder, EntNote}

	joiner := " OR "
	if matchAll {
		joiner = " AND "
	}
	termClauses := make([]string, 0, len(terms))
	for _, t := range terms {
		pattern := "%" + escapeLike(strings.ToLower(t)) + "%"
		termClauses = append(termClauses, "(LOWER(n.ZTITLE1) LIKE ? ESCAPE '\\' OR LOWER(n.ZSNIPPET) LIKE ? ESCAPE '\\' OR LOWER(f.ZTITLE2) LIKE ? ESCAPE '\\')")
		args = append(args, pattern, pattern, pattern)
	}
	b.WriteString(" AND (")
	b.WriteString(strings.Join(termClauses, joiner))
	b.WriteString(")")

	if !f.IncludeDeleted {
		b.WriteString(" AND (n.ZMARKEDFORDELETION IS NULL OR n.ZMARKEDFORDELETION = 0)")
		b.WriteString(" AND (f.ZTITLE2 IS NULL OR f.ZTITLE2 != ?)")
		args = append(args, recentlyDeleted)
	}
	if f.FolderID != "" {
		b.WriteString(" AND f.ZIDENTIFIER = ?")
		args = append(args, f.FolderID)
	}
	if f.ModifiedAfter != nil {
		b.WriteString(" AND n.ZMODIFICATIONDATE1 >= ?")
		args = append(args, coredata.FromUnix(*f.ModifiedAfter))
	}
	if f.ModifiedBefore != nil {
		b.WriteString(" AND n.ZMODIFICATIONDATE1 <= ?")
		args = append(args, coredata.FromUnix(*f.ModifiedBefore))
	}
	if f.CreatedAfter != nil {
		b.WriteString(" AND n.ZCREATIONDATE1 >= ?")
		args = append(args, coredata.FromUnix(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		b.WriteString(" AND n.ZCREATIONDATE1 <= ?")
		args = append(args, coredata.FromUnix(*f.CreatedBefore))
	}

	b.WriteString(" ORDER BY n.ZMODIFICATIONDATE1 DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(tok.Context(), b.String(), args...)
	if err != nil {
		return nil, noteserr.QueryFailed("search indexed", err)
	}
	defer rows.Close()

	var out []NoteSummary
	for rows.Next() {
		if err := tok.Check(); err != nil {
			return nil, err
		}

		var n NoteSummary
		var snippet, folderID, folderName sql.NullString
		var markedForDeletion sql.NullInt64
		var created, modified float64

		if err := rows.Scan(&n.PrimaryKey, &n.ID, &n.Title, &snippet, &created,
			&modified, &markedForDeletion, &folderID, &folderName); err != nil {
			return nil, noteserr.QueryFailed("scan search row", err)
		}

		n.CreatedAt = coredata.ToUnix(created)
		n.ModifiedAt = coredata.ToUnix(modified)
		n.Deleted = markedForDeletion.Valid && markedForDeletion.Int64 != 0
		if snippet.Valid {
			n.Snippet = snippet.String
		}
		if folderID.Valid {
			n.FolderID = folderID.String
		}
		if folderName.Valid {
			n.FolderName = folderName.String
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// LatestModification returns the maximum ZMODIFICATIONDATE1 across all
// note rows, tombstoned ones included, used as the staleness oracle by the
// FTS index.
func (s *Store) LatestModification() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var modified sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT MAX(ZMODIFICATIONDATE1) FROM ZICCLOUDSYNCINGOBJECT WHERE Z_ENT = ?
	`, EntNote).Scan(&modified)
	if err != nil {
		return 0, noteserr.QueryFailed("latest modification", err)
	}
	if !modified.Valid {
		return 0, nil
	}
	return coredata.ToUnix(modified.Float64), nil
}

// GetNoteByID fetches a note's metadata row by its UUID.
func (s *Store) GetNoteByID(id string) (NoteSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n NoteSummary
	var snippet, folderID, folderName sql.NullString
	var created, modified float64
	var markedForDeletion sql.NullInt64

	err := s.db.QueryRow(`
		SELECT n.Z_PK, n.ZIDENTIFIER, n.ZTITLE1, n.ZSNIPPET, n.ZCREATIONDATE1,
			n.ZMODIFICATIONDATE1, n.ZMARKEDFORDELETION,
			f.ZIDENTIFIER, f.ZTITLE2
		FROM ZICCLOUDSYNCINGOBJECT n
		LEFT JOIN ZICCLOUDSYNCINGOBJECT f ON f.Z_PK = n.ZFOLDER AND f.Z_ENT = ?
		WHERE n.Z_ENT = ? AND n.ZIDENTIFIER = ?
	`, EntFolder, EntNote, id).Scan(&n.PrimaryKey, &n.ID, &n.Title, &snippet,
		&created, &modified, &markedForDeletion, &folderID, &folderName)
	if err == sql.ErrNoRows {
		return NoteSummary{}, noteserr.NotFound("note", id)
	}
	if err != nil {
		return NoteSummary{}, noteserr.QueryFailed("get note", err)
	}

	n.CreatedAt = coredata.ToUnix(created)
	n.ModifiedAt = coredata.ToUnix(modified)
	n.Deleted = markedForDeletion.Valid && markedForDeletion.Int64 != 0
	if snippet.Valid {
		n.Snippet = snippet.String
	}
	if folderID.Valid {
		n.FolderID = folderID.String
	}
	if folderName.Valid {
		n.FolderName = folderName.String
	}
	return n, nil
}

// FetchBlobByPrimaryKey returns the gzipped protobuf ZDATA blob for the
// note whose primary key is given.
func (s *Store) FetchBlobByPrimaryKey(notePK int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(`
		SELECT ZDATA FROM ZICNOTEDATA WHERE Z_ENT = ? AND ZNOTE = ?
	`, EntNoteData, notePK).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, noteserr.NotFound("note", fmt.Sprintf("pk=%d", notePK))
	}
	if err != nil {
		return nil, noteserr.QueryFailed("fetch blob", err)
	}
	return data, nil
}

// FetchMergeableDataByUUID returns the CRDT table blob for the given
// reference, gated to the table UTI so a caller can't accidentally pull
// an unrelated mergeable-data row.
func (s *Store) FetchMergeableDataByUUID(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(`
		SELECT ZMERGEABLEDATA1 FROM ZICCLOUDSYNCINGOBJECT
		WHERE ZIDENTIFIER = ? AND ZTYPEUTI1 = ?
	`, id, UTITable).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, noteserr.NotFound("table", id)
	}
	if err != nil {
		return nil, noteserr.QueryFailed("fetch mergeable data", err)
	}
	return data, nil
}

// ListFolders returns every folder with at least one live note, joined
// against its owning account, in the canonical presentation order:
// primary account first, "Notes" first within an account, then creation
// order, Recently Deleted omitted.
func (s *Store) ListFolders() ([]Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(context.Background(), `
		SELECT f.Z_PK, f.ZIDENTIFIER, f.ZTITLE2, a.ZIDENTIFIER, a.ZTITLE1, a.ZACCOUNTTYPE, f.ZCREATIONDATE1
		FROM ZICCLOUDSYNCINGOBJECT f
		JOIN ZICCLOUDSYNCINGOBJECT a ON a.Z_PK = f.ZACCOUNT3 AND a.Z_ENT = ?
		WHERE f.Z_ENT = ?
			AND f.ZTITLE2 IS NOT NULL AND f.ZTITLE2 != ?
			AND (f.ZMARKEDFORDELETION IS NULL OR f.ZMARKEDFORDELETION = 0)
			AND EXISTS (
				SELECT 1 FROM ZICCLOUDSYNCINGOBJECT n
				WHERE n.Z_ENT = ? AND n.ZFOLDER = f.Z_PK
					AND (n.ZMARKEDFORDELETION IS NULL OR n.ZMARKEDFORDELETION = 0)
			)
		ORDER BY
			(a.ZACCOUNTTYPE = 0) DESC,
			(f.ZTITLE2 = 'Notes') DESC,
			f.ZCREATIONDATE1 ASC
	`, EntAccount, EntFolder, recentlyDeleted, EntNote)
	if err != nil {
		return nil, noteserr.QueryFailed("list folders", err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		var accountType int64
		var created float64
		if err := rows.Scan(&f.PrimaryKey, &f.ID, &f.Name, &f.AccountID, &f.AccountName, &accountType, &created); err != nil {
			return nil, noteserr.QueryFailed("scan folder row", err)
		}
		f.IsPrimary = accountType == 0
		f.CreatedAt = coredata.ToUnix(created)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListInlineAttachments returns hashtag or note-link rows attached to a
// note, matching either of its two back-reference columns or the
// attachment foreign key.
func (s *Store) ListInlineAttachments(notePK int64, uti string) ([]InlineAttachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT ZIDENTIFIER, ZTYPEUTI, ZALTTEXT, ZTOKENCONTENTIDENTIFIER
		FROM ZICCLOUDSYNCINGOBJECT
		WHERE ZTYPEUTI = ? AND (ZNOTE = ? OR ZNOTE1 = ? OR ZATTACHMENT = ?)
	`, uti, notePK, notePK, notePK)
	if err != nil {
		return nil, noteserr.QueryFailed("list inline attachments", err)
	}
	defer rows.Close()

	var out []InlineAttachment
	for rows.Next() {
		var a InlineAttachment
		var display, target sql.NullString
		if err := rows.Scan(&a.ID, &a.UTI, &display, &target); err != nil {
			return nil, noteserr.QueryFailed("scan inline attachment row", err)
		}
		if display.Valid {
			a.DisplayText = display.String
		}
		if target.Valid {
			a.TargetURL = target.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateNote allocates primary keys, inserts the note-data row, then the
// note row, all inside a single transaction with rollback on any error.
// This is the low-level path named in §4.1/§6: it does not integrate with
// the application's own sync layer.
func (s *Store) CreateNote(folderPK int64, uuid, title, bodyLine string, blob []byte, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable {
		return 0, noteserr.StoreUnavailable(s.path, fmt.Errorf("store opened read-only"))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, noteserr.QueryFailed("begin create-note transaction", err)
	}
	defer tx.Rollback()

	noteDataPK, err := allocatePrimaryKey(tx, EntNoteData)
	if err != nil {
		return 0, err
	}
	notePK, err := allocatePrimaryKey(tx, EntNote)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`
		INSERT INTO ZICNOTEDATA (Z_PK, Z_ENT, ZNOTE, ZDATA) VALUES (?, ?, ?, ?)
	`, noteDataPK, EntNoteData, notePK, blob); err != nil {
		return 0, noteserr.QueryFailed("insert note data", err)
	}

	ts := coredata.FromTime(now)
	if _, err := tx.Exec(`
		INSERT INTO ZICCLOUDSYNCINGOBJECT
			(Z_PK, Z_ENT, ZIDENTIFIER, ZTITLE1, ZSNIPPET, ZFOLDER, ZCREATIONDATE1, ZMODIFICATIONDATE1)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, notePK, EntNote, uuid, title, bodyLine, folderPK, ts, ts); err != nil {
		return 0, noteserr.QueryFailed("insert note", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, noteserr.QueryFailed("commit create-note transaction", err)
	}
	return notePK, nil
}

// allocatePrimaryKey reads Z_PRIMARYKEY.Z_MAX for the given entity, bumps
// it, and writes it back inside the caller's transaction. It must never be
// cached across calls (§9).
func allocatePrimaryKey(tx *sql.Tx, ent int) (int64, error) {
	var max int64
	err := tx.QueryRow(`SELECT Z_MAX FROM Z_PRIMARYKEY WHERE Z_ENT = ?`, ent).Scan(&max)
	if err != nil {
		return 0, noteserr.QueryFailed("read primary key allocator", err)
	}
	next := max + 1
	if _, err := tx.Exec(`UPDATE Z_PRIMARYKEY SET Z_MAX = ? WHERE Z_ENT = ?`, next, ent); err != nil {
		return 0, noteserr.QueryFailed("write primary key allocator", err)
	}
	return next, nil
}

// ListAttachments returns file-attachment rows belonging to a note.
// The returned ID follows the Core Data reference-URL convention
// (x-coredata://<store-uuid>/ICAttachment/p<primary-key>); the store UUID
// component is derived from the store's file path since parsing the
// binary-plist Z_METADATA row that holds the canonical value is out of
// scope (no attachment content extraction is performed either, per
// spec Non-goals).
func (s *Store) ListAttachments(notePK int64) ([]Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT Z_PK, ZIDENTIFIER, ZTITLE2, ZTYPEUTI, ZFILESIZE, ZCREATIONDATE1, ZMODIFICATIONDATE1
		FROM ZICCLOUDSYNCINGOBJECT
		WHERE Z_ENT = ? AND (ZNOTE = ? OR ZNOTE1 = ?)
	`, EntAttachment, notePK, notePK)
	if err != nil {
		return nil, noteserr.QueryFailed("list attachments", err)
	}
	defer rows.Close()

	uuid := s.pseudoStoreUUID()
	var out []Attachment
	for rows.Next() {
		var pk int64
		var name, uti sql.NullString
		var fileSize sql.NullInt64
		var created, modified float64
		var a Attachment
		if err := rows.Scan(&pk, &a.Identifier, &name, &uti, &fileSize, &created, &modified); err != nil {
			return nil, noteserr.QueryFailed("scan attachment row", err)
		}
		if name.Valid {
			a.Name = name.String
		}
		if uti.Valid {
			a.UTI = uti.String
		}
		if fileSize.Valid {
			a.FileSize = fileSize.Int64
		}
		a.ID = fmt.Sprintf("x-coredata://%s/ICAttachment/p%d", uuid, pk)
		a.CreatedAt = coredata.ToUnix(created)
		a.ModifiedAt = coredata.ToUnix(modified)
		out = append(out, a)
	}
	return out, rows.Err()
}

// pseudoStoreUUID derives a stable, path-scoped identifier for use in
// attachment reference URLs.
func (s *Store) pseudoStoreUUID() string {
	h := fnv.New128a()
	h.Write([]byte(s.path))
	sum := h.Sum(nil)
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// AllocatePrimaryKeys exposes the allocator as its own tested unit,
// running in a dedicated transaction rather than a caller's.
func (s *Store) AllocatePrimaryKeys(ents ...int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable {
		return nil, noteserr.StoreUnavailable(s.path, fmt.Errorf("store opened read-only"))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, noteserr.QueryFailed("begin allocator transaction", err)
	}
	defer tx.Rollback()

	out := make([]int64, 0, len(ents))
	for _, ent := range ents {
		pk, err := allocatePrimaryKey(tx, ent)
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}

	if err := tx.Commit(); err != nil {
		return nil, noteserr.QueryFailed("commit allocator transaction", err)
	}
	return out, nil
}

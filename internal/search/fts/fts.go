// Package fts implements the persistent full-text index (C6, §4.6): a
// separate SQLite database file holding an FTS5 virtual table over note
// text, with staleness detection and single-flight background rebuilds.
package fts

import (
	"database/sql"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	fileatomic "github.com/natefinch/atomic"
	_ "github.com/ncruces/go-sqlite3/driver"
	"github.com/rs/zerolog"

	"github.com/lasmarois/notesbridge/internal/blob"
	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/noteserr"
	"github.com/lasmarois/notesbridge/internal/obs"
	"github.com/lasmarois/notesbridge/internal/obs/metrics"
	"github.com/lasmarois/notesbridge/internal/searchmodel"
	"github.com/lasmarois/notesbridge/internal/store"
)

// ProgressFunc is called periodically during Build, per §4.6's "progress
// reported every 50 notes to an optional sink".
type ProgressFunc func(done, total int)

// Index owns the FTS5 database file and tracks when it was last built, so
// Search can detect staleness without re-scanning the source store.
type Index struct {
	sourcePath string
	source     *store.Store

	db            *sql.DB
	markerPath    string
	slack         time.Duration
	progressEvery int
	progress      ProgressFunc

	logger  zerolog.Logger
	metrics *metrics.Registry

	lastBuildUnix atomic.Int64
	rebuilding    atomic.Bool
}

// Options configures Open.
type Options struct {
	// Slack is added to the last-build timestamp before comparing against
	// the source store's latest modification (§4.6).
	Slack time.Duration
	// ProgressEvery is how many notes Build processes between progress
	// callbacks. Zero disables the periodic callbacks; Progress, if set,
	// is still called once when Build finishes.
	ProgressEvery int
	Progress      ProgressFunc
	Logger        zerolog.Logger
	Metrics       *metrics.Registry
}

// Open opens (creating if absent) the FTS database at dbPath and prepares
// it to serve searches against sourcePath's note text. source is the
// caller's own handle onto the Notes store, used for foreground staleness
// checks and result hydration; background rebuilds open their own handle
// on sourcePath instead of reusing it (§4.6 "separately opened Store
// Accessor").
func Open(sourcePath string, source *store.Store, dbPath string, opts Options) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, noteserr.StoreUnavailable(dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, noteserr.StoreUnavailable(dbPath, err)
	}

	slack := opts.Slack
	if slack <= 0 {
		slack = 5 * time.Second
	}

	logger := opts.Logger
	if reflect.DeepEqual(logger, zerolog.Logger{}) {
		logger = obs.Nop()
	}

	idx := &Index{
		sourcePath:    sourcePath,
		source:        source,
		db:            db,
		markerPath:    dbPath + ".staleness",
		slack:         slack,
		progressEvery: opts.ProgressEvery,
		progress:      opts.Progress,
		logger:        logger,
		metrics:       opts.Metrics,
	}

	if err := idx.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := idx.loadLastBuild(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the FTS database handle.
func (x *Index) Close() error { return x.db.Close() }

func (x *Index) ensureSchema() error {
	_, err := x.db.Exec(`
CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
	note_id UNINDEXED,
	title,
	snippet,
	folder,
	content,
	tokenize = 'porter unicode61'
);
CREATE TABLE IF NOT EXISTS fts_meta (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	last_build_unix INTEGER NOT NULL
);`)
	if err != nil {
		return noteserr.QueryFailed("create fts schema", err)
	}
	return nil
}

// loadLastBuild prefers the atomically-written marker sidecar file, since
// it is readable without a database round-trip; the fts_meta table row is
// the fallback for a marker that was never written (e.g. a database built
// before this file existed) or went missing.
func (x *Index) loadLastBuild() error {
	if raw, err := os.ReadFile(x.markerPath); err == nil {
		if ts, perr := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); perr == nil {
			x.lastBuildUnix.Store(ts)
			return nil
		}
	}

	var ts int64
	err := x.db.QueryRow(`SELECT last_build_unix FROM fts_meta WHERE id = 0`).Scan(&ts)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return noteserr.QueryFailed("load fts last-build timestamp", err)
	}
	x.lastBuildUnix.Store(ts)
	return nil
}

// Status reports the index's build state for the operator CLI.
type Status struct {
	LastBuildUnix int64
	RowCount      int
	Rebuilding    bool
}

// StatusReport returns the index's current build state.
func (x *Index) StatusReport(tok cancel.Token) (Status, error) {
	var count int
	if err := x.db.QueryRowContext(tok.Context(), `SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		return Status{}, noteserr.QueryFailed("count fts rows", err)
	}
	return Status{
		LastBuildUnix: x.lastBuildUnix.Load(),
		RowCount:      count,
		Rebuilding:    x.rebuilding.Load(),
	}, nil
}

// Build lists every note from src, decodes its text, and replaces the
// index contents inside a single transaction (§4.6 "clear the existing
// rows... perform all inserts inside a single transaction"). src is
// caller-supplied so a background rebuild can pass its own separately
// opened handle instead of aliasing the foreground one.
func (x *Index) Build(tok cancel.Token, src *store.Store) error {
	start := time.Now()
	notes, err := src.ListNotes(tok, store.ListFilter{})
	if err != nil {
		return err
	}

	tx, err := x.db.BeginTx(tok.Context(), nil)
	if err != nil {
		return noteserr.QueryFailed("begin fts rebuild transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM notes_fts`); err != nil {
		return noteserr.QueryFailed("clear fts table", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO notes_fts (note_id, title, snippet, folder, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return noteserr.QueryFailed("prepare fts insert", err)
	}
	defer stmt.Close()

	for i, n := range notes {
		if err := tok.Check(); err != nil {
			return err
		}

		text := x.decodeText(src, n)
		if _, err := stmt.Exec(n.ID, n.Title, n.Snippet, n.FolderName, text); err != nil {
			return noteserr.QueryFailed("insert fts row", err)
		}

		if x.progress != nil && x.progressEvery > 0 && (i+1)%x.progressEvery == 0 {
			x.progress(i+1, len(notes))
		}
	}
	if x.progress != nil {
		x.progress(len(notes), len(notes))
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(`INSERT INTO fts_meta (id, last_build_unix) VALUES (0, ?)
		ON CONFLICT(id) DO UPDATE SET last_build_unix = excluded.last_build_unix`, now); err != nil {
		return noteserr.QueryFailed("record fts build timestamp", err)
	}

	if err := tx.Commit(); err != nil {
		return noteserr.QueryFailed("commit fts rebuild", err)
	}

	x.lastBuildUnix.Store(now)
	// The sidecar marker complements the "clear + insert inside one
	// transaction" rule above: it is only ever written after a commit
	// succeeds, and the atomic rename means a crash mid-write can never
	// leave a torn timestamp visible to the next loadLastBuild.
	if err := fileatomic.WriteFile(x.markerPath, strings.NewReader(strconv.FormatInt(now, 10))); err != nil {
		x.logger.Warn().Err(err).Msg("fts: failed to write staleness marker sidecar")
	}

	if x.metrics != nil {
		x.metrics.RebuildTotal.WithLabelValues("fts").Inc()
		x.metrics.RebuildSeconds.WithLabelValues("fts").Observe(time.Since(start).Seconds())
	}
	return nil
}

// decodeText fetches and decodes a note's body, returning an empty string
// (rather than failing the whole build) for a note whose blob is missing
// or unparseable.
func (x *Index) decodeText(src *store.Store, n store.NoteSummary) string {
	raw, err := src.FetchBlobByPrimaryKey(n.PrimaryKey)
	if err != nil {
		return ""
	}
	doc, err := blob.Decode(raw)
	if err != nil {
		return ""
	}
	return doc.Text
}

// SearchOptions bounds an FTS search request.
type SearchOptions struct {
	Query string
	Limit int
}

// Search runs the staleness check described by §4.6 before querying:
// an empty index is built synchronously; a stale one triggers a
// single-flight background rebuild and is still searched as-is, with the
// stale flag set on the return value; a fresh index is searched
// immediately.
func (x *Index) Search(tok cancel.Token, opts SearchOptions) ([]searchmodel.Result, bool, error) {
	stale, empty, err := x.checkStaleness(tok)
	if err != nil {
		return nil, false, err
	}

	if empty {
		if err := x.Build(tok, x.source); err != nil {
			return nil, false, err
		}
		stale = false
	} else if stale {
		x.triggerBackgroundRebuild()
	}

	results, err := x.query(tok, opts)
	if err != nil {
		return nil, false, err
	}

	if stale && x.metrics != nil {
		x.metrics.StaleServed.Inc()
	}
	return results, stale, nil
}

func (x *Index) checkStaleness(tok cancel.Token) (stale, empty bool, err error) {
	var count int
	if err := x.db.QueryRowContext(tok.Context(), `SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		return false, false, noteserr.QueryFailed("count fts rows", err)
	}
	if count == 0 {
		return false, true, nil
	}

	latest, err := x.source.LatestModification()
	if err != nil {
		return false, false, err
	}

	lastBuild := x.lastBuildUnix.Load()
	return latest > lastBuild+int64(x.slack.Seconds()), false, nil
}

// triggerBackgroundRebuild launches at most one concurrent rebuild; a
// second caller observing a stale index while one is already in flight is
// a no-op (§4.6 single-flight discipline).
func (x *Index) triggerBackgroundRebuild() {
	if !x.rebuilding.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer x.rebuilding.Store(false)

		rebuildSrc, err := store.Open(x.sourcePath)
		if err != nil {
			x.logger.Warn().Err(err).Msg("fts background rebuild: open source store failed")
			return
		}
		defer rebuildSrc.Close()

		if err := x.Build(cancel.Background(), rebuildSrc); err != nil {
			x.logger.Warn().Err(err).Msg("fts background rebuild failed")
			return
		}
		x.logger.Debug().Msg("fts background rebuild completed")
	}()
}

func (x *Index) query(tok cancel.Token, opts SearchOptions) ([]searchmodel.Result, error) {
	match := buildMatchQuery(opts.Query)
	if match == "" {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := x.db.QueryContext(tok.Context(), `
SELECT note_id, snippet(notes_fts, 4, '**', '**', '…', 20)
FROM notes_fts
WHERE notes_fts MATCH ?
ORDER BY rank
LIMIT ?`, match, limit)
	if err != nil {
		return nil, noteserr.QueryFailed("fts search", err)
	}
	defer rows.Close()

	var out []searchmodel.Result
	for rows.Next() {
		if err := tok.Check(); err != nil {
			return nil, err
		}
		var noteID, snip string
		if err := rows.Scan(&noteID, &snip); err != nil {
			return nil, noteserr.QueryFailed("scan fts row", err)
		}

		note, err := x.source.GetNoteByID(noteID)
		if err != nil {
			// The FTS row outlived its source note (deleted since the last
			// build); skip rather than fail the whole search.
			continue
		}
		out = append(out, searchmodel.Result{
			Note:    note,
			Source:  searchmodel.SourceFTS,
			Snippet: snip,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, noteserr.QueryFailed("iterate fts rows", err)
	}
	return out, nil
}

// buildMatchQuery turns a raw query into an FTS5 MATCH expression: each
// whitespace-delimited token becomes a quoted phrase, joined with OR
// (§4.6).
func buildMatchQuery(raw string) string {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(parts, " OR ")
}

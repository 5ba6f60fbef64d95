// Package semantic implements the persistent vector index (C7, §4.7): a
// sqlite-vec vec0 table of note embeddings served behind a cold-start
// build contract, with staleness left to explicit caller invalidation
// rather than the automatic detection §4.6's FTS index performs.
package semantic

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	fileatomic "github.com/natefinch/atomic"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/lasmarois/notesbridge/internal/blob"
	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/noteserr"
	"github.com/lasmarois/notesbridge/internal/obs/metrics"
	"github.com/lasmarois/notesbridge/internal/searchmodel"
	"github.com/lasmarois/notesbridge/internal/store"
)

// Index is the on-disk semantic vector store: a vec0 virtual table of
// note embeddings plus a sibling metadata table mapping rows back to
// note ids, titles, and folders.
type Index struct {
	db         *sql.DB
	markerPath string
	source     *store.Store
	embedder   Embedder

	// embedMu serialises every call into embedder, per §4.7's "the
	// process must serialise embedding inference; it is a shared
	// resource, not safe for concurrent calls".
	embedMu sync.Mutex

	threshold float64
	metrics   *metrics.Registry
}

// Options configures Open.
type Options struct {
	// ScoreThreshold is the default minimum cosine similarity a Search
	// result must clear when SearchOptions.ScoreThreshold is unset.
	ScoreThreshold float64
	Metrics        *metrics.Registry
}

// Open opens (creating if absent) the semantic vector database at
// dbPath. embedder may be nil, in which case Build and Search report
// ModelUnavailable, matching the "no model configured" contract.
func Open(source *store.Store, embedder Embedder, dbPath string, opts Options) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, noteserr.StoreUnavailable(dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, noteserr.StoreUnavailable(dbPath, err)
	}

	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = 0.3
	}

	idx := &Index{
		db:         db,
		markerPath: dbPath + ".staleness",
		source:     source,
		embedder:   embedder,
		threshold:  threshold,
		metrics:    opts.Metrics,
	}
	if err := idx.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the semantic database handle.
func (x *Index) Close() error { return x.db.Close() }

func (x *Index) ensureSchema() error {
	_, err := x.db.Exec(fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS note_vec USING vec0(
	note_rowid INTEGER PRIMARY KEY,
	embedding FLOAT[%d] distance_metric=cosine
);
CREATE TABLE IF NOT EXISTS semantic_meta (
	note_rowid INTEGER PRIMARY KEY,
	note_id TEXT NOT NULL UNIQUE,
	title TEXT,
	folder TEXT
);`, Dim))
	if err != nil {
		return noteserr.QueryFailed("create semantic schema", err)
	}
	return nil
}

// Status reports the index's build state for the operator CLI.
type Status struct {
	RowCount int
	// LastBuildUnix is read from the marker sidecar file; zero if the
	// index has never been built or the marker is missing.
	LastBuildUnix int64
}

// StatusReport returns the index's current row count and last-build time.
func (x *Index) StatusReport(tok cancel.Token) (Status, error) {
	var count int
	if err := x.db.QueryRowContext(tok.Context(), `SELECT count(*) FROM semantic_meta`).Scan(&count); err != nil {
		return Status{}, noteserr.QueryFailed("count semantic rows", err)
	}

	var lastBuild int64
	if raw, err := os.ReadFile(x.markerPath); err == nil {
		if ts, perr := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); perr == nil {
			lastBuild = ts
		}
	}
	return Status{RowCount: count, LastBuildUnix: lastBuild}, nil
}

// Build lists every note from src, embeds its title/folder/decoded body,
// and replaces the index contents inside a single transaction. Embedding
// is computed for the whole batch before the transaction opens, since
// inference (unlike the SQL writes) does not need transactional
// atomicity and may be slow.
func (x *Index) Build(tok cancel.Token, src *store.Store) error {
	if x.embedder == nil {
		return noteserr.ModelUnavailable("semantic embedder not configured", nil)
	}
	start := time.Now()

	notes, err := src.ListNotes(tok, store.ListFilter{})
	if err != nil {
		return err
	}

	texts := make([]string, len(notes))
	for i, n := range notes {
		texts[i] = embeddingText(src, n)
	}

	x.embedMu.Lock()
	vectors, err := x.embedder.Embed(tok, texts)
	x.embedMu.Unlock()
	if err != nil {
		return err
	}

	tx, err := x.db.BeginTx(tok.Context(), nil)
	if err != nil {
		return noteserr.QueryFailed("begin semantic rebuild transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM note_vec`); err != nil {
		return noteserr.QueryFailed("clear note_vec", err)
	}
	if _, err := tx.Exec(`DELETE FROM semantic_meta`); err != nil {
		return noteserr.QueryFailed("clear semantic_meta", err)
	}

	metaStmt, err := tx.Prepare(`INSERT INTO semantic_meta (note_rowid, note_id, title, folder) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return noteserr.QueryFailed("prepare semantic meta insert", err)
	}
	defer metaStmt.Close()

	vecStmt, err := tx.Prepare(`INSERT INTO note_vec (note_rowid, embedding) VALUES (?, ?)`)
	if err != nil {
		return noteserr.QueryFailed("prepare semantic vector insert", err)
	}
	defer vecStmt.Close()

	for i, n := range notes {
		if err := tok.Check(); err != nil {
			return err
		}
		if _, err := metaStmt.Exec(n.PrimaryKey, n.ID, n.Title, n.FolderName); err != nil {
			return noteserr.QueryFailed("insert semantic meta row", err)
		}
		if _, err := vecStmt.Exec(n.PrimaryKey, serializeVector(vectors[i])); err != nil {
			return noteserr.QueryFailed("insert semantic vector row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return noteserr.QueryFailed("commit semantic rebuild", err)
	}

	// Written only after a successful commit, atomically, so a crash
	// mid-write can never leave a torn timestamp visible to StatusReport;
	// this index never reads the marker back to decide staleness (§4.7's
	// explicit-invalidation-only policy), it is purely an operator-visible
	// record of when the last successful build finished.
	if err := fileatomic.WriteFile(x.markerPath, strings.NewReader(strconv.FormatInt(time.Now().Unix(), 10))); err != nil {
		// best-effort: the SQL rows are the durable truth, the marker is a
		// convenience the status command can read without opening the DB.
		_ = err
	}

	if x.metrics != nil {
		x.metrics.RebuildTotal.WithLabelValues("semantic").Inc()
		x.metrics.RebuildSeconds.WithLabelValues("semantic").Observe(time.Since(start).Seconds())
	}
	return nil
}

// embeddingText derives the text embedded for a note: its title, folder,
// and decoded body when available (§4.7: "title, and optionally
// folder/content").
func embeddingText(src *store.Store, n store.NoteSummary) string {
	parts := []string{n.Title}
	if n.FolderName != "" {
		parts = append(parts, n.FolderName)
	}
	if raw, err := src.FetchBlobByPrimaryKey(n.PrimaryKey); err == nil {
		if doc, err := blob.Decode(raw); err == nil && doc.Text != "" {
			parts = append(parts, doc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// SearchOptions bounds a semantic search request.
type SearchOptions struct {
	Query string
	TopK  int
	// ScoreThreshold overrides the index's configured default when > 0.
	ScoreThreshold float64
}

// Search embeds the index on first use if it is empty (§4.7's cold-start
// contract), then runs a nearest-neighbour query. Unlike fts.Index,
// Search never compares timestamps against the source store: staleness
// here is the caller's responsibility via Invalidate.
func (x *Index) Search(tok cancel.Token, opts SearchOptions) ([]searchmodel.Result, error) {
	if x.embedder == nil {
		return nil, noteserr.ModelUnavailable("semantic embedder not configured", nil)
	}

	empty, err := x.isEmpty(tok)
	if err != nil {
		return nil, err
	}
	if empty {
		if err := x.Build(tok, x.source); err != nil {
			return nil, err
		}
	}
	return x.query(tok, opts)
}

func (x *Index) isEmpty(tok cancel.Token) (bool, error) {
	var count int
	if err := x.db.QueryRowContext(tok.Context(), `SELECT count(*) FROM semantic_meta`).Scan(&count); err != nil {
		return false, noteserr.QueryFailed("count semantic rows", err)
	}
	return count == 0, nil
}

// Invalidate clears the index; the next Search rebuilds it from scratch.
// §4.7 explicitly does not auto-invalidate on every source-store change,
// so a caller that mutates notes must call this itself.
func (x *Index) Invalidate(tok cancel.Token) error {
	if _, err := x.db.ExecContext(tok.Context(), `DELETE FROM note_vec`); err != nil {
		return noteserr.QueryFailed("invalidate note_vec", err)
	}
	if _, err := x.db.ExecContext(tok.Context(), `DELETE FROM semantic_meta`); err != nil {
		return noteserr.QueryFailed("invalidate semantic_meta", err)
	}
	if err := os.Remove(x.markerPath); err != nil && !os.IsNotExist(err) {
		return noteserr.QueryFailed("remove semantic staleness marker", err)
	}
	return nil
}

func (x *Index) query(tok cancel.Token, opts SearchOptions) ([]searchmodel.Result, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = x.threshold
	}

	x.embedMu.Lock()
	vectors, err := x.embedder.Embed(tok, []string{opts.Query})
	x.embedMu.Unlock()
	if err != nil {
		return nil, err
	}

	// Oversample the KNN search so threshold filtering still has enough
	// candidates left to fill topK.
	rows, err := x.db.QueryContext(tok.Context(), `
SELECT m.note_id, v.distance
FROM note_vec v
JOIN semantic_meta m ON m.note_rowid = v.note_rowid
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`, serializeVector(vectors[0]), topK*4)
	if err != nil {
		return nil, noteserr.QueryFailed("semantic search", err)
	}
	defer rows.Close()

	var out []searchmodel.Result
	for rows.Next() {
		if err := tok.Check(); err != nil {
			return nil, err
		}
		var noteID string
		var distance float64
		if err := rows.Scan(&noteID, &distance); err != nil {
			return nil, noteserr.QueryFailed("scan semantic row", err)
		}

		// note_vec uses the cosine metric, so sqlite-vec reports cosine
		// distance (1 - cosine similarity) and the score is 1 - distance.
		score := 1 - distance
		if score < threshold {
			continue
		}

		note, err := x.source.GetNoteByID(noteID)
		if err != nil {
			// The vector row outlived its source note; skip rather than
			// fail the whole search.
			continue
		}

		out = append(out, searchmodel.Result{
			Note:     note,
			Source:   searchmodel.SourceSemantic,
			HasScore: true,
			Score:    score,
		})
		if len(out) >= topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, noteserr.QueryFailed("iterate semantic rows", err)
	}
	return out, nil
}

// Package notesbridge is the public facade tying the note-decoding and
// search engine together behind the wire contract described in §6: note
// summaries, styled documents, and source-tagged search results. It is
// the surface an external stdio dispatcher, CLI front-end, or desktop UI
// sits on top of; none of those collaborators live in this repository.
package notesbridge

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/config"
	"github.com/lasmarois/notesbridge/internal/docassembler"
	"github.com/lasmarois/notesbridge/internal/doccache"
	"github.com/lasmarois/notesbridge/internal/mergepool"
	"github.com/lasmarois/notesbridge/internal/noteserr"
	"github.com/lasmarois/notesbridge/internal/obs"
	"github.com/lasmarois/notesbridge/internal/obs/metrics"
	"github.com/lasmarois/notesbridge/internal/search/basic"
	"github.com/lasmarois/notesbridge/internal/search/fts"
	"github.com/lasmarois/notesbridge/internal/search/semantic"
	"github.com/lasmarois/notesbridge/internal/searchmodel"
	"github.com/lasmarois/notesbridge/internal/store"
)

// Bridge owns the source store handle and the two derived indexes,
// exposing read and search operations as one cohesive API (§2's "data
// flow for a read"/"data flow for a search").
type Bridge struct {
	cfg     config.Config
	store   *store.Store
	fts     *fts.Index
	sem     *semantic.Index
	docs    *doccache.Cache[docassembler.Document]
	logger  zerolog.Logger
	metrics *metrics.Registry
}

// Options configures Open.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Registry
}

// Open opens the source Notes store at cfg.StorePath read-only and
// prepares the FTS and semantic indexes. Neither index is built yet;
// both build on their own cold-start contract at first Search
// (§4.6/§4.7). A missing or unloadable semantic model is not a failure
// here — Search with UseSemantic (and SemanticBuild) reports
// ModelUnavailable lazily instead, so a
// caller that never asks for semantic search is unaffected.
func Open(cfg config.Config, opts Options) (*Bridge, error) {
	if cfg.StorePath == "" {
		return nil, noteserr.MissingParameter("storePath")
	}

	s, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if reflect.DeepEqual(logger, zerolog.Logger{}) {
		logger = obs.Nop()
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir, err = config.DefaultCacheDir()
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		s.Close()
		return nil, noteserr.StoreUnavailable(cacheDir, err)
	}

	ftsIdx, err := fts.Open(cfg.StorePath, s, filepath.Join(cacheDir, "fts.sqlite"), fts.Options{
		Slack:         cfg.FTSStalenessSlack,
		ProgressEvery: cfg.FTSProgressEvery,
		Logger:        logger,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	// A model-loading failure is reported lazily by the semantic index's
	// own Search/Build (ModelUnavailable), not here, so Open still
	// succeeds for a caller that only wants basic/FTS search.
	embedder, _ := semantic.LoadEmbedder(cfg.SemanticModelPath)

	semIdx, err := semantic.Open(s, embedder, filepath.Join(cacheDir, "semantic.sqlite"), semantic.Options{
		ScoreThreshold: cfg.SemanticScoreThreshold,
		Metrics:        opts.Metrics,
	})
	if err != nil {
		ftsIdx.Close()
		s.Close()
		return nil, err
	}

	return &Bridge{
		cfg:     cfg,
		store:   s,
		fts:     ftsIdx,
		sem:     semIdx,
		docs:    doccache.New[docassembler.Document](),
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Close releases every handle the Bridge owns.
func (b *Bridge) Close() error {
	var first error
	note := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	note(b.fts.Close())
	note(b.sem.Close())
	note(b.store.Close())
	return first
}

// ReadNote fetches and decodes a note's full styled document (§4.4). A
// note whose modification timestamp hasn't changed since the last
// ReadNote call is served from doccache without re-decoding its blob.
// Search does not fill the cache; only ReadNote does.
func (b *Bridge) ReadNote(tok cancel.Token, noteID string) (docassembler.Document, error) {
	summary, err := b.store.GetNoteByID(noteID)
	if err != nil {
		return docassembler.Document{}, err
	}
	if doc, ok := b.docs.Get(noteID, summary.ModifiedAt); ok {
		return doc, nil
	}

	doc, err := docassembler.Assemble(tok, b.store, noteID)
	if err != nil {
		return docassembler.Document{}, err
	}
	b.docs.Put(noteID, summary.ModifiedAt, doc)
	return doc, nil
}

// RenderNoteHTML renders a previously assembled document to HTML (§4.4's
// "optional capability exposed to external renderers").
func (b *Bridge) RenderNoteHTML(doc docassembler.Document) string {
	return docassembler.RenderHTML(doc)
}

// ListNotes lists note summaries per the given filter (§4.1).
func (b *Bridge) ListNotes(tok cancel.Token, f store.ListFilter) ([]store.NoteSummary, error) {
	return b.store.ListNotes(tok, f)
}

// ListFolders lists folders with their owning accounts (§4.1).
func (b *Bridge) ListFolders() ([]store.Folder, error) {
	return b.store.ListFolders()
}

// CreateNote exposes the store's low-level create-note capability
// (§4.1/§6): it does not integrate with Notes' own sync layer, and
// whether to use it over the external scripting bridge is a caller
// decision. It opens its own short-lived writable handle on the same
// store file rather than reopening the Bridge's read-only one, the same
// "separately opened Store Accessor" discipline an FTS background
// rebuild uses (§4.6), so a write never aliases a handle a concurrent
// read might be using.
func (b *Bridge) CreateNote(folderPK int64, uuid, title, bodyLine string, noteBlob []byte, now time.Time) (int64, error) {
	w, err := store.OpenWritable(b.cfg.StorePath)
	if err != nil {
		return 0, err
	}
	defer w.Close()
	return w.CreateNote(folderPK, uuid, title, bodyLine, noteBlob, now)
}

// SearchOptions bounds a merged search request. Basic search always
// runs (§2: "query → C5 (always) + C6 (if built) + C7 (if built)"); FTS
// and semantic are opt-in per call.
type SearchOptions struct {
	basic.Options
	UseFTS      bool
	UseSemantic bool

	FTSLimit               int
	SemanticTopK           int
	SemanticScoreThreshold float64
}

// SearchResponse is the merged, source-tagged result set plus any
// per-backend flags a caller needs to surface (FTS staleness).
type SearchResponse struct {
	Results  []searchmodel.Result
	FTSStale bool
}

// Search runs Basic Search and, if requested, FTS and Semantic search,
// merging hits by note id. A note returned by more than one backend is
// re-tagged SourceMulti, per §3's "source tag" glossary entry and §8
// invariant 5 ("basic ∪ fts ∪ semantic ⊇ basic, with filters applied
// identically"). Merge order is basic, then fts, then semantic,
// matching §5's "ordering across result categories, not completion
// order" guarantee.
func (b *Bridge) Search(tok cancel.Token, opts SearchOptions) (SearchResponse, error) {
	merged := mergepool.GetResultMap()
	order := mergepool.GetOrderSlice()
	defer mergepool.PutResultMap(merged)
	defer mergepool.PutOrderSlice(order)

	add := func(r searchmodel.Result) {
		if existing, ok := merged[r.Note.ID]; ok {
			existing.Source = searchmodel.SourceMulti
			if r.HasScore && (!existing.HasScore || r.Score > existing.Score) {
				existing.HasScore = true
				existing.Score = r.Score
			}
			if existing.Snippet == "" {
				existing.Snippet = r.Snippet
			}
			return
		}
		rc := r
		merged[r.Note.ID] = &rc
		order = append(order, r.Note.ID)
	}

	basicStart := time.Now()
	basicResults, err := basic.Search(tok, b.store, opts.Options)
	if err != nil {
		return SearchResponse{}, err
	}
	b.observeSearch(searchmodel.SourceBasic, basicStart, len(basicResults))
	for _, r := range basicResults {
		add(r)
	}

	var resp SearchResponse
	if opts.UseFTS {
		ftsStart := time.Now()
		ftsResults, stale, err := b.fts.Search(tok, fts.SearchOptions{Query: opts.Query, Limit: opts.FTSLimit})
		if err != nil {
			return SearchResponse{}, err
		}
		b.observeSearch(searchmodel.SourceFTS, ftsStart, len(ftsResults))
		resp.FTSStale = stale
		for _, r := range ftsResults {
			add(r)
		}
	}
	if opts.UseSemantic {
		semStart := time.Now()
		semResults, err := b.sem.Search(tok, semantic.SearchOptions{
			Query:          opts.Query,
			TopK:           opts.SemanticTopK,
			ScoreThreshold: opts.SemanticScoreThreshold,
		})
		if err != nil {
			return SearchResponse{}, err
		}
		b.observeSearch(searchmodel.SourceSemantic, semStart, len(semResults))
		for _, r := range semResults {
			add(r)
		}
	}

	resp.Results = make([]searchmodel.Result, 0, len(order))
	for _, id := range order {
		resp.Results = append(resp.Results, *merged[id])
	}
	return resp, nil
}

// FTSBuild forces a synchronous FTS rebuild, for an operator tool or a
// caller that wants a warm index before the first search.
func (b *Bridge) FTSBuild(tok cancel.Token) error { return b.fts.Build(tok, b.store) }

// FTSStatus reports the FTS index's build state.
func (b *Bridge) FTSStatus(tok cancel.Token) (fts.Status, error) { return b.fts.StatusReport(tok) }

// SemanticBuild forces a synchronous semantic index rebuild.
func (b *Bridge) SemanticBuild(tok cancel.Token) error { return b.sem.Build(tok, b.store) }

// SemanticStatus reports the semantic index's build state.
func (b *Bridge) SemanticStatus(tok cancel.Token) (semantic.Status, error) {
	return b.sem.StatusReport(tok)
}

// SemanticInvalidate clears the semantic index so the next search (or
// SemanticBuild) rebuilds it from scratch (§4.7's explicit-invalidation
// staleness policy).
func (b *Bridge) SemanticInvalidate(tok cancel.Token) error { return b.sem.Invalidate(tok) }

// Metrics returns the registry passed to Open, or nil if none was given.
func (b *Bridge) Metrics() *metrics.Registry { return b.metrics }

// observeSearch records one backend's latency and result count, labeled by
// source. A no-op when Open was called without a metrics registry.
func (b *Bridge) observeSearch(source searchmodel.Source, start time.Time, resultCount int) {
	if b.metrics == nil {
		return
	}
	b.metrics.SearchLatency.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	b.metrics.SearchResults.WithLabelValues(string(source)).Observe(float64(resultCount))
}

package semantic

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/noteserr"
)

// Embedder turns text into L2-normalised, fixed-dimension vectors
// (§4.7). Index depends only on this interface, never on how a vector
// is produced, so the vector-store logic is testable with a trivial
// in-memory stand-in.
type Embedder interface {
	Embed(tok cancel.Token, texts []string) ([][]float32, error)
}

// modelEmbedder implements Embedder with a loaded WordPiece vocabulary
// and a static per-token embedding table.
type modelEmbedder struct {
	vocab *Vocab
	model *staticTable
}

// LoadEmbedder loads "vocab.txt" (one WordPiece token per line) and
// "embeddings.bin" (little-endian float32 rows of length Dim, one per
// vocabulary entry, in vocabulary order) from modelPath. An empty
// modelPath reports ModelUnavailable, matching internal/config.Config's
// own SemanticModelPath contract ("empty means the semantic index
// reports ModelUnavailable on first use").
func LoadEmbedder(modelPath string) (Embedder, error) {
	if modelPath == "" {
		return nil, noteserr.ModelUnavailable("no semantic model configured", nil)
	}

	tokens, err := loadVocabFile(filepath.Join(modelPath, "vocab.txt"))
	if err != nil {
		return nil, noteserr.ModelUnavailable("load vocabulary", err)
	}
	rows, err := loadEmbeddingTable(filepath.Join(modelPath, "embeddings.bin"), len(tokens))
	if err != nil {
		return nil, noteserr.ModelUnavailable("load embedding table", err)
	}

	return &modelEmbedder{vocab: NewVocab(tokens), model: &staticTable{rows: rows}}, nil
}

// NewStaticEmbedder builds an Embedder directly from an in-memory
// vocabulary and embedding table, for callers (tests, alternate asset
// loaders) that already have both in hand.
func NewStaticEmbedder(tokens []string, rows [][Dim]float32) Embedder {
	return &modelEmbedder{vocab: NewVocab(tokens), model: &staticTable{rows: rows}}
}

func (e *modelEmbedder) Embed(tok cancel.Token, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := tok.Check(); err != nil {
			return nil, err
		}
		ids, mask := e.vocab.Encode(text)
		out[i] = e.model.pool(ids, mask)
	}
	return out, nil
}

func loadVocabFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	return tokens, scanner.Err()
}

func loadEmbeddingTable(path string, vocabSize int) ([][Dim]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	wantBytes := vocabSize * Dim * 4
	if len(raw) != wantBytes {
		return nil, fmt.Errorf("embedding table is %d bytes, want %d for %d vocabulary entries", len(raw), wantBytes, vocabSize)
	}

	rows := make([][Dim]float32, vocabSize)
	for i := range rows {
		for d := 0; d < Dim; d++ {
			offset := (i*Dim + d) * 4
			bits := binary.LittleEndian.Uint32(raw[offset : offset+4])
			rows[i][d] = math.Float32frombits(bits)
		}
	}
	return rows, nil
}

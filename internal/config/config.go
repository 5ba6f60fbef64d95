// Package config loads the core's human-editable settings file. The file is
// JWCC (JSON with comments and trailing commas), parsed with hujson the way
// calvinalkan-agent-task parses its own config.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// Config holds every tunable the core's components read at construction
// time. Anything left zero-valued in the file falls back to Default().
type Config struct {
	// StorePath overrides the platform-default location of the Notes
	// SQLite store. Empty means "use the platform default".
	StorePath string `json:"storePath,omitempty"`

	// CacheDir is where the FTS and semantic index files live. Neither is
	// authoritative; both may be deleted and rebuilt.
	CacheDir string `json:"cacheDir,omitempty"`

	// FTSStalenessSlack is added to the index's last-build timestamp before
	// comparing against the source store's latest modification (§4.6).
	FTSStalenessSlack time.Duration `json:"ftsStalenessSlack,omitempty"`

	// SemanticScoreThreshold is the default minimum cosine similarity for
	// semantic search results (§4.7).
	SemanticScoreThreshold float64 `json:"semanticScoreThreshold,omitempty"`

	// SemanticModelPath points at the sentence-transformer model assets.
	// Empty means the semantic index reports ModelUnavailable on first use.
	SemanticModelPath string `json:"semanticModelPath,omitempty"`

	// FTSProgressEvery controls how often index builds report progress.
	FTSProgressEvery int `json:"ftsProgressEvery,omitempty"`
}

// Default returns the baseline configuration used when no file is present
// or a field is omitted from it.
func Default() Config {
	return Config{
		FTSStalenessSlack:      5 * time.Second,
		SemanticScoreThreshold: 0.3,
		FTSProgressEvery:       50,
	}
}

// Load reads and merges a JWCC config file over Default(). A missing file
// is not an error; it simply yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return cfg, err
	}

	var override Config
	if err := json.Unmarshal(standardized, &override); err != nil {
		return cfg, err
	}

	merge(&cfg, override)
	return cfg, nil
}

func merge(dst *Config, src Config) {
	if src.StorePath != "" {
		dst.StorePath = src.StorePath
	}
	if src.CacheDir != "" {
		dst.CacheDir = src.CacheDir
	}
	if src.FTSStalenessSlack != 0 {
		dst.FTSStalenessSlack = src.FTSStalenessSlack
	}
	if src.SemanticScoreThreshold != 0 {
		dst.SemanticScoreThreshold = src.SemanticScoreThreshold
	}
	if src.SemanticModelPath != "" {
		dst.SemanticModelPath = src.SemanticModelPath
	}
	if src.FTSProgressEvery != 0 {
		dst.FTSProgressEvery = src.FTSProgressEvery
	}
}

// DefaultCacheDir returns "<UserCacheDir>/notesbridge" for use when the
// config file doesn't set CacheDir explicitly.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "notesbridge"), nil
}

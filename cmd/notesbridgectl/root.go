package main

import (
	"github.com/spf13/cobra"

	"github.com/lasmarois/notesbridge/internal/config"
	"github.com/lasmarois/notesbridge/internal/obs"
	"github.com/lasmarois/notesbridge/internal/obs/metrics"
	"github.com/lasmarois/notesbridge/pkg/notesbridge"
)

var (
	flagConfigPath string
	flagStorePath  string
	flagCacheDir   string
	flagDebug      bool
)

var rootCmd = &cobra.Command{
	Use:   "notesbridgectl",
	Short: "Operate a read-mostly bridge over an Apple Notes SQLite store",
	Long: `notesbridgectl reads notes and runs search directly against a Notes
store's SQLite file, and manages the FTS and semantic indexes layered on
top of it. It does not talk to the Notes application; it reads the
on-disk store the same way the application's own sync layer does.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a JWCC config file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&flagStorePath, "store", "", "path to NoteStore.sqlite (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "directory for the FTS and semantic index files (overrides the config file)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug-level logging")

	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(metricsCmd)
}

// openBridge builds the Bridge every subcommand operates on, loading the
// config file (if any) and layering the --store/--cache-dir flags over it.
func openBridge() (*notesbridge.Bridge, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagStorePath != "" {
		cfg.StorePath = flagStorePath
	}
	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}

	reg := metrics.New()
	logger := obs.NewLogger(nil, flagDebug)
	return notesbridge.Open(cfg, notesbridge.Options{Logger: logger, Metrics: reg})
}

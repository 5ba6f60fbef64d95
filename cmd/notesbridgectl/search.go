package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lasmarois/notesbridge/internal/cancel"
	"github.com/lasmarois/notesbridge/internal/search/basic"
	"github.com/lasmarois/notesbridge/pkg/notesbridge"
)

var (
	flagFuzzy       bool
	flagContentScan bool
	flagUseFTS      bool
	flagUseSemantic bool
	flagLimit       int
	flagTopK        int
	flagThreshold   float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a merged search across the basic, FTS, and semantic backends",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		resp, err := b.Search(cancel.Background(), notesbridge.SearchOptions{
			Options: basic.Options{
				Query:       args[0],
				Limit:       flagLimit,
				Fuzzy:       flagFuzzy,
				ContentScan: flagContentScan,
			},
			UseFTS:                 flagUseFTS,
			UseSemantic:            flagUseSemantic,
			FTSLimit:               flagLimit,
			SemanticTopK:           flagTopK,
			SemanticScoreThreshold: flagThreshold,
		})
		if err != nil {
			return err
		}

		if resp.FTSStale {
			fmt.Println("(fts index is stale; a rebuild has been enqueued in the background)")
		}
		for _, r := range resp.Results {
			if r.HasScore {
				fmt.Printf("[%s %.3f] %s  %s\n", r.Source, r.Score, r.Note.ID, r.Note.Title)
			} else {
				fmt.Printf("[%s] %s  %s\n", r.Source, r.Note.ID, r.Note.Title)
			}
			if r.Snippet != "" {
				fmt.Printf("    %s\n", r.Snippet)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&flagFuzzy, "fuzzy", false, "allow Levenshtein fuzzy matching in basic search")
	searchCmd.Flags().BoolVar(&flagContentScan, "content-scan", false, "scan note bodies, not just titles/snippets, in basic search")
	searchCmd.Flags().BoolVar(&flagUseFTS, "fts", false, "also search the full-text index")
	searchCmd.Flags().BoolVar(&flagUseSemantic, "semantic", false, "also search the semantic vector index")
	searchCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum results from basic/fts search")
	searchCmd.Flags().IntVar(&flagTopK, "top-k", 10, "maximum results from semantic search")
	searchCmd.Flags().Float64Var(&flagThreshold, "score-threshold", 0, "minimum semantic similarity score (0 uses the configured default)")
}

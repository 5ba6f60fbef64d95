package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lasmarois/notesbridge/internal/cancel"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and rebuild the FTS and semantic indexes",
}

var indexFTSCmd = &cobra.Command{Use: "fts", Short: "Manage the full-text index"}
var indexSemanticCmd = &cobra.Command{Use: "semantic", Short: "Manage the semantic vector index"}

var indexFTSBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Force a synchronous FTS rebuild",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()
		return b.FTSBuild(cancel.Background())
	},
}

var indexFTSStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the FTS index's build state",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		status, err := b.FTSStatus(cancel.Background())
		if err != nil {
			return err
		}
		fmt.Printf("rows: %d\nlast build: %s\n", status.RowCount, formatUnix(status.LastBuildUnix))
		return nil
	},
}

var indexSemanticBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Force a synchronous semantic rebuild",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()
		return b.SemanticBuild(cancel.Background())
	},
}

var indexSemanticStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the semantic index's build state",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		status, err := b.SemanticStatus(cancel.Background())
		if err != nil {
			return err
		}
		fmt.Printf("rows: %d\nlast build: %s\n", status.RowCount, formatUnix(status.LastBuildUnix))
		return nil
	},
}

var indexSemanticInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Clear the semantic index so the next search rebuilds it",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()
		return b.SemanticInvalidate(cancel.Background())
	},
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).Format(time.RFC3339)
}

func init() {
	indexFTSCmd.AddCommand(indexFTSBuildCmd, indexFTSStatusCmd)
	indexSemanticCmd.AddCommand(indexSemanticBuildCmd, indexSemanticStatusCmd, indexSemanticInvalidateCmd)
	indexCmd.AddCommand(indexFTSCmd, indexSemanticCmd)
}

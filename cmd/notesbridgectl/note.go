package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lasmarois/notesbridge/internal/cancel"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Inspect individual notes",
}

var noteReadCmd = &cobra.Command{
	Use:   "read <note-id>",
	Short: "Decode and print a note's full styled document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		doc, err := b.ReadNote(cancel.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s\n\n%s\n", doc.Title, doc.Text)
		if len(doc.Hashtags) > 0 {
			fmt.Println("\nHashtags:")
			for _, h := range doc.Hashtags {
				fmt.Printf("  #%s\n", h.DisplayText)
			}
		}
		if len(doc.Links) > 0 {
			fmt.Println("\nLinks:")
			for _, l := range doc.Links {
				fmt.Printf("  %s -> %s\n", l.DisplayText, l.TargetNoteID)
			}
		}
		return nil
	},
}

func init() {
	noteCmd.AddCommand(noteReadCmd)
}

// Command notesbridgectl is the operator CLI for pkg/notesbridge: it
// inspects and rebuilds the FTS and semantic indexes, reads notes, runs
// merged searches, and dumps metrics, all against a Notes store on disk.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package obs carries the logger and metrics every component constructor
// accepts, so none of them reach for a package-level global.
package obs

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the default console logger used by cmd/notesbridgectl.
// Library callers embedding the core are free to build their own
// zerolog.Logger and pass it to component constructors instead.
func NewLogger(w io.Writer, debug bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests.
func Nop() zerolog.Logger { return zerolog.Nop() }

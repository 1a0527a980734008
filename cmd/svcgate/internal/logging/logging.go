package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
)

// New returns a slog logger rendered by pterm on stderr, so log output keeps
// the same styling as the rest of the CLI and stdout stays free for results.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := pterm.LogLevelInfo
	if debug {
		level = pterm.LogLevelDebug
	}
	logger := pterm.DefaultLogger.WithLevel(level).WithWriter(w)
	return slog.New(pterm.NewSlogHandler(logger))
}

package logger

import (
	"log/slog"
	"os"
)

// New returns a text slog logger writing to stdout; swap the handler for JSON
// when log aggregation needs it.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

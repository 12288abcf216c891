package logging

import (
	"io"
	"log/slog"
	"os"
)

// SetupJSON sets slog's default logger to use JSON output at the given level.
func SetupJSON(level slog.Level, attrs ...slog.Attr) {
	slog.SetDefault(NewJSON(os.Stdout, level, attrs...))
}

// NewJSON builds a JSON logger writing to w. Attrs are attached to every record.
func NewJSON(w io.Writer, level slog.Level, attrs ...slog.Attr) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return slog.New(h.WithAttrs(attrs))
}

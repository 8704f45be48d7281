package logging

import (
	"io"
	"log/slog"
	"os"
)

// Service is attached to every record so logs from the panel can be told
// apart from the device backend's when shipped to the same sink.
const Service = "obstacle-panel"

// New creates a process logger with JSON output on stdout.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).With("service", Service)
}

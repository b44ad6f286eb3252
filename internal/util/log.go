// Package util provides shared helpers for logging, retries, rate limiting,
// and business-day calendars.
package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unrecognised strings default to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w. format is "json" or
// "text"; anything else falls back to text.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// LogSink is a process-lifetime logger that writes to the console and,
// optionally, to an append-only log file. Close must be called once at exit.
type LogSink struct {
	Logger *slog.Logger
	file   *os.File
}

// OpenLogSink creates a LogSink. An empty path logs to console only.
func OpenLogSink(console io.Writer, path, level, format string) (*LogSink, error) {
	if path == "" {
		return &LogSink{Logger: NewLogger(console, level, format)}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	w := io.MultiWriter(console, f)
	return &LogSink{Logger: NewLogger(w, level, format), file: f}, nil
}

// Close flushes and closes the log file, if any.
func (s *LogSink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

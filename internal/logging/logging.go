// internal/logging/logging.go
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Setup holds the process-wide logger and its sinks
type Setup struct {
	Logger  *slog.Logger
	Level   *slog.LevelVar
	LogPath string

	file *os.File
}

// New builds a logger writing text to stderr and JSON to a timestamped
// file in logDir. An empty logDir disables the file sink. The returned
// logger is also installed as slog.Default.
func New(logDir string, level slog.Level) (*Setup, error) {
	return newWithWriter(os.Stderr, logDir, level)
}

func newWithWriter(console io.Writer, logDir string, level slog.Level) (*Setup, error) {
	s := &Setup{Level: new(slog.LevelVar)}
	s.Level.Set(level)

	opts := &slog.HandlerOptions{Level: s.Level}
	handlers := []slog.Handler{slog.NewTextHandler(console, opts)}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", logDir, err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		s.LogPath = filepath.Join(logDir, fmt.Sprintf("codeweave-%s.log", timestamp))

		file, err := os.OpenFile(s.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", s.LogPath, err)
		}
		s.file = file
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	s.Logger = slog.New(teeHandler(handlers))
	slog.SetDefault(s.Logger)
	return s, nil
}

// SetLevel changes the level of every sink
func (s *Setup) SetLevel(level slog.Level) {
	if s.Level.Level() == level {
		return
	}
	s.Level.Set(level)
	s.Logger.Info("Log level changed", "level", level.String())
}

// Close flushes and closes the log file
func (s *Setup) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// teeHandler sends each record to every handler that accepts its level
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

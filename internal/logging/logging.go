// Package logging builds the structured logger shared by every component.
// Records go to stderr and, when configured, to an append-only log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Logger owns the handler outputs so the log file can be closed on exit
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// ParseLevel maps a config string to a slog level; unknown strings mean info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// New creates a text logger writing to stderr and, if logFile is set, also
// appending to that file. Call Close when done.
func New(level, logFile string) (*Logger, error) {
	return newLogger(os.Stderr, level, logFile)
}

func newLogger(out io.Writer, level, logFile string) (*Logger, error) {
	l := &Logger{}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		out = io.MultiWriter(out, f)
	}

	l.Logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
	return l, nil
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

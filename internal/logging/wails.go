package logging

import (
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/logger"
)

// WailsLogger routes the desktop runtime's log lines into slog
type WailsLogger struct {
	log *slog.Logger
}

var _ logger.Logger = (*WailsLogger)(nil)

// NewWailsLogger wraps log for the desktop runtime
func NewWailsLogger(log *slog.Logger) *WailsLogger {
	return &WailsLogger{log: log.With("component", "wails")}
}

func (w *WailsLogger) Print(message string)   { w.log.Info(message) }
func (w *WailsLogger) Trace(message string)   { w.log.Debug(message, "trace", true) }
func (w *WailsLogger) Debug(message string)   { w.log.Debug(message) }
func (w *WailsLogger) Info(message string)    { w.log.Info(message) }
func (w *WailsLogger) Warning(message string) { w.log.Warn(message) }
func (w *WailsLogger) Error(message string)   { w.log.Error(message) }

// Fatal logs at error level. The runtime exits on its own after a fatal.
func (w *WailsLogger) Fatal(message string) { w.log.Error(message, "fatal", true) }

package fileref

import (
	"fmt"
	"log/slog"
)

// Logger receives failures that cannot be returned to a caller, such as a
// temporary file that could not be removed on release.
type Logger interface {
	WarnPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
}

type defaultLogger struct{}

// DefaultLogger returns a Logger writing to slog's default logger.
func DefaultLogger() Logger {
	return defaultLogger{}
}

func (defaultLogger) WarnPrintf(format string, args ...any) {
	slog.Warn("fileref: " + fmt.Sprintf(format, args...))
}

func (defaultLogger) DebugPrintf(format string, args ...any) {
	slog.Debug("fileref: " + fmt.Sprintf(format, args...))
}

// SlogLogger returns a Logger writing to l.
func SlogLogger(l *slog.Logger) Logger {
	return slogLogger{l}
}

type slogLogger struct{ l *slog.Logger }

func (s slogLogger) WarnPrintf(format string, args ...any) {
	s.l.Warn("fileref: " + fmt.Sprintf(format, args...))
}

func (s slogLogger) DebugPrintf(format string, args ...any) {
	s.l.Debug("fileref: " + fmt.Sprintf(format, args...))
}

package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogFilePermissions is the mode used when creating log files
const LogFilePermissions = 0o600

// newTextHandler returns the console handler. Timestamps are dropped.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				lvl, ok := a.Value.Any().(slog.Level)
				if !ok {
					return a
				}
				return slog.String(slog.LevelKey, levelLabel(lvl))
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String(a.Key, t.In(tz).Format(time.RFC3339))
			}
			return a
		},
	})
}

// levelLabel renders a slog level, including the custom trace level.
func levelLabel(level slog.Level) string {
	if level <= traceLevelValue {
		return "TRACE"
	}
	return level.String()
}

// NewSlogLogger creates a standalone Logger writing text to w at the given level.
// A nil writer logs to stdout. Used by tests and by code running before the
// central logger is configured.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stdout
	}
	slogLevel := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newTextHandler(w, slogLevel, tz)),
		level:  slogLevel,
	}
}

// NewJSONLogger creates a standalone Logger writing JSON records to w.
func NewJSONLogger(w io.Writer, level LogLevel) Logger {
	slogLevel := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})),
		level:  slogLevel,
	}
}

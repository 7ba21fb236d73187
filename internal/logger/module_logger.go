package logger

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"
)

// moduleLogger is the Logger handed to components. Fields added with With
// are converted to slog attributes once and reused on every record.
type moduleLogger struct {
	module string
	logger *slog.Logger
	level  slog.Level
	attrs  []slog.Attr
}

// Module nests name under the current module ("device" then "capture"
// becomes "device.capture"). The child keeps the parent's level and fields.
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	child := *m
	if m.module != "" {
		child.module = m.module + "." + name
	} else {
		child.module = name
	}
	child.attrs = slices.Clip(m.attrs)
	return &child
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(traceLevelValue, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

// With returns a copy carrying fields on every record. The receiver is left
// unchanged.
func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	child := *m
	child.attrs = make([]slog.Attr, 0, len(m.attrs)+len(fields))
	child.attrs = append(child.attrs, m.attrs...)
	for _, f := range fields {
		child.attrs = append(child.attrs, fieldToAttr(f))
	}
	return &child
}

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}

	attrs := make([]slog.Attr, 0, 1+len(m.attrs)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	attrs = append(attrs, m.attrs...)
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	m.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// fieldToAttr picks the typed slog constructor for a field. Floats are kept
// to three decimals and durations are written as strings so JSON output stays
// readable.
func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case uint32:
		return slog.Uint64(f.Key, uint64(v))
	case float32:
		return slog.Float64(f.Key, round3(float64(v)))
	case float64:
		return slog.Float64(f.Key, round3(v))
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

package profiles

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger routes GORM logging to the module logger.
type gormLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

func newGormLogger(log logger.Logger, debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return &gormLogger{log: log, level: level}
}

// LogMode implements logger.Interface
func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	n := *l
	n.level = level
	return &n
}

// Info implements logger.Interface
func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log.Debug(fmt.Sprintf(msg, data...))
	}
}

// Warn implements logger.Interface
func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

// Error implements logger.Interface
func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace implements logger.Interface
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Error("database query failed",
			logger.String("sql", sql),
			logger.Int64("rows_affected", rows),
			logger.Duration("duration", elapsed),
			logger.Error(err))
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query",
			logger.String("sql", sql),
			logger.Int64("rows_affected", rows),
			logger.Duration("duration", elapsed))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Trace("query",
			logger.String("sql", sql),
			logger.Int64("rows_affected", rows),
			logger.Duration("duration", elapsed))
	}
}

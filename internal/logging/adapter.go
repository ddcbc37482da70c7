package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold is the duration after which a SQL statement is
// logged at warn level.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// GormAdapter adapts an slog.Logger to GORM's logger.Interface so database
// statements land in the same structured stream as the rest of the service.
type GormAdapter struct {
	logger        *slog.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*GormAdapter)(nil)

// NewGormAdapter creates a new GormAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used. Statements are traced at debug
// level; GORM's own level defaults to Warn.
func NewGormAdapter(logger *slog.Logger) *GormAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GormAdapter{
		logger:        logger.With(slog.String(KeyService, "database")),
		level:         gormlogger.Warn,
		slowThreshold: DefaultSlowQueryThreshold,
	}
}

// LogMode returns a copy of the adapter with the given GORM level.
func (a *GormAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *a
	clone.level = level
	return &clone
}

// Info logs a GORM info message.
func (a *GormAdapter) Info(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Info {
		a.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Warn logs a GORM warning.
func (a *GormAdapter) Warn(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Warn {
		a.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Error logs a GORM error.
func (a *GormAdapter) Error(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Error {
		a.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace logs a single executed statement. Record-not-found is expected on
// lookups and is not reported as an error.
func (a *GormAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if a.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []any{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration(KeyDuration, elapsed),
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && a.level >= gormlogger.Error:
		a.logger.ErrorContext(ctx, "SQL statement failed", append(attrs, Err(err))...)
	case a.slowThreshold > 0 && elapsed > a.slowThreshold && a.level >= gormlogger.Warn:
		a.logger.WarnContext(ctx, "Slow SQL statement", attrs...)
	default:
		a.logger.DebugContext(ctx, "SQL statement", attrs...)
	}
}

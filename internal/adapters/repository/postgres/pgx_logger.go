package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/tracelog"

	"github.com/okian/scoreboard/pkg/logger"
)

// pgxLogger adapts pkg/logger to pgx's tracelog interface.
type pgxLogger struct {
	log logger.Logger
}

func newPgxLogger() *pgxLogger {
	return &pgxLogger{log: logger.Get().Named("pgx")}
}

// Log implements tracelog.Logger.
func (l *pgxLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	if level == tracelog.LogLevelNone {
		return
	}
	fields := make([]logger.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, logger.Any(k, v))
	}
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		l.log.Debug(ctx, msg, fields...)
	case tracelog.LogLevelInfo:
		l.log.Info(ctx, msg, fields...)
	case tracelog.LogLevelWarn:
		l.log.Warn(ctx, msg, fields...)
	case tracelog.LogLevelError:
		l.log.Error(ctx, msg, fields...)
	default:
		l.log.Info(ctx, msg, append(fields, logger.String("pgx_log_level", level.String()))...)
	}
}

// traceLevel picks the pgx trace level matching the global log level so SQL
// is only traced when debug logging is on.
func traceLevel() tracelog.LogLevel {
	switch lvl := logger.Level(); {
	case lvl <= slog.LevelDebug:
		return tracelog.LogLevelDebug
	case lvl <= slog.LevelInfo:
		return tracelog.LogLevelInfo
	case lvl <= slog.LevelWarn:
		return tracelog.LogLevelWarn
	default:
		return tracelog.LogLevelError
	}
}

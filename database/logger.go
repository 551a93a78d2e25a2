package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocrud/ioc/logging"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger 把 GORM 日志转到框架日志
type gormLogger struct {
	logger        logging.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(logger logging.Logger, level gormlogger.LogLevel, slow time.Duration) gormlogger.Interface {
	return &gormLogger{logger: logger, level: level, slowThreshold: slow}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logger.Error("query failed",
			logging.Field{Key: "sql", Value: sql},
			logging.Field{Key: "rows", Value: rows},
			logging.Field{Key: "elapsed", Value: elapsed.String()},
			logging.Field{Key: "error", Value: err.Error()})
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger.Warn("slow query",
			logging.Field{Key: "sql", Value: sql},
			logging.Field{Key: "rows", Value: rows},
			logging.Field{Key: "elapsed", Value: elapsed.String()})
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.Debug("query",
			logging.Field{Key: "sql", Value: sql},
			logging.Field{Key: "rows", Value: rows},
			logging.Field{Key: "elapsed", Value: elapsed.String()})
	}
}

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uniedit/payrecon/internal/shared/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// New opens the postgres connection pool. Slow statements and query errors
// are logged through log; record-not-found is not an error here.
func New(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         newQueryLogger(log, cfg.SlowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

// Migrate creates or updates the tables of models.
func Migrate(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close closes the database connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// queryLogger adapts zap to gorm's logger interface.
type queryLogger struct {
	log  *zap.Logger
	slow time.Duration
}

func newQueryLogger(log *zap.Logger, slow time.Duration) gormlogger.Interface {
	if log == nil {
		log = zap.NewNop()
	}
	return &queryLogger{log: log.Named("gorm"), slow: slow}
}

func (l *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *queryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.log.Sugar().Infof(msg, args...)
}

func (l *queryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.log.Sugar().Warnf(msg, args...)
}

func (l *queryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.log.Sugar().Errorf(msg, args...)
}

func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error("query failed",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	case l.slow > 0 && elapsed > l.slow:
		sql, rows := fc()
		l.log.Warn("slow query",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
	}
}

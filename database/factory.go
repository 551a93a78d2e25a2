package database

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gocrud/ioc/logging"
	"gorm.io/gorm"
)

var dbType = reflect.TypeOf((*gorm.DB)(nil))

// DBFactory 工厂组件：按名称获取得到 *gorm.DB，"&" 前缀得到工厂本身。
// 非 Lazy 时在预实例化阶段建立连接并自动迁移模型，容器销毁工厂时关闭连接池
type DBFactory struct {
	opts   DatabaseOptions
	logger logging.Logger

	mu sync.Mutex
	db *gorm.DB
}

// NewDBFactory 创建数据库工厂
func NewDBFactory(opts DatabaseOptions, logger logging.Logger) *DBFactory {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DBFactory{opts: opts, logger: logger}
}

func (f *DBFactory) ObjectType() reflect.Type { return dbType }
func (f *DBFactory) IsSingleton() bool        { return true }
func (f *DBFactory) EagerInit() bool          { return !f.opts.Lazy }
func (f *DBFactory) Options() DatabaseOptions { return f.opts }

// Object 建立或返回已建立的连接
func (f *DBFactory) Object() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db != nil {
		return f.db, nil
	}

	db, err := gorm.Open(f.opts.Dialector, &gorm.Config{
		Logger:                 newGormLogger(f.logger, f.opts.LogLevel, f.opts.SlowThreshold),
		SkipDefaultTransaction: f.opts.SkipDefaultTransaction,
		PrepareStmt:            f.opts.PrepareStmt,
	})
	if err != nil {
		return nil, fmt.Errorf("database: failed to open '%s': %w", f.opts.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: '%s': %w", f.opts.Name, err)
	}
	sqlDB.SetMaxOpenConns(f.opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(f.opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(f.opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(f.opts.ConnMaxIdleTime)

	if f.opts.PingOnCreate {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("database: ping '%s': %w", f.opts.Name, err)
		}
	}

	if len(f.opts.Models) > 0 {
		if err := db.AutoMigrate(f.opts.Models...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("database: migrate '%s': %w", f.opts.Name, err)
		}
	}

	f.logger.Info("Database connected",
		logging.Field{Key: "name", Value: f.opts.Name},
		logging.Field{Key: "dialector", Value: f.opts.Dialector.Name()},
		logging.Field{Key: "models", Value: len(f.opts.Models)})
	f.db = db
	return db, nil
}

// Created 连接是否已经建立
func (f *DBFactory) Created() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db != nil
}

// Destroy 关闭连接池
func (f *DBFactory) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db == nil {
		return nil
	}
	sqlDB, err := f.db.DB()
	f.db = nil
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		return fmt.Errorf("database: failed to close '%s': %w", f.opts.Name, err)
	}
	f.logger.Info("Database closed", logging.Field{Key: "name", Value: f.opts.Name})
	return nil
}

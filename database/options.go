package database

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var validate = validator.New()

// DatabaseOptions 数据库配置选项
type DatabaseOptions struct {
	Name            string         `validate:"required"`
	Dialector       gorm.Dialector `validate:"required"`
	MaxOpenConns    int            `validate:"gte=0"`
	MaxIdleConns    int            `validate:"gte=0"`
	ConnMaxLifetime time.Duration  `validate:"gte=0"`
	ConnMaxIdleTime time.Duration  `validate:"gte=0"`
	// SlowThreshold 慢查询阈值，超过时以 Warn 级别记录
	SlowThreshold time.Duration
	// LogLevel GORM 日志级别，默认只记录错误
	LogLevel gormlogger.LogLevel
	// Models 连接建立后自动迁移的模型
	Models                 []any
	SkipDefaultTransaction bool
	PrepareStmt            bool
	// PingOnCreate 创建时检查连接
	PingOnCreate bool
	// Lazy 第一次获取时才连接
	Lazy bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *DatabaseOptions {
	return &DatabaseOptions{
		Name:          name,
		Dialector:     dialector,
		MaxOpenConns:  10,
		MaxIdleConns:  5,
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormlogger.Error,
		PingOnCreate:  true,
	}
}

// Validate 验证配置
func (o *DatabaseOptions) Validate() error {
	return validate.Struct(o)
}

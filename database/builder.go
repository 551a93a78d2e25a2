package database

import (
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Builder 数据库配置构建器
type Builder struct {
	configs []*DatabaseOptions
	names   map[string]struct{}
	errs    error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// Add 添加数据库配置
// name: 实例名称
// dialector: GORM 驱动 (e.g. sqlite.Open(dsn))
// configure: 可选的配置函数
func (b *Builder) Add(name string, dialector gorm.Dialector, configure func(*DatabaseOptions)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errs = multierr.Append(b.errs, fmt.Errorf("database '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, dialector)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errs = multierr.Append(b.errs, fmt.Errorf("invalid configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, opts)
	return b
}

// Build 返回按添加顺序排列的配置
func (b *Builder) Build() ([]*DatabaseOptions, error) {
	if b.errs != nil {
		return nil, fmt.Errorf("database configuration errors: %w", b.errs)
	}
	return b.configs, nil
}

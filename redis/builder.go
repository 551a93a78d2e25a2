package redis

import (
	"fmt"

	"go.uber.org/multierr"
)

// Builder Redis 客户端配置构建器
type Builder struct {
	configs []*ClientOptions
	names   map[string]struct{}
	errs    error
}

// NewBuilder 创建 Redis 构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// AddClient 添加一个 Redis 客户端配置
func (b *Builder) AddClient(name string, configure func(*ClientOptions)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errs = multierr.Append(b.errs, fmt.Errorf("redis client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errs = multierr.Append(b.errs, fmt.Errorf("invalid redis configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, opts)
	return b
}

// Build 返回按添加顺序排列的配置，汇总所有配置错误
func (b *Builder) Build() ([]*ClientOptions, error) {
	if b.errs != nil {
		return nil, fmt.Errorf("redis configuration errors: %w", b.errs)
	}
	return b.configs, nil
}

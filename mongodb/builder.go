package mongodb

import (
	"fmt"

	"go.uber.org/multierr"
)

// Builder MongoDB 客户端配置构建器
type Builder struct {
	configs []*MongoOptions
	names   map[string]struct{}
	errs    error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// Add 添加客户端配置
func (b *Builder) Add(name, uri string, configure func(*MongoOptions)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errs = multierr.Append(b.errs, fmt.Errorf("mongodb client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, uri)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errs = multierr.Append(b.errs, fmt.Errorf("invalid mongodb configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, opts)
	return b
}

// Build 返回按添加顺序排列的配置
func (b *Builder) Build() ([]*MongoOptions, error) {
	if b.errs != nil {
		return nil, fmt.Errorf("mongodb configuration errors: %w", b.errs)
	}
	return b.configs, nil
}

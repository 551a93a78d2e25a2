package etcd

import (
	"fmt"

	"go.uber.org/multierr"
)

// Builder etcd 客户端配置构建器
type Builder struct {
	configs []*ClientOptions
	names   map[string]struct{}
	errs    error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]struct{})}
}

// AddClient 添加客户端配置
func (b *Builder) AddClient(name string, configure func(*ClientOptions)) *Builder {
	if _, exists := b.names[name]; exists {
		b.errs = multierr.Append(b.errs, fmt.Errorf("etcd client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errs = multierr.Append(b.errs, fmt.Errorf("invalid etcd configuration for '%s': %w", name, err))
		return b
	}

	b.names[name] = struct{}{}
	b.configs = append(b.configs, opts)
	return b
}

// Build 返回按添加顺序排列的配置
func (b *Builder) Build() ([]*ClientOptions, error) {
	if b.errs != nil {
		return nil, fmt.Errorf("etcd configuration errors: %w", b.errs)
	}
	return b.configs, nil
}

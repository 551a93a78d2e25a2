package etcd

import (
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// DefaultName 默认客户端名
const DefaultName = "default"

// ComponentName 客户端在容器中的组件名
func ComponentName(name string) string {
	return "etcd." + name
}

// BuilderOption 用于配置 Etcd Builder
type BuilderOption func(*Builder)

// WithClient 添加 Etcd 客户端配置
func WithClient(name string, opts ...func(*ClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, func(o *ClientOptions) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// New 启用 Etcd 能力：每个客户端注册为一个 ClientFactory 工厂组件
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}
		configs, err := builder.Build()
		if err != nil {
			return err
		}

		for _, o := range configs {
			o := *o
			defOpts := []di.Option{
				di.WithFactoryFunc("NewClientFactory", func() *ClientFactory { return NewClientFactory(o) }),
				di.WithObjectType(clientType),
				di.WithDescription(fmt.Sprintf("etcd client %s %v", o.Name, o.Endpoints)),
			}
			if o.Name == DefaultName {
				defOpts = append(defOpts, di.WithPrimary())
			}
			if err := rt.Container.Register(ComponentName(o.Name), di.NewDefinition(nil, defOpts...)); err != nil {
				return fmt.Errorf("etcd: failed to register client '%s': %w", o.Name, err)
			}
		}
		return nil
	}
}

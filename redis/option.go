package redis

import (
	"context"
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/redis/go-redis/v9"
)

// DefaultName 默认客户端名，对应的组件按类型注入时优先
const DefaultName = "default"

// ComponentName 客户端在容器中的组件名
func ComponentName(name string) string {
	return "redis." + name
}

// BuilderOption 用于配置 Redis Builder
type BuilderOption func(*Builder)

// WithClient 添加 Redis 客户端配置
func WithClient(name string, opts ...func(*ClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, func(o *ClientOptions) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// New 启用 Redis 能力：每个客户端注册为 *redis.Client 单例，容器销毁时 Close
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
			if err := rt.Container.Register(ComponentName(o.Name), definition(o)); err != nil {
				return fmt.Errorf("redis: failed to register client '%s': %w", o.Name, err)
			}
		}
		return nil
	}
}

func definition(o *ClientOptions) *di.Definition {
	opts := []di.Option{
		di.WithFactoryFunc("NewClient", func() (*redis.Client, error) {
			client := redis.NewClient(o.toRedis())
			if !o.PingOnCreate {
				return client, nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), o.DialTimeout)
			defer cancel()
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("redis: ping %s: %w", o.Addr, err)
			}
			return client, nil
		}),
		di.WithDestroyMethod("Close"),
		di.WithDescription(fmt.Sprintf("redis client %s (%s/%d)", o.Name, o.Addr, o.DB)),
	}
	if o.Name == DefaultName {
		opts = append(opts, di.WithPrimary())
	}
	if o.Lazy {
		opts = append(opts, di.WithLazy())
	}
	return di.NewDefinition(nil, opts...)
}

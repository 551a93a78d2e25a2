package mongodb

import (
	"context"
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultName 默认客户端名，按类型注入时优先
const DefaultName = "default"

// ComponentName 客户端在容器中的组件名
func ComponentName(name string) string {
	return "mongodb." + name
}

// DatabaseComponentName 客户端默认数据库的组件名
func DatabaseComponentName(name string) string {
	return ComponentName(name) + ".database"
}

// BuilderOption 用于配置 MongoDB Builder
type BuilderOption func(*Builder)

// WithClient 添加 MongoDB 客户端配置
func WithClient(name string, uri string, opts ...func(*MongoOptions)) BuilderOption {
	return func(b *Builder) {
		b.Add(name, uri, func(o *MongoOptions) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// New 启用 MongoDB 能力：每个客户端注册为 *mongo.Client 单例，容器销毁时 Disconnect。
// 配置了 Database 的客户端同时注册对应的 *mongo.Database
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
			if err := rt.Container.Register(ComponentName(o.Name), clientDefinition(o)); err != nil {
				return fmt.Errorf("mongodb: failed to register client '%s': %w", o.Name, err)
			}
			if o.Database == "" {
				continue
			}
			if err := rt.Container.Register(DatabaseComponentName(o.Name), databaseDefinition(o)); err != nil {
				return fmt.Errorf("mongodb: failed to register database '%s': %w", o.Database, err)
			}
		}
		return nil
	}
}

func clientDefinition(o *MongoOptions) *di.Definition {
	opts := []di.Option{
		di.WithFactoryFunc("Connect", func() (*mongo.Client, error) {
			client, err := mongo.Connect(o.toClientOptions())
			if err != nil {
				return nil, fmt.Errorf("mongodb: connect '%s': %w", o.Name, err)
			}
			if !o.PingOnCreate {
				return client, nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), o.ServerSelectionTimeout)
			defer cancel()
			if err := client.Ping(ctx, readpref.Primary()); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, fmt.Errorf("mongodb: ping '%s': %w", o.Name, err)
			}
			return client, nil
		}),
		di.WithDestroyMethod("Disconnect"),
		di.WithDescription(fmt.Sprintf("mongodb client %s", o.Name)),
	}
	if o.Name == DefaultName {
		opts = append(opts, di.WithPrimary())
	}
	if o.Lazy {
		opts = append(opts, di.WithLazy())
	}
	return di.NewDefinition(nil, opts...)
}

func databaseDefinition(o *MongoOptions) *di.Definition {
	opts := []di.Option{
		di.WithFactoryFunc("Database", func(client *mongo.Client) *mongo.Database {
			return client.Database(o.Database)
		}),
		di.WithArg(di.Ref{Name: ComponentName(o.Name)}),
		di.WithDescription(fmt.Sprintf("mongodb database %s/%s", o.Name, o.Database)),
	}
	if o.Name == DefaultName {
		opts = append(opts, di.WithPrimary())
	}
	if o.Lazy {
		opts = append(opts, di.WithLazy())
	}
	return di.NewDefinition(nil, opts...)
}

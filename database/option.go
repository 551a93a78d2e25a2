package database

import (
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"gorm.io/gorm"
)

// DefaultName 默认数据库名，按类型注入 *gorm.DB 时优先
const DefaultName = "default"

// ComponentName 数据库在容器中的组件名
func ComponentName(name string) string {
	return "database." + name
}

// BuilderOption 用于配置 Database Builder
type BuilderOption func(*Builder)

// WithDatabase 添加数据库配置
func WithDatabase(name string, dialector gorm.Dialector, opts ...func(*DatabaseOptions)) BuilderOption {
	return func(b *Builder) {
		b.Add(name, dialector, func(o *DatabaseOptions) {
			for _, opt := range opts {
				opt(o)
			}
		})
	}
}

// New 启用数据库能力：每个数据库注册为一个 DBFactory 工厂组件
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
				di.WithFactoryFunc("NewDBFactory", func(logger logging.Logger) *DBFactory {
					return NewDBFactory(o, logger.WithCategory("database"))
				}),
				di.WithAutowire(di.AutowireConstructor),
				di.WithObjectType(dbType),
				di.WithDescription(fmt.Sprintf("gorm database %s (%s)", o.Name, o.Dialector.Name())),
			}
			if o.Name == DefaultName {
				defOpts = append(defOpts, di.WithPrimary())
			}
			if err := rt.Container.Register(ComponentName(o.Name), di.NewDefinition(nil, defOpts...)); err != nil {
				return fmt.Errorf("database: failed to register '%s': %w", o.Name, err)
			}
		}
		return nil
	}
}

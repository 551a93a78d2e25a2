package autoproxy

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// ComponentName 自动代理后处理器的组件名
const ComponentName = "autoProxyCreator"

// Enable 把 Creator 注册为后处理器组件，容器中的 Advisor 组件会自动参与匹配
func Enable(opts ...Option) core.Option {
	return func(rt *core.Runtime) error {
		_, err := di.RegisterAuto(rt.Container, ComponentName, func(logger logging.Logger) *Creator {
			return New(append([]Option{WithLogger(logger.WithCategory("autoproxy"))}, opts...)...)
		})
		return err
	}
}

// WithAdvisor 把 Advisor 注册为组件
func WithAdvisor(name string, advisor Advisor) core.Option {
	return func(rt *core.Runtime) error {
		return rt.Container.RegisterSingleton(name, advisor)
	}
}

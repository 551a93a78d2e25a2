package web

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// HostComponentName Web 主机组件名
const HostComponentName = "webHost"

// BuilderOption 用于配置 Web Builder
type BuilderOption func(*Builder)

// WithHost 设置监听的主机名
func WithHost(host string) BuilderOption {
	return func(b *Builder) {
		b.UseHost(host)
	}
}

// WithPort 设置端口
func WithPort(port int) BuilderOption {
	return func(b *Builder) {
		b.UsePort(port)
	}
}

// WithControllers 添加控制器
func WithControllers(controllers ...any) BuilderOption {
	return func(b *Builder) {
		b.AddControllers(controllers...)
	}
}

// WithMiddleware 添加全局中间件
func WithMiddleware(middleware ...gin.HandlerFunc) BuilderOption {
	return func(b *Builder) {
		b.Use(middleware...)
	}
}

// WithRoutes 直接在引擎上注册路由
func WithRoutes(mount func(router gin.IRouter)) BuilderOption {
	return func(b *Builder) {
		mount(b.engine)
	}
}

// WithDebugEndpoints 开启 /debug/components
func WithDebugEndpoints() BuilderOption {
	return func(b *Builder) {
		b.EnableDebugEndpoints()
	}
}

// WithMetrics 在 path 上暴露容器指标，需要同时启用 metrics
func WithMetrics(path string) BuilderOption {
	return func(b *Builder) {
		b.EnableMetrics(path)
	}
}

// WithoutRequestLogging 关闭请求日志
func WithoutRequestLogging() BuilderOption {
	return func(b *Builder) {
		b.DisableRequestLogging()
	}
}

// New 启用 Web 能力：控制器注册为组件，Host 注册为托管服务
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		for _, ctrl := range builder.controllers {
			name, err := rt.Provide(ctrl)
			if err != nil {
				return fmt.Errorf("web: failed to register controller %T: %w", ctrl, err)
			}
			typ, err := rt.Container.TypeOf(name)
			if err != nil {
				return fmt.Errorf("web: %w", err)
			}
			if typ == nil || !typ.Implements(controllerType) {
				return fmt.Errorf("web: controller %s (%v) does not implement web.Controller", name, typ)
			}
		}

		return core.ProvideNamed(HostComponentName, func(logger logging.Logger) *Host {
			return builder.Build(logger.WithCategory("web"))
		}, di.WithDescription("gin web host"))(rt)
	}
}

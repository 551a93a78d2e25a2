package core

import (
	"context"
	"fmt"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Option 定义了修改 Runtime 状态的函数签名
// 这是框架唯一的扩展点
type Option func(rt *Runtime) error

// WithEnvironment 设置运行环境名称
func WithEnvironment(name string) Option {
	return func(rt *Runtime) error {
		rt.SetEnvironment(NewEnvironment(name))
		return nil
	}
}

// WithLogging 按选项重建日志
func WithLogging(opts logging.Options) Option {
	return func(rt *Runtime) error {
		rt.ConfigureLogging(opts)
		return nil
	}
}

// WithContainerSettings 设置容器行为开关（循环引用、覆盖定义等）
func WithContainerSettings(settings di.Settings) Option {
	return func(rt *Runtime) error {
		rt.Container.SetSettings(settings)
		return nil
	}
}

// WithComponent 以显式定义注册组件
func WithComponent(name string, def *di.Definition) Option {
	return func(rt *Runtime) error {
		if err := rt.Container.Register(name, def); err != nil {
			return fmt.Errorf("WithComponent: %w", err)
		}
		return nil
	}
}

// Provide 注册构造函数、实例或类型
func Provide(target any, opts ...di.Option) Option {
	return func(rt *Runtime) error {
		if _, err := rt.Provide(target, opts...); err != nil {
			return fmt.Errorf("Provide: %w", err)
		}
		return nil
	}
}

// ProvideNamed 以指定名称注册
func ProvideNamed(name string, target any, opts ...di.Option) Option {
	return func(rt *Runtime) error {
		if _, err := di.RegisterAuto(rt.Container, name, target, opts...); err != nil {
			return fmt.Errorf("ProvideNamed: %w", err)
		}
		return nil
	}
}

// WithSingleton 注册已创建好的单例，不经过创建流程
func WithSingleton(name string, instance any) Option {
	return func(rt *Runtime) error {
		return rt.Container.RegisterSingleton(name, instance)
	}
}

// WithPostProcessor 直接添加后处理器实例
func WithPostProcessor(processor any) Option {
	return func(rt *Runtime) error {
		return rt.Container.AddPostProcessor(processor)
	}
}

// WithShutdownTimeout 设置关闭超时
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(rt *Runtime) error {
		rt.ShutdownTimeout = timeout
		return nil
	}
}

// OnStart 注册启动钩子
func OnStart(fn func(ctx context.Context) error) Option {
	return func(rt *Runtime) error {
		rt.Lifecycle.OnStart(fn)
		return nil
	}
}

// OnStop 注册停止钩子
func OnStop(fn func(ctx context.Context) error) Option {
	return func(rt *Runtime) error {
		rt.Lifecycle.OnStop(fn)
		return nil
	}
}

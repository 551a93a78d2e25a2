package core

import (
	"context"
	"fmt"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
)

// WithHostedService 注册一个托管服务
// 服务必须实现 HostedService 接口。
// 刷新完成后框架在 goroutine 中调用 Start，关闭时调用 Stop。
func WithHostedService(target any, opts ...di.Option) Option {
	return func(rt *Runtime) error {
		name, err := rt.Provide(target, opts...)
		if err != nil {
			return fmt.Errorf("WithHostedService: failed to provide service: %w", err)
		}

		serviceType, err := rt.Container.TypeOf(name)
		if err != nil {
			return fmt.Errorf("WithHostedService: %w", err)
		}
		if serviceType == nil || !serviceType.Implements(di.TypeOf[HostedService]()) {
			return fmt.Errorf("WithHostedService: service %v does not implement core.HostedService", serviceType)
		}
		return nil
	}
}

// WorkerFunc 定义简单的后台任务函数
// 这是一个阻塞函数，通过 ctx.Done() 判断退出。
type WorkerFunc func(ctx context.Context) error

// WithWorker 将一个阻塞的函数注册为后台服务
func WithWorker(name string, fn WorkerFunc) Option {
	return func(rt *Runtime) error {
		return rt.Container.RegisterSingleton(name, hosting.NewWorker(name, fn))
	}
}

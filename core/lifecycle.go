package core

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// LifecycleEvents 管理应用程序的启动与停止钩子
type LifecycleEvents struct {
	mu      sync.Mutex
	onStart []func(context.Context) error
	onStop  []func(context.Context) error
}

// NewLifecycle 创建新的生命周期管理器
func NewLifecycle() *LifecycleEvents {
	return &LifecycleEvents{}
}

// OnStart 注册启动钩子，单例预实例化之后按注册顺序执行
func (l *LifecycleEvents) OnStart(fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStart = append(l.onStart, fn)
}

// OnStop 注册停止钩子，单例销毁之前倒序执行
func (l *LifecycleEvents) OnStop(fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStop = append(l.onStop, fn)
}

// Start 执行启动钩子，遇到第一个错误即返回
func (l *LifecycleEvents) Start(ctx context.Context) error {
	l.mu.Lock()
	hooks := append([]func(context.Context) error(nil), l.onStart...)
	l.mu.Unlock()

	for _, fn := range hooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop 倒序执行停止钩子，出错也继续，错误聚合返回
func (l *LifecycleEvents) Stop(ctx context.Context) error {
	l.mu.Lock()
	hooks := append([]func(context.Context) error(nil), l.onStop...)
	l.mu.Unlock()

	var errs error
	for i := len(hooks) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, hooks[i](ctx))
	}
	return errs
}

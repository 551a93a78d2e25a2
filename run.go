package app

import (
	"context"

	"github.com/gocrud/ioc/core"
)

// Run 启动应用程序并阻塞，直到收到退出信号或运行时请求退出
func Run(opts ...core.Option) error {
	return RunContext(context.Background(), opts...)
}

// RunContext 同 Run，ctx 结束时也会退出
func RunContext(ctx context.Context, opts ...core.Option) error {
	rt, err := New(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

package app

import "github.com/gocrud/ioc/core"

// New 创建运行时并应用所有选项，尚未刷新
// 这是创建应用程序的入口点
func New(opts ...core.Option) (*core.Runtime, error) {
	rt := core.NewRuntime()
	if err := rt.Apply(opts...); err != nil {
		return nil, err
	}
	return rt, nil
}

package core

import "github.com/gocrud/ioc/hosting"

// HostedService 具有启动和停止生命周期的托管服务。
// 容器中实现此接口的单例组件会在 Refresh 时按注册顺序启动（Start 在独立的 goroutine 中调用，允许阻塞），
// Close 时按相反顺序停止。Start 返回非取消类错误会触发运行时退出。
type HostedService = hosting.HostedService

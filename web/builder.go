package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/logging"
)

// Controller 控制器接口：容器中实现此接口的组件在 Host 启动时注册路由
type Controller interface {
	// MountRoutes 注册路由
	MountRoutes(router gin.IRouter)
}

// Builder Web 主机构建器（基于 Gin）
type Builder struct {
	host           string
	port           int
	engine         *gin.Engine
	controllers    []any // 控制器构造函数或实例
	debugEndpoints bool
	metricsPath    string
	requestLogging bool
	logger         logging.Logger
}

// NewBuilder 创建 Web 构建器
func NewBuilder() *Builder {
	// 设置 Gin 为发布模式（默认）
	gin.SetMode(gin.ReleaseMode)

	b := &Builder{
		port:           8080,
		engine:         gin.New(),
		requestLogging: true,
		logger:         logging.NewNopLogger(),
	}
	// 默认中间件：恢复 panic、请求 ID 与请求日志
	b.engine.Use(gin.Recovery(), b.requestLogger())
	return b
}

// UseHost 设置监听的主机名，默认监听所有地址
func (b *Builder) UseHost(host string) *Builder {
	b.host = host
	return b
}

// UsePort 设置端口，0 表示随机端口
func (b *Builder) UsePort(port int) *Builder {
	b.port = port
	return b
}

// Use 使用全局中间件
func (b *Builder) Use(middleware ...gin.HandlerFunc) *Builder {
	b.engine.Use(middleware...)
	return b
}

// AddControllers 注册控制器
// 传入参数可以是：
// 1. 控制器的构造函数 (例如 NewUserController) -> 推荐，支持构造函数注入
// 2. 控制器实例指针 (例如 &UserController{}) -> 支持字段注入 (di tag)
// 这些控制器会注册为容器组件，Host 启动时解析并注册路由
func (b *Builder) AddControllers(controllers ...any) *Builder {
	b.controllers = append(b.controllers, controllers...)
	return b
}

// Get 注册 GET 路由
func (b *Builder) Get(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.GET(path, handlers...)
	return b
}

// Post 注册 POST 路由
func (b *Builder) Post(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.POST(path, handlers...)
	return b
}

// Put 注册 PUT 路由
func (b *Builder) Put(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.PUT(path, handlers...)
	return b
}

// Delete 注册 DELETE 路由
func (b *Builder) Delete(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.DELETE(path, handlers...)
	return b
}

// Group 创建路由组
func (b *Builder) Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return b.engine.Group(relativePath, handlers...)
}

// Static 服务静态文件
func (b *Builder) Static(relativePath, root string) *Builder {
	b.engine.Static(relativePath, root)
	return b
}

// StaticFS 服务静态文件系统
func (b *Builder) StaticFS(relativePath string, fs http.FileSystem) *Builder {
	b.engine.StaticFS(relativePath, fs)
	return b
}

// NoRoute 处理 404
func (b *Builder) NoRoute(handlers ...gin.HandlerFunc) *Builder {
	b.engine.NoRoute(handlers...)
	return b
}

// EnableDebugEndpoints 开启 /debug/components 组件列表
func (b *Builder) EnableDebugEndpoints() *Builder {
	b.debugEndpoints = true
	return b
}

// EnableMetrics 容器启用了指标收集时在 path 上暴露 Prometheus 指标
func (b *Builder) EnableMetrics(path string) *Builder {
	b.metricsPath = path
	return b
}

// DisableRequestLogging 关闭请求日志
func (b *Builder) DisableRequestLogging() *Builder {
	b.requestLogging = false
	return b
}

// Engine 获取 Gin 引擎（用于高级定制）
func (b *Builder) Engine() *gin.Engine {
	return b.engine
}

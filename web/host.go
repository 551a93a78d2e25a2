package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/metrics"
)

var controllerType = di.TypeOf[Controller]()

// Host Web 主机，作为托管服务随运行时启动和停止
type Host struct {
	addr      string
	engine    *gin.Engine
	server    *http.Server
	logger    logging.Logger
	container *di.Container
	builder   *Builder

	mu    sync.RWMutex
	bound string
	ready chan struct{}
}

// Build 构建 Web 主机
func (b *Builder) Build(logger logging.Logger) *Host {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	b.logger = logger
	addr := net.JoinHostPort(b.host, strconv.Itoa(b.port))
	return &Host{
		addr:   addr,
		engine: b.engine,
		server: &http.Server{
			Addr:    addr,
			Handler: b.engine,
		},
		logger:  logger,
		builder: b,
		ready:   make(chan struct{}),
	}
}

func (h *Host) SetContainer(c *di.Container) { h.container = c }

// Engine 获取 Gin 引擎
func (h *Host) Engine() *gin.Engine { return h.engine }

// Address 获取实际监听地址 (e.g., "[::]:50234")，仅在 Ready 之后有效
func (h *Host) Address() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bound
}

// Ready 开始监听后关闭
func (h *Host) Ready() <-chan struct{} { return h.ready }

// Start 启动 Web 主机
// 注意：此方法会阻塞，直到服务退出。框架会在独立的 Goroutine 中调用它。
func (h *Host) Start(ctx context.Context) error {
	// 1. 解析并注册控制器路由
	if err := h.mapControllers(); err != nil {
		return fmt.Errorf("web: failed to map controllers: %w", err)
	}
	if err := h.mapBuiltins(); err != nil {
		return err
	}

	// 2. 监听端口 (同步，确保端口可用)
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", h.addr, err)
	}

	h.mu.Lock()
	h.bound = ln.Addr().String()
	h.mu.Unlock()
	close(h.ready)

	h.logger.Info("Web host started", logging.Field{Key: "address", Value: h.Address()})

	// 3. 启动服务 (阻塞)
	// Serve 会一直阻塞直到 Shutdown 被调用或发生错误
	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("Web host error", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}

// Stop 停止 Web 主机
func (h *Host) Stop(ctx context.Context) error {
	h.logger.Info("Stopping web host")

	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error("Failed to shutdown web host gracefully",
			logging.Field{Key: "error", Value: err.Error()})
		return err
	}

	h.logger.Info("Web host stopped")
	return nil
}

// mapControllers 从容器解析所有 Controller 组件并注册路由，按注册顺序
func (h *Host) mapControllers() error {
	if h.container == nil {
		return errors.New("container not set")
	}
	for _, name := range h.container.ComponentNamesForType(controllerType, false, true) {
		ctrl, err := di.ResolveNamed[Controller](h.container, name)
		if err != nil {
			return fmt.Errorf("failed to resolve controller %s: %w", name, err)
		}
		ctrl.MountRoutes(h.engine)
		h.logger.Debug("Mapped controller routes", logging.Field{Key: "controller", Value: name})
	}
	return nil
}

func (h *Host) mapBuiltins() error {
	if h.builder.debugEndpoints {
		h.engine.GET("/debug/components", h.listComponents)
	}
	if h.builder.metricsPath == "" {
		return nil
	}
	if !h.container.ContainsComponent(metrics.ComponentName) {
		h.logger.Warn("metrics endpoint requested but metrics collection is not enabled")
		return nil
	}
	collector, err := di.ResolveNamed[*metrics.Collector](h.container, metrics.ComponentName)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	h.engine.GET(h.builder.metricsPath, gin.WrapH(collector.Handler()))
	return nil
}

package core

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
	"go.uber.org/multierr"
)

// 容器中注册的运行时组件名
const (
	LoggerFactoryComponentName = "loggerFactory"
	EnvironmentComponentName   = "environment"
	RuntimeComponentName       = "runtime"
)

const (
	stateNew int32 = iota
	stateRefreshing
	stateRunning
	stateClosed
)

// ErrAlreadyRefreshed Refresh 只能调用一次
var ErrAlreadyRefreshed = errors.New("core: runtime already refreshed")

// Runtime 应用上下文：持有容器，负责刷新（后处理器注册、单例预实例化、启动托管服务）与关闭
type Runtime struct {
	// Container 核心依赖注入容器
	Container *di.Container

	// Lifecycle 启动/停止钩子
	Lifecycle *LifecycleEvents

	// ShutdownTimeout Run 收到退出信号后留给关闭流程的时间
	ShutdownTimeout time.Duration

	// ErrorHandler 用于记录运行时产生的严重错误，默认写日志
	ErrorHandler func(err error)

	mu          sync.RWMutex
	loggers     logging.LoggerFactory
	logger      logging.Logger
	environment Environment
	hosted      *hosting.HostedServiceManager
	runCancel   context.CancelFunc

	state        atomic.Int32
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewRuntime 创建运行时，默认输出 Info 级别的控制台日志
func NewRuntime(opts ...di.ContainerOption) *Runtime {
	loggers := logging.NewLoggingBuilder().Configure(logging.DefaultOptions()).Build()
	logger := loggers.CreateLogger("runtime")

	rt := &Runtime{
		Lifecycle:       NewLifecycle(),
		ShutdownTimeout: 30 * time.Second,
		loggers:         loggers,
		logger:          logger,
		environment:     EnvironmentFromEnv(),
		shutdownCh:      make(chan struct{}),
	}
	rt.Container = di.NewContainer(append([]di.ContainerOption{di.WithLogger(logger)}, opts...)...)
	rt.ErrorHandler = func(err error) {
		rt.Logger().Error("runtime error", logging.Field{Key: "error", Value: err})
	}
	return rt
}

// Logger 运行时日志
func (rt *Runtime) Logger() logging.Logger {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.logger
}

// LoggerFactory 当前日志工厂
func (rt *Runtime) LoggerFactory() logging.LoggerFactory {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.loggers
}

// ConfigureLogging 按选项重建日志工厂，容器日志随之切换
func (rt *Runtime) ConfigureLogging(opts logging.Options) {
	loggers := logging.NewLoggingBuilder().Configure(opts).Build()
	logger := loggers.CreateLogger("runtime")

	rt.mu.Lock()
	previous := rt.loggers
	rt.loggers, rt.logger = loggers, logger
	rt.mu.Unlock()

	rt.Container.SetLogger(logger)
	if previous != nil {
		_ = previous.Close()
	}
}

// Environment 运行环境
func (rt *Runtime) Environment() Environment {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.environment
}

// SetEnvironment 设置运行环境
func (rt *Runtime) SetEnvironment(env Environment) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.environment = env
}

// Apply 应用多个 Option
func (rt *Runtime) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return err
		}
	}
	return nil
}

// Provide 注册组件（构造函数、实例或类型），返回组件名
func (rt *Runtime) Provide(target any, opts ...di.Option) (string, error) {
	return di.RegisterAuto(rt.Container, "", target, opts...)
}

// Shutdown 请求应用退出，可重复调用
func (rt *Runtime) Shutdown() {
	rt.shutdownOnce.Do(func() {
		close(rt.shutdownCh)
	})
}

// Done 返回一个通道，当应用需要退出时该通道会关闭
func (rt *Runtime) Done() <-chan struct{} {
	return rt.shutdownCh
}

// Refresh 刷新运行时：
//  1. 注册运行时组件；
//  2. 实例化并注册后处理器组件（PriorityOrdered、Ordered、其余）；
//  3. 预实例化非延迟单例；
//  4. 执行启动钩子，启动托管服务。
//
// 任一步骤失败时销毁已创建的单例。
func (rt *Runtime) Refresh(ctx context.Context) (err error) {
	if !rt.state.CompareAndSwap(stateNew, stateRefreshing) {
		return ErrAlreadyRefreshed
	}
	logger := rt.Logger()
	started := time.Now()

	defer func() {
		if err == nil {
			rt.state.Store(stateRunning)
			return
		}
		logger.Error("runtime refresh failed, destroying singletons", logging.Field{Key: "error", Value: err})
		rt.cancelRun()
		err = multierr.Append(err, rt.Container.DestroySingletons())
		rt.state.Store(stateClosed)
	}()

	if err := rt.registerRuntimeComponents(); err != nil {
		return err
	}
	if err := rt.registerPostProcessors(); err != nil {
		return err
	}
	if err := rt.Container.PreInstantiateSingletons(); err != nil {
		return err
	}
	if err := rt.start(ctx); err != nil {
		return err
	}

	logger.Info("runtime refreshed",
		logging.Field{Key: "environment", Value: rt.Environment().Name()},
		logging.Field{Key: "singletons", Value: rt.Container.SingletonCount()},
		logging.Field{Key: "elapsed", Value: time.Since(started)})
	return nil
}

func (rt *Runtime) registerRuntimeComponents() error {
	c := rt.Container
	rt.mu.RLock()
	loggers, logger, env := rt.loggers, rt.logger, rt.environment
	rt.mu.RUnlock()

	c.RegisterResolvableDependency(di.TypeOf[logging.LoggerFactory](), loggers)
	c.RegisterResolvableDependency(di.TypeOf[logging.Logger](), logger)
	c.RegisterResolvableDependency(di.TypeOf[Environment](), env)
	c.RegisterResolvableDependency(reflect.TypeOf(rt), rt)

	for name, instance := range map[string]any{
		LoggerFactoryComponentName: loggers,
		EnvironmentComponentName:   env,
		RuntimeComponentName:       rt,
	} {
		if c.ContainsComponent(name) {
			continue
		}
		if err := c.RegisterSingleton(name, instance); err != nil {
			return err
		}
	}
	return nil
}

// registerPostProcessors 先注册 PriorityOrdered，使其作用于之后创建的后处理器
func (rt *Runtime) registerPostProcessors() error {
	priorityType := di.TypeOf[di.PriorityOrdered]()
	orderedType := di.TypeOf[di.Ordered]()

	var priority, ordered, plain []string
	for _, name := range rt.Container.ComponentNames() {
		typ, err := rt.Container.TypeOf(name)
		if err != nil || !di.IsPostProcessorType(typ) {
			continue
		}
		switch {
		case typ.Implements(priorityType):
			priority = append(priority, name)
		case typ.Implements(orderedType):
			ordered = append(ordered, name)
		default:
			plain = append(plain, name)
		}
	}

	for _, group := range [][]string{priority, ordered, plain} {
		for _, name := range group {
			processor, err := rt.Container.GetComponent(name)
			if err != nil {
				return err
			}
			if err := rt.Container.AddPostProcessor(processor); err != nil {
				return err
			}
		}
	}
	return nil
}

// start 先执行启动钩子，再启动容器中的托管服务
func (rt *Runtime) start(ctx context.Context) error {
	if err := rt.Lifecycle.Start(ctx); err != nil {
		return err
	}

	// 按注册顺序发现容器中的托管服务
	manager := hosting.NewHostedServiceManager(rt.Logger().WithCategory("hosting"))
	for _, name := range rt.Container.ComponentNamesForType(di.TypeOf[HostedService](), false, true) {
		svc, err := di.ResolveNamed[HostedService](rt.Container, name)
		if err != nil {
			return err
		}
		manager.Add(name, svc)
	}

	// 托管服务的生命周期跟随运行时而不是 Refresh 的 ctx
	runCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.hosted, rt.runCancel = manager, cancel
	rt.mu.Unlock()

	errCh := manager.StartAll(runCtx)
	go func() {
		for err := range errCh {
			if rt.ErrorHandler != nil {
				rt.ErrorHandler(err)
			}
			// 托管服务失败时整体退出
			rt.Shutdown()
		}
	}()
	return nil
}

func (rt *Runtime) cancelRun() {
	rt.mu.RLock()
	cancel := rt.runCancel
	rt.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Close 关闭运行时：取消并停止托管服务，倒序执行停止钩子，销毁单例，最后关闭日志
func (rt *Runtime) Close(ctx context.Context) error {
	if !rt.state.CompareAndSwap(stateRunning, stateClosed) {
		rt.Shutdown()
		return nil
	}
	logger := rt.Logger()
	logger.Info("closing runtime")

	var errs error
	rt.cancelRun()

	rt.mu.RLock()
	hosted := rt.hosted
	rt.mu.RUnlock()
	if hosted != nil {
		errs = multierr.Append(errs, hosted.StopAll(ctx))
		errs = multierr.Append(errs, hosted.Wait(ctx))
	}
	errs = multierr.Append(errs, rt.Lifecycle.Stop(ctx))
	errs = multierr.Append(errs, rt.Container.DestroySingletons())

	if errs != nil {
		logger.Warn("runtime closed with errors", logging.Field{Key: "error", Value: errs})
	} else {
		logger.Info("runtime closed")
	}
	rt.Shutdown()
	return multierr.Append(errs, rt.LoggerFactory().Close())
}

// Run 刷新运行时并阻塞，直到收到退出信号、ctx 结束或运行时请求退出，然后在 ShutdownTimeout 内关闭
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.Refresh(ctx); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	logger := rt.Logger()
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.Field{Key: "signal", Value: sig.String()})
	case <-rt.Done():
		logger.Info("runtime shutdown requested")
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.ShutdownTimeout)
	defer cancel()
	return rt.Close(shutdownCtx)
}

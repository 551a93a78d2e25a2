package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/ioc/logging"
	"go.uber.org/multierr"
)

// HostedService 托管服务接口（类似于 .NET Core IHostedService）
// 框架会自动在 goroutine 中调用 Start，用户无需自己启动 goroutine
type HostedService interface {
	// Start 启动服务。该方法可以阻塞，直到 context 被取消或发生错误。
	Start(ctx context.Context) error

	// Stop 执行优雅关闭逻辑，必须支持通过 ctx 进行超时控制。
	// Start 的 context 在 Stop 之前已被取消。
	Stop(ctx context.Context) error
}

type namedService struct {
	name    string
	service HostedService
}

// HostedServiceManager 托管服务管理器：按添加顺序并发启动，按相反顺序逐个停止
type HostedServiceManager struct {
	services []namedService
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HostedServiceManager{logger: logger}
}

// Add 添加托管服务
func (m *HostedServiceManager) Add(name string, service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, namedService{name: name, service: service})
}

// Names 已添加服务的名称
func (m *HostedServiceManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.services))
	for i, s := range m.services {
		names[i] = s.name
	}
	return names
}

// StartAll 在各自的 goroutine 中启动所有服务。
// 返回的通道接收非取消类的启动错误，所有 Start 返回后关闭
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.RLock()
	services := append([]namedService(nil), m.services...)
	m.mu.RUnlock()

	errCh := make(chan error, len(services))
	m.logger.Info("starting hosted services", logging.Field{Key: "count", Value: len(services)})

	var started sync.WaitGroup
	for _, s := range services {
		m.wg.Add(1)
		started.Add(1)
		go func(s namedService) {
			defer m.wg.Done()
			defer started.Done()

			m.logger.Debug("starting hosted service", logging.Field{Key: "service", Value: s.name})
			err := s.service.Start(ctx)
			switch {
			case err == nil:
				m.logger.Debug("hosted service completed", logging.Field{Key: "service", Value: s.name})
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				m.logger.Debug("hosted service stopped (context done)", logging.Field{Key: "service", Value: s.name})
			default:
				m.logger.Error("hosted service failed",
					logging.Field{Key: "service", Value: s.name},
					logging.Field{Key: "error", Value: err})
				errCh <- fmt.Errorf("hosted service %s: %w", s.name, err)
			}
		}(s)
	}

	go func() {
		started.Wait()
		close(errCh)
	}()
	return errCh
}

// StopAll 按添加的相反顺序停止服务，错误聚合返回
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	services := append([]namedService(nil), m.services...)
	m.mu.RUnlock()

	m.logger.Info("stopping hosted services", logging.Field{Key: "count", Value: len(services)})

	var errs error
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		if err := s.service.Stop(ctx); err != nil {
			m.logger.Error("failed to stop hosted service",
				logging.Field{Key: "service", Value: s.name},
				logging.Field{Key: "error", Value: err})
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", s.name, err))
			continue
		}
		m.logger.Debug("hosted service stopped", logging.Field{Key: "service", Value: s.name})
	}
	return errs
}

// Wait 等待所有 Start 返回，或 ctx 结束
func (m *HostedServiceManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Worker 把阻塞函数适配为托管服务，通过取消 Start 的 context 停止
type Worker struct {
	name string
	fn   func(ctx context.Context) error
}

// NewWorker 创建 Worker
func NewWorker(name string, fn func(ctx context.Context) error) *Worker {
	return &Worker{name: name, fn: fn}
}

func (w *Worker) Name() string                    { return w.name }
func (w *Worker) Start(ctx context.Context) error { return w.fn(ctx) }
func (w *Worker) Stop(context.Context) error      { return nil }

// BackgroundService 后台服务基类，Stop 等待 Start 退出
type BackgroundService struct {
	name     string
	logger   logging.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

// NewBackgroundService 创建后台服务
func NewBackgroundService(name string, logger logging.Logger) *BackgroundService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BackgroundService{
		name:   name,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start 阻塞直到停止信号或上下文取消
func (s *BackgroundService) Start(ctx context.Context) error {
	defer s.Done()
	s.logger.Debug("background service started", logging.Field{Key: "service", Value: s.name})

	select {
	case <-s.stopCh:
	case <-ctx.Done():
	}
	return nil
}

// Stop 发出停止信号并等待服务完成或超时
func (s *BackgroundService) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
		s.logger.Debug("background service stopped", logging.Field{Key: "service", Value: s.name})
		return nil
	case <-ctx.Done():
		s.logger.Warn("background service stop timeout", logging.Field{Key: "service", Value: s.name})
		return ctx.Err()
	}
}

// ShouldStop 检查是否应该停止
func (s *BackgroundService) ShouldStop() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// StopChan 返回停止通道，用于在 select 中监听
func (s *BackgroundService) StopChan() <-chan struct{} {
	return s.stopCh
}

// Done 标记服务完成
func (s *BackgroundService) Done() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// TimedHostedService 定时托管服务，任务失败只记录日志
type TimedHostedService struct {
	*BackgroundService
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewTimedHostedService 创建定时托管服务
func NewTimedHostedService(name string, interval time.Duration, task func(ctx context.Context) error, logger logging.Logger) *TimedHostedService {
	return &TimedHostedService{
		BackgroundService: NewBackgroundService(name, logger),
		interval:          interval,
		task:              task,
	}
}

// Start 按间隔执行任务，直到停止
func (s *TimedHostedService) Start(ctx context.Context) error {
	defer s.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				s.logger.Error("timed task failed",
					logging.Field{Key: "service", Value: s.name},
					logging.Field{Key: "error", Value: err})
			}
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package cron

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/robfig/cron/v3"
)

// Job 可被调度的组件。容器中实现此接口的组件初始化完成后会被自动调度
type Job interface {
	// Spec cron 表达式，如 "*/5 * * * *"，启用秒级时为 "0 */5 * * * *"
	Spec() string
	Run(ctx context.Context) error
}

// jobDefinition 任务定义
type jobDefinition struct {
	spec    string
	name    string
	handler any
}

var (
	contextType = di.TypeOf[context.Context]()
	errorType   = di.TypeOf[error]()
)

// Scheduler Cron 定时任务托管服务。
// 启动前添加的任务先暂存，Start 时统一注册；启动后添加的任务立即生效
type Scheduler struct {
	cron      *cron.Cron
	parser    cron.Parser
	logger    logging.Logger
	container *di.Container

	mu      sync.RWMutex
	jobs    map[string]cron.EntryID // 任务名称到任务ID的映射
	pending []jobDefinition
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
}

// NewScheduler 创建调度器
func NewScheduler(opts Options, logger logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	location := time.UTC
	if opts.Location != "" {
		loc, err := time.LoadLocation(opts.Location)
		if err != nil {
			return nil, fmt.Errorf("cron: invalid location %q: %w", opts.Location, err)
		}
		location = loc
	}

	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if opts.EnableSeconds {
		fields |= cron.Second
	}
	parser := cron.NewParser(fields)

	cronOpts := []cron.Option{
		cron.WithLocation(location),
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(newCronLogger(logger))),
	}
	// 只在启用时添加 cron 库的日志记录器
	if opts.EnableCronLogger {
		cronOpts = append(cronOpts, cron.WithLogger(newCronLogger(logger)))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cronOpts...),
		parser: parser,
		logger: logger,
		jobs:   make(map[string]cron.EntryID),
		runCtx: runCtx,
		cancel: cancel,
	}, nil
}

func (s *Scheduler) SetContainer(c *di.Container) { s.container = c }

// Schedule 添加任务。handler 可以是 func()、func(ctx) error、Job，
// 也可以是参数从容器按类型解析的任意函数（context.Context 参数传入调度上下文）
func (s *Scheduler) Schedule(spec, name string, handler any) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("cron: job '%s': invalid spec %q: %w", name, spec, err)
	}
	job := jobDefinition{spec: spec, name: name, handler: handler}

	s.mu.Lock()
	if _, exists := s.jobs[name]; exists || s.isPending(name) {
		s.mu.Unlock()
		return fmt.Errorf("cron: job '%s' already scheduled", name)
	}
	if !s.started {
		s.pending = append(s.pending, job)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.add(job)
}

func (s *Scheduler) isPending(name string) bool {
	for _, job := range s.pending {
		if job.name == name {
			return true
		}
	}
	return false
}

// Remove 移除定时任务
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info(fmt.Sprintf("Cron job '%s' removed", name))
		return
	}
	for i, job := range s.pending {
		if job.name == name {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Jobs 返回所有任务名（含未启动的），按名称排序
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs)+len(s.pending))
	for name := range s.jobs {
		names = append(names, name)
	}
	for _, job := range s.pending {
		names = append(names, job.name)
	}
	sort.Strings(names)
	return names
}

// Next 返回任务下一次执行时间，未启动或不存在时返回零值
func (s *Scheduler) Next(name string) time.Time {
	s.mu.RLock()
	entryID, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Next
}

// Trigger 立即执行一次任务，不影响调度
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	entryID, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("cron: job '%s' not scheduled", name)
	}
	s.cron.Entry(entryID).WrappedJob.Run()
	return nil
}

func (s *Scheduler) add(job jobDefinition) error {
	run, err := s.wrap(job)
	if err != nil {
		return fmt.Errorf("cron: failed to wrap job '%s': %w", job.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, err := s.cron.AddFunc(job.spec, func() {
		started := time.Now()
		s.logger.Debug(fmt.Sprintf("Cron job '%s' started", job.name))
		if err := run(s.runCtx); err != nil {
			s.logger.Error(fmt.Sprintf("Cron job '%s' failed", job.name),
				logging.Field{Key: "error", Value: err.Error()},
				logging.Field{Key: "duration", Value: time.Since(started).String()})
			return
		}
		s.logger.Debug(fmt.Sprintf("Cron job '%s' completed", job.name),
			logging.Field{Key: "duration", Value: time.Since(started).String()})
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job '%s': %w", job.name, err)
	}

	s.jobs[job.name] = entryID
	s.logger.Info(fmt.Sprintf("Cron job '%s' registered with spec '%s'", job.name, job.spec))
	return nil
}

func (s *Scheduler) wrap(job jobDefinition) (func(ctx context.Context) error, error) {
	switch h := job.handler.(type) {
	case Job:
		return h.Run, nil
	case func(ctx context.Context) error:
		return h, nil
	case func():
		return func(context.Context) error { h(); return nil }, nil
	}
	if s.container == nil {
		return nil, fmt.Errorf("container not set but job '%s' requires injection", job.name)
	}
	return wrapHandlerWithDI(s.container, job.handler)
}

// wrapHandlerWithDI 包装处理器，每次执行时从容器解析参数
func wrapHandlerWithDI(container *di.Container, handler any) (func(ctx context.Context) error, error) {
	handlerValue := reflect.ValueOf(handler)
	handlerType := handlerValue.Type()

	// 检查是否为函数
	if handlerType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %v", handlerType.Kind())
	}
	if handlerType.NumOut() > 1 || (handlerType.NumOut() == 1 && handlerType.Out(0) != errorType) {
		return nil, fmt.Errorf("handler must return nothing or error, got %v", handlerType)
	}

	return func(ctx context.Context) error {
		args := make([]reflect.Value, handlerType.NumIn())
		for i := range args {
			paramType := handlerType.In(i)
			if paramType == contextType {
				args[i] = reflect.ValueOf(ctx)
				continue
			}
			instance, err := container.GetComponentOfType(paramType)
			if err != nil {
				return fmt.Errorf("resolve parameter %d (%v): %w", i, paramType, err)
			}
			args[i] = reflect.ValueOf(instance)
		}

		out := handlerValue.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}, nil
}

// Start 注册暂存任务并启动调度
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	pending := s.pending
	s.pending = nil
	s.started = true
	s.mu.Unlock()

	s.logger.Info(fmt.Sprintf("CronService starting with %d pending jobs", len(pending)))
	for _, job := range pending {
		if err := s.add(job); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop 停止调度并等待执行中的任务完成或 ctx 超时
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("CronService stopping")
	s.cancel()
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 适配器：将框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Field{Key: "error", Value: err.Error()})
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprintf("%v", keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}

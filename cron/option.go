package cron

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

const (
	// SchedulerComponentName 调度器组件名
	SchedulerComponentName = "cronScheduler"
	// ProcessorComponentName Job 后处理器组件名
	ProcessorComponentName = "cronJobProcessor"
)

// Builder Cron 配置构建器
type Builder struct {
	options Options
	jobs    []jobDefinition
}

// NewBuilder 创建 Cron 构建器
func NewBuilder() *Builder {
	return &Builder{options: Options{Location: "UTC"}}
}

// BuilderOption 用于配置 Cron Builder
type BuilderOption func(*Builder)

// WithSeconds 启用秒级精度
func WithSeconds() BuilderOption {
	return func(b *Builder) {
		b.options.EnableSeconds = true
	}
}

// WithLocation 设置时区
func WithLocation(location string) BuilderOption {
	return func(b *Builder) {
		b.options.Location = location
	}
}

// EnableCronLogger 启用 cron 库的内部调度日志
func EnableCronLogger() BuilderOption {
	return func(b *Builder) {
		b.options.EnableCronLogger = true
	}
}

// AddJob 添加任务。handler 的参数会在每次执行时从容器解析
//
// 示例：
//
//	cron.AddJob("*/5 * * * *", "sync-data", func(ctx context.Context, svc *DataService) error {
//	    return svc.Sync(ctx)
//	})
func AddJob(spec, name string, handler any) BuilderOption {
	return func(b *Builder) {
		b.jobs = append(b.jobs, jobDefinition{
			spec:    spec,
			name:    name,
			handler: handler,
		})
	}
}

// New 启用定时任务：注册 Scheduler 托管服务和 Job 后处理器
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		_, err := di.RegisterAuto(rt.Container, SchedulerComponentName, func(logger logging.Logger) (*Scheduler, error) {
			s, err := NewScheduler(builder.options, logger.WithCategory("cron"))
			if err != nil {
				return nil, err
			}
			for _, job := range builder.jobs {
				if err := s.Schedule(job.spec, job.name, job.handler); err != nil {
					return nil, err
				}
			}
			return s, nil
		}, di.WithDescription("cron scheduler"))
		if err != nil {
			return err
		}

		_, err = di.RegisterAuto(rt.Container, ProcessorComponentName, func(s *Scheduler, logger logging.Logger) *JobProcessor {
			return NewJobProcessor(s, logger.WithCategory("cron"))
		})
		return err
	}
}

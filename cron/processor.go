package cron

import (
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// JobProcessor 把初始化完成的 Job 单例交给 Scheduler
type JobProcessor struct {
	scheduler *Scheduler
	container *di.Container
	logger    logging.Logger
}

func NewJobProcessor(scheduler *Scheduler, logger logging.Logger) *JobProcessor {
	return &JobProcessor{scheduler: scheduler, logger: logger}
}

func (p *JobProcessor) SetContainer(c *di.Container) { p.container = c }

func (p *JobProcessor) PostProcessAfterInitialization(instance any, name string) (any, error) {
	job, ok := instance.(Job)
	if !ok {
		return instance, nil
	}
	if p.container != nil {
		// 原型组件每次获取都会新建，不能按名称调度
		if singleton, err := p.container.IsSingleton(name); err == nil && !singleton {
			p.logger.Warn("cron job component is not a singleton, skipped", logging.Field{Key: "component", Value: name})
			return instance, nil
		}
	}
	if err := p.scheduler.Schedule(job.Spec(), name, job); err != nil {
		return nil, err
	}
	return instance, nil
}

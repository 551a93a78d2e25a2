package cron_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/cron"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type counter struct {
	runs atomic.Int32
}

type cleanupJob struct {
	Counter *counter
}

func (j *cleanupJob) Spec() string { return "@every 1h" }
func (j *cleanupJob) Run(context.Context) error {
	j.Counter.runs.Add(10)
	return nil
}

func newScheduler(t *testing.T, opts cron.Options) *cron.Scheduler {
	t.Helper()
	s, err := cron.NewScheduler(opts, nil)
	require.NoError(t, err)
	return s
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := newScheduler(t, cron.Options{})
	err := s.Schedule("* * * * * *", "too-many-fields", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too-many-fields")

	s = newScheduler(t, cron.Options{EnableSeconds: true})
	require.NoError(t, s.Schedule("* * * * * *", "every-second", func() {}))
}

func TestSchedulerRejectsDuplicateNames(t *testing.T) {
	s := newScheduler(t, cron.Options{})
	require.NoError(t, s.Schedule("@hourly", "report", func() {}))
	err := s.Schedule("@daily", "report", func() {})
	assert.EqualError(t, err, "cron: job 'report' already scheduled")
}

func TestSchedulerInvalidLocation(t *testing.T) {
	_, err := cron.NewScheduler(cron.Options{Location: "Mars/Olympus"}, nil)
	assert.Error(t, err)
}

func TestSchedulerLifecycle(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(t, cron.Options{})
	require.NoError(t, s.Schedule("@hourly", "tick", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Schedule("@hourly", "broken", func(context.Context) error {
		return errors.New("boom")
	}))
	assert.Equal(t, []string{"broken", "tick"}, s.Jobs())
	assert.True(t, s.Next("tick").IsZero())
	assert.Error(t, s.Trigger("tick"))

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.Next("tick").IsZero())
	require.NoError(t, s.Trigger("tick"))
	// 失败的任务只记录日志
	require.NoError(t, s.Trigger("broken"))
	assert.EqualValues(t, 1, runs.Load())

	s.Remove("broken")
	assert.Equal(t, []string{"tick"}, s.Jobs())

	// 启动后添加的任务立即生效
	require.NoError(t, s.Schedule("@daily", "late", func() { runs.Add(1) }))
	require.NoError(t, s.Trigger("late"))
	assert.EqualValues(t, 2, runs.Load())

	require.NoError(t, s.Stop(context.Background()))
}

func TestSchedulerInjectionRequiresContainer(t *testing.T) {
	s := newScheduler(t, cron.Options{})
	require.NoError(t, s.Schedule("@hourly", "inject", func(c *counter) {}))
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container not set")
}

func TestNewWithRuntime(t *testing.T) {
	shared := &counter{}
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogging(logging.Options{Level: logging.LogLevelError}),
		core.ProvideNamed("counter", shared),
		cron.New(
			cron.WithLocation("UTC"),
			cron.AddJob("@every 1h", "report", func(ctx context.Context, c *counter) error {
				require.NotNil(t, ctx)
				c.runs.Add(1)
				return nil
			}),
		),
		core.ProvideNamed("cleanup", &cleanupJob{}, di.WithAutowire(di.AutowireByType)),
		core.ProvideNamed("adhoc", func() *cleanupJob { return &cleanupJob{Counter: shared} }, di.WithPrototype()),
	))
	require.NoError(t, rt.Refresh(context.Background()))
	defer rt.Close(context.Background())

	scheduler, err := di.ResolveNamed[*cron.Scheduler](rt.Container, cron.SchedulerComponentName)
	require.NoError(t, err)

	// 原型 Job 不参与调度
	_, err = rt.Container.GetComponent("adhoc")
	require.NoError(t, err)
	assert.Equal(t, []string{"cleanup", "report"}, scheduler.Jobs())

	// Start 在后台 goroutine 中执行
	require.Eventually(t, func() bool { return !scheduler.Next("report").IsZero() }, time.Second, 5*time.Millisecond)

	require.NoError(t, scheduler.Trigger("report"))
	require.NoError(t, scheduler.Trigger("cleanup"))
	assert.EqualValues(t, 11, shared.runs.Load())
}

func TestNewRejectsInvalidJob(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogging(logging.Options{Level: logging.LogLevelError}),
		cron.New(cron.AddJob("not a spec", "bad", func() {})),
	))
	err := rt.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid spec")
}

package core_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type repository struct {
	rec *recorder
}

func (r *repository) Destroy() error {
	r.rec.add("repository:destroy")
	return nil
}

type service struct {
	Repo   *repository
	Logger logging.Logger
	Env    core.Environment
}

type pollingService struct {
	rec     *recorder
	started chan struct{}
}

func (s *pollingService) Start(ctx context.Context) error {
	s.rec.add("polling:start")
	close(s.started)
	<-ctx.Done()
	return ctx.Err()
}

func (s *pollingService) Stop(context.Context) error {
	s.rec.add("polling:stop")
	return nil
}

type failingService struct{}

func (failingService) Start(context.Context) error { return errors.New("port in use") }
func (failingService) Stop(context.Context) error  { return nil }

// tagger 给所有 *service 打标记
type tagger struct {
	rec *recorder
}

func (t *tagger) PostProcessAfterInitialization(instance any, name string) (any, error) {
	if _, ok := instance.(*service); ok {
		t.rec.add("tagged:" + name)
	}
	return instance, nil
}

func newTestRuntime(t *testing.T, opts ...core.Option) *core.Runtime {
	t.Helper()
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(append([]core.Option{core.WithLogging(logging.Options{Level: logging.LogLevelError})}, opts...)...))
	return rt
}

func TestRuntimeRefreshAndClose(t *testing.T) {
	rec := &recorder{}
	polling := &pollingService{rec: rec, started: make(chan struct{})}

	rt := newTestRuntime(t,
		core.WithEnvironment("staging"),
		core.Provide(func() *repository { return &repository{rec: rec} }),
		core.Provide(&service{}, di.WithAutowire(di.AutowireByType)),
		core.WithHostedService(polling),
		core.ProvideNamed("tagger", &tagger{rec: rec}),
		core.OnStart(func(context.Context) error {
			rec.add("hook:start")
			return nil
		}),
		core.OnStop(func(context.Context) error {
			rec.add("hook:stop")
			return nil
		}),
	)

	require.NoError(t, rt.Refresh(context.Background()))
	select {
	case <-polling.started:
	case <-time.After(time.Second):
		t.Fatal("hosted service did not start")
	}

	svc, err := di.Resolve[*service](rt.Container)
	require.NoError(t, err)
	assert.NotNil(t, svc.Repo)
	assert.NotNil(t, svc.Logger)
	assert.True(t, svc.Env.IsStaging())

	rtFromContainer, err := di.ResolveNamed[*core.Runtime](rt.Container, core.RuntimeComponentName)
	require.NoError(t, err)
	assert.Same(t, rt, rtFromContainer)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rt.Close(ctx))

	assert.Equal(t, []string{
		"hook:start",
		"polling:start",
		"polling:stop",
		"hook:stop",
		"repository:destroy",
	}, filter(rec.list(), "tagged:"))
	assert.Contains(t, rec.list(), "tagged:service")

	select {
	case <-rt.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func filter(events []string, prefix string) []string {
	var out []string
	for _, e := range events {
		if len(e) < len(prefix) || e[:len(prefix)] != prefix {
			out = append(out, e)
		}
	}
	return out
}

func TestRuntimeRefreshTwice(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Refresh(context.Background()))
	assert.ErrorIs(t, rt.Refresh(context.Background()), core.ErrAlreadyRefreshed)
	require.NoError(t, rt.Close(context.Background()))
}

func TestRuntimeRefreshFailureDestroysSingletons(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t,
		core.Provide(func() *repository { return &repository{rec: rec} }),
		core.OnStart(func(context.Context) error { return errors.New("migration failed") }),
	)

	err := rt.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration failed")
	assert.Equal(t, []string{"repository:destroy"}, rec.list())
	assert.Zero(t, rt.Container.SingletonCount())
}

func TestRuntimeHostedServiceFailureRequestsShutdown(t *testing.T) {
	var handled error
	var mu sync.Mutex
	rt := newTestRuntime(t, core.WithHostedService(&failingService{}))
	rt.ErrorHandler = func(err error) {
		mu.Lock()
		defer mu.Unlock()
		handled = err
	}

	require.NoError(t, rt.Refresh(context.Background()))
	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatal("runtime did not request shutdown")
	}
	mu.Lock()
	assert.ErrorContains(t, handled, "port in use")
	mu.Unlock()
	require.NoError(t, rt.Close(context.Background()))
}

func TestWithHostedServiceRejectsPlainComponent(t *testing.T) {
	rt := core.NewRuntime()
	err := rt.Apply(core.WithHostedService(func() *repository { return &repository{} }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not implement")
}

func TestWithWorker(t *testing.T) {
	done := make(chan struct{})
	rt := newTestRuntime(t, core.WithWorker("ticker", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	}))

	require.NoError(t, rt.Refresh(context.Background()))
	assert.True(t, rt.Container.ContainsComponent("ticker"))
	require.NoError(t, rt.Close(context.Background()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker not cancelled")
	}
}

// priorityProcessor 记录经过的组件
type priorityProcessor struct{ rec *recorder }

func (p *priorityProcessor) Order() int       { return 0 }
func (p *priorityProcessor) PriorityOrdered() {}
func (p *priorityProcessor) PostProcessBeforeInitialization(instance any, name string) (any, error) {
	p.rec.add("before:" + name)
	return instance, nil
}

type plainProcessor struct{ rec *recorder }

func (p *plainProcessor) PostProcessAfterInitialization(instance any, _ string) (any, error) {
	return instance, nil
}

func TestRuntimePostProcessorComponentsOrder(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t,
		core.ProvideNamed("plain", func() *plainProcessor { return &plainProcessor{rec: rec} }),
		core.ProvideNamed("priority", func() *priorityProcessor { return &priorityProcessor{rec: rec} }),
	)
	require.NoError(t, rt.Refresh(context.Background()))
	defer rt.Close(context.Background())

	// priority 先注册，plain 创建时会经过它
	assert.Contains(t, rec.list(), "before:plain")
	assert.NotContains(t, rec.list(), "before:priority")
}

func TestRuntimeCloseBeforeRefresh(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Close(context.Background()))
	select {
	case <-rt.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRuntimeRunStopsOnContextCancel(t *testing.T) {
	rec := &recorder{}
	rt := newTestRuntime(t, core.OnStop(func(context.Context) error {
		rec.add("stopped")
		return nil
	}), core.WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []string{"stopped"}, rec.list())
}

func TestLifecycleEventsStopAggregatesErrors(t *testing.T) {
	l := core.NewLifecycle()
	var order []int
	l.OnStop(func(context.Context) error { order = append(order, 1); return errors.New("first") })
	l.OnStop(func(context.Context) error { order = append(order, 2); return errors.New("second") })

	err := l.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int{2, 1}, order)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestEnvironment(t *testing.T) {
	t.Setenv(core.EnvironmentVariable, "")
	assert.True(t, core.EnvironmentFromEnv().IsDevelopment())

	t.Setenv(core.EnvironmentVariable, "production")
	env := core.EnvironmentFromEnv()
	assert.Equal(t, "production", env.Name())
	assert.True(t, env.IsProduction())
	assert.False(t, env.IsDevelopment())
}

func TestRuntimeResolvableDependencies(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Refresh(context.Background()))
	defer rt.Close(context.Background())

	factory, err := di.ResolveNamed[logging.LoggerFactory](rt.Container, core.LoggerFactoryComponentName)
	require.NoError(t, err)
	assert.Equal(t, rt.LoggerFactory(), factory)

	obj, err := rt.Container.GetComponent(core.RuntimeComponentName)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(rt), reflect.TypeOf(obj))
}

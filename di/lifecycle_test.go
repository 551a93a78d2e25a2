package di_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

// journal 按顺序记录生命周期事件
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type lifecycleBean struct {
	Journal *journal `di:"-"`
	Dep     *lifecycleBean

	name      string
	container *di.Container
	destroyed error
}

func (b *lifecycleBean) SetComponentName(name string) { b.name = name }
func (b *lifecycleBean) SetContainer(c *di.Container) { b.container = c }

func (b *lifecycleBean) AfterPropertiesSet() error {
	b.Journal.add(b.name + ":afterPropertiesSet")
	return nil
}

func (b *lifecycleBean) Open(ctx context.Context) error {
	if ctx == nil {
		return errors.New("nil context")
	}
	b.Journal.add(b.name + ":open")
	return nil
}

func (b *lifecycleBean) Destroy() error {
	b.Journal.add(b.name + ":destroy")
	return b.destroyed
}

func (b *lifecycleBean) Close() {
	b.Journal.add(b.name + ":close")
}

type journalProcessor struct {
	j *journal
}

func (p journalProcessor) PostProcessBeforeInitialization(instance any, name string) (any, error) {
	p.j.add(name + ":before")
	return instance, nil
}

func (p journalProcessor) PostProcessAfterInitialization(instance any, name string) (any, error) {
	p.j.add(name + ":after")
	return instance, nil
}

func (p journalProcessor) PostProcessBeforeDestruction(instance any, name string) error {
	p.j.add(name + ":beforeDestruction")
	return nil
}

func newLifecycleDef(j *journal, opts ...di.Option) *di.Definition {
	return di.NewDefinition(di.TypeOf[*lifecycleBean](), append([]di.Option{
		di.WithConstructor(func() *lifecycleBean { return &lifecycleBean{Journal: j} }),
	}, opts...)...)
}

func TestLifecycleInitializationOrder(t *testing.T) {
	j := &journal{}
	c := di.NewContainer()
	require.NoError(t, c.AddPostProcessor(journalProcessor{j: j}))
	require.NoError(t, c.Register("bean", newLifecycleDef(j, di.WithInitMethod("Open"))))

	obj, err := c.GetComponent("bean")
	require.NoError(t, err)
	bean := obj.(*lifecycleBean)

	assert.Equal(t, "bean", bean.name)
	again, err := bean.container.GetComponent("bean")
	require.NoError(t, err)
	assert.Same(t, bean, again)
	assert.Equal(t, []string{
		"bean:before",
		"bean:afterPropertiesSet",
		"bean:open",
		"bean:after",
	}, j.list())
}

func TestLifecycleMissingInitMethod(t *testing.T) {
	j := &journal{}
	c := di.NewContainer()
	require.NoError(t, c.Register("strict", newLifecycleDef(j, di.WithInitMethod("Missing"))))
	require.NoError(t, c.Register("lenient", newLifecycleDef(j,
		di.WithInitMethod("Missing"),
		di.WithEnforceInitMethod(false))))

	_, err := c.GetComponent("strict")
	require.Error(t, err)
	assert.True(t, di.IsCreationFailure(err))

	_, err = c.GetComponent("lenient")
	assert.NoError(t, err)
}

func TestLifecycleExternallyManagedInit(t *testing.T) {
	j := &journal{}
	c := di.NewContainer()
	def := newLifecycleDef(j)
	def.RegisterExternallyManagedInitMethod("AfterPropertiesSet")
	require.NoError(t, c.Register("bean", def))

	_, err := c.GetComponent("bean")
	require.NoError(t, err)
	assert.Empty(t, j.list())
}

func TestLifecycleDestroySingletons(t *testing.T) {
	j := &journal{}
	c := di.NewContainer()
	require.NoError(t, c.AddPostProcessor(journalProcessor{j: j}))
	require.NoError(t, c.Register("base", newLifecycleDef(j, di.WithDestroyMethod("Close"))))
	require.NoError(t, c.Register("top", newLifecycleDef(j, di.WithRef("dep", "base"))))

	_, err := c.GetComponent("top")
	require.NoError(t, err)
	j.events = nil

	require.NoError(t, c.DestroySingletons())
	// 依赖方先销毁
	assert.Equal(t, []string{
		"top:beforeDestruction",
		"top:destroy",
		"base:beforeDestruction",
		"base:destroy",
		"base:close",
	}, j.list())
	assert.Zero(t, c.SingletonCount())
}

func TestLifecycleDestroyErrorsAggregated(t *testing.T) {
	j := &journal{}
	c := di.NewContainer()
	require.NoError(t, c.Register("first", newLifecycleDef(j)))
	require.NoError(t, c.Register("second", newLifecycleDef(j)))
	require.NoError(t, c.PreInstantiateSingletons())

	for _, name := range []string{"first", "second"} {
		obj, err := c.GetComponent(name)
		require.NoError(t, err)
		obj.(*lifecycleBean).destroyed = errors.New(name + " failed")
	}

	err := c.DestroySingletons()
	require.Error(t, err)
	assert.ErrorIs(t, err, di.ErrDestruction)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "second failed")
	assert.Zero(t, c.SingletonCount())
}

func TestLifecycleDestroyPrototype(t *testing.T) {
	j := &journal{}
	c := di.NewContainer()
	require.NoError(t, c.Register("proto", newLifecycleDef(j, di.WithPrototype())))

	obj, err := c.GetComponent("proto")
	require.NoError(t, err)

	// 原型不被容器跟踪
	require.NoError(t, c.DestroySingletons())
	assert.NotContains(t, j.list(), "proto:destroy")

	require.NoError(t, c.DestroyComponent("proto", obj))
	assert.Contains(t, j.list(), "proto:destroy")
}

func TestLifecycleDestroyObserver(t *testing.T) {
	j := &journal{}
	var destroyed []string
	c := di.NewContainer(di.WithDestroyObserver(func(name string, _ time.Duration, err error) {
		destroyed = append(destroyed, name)
	}))
	require.NoError(t, c.Register("bean", newLifecycleDef(j)))
	require.NoError(t, c.PreInstantiateSingletons())
	require.NoError(t, c.DestroySingletons())
	assert.Equal(t, []string{"bean"}, destroyed)
}

func TestLifecycleCustomScope(t *testing.T) {
	j := &journal{}
	scope := di.NewSimpleScope()
	c := di.NewContainer()
	require.NoError(t, c.RegisterScope("request", scope))
	require.NoError(t, c.Register("scoped", newLifecycleDef(j, di.WithScope("request"))))

	first, err := c.GetComponent("scoped")
	require.NoError(t, err)
	again, err := c.GetComponent("scoped")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.False(t, c.ContainsSingleton("scoped"))

	require.NoError(t, c.DestroyScopedComponent("scoped"))
	assert.Contains(t, j.list(), "scoped:destroy")

	fresh, err := c.GetComponent("scoped")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)

	// 内置作用域不可替换
	assert.Error(t, c.RegisterScope(di.ScopeSingleton, di.NewSimpleScope()))
}

func TestLifecycleUnknownScope(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("bean", di.NewDefinition(di.TypeOf[*userRepo](), di.WithScope("session"))))

	_, err := c.GetComponent("bean")
	require.Error(t, err)
	assert.True(t, di.IsDefinitionError(err))
}

// connFactory 工厂组件：产出 *userRepo
type connFactory struct {
	DSN     string
	created int
}

func (f *connFactory) Object() (any, error) {
	f.created++
	return &userRepo{DSN: f.DSN}, nil
}

func (f *connFactory) ObjectType() reflect.Type { return di.TypeOf[*userRepo]() }
func (f *connFactory) IsSingleton() bool        { return true }

func TestFactoryComponent(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("conn", di.NewDefinition(di.TypeOf[*connFactory](),
		di.WithProperty("DSN", "postgres://db"),
		di.WithObjectType(di.TypeOf[*userRepo]()))))

	typ, err := c.TypeOf("conn")
	require.NoError(t, err)
	assert.Equal(t, di.TypeOf[*userRepo](), typ)

	product, err := c.GetComponent("conn")
	require.NoError(t, err)
	repo := product.(*userRepo)
	assert.Equal(t, "postgres://db", repo.DSN)

	again, err := c.GetComponent("conn")
	require.NoError(t, err)
	assert.Same(t, repo, again)

	factory, err := c.GetComponent(di.FactoryPrefix + "conn")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.(*connFactory).created)

	// 按类型解析得到产品
	byType, err := di.Resolve[*userRepo](c)
	require.NoError(t, err)
	assert.Same(t, repo, byType)

	// 非工厂组件不能用 & 前缀
	require.NoError(t, c.Register("plain", di.NewDefinition(di.TypeOf[*userRepo]())))
	_, err = c.GetComponent(di.FactoryPrefix + "plain")
	assert.True(t, di.IsTypeMismatch(err))
}

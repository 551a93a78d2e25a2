package autoproxy_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/autoproxy"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type Greeter interface {
	Greet() string
}

type greeter struct {
	Prefix string
}

func (g *greeter) Greet() string { return g.Prefix + "hello" }

// loud 装饰器
type loud struct {
	target Greeter
}

func (l *loud) Greet() string { return strings.ToUpper(l.target.Greet()) }

func loudAdvisor(patterns ...string) autoproxy.Advisor {
	return autoproxy.NewAdvisor(
		autoproxy.NameMatcher(patterns...),
		autoproxy.Typed(func(target Greeter, _ string) (Greeter, error) {
			return &loud{target: target}, nil
		}),
		0,
	)
}

func newContainer(t *testing.T, opts ...autoproxy.Option) (*di.Container, *autoproxy.Creator) {
	t.Helper()
	c := di.NewContainer()
	creator := autoproxy.New(opts...)
	creator.SetContainer(c)
	require.NoError(t, c.AddPostProcessor(creator))
	return c, creator
}

func TestCreatorWrapsMatchingComponents(t *testing.T) {
	c, creator := newContainer(t, autoproxy.WithAdvisors(loudAdvisor("*Greeter")))
	_, err := di.RegisterAuto(c, "mainGreeter", reflect.TypeOf(&greeter{}))
	require.NoError(t, err)
	_, err = di.RegisterAuto(c, "plain", reflect.TypeOf(&greeter{}))
	require.NoError(t, err)

	obj, err := c.GetComponent("mainGreeter")
	require.NoError(t, err)
	assert.IsType(t, &loud{}, obj)
	assert.Equal(t, "HELLO", obj.(Greeter).Greet())

	plain, err := c.GetComponent("plain")
	require.NoError(t, err)
	assert.IsType(t, &greeter{}, plain)

	assert.Equal(t, reflect.TypeOf(&loud{}), creator.PredictType(reflect.TypeOf(&greeter{}), "mainGreeter"))
	assert.Nil(t, creator.PredictType(reflect.TypeOf(&greeter{}), "plain"))
}

func TestCreatorAdvisorOrder(t *testing.T) {
	var applied []string
	record := func(tag string, order int) autoproxy.Advisor {
		return autoproxy.NewAdvisor(
			autoproxy.TypeMatcher[Greeter](),
			func(target any, _ string) (any, error) {
				applied = append(applied, tag)
				return target, nil
			},
			order,
		)
	}
	c, _ := newContainer(t, autoproxy.WithAdvisors(record("outer", 10), record("inner", 1)))
	_, err := di.RegisterAuto(c, "greeter", reflect.TypeOf(&greeter{}))
	require.NoError(t, err)

	_, err = c.GetComponent("greeter")
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", "outer"}, applied)
}

type alpha struct {
	Beta *beta
}

func (a *alpha) Greet() string { return "alpha" }

type beta struct {
	Alpha Greeter
}

func TestCreatorEarlyReferenceInCycle(t *testing.T) {
	c, _ := newContainer(t, autoproxy.WithAdvisors(loudAdvisor("alpha")))
	_, err := di.RegisterAuto(c, "alpha", reflect.TypeOf(&alpha{}), di.WithAutowire(di.AutowireByType))
	require.NoError(t, err)
	_, err = di.RegisterAuto(c, "beta", reflect.TypeOf(&beta{}), di.WithAutowire(di.AutowireByType))
	require.NoError(t, err)

	obj, err := c.GetComponent("alpha")
	require.NoError(t, err)
	proxy, ok := obj.(*loud)
	require.True(t, ok, "alpha should be exposed as proxy, got %T", obj)
	assert.Equal(t, "ALPHA", proxy.Greet())

	b, err := di.Resolve[*beta](c)
	require.NoError(t, err)
	// beta 拿到的早期引用就是最终暴露的代理
	assert.Same(t, proxy, b.Alpha)
}

func TestCreatorEarlyReferenceConsumedOnce(t *testing.T) {
	_, creator := newContainer(t, autoproxy.WithAdvisors(loudAdvisor("greeter")))
	raw := &greeter{}
	early, err := creator.EarlyReference(raw, "greeter")
	require.NoError(t, err)
	assert.IsType(t, &loud{}, early)

	// 已提前包装的同一实例直接返回
	out, err := creator.PostProcessAfterInitialization(raw, "greeter")
	require.NoError(t, err)
	assert.Same(t, raw, out)

	// 记录已消费，重新创建的实例正常包装
	out, err = creator.PostProcessAfterInitialization(&greeter{}, "greeter")
	require.NoError(t, err)
	assert.IsType(t, &loud{}, out)

	// 初始化前被替换成其他实例时重新包装
	_, err = creator.EarlyReference(raw, "greeter")
	require.NoError(t, err)
	out, err = creator.PostProcessAfterInitialization(&greeter{Prefix: "swapped "}, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "SWAPPED HELLO", out.(Greeter).Greet())
}

func TestCreatorSkipsInfrastructureAndSkippedNames(t *testing.T) {
	c, _ := newContainer(t, autoproxy.WithAdvisors(loudAdvisor("*")), autoproxy.WithSkip("legacyGreeter"))
	require.NoError(t, c.RegisterSingleton("extraAdvisor", loudAdvisor("never")))
	_, err := di.RegisterAuto(c, "legacyGreeter", reflect.TypeOf(&greeter{}))
	require.NoError(t, err)

	obj, err := c.GetComponent("legacyGreeter")
	require.NoError(t, err)
	assert.IsType(t, &greeter{}, obj)
}

func TestCreatorUsesAdvisorComponents(t *testing.T) {
	c, _ := newContainer(t)
	_, err := di.RegisterAuto(c, "auditAdvisor", func() autoproxy.Advisor { return loudAdvisor("audited*") })
	require.NoError(t, err)
	_, err = di.RegisterAuto(c, "auditedGreeter", reflect.TypeOf(&greeter{}))
	require.NoError(t, err)

	obj, err := c.GetComponent("auditedGreeter")
	require.NoError(t, err)
	assert.IsType(t, &loud{}, obj)

	advisor, err := c.GetComponent("auditAdvisor")
	require.NoError(t, err)
	assert.Implements(t, (*autoproxy.Advisor)(nil), advisor)
}

func TestCreatorCustomTargetSource(t *testing.T) {
	created := 0
	source := autoproxy.TargetSourceCreatorFunc(func(typ reflect.Type, name string) autoproxy.TargetSource {
		if name != "pooledGreeter" {
			return nil
		}
		return autoproxy.NewTargetSource(typ, func() (any, error) {
			created++
			return &greeter{Prefix: "pooled "}, nil
		})
	})
	c, creator := newContainer(t,
		autoproxy.WithTargetSourceCreators(source),
		autoproxy.WithAdvisors(loudAdvisor("pooledGreeter")),
	)
	_, err := di.RegisterAuto(c, "pooledGreeter", reflect.TypeOf(&greeter{}))
	require.NoError(t, err)

	obj, err := c.GetComponent("pooledGreeter")
	require.NoError(t, err)
	assert.Equal(t, "POOLED HELLO", obj.(Greeter).Greet())
	assert.Equal(t, 1, created)
	assert.Equal(t, reflect.TypeOf(&loud{}), creator.PredictType(reflect.TypeOf(&greeter{}), "pooledGreeter"))
}

func TestEnableWithRuntime(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogging(logging.Options{Level: logging.LogLevelError}),
		autoproxy.Enable(),
		autoproxy.WithAdvisor("loudAdvisor", loudAdvisor("greeter")),
		core.Provide(func() *greeter { return &greeter{} }),
	))
	require.NoError(t, rt.Refresh(context.Background()))
	defer rt.Close(context.Background())

	g, err := di.ResolveNamed[Greeter](rt.Container, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", g.Greet())
}

package di_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

type mailer struct {
	Host string
	Port int
	Repo *userRepo
}

func TestConstructorAutowiring(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("repo", di.NewDefinition(di.TypeOf[*userRepo]())))
	require.NoError(t, di.Register[*userService](c, "service",
		di.WithConstructor(func(r *userRepo) *userService { return &userService{Repo: r} })))

	def, ok := c.Definition("service")
	require.True(t, ok)
	assert.Equal(t, di.AutowireConstructor, def.Autowire)

	svc, err := di.ResolveNamed[*userService](c, "service")
	require.NoError(t, err)
	require.NotNil(t, svc.Repo)
	assert.Contains(t, c.DependentComponents("repo"), "service")
}

func TestConstructorGreedySelection(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("repo", di.NewDefinition(di.TypeOf[*userRepo]())))
	require.NoError(t, c.Register("mailer", di.NewDefinition(di.TypeOf[*mailer](),
		di.WithAutowire(di.AutowireConstructor),
		di.WithConstructor(
			func() *mailer { return &mailer{Host: "none"} },
			func(r *userRepo) *mailer { return &mailer{Host: "repo", Repo: r} },
			// 第二个参数无法解析，跳过
			func(r *userRepo, s *userService) *mailer { return &mailer{Host: "both"} },
		))))

	m, err := di.ResolveNamed[*mailer](c, "mailer")
	require.NoError(t, err)
	assert.Equal(t, "repo", m.Host)
	assert.NotNil(t, m.Repo)
}

func TestConstructorDeclaredArguments(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("mailer", di.NewDefinition(di.TypeOf[*mailer](),
		di.WithConstructor(func(host string, port int) *mailer { return &mailer{Host: host, Port: port} }),
		di.WithIndexedArg(1, "2525"),
		di.WithArg("smtp.local"))))

	m, err := di.ResolveNamed[*mailer](c, "mailer")
	require.NoError(t, err)
	assert.Equal(t, "smtp.local", m.Host)
	assert.Equal(t, 2525, m.Port)
}

func TestConstructorExplicitArguments(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("mailer", di.NewDefinition(di.TypeOf[*mailer](),
		di.WithPrototype(),
		di.WithConstructor(
			func() *mailer { return &mailer{Host: "default"} },
			func(host string) *mailer { return &mailer{Host: host} },
		))))

	obj, err := c.GetComponentWithArgs("mailer", "explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", obj.(*mailer).Host)

	obj, err = c.GetComponent("mailer")
	require.NoError(t, err)
	assert.Equal(t, "default", obj.(*mailer).Host)
}

func TestConstructorAmbiguity(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("repo", di.NewDefinition(di.TypeOf[*userRepo]())))
	require.NoError(t, c.Register("mailer", di.NewDefinition(di.TypeOf[*mailer](),
		di.WithAutowire(di.AutowireConstructor),
		di.WithConstructor(
			func(r *userRepo) *mailer { return &mailer{Repo: r} },
			func(r *userRepo) *mailer { return &mailer{Repo: r, Host: "other"} },
		))))

	_, err := c.GetComponent("mailer")
	require.Error(t, err)
	assert.True(t, di.IsAmbiguous(err))

	var derr *di.Error
	require.ErrorAs(t, err, &derr)
	assert.Len(t, derr.Candidates, 2)
}

func TestConstructorZeroArgAmbiguity(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("mailer", di.NewDefinition(di.TypeOf[*mailer](),
		di.WithConstructor(
			func() *mailer { return &mailer{Host: "a"} },
			func() *mailer { return &mailer{Host: "b"} },
		))))

	_, err := c.GetComponent("mailer")
	require.Error(t, err)
	assert.True(t, di.IsAmbiguous(err))

	var derr *di.Error
	require.ErrorAs(t, err, &derr)
	assert.Len(t, derr.Candidates, 2)
}

func TestConstructorUnsatisfied(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, di.Register[*userService](c, "service",
		di.WithConstructor(func(r *userRepo) *userService { return &userService{Repo: r} })))

	_, err := c.GetComponent("service")
	require.Error(t, err)
	assert.True(t, di.IsCreationFailure(err))
	assert.True(t, di.IsUnsatisfied(err))
	assert.True(t, di.IsNotFound(err))
}

func TestConstructorErrorAndPanic(t *testing.T) {
	boom := errors.New("boom")
	c := di.NewContainer()
	require.NoError(t, c.Register("failing", di.NewDefinition(di.TypeOf[*userRepo](),
		di.WithConstructor(func() (*userRepo, error) { return nil, boom }))))
	require.NoError(t, c.Register("panicking", di.NewDefinition(di.TypeOf[*userRepo](),
		di.WithConstructor(func() *userRepo { panic("bad") }))))

	_, err := c.GetComponent("failing")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, di.IsCreationFailure(err))

	_, err = c.GetComponent("panicking")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.False(t, c.ContainsSingleton("panicking"))
}

type mailerFactory struct {
	Host string
}

func (f *mailerFactory) NewMailer() *mailer {
	return &mailer{Host: f.Host}
}

func TestFactoryMethodOnComponent(t *testing.T) {
	c := di.NewContainer()
	require.NoError(t, c.Register("factory", di.NewDefinition(di.TypeOf[*mailerFactory](),
		di.WithProperty("host", "factory.local"))))
	require.NoError(t, c.Register("mailer", di.NewDefinition(nil,
		di.WithFactoryMethod("factory", "NewMailer"))))

	m, err := di.ResolveNamed[*mailer](c, "mailer")
	require.NoError(t, err)
	assert.Equal(t, "factory.local", m.Host)

	typ, err := c.TypeOf("mailer")
	require.NoError(t, err)
	assert.Equal(t, di.TypeOf[*mailer](), typ)
	assert.Contains(t, c.DependentComponents("factory"), "mailer")
}

func TestStaticFactoryFunc(t *testing.T) {
	calls := 0
	c := di.NewContainer()
	require.NoError(t, c.Register("mailer", di.NewDefinition(nil,
		di.WithPrototype(),
		di.WithFactoryFunc("newMailer", func() *mailer {
			calls++
			return &mailer{Host: "static"}
		}))))

	for range 2 {
		m, err := di.ResolveNamed[*mailer](c, "mailer")
		require.NoError(t, err)
		assert.Equal(t, "static", m.Host)
	}
	assert.Equal(t, 2, calls)
}

func TestRegisterAuto(t *testing.T) {
	c := di.NewContainer()

	name, err := di.RegisterAuto(c, "", &userRepo{DSN: "preset"})
	require.NoError(t, err)
	assert.Equal(t, "userRepo", name)

	name, err = di.RegisterAuto(c, "", func(r *userRepo) *userService { return &userService{Repo: r} })
	require.NoError(t, err)
	assert.Equal(t, "userService", name)

	svc, err := di.Resolve[*userService](c)
	require.NoError(t, err)
	assert.Equal(t, "preset", svc.Repo.DSN)
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValueStore(t *testing.T) {
	store := NewValueStore()
	assert.Empty(t, store.Load())

	store.Store(map[string]any{"key": "value"})
	assert.Equal(t, "value", store.Load()["key"])

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Load()
		}()
	}
	wg.Wait()
}

func TestPathCache(t *testing.T) {
	cache := &PathCache{}

	assert.Equal(t, []string{"a", "b", "c"}, cache.GetPathSegments("a:b.c"))
	// 命中缓存
	assert.Equal(t, []string{"a", "b", "c"}, cache.GetPathSegments("a:b.c"))
}

func TestConfigurationAccessors(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"server": map[string]any{
				"host":    "localhost",
				"port":    8080,
				"debug":   "true",
				"timeout": "1500ms",
			},
		}).
		AddInMemory(map[string]any{"server": map[string]any{"port": 9090}}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Get("server:host"))
	assert.Equal(t, "localhost", cfg.Get("server.host"))
	assert.Equal(t, "fallback", cfg.GetWithDefault("server.missing", "fallback"))

	port, err := cfg.GetInt("server.port")
	require.NoError(t, err)
	assert.Equal(t, 9090, port)

	debug, err := cfg.GetBool("server.debug")
	require.NoError(t, err)
	assert.True(t, debug)

	timeout, err := cfg.GetDuration("server.timeout")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, timeout)

	_, ok := cfg.Lookup("server.missing")
	assert.False(t, ok)
	_, err = cfg.GetInt("server.missing")
	assert.Error(t, err)

	section := cfg.GetSection("server")
	assert.Equal(t, "localhost", section.Get("host"))
	assert.Len(t, section.GetAll(), 4)
}

func TestConfigurationBind(t *testing.T) {
	type server struct {
		Host string
		Port int
	}
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"server": map[string]any{"host": "0.0.0.0", "port": 80}}).
		Build()
	require.NoError(t, err)

	var s server
	require.NoError(t, cfg.Bind("server", &s))
	assert.Equal(t, server{Host: "0.0.0.0", Port: 80}, s)
	assert.Error(t, cfg.Bind("client", &s))
}

func TestBindSectionValidates(t *testing.T) {
	type database struct {
		DSN     string `json:"dsn" validate:"required"`
		MaxOpen int    `json:"maxOpen" validate:"gte=1"`
	}
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"good": map[string]any{"dsn": "file::memory:", "maxOpen": 4},
			"bad":  map[string]any{"maxOpen": 0},
		}).
		Build()
	require.NoError(t, err)

	db, err := BindSection[database](cfg, "good")
	require.NoError(t, err)
	assert.Equal(t, 4, db.MaxOpen)

	_, err = BindSection[database](cfg, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestFileSources(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "app.json", `{"app":{"name":"json","workers":2}}`)
	yamlPath := writeFile(t, dir, "app.yaml", "app:\n  name: yaml\n  tags: [a, b]\n")
	envPath := writeFile(t, dir, ".env", "DEMO_APP_REGION=eu\nOTHER=ignored\n")

	cfg, err := NewConfigurationBuilder().
		AddJsonFile(jsonPath).
		AddYamlFile(yamlPath).
		AddDotEnv(envPath, "DEMO_").
		AddYamlFile(filepath.Join(dir, "missing.yaml"), true).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "yaml", cfg.Get("app.name"))
	assert.Equal(t, "2", cfg.Get("app.workers"))
	assert.Equal(t, "eu", cfg.Get("app.region"))
	assert.Empty(t, cfg.Get("other"))

	_, err = NewConfigurationBuilder().AddJsonFile(filepath.Join(dir, "missing.json")).Build()
	assert.Error(t, err)
}

func TestEnvironmentVariableSource(t *testing.T) {
	t.Setenv("IOCTEST_SERVER_PORT", "7070")
	t.Setenv("IOCTEST_FEATURE_ENABLED", "true")

	cfg, err := NewConfigurationBuilder().AddEnvironmentVariables("IOCTEST_").Build()
	require.NoError(t, err)

	port, err := cfg.GetInt("server:port")
	require.NoError(t, err)
	assert.Equal(t, 7070, port)
	enabled, err := cfg.GetBool("feature.enabled")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestDecodeEtcdValue(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeEtcdValue([]byte(`{"a":1}`)))
	assert.Equal(t, map[string]any{"b": "x"}, decodeEtcdValue([]byte("b: x")))
	assert.Equal(t, "plain", decodeEtcdValue([]byte("plain")))
}

func TestReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.json", `{"level":"info"}`)

	cfg, err := NewConfigurationBuilder().AddJsonFile(path).BuildReloadable()
	require.NoError(t, err)

	var reloads atomic.Int32
	cfg.OnReload(func() { reloads.Add(1) })

	writeFile(t, dir, "app.json", `{"level":"debug"}`)
	require.NoError(t, cfg.Reload())
	assert.Equal(t, "debug", cfg.Get("level"))

	writeFile(t, dir, "app.json", `{broken`)
	assert.Error(t, cfg.Reload())
	assert.Equal(t, "debug", cfg.Get("level"))
	assert.Equal(t, int32(1), reloads.Load())
	assert.Equal(t, []string{path}, cfg.WatchedFiles())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "feature: disabled\n")

	cfg, err := NewConfigurationBuilder().AddYamlFile(path).BuildReloadable()
	require.NoError(t, err)
	cfg.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&Watcher{Config: cfg}).Start(ctx) }()

	require.Eventually(t, func() bool {
		// 监听器可能尚未就绪，重复写入
		writeFile(t, dir, "app.yaml", "feature: enabled\n")
		return cfg.Get("feature") == "enabled"
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type dataSource struct {
	DSN     string
	MaxOpen int
	Tags    []string
}

func newPlaceholderContainer(t *testing.T, data map[string]any) *di.Container {
	t.Helper()
	cfg, err := NewConfigurationBuilder().AddInMemory(data).Build()
	require.NoError(t, err)

	c := di.NewContainer()
	require.NoError(t, c.AddPostProcessor(NewPlaceholderProcessor(cfg)))
	return c
}

func TestPlaceholderProcessor(t *testing.T) {
	c := newPlaceholderContainer(t, map[string]any{
		"db": map[string]any{
			"host": "db.internal",
			"dsn":  "postgres://${db.host}:5432/app",
			"pool": 8,
		},
	})
	require.NoError(t, c.Register("dataSource", di.NewDefinition(reflect.TypeOf(&dataSource{}),
		di.WithProperty("DSN", "${db.dsn}"),
		di.WithProperty("MaxOpen", "${db.pool:2}"),
		di.WithProperty("Tags", di.List{"${db.host}", "${db.zone:eu-west}"}),
	)))

	obj, err := c.GetComponent("dataSource")
	require.NoError(t, err)
	ds := obj.(*dataSource)
	assert.Equal(t, "postgres://db.internal:5432/app", ds.DSN)
	assert.Equal(t, 8, ds.MaxOpen)
	assert.Equal(t, []string{"db.internal", "eu-west"}, ds.Tags)
}

func TestPlaceholderResolve(t *testing.T) {
	cfg, err := NewConfigurationBuilder().AddInMemory(map[string]any{
		"a":    "${b}",
		"b":    "${a}",
		"env":  "prod",
		"name": "svc-${env}",
	}).Build()
	require.NoError(t, err)
	p := NewPlaceholderProcessor(cfg)

	got, err := p.Resolve("${name}")
	require.NoError(t, err)
	assert.Equal(t, "svc-prod", got)

	got, err = p.Resolve("${missing:${env}-default}")
	require.NoError(t, err)
	assert.Equal(t, "prod-default", got)

	got, err = p.Resolve("${url:http://localhost:8080}")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", got)

	_, err = p.Resolve("${missing}")
	assert.ErrorContains(t, err, "could not resolve placeholder")

	_, err = p.Resolve("${a}")
	assert.ErrorContains(t, err, "circular placeholder reference")

	p.IgnoreUnresolvable = true
	got, err = p.Resolve("keep ${missing}")
	require.NoError(t, err)
	assert.Equal(t, "keep ${missing}", got)
}

func TestPlaceholderFailureNamesComponent(t *testing.T) {
	c := newPlaceholderContainer(t, map[string]any{})
	require.NoError(t, c.Register("dataSource", di.NewDefinition(reflect.TypeOf(&dataSource{}),
		di.WithProperty("DSN", "${db.dsn}"),
	)))

	_, err := c.GetComponent("dataSource")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `component "dataSource"`)
}

type httpOptions struct {
	Addr    string `json:"addr" validate:"required"`
	Retries int    `json:"retries"`
}

func TestLoadIntoRuntime(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", `
container:
  allowCircularReferences: false
logging:
  level: warn
  console: false
http:
  addr: ":8081"
  retries: 3
`)

	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		Load(path, WithEnvPrefix("IOCTEST_LOAD_")),
		Bind[httpOptions]("http"),
	))
	assert.False(t, rt.Container.Settings().AllowCircularReferences)

	require.NoError(t, rt.Refresh(context.Background()))
	defer rt.Close(context.Background())

	opts, err := di.Resolve[*httpOptions](rt.Container)
	require.NoError(t, err)
	assert.Equal(t, ":8081", opts.Addr)
	assert.Equal(t, 3, opts.Retries)

	cfg, err := FromContainer(rt.Container)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Get("logging.level"))
}

func TestLoadBindValidationFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.json", `{"http":{"retries":1},"logging":{"level":"error"}}`)

	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(Load(path), Bind[httpOptions]("http", "httpOptions")))

	err := rt.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Addr")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	rt := core.NewRuntime()
	err := rt.Apply(Load("app.toml"))
	assert.ErrorContains(t, err, "unsupported file type")
}

func BenchmarkConfigGet(b *testing.B) {
	config, _ := NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"server": map[string]any{
				"host": "localhost",
				"port": 8080,
			},
		}).
		BuildReloadable()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		config.Get("server:host")
	}
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// 容器中注册的配置组件名
const (
	ComponentName        = "configuration"
	WatcherComponentName = "configurationWatcher"
)

// LoadOptions 配置加载选项
type LoadOptions struct {
	Paths        []string
	Optional     bool
	HotReload    bool
	EnvPrefix    string
	DotEnv       []string
	Placeholders bool
}

// LoadOption 配置加载选项函数
type LoadOption func(*LoadOptions)

// WithHotReload 启用文件热重载
func WithHotReload() LoadOption {
	return func(o *LoadOptions) {
		o.HotReload = true
	}
}

// WithOptional 配置文件不存在时不报错
func WithOptional() LoadOption {
	return func(o *LoadOptions) {
		o.Optional = true
	}
}

// WithPaths 追加配置文件，后面的覆盖前面的
func WithPaths(paths ...string) LoadOption {
	return func(o *LoadOptions) {
		o.Paths = append(o.Paths, paths...)
	}
}

// WithEnvPrefix 只读取带前缀的环境变量
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *LoadOptions) {
		o.EnvPrefix = prefix
	}
}

// WithDotEnv 追加 .env 文件作为配置源
func WithDotEnv(paths ...string) LoadOption {
	return func(o *LoadOptions) {
		o.DotEnv = append(o.DotEnv, paths...)
	}
}

// WithoutPlaceholders 不注册占位符处理器
func WithoutPlaceholders() LoadOption {
	return func(o *LoadOptions) {
		o.Placeholders = false
	}
}

// Load 加载配置文件并注册到容器。
//
// 文件按扩展名选择解析器（.json / .yaml / .yml / .env），随后叠加 .env 与环境变量。
// 同时注册占位符处理器，并把 container、logging 两个配置节应用到运行时。
func Load(path string, opts ...LoadOption) core.Option {
	return func(rt *core.Runtime) error {
		options := &LoadOptions{Placeholders: true}
		if path != "" {
			options.Paths = append(options.Paths, path)
		}
		for _, opt := range opts {
			opt(options)
		}

		builder := NewConfigurationBuilder()
		for _, p := range options.Paths {
			if err := addFile(builder, p, options); err != nil {
				return err
			}
		}
		for _, p := range options.DotEnv {
			builder.AddDotEnv(p, options.EnvPrefix, options.Optional)
		}
		builder.AddEnvironmentVariables(options.EnvPrefix)

		cfg, err := builder.BuildReloadable()
		if err != nil {
			return err
		}
		cfg.SetLogger(rt.Logger().WithCategory("config"))

		if err := rt.Container.RegisterSingleton(ComponentName, cfg); err != nil {
			return err
		}
		if options.Placeholders {
			if err := rt.Container.AddPostProcessor(NewPlaceholderProcessor(cfg)); err != nil {
				return err
			}
		}
		if err := applyRuntimeSections(rt, cfg); err != nil {
			return err
		}
		if options.HotReload {
			if err := rt.Container.RegisterSingleton(WatcherComponentName, &Watcher{Config: cfg}); err != nil {
				return err
			}
		}
		return nil
	}
}

func addFile(builder *ConfigurationBuilder, path string, options *LoadOptions) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		builder.AddJsonFile(path, options.Optional)
	case ".yaml", ".yml":
		builder.AddYamlFile(path, options.Optional)
	case ".env":
		builder.AddDotEnv(path, options.EnvPrefix, options.Optional)
	default:
		return fmt.Errorf("config: unsupported file type %q", path)
	}
	return nil
}

// applyRuntimeSections container 节覆盖容器设置，logging 节重建日志
func applyRuntimeSections(rt *core.Runtime, cfg Configuration) error {
	if _, ok := cfg.Lookup("container"); ok {
		settings := rt.Container.Settings()
		if err := cfg.Bind("container", &settings); err != nil {
			return err
		}
		rt.Container.SetSettings(settings)
	}
	if _, ok := cfg.Lookup("logging"); ok {
		opts := logging.DefaultOptions()
		if err := cfg.Bind("logging", &opts); err != nil {
			return err
		}
		rt.ConfigureLogging(opts)
	}
	return nil
}

// FromContainer 取出已注册的配置
func FromContainer(c *di.Container) (Configuration, error) {
	return di.ResolveNamed[Configuration](c, ComponentName)
}

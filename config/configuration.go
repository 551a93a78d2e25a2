package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Configuration 配置接口（类似于 .NET Core IConfiguration）
//
// 键使用 ":" 或 "." 分隔层级，例如 "server:port" 与 "server.port" 等价。
type Configuration interface {
	// Get 获取配置值，不存在时返回空串
	Get(key string) string
	// GetWithDefault 获取配置值，如果不存在则返回默认值
	GetWithDefault(key, defaultValue string) string
	// Lookup 获取原始值以及是否存在
	Lookup(key string) (any, bool)
	// GetInt 获取整数配置值
	GetInt(key string) (int, error)
	// GetBool 获取布尔配置值
	GetBool(key string) (bool, error)
	// GetDuration 获取时长，支持 "1s" 形式或整数纳秒
	GetDuration(key string) (time.Duration, error)
	// GetSection 获取配置节，重载后节视图同样可见新值
	GetSection(key string) Configuration
	// Bind 绑定配置到结构体
	Bind(key string, target any) error
	// GetAll 获取所有配置
	GetAll() map[string]any
}

// ConfigurationSource 配置源接口
type ConfigurationSource interface {
	Load() (map[string]any, error)
	Name() string
}

// ConfigurationBuilder 配置构建器，后添加的源覆盖先添加的源
type ConfigurationBuilder struct {
	sources []ConfigurationSource
	mu      sync.RWMutex
}

// NewConfigurationBuilder 创建配置构建器
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{}
}

// Add 添加配置源
func (b *ConfigurationBuilder) Add(source ConfigurationSource) *ConfigurationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, source)
	return b
}

// AddJsonFile 添加 JSON 文件配置源
func (b *ConfigurationBuilder) AddJsonFile(path string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&JsonFileSource{Path: path, Optional: isOptional(optional)})
}

// AddYamlFile 添加 YAML 文件配置源
func (b *ConfigurationBuilder) AddYamlFile(path string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&YamlFileSource{Path: path, Optional: isOptional(optional)})
}

// AddDotEnv 添加 .env 文件配置源
func (b *ConfigurationBuilder) AddDotEnv(path, prefix string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&DotEnvSource{Path: path, Prefix: prefix, Optional: isOptional(optional)})
}

// AddEnvironmentVariables 添加环境变量配置源
func (b *ConfigurationBuilder) AddEnvironmentVariables(prefix string) *ConfigurationBuilder {
	return b.Add(&EnvironmentVariableSource{Prefix: prefix})
}

// AddInMemory 添加内存配置源
func (b *ConfigurationBuilder) AddInMemory(data map[string]any) *ConfigurationBuilder {
	return b.Add(&InMemorySource{Data: data})
}

// AddEtcd 添加 etcd 配置源
func (b *ConfigurationBuilder) AddEtcd(opts EtcdOptions) *ConfigurationBuilder {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return b.Add(&EtcdSource{Options: opts})
}

// Sources 返回已添加的配置源
func (b *ConfigurationBuilder) Sources() []ConfigurationSource {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ConfigurationSource, len(b.sources))
	copy(out, b.sources)
	return out
}

// Build 构建一次性加载的配置
func (b *ConfigurationBuilder) Build() (Configuration, error) {
	data, err := loadSources(b.Sources())
	if err != nil {
		return nil, err
	}
	store := NewValueStore()
	store.Store(data)
	return &configuration{store: store}, nil
}

// BuildReloadable 构建可重载的配置
func (b *ConfigurationBuilder) BuildReloadable() (*ReloadableConfiguration, error) {
	c := &ReloadableConfiguration{
		configuration: &configuration{store: NewValueStore()},
		sources:       b.Sources(),
		debounce:      100 * time.Millisecond,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func isOptional(optional []bool) bool {
	return len(optional) > 0 && optional[0]
}

// loadSources 按顺序加载所有配置源（后面的会覆盖前面的）
func loadSources(sources []ConfigurationSource) (map[string]any, error) {
	data := make(map[string]any)
	for _, source := range sources {
		loaded, err := source.Load()
		if err != nil {
			return nil, fmt.Errorf("config: failed to load source %s: %w", source.Name(), err)
		}
		mergeMaps(data, loaded)
	}
	return data, nil
}

// configuration 基于 ValueStore 快照的只读视图；prefix 非空时表示一个配置节
type configuration struct {
	store  *ValueStore
	prefix []string
}

func (c *configuration) root() map[string]any {
	data := c.store.Load()
	if len(c.prefix) == 0 {
		return data
	}
	if m, ok := walk(data, c.prefix).(map[string]any); ok {
		return m
	}
	return nil
}

func (c *configuration) Get(key string) string {
	value, ok := c.Lookup(key)
	if !ok || value == nil {
		return ""
	}
	return stringify(value)
}

func (c *configuration) GetWithDefault(key, defaultValue string) string {
	if value := c.Get(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *configuration) Lookup(key string) (any, bool) {
	data := c.root()
	if data == nil {
		return nil, false
	}
	if key == "" {
		return data, true
	}
	segments := globalPathCache.GetPathSegments(key)
	parent, ok := walk(data, segments[:len(segments)-1]).(map[string]any)
	if !ok {
		return nil, false
	}
	value, ok := parent[segments[len(segments)-1]]
	return value, ok
}

func (c *configuration) GetInt(key string) (int, error) {
	value, ok := c.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("config: cannot convert %v to int", value)
	}
}

func (c *configuration) GetBool(key string) (bool, error) {
	value, ok := c.Lookup(key)
	if !ok {
		return false, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("config: cannot convert %v to bool", value)
	}
}

func (c *configuration) GetDuration(key string) (time.Duration, error) {
	value, ok := c.Lookup(key)
	if !ok {
		return 0, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case float64:
		return time.Duration(v), nil
	case string:
		return time.ParseDuration(v)
	default:
		return 0, fmt.Errorf("config: cannot convert %v to duration", value)
	}
}

func (c *configuration) GetSection(key string) Configuration {
	prefix := append([]string(nil), c.prefix...)
	if key != "" {
		prefix = append(prefix, globalPathCache.GetPathSegments(key)...)
	}
	return &configuration{store: c.store, prefix: prefix}
}

// Bind 通过 JSON 往返绑定，字段名大小写不敏感
func (c *configuration) Bind(key string, target any) error {
	data, ok := c.Lookup(key)
	if !ok || data == nil {
		return fmt.Errorf("config: key %s not found", key)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("config: failed to marshal %s: %w", key, err)
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("config: failed to bind %s: %w", key, err)
	}
	return nil
}

func (c *configuration) GetAll() map[string]any {
	result := make(map[string]any)
	mergeMaps(result, c.root())
	return result
}

func walk(data map[string]any, segments []string) any {
	var current any = data
	for _, part := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// mergeMaps 深度合并，src 覆盖 dst；嵌套 map 会被复制，避免共享快照
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		if dstMap, ok := dst[k].(map[string]any); ok && srcIsMap {
			mergeMaps(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			copied := make(map[string]any, len(srcMap))
			mergeMaps(copied, srcMap)
			dst[k] = copied
			continue
		}
		dst[k] = v
	}
}

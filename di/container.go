package di

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gocrud/ioc/logging"
)

// Settings 容器行为开关，可以从配置的 container 节绑定
type Settings struct {
	// AllowCircularReferences 是否通过早期引用解决单例之间的循环依赖
	AllowCircularReferences bool `json:"allowCircularReferences" yaml:"allowCircularReferences"`
	// AllowRawInjectionDespiteWrapping 原始实例已注入其他组件、最终却被包装时是否仍然放行
	AllowRawInjectionDespiteWrapping bool `json:"allowRawInjectionDespiteWrapping" yaml:"allowRawInjectionDespiteWrapping"`
	// AllowDefinitionOverriding 是否允许同名定义覆盖
	AllowDefinitionOverriding bool `json:"allowDefinitionOverriding" yaml:"allowDefinitionOverriding"`
}

// DefaultSettings 默认设置
func DefaultSettings() Settings {
	return Settings{AllowCircularReferences: true}
}

// CreationHook 组件创建完成（或失败）后回调
type CreationHook func(name, scope string, duration time.Duration, err error)

// DestroyHook 组件销毁后回调
type DestroyHook func(name string, duration time.Duration, err error)

// ContainerOption 容器选项
type ContainerOption func(*Container)

// WithParent 设置父容器，本地找不到的组件委托给父容器
func WithParent(parent *Container) ContainerOption {
	return func(c *Container) {
		c.parent = parent
	}
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) ContainerOption {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger.WithCategory("di")
		}
	}
}

// WithConverter 设置类型转换器
func WithConverter(converter TypeConverter) ContainerOption {
	return func(c *Container) {
		if converter != nil {
			c.converter = converter
		}
	}
}

// WithTypeRegistry 设置类型注册表
func WithTypeRegistry(types *TypeRegistry) ContainerOption {
	return func(c *Container) {
		if types != nil {
			c.types = types
		}
	}
}

// WithSettings 整体替换设置
func WithSettings(settings Settings) ContainerOption {
	return func(c *Container) {
		c.settings = settings
	}
}

// WithAllowCircularReferences 是否允许单例循环引用
func WithAllowCircularReferences(allow bool) ContainerOption {
	return func(c *Container) {
		c.settings.AllowCircularReferences = allow
	}
}

// WithAllowRawInjectionDespiteWrapping 是否容忍原始引用与最终包装不一致
func WithAllowRawInjectionDespiteWrapping(allow bool) ContainerOption {
	return func(c *Container) {
		c.settings.AllowRawInjectionDespiteWrapping = allow
	}
}

// WithCreationObserver 添加创建观察者
func WithCreationObserver(hook CreationHook) ContainerOption {
	return func(c *Container) {
		c.onCreate = append(c.onCreate, hook)
	}
}

// WithDestroyObserver 添加销毁观察者
func WithDestroyObserver(hook DestroyHook) ContainerOption {
	return func(c *Container) {
		c.onDestroy = append(c.onDestroy, hook)
	}
}

// Container 组件容器。Aware 回调与按类型注入拿到的 *Container 绑定了当前调用链，
// 创建过程中经由它发起的嵌套获取与外层共用同一调用链
type Container struct {
	*containerState
	active *resolution
}

type containerState struct {
	parent   *Container
	settings Settings

	mu                sync.RWMutex
	definitions       map[string]*Definition
	names             []string
	aliases           map[string]string
	scopes            map[string]Scope
	ignoredTypes      map[reflect.Type]struct{}
	ignoredInterfaces []reflect.Type
	resolvable        map[reflect.Type]any

	registry  *registry
	pipeline  *pipeline
	converter TypeConverter
	types     *TypeRegistry
	logger    logging.Logger

	// stateMu 保护容器创建后仍可调整的设置、日志与观察者
	stateMu   sync.RWMutex
	onCreate  []CreationHook
	onDestroy []DestroyHook

	descriptors *descriptorCache
	filteredMu  sync.RWMutex
	filtered    map[reflect.Type][]PropertyDescriptor

	factoryMu      sync.Mutex
	factoryObjects map[string]any
}

var containerType = reflect.TypeOf((*Container)(nil))

// NewContainer 创建容器
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{containerState: &containerState{
		settings:       DefaultSettings(),
		definitions:    make(map[string]*Definition),
		aliases:        make(map[string]string),
		scopes:         make(map[string]Scope),
		ignoredTypes:   make(map[reflect.Type]struct{}),
		resolvable:     make(map[reflect.Type]any),
		registry:       newRegistry(),
		pipeline:       &pipeline{},
		converter:      NewDefaultConverter(),
		types:          NewTypeRegistry(),
		logger:         logging.NewNopLogger(),
		descriptors:    newDescriptorCache(),
		filtered:       make(map[reflect.Type][]PropertyDescriptor),
		factoryObjects: make(map[string]any),
	}}
	for _, opt := range opts {
		opt(c)
	}

	// Aware 回调由初始化阶段负责，不参与属性注入
	c.ignoredInterfaces = append(c.ignoredInterfaces, nameAwareType, typeRegistryAwareType, containerAwareType)
	c.resolvable[containerType] = c
	return c
}

// bound 返回绑定到 res 的视图，与 c 共享全部状态
func (c *Container) bound(res *resolution) *Container {
	if res == nil || c.active == res {
		return c
	}
	return &Container{containerState: c.containerState, active: res}
}

// currentResolution 绑定的调用链仍在进行中时复用它，否则开启新的顶层调用链
func (c *Container) currentResolution() (*resolution, func()) {
	if c.active != nil && c.active.inFlight() {
		return c.active, func() {}
	}
	res := newResolution()
	res.enter()
	return res, res.exit
}

// Parent 父容器
func (c *Container) Parent() *Container {
	return c.parent
}

// Settings 当前设置
func (c *Container) Settings() Settings {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.settings
}

// SetSettings 替换设置，只影响之后开始创建的组件
func (c *Container) SetSettings(settings Settings) {
	c.stateMu.Lock()
	c.settings = settings
	c.stateMu.Unlock()
}

// SetLogger 替换容器日志
func (c *Container) SetLogger(logger logging.Logger) {
	if logger == nil {
		return
	}
	c.stateMu.Lock()
	c.logger = logger.WithCategory("di")
	c.stateMu.Unlock()
}

// AddCreationObserver 添加创建观察者
func (c *Container) AddCreationObserver(hook CreationHook) {
	c.stateMu.Lock()
	c.onCreate = append(c.onCreate, hook)
	c.stateMu.Unlock()
}

// AddDestroyObserver 添加销毁观察者
func (c *Container) AddDestroyObserver(hook DestroyHook) {
	c.stateMu.Lock()
	c.onDestroy = append(c.onDestroy, hook)
	c.stateMu.Unlock()
}

func (c *Container) log() logging.Logger {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.logger
}

// TypeRegistry 类型注册表
func (c *Container) TypeRegistry() *TypeRegistry {
	return c.types
}

// Converter 类型转换器
func (c *Container) Converter() TypeConverter {
	return c.converter
}

// Register 注册组件定义
func (c *Container) Register(name string, def *Definition) error {
	if name == "" || strings.HasPrefix(name, FactoryPrefix) {
		return definitionError(name, "invalid component name")
	}
	if def == nil {
		return definitionError(name, "definition is nil")
	}
	if err := def.validate(name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if target, ok := c.aliases[name]; ok {
		return definitionError(name, "name is already used as an alias for %q", target)
	}
	if _, exists := c.definitions[name]; exists {
		if !c.Settings().AllowDefinitionOverriding {
			return definitionError(name, "a definition is already registered under this name and overriding is disabled")
		}
		c.log().Debug("overriding component definition", logging.Field{Key: "component", Value: name})
		c.registry.removeSingleton(name)
		c.clearFactoryObject(name)
	} else {
		if c.registry.containsSingleton(name) {
			return definitionError(name, "a singleton instance is already registered under this name")
		}
		c.names = append(c.names, name)
	}
	c.definitions[name] = def
	return nil
}

// MustRegister 注册失败时 panic
func (c *Container) MustRegister(name string, def *Definition) {
	if err := c.Register(name, def); err != nil {
		panic(err)
	}
}

// RegisterAlias 为组件注册别名
func (c *Container) RegisterAlias(name, alias string) error {
	if name == alias {
		return definitionError(alias, "alias must differ from the component name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.definitions[alias]; exists {
		return definitionError(alias, "alias collides with a registered definition")
	}
	if existing, ok := c.aliases[alias]; ok && existing != name {
		return definitionError(alias, "alias already points to %q", existing)
	}
	// 拒绝别名环
	for cur := name; ; {
		next, ok := c.aliases[cur]
		if !ok {
			break
		}
		if next == alias {
			return definitionError(alias, "circular alias %q -> %q", alias, name)
		}
		cur = next
	}
	c.aliases[alias] = name
	return nil
}

// RegisterSingleton 注册已经构建好的实例，不经过创建流程
func (c *Container) RegisterSingleton(name string, instance any) error {
	if name == "" || instance == nil {
		return definitionError(name, "singleton name and instance are required")
	}
	c.mu.RLock()
	_, hasDef := c.definitions[name]
	c.mu.RUnlock()
	if hasDef {
		return definitionError(name, "a definition is already registered under this name")
	}
	if c.registry.containsSingleton(name) {
		return definitionError(name, "a singleton instance is already registered under this name")
	}
	c.registry.addSingleton(name, instance)
	return nil
}

// Definition 按名称（或别名）获取定义
func (c *Container) Definition(name string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.definitions[c.canonicalLocked(name)]
	return def, ok
}

// ContainsComponent 本容器或父容器是否存在该组件
func (c *Container) ContainsComponent(name string) bool {
	canonical := c.canonicalName(strings.TrimLeft(name, FactoryPrefix))
	if c.registry.containsSingleton(canonical) {
		return true
	}
	if _, ok := c.Definition(canonical); ok {
		return true
	}
	return c.parent != nil && c.parent.ContainsComponent(name)
}

// ComponentNames 本容器的定义名与手动注册的单例名，按注册顺序
func (c *Container) ComponentNames() []string {
	c.mu.RLock()
	names := slices.Clone(c.names)
	c.mu.RUnlock()
	for _, name := range c.registry.singletonNames() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// Aliases 某组件的全部别名
func (c *Container) Aliases(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for alias, target := range c.aliases {
		if target == name {
			out = append(out, alias)
		}
	}
	slices.Sort(out)
	return out
}

func (c *Container) canonicalName(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.canonicalLocked(name)
}

func (c *Container) canonicalLocked(name string) string {
	for {
		target, ok := c.aliases[name]
		if !ok {
			return name
		}
		name = target
	}
}

func (c *Container) definition(name string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.definitions[name]
	return def, ok
}

// AddPostProcessor 注册后处理器；同一实例重复注册时移到末尾后重新排序
func (c *Container) AddPostProcessor(processor any) error {
	if err := c.pipeline.add(processor); err != nil {
		return err
	}
	c.log().Debug("post-processor registered", logging.Field{Key: "type", Value: fmt.Sprintf("%T", processor)})
	return nil
}

// PostProcessorCount 已注册的后处理器数量
func (c *Container) PostProcessorCount() int {
	return c.pipeline.count()
}

// RegisterScope 注册自定义作用域
func (c *Container) RegisterScope(name string, scope Scope) error {
	if name == ScopeSingleton || name == ScopePrototype {
		return fmt.Errorf("di: cannot replace built-in scope %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes[name] = scope
	return nil
}

func (c *Container) scope(name string) (Scope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scopes[name]
	return s, ok
}

// IgnoreDependencyType 该类型的属性不参与自动装配
func (c *Container) IgnoreDependencyType(typ reflect.Type) {
	c.mu.Lock()
	c.ignoredTypes[typ] = struct{}{}
	c.mu.Unlock()
	c.resetFilteredDescriptors()
}

// IgnoreDependencyInterface 实现该接口的类型，其接口中声明的 setter 不参与自动装配
func (c *Container) IgnoreDependencyInterface(iface reflect.Type) {
	c.mu.Lock()
	c.ignoredInterfaces = append(c.ignoredInterfaces, iface)
	c.mu.Unlock()
	c.resetFilteredDescriptors()
}

// RegisterResolvableDependency 注册一个按类型注入时直接使用的值（不作为组件）
func (c *Container) RegisterResolvableDependency(typ reflect.Type, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvable[typ] = value
}

func (c *Container) isIgnoredType(typ reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ignoredTypes[typ]
	return ok
}

// IsCurrentlyInCreation 单例或原型是否正在创建
func (c *Container) IsCurrentlyInCreation(name string) bool {
	canonical := c.canonicalName(name)
	return c.registry.isInCreation(canonical) || c.registry.isPrototypeInCreation(canonical)
}

// IsPrototypeCurrentlyInCreation 原型是否正在创建
func (c *Container) IsPrototypeCurrentlyInCreation(name string) bool {
	return c.registry.isPrototypeInCreation(c.canonicalName(name))
}

// RegisterDependentComponent 记录 dependent 依赖 name，销毁时 dependent 先于 name
func (c *Container) RegisterDependentComponent(name, dependent string) {
	c.registry.registerDependent(c.canonicalName(name), c.canonicalName(dependent))
}

// DependentComponents 依赖该组件的组件
func (c *Container) DependentComponents(name string) []string {
	return c.registry.dependents(c.canonicalName(name))
}

// DependenciesForComponent 该组件依赖的组件
func (c *Container) DependenciesForComponent(name string) []string {
	return c.registry.dependencies(c.canonicalName(name))
}

// SingletonCount 已完成创建的单例个数
func (c *Container) SingletonCount() int {
	return c.registry.singletonCount()
}

// ContainsSingleton 是否已有完整的单例实例
func (c *Container) ContainsSingleton(name string) bool {
	return c.registry.containsSingleton(c.canonicalName(name))
}

// PreInstantiateSingletons 按注册顺序创建所有非延迟单例
func (c *Container) PreInstantiateSingletons() error {
	c.mu.RLock()
	names := slices.Clone(c.names)
	c.mu.RUnlock()

	c.log().Debug("pre-instantiating singletons", logging.Field{Key: "count", Value: len(names)})

	for _, name := range names {
		def, ok := c.definition(name)
		if !ok || def.Lazy || !def.IsSingleton() {
			continue
		}
		if err := c.preInstantiate(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) preInstantiate(name string) error {
	res, done := c.currentResolution()
	defer done()
	raw, _, err := c.getInstance(name, nil, res)
	if err != nil {
		return err
	}
	if smart, ok := raw.(SmartFactoryComponent); ok && smart.EagerInit() {
		if _, err := c.doGetComponent(name, nil, nil, res); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) notifyCreated(name, scope string, started time.Time, err error) {
	c.stateMu.RLock()
	hooks := c.onCreate
	c.stateMu.RUnlock()
	if len(hooks) == 0 {
		return
	}
	elapsed := time.Since(started)
	for _, hook := range hooks {
		hook(name, scope, elapsed, err)
	}
}

func (c *Container) notifyDestroyed(name string, started time.Time, err error) {
	c.stateMu.RLock()
	hooks := c.onDestroy
	c.stateMu.RUnlock()
	if len(hooks) == 0 {
		return
	}
	elapsed := time.Since(started)
	for _, hook := range hooks {
		hook(name, elapsed, err)
	}
}

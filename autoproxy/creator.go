package autoproxy

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Advisor 判断组件是否需要包装，并给出包装后的对象。
// Go 无法在运行时生成类型，包装对象由 Advisor 自己实现（通常是实现同一接口的装饰器）
type Advisor interface {
	Matches(typ reflect.Type, name string) bool
	Wrap(target any, name string) (any, error)
}

// Infrastructure 标记接口，实现它的组件永远不会被包装
type Infrastructure interface {
	AutoProxyInfrastructure()
}

// TargetSource 自定义目标来源。存在时组件不经过默认实例化
type TargetSource interface {
	TargetType() reflect.Type
	Target() (any, error)
}

// TargetSourceCreator 为组件提供自定义目标来源，返回 nil 表示不处理
type TargetSourceCreator interface {
	TargetSource(typ reflect.Type, name string) TargetSource
}

type cacheKey struct {
	typ  reflect.Type
	name string
}

var (
	advisorType             = di.TypeOf[Advisor]()
	infrastructureType      = di.TypeOf[Infrastructure]()
	targetSourceCreatorType = di.TypeOf[TargetSourceCreator]()
)

// Creator 自动代理后处理器：在初始化之后（或提前暴露早期引用时）用匹配的 Advisor 包装组件。
// 容器中类型为 Advisor 的组件会和静态配置的 Advisor 一起参与匹配
type Creator struct {
	advisors      []Advisor
	targetSources []TargetSourceCreator
	skip          map[string]struct{}
	order         int
	logger        logging.Logger
	container     *di.Container

	mu            sync.Mutex
	advised       map[cacheKey]bool
	early         map[cacheKey]any
	targetSourced map[string]struct{}
	proxyTypes    map[cacheKey]reflect.Type
}

// Option Creator 选项
type Option func(*Creator)

// WithAdvisors 添加静态 Advisor
func WithAdvisors(advisors ...Advisor) Option {
	return func(c *Creator) {
		c.advisors = append(c.advisors, advisors...)
	}
}

// WithTargetSourceCreators 添加自定义目标来源
func WithTargetSourceCreators(creators ...TargetSourceCreator) Option {
	return func(c *Creator) {
		c.targetSources = append(c.targetSources, creators...)
	}
}

// WithSkip 指定不包装的组件名
func WithSkip(names ...string) Option {
	return func(c *Creator) {
		for _, name := range names {
			c.skip[name] = struct{}{}
		}
	}
}

// WithOrder 设置后处理器顺序，默认最低优先级
func WithOrder(order int) Option {
	return func(c *Creator) {
		c.order = order
	}
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(c *Creator) {
		c.logger = logger
	}
}

// New 创建自动代理后处理器
func New(opts ...Option) *Creator {
	c := &Creator{
		skip:          make(map[string]struct{}),
		order:         di.LowestPrecedence,
		logger:        logging.NewNopLogger(),
		advised:       make(map[cacheKey]bool),
		early:         make(map[cacheKey]any),
		targetSourced: make(map[string]struct{}),
		proxyTypes:    make(map[cacheKey]reflect.Type),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Creator) Order() int                           { return c.order }
func (c *Creator) SetContainer(container *di.Container) { c.container = container }
func (c *Creator) AutoProxyInfrastructure()             {}

// PredictType 返回已知的代理类型，未知时返回 nil
func (c *Creator) PredictType(typ reflect.Type, name string) reflect.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proxyTypes[cacheKey{typ, name}]
}

// EarlyReference 提前暴露时就完成包装，初始化之后不再重复处理
func (c *Creator) EarlyReference(instance any, name string) (any, error) {
	key := cacheKey{reflect.TypeOf(instance), name}
	c.mu.Lock()
	c.early[key] = instance
	c.mu.Unlock()
	return c.wrapIfNecessary(instance, name, key)
}

// PostProcessBeforeInstantiation 存在自定义目标来源时直接返回包装后的对象
func (c *Creator) PostProcessBeforeInstantiation(typ reflect.Type, name string) (any, error) {
	key := cacheKey{typ, name}

	c.mu.Lock()
	_, sourced := c.targetSourced[name]
	_, handled := c.advised[key]
	c.mu.Unlock()
	if !sourced {
		if handled {
			return nil, nil
		}
		if c.isInfrastructure(typ) || c.shouldSkip(name) {
			c.markAdvised(key, false)
			return nil, nil
		}
	}

	ts := c.customTargetSource(typ, name)
	if ts == nil {
		return nil, nil
	}
	target, err := ts.Target()
	if err != nil {
		return nil, fmt.Errorf("autoproxy: target source for %q: %w", name, err)
	}

	c.mu.Lock()
	c.targetSourced[name] = struct{}{}
	c.mu.Unlock()

	proxy, err := c.applyAdvisors(target, ts.TargetType(), name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.proxyTypes[key] = reflect.TypeOf(proxy)
	c.mu.Unlock()
	return proxy, nil
}

// PostProcessAfterInitialization 未提前暴露过的组件在这里包装；
// 早期引用记录用过即删，初始化前被替换成其他实例时重新包装
func (c *Creator) PostProcessAfterInitialization(instance any, name string) (any, error) {
	if instance == nil {
		return nil, nil
	}
	key := cacheKey{reflect.TypeOf(instance), name}
	c.mu.Lock()
	early, ok := c.early[key]
	delete(c.early, key)
	c.mu.Unlock()
	if ok && sameInstance(early, instance) {
		return instance, nil
	}
	return c.wrapIfNecessary(instance, name, key)
}

func sameInstance(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Pointer || vb.Kind() != reflect.Pointer {
		return false
	}
	return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
}

func (c *Creator) wrapIfNecessary(instance any, name string, key cacheKey) (any, error) {
	c.mu.Lock()
	_, sourced := c.targetSourced[name]
	advised, handled := c.advised[key]
	c.mu.Unlock()
	if sourced || (handled && !advised) {
		return instance, nil
	}

	typ := reflect.TypeOf(instance)
	if c.isInfrastructure(typ) || c.shouldSkip(name) {
		c.markAdvised(key, false)
		return instance, nil
	}

	matched, err := c.advisorsFor(typ, name)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		c.markAdvised(key, false)
		return instance, nil
	}

	c.markAdvised(key, true)
	proxy, err := wrap(instance, name, matched)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.proxyTypes[key] = reflect.TypeOf(proxy)
	c.mu.Unlock()

	c.logger.Debug("created proxy",
		logging.Field{Key: "component", Value: name},
		logging.Field{Key: "advisors", Value: len(matched)})
	return proxy, nil
}

func (c *Creator) applyAdvisors(target any, typ reflect.Type, name string) (any, error) {
	matched, err := c.advisorsFor(typ, name)
	if err != nil {
		return nil, err
	}
	return wrap(target, name, matched)
}

// wrap 按顺序包装，第一个 Advisor 在最内层
func wrap(target any, name string, advisors []Advisor) (any, error) {
	proxy := target
	for _, a := range advisors {
		next, err := a.Wrap(proxy, name)
		if err != nil {
			return nil, fmt.Errorf("autoproxy: wrap %q: %w", name, err)
		}
		proxy = next
	}
	return proxy, nil
}

func (c *Creator) markAdvised(key cacheKey, advised bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advised[key] = advised
}

// advisorsFor 静态 Advisor 与容器中的 Advisor 组件，按 Ordered 排序后过滤
func (c *Creator) advisorsFor(typ reflect.Type, name string) ([]Advisor, error) {
	candidates, err := c.candidateAdvisors()
	if err != nil {
		return nil, err
	}
	var matched []Advisor
	for _, a := range candidates {
		if a.Matches(typ, name) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

func (c *Creator) candidateAdvisors() ([]Advisor, error) {
	advisors := append([]Advisor(nil), c.advisors...)
	if c.container != nil {
		for _, name := range c.container.ComponentNamesForType(advisorType, true, false) {
			// 正在创建的 Advisor 跳过，避免递归
			if c.container.IsCurrentlyInCreation(name) {
				continue
			}
			obj, err := c.container.GetComponent(name)
			if err != nil {
				return nil, fmt.Errorf("autoproxy: advisor %q: %w", name, err)
			}
			advisors = append(advisors, obj.(Advisor))
		}
	}
	di.SortOrdered(advisors)
	return advisors, nil
}

func (c *Creator) customTargetSource(typ reflect.Type, name string) TargetSource {
	if c.container == nil || !c.container.ContainsComponent(name) {
		return nil
	}
	for _, tsc := range c.targetSources {
		if ts := tsc.TargetSource(typ, name); ts != nil {
			c.logger.Debug("custom target source found", logging.Field{Key: "component", Value: name})
			return ts
		}
	}
	return nil
}

// isInfrastructure Advisor、目标来源、后处理器本身不参与代理
func (c *Creator) isInfrastructure(typ reflect.Type) bool {
	if typ == nil {
		return false
	}
	return typ.Implements(advisorType) ||
		typ.Implements(infrastructureType) ||
		typ.Implements(targetSourceCreatorType) ||
		di.IsPostProcessorType(typ)
}

func (c *Creator) shouldSkip(name string) bool {
	_, ok := c.skip[name]
	return ok
}

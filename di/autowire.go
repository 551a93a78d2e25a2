package di

import (
	"reflect"
)

// AutowireComponent 对容器外创建的对象按指定模式装配属性
func (c *Container) AutowireComponent(existing any, mode AutowireMode, dependencyCheck bool) error {
	if existing == nil {
		return definitionError("", "cannot autowire a nil object")
	}
	typ := reflect.TypeOf(existing)
	def := NewDefinition(typ, WithAutowire(mode), WithPrototype())
	if dependencyCheck {
		def.DependencyCheck = CheckObjects
	}
	res, done := c.currentResolution()
	defer done()
	return c.populate(typ.String(), def, c.wrap(existing), res)
}

// ConfigureComponent 使用已注册的定义装配并初始化外部对象
func (c *Container) ConfigureComponent(existing any, name string) (any, error) {
	canonical := c.canonicalName(name)
	def, ok := c.definition(canonical)
	if !ok {
		return nil, notFoundError(canonical)
	}
	res, done := c.currentResolution()
	defer done()
	if err := c.populate(canonical, def, c.wrap(existing), res); err != nil {
		return nil, creationError(canonical, PhasePopulation, err)
	}
	return c.initialize(canonical, existing, def, res)
}

// InitializeComponent 对外部对象执行 Aware 回调、初始化方法与初始化前后处理
func (c *Container) InitializeComponent(existing any, name string) (any, error) {
	res, done := c.currentResolution()
	defer done()
	return c.initialize(name, existing, nil, res)
}

// CreateComponent 以原型方式完整创建一个类型的实例，不注册到容器
func (c *Container) CreateComponent(typ reflect.Type) (any, error) {
	def := NewDefinition(typ, WithPrototype())
	name := typ.String()
	if err := def.validate(name); err != nil {
		return nil, err
	}
	res, done := c.currentResolution()
	defer done()
	c.registry.beginPrototype(name, res)
	defer c.registry.endPrototype(name, res)
	return c.createComponent(name, def, nil, res)
}

// ApplyBeforeInitialization 对外部对象执行初始化前后处理
func (c *Container) ApplyBeforeInitialization(existing any, name string) (any, error) {
	return c.pipeline.applyBeforeInitialization(existing, name)
}

// ApplyAfterInitialization 对外部对象执行初始化后处理
func (c *Container) ApplyAfterInitialization(existing any, name string) (any, error) {
	return c.pipeline.applyAfterInitialization(existing, name)
}

package di

import (
	"reflect"
	"time"

	"github.com/gocrud/ioc/logging"
)

// createComponent 完整的创建流程：类型解析、合并后处理、实例化前短路、创建
func (c *Container) createComponent(name string, def *Definition, args []any, res *resolution) (any, error) {
	started := time.Now()
	instance, err := c.doCreateComponent(name, def, args, res)
	c.notifyCreated(name, def.Scope, started, err)
	if err != nil {
		return nil, err
	}
	c.log().Debug("component created",
		logging.Field{Key: "component", Value: name},
		logging.Field{Key: "scope", Value: def.Scope},
		logging.Field{Key: "duration", Value: time.Since(started)},
		logging.Field{Key: "resolution", Value: res.id})
	return instance, nil
}

func (c *Container) doCreateComponent(name string, def *Definition, args []any, res *resolution) (any, error) {
	typ, err := c.resolveTargetType(name, def)
	if err != nil {
		return nil, err
	}

	if err := c.mergeDefinition(name, def, typ); err != nil {
		return nil, creationError(name, PhaseMerge, err)
	}

	// 后处理器可以直接返回实例（例如代理）替代正常创建
	shortcut, err := c.resolveBeforeInstantiation(name, def)
	if err != nil {
		return nil, creationError(name, PhaseInstantiation, err)
	}
	if shortcut != nil {
		return shortcut, nil
	}

	return c.doCreate(name, def, args, res)
}

// mergeDefinition 每个定义只执行一次合并后处理
func (c *Container) mergeDefinition(name string, def *Definition, typ reflect.Type) error {
	def.postProcessingMu.Lock()
	defer def.postProcessingMu.Unlock()
	if def.postProcessed {
		return nil
	}
	if err := c.pipeline.applyMerge(def, typ, name); err != nil {
		return err
	}
	def.postProcessed = true
	return nil
}

func (c *Container) resolveBeforeInstantiation(name string, def *Definition) (any, error) {
	def.beforeInstantiationMu.Lock()
	skip := def.beforeInstantiationResolved != nil && !*def.beforeInstantiationResolved
	def.beforeInstantiationMu.Unlock()
	if skip {
		return nil, nil
	}

	var obj any
	hasInterceptor := c.pipeline.has(func(v any) bool {
		_, ok := v.(InstantiationInterceptor)
		return ok
	})
	if !def.Synthetic && hasInterceptor {
		if target := c.predictType(name, def); target != nil {
			var err error
			obj, err = c.pipeline.applyBeforeInstantiation(target, name)
			if err != nil {
				return nil, err
			}
			if obj != nil {
				obj, err = c.pipeline.applyAfterInitialization(obj, name)
				if err != nil {
					return nil, err
				}
			}
		}
	}
	resolved := obj != nil
	def.beforeInstantiationMu.Lock()
	def.beforeInstantiationResolved = &resolved
	def.beforeInstantiationMu.Unlock()
	return obj, nil
}

// doCreate 实例化、提前暴露、属性填充、初始化与早期引用校验
func (c *Container) doCreate(name string, def *Definition, args []any, res *resolution) (any, error) {
	wrapper, err := c.createInstance(name, def, args, res)
	if err != nil {
		return nil, err
	}
	raw := wrapper.Instance()

	earlyExposure := def.IsSingleton() && c.Settings().AllowCircularReferences && c.registry.isInCreation(name)
	if earlyExposure {
		c.log().Debug("eagerly caching component to allow for resolving potential circular references",
			logging.Field{Key: "component", Value: name})
		c.registry.addSingletonFactory(name, &earlyReference{
			raw: raw,
			resolve: func(obj any) (any, error) {
				return c.earlyReference(name, def, obj)
			},
		})
	}

	if err := c.populate(name, def, wrapper, res); err != nil {
		return nil, creationError(name, PhasePopulation, err)
	}
	exposed, err := c.initialize(name, raw, def, res)
	if err != nil {
		return nil, err
	}

	if earlyExposure {
		if early, ok := c.registry.earlyExposed(name); ok {
			if sameInstance(exposed, raw) {
				exposed = early
			} else if !c.Settings().AllowRawInjectionDespiteWrapping {
				if dependents := c.registry.dependents(name); len(dependents) > 0 {
					return nil, circularWiringError(name, dependents)
				}
			}
		}
	}

	c.registerDisposableIfNecessary(name, exposed, def)
	return exposed, nil
}

// earlyReference 循环引用时交给其他组件的引用
func (c *Container) earlyReference(name string, def *Definition, raw any) (any, error) {
	if def.Synthetic {
		return raw, nil
	}
	return c.pipeline.applyEarlyReference(raw, name)
}

// resolveTargetType 声明的类型、类型名，或由构造函数/工厂方法的返回值推断
func (c *Container) resolveTargetType(name string, def *Definition) (reflect.Type, error) {
	if typ := def.targetType(); typ != nil {
		return typ, nil
	}
	if def.TypeName != "" {
		typ, ok := c.types.Resolve(def.TypeName)
		if !ok {
			return nil, definitionError(name, "type name %q is not registered in the type registry", def.TypeName)
		}
		def.setTargetType(typ)
		return typ, nil
	}

	if def.IsFactoryMethod() {
		if len(def.FactoryFuncs) > 0 {
			return funcReturnType(def.FactoryFuncs[0]), nil
		}
		factoryName := c.canonicalName(def.FactoryComponent)
		var factoryType reflect.Type
		if obj, ok, _ := c.registry.getSingleton(factoryName, false); ok {
			factoryType = reflect.TypeOf(obj)
		} else if fdef, ok := c.definition(factoryName); ok && factoryName != name {
			factoryType, _ = c.resolveTargetType(factoryName, fdef)
		}
		if factoryType != nil {
			if m, ok := factoryType.MethodByName(def.FactoryMethod); ok && m.Type.NumOut() > 0 {
				return m.Type.Out(0), nil
			}
		}
		return nil, nil
	}
	if len(def.Constructors) > 0 {
		return funcReturnType(def.Constructors[0]), nil
	}
	return nil, nil
}

// predictType 组件最终类型的预测，后处理器可以改写
func (c *Container) predictType(name string, def *Definition) reflect.Type {
	typ, err := c.resolveTargetType(name, def)
	if err != nil || typ == nil {
		return nil
	}
	if def.Synthetic {
		return typ
	}
	return c.pipeline.predictType(typ, name)
}

func funcReturnType(fn any) reflect.Type {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func || ft.NumOut() == 0 {
		return nil
	}
	return ft.Out(0)
}

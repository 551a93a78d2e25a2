package di

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// disposableAdapter 统一执行 DestructionAware、Disposable 与自定义销毁方法
type disposableAdapter struct {
	name             string
	instance         any
	invokeDisposable bool
	destroyMethod    string
	enforce          bool
	pipeline         *pipeline
}

func (c *Container) newDisposableAdapter(name string, instance any, def *Definition) *disposableAdapter {
	a := &disposableAdapter{
		name:     name,
		instance: instance,
		enforce:  true,
		pipeline: c.pipeline,
	}
	_, isDisposable := instance.(Disposable)
	a.invokeDisposable = isDisposable && (def == nil || !def.isExternallyManagedDestroyMethod("Destroy"))
	if def != nil && def.DestroyMethod != "" &&
		!(isDisposable && def.DestroyMethod == "Destroy") &&
		!def.isExternallyManagedDestroyMethod(def.DestroyMethod) {
		a.destroyMethod = def.DestroyMethod
		a.enforce = def.EnforceDestroyMethod
	}
	return a
}

func (a *disposableAdapter) destroy() error {
	var errs error
	for _, p := range a.pipeline.destructionAware() {
		errs = multierr.Append(errs, callSafely(func() error {
			return p.PostProcessBeforeDestruction(a.instance, a.name)
		}))
	}
	if a.invokeDisposable {
		errs = multierr.Append(errs, callSafely(a.instance.(Disposable).Destroy))
	}
	if a.destroyMethod != "" {
		errs = multierr.Append(errs, a.invokeDestroyMethod())
	}
	return errs
}

func (a *disposableAdapter) invokeDestroyMethod() error {
	m := reflect.ValueOf(a.instance).MethodByName(a.destroyMethod)
	if !m.IsValid() {
		if a.enforce {
			return fmt.Errorf("could not find a destroy method named %q on %T", a.destroyMethod, a.instance)
		}
		return nil
	}
	if err := checkLifecycleMethod(m.Type()); err != nil {
		return fmt.Errorf("destroy method %q: %w", a.destroyMethod, err)
	}
	return callLifecycleMethod(m)
}

func (c *Container) requiresDestruction(instance any, def *Definition) bool {
	if instance == nil {
		return false
	}
	if _, ok := instance.(Disposable); ok {
		return true
	}
	if def != nil && def.DestroyMethod != "" {
		return true
	}
	return c.pipeline.hasDestructionAware()
}

// registerDisposableIfNecessary 单例登记到注册表，自定义作用域登记销毁回调；原型不跟踪
func (c *Container) registerDisposableIfNecessary(name string, instance any, def *Definition) {
	if def.IsPrototype() || !c.requiresDestruction(instance, def) {
		return
	}
	adapter := c.newDisposableAdapter(name, instance, def)
	if def.IsSingleton() {
		c.registry.registerDisposable(name, adapter)
		return
	}
	if scope, ok := c.scope(def.Scope); ok {
		scope.RegisterDestructionCallback(name, func() {
			started := time.Now()
			err := adapter.destroy()
			c.notifyDestroyed(name, started, err)
			if err != nil {
				c.log().Warn("destruction of scoped component failed",
					logging.Field{Key: "component", Value: name},
					logging.Field{Key: "error", Value: err})
			}
		})
	}
}

// DestroySingletons 按注册的逆序销毁单例；依赖方先于被依赖方销毁
func (c *Container) DestroySingletons() error {
	c.log().Debug("destroying singletons", logging.Field{Key: "count", Value: c.SingletonCount()})

	c.registry.setDestroying(true)
	defer c.registry.setDestroying(false)

	var errs error
	names := c.registry.disposableNames()
	for i := len(names) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, c.destroySingleton(names[i]))
	}

	c.registry.clear()
	c.factoryMu.Lock()
	clear(c.factoryObjects)
	c.factoryMu.Unlock()

	if errs != nil {
		c.log().Warn("errors occurred while destroying singletons", logging.Field{Key: "error", Value: errs})
	}
	return errs
}

// DestroySingleton 销毁单个单例及依赖它的组件
func (c *Container) DestroySingleton(name string) error {
	return c.destroySingleton(c.canonicalName(name))
}

func (c *Container) destroySingleton(name string) error {
	c.registry.removeSingleton(name)
	c.clearFactoryObject(name)
	return c.destroyComponent(name, c.registry.takeDisposable(name))
}

func (c *Container) destroyComponent(name string, d disposer) error {
	contained, dependents := c.registry.takeRelations(name)

	var errs error
	for _, dep := range dependents {
		errs = multierr.Append(errs, c.destroySingleton(dep))
	}

	if d != nil {
		started := time.Now()
		err := d.destroy()
		c.notifyDestroyed(name, started, err)
		if err != nil {
			c.log().Warn("destruction of component failed",
				logging.Field{Key: "component", Value: name},
				logging.Field{Key: "error", Value: err})
			errs = multierr.Append(errs, destructionError(name, err))
		} else {
			c.log().Debug("component destroyed", logging.Field{Key: "component", Value: name})
		}
	}

	for _, inner := range contained {
		errs = multierr.Append(errs, c.destroySingleton(inner))
	}
	return errs
}

// DestroyComponent 按定义销毁一个原型实例
func (c *Container) DestroyComponent(name string, instance any) error {
	def, _ := c.Definition(name)
	if !c.requiresDestruction(instance, def) {
		return nil
	}
	started := time.Now()
	err := c.newDisposableAdapter(name, instance, def).destroy()
	c.notifyDestroyed(name, started, err)
	if err != nil {
		return destructionError(name, err)
	}
	return nil
}

// DestroyScopedComponent 从自定义作用域移除实例并执行销毁回调
func (c *Container) DestroyScopedComponent(name string) error {
	canonical := c.canonicalName(name)
	def, ok := c.definition(canonical)
	if !ok {
		return notFoundError(canonical)
	}
	if def.IsSingleton() || def.IsPrototype() {
		return definitionError(canonical, "component is not in a custom scope")
	}
	scope, ok := c.scope(def.Scope)
	if !ok {
		return definitionError(canonical, "no scope registered for scope name %q", def.Scope)
	}
	scope.Remove(canonical)
	return nil
}

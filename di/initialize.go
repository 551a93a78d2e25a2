package di

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/logging"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// initialize Aware 回调、初始化前后处理、初始化方法
func (c *Container) initialize(name string, instance any, def *Definition, res *resolution) (any, error) {
	c.invokeAwareMethods(name, instance, res)

	synthetic := def != nil && def.Synthetic
	wrapped := instance
	if !synthetic {
		var err error
		wrapped, err = c.pipeline.applyBeforeInitialization(wrapped, name)
		if err != nil {
			return nil, creationError(name, PhaseInitialization, err)
		}
	}

	if err := c.invokeInitMethods(name, wrapped, def); err != nil {
		return nil, creationError(name, PhaseInitialization, err)
	}

	if !synthetic {
		var err error
		wrapped, err = c.pipeline.applyAfterInitialization(wrapped, name)
		if err != nil {
			return nil, creationError(name, PhaseInitialization, err)
		}
	}
	return wrapped, nil
}

func (c *Container) invokeAwareMethods(name string, instance any, res *resolution) {
	if aware, ok := instance.(NameAware); ok {
		aware.SetComponentName(name)
	}
	if aware, ok := instance.(TypeRegistryAware); ok {
		aware.SetTypeRegistry(c.types)
	}
	if aware, ok := instance.(ContainerAware); ok {
		aware.SetContainer(c.bound(res))
	}
}

func (c *Container) invokeInitMethods(name string, instance any, def *Definition) error {
	init, isInitializing := instance.(Initializing)
	if isInitializing && (def == nil || !def.isExternallyManagedInitMethod("AfterPropertiesSet")) {
		c.log().Trace("invoking AfterPropertiesSet", logging.Field{Key: "component", Value: name})
		if err := callSafely(init.AfterPropertiesSet); err != nil {
			return err
		}
	}

	if def == nil || def.InitMethod == "" {
		return nil
	}
	if isInitializing && def.InitMethod == "AfterPropertiesSet" {
		return nil
	}
	if def.isExternallyManagedInitMethod(def.InitMethod) {
		return nil
	}
	return c.invokeCustomInitMethod(name, instance, def)
}

func (c *Container) invokeCustomInitMethod(name string, instance any, def *Definition) error {
	m := reflect.ValueOf(instance).MethodByName(def.InitMethod)
	if !m.IsValid() {
		if def.EnforceInitMethod {
			return definitionError(name, "could not find an init method named %q on %T", def.InitMethod, instance)
		}
		c.log().Trace("no init method found", logging.Field{Key: "component", Value: name},
			logging.Field{Key: "method", Value: def.InitMethod})
		return nil
	}
	if err := checkLifecycleMethod(m.Type()); err != nil {
		return definitionError(name, "init method %q: %v", def.InitMethod, err)
	}
	c.log().Trace("invoking init method", logging.Field{Key: "component", Value: name},
		logging.Field{Key: "method", Value: def.InitMethod})
	return callLifecycleMethod(m)
}

// checkLifecycleMethod 生命周期方法：无参或仅接收 context.Context，返回空或 error
func checkLifecycleMethod(mt reflect.Type) error {
	if mt.NumIn() > 1 || (mt.NumIn() == 1 && mt.In(0) != contextType) {
		return fmt.Errorf("must take no arguments or a single context.Context")
	}
	if mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
		return fmt.Errorf("must return nothing or an error")
	}
	return nil
}

func callLifecycleMethod(m reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	var args []reflect.Value
	if m.Type().NumIn() == 1 {
		args = []reflect.Value{reflect.ValueOf(context.Background())}
	}
	out := m.Call(args)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

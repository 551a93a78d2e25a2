package di

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gocrud/ioc/logging"
)

// GetComponent 按名称获取组件；"&name" 获取工厂组件本身
func (c *Container) GetComponent(name string) (any, error) {
	res, done := c.currentResolution()
	defer done()
	return c.doGetComponent(name, nil, nil, res)
}

// GetComponentWithArgs 使用显式构造参数创建（原型或尚未创建的单例）
func (c *Container) GetComponentWithArgs(name string, args ...any) (any, error) {
	if len(args) == 0 {
		return c.GetComponent(name)
	}
	res, done := c.currentResolution()
	defer done()
	return c.doGetComponent(name, nil, args, res)
}

// GetComponentAs 按名称获取并校验类型
func (c *Container) GetComponentAs(name string, typ reflect.Type) (any, error) {
	res, done := c.currentResolution()
	defer done()
	return c.doGetComponent(name, typ, nil, res)
}

// GetComponentOfType 按类型获取唯一组件
func (c *Container) GetComponentOfType(typ reflect.Type) (any, error) {
	desc := &DependencyDescriptor{Type: typ, Required: true, Eager: true}
	res, done := c.currentResolution()
	defer done()
	obj, err := c.resolveDependency(desc, "", nil, nil, res)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, noCandidateError(typ)
	}
	return obj, nil
}

// ComponentsOfType 按类型获取全部组件，key 为组件名
func (c *Container) ComponentsOfType(typ reflect.Type) (map[string]any, error) {
	res, done := c.currentResolution()
	defer done()
	out := make(map[string]any)
	for _, name := range c.componentNamesForType(typ, true, true, res) {
		obj, err := c.doGetComponent(name, nil, nil, res)
		if err != nil {
			return nil, err
		}
		out[name] = obj
	}
	return out, nil
}

// ComponentNamesForType 与类型匹配的组件名
func (c *Container) ComponentNamesForType(typ reflect.Type, includeNonSingletons, allowEager bool) []string {
	res, done := c.currentResolution()
	defer done()
	return c.componentNamesForType(typ, includeNonSingletons, allowEager, res)
}

// TypeOf 组件（或其产品）的类型，不触发实例化
func (c *Container) TypeOf(name string) (reflect.Type, error) {
	deref := strings.HasPrefix(name, FactoryPrefix)
	canonical := c.canonicalName(strings.TrimLeft(name, FactoryPrefix))

	if obj, ok, _ := c.registry.getSingleton(canonical, false); ok {
		if fc, isFactory := obj.(FactoryComponent); isFactory && !deref {
			return fc.ObjectType(), nil
		}
		return reflect.TypeOf(obj), nil
	}

	def, ok := c.definition(canonical)
	if !ok {
		if c.parent != nil {
			return c.parent.TypeOf(name)
		}
		return nil, notFoundError(canonical)
	}
	typ := c.predictType(canonical, def)
	if typ != nil && !deref && typ.Implements(factoryComponentType) {
		return def.ObjectType, nil
	}
	return typ, nil
}

// IsSingleton 组件是否单例
func (c *Container) IsSingleton(name string) (bool, error) {
	canonical := c.canonicalName(strings.TrimLeft(name, FactoryPrefix))
	if def, ok := c.definition(canonical); ok {
		return def.IsSingleton(), nil
	}
	if c.registry.containsSingleton(canonical) {
		return true, nil
	}
	if c.parent != nil {
		return c.parent.IsSingleton(name)
	}
	return false, notFoundError(canonical)
}

// IsPrototype 组件是否原型
func (c *Container) IsPrototype(name string) (bool, error) {
	canonical := c.canonicalName(strings.TrimLeft(name, FactoryPrefix))
	if def, ok := c.definition(canonical); ok {
		return def.IsPrototype(), nil
	}
	if c.registry.containsSingleton(canonical) {
		return false, nil
	}
	if c.parent != nil {
		return c.parent.IsPrototype(name)
	}
	return false, notFoundError(canonical)
}

func (c *Container) doGetComponent(name string, requiredType reflect.Type, args []any, res *resolution) (any, error) {
	deref := strings.HasPrefix(name, FactoryPrefix)
	canonical := c.canonicalName(strings.TrimLeft(name, FactoryPrefix))

	// 本地不存在时交给父容器
	if c.parent != nil {
		if _, ok := c.definition(canonical); !ok && !c.registry.containsSingleton(canonical) {
			return c.parent.doGetComponent(name, requiredType, args, res)
		}
	}

	instance, def, err := c.getInstance(canonical, args, res)
	if err != nil {
		return nil, err
	}
	obj, err := c.objectForInstance(instance, canonical, deref, def)
	if err != nil {
		return nil, err
	}
	if requiredType != nil && (obj == nil || !reflect.TypeOf(obj).AssignableTo(requiredType)) {
		return nil, typeMismatchError(canonical, requiredType, obj)
	}
	return obj, nil
}

// getInstance 获取组件的原始实例（工厂组件返回工厂本身）
func (c *Container) getInstance(name string, args []any, res *resolution) (any, *Definition, error) {
	if args == nil {
		shared, ok, err := c.registry.getSingleton(name, true)
		if err != nil {
			return nil, nil, creationError(name, PhaseInstantiation, err)
		}
		if ok {
			def, _ := c.definition(name)
			if c.registry.isInCreation(name) {
				c.log().Trace("returning early reference of singleton in creation",
					logging.Field{Key: "component", Value: name})
			}
			return shared, def, nil
		}
	}

	if res.prototypeInCreation(name) {
		return nil, nil, inCreationError(name)
	}

	def, ok := c.definition(name)
	if !ok {
		if shared, ok, _ := c.registry.getSingleton(name, false); ok {
			return shared, nil, nil
		}
		return nil, nil, notFoundError(name)
	}

	if err := c.initDependsOn(name, def, res); err != nil {
		return nil, nil, err
	}

	var (
		instance any
		err      error
	)
	switch {
	case def.IsSingleton():
		instance, err = c.getOrCreateSingleton(name, def, args, res)
	case def.IsPrototype():
		instance, err = c.createPrototype(name, def, args, res)
	default:
		scope, ok := c.scope(def.Scope)
		if !ok {
			return nil, nil, definitionError(name, "no scope registered for scope name %q", def.Scope)
		}
		instance, err = scope.Get(name, func() (any, error) {
			return c.createPrototype(name, def, args, res)
		})
	}
	if err != nil {
		return nil, nil, err
	}
	return instance, def, nil
}

// initDependsOn 先初始化显式声明的依赖
func (c *Container) initDependsOn(name string, def *Definition, res *resolution) error {
	for _, dep := range def.DependsOn {
		depName := c.canonicalName(dep)
		if c.registry.isDependent(name, depName) {
			return definitionError(name, "circular depends-on relationship between %q and %q", name, depName)
		}
		c.registry.registerDependent(depName, name)
		if _, err := c.doGetComponent(dep, nil, nil, res); err != nil {
			return &Error{
				Code:      ErrCodeCreation,
				Component: name,
				Phase:     PhaseInstantiation,
				Message:   fmt.Sprintf("component depends on %q which could not be created", dep),
				Cause:     err,
			}
		}
	}
	return nil
}

func (c *Container) getOrCreateSingleton(name string, def *Definition, args []any, res *resolution) (any, error) {
	obj, created, err := c.registry.lockForCreation(name, res)
	if err != nil {
		return nil, err
	}
	if created {
		return obj, nil
	}
	defer c.registry.unlockCreation(name)

	if c.registry.isDestroying() {
		return nil, &Error{
			Code:      ErrCodeCreation,
			Component: name,
			Message:   "singleton creation not allowed while singletons of this container are being destroyed",
		}
	}

	c.registry.beginCreation(name)
	instance, err := c.createComponent(name, def, args, res)
	c.registry.endCreation(name)
	if err != nil {
		// 清除可能已经暴露的早期引用及依赖它的组件
		if derr := c.destroySingleton(name); derr != nil {
			c.log().Warn("cleanup after failed creation reported errors",
				logging.Field{Key: "component", Value: name},
				logging.Field{Key: "error", Value: derr})
		}
		return nil, err
	}
	c.registry.addSingleton(name, instance)
	return instance, nil
}

func (c *Container) createPrototype(name string, def *Definition, args []any, res *resolution) (any, error) {
	c.registry.beginPrototype(name, res)
	defer c.registry.endPrototype(name, res)
	return c.createComponent(name, def, args, res)
}

// objectForInstance 工厂组件返回其产品，除非显式要求工厂本身
func (c *Container) objectForInstance(instance any, name string, deref bool, def *Definition) (any, error) {
	fc, isFactory := instance.(FactoryComponent)
	if deref {
		if !isFactory {
			return nil, &Error{
				Code:      ErrCodeTypeMismatch,
				Component: name,
				Message:   fmt.Sprintf("component of type %T is not a factory component", instance),
			}
		}
		return instance, nil
	}
	if !isFactory {
		return instance, nil
	}
	if c.registry.isInCreation(name) {
		return nil, inCreationError(name)
	}
	synthetic := def != nil && def.Synthetic
	shared := fc.IsSingleton() && c.registry.containsSingleton(name)
	return c.objectFromFactory(fc, name, synthetic, shared)
}

func (c *Container) objectFromFactory(fc FactoryComponent, name string, synthetic, shared bool) (any, error) {
	if shared {
		c.factoryMu.Lock()
		obj, ok := c.factoryObjects[name]
		c.factoryMu.Unlock()
		if ok {
			return obj, nil
		}
	}

	obj, err := callFactoryObject(fc)
	if err != nil {
		return nil, creationError(name, PhaseInstantiation, err)
	}
	if obj == nil {
		return nil, &Error{
			Code:      ErrCodeCreation,
			Component: name,
			Phase:     PhaseInstantiation,
			Message:   "factory component returned a nil object",
		}
	}
	if !synthetic {
		obj, err = c.pipeline.applyAfterInitialization(obj, name)
		if err != nil {
			return nil, creationError(name, PhaseInitialization, err)
		}
	}

	if shared {
		c.factoryMu.Lock()
		defer c.factoryMu.Unlock()
		if existing, ok := c.factoryObjects[name]; ok {
			return existing, nil
		}
		c.factoryObjects[name] = obj
	}
	return obj, nil
}

func callFactoryObject(fc FactoryComponent) (obj any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in factory component: %v", r)
		}
	}()
	return fc.Object()
}

func (c *Container) clearFactoryObject(name string) {
	c.factoryMu.Lock()
	delete(c.factoryObjects, name)
	c.factoryMu.Unlock()
}

func (c *Container) componentNamesForType(typ reflect.Type, includeNonSingletons, allowEager bool, res *resolution) []string {
	var out []string
	for _, name := range c.ComponentNames() {
		def, hasDef := c.definition(name)
		if hasDef && !includeNonSingletons && !def.IsSingleton() {
			continue
		}
		if matched, ok := c.matchName(name, def, typ, allowEager, res); ok {
			out = append(out, matched)
		}
	}
	return out
}

// matchName 判断组件是否匹配类型；工厂组件优先匹配产品类型，否则以 "&name" 匹配工厂本身
func (c *Container) matchName(name string, def *Definition, typ reflect.Type, allowEager bool, res *resolution) (string, bool) {
	if obj, ok, _ := c.registry.getSingleton(name, false); ok {
		if fc, isFactory := obj.(FactoryComponent); isFactory {
			if pt := fc.ObjectType(); pt != nil && assignableTo(pt, typ) {
				return name, true
			}
			if assignableTo(reflect.TypeOf(obj), typ) {
				return FactoryPrefix + name, true
			}
			return "", false
		}
		return name, assignableTo(reflect.TypeOf(obj), typ)
	}
	if def == nil {
		return "", false
	}

	predicted := c.predictType(name, def)
	if predicted == nil {
		return "", false
	}
	if predicted.Implements(factoryComponentType) {
		if def.ObjectType != nil {
			if assignableTo(def.ObjectType, typ) {
				return name, true
			}
		} else if allowEager && def.IsSingleton() {
			raw, _, err := c.getInstance(name, nil, res)
			if fc, ok := raw.(FactoryComponent); err == nil && ok && fc.ObjectType() != nil && assignableTo(fc.ObjectType(), typ) {
				return name, true
			}
		}
		if assignableTo(predicted, typ) {
			return FactoryPrefix + name, true
		}
		return "", false
	}
	return name, assignableTo(predicted, typ)
}

func assignableTo(t, target reflect.Type) bool {
	if t == nil || target == nil {
		return false
	}
	return t.AssignableTo(target)
}

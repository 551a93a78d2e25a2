package di

import (
	"fmt"
	"reflect"
)

// TypeOf 返回 T 的 reflect.Type，T 可以是接口
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// DefaultName 由类型推导默认组件名："*app.UserService" -> "userService"
func DefaultName(typ reflect.Type) string {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Name() == "" {
		return typ.String()
	}
	return decapitalize(typ.Name())
}

// Register 注册类型 T 的组件。name 为空时使用 DefaultName。
// 构造函数带参数且未声明参数值时，自动启用构造函数装配
func Register[T any](c *Container, name string, opts ...Option) error {
	typ := TypeOf[T]()
	def := NewDefinition(typ, opts...)
	if def.Autowire == AutowireNo && !def.HasConstructorArgs() {
		for _, ctor := range def.Constructors {
			if ft := reflect.TypeOf(ctor); ft != nil && ft.Kind() == reflect.Func && ft.NumIn() > 0 {
				def.Autowire = AutowireConstructor
				break
			}
		}
	}
	if name == "" {
		name = DefaultName(typ)
	}
	return c.Register(name, def)
}

// MustRegister 注册失败时 panic
func MustRegister[T any](c *Container, name string, opts ...Option) {
	if err := Register[T](c, name, opts...); err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", TypeOf[T](), err))
	}
}

// RegisterAuto 智能注册组件，返回组件名。
//
// 支持的输入 target 类型:
// 1. func(...) (T, error?) -> 构造函数，类型为第一个返回值，有参数时按构造函数装配。
// 2. *Struct               -> 预先创建的实例，仍然经过属性填充与初始化；
//   - 如果结构体包含带有 `di` 标签的字段，会自动启用按类型装配。
//
// 3. reflect.Type          -> 由容器实例化。
func RegisterAuto(c *Container, name string, target any, opts ...Option) (string, error) {
	var def *Definition

	switch t := target.(type) {
	case reflect.Type:
		def = NewDefinition(t)
	default:
		v := reflect.ValueOf(target)
		switch v.Kind() {
		case reflect.Func:
			if err := validateFunc(target); err != nil {
				return "", definitionError(name, "%v", err)
			}
			def = NewDefinition(v.Type().Out(0), WithConstructor(target))
			if v.Type().NumIn() > 0 {
				def.Autowire = AutowireConstructor
			}
		case reflect.Pointer:
			typ := v.Type()
			ctor := reflect.MakeFunc(reflect.FuncOf(nil, []reflect.Type{typ}, false), func([]reflect.Value) []reflect.Value {
				return []reflect.Value{v}
			})
			def = NewDefinition(typ, WithConstructor(ctor.Interface()))
			if typ.Elem().Kind() == reflect.Struct && hasDITag(typ.Elem()) {
				def.Autowire = AutowireByType
			}
		default:
			return "", fmt.Errorf("di: unsupported auto-registration target type: %T", target)
		}
	}

	for _, opt := range opts {
		opt(def)
	}
	if name == "" {
		typ, _ := c.resolveTargetType(name, def)
		if typ == nil {
			return "", definitionError(name, "cannot derive a component name")
		}
		name = DefaultName(typ)
	}
	if err := c.Register(name, def); err != nil {
		return "", err
	}
	return name, nil
}

func hasDITag(st reflect.Type) bool {
	for i := 0; i < st.NumField(); i++ {
		if _, ok := st.Field(i).Tag.Lookup("di"); ok {
			return true
		}
	}
	return false
}

// Resolve 按类型获取唯一组件
func Resolve[T any](c *Container) (T, error) {
	var zero T
	typ := TypeOf[T]()
	val, err := c.GetComponentOfType(typ)
	if err != nil {
		return zero, err
	}
	if v, ok := val.(T); ok {
		return v, nil
	}
	return zero, typeMismatchError("", typ, val)
}

// ResolveNamed 按名称获取组件并转换为 T
func ResolveNamed[T any](c *Container, name string) (T, error) {
	var zero T
	typ := TypeOf[T]()
	val, err := c.GetComponentAs(name, typ)
	if err != nil {
		return zero, err
	}
	if v, ok := val.(T); ok {
		return v, nil
	}
	return zero, typeMismatchError(name, typ, val)
}

// ResolveAll 按类型获取全部组件，遵循 Ordered 排序
func ResolveAll[T any](c *Container) ([]T, error) {
	desc := &DependencyDescriptor{Type: reflect.TypeOf([]T(nil)), Eager: true}
	res, done := c.currentResolution()
	defer done()
	val, err := c.resolveDependency(desc, "", nil, nil, res)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	return val.([]T), nil
}

// MustResolve 获取失败时 panic
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

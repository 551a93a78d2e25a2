package di

import "reflect"

// Option 组件定义选项
type Option func(*Definition)

// WithScope 设置作用域
func WithScope(scope string) Option {
	return func(d *Definition) {
		d.Scope = scope
	}
}

// WithSingleton 设置为单例（默认）
func WithSingleton() Option {
	return WithScope(ScopeSingleton)
}

// WithPrototype 设置为原型，每次请求都创建新实例
func WithPrototype() Option {
	return WithScope(ScopePrototype)
}

// WithAutowire 设置自动装配模式
func WithAutowire(mode AutowireMode) Option {
	return func(d *Definition) {
		d.Autowire = mode
	}
}

// WithConstructor 添加候选构造函数
func WithConstructor(ctors ...any) Option {
	return func(d *Definition) {
		d.Constructors = append(d.Constructors, ctors...)
	}
}

// WithFactoryFunc 使用静态工厂方法创建实例，funcs 为同名的候选重载
func WithFactoryFunc(method string, funcs ...any) Option {
	return func(d *Definition) {
		d.FactoryMethod = method
		d.FactoryFuncs = append(d.FactoryFuncs, funcs...)
	}
}

// WithFactoryMethod 使用另一个组件实例上的方法创建实例
func WithFactoryMethod(component, method string) Option {
	return func(d *Definition) {
		d.FactoryComponent = component
		d.FactoryMethod = method
	}
}

// WithProperty 声明属性值
func WithProperty(name string, value any) Option {
	return func(d *Definition) {
		if d.Properties == nil {
			d.Properties = NewPropertyValues()
		}
		d.Properties.Add(name, value)
	}
}

// WithRef 声明属性引用另一个组件
func WithRef(property, component string) Option {
	return WithProperty(property, Ref{Name: component})
}

// WithArg 添加通用构造参数
func WithArg(value any) Option {
	return func(d *Definition) {
		if d.ConstructorArgs == nil {
			d.ConstructorArgs = NewConstructorArgs()
		}
		d.ConstructorArgs.AddGeneric(&ValueHolder{Value: value})
	}
}

// WithTypedArg 添加带类型提示的通用构造参数
func WithTypedArg(value any, typ reflect.Type) Option {
	return func(d *Definition) {
		if d.ConstructorArgs == nil {
			d.ConstructorArgs = NewConstructorArgs()
		}
		d.ConstructorArgs.AddGeneric(&ValueHolder{Value: value, Type: typ})
	}
}

// WithIndexedArg 添加按位置的构造参数
func WithIndexedArg(index int, value any) Option {
	return func(d *Definition) {
		if d.ConstructorArgs == nil {
			d.ConstructorArgs = NewConstructorArgs()
		}
		d.ConstructorArgs.AddIndexed(index, &ValueHolder{Value: value})
	}
}

// WithInitMethod 设置自定义初始化方法
func WithInitMethod(method string) Option {
	return func(d *Definition) {
		d.InitMethod = method
	}
}

// WithDestroyMethod 设置自定义销毁方法
func WithDestroyMethod(method string) Option {
	return func(d *Definition) {
		d.DestroyMethod = method
	}
}

// WithEnforceInitMethod 初始化方法不存在时是否报错
func WithEnforceInitMethod(enforce bool) Option {
	return func(d *Definition) {
		d.EnforceInitMethod = enforce
	}
}

// WithDependencyCheck 设置依赖检查级别
func WithDependencyCheck(check DependencyCheck) Option {
	return func(d *Definition) {
		d.DependencyCheck = check
	}
}

// WithPrimary 按类型存在多个候选时优先选择
func WithPrimary() Option {
	return func(d *Definition) {
		d.Primary = true
	}
}

// WithSynthetic 标记为合成定义，跳过初始化前后的后处理
func WithSynthetic() Option {
	return func(d *Definition) {
		d.Synthetic = true
	}
}

// WithDependsOn 声明需要先初始化的组件
func WithDependsOn(names ...string) Option {
	return func(d *Definition) {
		d.DependsOn = append(d.DependsOn, names...)
	}
}

// WithLazy 不参与单例预实例化
func WithLazy() Option {
	return func(d *Definition) {
		d.Lazy = true
	}
}

// WithAutowireCandidate 是否可作为其他组件的自动装配候选
func WithAutowireCandidate(candidate bool) Option {
	return func(d *Definition) {
		d.AutowireCandidate = candidate
	}
}

// WithObjectType 声明 FactoryComponent 的产出类型
func WithObjectType(typ reflect.Type) Option {
	return func(d *Definition) {
		d.ObjectType = typ
	}
}

// WithTypeName 通过类型注册表延迟解析目标类型
func WithTypeName(name string) Option {
	return func(d *Definition) {
		d.TypeName = name
	}
}

// WithNonPublicAccess 是否允许实例化未导出的类型
func WithNonPublicAccess(allowed bool) Option {
	return func(d *Definition) {
		d.NonPublicAccessAllowed = allowed
	}
}

// WithDescription 描述信息
func WithDescription(desc string) Option {
	return func(d *Definition) {
		d.Description = desc
	}
}

// WithFactoryComponent 设置提供工厂方法的组件，方法名由 WithFactoryMethod 或 FactoryMethod 指定
func WithFactoryComponent(component string) Option {
	return func(d *Definition) {
		d.FactoryComponent = component
	}
}

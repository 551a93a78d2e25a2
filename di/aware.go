package di

import "reflect"

// Initializing 属性填充完成后回调
type Initializing interface {
	AfterPropertiesSet() error
}

// Disposable 单例销毁时回调
type Disposable interface {
	Destroy() error
}

// NameAware 注入组件名
type NameAware interface {
	SetComponentName(name string)
}

// TypeRegistryAware 注入容器的类型注册表
type TypeRegistryAware interface {
	SetTypeRegistry(types *TypeRegistry)
}

// ContainerAware 注入所属容器
type ContainerAware interface {
	SetContainer(c *Container)
}

// FactoryComponent 自身是工厂的组件；按名称获取得到产品，"&name" 得到工厂本身
type FactoryComponent interface {
	Object() (any, error)
	ObjectType() reflect.Type
	IsSingleton() bool
}

// SmartFactoryComponent 可在预实例化阶段急切创建产品
type SmartFactoryComponent interface {
	FactoryComponent
	EagerInit() bool
}

// FactoryPrefix 获取工厂组件本身时的名称前缀
const FactoryPrefix = "&"

var (
	nameAwareType         = reflect.TypeOf((*NameAware)(nil)).Elem()
	typeRegistryAwareType = reflect.TypeOf((*TypeRegistryAware)(nil)).Elem()
	containerAwareType    = reflect.TypeOf((*ContainerAware)(nil)).Elem()
	factoryComponentType  = reflect.TypeOf((*FactoryComponent)(nil)).Elem()
)

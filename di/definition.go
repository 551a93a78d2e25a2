package di

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// 内置作用域
const (
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
)

// AutowireMode 自动装配模式
type AutowireMode int

const (
	AutowireNo AutowireMode = iota
	AutowireByName
	AutowireByType
	AutowireConstructor
)

func (m AutowireMode) String() string {
	switch m {
	case AutowireNo:
		return "no"
	case AutowireByName:
		return "byName"
	case AutowireByType:
		return "byType"
	case AutowireConstructor:
		return "constructor"
	default:
		return fmt.Sprintf("AutowireMode(%d)", int(m))
	}
}

// DependencyCheck 依赖完整性检查级别
type DependencyCheck int

const (
	CheckNone DependencyCheck = iota
	CheckObjects
	CheckSimple
	CheckAll
)

// Ref 对另一个命名组件的运行时引用
type Ref struct {
	Name string
	// Parent 为 true 时只在父容器中查找
	Parent bool
}

// List 声明的集合值，元素可以是字面量、Ref 或内部定义
type List []any

// Map 声明的映射值
type Map map[string]any

// TypedString 带目标类型的字符串字面量
type TypedString struct {
	Value string
	Type  reflect.Type
}

// ValueHolder 构造参数值
type ValueHolder struct {
	Value any
	// Type 可选的类型提示，用于按类型匹配通用参数
	Type reflect.Type
	// Name 可选的参数名（仅用于诊断）
	Name string
}

// ConstructorArgs 声明的构造参数（按索引或通用）
type ConstructorArgs struct {
	Indexed map[int]*ValueHolder
	Generic []*ValueHolder
}

// NewConstructorArgs 创建空的构造参数集合
func NewConstructorArgs() *ConstructorArgs {
	return &ConstructorArgs{Indexed: make(map[int]*ValueHolder)}
}

// AddIndexed 添加按索引的参数
func (a *ConstructorArgs) AddIndexed(index int, holder *ValueHolder) {
	if a.Indexed == nil {
		a.Indexed = make(map[int]*ValueHolder)
	}
	a.Indexed[index] = holder
}

// AddGeneric 添加通用参数
func (a *ConstructorArgs) AddGeneric(holder *ValueHolder) {
	a.Generic = append(a.Generic, holder)
}

// Count 参数总数
func (a *ConstructorArgs) Count() int {
	if a == nil {
		return 0
	}
	return len(a.Indexed) + len(a.Generic)
}

// IsEmpty 是否没有声明参数
func (a *ConstructorArgs) IsEmpty() bool {
	return a.Count() == 0
}

// minArgs 至少需要的参数个数：最大索引 + 1 与总数中的较大者
func (a *ConstructorArgs) minArgs() int {
	if a == nil {
		return 0
	}
	n := a.Count()
	for idx := range a.Indexed {
		if idx+1 > n {
			n = idx + 1
		}
	}
	return n
}

// indexes 按顺序返回已声明的索引
func (a *ConstructorArgs) indexes() []int {
	keys := make([]int, 0, len(a.Indexed))
	for k := range a.Indexed {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// PropertyValue 单个属性赋值
type PropertyValue struct {
	Name  string
	Value any

	mu             sync.Mutex
	converted      bool
	convertedValue any
}

// NewPropertyValue 创建属性赋值
func NewPropertyValue(name string, value any) *PropertyValue {
	return &PropertyValue{Name: name, Value: value}
}

// Converted 返回缓存的转换结果
func (pv *PropertyValue) Converted() (any, bool) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.convertedValue, pv.converted
}

func (pv *PropertyValue) setConverted(value any) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	pv.converted = true
	pv.convertedValue = value
}

// PropertyValues 有序的属性赋值列表
type PropertyValues struct {
	mu        sync.RWMutex
	list      []*PropertyValue
	converted bool
}

// NewPropertyValues 创建属性赋值列表
func NewPropertyValues(values ...*PropertyValue) *PropertyValues {
	pvs := &PropertyValues{}
	for _, pv := range values {
		pvs.AddValue(pv)
	}
	return pvs
}

// Add 添加或替换同名属性
func (p *PropertyValues) Add(name string, value any) *PropertyValues {
	return p.AddValue(NewPropertyValue(name, value))
}

// AddValue 添加或替换同名属性
func (p *PropertyValues) AddValue(pv *PropertyValue) *PropertyValues {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.list {
		if existing.Name == pv.Name {
			p.list[i] = pv
			p.converted = false
			return p
		}
	}
	p.list = append(p.list, pv)
	p.converted = false
	return p
}

// Get 按名称查找
func (p *PropertyValues) Get(name string) *PropertyValue {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pv := range p.list {
		if pv.Name == name {
			return pv
		}
	}
	return nil
}

// Contains 是否包含某属性
func (p *PropertyValues) Contains(name string) bool {
	return p.Get(name) != nil
}

// Remove 删除某属性
func (p *PropertyValues) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pv := range p.list {
		if pv.Name == name {
			p.list = append(p.list[:i], p.list[i+1:]...)
			return
		}
	}
}

// Len 属性个数
func (p *PropertyValues) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.list)
}

// Values 返回属性列表的副本
func (p *PropertyValues) Values() []*PropertyValue {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*PropertyValue, len(p.list))
	copy(out, p.list)
	return out
}

// IsConverted 所有值是否都已转换并缓存
func (p *PropertyValues) IsConverted() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.converted
}

func (p *PropertyValues) markConverted() {
	p.mu.Lock()
	p.converted = true
	p.mu.Unlock()
}

// Clone 浅拷贝：共享 *PropertyValue，以便转换缓存回写到原定义
func (p *PropertyValues) Clone() *PropertyValues {
	clone := &PropertyValues{}
	if p == nil {
		return clone
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	clone.list = make([]*PropertyValue, len(p.list))
	copy(clone.list, p.list)
	return clone
}

// Definition 组件定义
type Definition struct {
	// Type 目标类型；为空时通过 TypeName 在 TypeRegistry 中延迟解析
	Type     reflect.Type
	TypeName string

	Scope           string
	Autowire        AutowireMode
	DependencyCheck DependencyCheck

	ConstructorArgs *ConstructorArgs
	Properties      *PropertyValues

	// Constructors 候选构造函数（func(...) T 或 func(...) (T, error)）
	Constructors []any

	// FactoryMethod 工厂方法名：静态候选在 FactoryFuncs 中，
	// 或者是 FactoryComponent 组件实例上的方法
	FactoryMethod    string
	FactoryFuncs     []any
	FactoryComponent string

	InitMethod           string
	DestroyMethod        string
	EnforceInitMethod    bool
	EnforceDestroyMethod bool

	Synthetic              bool
	Primary                bool
	AutowireCandidate      bool
	Lazy                   bool
	DependsOn              []string
	NonPublicAccessAllowed bool

	// ObjectType FactoryComponent 产出的类型声明，允许不实例化即可按类型匹配
	ObjectType  reflect.Type
	Description string

	// 以下为解析缓存，由 mu 保护
	mu                       sync.Mutex
	resolvedType             reflect.Type
	resolvedConstructor      reflect.Value
	resolvedIsFactory        bool
	constructorArgsResolved  bool
	externallyManagedInit    map[string]struct{}
	externallyManagedDestroy map[string]struct{}

	postProcessingMu sync.Mutex
	postProcessed    bool

	beforeInstantiationMu       sync.Mutex
	beforeInstantiationResolved *bool
}

// NewDefinition 创建组件定义
func NewDefinition(typ reflect.Type, opts ...Option) *Definition {
	def := &Definition{
		Type:                   typ,
		Scope:                  ScopeSingleton,
		EnforceInitMethod:      true,
		EnforceDestroyMethod:   true,
		AutowireCandidate:      true,
		NonPublicAccessAllowed: true,
		ConstructorArgs:        NewConstructorArgs(),
		Properties:             NewPropertyValues(),
	}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// IsSingleton 是否单例
func (d *Definition) IsSingleton() bool {
	return d.Scope == "" || d.Scope == ScopeSingleton
}

// IsPrototype 是否原型
func (d *Definition) IsPrototype() bool {
	return d.Scope == ScopePrototype
}

// IsFactoryMethod 是否工厂方法定义
func (d *Definition) IsFactoryMethod() bool {
	return d.FactoryMethod != ""
}

// HasConstructorArgs 是否声明了构造参数
func (d *Definition) HasConstructorArgs() bool {
	return !d.ConstructorArgs.IsEmpty()
}

// RegisterExternallyManagedInitMethod 记录由外部（如后处理器）负责调用的初始化方法
func (d *Definition) RegisterExternallyManagedInitMethod(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.externallyManagedInit == nil {
		d.externallyManagedInit = make(map[string]struct{})
	}
	d.externallyManagedInit[method] = struct{}{}
}

func (d *Definition) isExternallyManagedInitMethod(method string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.externallyManagedInit[method]
	return ok
}

// RegisterExternallyManagedDestroyMethod 记录由外部负责调用的销毁方法
func (d *Definition) RegisterExternallyManagedDestroyMethod(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.externallyManagedDestroy == nil {
		d.externallyManagedDestroy = make(map[string]struct{})
	}
	d.externallyManagedDestroy[method] = struct{}{}
}

func (d *Definition) isExternallyManagedDestroyMethod(method string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.externallyManagedDestroy[method]
	return ok
}

// targetType 声明的类型或已解析的类型名
func (d *Definition) targetType() reflect.Type {
	if d.Type != nil {
		return d.Type
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolvedType
}

func (d *Definition) setTargetType(typ reflect.Type) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolvedType = typ
}

// cachedConstructor 返回已解析的构造函数及是否需要重新自动装配参数
func (d *Definition) cachedConstructor() (reflect.Value, bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolvedConstructor, d.resolvedIsFactory, d.constructorArgsResolved
}

func (d *Definition) cacheConstructor(fn reflect.Value, isFactory, autowire bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolvedConstructor.IsValid() {
		return
	}
	d.resolvedConstructor = fn
	d.resolvedIsFactory = isFactory
	d.constructorArgsResolved = autowire
}

// validate 注册时的结构校验
func (d *Definition) validate(name string) error {
	if d.Type == nil && d.TypeName == "" && !d.IsFactoryMethod() && len(d.Constructors) == 0 {
		return definitionError(name, "definition declares neither a type, a type name, constructors nor a factory method")
	}
	if d.FactoryComponent != "" && d.FactoryComponent == name {
		return definitionError(name, "factory component reference points back to the same definition")
	}
	if d.FactoryComponent != "" && d.FactoryMethod == "" {
		return definitionError(name, "factory component %q declared without a factory method", d.FactoryComponent)
	}
	if d.IsFactoryMethod() && d.FactoryComponent == "" && len(d.FactoryFuncs) == 0 {
		return definitionError(name, "factory method %q has no static candidates", d.FactoryMethod)
	}
	for _, fn := range append(append([]any{}, d.Constructors...), d.FactoryFuncs...) {
		if err := validateFunc(fn); err != nil {
			return definitionError(name, "%v", err)
		}
	}
	if d.Scope == "" {
		d.Scope = ScopeSingleton
	}
	if d.ConstructorArgs == nil {
		d.ConstructorArgs = NewConstructorArgs()
	}
	if d.Properties == nil {
		d.Properties = NewPropertyValues()
	}
	return nil
}

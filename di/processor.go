package di

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
)

const (
	HighestPrecedence = math.MinInt32
	LowestPrecedence  = math.MaxInt32
)

// Ordered 数值优先级，越小越靠前
type Ordered interface {
	Order() int
}

// PriorityOrdered 排在所有 Ordered 之前；同时抑制按类型自动装配时的急切初始化
type PriorityOrdered interface {
	Ordered
	PriorityOrdered()
}

// DefinitionMerger 定义合并阶段：每个定义只调用一次
type DefinitionMerger interface {
	PostProcessMergedDefinition(def *Definition, typ reflect.Type, name string) error
}

// InstantiationInterceptor 实例化前短路：返回非 nil 则跳过构造、填充与初始化
type InstantiationInterceptor interface {
	PostProcessBeforeInstantiation(typ reflect.Type, name string) (any, error)
}

// InstantiationGate 实例化后闸门：返回 false 则跳过属性填充
type InstantiationGate interface {
	PostProcessAfterInstantiation(instance any, name string) (bool, error)
}

// PropertyValuesProcessor 属性解析完成后改写；返回 nil 则跳过属性应用
type PropertyValuesProcessor interface {
	PostProcessPropertyValues(pvs *PropertyValues, descriptors []PropertyDescriptor, instance any, name string) (*PropertyValues, error)
}

// BeforeInitializer 初始化方法执行前
type BeforeInitializer interface {
	PostProcessBeforeInitialization(instance any, name string) (any, error)
}

// AfterInitializer 初始化方法执行后，代理通常在这里替换实例
type AfterInitializer interface {
	PostProcessAfterInitialization(instance any, name string) (any, error)
}

// ConstructorDeterminer 提供候选构造函数
type ConstructorDeterminer interface {
	DetermineCandidateConstructors(typ reflect.Type, name string) ([]any, error)
}

// EarlyReferencer 为循环引用暴露的早期引用做替换
type EarlyReferencer interface {
	EarlyReference(instance any, name string) (any, error)
}

// TypePredictor 预测组件最终类型
type TypePredictor interface {
	PredictType(typ reflect.Type, name string) reflect.Type
}

// DestructionAware 销毁前回调
type DestructionAware interface {
	PostProcessBeforeDestruction(instance any, name string) error
}

// IsPostProcessor 是否至少实现了一个后处理能力
func IsPostProcessor(v any) bool {
	switch v.(type) {
	case DefinitionMerger, InstantiationInterceptor, InstantiationGate, PropertyValuesProcessor,
		BeforeInitializer, AfterInitializer, ConstructorDeterminer, EarlyReferencer,
		TypePredictor, DestructionAware:
		return true
	}
	return false
}

var postProcessorTypes = []reflect.Type{
	TypeOf[DefinitionMerger](), TypeOf[InstantiationInterceptor](), TypeOf[InstantiationGate](),
	TypeOf[PropertyValuesProcessor](), TypeOf[BeforeInitializer](), TypeOf[AfterInitializer](),
	TypeOf[ConstructorDeterminer](), TypeOf[EarlyReferencer](), TypeOf[TypePredictor](),
	TypeOf[DestructionAware](),
}

// IsPostProcessorType 类型是否实现了任一后处理能力，用于在实例化之前识别后处理组件
func IsPostProcessorType(typ reflect.Type) bool {
	if typ == nil {
		return false
	}
	for _, iface := range postProcessorTypes {
		if typ.Implements(iface) {
			return true
		}
	}
	return false
}

// orderKey 排序分组：PriorityOrdered=0, Ordered=1, 其他=2
func orderKey(v any) (int, int) {
	switch o := v.(type) {
	case PriorityOrdered:
		return 0, o.Order()
	case Ordered:
		return 1, o.Order()
	default:
		return 2, LowestPrecedence
	}
}

// sortByOrder 稳定排序，相同优先级保持注册顺序
func sortByOrder[T any](items []T, key func(T) any) {
	sort.SliceStable(items, func(i, j int) bool {
		gi, oi := orderKey(key(items[i]))
		gj, oj := orderKey(key(items[j]))
		if gi != gj {
			return gi < gj
		}
		return oi < oj
	})
}

// SortOrdered 按 PriorityOrdered、Ordered、其余的顺序稳定排序
func SortOrdered[T any](items []T) {
	sortByOrder(items, func(v T) any { return v })
}

// pipeline 有序的后处理器列表；注册与迭代互斥，迭代使用快照
type pipeline struct {
	mu         sync.RWMutex
	processors []any
}

func (p *pipeline) add(processor any) error {
	if processor == nil || !IsPostProcessor(processor) {
		return fmt.Errorf("di: %T does not implement any post-processor capability", processor)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// 重复注册时移到末尾
	for i, existing := range p.processors {
		if sameInstance(existing, processor) {
			p.processors = append(p.processors[:i], p.processors[i+1:]...)
			break
		}
	}
	p.processors = append(p.processors, processor)
	sortByOrder(p.processors, func(v any) any { return v })
	return nil
}

func (p *pipeline) snapshot() []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]any, len(p.processors))
	copy(out, p.processors)
	return out
}

func (p *pipeline) count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.processors)
}

func (p *pipeline) has(match func(any) bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pp := range p.processors {
		if match(pp) {
			return true
		}
	}
	return false
}

func (p *pipeline) hasInstantiationAware() bool {
	return p.has(func(v any) bool {
		switch v.(type) {
		case InstantiationInterceptor, InstantiationGate, PropertyValuesProcessor:
			return true
		}
		return false
	})
}

func (p *pipeline) hasDestructionAware() bool {
	return p.has(func(v any) bool {
		_, ok := v.(DestructionAware)
		return ok
	})
}

func (p *pipeline) applyMerge(def *Definition, typ reflect.Type, name string) error {
	for _, pp := range p.snapshot() {
		if m, ok := pp.(DefinitionMerger); ok {
			if err := m.PostProcessMergedDefinition(def, typ, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyBeforeInstantiation 第一个非 nil 结果胜出
func (p *pipeline) applyBeforeInstantiation(typ reflect.Type, name string) (any, error) {
	for _, pp := range p.snapshot() {
		if ii, ok := pp.(InstantiationInterceptor); ok {
			result, err := ii.PostProcessBeforeInstantiation(typ, name)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
		}
	}
	return nil, nil
}

func (p *pipeline) applyAfterInstantiation(instance any, name string) (bool, error) {
	for _, pp := range p.snapshot() {
		if g, ok := pp.(InstantiationGate); ok {
			cont, err := g.PostProcessAfterInstantiation(instance, name)
			if err != nil {
				return false, err
			}
			if !cont {
				return false, nil
			}
		}
	}
	return true, nil
}

func (p *pipeline) applyPropertyValues(pvs *PropertyValues, pds []PropertyDescriptor, instance any, name string) (*PropertyValues, error) {
	for _, pp := range p.snapshot() {
		if pvp, ok := pp.(PropertyValuesProcessor); ok {
			var err error
			pvs, err = pvp.PostProcessPropertyValues(pvs, pds, instance, name)
			if err != nil {
				return nil, err
			}
			if pvs == nil {
				return nil, nil
			}
		}
	}
	return pvs, nil
}

// fold 折叠执行某一阶段；返回 nil 的处理器结束本阶段并保留当前结果
func fold[T any](p *pipeline, instance any, name string, call func(T, any, string) (any, error)) (any, error) {
	result := instance
	for _, pp := range p.snapshot() {
		h, ok := pp.(T)
		if !ok {
			continue
		}
		current, err := call(h, result, name)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return result, nil
		}
		result = current
	}
	return result, nil
}

func (p *pipeline) applyBeforeInitialization(instance any, name string) (any, error) {
	return fold(p, instance, name, BeforeInitializer.PostProcessBeforeInitialization)
}

func (p *pipeline) applyAfterInitialization(instance any, name string) (any, error) {
	return fold(p, instance, name, AfterInitializer.PostProcessAfterInitialization)
}

func (p *pipeline) applyEarlyReference(instance any, name string) (any, error) {
	return fold(p, instance, name, EarlyReferencer.EarlyReference)
}

func (p *pipeline) determineConstructors(typ reflect.Type, name string) ([]any, error) {
	for _, pp := range p.snapshot() {
		if cd, ok := pp.(ConstructorDeterminer); ok {
			ctors, err := cd.DetermineCandidateConstructors(typ, name)
			if err != nil {
				return nil, err
			}
			if len(ctors) > 0 {
				return ctors, nil
			}
		}
	}
	return nil, nil
}

func (p *pipeline) predictType(typ reflect.Type, name string) reflect.Type {
	for _, pp := range p.snapshot() {
		if tp, ok := pp.(TypePredictor); ok {
			if predicted := tp.PredictType(typ, name); predicted != nil {
				return predicted
			}
		}
	}
	return typ
}

func (p *pipeline) destructionAware() []DestructionAware {
	var out []DestructionAware
	for _, pp := range p.snapshot() {
		if da, ok := pp.(DestructionAware); ok {
			out = append(out, da)
		}
	}
	return out
}

// sameInstance 同一对象判定；不可比较的值视为不同
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

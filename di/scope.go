package di

import (
	"sync"
	"sync/atomic"
)

// ObjectFactory 由容器提供给自定义作用域的创建函数
type ObjectFactory func() (any, error)

// Scope 自定义作用域：决定实例的存放位置与生命周期
type Scope interface {
	Get(name string, factory ObjectFactory) (any, error)
	// Remove 移除并返回实例，不存在时返回 nil
	Remove(name string) any
	// RegisterDestructionCallback 作用域结束或实例被移除时调用
	RegisterDestructionCallback(name string, callback func())
}

type scopeEntry struct {
	val atomic.Pointer[any] // 尚未创建时为 nil
	mu  sync.Mutex          // 用于创建此实例的锁
}

// SimpleScope 基于 map 的作用域，典型用法是一个请求或一个会话对应一个实例
type SimpleScope struct {
	mu        sync.Mutex
	entries   map[string]*scopeEntry
	callbacks map[string][]func()
}

// NewSimpleScope 创建作用域
func NewSimpleScope() *SimpleScope {
	return &SimpleScope{
		entries:   make(map[string]*scopeEntry),
		callbacks: make(map[string][]func()),
	}
}

func (s *SimpleScope) entry(name string) *scopeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		e = &scopeEntry{}
		s.entries[name] = e
	}
	return e
}

func (s *SimpleScope) Get(name string, factory ObjectFactory) (any, error) {
	e := s.entry(name)

	// 快速路径
	if v := e.val.Load(); v != nil {
		return *v, nil
	}

	// 慢速路径：带锁创建
	e.mu.Lock()
	defer e.mu.Unlock()

	// 双重检查
	if v := e.val.Load(); v != nil {
		return *v, nil
	}

	instance, err := factory()
	if err != nil {
		return nil, err
	}
	e.val.Store(&instance)
	return instance, nil
}

func (s *SimpleScope) Remove(name string) any {
	s.mu.Lock()
	e, ok := s.entries[name]
	delete(s.entries, name)
	callbacks := s.callbacks[name]
	delete(s.callbacks, name)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	v := e.val.Load()
	if v == nil {
		return nil
	}
	for _, cb := range callbacks {
		cb()
	}
	return *v
}

func (s *SimpleScope) RegisterDestructionCallback(name string, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[name] = append(s.callbacks[name], callback)
}

// Dispose 结束作用域：执行所有销毁回调并清空实例
func (s *SimpleScope) Dispose() {
	s.mu.Lock()
	callbacks := s.callbacks
	s.entries = make(map[string]*scopeEntry)
	s.callbacks = make(map[string][]func())
	s.mu.Unlock()

	for _, cbs := range callbacks {
		for _, cb := range cbs {
			cb()
		}
	}
}

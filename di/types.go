package di

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// TypeRegistry 类型名到 reflect.Type 的映射，用于按名称延迟解析定义的目标类型
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewTypeRegistry 创建类型注册表
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]reflect.Type)}
}

// Register 以指定名称注册类型
func (r *TypeRegistry) Register(name string, typ reflect.Type) error {
	if typ == nil {
		return fmt.Errorf("di: cannot register nil type under %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[name]; ok && existing != typ {
		return fmt.Errorf("di: type name %q already registered for %v", name, existing)
	}
	r.types[name] = typ
	return nil
}

// RegisterType 以 typ.String() 作为名称注册
func (r *TypeRegistry) RegisterType(typ reflect.Type) error {
	if typ == nil {
		return fmt.Errorf("di: cannot register nil type")
	}
	return r.Register(typ.String(), typ)
}

// Resolve 按名称查找类型
func (r *TypeRegistry) Resolve(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	typ, ok := r.types[name]
	return typ, ok
}

// Names 已注册的类型名（排序）
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

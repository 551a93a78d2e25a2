package di

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// PropertyDescriptor 可写属性槽
type PropertyDescriptor struct {
	Name string
	Type reflect.Type
	// Setter 基于 SetXxx 方法的属性名；字段属性为空
	Setter string

	goName     string
	fieldIndex []int
}

// IsField 是否直接写字段
func (pd PropertyDescriptor) IsField() bool {
	return pd.Setter == ""
}

// matches 属性名，或原始的 Go 字段名 / setter 后缀（"Greeting"、"MaxOpen"）
func (pd PropertyDescriptor) matches(name string) bool {
	return pd.Name == name || (pd.goName != "" && pd.goName == name)
}

// descriptorCache 按类型缓存属性描述（容器级）
type descriptorCache struct {
	mu    sync.RWMutex
	cache map[reflect.Type][]PropertyDescriptor
}

func newDescriptorCache() *descriptorCache {
	return &descriptorCache{cache: make(map[reflect.Type][]PropertyDescriptor)}
}

func (c *descriptorCache) get(typ reflect.Type) []PropertyDescriptor {
	c.mu.RLock()
	pds, ok := c.cache[typ]
	c.mu.RUnlock()
	if ok {
		return pds
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// 双重检查
	if pds, ok := c.cache[typ]; ok {
		return pds
	}
	pds = discoverProperties(typ)
	c.cache[typ] = pds
	return pds
}

// discoverProperties 导出的可写字段 + 单参数 SetXxx 方法；同名时 setter 优先
func discoverProperties(typ reflect.Type) []PropertyDescriptor {
	if typ == nil || typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil
	}

	var pds []PropertyDescriptor
	index := make(map[string]int)

	st := typ.Elem()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := decapitalize(f.Name)
		if tag, ok := f.Tag.Lookup("di"); ok {
			tagName := strings.TrimSpace(strings.Split(tag, ",")[0])
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		index[name] = len(pds)
		pds = append(pds, PropertyDescriptor{Name: name, Type: f.Type, goName: f.Name, fieldIndex: f.Index})
	}

	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if len(m.Name) <= 3 || !strings.HasPrefix(m.Name, "Set") {
			continue
		}
		mt := m.Type
		if mt.NumIn() != 2 {
			continue
		}
		if mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
			continue
		}
		name := decapitalize(m.Name[3:])
		pd := PropertyDescriptor{Name: name, Type: mt.In(1), Setter: m.Name, goName: m.Name[3:]}
		if i, ok := index[name]; ok {
			pds[i] = pd
			continue
		}
		index[name] = len(pds)
		pds = append(pds, pd)
	}
	return pds
}

// decapitalize "Repo" -> "repo"，"URL" 保持不变
func decapitalize(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	if size < len(s) {
		second, _ := utf8.DecodeRuneInString(s[size:])
		if unicode.IsUpper(first) && unicode.IsUpper(second) {
			return s
		}
	}
	return string(unicode.ToLower(first)) + s[size:]
}

// InstanceWrapper 实例句柄，按名称设置属性并做类型转换
type InstanceWrapper struct {
	instance    any
	value       reflect.Value
	descriptors []PropertyDescriptor
	converter   TypeConverter
}

func newInstanceWrapper(instance any, cache *descriptorCache, converter TypeConverter) *InstanceWrapper {
	w := &InstanceWrapper{
		instance:  instance,
		converter: converter,
	}
	if instance != nil {
		w.value = reflect.ValueOf(instance)
		w.descriptors = cache.get(w.value.Type())
	}
	return w
}

// Instance 被包装的实例
func (w *InstanceWrapper) Instance() any {
	return w.instance
}

// Type 实例的动态类型
func (w *InstanceWrapper) Type() reflect.Type {
	if w.instance == nil {
		return nil
	}
	return w.value.Type()
}

// PropertyDescriptors 所有可写属性
func (w *InstanceWrapper) PropertyDescriptors() []PropertyDescriptor {
	return w.descriptors
}

// PropertyDescriptor 按名称查找属性，也接受 Go 字段名或 setter 后缀
func (w *InstanceWrapper) PropertyDescriptor(name string) (PropertyDescriptor, bool) {
	for _, pd := range w.descriptors {
		if pd.Name == name {
			return pd, true
		}
	}
	for _, pd := range w.descriptors {
		if pd.matches(name) {
			return pd, true
		}
	}
	return PropertyDescriptor{}, false
}

// IsWritable 属性是否可写
func (w *InstanceWrapper) IsWritable(name string) bool {
	_, ok := w.PropertyDescriptor(name)
	return ok
}

// ConvertForProperty 将值转换为属性的声明类型
func (w *InstanceWrapper) ConvertForProperty(value any, name string) (any, error) {
	pd, ok := w.PropertyDescriptor(name)
	if !ok {
		return nil, fmt.Errorf("di: property %q is not writable on %v", name, w.Type())
	}
	return w.convert(value, pd.Type)
}

func (w *InstanceWrapper) convert(value any, typ reflect.Type) (any, error) {
	if value != nil && reflect.TypeOf(value).AssignableTo(typ) {
		return value, nil
	}
	return w.converter.Convert(value, typ)
}

// SetPropertyValue 转换后写入属性
func (w *InstanceWrapper) SetPropertyValue(name string, value any) error {
	pd, ok := w.PropertyDescriptor(name)
	if !ok {
		return fmt.Errorf("di: property %q is not writable on %v", name, w.Type())
	}
	converted, err := w.convert(value, pd.Type)
	if err != nil {
		return err
	}
	return w.write(pd, converted)
}

// write 写入已转换的值
func (w *InstanceWrapper) write(pd PropertyDescriptor, value any) error {
	v := valueOf(value, pd.Type)
	if !v.Type().AssignableTo(pd.Type) {
		return fmt.Errorf("di: value of type %v is not assignable to property %q (%v)", v.Type(), pd.Name, pd.Type)
	}

	if pd.IsField() {
		w.value.Elem().FieldByIndex(pd.fieldIndex).Set(v)
		return nil
	}

	out := w.value.MethodByName(pd.Setter).Call([]reflect.Value{v})
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

package di

import (
	"fmt"
	"reflect"
	"strings"
)

// DependencyDescriptor 注入点描述
type DependencyDescriptor struct {
	Type reflect.Type
	// Name 注入点名称，多个候选时用于按名称匹配
	Name string
	// Field 属性名；为空时表示构造参数 Param
	Field    string
	Param    int
	Required bool
	// Eager 是否允许为了判断类型而实例化工厂组件
	Eager bool
}

func (d *DependencyDescriptor) point() string {
	if d.Field != "" {
		return d.Field
	}
	return fmt.Sprintf("parameter %d", d.Param)
}

type candidate struct {
	name  string
	def   *Definition
	owner *Container
}

// ResolveDependency 按注入点解析依赖，resolved 名称追加到 autowiredNames；
// 多个候选时依次按 Primary、注入点名称挑选，否则返回歧义错误
func (c *Container) ResolveDependency(desc *DependencyDescriptor, requestingName string, autowiredNames *[]string, converter TypeConverter) (any, error) {
	res, done := c.currentResolution()
	defer done()
	obj, err := c.resolveDependency(desc, requestingName, autowiredNames, converter, res)
	if err != nil {
		return nil, unsatisfiedError(requestingName, desc.point(), err)
	}
	if obj == nil && desc.Required {
		return nil, unsatisfiedError(requestingName, desc.point(), noCandidateError(desc.Type))
	}
	return obj, nil
}

func (c *Container) resolveDependency(desc *DependencyDescriptor, requestingName string, autowiredNames *[]string, converter TypeConverter, res *resolution) (any, error) {
	typ := desc.Type
	if typ == nil {
		return nil, fmt.Errorf("di: dependency descriptor without a type")
	}
	if typ == containerType {
		return c.bound(res), nil
	}
	if v, ok := c.resolvableFor(typ); ok {
		return v, nil
	}
	if c.isIgnoredType(typ) {
		return nil, nil
	}

	if multiple, ok, err := c.resolveMultiple(desc, requestingName, autowiredNames, res); ok || err != nil {
		return multiple, err
	}

	candidates := c.findCandidates(requestingName, typ, desc.Eager, res)
	if len(candidates) == 0 {
		if desc.Required {
			return nil, noCandidateError(typ)
		}
		return nil, nil
	}

	chosen := candidates[0]
	if len(candidates) > 1 {
		var err error
		chosen, err = c.determineAutowireCandidate(candidates, desc, requestingName)
		if err != nil {
			return nil, err
		}
	}

	obj, err := chosen.owner.doGetComponent(chosen.name, nil, nil, res)
	if err != nil {
		return nil, err
	}
	if autowiredNames != nil {
		*autowiredNames = append(*autowiredNames, strings.TrimLeft(chosen.name, FactoryPrefix))
	}
	if obj != nil && !reflect.TypeOf(obj).AssignableTo(typ) {
		if converter == nil {
			return nil, typeMismatchError(chosen.name, typ, obj)
		}
		return converter.Convert(obj, typ)
	}
	return obj, nil
}

// resolveMultiple []T 与 map[string]T 注入点；没有候选时返回 ok=false，继续按单个类型查找
func (c *Container) resolveMultiple(desc *DependencyDescriptor, requestingName string, autowiredNames *[]string, res *resolution) (any, bool, error) {
	typ := desc.Type
	var elem reflect.Type
	switch {
	case typ.Kind() == reflect.Slice && !isSimpleProperty(typ.Elem()):
		elem = typ.Elem()
	case typ.Kind() == reflect.Map && typ.Key().Kind() == reflect.String && !isSimpleProperty(typ.Elem()):
		elem = typ.Elem()
	default:
		return nil, false, nil
	}
	if elem.Kind() == reflect.Interface && elem.NumMethod() == 0 {
		return nil, false, nil
	}

	candidates := c.findCandidates(requestingName, elem, desc.Eager, res)
	if len(candidates) == 0 {
		return nil, false, nil
	}

	type item struct {
		name string
		obj  any
	}
	items := make([]item, 0, len(candidates))
	for _, cand := range candidates {
		obj, err := cand.owner.doGetComponent(cand.name, nil, nil, res)
		if err != nil {
			return nil, true, err
		}
		if obj == nil || !reflect.TypeOf(obj).AssignableTo(elem) {
			continue
		}
		items = append(items, item{name: strings.TrimLeft(cand.name, FactoryPrefix), obj: obj})
	}
	if autowiredNames != nil {
		for _, it := range items {
			*autowiredNames = append(*autowiredNames, it.name)
		}
	}

	if typ.Kind() == reflect.Slice {
		sortByOrder(items, func(it item) any { return it.obj })
		out := reflect.MakeSlice(typ, 0, len(items))
		for _, it := range items {
			out = reflect.Append(out, reflect.ValueOf(it.obj))
		}
		return out.Interface(), true, nil
	}

	out := reflect.MakeMapWithSize(typ, len(items))
	for _, it := range items {
		out.SetMapIndex(reflect.ValueOf(it.name).Convert(typ.Key()), reflect.ValueOf(it.obj))
	}
	return out.Interface(), true, nil
}

// findCandidates 本地容器优先，父容器中的同名组件被遮蔽
func (c *Container) findCandidates(requestingName string, typ reflect.Type, eager bool, res *resolution) []candidate {
	var out []candidate
	seen := make(map[string]struct{})
	for cur := c; cur != nil; cur = cur.parent {
		for _, name := range cur.componentNamesForType(typ, true, eager, res) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			plain := strings.TrimLeft(name, FactoryPrefix)
			if cur == c && requestingName != "" && plain == c.canonicalName(requestingName) {
				continue
			}
			def, _ := cur.definition(plain)
			if def != nil && !def.AutowireCandidate {
				continue
			}
			out = append(out, candidate{name: name, def: def, owner: cur})
		}
	}
	return out
}

// determineAutowireCandidate 唯一的 Primary，其次注入点名称（含别名），否则歧义
func (c *Container) determineAutowireCandidate(candidates []candidate, desc *DependencyDescriptor, requestingName string) (candidate, error) {
	var primaries []candidate
	for _, cand := range candidates {
		if cand.def != nil && cand.def.Primary {
			primaries = append(primaries, cand)
		}
	}
	if len(primaries) == 1 {
		return primaries[0], nil
	}
	if len(primaries) > 1 {
		return candidate{}, &Error{
			Code:       ErrCodeAmbiguousResolution,
			Component:  requestingName,
			Message:    fmt.Sprintf("more than one primary component found among candidates of type %v", desc.Type),
			Candidates: candidateNames(primaries),
		}
	}

	if desc.Name != "" {
		for _, cand := range candidates {
			plain := strings.TrimLeft(cand.name, FactoryPrefix)
			if plain == desc.Name || cand.owner.canonicalName(desc.Name) == plain {
				return cand, nil
			}
		}
	}
	return candidate{}, ambiguousError(requestingName, desc.Type, candidateNames(candidates))
}

func candidateNames(candidates []candidate) []string {
	names := make([]string, len(candidates))
	for i, cand := range candidates {
		names[i] = cand.name
	}
	return names
}

func (c *Container) resolvableFor(typ reflect.Type) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.resolvable[typ]
	return v, ok
}

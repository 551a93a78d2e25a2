package di

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// resolveValue 将声明值解析为运行时值：引用、内部组件、集合（深拷贝）、带类型字符串
func (c *Container) resolveValue(name string, def *Definition, prop string, value any, res *resolution) (any, error) {
	switch v := value.(type) {
	case Ref:
		return c.resolveReference(name, prop, v, res)
	case *Ref:
		return c.resolveReference(name, prop, *v, res)
	case *Definition:
		return c.resolveInnerComponent(name, def, prop, v, res)
	case List:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := c.resolveValue(name, def, fmt.Sprintf("%s[%d]", prop, i), elem, res)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case Map:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			resolved, err := c.resolveValue(name, def, fmt.Sprintf("%s[%s]", prop, key), elem, res)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case TypedString:
		return c.resolveTypedString(name, prop, v)
	case *TypedString:
		return c.resolveTypedString(name, prop, *v)
	default:
		return value, nil
	}
}

func (c *Container) resolveTypedString(name, prop string, v TypedString) (any, error) {
	if v.Type == nil {
		return v.Value, nil
	}
	converted, err := c.converter.Convert(v.Value, v.Type)
	if err != nil {
		return nil, &Error{
			Code:      ErrCodeConversion,
			Component: name,
			Property:  prop,
			Message:   "failed to convert typed string value",
			Cause:     err,
		}
	}
	return converted, nil
}

func (c *Container) resolveReference(name, prop string, ref Ref, res *resolution) (any, error) {
	owner := c
	if ref.Parent {
		if c.parent == nil {
			return nil, &Error{
				Code:      ErrCodeCreation,
				Component: name,
				Phase:     PhasePopulation,
				Property:  prop,
				Message:   fmt.Sprintf("cannot resolve reference to component %q in parent container: no parent container available", ref.Name),
			}
		}
		owner = c.parent
	}

	obj, err := owner.doGetComponent(ref.Name, nil, nil, res)
	if err != nil {
		return nil, &Error{
			Code:      ErrCodeCreation,
			Component: name,
			Phase:     PhasePopulation,
			Property:  prop,
			Message:   fmt.Sprintf("cannot resolve reference to component %q", ref.Name),
			Cause:     err,
		}
	}
	if owner == c {
		c.registry.registerDependent(c.canonicalName(strings.TrimLeft(ref.Name, FactoryPrefix)), name)
	}
	return obj, nil
}

// resolveInnerComponent 内部组件：不注册名称，随外部组件销毁
func (c *Container) resolveInnerComponent(outer string, outerDef *Definition, prop string, inner *Definition, res *resolution) (any, error) {
	innerName := "(inner)#" + uuid.NewString()
	if err := inner.validate(innerName); err != nil {
		return nil, err
	}
	// 非单例外部组件中的内部组件跟随外部作用域
	if outerDef != nil && !outerDef.IsSingleton() && inner.IsSingleton() {
		inner.Scope = outerDef.Scope
	}

	wrapErr := func(err error) error {
		return &Error{
			Code:      ErrCodeCreation,
			Component: outer,
			Phase:     PhasePopulation,
			Property:  prop,
			Message:   "cannot create inner component",
			Cause:     err,
		}
	}

	for _, dep := range inner.DependsOn {
		c.registry.registerDependent(c.canonicalName(dep), innerName)
		if _, err := c.doGetComponent(dep, nil, nil, res); err != nil {
			return nil, wrapErr(err)
		}
	}

	obj, err := c.createComponent(innerName, inner, nil, res)
	if err != nil {
		return nil, wrapErr(err)
	}
	c.registry.registerContained(innerName, outer)

	if fc, ok := obj.(FactoryComponent); ok {
		product, err := c.objectFromFactory(fc, innerName, inner.Synthetic, false)
		if err != nil {
			return nil, wrapErr(err)
		}
		return product, nil
	}
	return obj, nil
}

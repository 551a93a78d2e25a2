package di

import (
	"fmt"
	"reflect"
	"time"

	"github.com/gocrud/ioc/logging"
)

var (
	timeType        = reflect.TypeOf(time.Time{})
	reflectTypeType = reflect.TypeOf((*reflect.Type)(nil)).Elem()
)

// isSimpleProperty 字面量类的属性：不参与按类型装配，由 CheckSimple 检查
func isSimpleProperty(t reflect.Type) bool {
	if t == durationType || t == timeType || t == reflectTypeType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.Func, reflect.Chan:
		return true
	case reflect.Slice, reflect.Array:
		return isSimpleProperty(t.Elem())
	}
	return false
}

// populate 属性填充：实例化后闸门、按名称/类型装配、属性后处理、依赖检查、应用属性值
func (c *Container) populate(name string, def *Definition, w *InstanceWrapper, res *resolution) error {
	if w.Instance() == nil {
		if def.Properties.Len() > 0 {
			return &Error{Code: ErrCodeCreation, Component: name, Phase: PhasePopulation, Message: "cannot apply property values to a nil instance"}
		}
		return nil
	}

	if !def.Synthetic {
		cont, err := c.pipeline.applyAfterInstantiation(w.Instance(), name)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}

	pvs := def.Properties
	if def.Autowire == AutowireByName || def.Autowire == AutowireByType {
		autowired := def.Properties.Clone()
		if def.Autowire == AutowireByName {
			if err := c.autowireByName(name, def, w, autowired, res); err != nil {
				return err
			}
		}
		if def.Autowire == AutowireByType {
			if err := c.autowireByType(name, def, w, autowired, res); err != nil {
				return err
			}
		}
		pvs = autowired
	}

	hasProcessors := !def.Synthetic && c.pipeline.has(func(v any) bool {
		_, ok := v.(PropertyValuesProcessor)
		return ok
	})
	needsCheck := def.DependencyCheck != CheckNone

	if hasProcessors || needsCheck {
		filtered := c.filteredDescriptors(w)
		if hasProcessors {
			out, err := c.pipeline.applyPropertyValues(pvs, filtered, w.Instance(), name)
			if err != nil {
				return err
			}
			if out == nil {
				return nil
			}
			pvs = out
		}
		if needsCheck {
			if err := checkDependencies(name, def, filtered, pvs); err != nil {
				return err
			}
		}
	}

	if pvs.Len() == 0 {
		return nil
	}
	return c.applyPropertyValues(name, def, w, pvs, res)
}

func (c *Container) autowireByName(name string, def *Definition, w *InstanceWrapper, pvs *PropertyValues, res *resolution) error {
	for _, prop := range c.unsatisfiedNonSimpleProperties(w, pvs) {
		if !c.ContainsComponent(prop) {
			c.log().Trace("not autowiring property by name: no matching component",
				logging.Field{Key: "component", Value: name},
				logging.Field{Key: "property", Value: prop})
			continue
		}
		dep, err := c.doGetComponent(prop, nil, nil, res)
		if err != nil {
			return unsatisfiedError(name, prop, err)
		}
		pvs.Add(prop, dep)
		c.registry.registerDependent(c.canonicalName(prop), name)
		c.log().Debug("autowired by name",
			logging.Field{Key: "component", Value: name},
			logging.Field{Key: "property", Value: prop})
	}
	return nil
}

func (c *Container) autowireByType(name string, def *Definition, w *InstanceWrapper, pvs *PropertyValues, res *resolution) error {
	_, priority := w.Instance().(PriorityOrdered)
	for _, prop := range c.unsatisfiedNonSimpleProperties(w, pvs) {
		pd, _ := w.PropertyDescriptor(prop)
		// 空接口从不按类型装配
		if pd.Type.Kind() == reflect.Interface && pd.Type.NumMethod() == 0 {
			continue
		}
		desc := &DependencyDescriptor{
			Type:  pd.Type,
			Name:  prop,
			Field: prop,
			Eager: !priority,
		}
		var autowired []string
		dep, err := c.resolveDependency(desc, name, &autowired, nil, res)
		if err != nil {
			return unsatisfiedError(name, prop, err)
		}
		if dep != nil {
			pvs.Add(prop, dep)
		}
		for _, depName := range autowired {
			c.registry.registerDependent(depName, name)
			c.log().Debug("autowired by type",
				logging.Field{Key: "component", Value: name},
				logging.Field{Key: "property", Value: prop},
				logging.Field{Key: "dependency", Value: depName})
		}
	}
	return nil
}

// unsatisfiedNonSimpleProperties 未声明值、非简单类型、未被排除的可写属性
func (c *Container) unsatisfiedNonSimpleProperties(w *InstanceWrapper, pvs *PropertyValues) []string {
	var out []string
	for _, pd := range w.PropertyDescriptors() {
		if c.isExcludedFromDependencyCheck(pd, w.Type()) || hasValueFor(pvs, pd) || isSimpleProperty(pd.Type) {
			continue
		}
		out = append(out, pd.Name)
	}
	return out
}

// isExcludedFromDependencyCheck 被忽略的类型，或由被忽略接口声明的 setter
func (c *Container) isExcludedFromDependencyCheck(pd PropertyDescriptor, typ reflect.Type) bool {
	if c.isIgnoredType(pd.Type) {
		return true
	}
	if pd.IsField() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, iface := range c.ignoredInterfaces {
		if !typ.Implements(iface) {
			continue
		}
		if _, ok := iface.MethodByName(pd.Setter); ok {
			return true
		}
	}
	return false
}

// filteredDescriptors 去掉被排除的属性，按类型缓存
func (c *Container) filteredDescriptors(w *InstanceWrapper) []PropertyDescriptor {
	typ := w.Type()
	c.filteredMu.RLock()
	pds, ok := c.filtered[typ]
	c.filteredMu.RUnlock()
	if ok {
		return pds
	}

	c.filteredMu.Lock()
	defer c.filteredMu.Unlock()
	if pds, ok := c.filtered[typ]; ok {
		return pds
	}
	pds = make([]PropertyDescriptor, 0, len(w.PropertyDescriptors()))
	for _, pd := range w.PropertyDescriptors() {
		if !c.isExcludedFromDependencyCheck(pd, typ) {
			pds = append(pds, pd)
		}
	}
	c.filtered[typ] = pds
	return pds
}

func (c *Container) resetFilteredDescriptors() {
	c.filteredMu.Lock()
	defer c.filteredMu.Unlock()
	clear(c.filtered)
}

// hasValueFor 已按属性名或 Go 名称声明了值
func hasValueFor(pvs *PropertyValues, pd PropertyDescriptor) bool {
	return pvs.Contains(pd.Name) || (pd.goName != "" && pvs.Contains(pd.goName))
}

// checkDependencies 所有需要检查的属性都必须有值
func checkDependencies(name string, def *Definition, pds []PropertyDescriptor, pvs *PropertyValues) error {
	for _, pd := range pds {
		if hasValueFor(pvs, pd) {
			continue
		}
		simple := isSimpleProperty(pd.Type)
		unsatisfied := def.DependencyCheck == CheckAll ||
			(simple && def.DependencyCheck == CheckSimple) ||
			(!simple && def.DependencyCheck == CheckObjects)
		if unsatisfied {
			return unsatisfiedError(name, pd.Name,
				fmt.Errorf("set a value for this property or disable dependency checking for this component"))
		}
	}
	return nil
}

// applyPropertyValues 解析、转换并写入属性；字面量的转换结果缓存在定义上
func (c *Container) applyPropertyValues(name string, def *Definition, w *InstanceWrapper, pvs *PropertyValues, res *resolution) error {
	if pvs.IsConverted() {
		for _, pv := range pvs.Values() {
			value, _ := pv.Converted()
			if err := c.writeProperty(name, w, pv.Name, value); err != nil {
				return err
			}
		}
		return nil
	}

	allConverted := true
	for _, pv := range pvs.Values() {
		if value, ok := pv.Converted(); ok {
			if err := c.writeProperty(name, w, pv.Name, value); err != nil {
				return err
			}
			continue
		}

		pd, ok := w.PropertyDescriptor(pv.Name)
		if !ok {
			return &Error{
				Code:      ErrCodeCreation,
				Component: name,
				Phase:     PhasePopulation,
				Property:  pv.Name,
				Message:   fmt.Sprintf("property is not writable on %v", w.Type()),
			}
		}

		resolved, err := c.resolveValue(name, def, pv.Name, pv.Value, res)
		if err != nil {
			return err
		}
		converted, err := w.convert(resolved, pd.Type)
		if err != nil {
			return &Error{
				Code:      ErrCodeConversion,
				Component: name,
				Phase:     PhasePopulation,
				Property:  pv.Name,
				Message:   "failed to convert property value",
				Cause:     err,
			}
		}

		if cacheableConversion(pv.Value, converted) {
			pv.setConverted(converted)
		} else {
			allConverted = false
		}

		if err := w.write(pd, converted); err != nil {
			return &Error{
				Code:      ErrCodeCreation,
				Component: name,
				Phase:     PhasePopulation,
				Property:  pv.Name,
				Message:   "failed to set property value",
				Cause:     err,
			}
		}
	}
	if allConverted {
		pvs.markConverted()
	}
	return nil
}

func (c *Container) writeProperty(name string, w *InstanceWrapper, prop string, value any) error {
	pd, ok := w.PropertyDescriptor(prop)
	if !ok {
		return &Error{
			Code:      ErrCodeCreation,
			Component: name,
			Phase:     PhasePopulation,
			Property:  prop,
			Message:   fmt.Sprintf("property is not writable on %v", w.Type()),
		}
	}
	if err := w.write(pd, value); err != nil {
		return &Error{
			Code:      ErrCodeCreation,
			Component: name,
			Phase:     PhasePopulation,
			Property:  prop,
			Message:   "failed to set property value",
			Cause:     err,
		}
	}
	return nil
}

// cacheableConversion 运行时解析的值（引用、内部组件、集合）每次重新解析；
// TypedString 只在结果不是集合时缓存
func cacheableConversion(original, converted any) bool {
	switch original.(type) {
	case Ref, *Ref, *Definition, List, Map:
		return false
	case TypedString, *TypedString:
		if converted == nil {
			return true
		}
		switch reflect.TypeOf(converted).Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return false
		}
	}
	return true
}

package di

import (
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sort"
	"unicode"
	"unicode/utf8"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// validateFunc 构造函数与工厂函数的签名：func(...) T 或 func(...) (T, error)
func validateFunc(fn any) error {
	if fn == nil {
		return fmt.Errorf("constructor is nil")
	}
	ft := reflect.TypeOf(fn)
	if ft.Kind() != reflect.Func {
		return fmt.Errorf("constructor must be a function, got %v", ft)
	}
	return validateFuncType(ft)
}

func validateFuncType(ft reflect.Type) error {
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) == errorType {
			return fmt.Errorf("function %v returns only an error", ft)
		}
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("second return value of %v must be an error", ft)
		}
	default:
		return fmt.Errorf("function %v must return T or (T, error)", ft)
	}
	return nil
}

// invokeFunc 调用构造函数，panic 转为错误
func invokeFunc(fn reflect.Value, args []reflect.Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", funcName(fn), r)
		}
	}()

	var out []reflect.Value
	if fn.Type().IsVariadic() {
		out = fn.CallSlice(args)
	} else {
		out = fn.Call(args)
	}
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	if isNilValue(out[0]) {
		return nil, fmt.Errorf("%s returned nil", funcName(fn))
	}
	return out[0].Interface(), nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func funcName(fn reflect.Value) string {
	if fn.Kind() == reflect.Func {
		if f := runtime.FuncForPC(fn.Pointer()); f != nil {
			return f.Name()
		}
	}
	return fn.Type().String()
}

// isExportedType 命名类型是否导出；匿名类型视为导出
func isExportedType(typ reflect.Type) bool {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Name() == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(typ.Name())
	return unicode.IsUpper(r)
}

func (c *Container) wrap(instance any) *InstanceWrapper {
	return newInstanceWrapper(instance, c.descriptors, c.converter)
}

// createInstance 选择工厂方法、构造函数或默认构造创建原始实例
func (c *Container) createInstance(name string, def *Definition, explicitArgs []any, res *resolution) (*InstanceWrapper, error) {
	typ, err := c.resolveTargetType(name, def)
	if err != nil {
		return nil, err
	}
	if typ != nil && !def.NonPublicAccessAllowed && !isExportedType(typ) {
		return nil, &Error{
			Code:      ErrCodeCreation,
			Component: name,
			Phase:     PhaseInstantiation,
			Message:   fmt.Sprintf("type %v is not exported and non-public access is not allowed", typ),
		}
	}

	if def.IsFactoryMethod() {
		return c.instantiateUsingFactoryMethod(name, def, explicitArgs, res)
	}

	// 复用已解析的构造函数
	if explicitArgs == nil {
		if fn, isFactory, autowire := def.cachedConstructor(); fn.IsValid() && !isFactory {
			if fn.Type().NumIn() == 0 {
				return c.instantiate(name, fn, nil)
			}
			return c.autowireConstructor(name, def, []reflect.Value{fn}, nil, autowire, false, res)
		}
	}

	determined, err := c.pipeline.determineConstructors(typ, name)
	if err != nil {
		return nil, creationError(name, PhaseInstantiation, err)
	}
	autowiring := len(determined) > 0 || def.Autowire == AutowireConstructor
	if autowiring || def.HasConstructorArgs() || len(explicitArgs) > 0 {
		candidates := determined
		if len(candidates) == 0 {
			candidates = def.Constructors
		}
		if len(candidates) > 0 {
			fns := make([]reflect.Value, 0, len(candidates))
			for _, ctor := range candidates {
				if err := validateFunc(ctor); err != nil {
					return nil, definitionError(name, "%v", err)
				}
				fns = append(fns, reflect.ValueOf(ctor))
			}
			return c.autowireConstructor(name, def, fns, explicitArgs, autowiring, false, res)
		}
		if def.HasConstructorArgs() || len(explicitArgs) > 0 {
			return nil, definitionError(name, "constructor arguments declared but no constructor candidates available")
		}
	}

	return c.instantiateDefault(name, def, typ, res)
}

// instantiateDefault 无参构造函数，或直接 reflect.New；多个无参候选交给 autowireConstructor 判定歧义
func (c *Container) instantiateDefault(name string, def *Definition, typ reflect.Type, res *resolution) (*InstanceWrapper, error) {
	var zeroArg []reflect.Value
	for _, ctor := range def.Constructors {
		fn := reflect.ValueOf(ctor)
		if fn.Type().NumIn() == 0 {
			zeroArg = append(zeroArg, fn)
		}
	}
	switch len(zeroArg) {
	case 0:
	case 1:
		def.cacheConstructor(zeroArg[0], false, false)
		return c.instantiate(name, zeroArg[0], nil)
	default:
		return c.autowireConstructor(name, def, zeroArg, nil, false, false, res)
	}
	if len(def.Constructors) > 0 {
		return nil, definitionError(name, "none of the %d constructor candidates takes zero arguments and constructor autowiring is not enabled", len(def.Constructors))
	}
	if typ == nil {
		return nil, definitionError(name, "cannot determine the type to instantiate")
	}

	switch {
	case typ.Kind() == reflect.Pointer && typ.Elem().Kind() == reflect.Struct:
		return c.wrap(reflect.New(typ.Elem()).Interface()), nil
	case typ.Kind() == reflect.Struct:
		return c.wrap(reflect.New(typ).Elem().Interface()), nil
	default:
		return nil, definitionError(name, "type %v cannot be instantiated without a constructor", typ)
	}
}

func (c *Container) instantiate(name string, fn reflect.Value, args []reflect.Value) (*InstanceWrapper, error) {
	obj, err := invokeFunc(fn, args)
	if err != nil {
		return nil, creationError(name, PhaseInstantiation, err)
	}
	return c.wrap(obj), nil
}

// instantiateUsingFactoryMethod 静态工厂函数或另一个组件上的工厂方法
func (c *Container) instantiateUsingFactoryMethod(name string, def *Definition, explicitArgs []any, res *resolution) (*InstanceWrapper, error) {
	static := def.FactoryComponent == ""
	var candidates []reflect.Value

	if static {
		if explicitArgs == nil {
			if fn, isFactory, autowire := def.cachedConstructor(); fn.IsValid() && isFactory {
				if fn.Type().NumIn() == 0 {
					return c.instantiate(name, fn, nil)
				}
				return c.autowireConstructor(name, def, []reflect.Value{fn}, nil, autowire, true, res)
			}
		}
		for _, f := range def.FactoryFuncs {
			if err := validateFunc(f); err != nil {
				return nil, definitionError(name, "%v", err)
			}
			candidates = append(candidates, reflect.ValueOf(f))
		}
	} else {
		factoryName := c.canonicalName(def.FactoryComponent)
		if factoryName == name {
			return nil, definitionError(name, "factory component reference points back to the same definition")
		}
		factory, err := c.doGetComponent(def.FactoryComponent, nil, nil, res)
		if err != nil {
			return nil, creationError(name, PhaseInstantiation, err)
		}
		if def.IsSingleton() && c.registry.containsSingleton(name) {
			return nil, &Error{
				Code:      ErrCodeCreation,
				Component: name,
				Phase:     PhaseInstantiation,
				Message:   "singleton appeared implicitly while its factory component was being created",
			}
		}
		c.registry.registerDependent(factoryName, name)

		m := reflect.ValueOf(factory).MethodByName(def.FactoryMethod)
		if !m.IsValid() {
			return nil, definitionError(name, "factory method %q not found on %T", def.FactoryMethod, factory)
		}
		if err := validateFuncType(m.Type()); err != nil {
			return nil, definitionError(name, "factory method %q: %v", def.FactoryMethod, err)
		}
		candidates = append(candidates, m)
	}

	if len(candidates) == 0 {
		return nil, definitionError(name, "no candidates for factory method %q", def.FactoryMethod)
	}
	if len(candidates) == 1 && candidates[0].Type().NumIn() == 0 && explicitArgs == nil && !def.HasConstructorArgs() {
		if static {
			def.cacheConstructor(candidates[0], true, false)
		}
		return c.instantiate(name, candidates[0], nil)
	}
	return c.autowireConstructor(name, def, candidates, explicitArgs, def.Autowire == AutowireConstructor, true, res)
}

// autowireConstructor 在候选中选择参数最多且全部可解析的一个；参数个数与类型差异相同则视为歧义
func (c *Container) autowireConstructor(name string, def *Definition, candidates []reflect.Value, explicitArgs []any, autowiring, factory bool, res *resolution) (*InstanceWrapper, error) {
	sorted := make([]reflect.Value, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Type().NumIn() > sorted[j].Type().NumIn()
	})

	minArgs := def.ConstructorArgs.minArgs()
	if explicitArgs != nil {
		minArgs = len(explicitArgs)
	}

	var (
		best         reflect.Value
		bestArgs     []reflect.Value
		bestAutowire bool
		bestWeight   = math.MaxInt
		ambiguous    []reflect.Value
		lastErr      error
	)
	for _, fn := range sorted {
		n := fn.Type().NumIn()
		if best.IsValid() && len(bestArgs) > n {
			// 已找到参数更多的可用候选
			break
		}
		if n < minArgs || (explicitArgs != nil && n != len(explicitArgs)) {
			continue
		}

		args, usedAutowire, err := c.resolveArguments(name, def, fn.Type(), explicitArgs, autowiring, res)
		if err != nil {
			lastErr = err
			continue
		}

		weight := typeDifferenceWeight(fn.Type(), args)
		switch {
		case weight < bestWeight:
			best, bestArgs, bestAutowire, bestWeight = fn, args, usedAutowire, weight
			ambiguous = nil
		case weight == bestWeight && best.IsValid() && n == best.Type().NumIn():
			ambiguous = append(ambiguous, fn)
		}
	}

	if !best.IsValid() {
		if lastErr != nil {
			return nil, creationError(name, PhaseInstantiation, lastErr)
		}
		return nil, definitionError(name, "no constructor among %d candidates matches the declared arguments", len(candidates))
	}
	if len(ambiguous) > 0 {
		names := []string{funcName(best)}
		for _, fn := range ambiguous {
			names = append(names, funcName(fn))
		}
		return nil, &Error{
			Code:       ErrCodeAmbiguousResolution,
			Component:  name,
			Phase:      PhaseInstantiation,
			Message:    "ambiguous constructor matches",
			Candidates: names,
		}
	}

	if explicitArgs == nil && (!factory || def.FactoryComponent == "") {
		def.cacheConstructor(best, factory, bestAutowire)
	}
	return c.instantiate(name, best, bestArgs)
}

// resolveArguments 参数来源：显式参数、按索引声明、按类型匹配的通用声明、自动装配
func (c *Container) resolveArguments(name string, def *Definition, ft reflect.Type, explicitArgs []any, autowiring bool, res *resolution) ([]reflect.Value, bool, error) {
	n := ft.NumIn()
	args := make([]reflect.Value, n)
	used := make(map[*ValueHolder]bool)
	var autowired []string
	usedAutowire := false

	for i := 0; i < n; i++ {
		pt := ft.In(i)
		param := fmt.Sprintf("parameter %d", i)

		if explicitArgs != nil {
			v, err := c.convertArgument(explicitArgs[i], pt)
			if err != nil {
				return nil, false, unsatisfiedError(name, param, err)
			}
			args[i] = v
			continue
		}

		holder := def.ConstructorArgs.Indexed[i]
		if holder == nil {
			holder = matchGeneric(def.ConstructorArgs.Generic, pt, used, !autowiring || n == def.ConstructorArgs.Count())
		}
		if holder != nil {
			used[holder] = true
			resolved, err := c.resolveValue(name, def, param, holder.Value, res)
			if err != nil {
				return nil, false, unsatisfiedError(name, param, err)
			}
			v, err := c.convertArgument(resolved, pt)
			if err != nil {
				return nil, false, unsatisfiedError(name, param, err)
			}
			args[i] = v
			continue
		}

		if !autowiring {
			return nil, false, unsatisfiedError(name, param,
				fmt.Errorf("no value declared for parameter of type %v and constructor autowiring is disabled", pt))
		}
		desc := &DependencyDescriptor{Type: pt, Param: i, Required: true, Eager: true}
		dep, err := c.resolveDependency(desc, name, &autowired, nil, res)
		if err != nil {
			return nil, false, unsatisfiedError(name, param, err)
		}
		if dep == nil {
			return nil, false, unsatisfiedError(name, param, noCandidateError(pt))
		}
		args[i] = valueOf(dep, pt)
		usedAutowire = true
	}

	for _, dep := range autowired {
		c.registry.registerDependent(dep, name)
	}
	return args, usedAutowire, nil
}

func (c *Container) convertArgument(value any, typ reflect.Type) (reflect.Value, error) {
	if value != nil && reflect.TypeOf(value).AssignableTo(typ) {
		return reflect.ValueOf(value), nil
	}
	converted, err := c.converter.Convert(value, typ)
	if err != nil {
		return reflect.Value{}, err
	}
	v := valueOf(converted, typ)
	if !v.Type().AssignableTo(typ) {
		return reflect.Value{}, conversionError(value, typ, nil)
	}
	return v, nil
}

// matchGeneric 优先按类型匹配未使用的通用参数；fallback 时按声明顺序取下一个
func matchGeneric(generic []*ValueHolder, typ reflect.Type, used map[*ValueHolder]bool, fallback bool) *ValueHolder {
	for _, h := range generic {
		if used[h] {
			continue
		}
		if h.Type != nil {
			if h.Type == typ || h.Type.AssignableTo(typ) {
				return h
			}
			continue
		}
		if h.Value != nil && !isDeclaredValue(h.Value) && reflect.TypeOf(h.Value).AssignableTo(typ) {
			return h
		}
	}
	if !fallback {
		return nil
	}
	for _, h := range generic {
		if !used[h] && h.Type == nil {
			return h
		}
	}
	return nil
}

// isDeclaredValue 需要在运行时解析的声明值
func isDeclaredValue(v any) bool {
	switch v.(type) {
	case Ref, *Ref, *Definition, List, Map, TypedString, *TypedString:
		return true
	}
	return false
}

// typeDifferenceWeight 类型完全一致为 0，经由接口赋值为 1，转换得到为 2
func typeDifferenceWeight(ft reflect.Type, args []reflect.Value) int {
	weight := 0
	for i, arg := range args {
		pt := ft.In(i)
		switch {
		case !arg.IsValid():
			weight += 2
		case arg.Type() == pt:
		case pt.Kind() == reflect.Interface:
			weight++
		default:
			weight += 2
		}
	}
	return weight
}

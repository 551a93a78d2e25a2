package autoproxy

import (
	"path"
	"reflect"

	"github.com/gocrud/ioc/di"
)

// MatchFunc 组件匹配条件
type MatchFunc func(typ reflect.Type, name string) bool

// WrapFunc 包装函数
type WrapFunc func(target any, name string) (any, error)

type funcAdvisor struct {
	match MatchFunc
	wrap  WrapFunc
	order int
}

// NewAdvisor 由匹配条件和包装函数组成 Advisor，order 越小越靠内层
func NewAdvisor(match MatchFunc, wrap WrapFunc, order int) Advisor {
	return &funcAdvisor{match: match, wrap: wrap, order: order}
}

func (a *funcAdvisor) Matches(typ reflect.Type, name string) bool { return a.match(typ, name) }
func (a *funcAdvisor) Wrap(target any, name string) (any, error)  { return a.wrap(target, name) }
func (a *funcAdvisor) Order() int                                 { return a.order }

// NameMatcher 组件名匹配，支持 path.Match 通配符，如 "*Service"
func NameMatcher(patterns ...string) MatchFunc {
	return func(_ reflect.Type, name string) bool {
		for _, p := range patterns {
			if ok, _ := path.Match(p, name); ok {
				return true
			}
		}
		return false
	}
}

// TypeMatcher 组件类型实现（或可赋值给）T 时匹配
func TypeMatcher[T any]() MatchFunc {
	iface := di.TypeOf[T]()
	return func(typ reflect.Type, _ string) bool {
		if typ == nil {
			return false
		}
		if iface.Kind() == reflect.Interface {
			return typ.Implements(iface)
		}
		return typ.AssignableTo(iface)
	}
}

// Typed 把按接口类型编写的装饰器转换为 WrapFunc；目标未实现 T 时原样返回
func Typed[T any](decorate func(target T, name string) (T, error)) WrapFunc {
	return func(target any, name string) (any, error) {
		t, ok := target.(T)
		if !ok {
			return target, nil
		}
		return decorate(t, name)
	}
}

type funcTargetSource struct {
	typ    reflect.Type
	target func() (any, error)
}

// NewTargetSource 由类型和取值函数构成目标来源
func NewTargetSource(typ reflect.Type, target func() (any, error)) TargetSource {
	return &funcTargetSource{typ: typ, target: target}
}

func (s *funcTargetSource) TargetType() reflect.Type { return s.typ }
func (s *funcTargetSource) Target() (any, error)     { return s.target() }

// TargetSourceCreatorFunc 函数适配器
type TargetSourceCreatorFunc func(typ reflect.Type, name string) TargetSource

func (f TargetSourceCreatorFunc) TargetSource(typ reflect.Type, name string) TargetSource {
	return f(typ, name)
}

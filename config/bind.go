package config

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindSection 绑定指定节到 T 并按 validate 标签校验；section 为空时绑定整个配置
func BindSection[T any](cfg Configuration, section string) (T, error) {
	var t T
	if err := cfg.Bind(section, &t); err != nil {
		return t, err
	}
	if err := Validate(t); err != nil {
		return t, fmt.Errorf("config: section %q: %w", section, err)
	}
	return t, nil
}

// Validate 对结构体（或结构体指针）执行 validate 标签校验，其他类型直接通过
func Validate(v any) error {
	typ := reflect.TypeOf(v)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(v)
}

// Bind 把配置节注册为 *T 组件，首次获取时从容器中的配置绑定。
// name 为空时使用类型默认名
func Bind[T any](section string, name ...string) core.Option {
	return func(rt *core.Runtime) error {
		compName := di.DefaultName(di.TypeOf[T]())
		if len(name) > 0 && name[0] != "" {
			compName = name[0]
		}
		def := di.NewDefinition(nil,
			di.WithFactoryFunc("bind", func(cfg Configuration) (*T, error) {
				t, err := BindSection[T](cfg, section)
				if err != nil {
					return nil, err
				}
				return &t, nil
			}),
			di.WithAutowire(di.AutowireConstructor),
			di.WithDependsOn(ComponentName),
			di.WithDescription(fmt.Sprintf("configuration section %q", section)),
		)
		return rt.Container.Register(compName, def)
	}
}

package di

import (
	"fmt"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"
)

// TypeConverter 将原始值转换为目标类型
type TypeConverter interface {
	Convert(value any, target reflect.Type) (any, error)
}

// ConverterFunc 函数适配器
type ConverterFunc func(value any, target reflect.Type) (any, error)

func (f ConverterFunc) Convert(value any, target reflect.Type) (any, error) {
	return f(value, target)
}

var durationType = reflect.TypeOf(time.Duration(0))

type defaultConverter struct{}

// NewDefaultConverter 默认转换器：可赋值直接返回，数值之间互转，
// 字符串按 YAML 标量/流式集合解析
func NewDefaultConverter() TypeConverter {
	return defaultConverter{}
}

func (c defaultConverter) Convert(value any, target reflect.Type) (any, error) {
	if target == nil {
		return value, nil
	}
	if value == nil {
		return reflect.Zero(target).Interface(), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return value, nil
	}

	if s, ok := value.(string); ok {
		return convertString(s, target)
	}

	switch {
	case isNumberKind(rv.Kind()) && isNumberKind(target.Kind()):
		return rv.Convert(target).Interface(), nil

	case (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && target.Kind() == reflect.Slice:
		out := reflect.MakeSlice(target, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := c.Convert(rv.Index(i).Interface(), target.Elem())
			if err != nil {
				return nil, conversionError(value, target, fmt.Errorf("element %d: %w", i, err))
			}
			setConverted(out.Index(i), elem, target.Elem())
		}
		return out.Interface(), nil

	case rv.Kind() == reflect.Map && target.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(target, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := c.Convert(iter.Key().Interface(), target.Key())
			if err != nil {
				return nil, conversionError(value, target, err)
			}
			elem, err := c.Convert(iter.Value().Interface(), target.Elem())
			if err != nil {
				return nil, conversionError(value, target, fmt.Errorf("key %v: %w", iter.Key().Interface(), err))
			}
			out.SetMapIndex(valueOf(key, target.Key()), valueOf(elem, target.Elem()))
		}
		return out.Interface(), nil

	case target.Kind() == reflect.Pointer && rv.Type().AssignableTo(target.Elem()):
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(rv)
		return ptr.Interface(), nil

	case rv.Type().ConvertibleTo(target) && rv.Kind() == target.Kind():
		return rv.Convert(target).Interface(), nil
	}

	return nil, conversionError(value, target, nil)
}

func convertString(s string, target reflect.Type) (any, error) {
	if target.Kind() == reflect.String {
		return reflect.ValueOf(s).Convert(target).Interface(), nil
	}
	if target == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, conversionError(s, target, err)
		}
		return d, nil
	}

	ptr := reflect.New(target)
	if err := yaml.Unmarshal([]byte(s), ptr.Interface()); err != nil {
		return nil, conversionError(s, target, err)
	}
	return ptr.Elem().Interface(), nil
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// valueOf 把 any 转成指定类型的 reflect.Value，nil 得到零值
func valueOf(v any, typ reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(typ)
	}
	return reflect.ValueOf(v)
}

func setConverted(dst reflect.Value, v any, typ reflect.Type) {
	dst.Set(valueOf(v, typ))
}

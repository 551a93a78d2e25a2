package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gocrud/ioc/di"
)

const (
	placeholderPrefix = "${"
	placeholderSuffix = "}"
	valueSeparator    = ":"
)

// PlaceholderProcessor 在定义合并阶段把属性与构造参数中的 ${key} / ${key:default} 替换为配置值。
// key 使用 "." 分隔层级，第一个 ":" 之后是默认值；支持嵌套，例如 ${db.dsn:${fallback.dsn}}
type PlaceholderProcessor struct {
	cfg Configuration
	// IgnoreUnresolvable 为 true 时保留无法解析的占位符原文
	IgnoreUnresolvable bool
}

// NewPlaceholderProcessor 创建占位符处理器
func NewPlaceholderProcessor(cfg Configuration) *PlaceholderProcessor {
	return &PlaceholderProcessor{cfg: cfg}
}

func (p *PlaceholderProcessor) Order() int       { return di.HighestPrecedence }
func (p *PlaceholderProcessor) PriorityOrdered() {}

func (p *PlaceholderProcessor) PostProcessMergedDefinition(def *di.Definition, _ reflect.Type, name string) error {
	if err := p.processDefinition(def); err != nil {
		return fmt.Errorf("config: component %q: %w", name, err)
	}
	return nil
}

func (p *PlaceholderProcessor) processDefinition(def *di.Definition) error {
	for _, pv := range def.Properties.Values() {
		value, changed, err := p.resolveValue(pv.Value)
		if err != nil {
			return fmt.Errorf("property %q: %w", pv.Name, err)
		}
		if changed {
			// 新的 PropertyValue 不带转换缓存
			def.Properties.Add(pv.Name, value)
		}
	}

	if def.ConstructorArgs == nil {
		return nil
	}
	for idx, holder := range def.ConstructorArgs.Indexed {
		if err := p.resolveHolder(holder); err != nil {
			return fmt.Errorf("argument %d: %w", idx, err)
		}
	}
	for _, holder := range def.ConstructorArgs.Generic {
		if err := p.resolveHolder(holder); err != nil {
			return fmt.Errorf("argument %s: %w", holder.Name, err)
		}
	}
	return nil
}

func (p *PlaceholderProcessor) resolveHolder(holder *di.ValueHolder) error {
	value, changed, err := p.resolveValue(holder.Value)
	if err != nil {
		return err
	}
	if changed {
		holder.Value = value
	}
	return nil
}

// resolveValue 递归处理声明值；只改写字符串字面量
func (p *PlaceholderProcessor) resolveValue(value any) (any, bool, error) {
	switch v := value.(type) {
	case string:
		resolved, err := p.Resolve(v)
		return resolved, resolved != v, err
	case di.TypedString:
		resolved, err := p.Resolve(v.Value)
		return di.TypedString{Value: resolved, Type: v.Type}, resolved != v.Value, err
	case *di.TypedString:
		resolved, err := p.Resolve(v.Value)
		return &di.TypedString{Value: resolved, Type: v.Type}, resolved != v.Value, err
	case di.List:
		out := make(di.List, len(v))
		changed := false
		for i, item := range v {
			r, c, err := p.resolveValue(item)
			if err != nil {
				return nil, false, err
			}
			out[i], changed = r, changed || c
		}
		return out, changed, nil
	case di.Map:
		out := make(di.Map, len(v))
		changed := false
		for k, item := range v {
			r, c, err := p.resolveValue(item)
			if err != nil {
				return nil, false, err
			}
			out[k], changed = r, changed || c
		}
		return out, changed, nil
	case *di.Definition:
		// 内部定义原地处理
		return v, false, p.processDefinition(v)
	}
	return value, false, nil
}

// Resolve 替换文本中的所有占位符
func (p *PlaceholderProcessor) Resolve(text string) (string, error) {
	return p.parse(text, map[string]struct{}{})
}

func (p *PlaceholderProcessor) parse(text string, visiting map[string]struct{}) (string, error) {
	start := strings.Index(text, placeholderPrefix)
	if start < 0 {
		return text, nil
	}

	var out strings.Builder
	for start >= 0 {
		end := findPlaceholderEnd(text, start)
		if end < 0 {
			break
		}
		out.WriteString(text[:start])

		expr := text[start+len(placeholderPrefix) : end]
		resolved, err := p.resolvePlaceholder(expr, visiting)
		if err != nil {
			return "", err
		}
		out.WriteString(resolved)

		text = text[end+len(placeholderSuffix):]
		start = strings.Index(text, placeholderPrefix)
	}
	out.WriteString(text)
	return out.String(), nil
}

func (p *PlaceholderProcessor) resolvePlaceholder(expr string, visiting map[string]struct{}) (string, error) {
	keyExpr, defaultExpr, hasDefault := cutDefault(expr)
	// key 本身也可以包含占位符
	key, err := p.parse(keyExpr, visiting)
	if err != nil {
		return "", err
	}

	if _, ok := visiting[key]; ok {
		return "", fmt.Errorf("circular placeholder reference %q", key)
	}

	if value, ok := p.cfg.Lookup(key); ok && value != nil {
		visiting[key] = struct{}{}
		defer delete(visiting, key)
		// 配置值中的占位符继续解析
		return p.parse(stringify(value), visiting)
	}
	if hasDefault {
		return p.parse(defaultExpr, visiting)
	}
	if p.IgnoreUnresolvable {
		return placeholderPrefix + expr + placeholderSuffix, nil
	}
	return "", fmt.Errorf("could not resolve placeholder %q", key)
}

// cutDefault 在嵌套层级之外的第一个分隔符处切分
func cutDefault(expr string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(expr); i++ {
		switch {
		case strings.HasPrefix(expr[i:], placeholderPrefix):
			depth++
			i += len(placeholderPrefix) - 1
		case strings.HasPrefix(expr[i:], placeholderSuffix) && depth > 0:
			depth--
		case depth == 0 && strings.HasPrefix(expr[i:], valueSeparator):
			return expr[:i], expr[i+len(valueSeparator):], true
		}
	}
	return expr, "", false
}

// findPlaceholderEnd 找到与 start 处前缀配对的后缀，跳过嵌套占位符
func findPlaceholderEnd(text string, start int) int {
	depth := 0
	for i := start + len(placeholderPrefix); i < len(text); i++ {
		switch {
		case strings.HasPrefix(text[i:], placeholderPrefix):
			depth++
			i += len(placeholderPrefix) - 1
		case strings.HasPrefix(text[i:], placeholderSuffix):
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

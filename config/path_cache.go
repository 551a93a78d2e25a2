package config

import (
	"strings"
	"sync"
)

// PathCache 缓存键到路径片段的解析结果
type PathCache struct {
	cache sync.Map
}

// GetPathSegments ":" 与 "." 都是层级分隔符
func (c *PathCache) GetPathSegments(path string) []string {
	if v, ok := c.cache.Load(path); ok {
		return v.([]string)
	}

	parts := strings.FieldsFunc(path, func(r rune) bool { return r == ':' || r == '.' })
	if len(parts) == 0 {
		parts = []string{path}
	}
	v, _ := c.cache.LoadOrStore(path, parts)
	return v.([]string)
}

var globalPathCache = &PathCache{}

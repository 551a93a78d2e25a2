package web

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// componentInfo /debug/components 的返回项
type componentInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Scope        string   `json:"scope,omitempty"`
	Primary      bool     `json:"primary,omitempty"`
	Lazy         bool     `json:"lazy,omitempty"`
	Created      bool     `json:"created"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func (h *Host) listComponents(c *gin.Context) {
	names := h.container.ComponentNames()
	sort.Strings(names)

	items := make([]componentInfo, 0, len(names))
	for _, name := range names {
		info := componentInfo{
			Name:         name,
			Created:      h.container.ContainsSingleton(name),
			Dependencies: h.container.DependenciesForComponent(name),
		}
		if typ, err := h.container.TypeOf(name); err == nil && typ != nil {
			info.Type = typ.String()
		}
		if def, ok := h.container.Definition(name); ok {
			info.Scope = def.Scope
			info.Primary = def.Primary
			info.Lazy = def.Lazy
			info.Description = def.Description
		}
		items = append(items, info)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "components": items})
}

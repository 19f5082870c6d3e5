// Package router assembles the agent API from route groups.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// API mounts route groups under /api/<version>
type API struct {
	version string
	groups  []*Group
}

// NewAPI creates an API for version, "v1" when empty
func NewAPI(version string) *API {
	if version == "" {
		version = "v1"
	}
	return &API{version: version}
}

// Add queues groups for Mount
func (a *API) Add(groups ...*Group) *API {
	a.groups = append(a.groups, groups...)
	return a
}

// Base returns the path every group is mounted under
func (a *API) Base() string {
	return "/api/" + a.version
}

// Mount registers every group on r
func (a *API) Mount(r gin.IRouter) {
	base := r.Group(a.Base())
	for _, g := range a.groups {
		g.mount(base)
	}
}

// Routes lists "METHOD path" of every queued route
func (a *API) Routes() []string {
	var out []string
	for _, g := range a.groups {
		out = g.list(a.Base(), out)
	}
	return out
}

// Group is one area of the API: a prefix, the middleware guarding it and its
// routes. Child groups inherit the middleware.
type Group struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	children   []*Group
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewGroup creates a group mounted at prefix
func NewGroup(name, prefix string, middleware ...gin.HandlerFunc) *Group {
	return &Group{name: name, prefix: prefix, middleware: middleware}
}

// Name returns the group name
func (g *Group) Name() string { return g.name }

// Prefix returns the group prefix
func (g *Group) Prefix() string { return g.prefix }

// Use appends middleware
func (g *Group) Use(middleware ...gin.HandlerFunc) *Group {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// Handle adds a route. Handlers run after the group middleware.
func (g *Group) Handle(method, relPath string, handlers ...gin.HandlerFunc) *Group {
	g.routes = append(g.routes, route{method: method, path: relPath, handlers: handlers})
	return g
}

func (g *Group) GET(p string, h ...gin.HandlerFunc) *Group    { return g.Handle(http.MethodGet, p, h...) }
func (g *Group) POST(p string, h ...gin.HandlerFunc) *Group   { return g.Handle(http.MethodPost, p, h...) }
func (g *Group) PUT(p string, h ...gin.HandlerFunc) *Group    { return g.Handle(http.MethodPut, p, h...) }
func (g *Group) DELETE(p string, h ...gin.HandlerFunc) *Group { return g.Handle(http.MethodDelete, p, h...) }

// Sub creates a child group below this one
func (g *Group) Sub(name, prefix string, middleware ...gin.HandlerFunc) *Group {
	child := NewGroup(name, prefix, middleware...)
	g.children = append(g.children, child)
	return child
}

func (g *Group) mount(parent gin.IRouter) {
	rg := parent.Group(g.prefix, g.middleware...)
	for _, rt := range g.routes {
		rg.Handle(rt.method, rt.path, rt.handlers...)
	}
	for _, child := range g.children {
		child.mount(rg)
	}
}

func (g *Group) list(base string, out []string) []string {
	base = path.Join(base, g.prefix)
	for _, rt := range g.routes {
		out = append(out, rt.method+" "+path.Join(base, rt.path))
	}
	for _, child := range g.children {
		out = child.list(base, out)
	}
	return out
}

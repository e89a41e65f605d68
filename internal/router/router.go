// Package router holds the route tables for WebSocket events, HTTP routes
// and the connect/disconnect special events, and dispatches through the
// composed middleware chains.
package router

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sockd/sockd/internal/httpx"
)

// WSHandlerFunc handles a WebSocket event for one client. Returned errors
// are logged and reported to the peer as an in-band error event; they never
// propagate into the listener loop.
type WSHandlerFunc func(clientID string, data map[string]any) error

// HTTPHandlerFunc handles a matched HTTP request. The return value becomes
// the response body: a string is served as text/html, a *httpx.Response is
// emitted verbatim, nil becomes 404, anything else is JSON-encoded.
type HTTPHandlerFunc func(req *httpx.Request) any

type wsRoute struct {
	event       string
	handler     WSHandlerFunc
	middlewares []WSMiddleware
	exclude     map[string]struct{}
}

type httpRoute struct {
	method      string
	path        string
	pattern     *regexp.Regexp // nil for exact routes
	handler     HTTPHandlerFunc
	middlewares []HTTPMiddleware
	exclude     map[string]struct{}
}

// Router is the registration surface and dispatch table.
type Router struct {
	mu sync.RWMutex

	wsRoutes map[string]*wsRoute

	httpExact   map[string]*httpRoute // keyed "METHOD PATH"
	httpByKey   map[string]*httpRoute // pattern routes, same key shape
	httpOrdered []*httpRoute          // pattern routes in registration order

	connect    []*wsRoute
	disconnect []*wsRoute

	wsGlobals   []WSMiddleware
	httpGlobals []HTTPMiddleware
}

// New creates an empty router.
func New() *Router {
	return &Router{
		wsRoutes:  make(map[string]*wsRoute),
		httpExact: make(map[string]*httpRoute),
		httpByKey: make(map[string]*httpRoute),
	}
}

// UseWS appends global WebSocket middlewares, applied to every event and
// special-event dispatch unless excluded per route.
func (r *Router) UseWS(middlewares ...WSMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wsGlobals = append(r.wsGlobals, middlewares...)
}

// UseHTTP appends global HTTP middlewares.
func (r *Router) UseHTTP(middlewares ...HTTPMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.httpGlobals = append(r.httpGlobals, middlewares...)
}

// OnEvent registers a handler for a WebSocket event. Registering the same
// event again overwrites the earlier entry.
func (r *Router) OnEvent(event string, handler WSHandlerFunc, opts ...RouteOption) {
	options := applyOptions(opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wsRoutes[event] = &wsRoute{
		event:       event,
		handler:     handler,
		middlewares: options.wsMiddlewares,
		exclude:     options.exclude,
	}
}

// OnHTTP registers a handler for "METHOD path". Paths may contain {name}
// placeholders, each matching one path segment. Exact paths win over
// patterns; patterns are tried in registration order. Re-registering a key
// replaces the handler but keeps the original position in match order.
func (r *Router) OnHTTP(method, path string, handler HTTPHandlerFunc, opts ...RouteOption) error {
	options := applyOptions(opts)
	method = strings.ToUpper(method)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	route := &httpRoute{
		method:      method,
		path:        path,
		handler:     handler,
		middlewares: options.httpMiddlewares,
		exclude:     options.exclude,
	}
	key := method + " " + path

	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.Contains(path, "{") {
		r.httpExact[key] = route
		return nil
	}

	pattern, err := compilePattern(path)
	if err != nil {
		return fmt.Errorf("invalid route pattern %q: %w", path, err)
	}
	route.pattern = pattern

	if existing, ok := r.httpByKey[key]; ok {
		*existing = *route
		return nil
	}
	r.httpByKey[key] = route
	r.httpOrdered = append(r.httpOrdered, route)
	return nil
}

// OnConnect appends a connect special-event handler. Handlers run in
// registration order with empty data.
func (r *Router) OnConnect(handler WSHandlerFunc, opts ...RouteOption) {
	options := applyOptions(opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connect = append(r.connect, &wsRoute{
		event:       "connect",
		handler:     handler,
		middlewares: options.wsMiddlewares,
		exclude:     options.exclude,
	})
}

// OnDisconnect appends a disconnect special-event handler.
func (r *Router) OnDisconnect(handler WSHandlerFunc, opts ...RouteOption) {
	options := applyOptions(opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect = append(r.disconnect, &wsRoute{
		event:       "disconnect",
		handler:     handler,
		middlewares: options.wsMiddlewares,
		exclude:     options.exclude,
	})
}

// HasEvent reports whether an event has a registered handler.
func (r *Router) HasEvent(event string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.wsRoutes[event]
	return ok
}

// matchHTTP finds the route for a request: exact match first, then pattern
// routes in registration order. Captures populate params.
func (r *Router) matchHTTP(method, path string) (*httpRoute, map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if route, ok := r.httpExact[method+" "+path]; ok {
		return route, nil
	}

	for _, route := range r.httpOrdered {
		if route.method != method {
			continue
		}
		match := route.pattern.FindStringSubmatch(path)
		if match == nil {
			continue
		}
		params := make(map[string]string)
		for i, name := range route.pattern.SubexpNames() {
			if i > 0 && name != "" {
				params[name] = match[i]
			}
		}
		return route, params
	}
	return nil, nil
}

// compilePattern converts a {name} placeholder path into an anchored regexp
// with one named capture per placeholder, each matching a single segment.
func compilePattern(path string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	rest := path
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		close := strings.Index(rest[open:], "}")
		if close < 0 {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:open]))
		fmt.Fprintf(&b, "(?P<%s>[^/]+)", rest[open+1:open+close])
		rest = rest[open+close+1:]
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

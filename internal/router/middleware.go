package router

import (
	"github.com/sockd/sockd/internal/httpx"
)

// WSMiddleware intercepts WebSocket event dispatches. Calling next invokes
// the remainder of the chain and returns its result; not calling it
// short-circuits the dispatch. Name identifies the middleware for per-route
// exclusion of globals.
type WSMiddleware interface {
	Name() string
	HandleWS(clientID, event string, data map[string]any, next func() error) error
}

// HTTPMiddleware intercepts HTTP dispatches with the same onion semantics.
type HTTPMiddleware interface {
	Name() string
	HandleHTTP(req *httpx.Request, next func() any) any
}

// WSMiddlewareFunc adapts a named function to WSMiddleware.
type WSMiddlewareFunc struct {
	MiddlewareName string
	Handle         func(clientID, event string, data map[string]any, next func() error) error
}

func (m WSMiddlewareFunc) Name() string { return m.MiddlewareName }

func (m WSMiddlewareFunc) HandleWS(clientID, event string, data map[string]any, next func() error) error {
	return m.Handle(clientID, event, data, next)
}

// HTTPMiddlewareFunc adapts a named function to HTTPMiddleware.
type HTTPMiddlewareFunc struct {
	MiddlewareName string
	Handle         func(req *httpx.Request, next func() any) any
}

func (m HTTPMiddlewareFunc) Name() string { return m.MiddlewareName }

func (m HTTPMiddlewareFunc) HandleHTTP(req *httpx.Request, next func() any) any {
	return m.Handle(req, next)
}

// routeOptions collects per-route registration options.
type routeOptions struct {
	wsMiddlewares   []WSMiddleware
	httpMiddlewares []HTTPMiddleware
	exclude         map[string]struct{}
}

// RouteOption configures a single route registration.
type RouteOption func(*routeOptions)

// WithWSMiddleware appends per-route WebSocket middlewares, run after the
// surviving globals.
func WithWSMiddleware(middlewares ...WSMiddleware) RouteOption {
	return func(o *routeOptions) {
		o.wsMiddlewares = append(o.wsMiddlewares, middlewares...)
	}
}

// WithHTTPMiddleware appends per-route HTTP middlewares.
func WithHTTPMiddleware(middlewares ...HTTPMiddleware) RouteOption {
	return func(o *routeOptions) {
		o.httpMiddlewares = append(o.httpMiddlewares, middlewares...)
	}
}

// WithoutGlobal excludes named global middlewares from this route's chain.
func WithoutGlobal(names ...string) RouteOption {
	return func(o *routeOptions) {
		if o.exclude == nil {
			o.exclude = make(map[string]struct{}, len(names))
		}
		for _, name := range names {
			o.exclude[name] = struct{}{}
		}
	}
}

func applyOptions(opts []RouteOption) routeOptions {
	var options routeOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// effectiveWS is (globals minus exclusions) followed by the per-route list.
func effectiveWS(globals []WSMiddleware, route *wsRoute) []WSMiddleware {
	chain := make([]WSMiddleware, 0, len(globals)+len(route.middlewares))
	for _, m := range globals {
		if _, skip := route.exclude[m.Name()]; skip {
			continue
		}
		chain = append(chain, m)
	}
	return append(chain, route.middlewares...)
}

func effectiveHTTP(globals []HTTPMiddleware, route *httpRoute) []HTTPMiddleware {
	chain := make([]HTTPMiddleware, 0, len(globals)+len(route.middlewares))
	for _, m := range globals {
		if _, skip := route.exclude[m.Name()]; skip {
			continue
		}
		chain = append(chain, m)
	}
	return append(chain, route.middlewares...)
}

// composeWS builds the onion: m1(m2(...(handler))).
func composeWS(chain []WSMiddleware, clientID, event string, data map[string]any, handler func() error) func() error {
	call := handler
	for i := len(chain) - 1; i >= 0; i-- {
		m := chain[i]
		next := call
		call = func() error {
			return m.HandleWS(clientID, event, data, next)
		}
	}
	return call
}

func composeHTTP(chain []HTTPMiddleware, req *httpx.Request, handler func() any) func() any {
	call := handler
	for i := len(chain) - 1; i >= 0; i-- {
		m := chain[i]
		next := call
		call = func() any {
			return m.HandleHTTP(req, next)
		}
	}
	return call
}

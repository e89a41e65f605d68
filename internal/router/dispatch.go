package router

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sockd/sockd/internal/httpx"
)

// DispatchEvent routes a decoded WebSocket event through the composed
// middleware chain to its handler. Unknown events are a no-op. A handler
// fault (returned error or panic) is logged with the client id and returned
// so the caller can emit an in-band error event; it never propagates
// further.
func (r *Router) DispatchEvent(clientID, event string, data map[string]any) error {
	r.mu.RLock()
	route, ok := r.wsRoutes[event]
	globals := r.wsGlobals
	r.mu.RUnlock()

	if !ok {
		log.Debug().Str("client_id", clientID).Str("event", event).Msg("no handler for event")
		return nil
	}

	chain := effectiveWS(globals, route)
	call := composeWS(chain, clientID, event, data, func() error {
		return route.handler(clientID, data)
	})

	err := invokeWS(call)
	if err != nil {
		log.Error().
			Err(err).
			Str("client_id", clientID).
			Str("event", event).
			Msg("event handler failed")
	}
	return err
}

// invokeWS runs a composed chain, converting panics into errors.
func invokeWS(call func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return call()
}

// DispatchHTTP finds the matching route for a request and runs its chain.
// The bool result reports whether any route matched. Handler panics become
// 500 responses.
func (r *Router) DispatchHTTP(req *httpx.Request) (any, bool) {
	route, params := r.matchHTTP(req.Method, req.Path)
	if route == nil {
		return nil, false
	}
	if params != nil {
		req.Params = params
	}

	r.mu.RLock()
	globals := r.httpGlobals
	r.mu.RUnlock()

	chain := effectiveHTTP(globals, route)
	call := composeHTTP(chain, req, func() any {
		return route.handler(req)
	})

	return invokeHTTP(call, req), true
}

func invokeHTTP(call func() any, req *httpx.Request) (result any) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("method", req.Method).
				Str("path", req.Path).
				Interface("panic", rec).
				Msg("http handler panicked")
			result = httpx.JSON(http.StatusInternalServerError,
				map[string]string{"error": "internal server error"})
		}
	}()
	return call()
}

// DispatchConnect fires the connect special event for a client. Handlers
// run in registration order with empty data; a failing handler is logged
// and never aborts the enumeration.
func (r *Router) DispatchConnect(clientID string) {
	r.mu.RLock()
	routes, globals := r.connect, r.wsGlobals
	r.mu.RUnlock()
	r.dispatchSpecial(clientID, "connect", routes, globals)
}

// DispatchDisconnect fires the disconnect special event for a client.
func (r *Router) DispatchDisconnect(clientID string) {
	r.mu.RLock()
	routes, globals := r.disconnect, r.wsGlobals
	r.mu.RUnlock()
	r.dispatchSpecial(clientID, "disconnect", routes, globals)
}

func (r *Router) dispatchSpecial(clientID, event string, routes []*wsRoute, globals []WSMiddleware) {
	for _, route := range routes {
		data := map[string]any{}
		chain := effectiveWS(globals, route)
		call := composeWS(chain, clientID, event, data, func() error {
			return route.handler(clientID, data)
		})
		if err := invokeWS(call); err != nil {
			log.Error().
				Err(err).
				Str("client_id", clientID).
				Str("event", event).
				Msg("special event handler failed")
		}
	}
}

package httpx

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sockd/sockd/internal/config"
)

// Dispatcher routes a parsed request through the middleware chain to a
// handler. The bool result reports whether any route matched.
type Dispatcher interface {
	DispatchHTTP(req *Request) (any, bool)
}

// StatusProvider supplies the live counters for the health endpoint.
type StatusProvider interface {
	ClientCount() int
	Uptime() time.Duration
}

// Engine matches parsed requests to handlers and builds the response to
// write back. One request is served per connection; the caller writes the
// serialized response and closes the socket.
type Engine struct {
	dispatcher Dispatcher
	cors       *CORS
	healthPath string
	status     StatusProvider
}

// NewEngine creates an HTTP engine.
func NewEngine(cfg *config.Config, dispatcher Dispatcher, status StatusProvider) *Engine {
	return &Engine{
		dispatcher: dispatcher,
		cors:       NewCORS(cfg.CORS),
		healthPath: cfg.HealthCheckPath,
		status:     status,
	}
}

// Handle serves a parsed request and returns the response to emit.
func (e *Engine) Handle(req *Request) *Response {
	// OPTIONS is answered by the CORS layer, never routed.
	if req.Method == http.MethodOptions {
		return e.cors.Preflight(req)
	}

	resp := e.respond(req)
	e.cors.Apply(req, resp)

	log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.Status).
		Msg("http request served")
	return resp
}

func (e *Engine) respond(req *Request) *Response {
	// Health endpoint is intercepted before route dispatch.
	if e.healthPath != "" && req.Path == e.healthPath {
		return e.handleHealth(req)
	}

	result, matched := e.dispatcher.DispatchHTTP(req)
	if !matched {
		return NotFound()
	}
	return From(result)
}

// handleHealth serves the configured health endpoint. Only GET and HEAD are
// accepted.
func (e *Engine) handleHealth(req *Request) *Response {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return JSON(http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}

	uptime := e.status.Uptime()
	resp := JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"server": map[string]any{
			"clients":      e.status.ClientCount(),
			"uptime":       int64(uptime.Seconds()),
			"uptime_human": uptime.Truncate(time.Second).String(),
		},
	})
	if req.Method == http.MethodHead {
		resp.Body = nil
	}
	return resp
}

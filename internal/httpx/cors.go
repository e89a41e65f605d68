package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sockd/sockd/internal/config"
	"github.com/sockd/sockd/internal/security"
)

// CORS applies the configured allow-lists to preflight and final responses.
type CORS struct {
	cfg     config.CORSConfig
	origins *security.OriginChecker
}

// NewCORS creates a CORS handler from configuration.
func NewCORS(cfg config.CORSConfig) *CORS {
	return &CORS{
		cfg:     cfg,
		origins: security.NewOriginChecker(cfg.AllowedOrigins),
	}
}

// Preflight builds the 204 response for an OPTIONS request.
func (c *CORS) Preflight(req *Request) *Response {
	resp := NewResponse(http.StatusNoContent)

	if value, ok := c.allowOriginValue(req.Origin()); ok {
		resp.Headers["Access-Control-Allow-Origin"] = value
	}
	resp.Headers["Access-Control-Allow-Methods"] = strings.Join(c.cfg.AllowedMethods, ", ")
	resp.Headers["Access-Control-Allow-Headers"] = strings.Join(c.cfg.AllowedHeaders, ", ")
	resp.Headers["Access-Control-Max-Age"] = strconv.Itoa(c.cfg.MaxAge)
	if c.cfg.AllowCredentials {
		resp.Headers["Access-Control-Allow-Credentials"] = "true"
	}

	return resp
}

// Apply adds the CORS headers to a final (non-preflight) response.
func (c *CORS) Apply(req *Request, resp *Response) {
	if value, ok := c.allowOriginValue(req.Origin()); ok {
		resp.Headers["Access-Control-Allow-Origin"] = value
	}
	if c.cfg.AllowCredentials {
		resp.Headers["Access-Control-Allow-Credentials"] = "true"
	}
}

// allowOriginValue returns the Access-Control-Allow-Origin value for a
// request origin. The request origin is echoed when it is allowed; with no
// Origin header the wildcard is emitted when configured.
func (c *CORS) allowOriginValue(origin string) (string, bool) {
	if origin == "" {
		if c.origins.AllowAll() {
			return "*", true
		}
		return "", false
	}
	if c.origins.Allowed(origin) {
		return origin, true
	}
	return "", false
}

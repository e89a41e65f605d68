// Package security holds the origin allow-list checker shared by the
// WebSocket handshake and the HTTP CORS layer.
package security

import (
	"net/url"
	"strings"
)

// OriginChecker validates WebSocket and CORS origins against an allow-list.
// The wildcard entry "*" allows any origin.
type OriginChecker struct {
	allowedOrigins []string
	allowAll       bool
}

// NewOriginChecker creates a new origin checker. An empty list allows
// nothing except origin-less (same-origin) requests.
func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	oc := &OriginChecker{allowedOrigins: allowedOrigins}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			oc.allowAll = true
			break
		}
	}
	return oc
}

// Allowed reports whether an Origin header value is acceptable.
// An empty origin means no Origin header was sent; no CORS constraint
// applies and the request is allowed.
func (oc *OriginChecker) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	if oc.allowAll {
		return true
	}
	for _, allowed := range oc.allowedOrigins {
		if matchOrigin(origin, allowed) {
			return true
		}
	}
	return false
}

// AllowAll reports whether the wildcard entry is configured.
func (oc *OriginChecker) AllowAll() bool {
	return oc.allowAll
}

// matchOrigin checks if an origin matches an allowed pattern.
// Supports exact match and wildcard subdomain matching (*.example.com).
func matchOrigin(origin, allowed string) bool {
	if origin == allowed {
		return true
	}

	if strings.HasPrefix(allowed, "*.") {
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		domain := allowed[2:]
		host := parsed.Hostname()
		return host == domain || strings.HasSuffix(host, "."+domain)
	}

	return false
}

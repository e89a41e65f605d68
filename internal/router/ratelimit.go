package router

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sockd/sockd/internal/httpx"
)

// Rate limiter defaults.
const (
	DefaultMaxRequests = 60
	DefaultWindow      = 1 * time.Minute
	rateLimitCleanup   = 5 * time.Minute
)

// RateLimiter is a sliding-window limiter keyed by client id or remote
// address. It backs the optional rate-limit middlewares; the framework never
// installs one on its own.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	buckets map[string]*rateBucket
	done    chan struct{}
}

type rateBucket struct {
	timestamps []time.Time
	lastAccess time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithMaxRequests sets the request budget per window.
func WithMaxRequests(n int) RateLimiterOption {
	return func(r *RateLimiter) {
		if n > 0 {
			r.maxRequests = n
		}
	}
}

// WithWindow sets the sliding window length.
func WithWindow(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		if d > 0 {
			r.window = d
		}
	}
}

// NewRateLimiter creates a limiter and starts its bucket cleanup cycle.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		maxRequests: DefaultMaxRequests,
		window:      DefaultWindow,
		buckets:     make(map[string]*rateBucket),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.cleanupLoop()
	return r
}

// Allow records one request for a key and reports whether it fits the
// window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	b := r.buckets[key]
	if b == nil {
		b = &rateBucket{timestamps: make([]time.Time, 0, r.maxRequests)}
		r.buckets[key] = b
	}

	valid := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	b.timestamps = valid
	b.lastAccess = now

	if len(b.timestamps) >= r.maxRequests {
		return false
	}
	b.timestamps = append(b.timestamps, now)
	return true
}

// Reset clears the window for one key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, key)
}

// Close stops the cleanup cycle.
func (r *RateLimiter) Close() {
	close(r.done)
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rateLimitCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window * 2)
			for key, b := range r.buckets {
				if b.lastAccess.Before(cutoff) {
					delete(r.buckets, key)
				}
			}
			r.mu.Unlock()
		}
	}
}

// WSRateLimit is a WebSocket middleware limiting event dispatches per client
// id. Over-budget events short-circuit with an error that reaches the peer
// as an in-band error event.
func WSRateLimit(limiter *RateLimiter) WSMiddleware {
	return WSMiddlewareFunc{
		MiddlewareName: "ratelimit",
		Handle: func(clientID, event string, data map[string]any, next func() error) error {
			if !limiter.Allow(clientID) {
				return fmt.Errorf("rate limit exceeded")
			}
			return next()
		},
	}
}

// HTTPRateLimit is an HTTP middleware limiting requests per remote address.
// Over-budget requests short-circuit with a 429 response.
func HTTPRateLimit(limiter *RateLimiter) HTTPMiddleware {
	return HTTPMiddlewareFunc{
		MiddlewareName: "ratelimit",
		Handle: func(req *httpx.Request, next func() any) any {
			if !limiter.Allow(req.RemoteAddr) {
				resp := httpx.JSON(http.StatusTooManyRequests,
					map[string]string{"error": "rate limit exceeded"})
				resp.Headers["Retry-After"] = "60"
				return resp
			}
			return next()
		},
	}
}

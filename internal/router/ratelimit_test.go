package router

import (
	"net/http"
	"testing"
	"time"

	"github.com/sockd/sockd/internal/httpx"
)

func TestRateLimiterWindow(t *testing.T) {
	r := NewRateLimiter(WithMaxRequests(3), WithWindow(time.Hour))
	defer r.Close()

	for i := 0; i < 3; i++ {
		if !r.Allow("c1") {
			t.Fatalf("request %d refused under budget", i)
		}
	}
	if r.Allow("c1") {
		t.Error("over-budget request allowed")
	}
	// Keys are independent.
	if !r.Allow("c2") {
		t.Error("fresh key refused")
	}

	r.Reset("c1")
	if !r.Allow("c1") {
		t.Error("reset did not clear the window")
	}
}

func TestRateLimiterSlidingExpiry(t *testing.T) {
	r := NewRateLimiter(WithMaxRequests(1), WithWindow(30*time.Millisecond))
	defer r.Close()

	if !r.Allow("c1") {
		t.Fatal("first request refused")
	}
	if r.Allow("c1") {
		t.Fatal("second immediate request allowed")
	}
	time.Sleep(50 * time.Millisecond)
	if !r.Allow("c1") {
		t.Error("request refused after the window slid past")
	}
}

func TestWSRateLimitShortCircuits(t *testing.T) {
	limiter := NewRateLimiter(WithMaxRequests(1), WithWindow(time.Hour))
	defer limiter.Close()

	rt := New()
	rt.UseWS(WSRateLimit(limiter))
	calls := 0
	rt.OnEvent("x", func(string, map[string]any) error {
		calls++
		return nil
	})

	if err := rt.DispatchEvent("c1", "x", map[string]any{}); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	if err := rt.DispatchEvent("c1", "x", map[string]any{}); err == nil {
		t.Error("over-budget dispatch did not error")
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestHTTPRateLimitReturns429(t *testing.T) {
	limiter := NewRateLimiter(WithMaxRequests(1), WithWindow(time.Hour))
	defer limiter.Close()

	rt := New()
	rt.UseHTTP(HTTPRateLimit(limiter))
	if err := rt.OnHTTP("GET", "/x", func(*httpx.Request) any { return "ok" }); err != nil {
		t.Fatal(err)
	}

	req := httpRequest(t, "GET", "/x")
	req.RemoteAddr = "10.0.0.1:5000"

	if result, _ := rt.DispatchHTTP(req); result != "ok" {
		t.Fatalf("first request = %v", result)
	}
	result, _ := rt.DispatchHTTP(req)
	resp, ok := result.(*httpx.Response)
	if !ok || resp.Status != http.StatusTooManyRequests {
		t.Errorf("second request = %v, want 429", result)
	}
	if resp != nil && resp.Headers["Retry-After"] == "" {
		t.Error("Retry-After missing")
	}
}

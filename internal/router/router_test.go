package router

import (
	"testing"

	"github.com/sockd/sockd/internal/httpx"
)

func httpRequest(t *testing.T, method, target string) *httpx.Request {
	t.Helper()
	raw := method + " " + target + " HTTP/1.1\r\nHost: x\r\n\r\n"
	req, err := httpx.ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return req
}

func TestOnEventOverwrites(t *testing.T) {
	r := New()
	var hit string
	r.OnEvent("chat.send", func(clientID string, data map[string]any) error {
		hit = "first"
		return nil
	})
	r.OnEvent("chat.send", func(clientID string, data map[string]any) error {
		hit = "second"
		return nil
	})

	if err := r.DispatchEvent("c1", "chat.send", map[string]any{}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if hit != "second" {
		t.Errorf("handler = %q, re-registration must overwrite", hit)
	}
}

func TestHasEvent(t *testing.T) {
	r := New()
	if r.HasEvent("x") {
		t.Error("empty router claims event")
	}
	r.OnEvent("x", func(string, map[string]any) error { return nil })
	if !r.HasEvent("x") {
		t.Error("registered event not found")
	}
}

func TestDispatchUnknownEventIsNoOp(t *testing.T) {
	r := New()
	if err := r.DispatchEvent("c1", "ghost", map[string]any{}); err != nil {
		t.Errorf("unknown event must be silent, got %v", err)
	}
}

func TestHTTPExactBeatsPattern(t *testing.T) {
	r := New()
	if err := r.OnHTTP("GET", "/users/{id}", func(req *httpx.Request) any {
		return "pattern:" + req.Param("id")
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.OnHTTP("GET", "/users/me", func(req *httpx.Request) any {
		return "exact"
	}); err != nil {
		t.Fatal(err)
	}

	result, matched := r.DispatchHTTP(httpRequest(t, "GET", "/users/me"))
	if !matched || result != "exact" {
		t.Errorf("exact route lost: %v (%v)", result, matched)
	}

	result, matched = r.DispatchHTTP(httpRequest(t, "GET", "/users/42"))
	if !matched || result != "pattern:42" {
		t.Errorf("pattern route failed: %v (%v)", result, matched)
	}
}

func TestHTTPPatternRegistrationOrder(t *testing.T) {
	r := New()
	if err := r.OnHTTP("GET", "/files/{name}", func(req *httpx.Request) any {
		return "first"
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.OnHTTP("GET", "/{section}/report", func(req *httpx.Request) any {
		return "second"
	}); err != nil {
		t.Fatal(err)
	}

	// "/files/report" matches both patterns; registration order decides.
	result, matched := r.DispatchHTTP(httpRequest(t, "GET", "/files/report"))
	if !matched || result != "first" {
		t.Errorf("earlier registration should win: %v", result)
	}
}

func TestHTTPReRegistrationKeepsPosition(t *testing.T) {
	r := New()
	if err := r.OnHTTP("GET", "/a/{x}", func(*httpx.Request) any { return "a1" }); err != nil {
		t.Fatal(err)
	}
	if err := r.OnHTTP("GET", "/{x}/b", func(*httpx.Request) any { return "b" }); err != nil {
		t.Fatal(err)
	}
	// Re-register the first pattern. "/a/b" matches both; the first keeps its
	// original slot ahead of the second.
	if err := r.OnHTTP("GET", "/a/{x}", func(*httpx.Request) any { return "a2" }); err != nil {
		t.Fatal(err)
	}

	result, matched := r.DispatchHTTP(httpRequest(t, "GET", "/a/b"))
	if !matched || result != "a2" {
		t.Errorf("re-registered route lost its position: %v", result)
	}
}

func TestHTTPMethodMismatch(t *testing.T) {
	r := New()
	if err := r.OnHTTP("POST", "/submit", func(*httpx.Request) any { return "ok" }); err != nil {
		t.Fatal(err)
	}
	if _, matched := r.DispatchHTTP(httpRequest(t, "GET", "/submit")); matched {
		t.Error("GET must not match a POST route")
	}
}

func TestHTTPParamsCaptured(t *testing.T) {
	r := New()
	if err := r.OnHTTP("GET", "/rooms/{room}/members/{member}", func(req *httpx.Request) any {
		return req.Param("room") + "/" + req.Param("member")
	}); err != nil {
		t.Fatal(err)
	}

	result, matched := r.DispatchHTTP(httpRequest(t, "GET", "/rooms/lobby/members/c9"))
	if !matched || result != "lobby/c9" {
		t.Errorf("params = %v (%v)", result, matched)
	}

	// A placeholder never spans a slash.
	if _, matched := r.DispatchHTTP(httpRequest(t, "GET", "/rooms/a/b/members/c")); matched {
		t.Error("placeholder matched across segments")
	}
}

func TestHTTPLowercaseMethodNormalized(t *testing.T) {
	r := New()
	if err := r.OnHTTP("get", "/x", func(*httpx.Request) any { return "ok" }); err != nil {
		t.Fatal(err)
	}
	if _, matched := r.DispatchHTTP(httpRequest(t, "GET", "/x")); !matched {
		t.Error("lowercase registration should match uppercase request method")
	}
}

package security

import "testing"

func TestOriginCheckerExact(t *testing.T) {
	oc := NewOriginChecker([]string{"https://a.example", "http://localhost:3000"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://a.example", true},
		{"http://localhost:3000", true},
		{"https://b.example", false},
		{"http://localhost:3001", false},
		{"", true}, // no Origin header, no constraint
	}
	for _, tt := range tests {
		if got := oc.Allowed(tt.origin); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginCheckerWildcard(t *testing.T) {
	oc := NewOriginChecker([]string{"*"})
	if !oc.AllowAll() {
		t.Error("AllowAll should report true")
	}
	if !oc.Allowed("https://anything.example") {
		t.Error("wildcard should allow any origin")
	}
}

func TestOriginCheckerSubdomains(t *testing.T) {
	oc := NewOriginChecker([]string{"*.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://deep.nested.example.com", true},
		{"https://example.com", true},
		{"https://example.com.evil.test", false},
		{"https://notexample.com", false},
	}
	for _, tt := range tests {
		if got := oc.Allowed(tt.origin); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginCheckerEmptyList(t *testing.T) {
	oc := NewOriginChecker(nil)
	if oc.Allowed("https://a.example") {
		t.Error("empty allow-list should refuse cross-origin requests")
	}
	if !oc.Allowed("") {
		t.Error("empty allow-list should still accept origin-less requests")
	}
}

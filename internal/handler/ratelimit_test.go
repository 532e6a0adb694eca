package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterDisabled(t *testing.T) {
	for _, tt := range []struct {
		max    int
		window time.Duration
	}{{0, time.Minute}, {5, 0}, {-1, time.Minute}} {
		if l := newRateLimiter(tt.max, tt.window); l != nil {
			t.Errorf("newRateLimiter(%d, %v) should be nil", tt.max, tt.window)
		}
	}

	var l *rateLimiter
	called := false
	h := l.middleware(func(http.ResponseWriter, *http.Request) { t.Error("deny called") })(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Error("nil limiter must pass requests through")
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	l := newRateLimiter(2, time.Minute)
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := l.allow("10.0.0.1"); got != want {
			t.Errorf("request %d from 10.0.0.1: allow = %v, want %v", i, got, want)
		}
	}
	if !l.allow("10.0.0.2") {
		t.Error("another client must have its own budget")
	}

	// One token comes back every window/max.
	now = now.Add(30 * time.Second)
	if !l.allow("10.0.0.1") {
		t.Error("token should be refilled after 30s")
	}
}

func TestRateLimiterPrunesIdleVisitors(t *testing.T) {
	l := newRateLimiter(1, time.Second)
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.allow("a")
	l.allow("b")
	if l.size() != 2 {
		t.Fatalf("size = %d, want 2", l.size())
	}

	// Expiry is at least a minute.
	now = now.Add(2 * time.Minute)
	l.allow("c")
	if l.size() != 1 {
		t.Errorf("size after prune = %d, want 1", l.size())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, want string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:80", "2001:db8::1"},
		{"192.0.2.7", "192.0.2.7"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

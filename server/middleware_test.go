package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name        string
		cfg         AuthConfig
		reqUsername string
		reqPassword string
		reqToken    string
		want        int
	}{
		{name: "no auth configured allows request", want: http.StatusOK},
		{name: "valid basic auth", cfg: AuthConfig{Username: "admin", Password: "hunter2"}, reqUsername: "admin", reqPassword: "hunter2", want: http.StatusOK},
		{name: "wrong username", cfg: AuthConfig{Username: "admin", Password: "hunter2"}, reqUsername: "root", reqPassword: "hunter2", want: http.StatusUnauthorized},
		{name: "wrong password", cfg: AuthConfig{Username: "admin", Password: "hunter2"}, reqUsername: "admin", reqPassword: "nope", want: http.StatusUnauthorized},
		{name: "missing credentials", cfg: AuthConfig{Username: "admin", Password: "hunter2"}, want: http.StatusUnauthorized},
		{name: "valid token", cfg: AuthConfig{Token: "tok-123"}, reqToken: "tok-123", want: http.StatusOK},
		{name: "wrong token", cfg: AuthConfig{Token: "tok-123"}, reqToken: "tok-999", want: http.StatusUnauthorized},
		{name: "token wins over bad basic auth", cfg: AuthConfig{Username: "admin", Password: "hunter2", Token: "tok-123"}, reqToken: "tok-123", reqUsername: "x", reqPassword: "y", want: http.StatusOK},
		{name: "username without password is not enabled", cfg: AuthConfig{Username: "admin"}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := adminAuth(okHandler(), tt.cfg)
			req := httptest.NewRequest(http.MethodPost, "/enabled", nil)
			if tt.reqUsername != "" || tt.reqPassword != "" {
				req.SetBasicAuth(tt.reqUsername, tt.reqPassword)
			}
			if tt.reqToken != "" {
				req.Header.Set("X-Admin-Token", tt.reqToken)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rr.Code)
			}
			if tt.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header on 401 response")
			}
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), RateLimitConfig{Enabled: true, RequestsPerIP: 3, Window: 100 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("192.168.1.1") {
		t.Error("request 4 should be denied")
	}
	if !limiter.allow("192.168.1.2") {
		t.Error("another IP has its own budget")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.allow("192.168.1.1") {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), RateLimitConfig{Enabled: false, RequestsPerIP: 1, Window: time.Second})
	for i := 0; i < 50; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Fatalf("request %d should be allowed when rate limiter is disabled", i+1)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), RateLimitConfig{Enabled: true, RequestsPerIP: 1, Window: 10 * time.Millisecond})
	limiter.allow("10.0.0.1")
	time.Sleep(30 * time.Millisecond)
	limiter.cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.visitors) != 0 {
		t.Fatalf("visitors = %d, want 0", len(limiter.visitors))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), RateLimitConfig{Enabled: true, RequestsPerIP: 2, Window: time.Second})
	handler := rateLimitMiddleware(okHandler(), limiter)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/enabled", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}
	for i := 0; i < 2; i++ {
		if rr := send(); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{"ipv4 with port", "192.168.1.1:12345", "", "192.168.1.1"},
		{"ipv6 with port", "[2001:db8::1]:12345", "", "2001:db8::1"},
		{"forwarded chain uses client", "10.0.0.1:12345", "203.0.113.1, 10.0.0.2", "203.0.113.1"},
		{"forwarded ipv6 without port", "127.0.0.1:8080", "2001:db8::42", "2001:db8::42"},
		{"forwarded ipv4 without port", "10.0.0.1:8080", "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name              string
		cfg               CORSConfig
		origin            string
		expectAllowOrigin string
		expectCredentials bool
	}{
		{name: "permissive allows all origins", cfg: CORSConfig{Permissive: true}, origin: "https://example.com", expectAllowOrigin: "*"},
		{name: "restricted with matching origin", cfg: CORSConfig{AllowedOrigins: []string{"https://example.com"}}, origin: "https://example.com", expectAllowOrigin: "https://example.com", expectCredentials: true},
		{name: "restricted with other origin", cfg: CORSConfig{AllowedOrigins: []string{"https://example.com"}}, origin: "https://evil.com"},
		{name: "wildcard subdomain", cfg: CORSConfig{AllowedOrigins: []string{"*.example.com"}}, origin: "https://app.example.com", expectAllowOrigin: "https://app.example.com", expectCredentials: true},
		{name: "restricted with no origins", cfg: CORSConfig{}, origin: "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := withCORS(okHandler(), tt.cfg)
			req := httptest.NewRequest(http.MethodGet, "/config", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.expectAllowOrigin {
				t.Errorf("expected Allow-Origin %q, got %q", tt.expectAllowOrigin, got)
			}
			if tt.expectCredentials && rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected Allow-Credentials: true for restricted mode")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := withCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for OPTIONS request")
	}), CORSConfig{Permissive: true})

	req := httptest.NewRequest(http.MethodOptions, "/commands/forward", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Allow-Methods header on OPTIONS response")
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"exact match", "https://example.com", []string{"https://example.com", "https://other.com"}, true},
		{"no match", "https://evil.com", []string{"https://example.com"}, false},
		{"wildcard subdomain", "https://app.example.com", []string{"*.example.com"}, true},
		{"wildcard deeper subdomain", "https://api.v2.example.com", []string{"*.example.com"}, true},
		{"wildcard admits bare domain", "https://example.com", []string{"*.example.com"}, true},
		{"wildcard rejects lookalike", "https://badexample.com", []string{"*.example.com"}, false},
		{"scheme mismatch", "http://example.com", []string{"https://example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTarget(t *testing.T) {
	tests := []struct {
		addr, path, want string
	}{
		{"", "", "http://localhost:8080/healthz"},
		{":9090", "", "http://localhost:9090/healthz"},
		{"0.0.0.0:9090", "/readyz", "http://localhost:9090/readyz"},
		{"127.0.0.1:7000", "", "http://127.0.0.1:7000/healthz"},
	}
	for _, tt := range tests {
		t.Run(tt.addr+tt.path, func(t *testing.T) {
			t.Setenv("HTTP_ADDR", tt.addr)
			t.Setenv("HEALTHCHECK_PATH", tt.path)
			if got := target(); got != tt.want {
				t.Fatalf("target() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if code := probe(srv.URL + "/healthz"); code != 0 {
		t.Fatalf("healthz probe = %d, want 0", code)
	}
	if code := probe(srv.URL + "/readyz"); code != 1 {
		t.Fatalf("readyz probe = %d, want 1", code)
	}
	if code := probe("http://127.0.0.1:1/healthz"); code != 1 {
		t.Fatalf("unreachable probe = %d, want 1", code)
	}
}

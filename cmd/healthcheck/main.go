// Command healthcheck probes the local HTTP server for container health
// checks. It exits 0 when the probe answers 200 and 1 otherwise.
//
// HEALTHCHECK_PATH selects the probe (default /healthz; use /readyz to also
// require the chat join). The port follows HTTP_ADDR.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

func main() {
	os.Exit(probe(target()))
}

func target() string {
	host, port := "localhost", "8080"
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		if h, p, err := net.SplitHostPort(addr); err == nil {
			if h != "" && h != "0.0.0.0" && h != "::" {
				host = h
			}
			port = p
		}
	}
	path := os.Getenv("HEALTHCHECK_PATH")
	if path == "" {
		path = "/healthz"
	}
	return "http://" + net.JoinHostPort(host, port) + path
}

func probe(url string) int {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Error("healthcheck failed", slog.String("url", url), slog.Any("err", err))
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		slog.Error("healthcheck failed", slog.String("url", url), slog.Int("status", resp.StatusCode))
		return 1
	}
	return 0
}

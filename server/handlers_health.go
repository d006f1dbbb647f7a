package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HandleHealthz is the liveness probe: the process is serving HTTP.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz is the readiness probe: every channel joined and, when
// history is configured, the database answering.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"chat", func() error {
			if h.opts.Ready != nil && !h.opts.Ready.IsSet() {
				return errors.New("not joined to every channel")
			}
			return nil
		}},
		{"database", func() error {
			if h.opts.DB == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			return h.opts.DB.Ping(ctx)
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

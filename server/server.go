// Package server exposes the HTTP API: health and readiness probes, metrics,
// the live command configuration and the stored command history. It injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/simonsays/chat"
	"github.com/onnwee/simonsays/command"
	"github.com/onnwee/simonsays/db"
	"github.com/onnwee/simonsays/telemetry"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the API to the running service. Ready, History and DB are
// optional.
type Options struct {
	Registry *command.Registry
	Ready    *chat.Readiness
	History  db.Querier
	DB       Pinger
	// CommandsFile is where POST /config/save writes; empty disables saving.
	CommandsFile string

	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// NewMux returns the HTTP handler with all routes. ctx bounds the rate
// limiter's cleanup goroutine.
func NewMux(ctx context.Context, opts Options) http.Handler {
	limiter := newIPRateLimiter(ctx, opts.RateLimit)
	h := NewHandlers(opts)

	// Writes go through auth first, then rate limiting.
	protect := func(fn http.HandlerFunc) http.Handler {
		return adminAuth(rateLimitMiddleware(fn, limiter), opts.Auth)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)

	mux.HandleFunc("GET /commands", h.HandleCommands)
	mux.HandleFunc("GET /config", h.HandleConfig)
	mux.Handle("POST /commands/{tag}", protect(h.HandleCommandUpdate))
	mux.Handle("POST /enabled", protect(h.HandleEnabled))
	mux.Handle("POST /cooldowns/reset", protect(h.HandleCooldownReset))
	mux.Handle("POST /config/save", protect(h.HandleConfigSave))

	mux.HandleFunc("GET /history", h.HandleHistory)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartHTTPSpan(ctx, r)

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrapped, r.WithContext(ctx))
		telemetry.EndHTTPSpan(span, wrapped.statusCode)
	})
	return withCORS(handler, opts.CORS)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, opts Options, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps context values but lets shutdown finish.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err), slog.String("component", "http"))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err), slog.String("component", "http"))
		return err
	}
	return nil
}

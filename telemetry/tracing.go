package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	ChannelKey     = attribute.Key("chat.channel")
	UserKey        = attribute.Key("chat.user")
	TagKey         = attribute.Key("command.tag")
	ForcedKey      = attribute.Key("command.forced")
	OutcomeKey     = attribute.Key("command.outcome")
	CorrelationKey = attribute.Key("correlation_id")
)

const (
	dispatchTracer = "simonsays/dispatch"
	httpTracer     = "simonsays/http"
)

var tracingEnabled bool

// InitTracing exports spans over OTLP/gRPC to OTEL_EXPORTER_OTLP_ENDPOINT.
// Without an endpoint it returns a no-op shutdown and spans go to the global
// no-op provider. OTEL_TRACES_SAMPLE_RATIO (0..1, default 1) sets head
// sampling for new traces.
func InitTracing(serviceName, serviceVersion string) (func(), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set", slog.String("component", "tracing"))
		return func() {}, nil
	}
	ratio, err := sampleRatio(os.Getenv("OTEL_TRACES_SAMPLE_RATIO"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(provider)
	tracingEnabled = true
	slog.Info("tracing initialized",
		slog.String("service", serviceName),
		slog.String("endpoint", endpoint),
		slog.Float64("sample_ratio", ratio),
		slog.String("component", "tracing"))

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err), slog.String("component", "tracing"))
		}
	}, nil
}

func sampleRatio(v string) (float64, error) {
	if v == "" {
		return 1, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be within 0..1, got %q", v)
	}
	return f, nil
}

// IsTracingEnabled reports whether InitTracing installed an exporter.
func IsTracingEnabled() bool { return tracingEnabled }

func withCorrelation(ctx context.Context, attrs []attribute.KeyValue) []attribute.KeyValue {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, CorrelationKey.String(corr))
	}
	return attrs
}

// StartCommandSpan opens the span covering one dispatched command.
func StartCommandSpan(ctx context.Context, tag, user, channel string, forced bool) (context.Context, trace.Span) {
	attrs := withCorrelation(ctx, []attribute.KeyValue{
		TagKey.String(tag),
		UserKey.String(user),
		ChannelKey.String(channel),
		ForcedKey.Bool(forced),
	})
	return otel.Tracer(dispatchTracer).Start(ctx, "command "+tag, trace.WithAttributes(attrs...))
}

// ErrDropped marks a command span whose run never started.
var ErrDropped = errors.New("executor backlog full")

// EndCommandSpan records the outcome and closes the span. A dropped command
// or one that did not succeed gets an error status; gate rejections such as
// a cooldown are not recorded as exceptions.
func EndCommandSpan(span trace.Span, outcomes string, success, dropped bool) {
	span.SetAttributes(OutcomeKey.String(outcomes))
	switch {
	case dropped:
		span.RecordError(ErrDropped)
		span.SetStatus(codes.Error, ErrDropped.Error())
	case success:
		span.SetStatus(codes.Ok, "")
	default:
		span.SetStatus(codes.Error, outcomes)
	}
	span.End()
}

// StartHTTPSpan opens the server span for r.
func StartHTTPSpan(ctx context.Context, r *http.Request) (context.Context, trace.Span) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	attrs := withCorrelation(ctx, []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", r.URL.Path),
		attribute.String("http.url", r.URL.String()),
	})
	return otel.Tracer(httpTracer).Start(ctx, method+" "+r.URL.Path,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer))
}

// EndHTTPSpan records the response status and closes the span. 4xx and 5xx
// responses get an error status.
func EndHTTPSpan(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= 400 {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
	}
	span.End()
}

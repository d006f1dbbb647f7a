// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatMessagesReceived prometheus.Counter
	ChatPingsAnswered    prometheus.Counter
	ChatReconnects       prometheus.Counter
	ChatParseFailures    prometheus.Counter
	CommandsDispatched   *prometheus.CounterVec // labels: tag, outcome
	CommandsDropped      prometheus.Counter

	// Histograms (seconds)
	ActionDuration *prometheus.HistogramVec // labels: tag

	// Gauges
	ChatReadyGauge       prometheus.Gauge // 1=joined,0=not ready
	ExecutorBacklogGauge prometheus.Gauge
	ExecutorBusyGauge    prometheus.Gauge // 1=running an action
	CommandsEnabledGauge prometheus.Gauge // 1=enabled,0=disabled
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "simonsays_chat_messages_received_total", Help: "Number of chat messages received"})
		ChatPingsAnswered = promauto.NewCounter(prometheus.CounterOpts{Name: "simonsays_chat_pings_answered_total", Help: "Number of server PINGs answered with PONG"})
		ChatReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "simonsays_chat_reconnects_total", Help: "Number of chat reconnect attempts"})
		ChatParseFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "simonsays_chat_parse_failures_total", Help: "Number of raw lines that did not parse as a known message"})
		CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "simonsays_commands_dispatched_total", Help: "Commands dispatched by tag and outcome"}, []string{"tag", "outcome"})
		CommandsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "simonsays_commands_dropped_total", Help: "Commands dropped because the executor backlog was full"})
		ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simonsays_action_duration_seconds",
			Help:    "Time spent running a command's action",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"tag"})
		ChatReadyGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "simonsays_chat_ready", Help: "Chat connection joined=1 not ready=0"})
		ExecutorBacklogGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "simonsays_executor_backlog", Help: "Commands queued for execution"})
		ExecutorBusyGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "simonsays_executor_busy", Help: "Executor running an action=1 idle=0"})
		CommandsEnabledGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "simonsays_commands_enabled", Help: "Global command switch enabled=1 disabled=0"})
	})
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// MessageReceived counts one chat message.
func MessageReceived() { inc(ChatMessagesReceived) }

// PingAnswered counts one PONG reply.
func PingAnswered() { inc(ChatPingsAnswered) }

// Reconnected counts one reconnect attempt.
func Reconnected() { inc(ChatReconnects) }

// ParseFailed counts one unparseable line.
func ParseFailed() { inc(ChatParseFailures) }

// CommandDropped counts one command rejected by a full executor.
func CommandDropped() { inc(CommandsDropped) }

// CommandDispatched records the outcome of one dispatched command.
func CommandDispatched(tag, outcome string) {
	if CommandsDispatched != nil {
		CommandsDispatched.WithLabelValues(tag, outcome).Inc()
	}
}

// SetChatReady sets gauge to 1 if ready else 0.
func SetChatReady(ready bool) { setBool(ChatReadyGauge, ready) }

// SetCommandsEnabled mirrors the global command switch.
func SetCommandsEnabled(enabled bool) { setBool(CommandsEnabledGauge, enabled) }

// SetExecutorBusy records whether the executor is running an action.
func SetExecutorBusy(busy bool) { setBool(ExecutorBusyGauge, busy) }

func setBool(g prometheus.Gauge, v bool) {
	if g == nil {
		return
	}
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

// SetExecutorBacklog records the number of queued commands.
func SetExecutorBacklog(n int) {
	if ExecutorBacklogGauge != nil {
		ExecutorBacklogGauge.Set(float64(n))
	}
}

// ObserveActionDuration records how long tag's action ran.
func ObserveActionDuration(tag string, d time.Duration) {
	if ActionDuration != nil {
		ActionDuration.WithLabelValues(tag).Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/simonsays/telemetry"
)

// Defaults for anonymous, read-only access.
const (
	DefaultAddr           = "irc.chat.twitch.tv:6667"
	DefaultPass           = "SCHMOOPIIE"
	DefaultReadTimeout    = 250 * time.Millisecond
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultQueueSize      = 4096

	writeTimeout = 5 * time.Second
	readBufSize  = 4096
	pingServer   = "tmi.twitch.tv"
)

// ErrServerReconnect is the session error when the server asks clients to
// reconnect.
var ErrServerReconnect = errors.New("chat: server requested reconnect")

// Dialer opens the transport connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// WorkerConfig describes the chat endpoint and timing.
type WorkerConfig struct {
	Addr           string
	Nick           string
	Pass           string
	Channels       []string
	ReadTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	QueueSize      int
}

// AnonymousNick returns a random read-only login name.
func AnonymousNick() string {
	return fmt.Sprintf("justinfan%05d", rand.IntN(100000))
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Nick == "" {
		c.Nick = AnonymousNick()
	}
	if c.Pass == "" {
		c.Pass = DefaultPass
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(DefaultMaxBackoff, c.InitialBackoff)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	channels := make([]string, 0, len(c.Channels))
	for _, ch := range c.Channels {
		ch = normalizeChannel(ch)
		if ch != "" {
			channels = append(channels, ch)
		}
	}
	c.Channels = channels
	return c
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) WorkerOption {
	return func(w *Worker) { w.dialer = d }
}

// WithRecorder copies every raw received line to rec.
func WithRecorder(rec io.Writer) WorkerOption {
	return func(w *Worker) { w.recorder = rec }
}

// WithLogger sets the logger used for connection events.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

// Worker owns the chat connection. Messages and Ready are the only state it
// shares with other goroutines.
type Worker struct {
	cfg      WorkerConfig
	dialer   Dialer
	recorder io.Writer
	log      *slog.Logger

	out   chan Message
	ready *Readiness
}

// NewWorker creates a worker. Run starts it.
func NewWorker(cfg WorkerConfig, opts ...WorkerOption) *Worker {
	w := &Worker{
		cfg:    cfg.withDefaults(),
		dialer: &net.Dialer{Timeout: 10 * time.Second},
		log:    slog.Default(),
		ready:  NewReadiness(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(slog.String("component", "chat"))
	w.out = make(chan Message, w.cfg.QueueSize)
	return w
}

// Messages returns the FIFO of received messages. It is closed when Run
// returns.
func (w *Worker) Messages() <-chan Message { return w.out }

// Ready returns the flag raised once every channel has been joined.
func (w *Worker) Ready() *Readiness { return w.ready }

// Nick returns the login name in use.
func (w *Worker) Nick() string { return w.cfg.Nick }

// Run connects and keeps the session alive until ctx is cancelled, which is
// the only way it returns. Run must be called at most once.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.out)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialBackoff
	b.MaxInterval = w.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	for {
		err := w.session(ctx, b)
		w.setReady(false)
		if ctx.Err() != nil {
			w.log.Info("chat worker stopped")
			return ctx.Err()
		}
		wait := b.NextBackOff()
		telemetry.Reconnected()
		w.log.Warn("chat connection lost, reconnecting", slog.Any("err", err), slog.Duration("backoff", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			w.log.Info("chat worker stopped")
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (w *Worker) setReady(ready bool) {
	if ready {
		w.ready.Set()
	} else {
		w.ready.Clear()
	}
	telemetry.SetChatReady(ready)
}

// session runs one connection until it fails. It always returns a non-nil
// error.
func (w *Worker) session(ctx context.Context, b *backoff.ExponentialBackOff) error {
	w.log.Info("connecting to chat", slog.String("addr", w.cfg.Addr), slog.String("nick", w.cfg.Nick))
	conn, err := w.dialer.DialContext(ctx, "tcp", w.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.cfg.Addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	login := []string{"PASS " + w.cfg.Pass, "NICK " + w.cfg.Nick}
	for _, ch := range w.cfg.Channels {
		login = append(login, "JOIN #"+ch)
	}
	for _, line := range login {
		if err := writeLine(conn, line); err != nil {
			return err
		}
	}

	pending := make(map[string]struct{}, len(w.cfg.Channels))
	for _, ch := range w.cfg.Channels {
		pending[ch] = struct{}{}
	}
	joined := func() {
		w.setReady(true)
		b.Reset()
		w.log.Info("chat ready", slog.Any("channels", w.cfg.Channels))
	}
	if len(pending) == 0 {
		joined()
	}

	var framer Framer
	buf := make([]byte, readBufSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, rerr := conn.Read(buf)
		if n > 0 {
			lines, ferr := framer.Feed(buf[:n])
			for _, line := range lines {
				if err := w.handle(ctx, conn, line, pending, joined); err != nil {
					return err
				}
			}
			if ferr != nil {
				return ferr
			}
		}
		if rerr != nil {
			var ne net.Error
			if errors.As(rerr, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", rerr)
		}
	}
}

func (w *Worker) handle(ctx context.Context, conn net.Conn, line string, pending map[string]struct{}, joined func()) error {
	if w.recorder != nil {
		if _, err := io.WriteString(w.recorder, line+"\n"); err != nil {
			w.log.Debug("record line failed", slog.Any("err", err))
		}
	}

	if m, ok := ParseMembership(line); ok {
		if m.Type == Join && strings.EqualFold(m.Username, w.cfg.Nick) {
			if _, waiting := pending[strings.ToLower(m.Channel)]; waiting {
				delete(pending, strings.ToLower(m.Channel))
				w.log.Debug("joined channel", slog.String("channel", m.Channel))
				if len(pending) == 0 {
					joined()
				}
			}
		}
		return nil
	}

	msg, ok := Parse(line)
	if !ok {
		if typ, _ := TypeOf(line); typ == Reconnect {
			return ErrServerReconnect
		}
		telemetry.ParseFailed()
		w.log.Debug("unparsed line", slog.String("line", line))
		return nil
	}
	switch msg.Type {
	case Ping:
		server := msg.Text
		if server == "" {
			server = pingServer
		}
		if err := writeLine(conn, "PONG :"+server); err != nil {
			return err
		}
		telemetry.PingAnswered()
		return nil
	case Reconnect:
		return ErrServerReconnect
	}

	telemetry.MessageReceived()
	select {
	case w.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeLine(conn net.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := io.WriteString(conn, line+"\r\n"); err != nil {
		return fmt.Errorf("write %s: %w", strings.Fields(line)[0], err)
	}
	return nil
}

// Package dispatch turns chat messages into gated command runs. A Dispatcher
// applies the blocklist, superuser and bot policy, resolves the text to a
// command tag and submits the run to the single command executor.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/simonsays/action"
	"github.com/onnwee/simonsays/blocklist"
	"github.com/onnwee/simonsays/chat"
	"github.com/onnwee/simonsays/command"
	"github.com/onnwee/simonsays/telemetry"
)

// DefaultPollInterval bounds how long Run waits for a message before it
// re-checks for shutdown.
const DefaultPollInterval = 100 * time.Millisecond

// ResetCommand is the superuser command that clears every cooldown.
const ResetCommand = "reset"

// BlockedChannelError aborts dispatch when a blocklisted channel is seen.
type BlockedChannelError struct {
	Channels []string
}

func (e *BlockedChannelError) Error() string {
	return "blocked channel: " + strings.Join(e.Channels, ", ")
}

// ExitCode is the process exit status for a blocked channel.
func (e *BlockedChannelError) ExitCode() int { return int(action.BlockedChannel) }

// Completion describes one dispatched command after it finished or was
// dropped.
type Completion struct {
	CorrelationID string
	Tag           string
	Username      string
	Channel       string
	Forced        bool
	Dropped       bool
	Outcomes      action.Outcomes
	Started       time.Time
	Finished      time.Time
}

// Reporter receives every Completion. It is called on the executor goroutine
// and must not block.
type Reporter interface {
	Report(Completion)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Completion)

func (f ReporterFunc) Report(c Completion) { f(c) }

// Policy lists the privileged senders.
type Policy struct {
	Superusers      []string
	SuperuserPrefix string
	Bots            []string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy sets superusers, their command prefix and bot accounts.
func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) {
		d.superusers = toSet(p.Superusers)
		d.bots = toSet(p.Bots)
		d.prefix = strings.ToLower(strings.TrimSpace(p.SuperuserPrefix))
	}
}

// WithBlocklist sets the channel and user blocklist.
func WithBlocklist(l *blocklist.List) Option {
	return func(d *Dispatcher) { d.blocked = l }
}

// WithReporter adds a completion sink.
func WithReporter(r Reporter) Option {
	return func(d *Dispatcher) { d.reporters = append(d.reporters, r) }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(p time.Duration) Option {
	return func(d *Dispatcher) { d.poll = p }
}

// Dispatcher is the main message loop. It is not safe for concurrent use;
// run exactly one.
type Dispatcher struct {
	registry *command.Registry
	exec     *command.Executor

	superusers map[string]struct{}
	bots       map[string]struct{}
	prefix     string
	blocked    *blocklist.List
	reporters  []Reporter
	poll       time.Duration
}

// New creates a Dispatcher over the given registry and executor.
func New(reg *command.Registry, exec *command.Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		exec:     exec,
		prefix:   "sudo",
		blocked:  blocklist.New(),
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CheckChannels returns a *BlockedChannelError naming every blocked channel.
func (d *Dispatcher) CheckChannels(channels ...string) error {
	if blocked := d.blocked.Blocked(channels...); len(blocked) > 0 {
		return &BlockedChannelError{Channels: blocked}
	}
	return nil
}

// Run consumes msgs until ctx is cancelled, msgs is closed, or a blocked
// channel is seen. A closed source returns nil.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan chat.Message) error {
	slog.Info("dispatcher started", slog.String("component", "dispatch"))
	defer slog.Info("dispatcher stopped", slog.String("component", "dispatch"))

	timer := time.NewTimer(d.poll)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := d.Handle(ctx, m); err != nil {
				return err
			}
		case <-timer.C:
			telemetry.SetExecutorBacklog(d.exec.Pending())
			telemetry.SetExecutorBusy(d.exec.Busy())
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.poll)
	}
}

// Handle applies the dispatch policy to one message. The only error it
// returns is *BlockedChannelError.
func (d *Dispatcher) Handle(ctx context.Context, m chat.Message) error {
	if m.Type != chat.Chat {
		slog.Debug("ignoring non-chat message", slog.String("type", m.Type.String()), slog.String("component", "dispatch"))
		return nil
	}
	if err := d.CheckChannels(m.Channel); err != nil {
		slog.Error("message from blocked channel", slog.String("channel", m.Channel), slog.String("component", "dispatch"))
		return err
	}
	if d.blocked.Contains(m.Username) {
		return nil
	}

	user := strings.ToLower(strings.TrimSpace(m.Username))
	text := strings.TrimSpace(m.Text)
	sudo := false
	if _, ok := d.superusers[user]; ok && d.prefix != "" && strings.HasPrefix(strings.ToLower(text), d.prefix) {
		text = strings.TrimSpace(text[len(d.prefix):])
		sudo = true
	}
	if sudo && strings.EqualFold(text, ResetCommand) {
		d.registry.ClearCooldowns()
		slog.Info("all cooldowns reset", slog.String("user", m.Username), slog.String("component", "dispatch"))
		return nil
	}

	_, isBot := d.bots[user]
	tag, ok := d.registry.Resolve(text)
	switch {
	case !ok && isBot && !sudo:
		tag = command.RandomTag
	case !ok:
		return nil
	case tag == command.RandomTag && !sudo:
		slog.Debug("random is reserved for bots and superusers", slog.String("user", m.Username), slog.String("component", "dispatch"))
		return nil
	}
	gated, ok := d.registry.Get(tag)
	if !ok {
		return nil
	}

	if !d.registry.Store().Enabled() {
		slog.Info("commands disabled, ignoring", slog.String("tag", tag), slog.String("user", m.Username), slog.String("component", "dispatch"))
		return nil
	}

	corr := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, corr)
	telemetry.LoggerWithCorr(ctx).Info("running command",
		slog.String("tag", tag),
		slog.String("user", m.Username),
		slog.String("channel", m.Channel),
		slog.Bool("superuser", sudo),
		slog.String("component", "dispatch"))

	base := Completion{
		CorrelationID: corr,
		Tag:           tag,
		Username:      m.Username,
		Channel:       m.Channel,
		Forced:        sudo,
		Started:       time.Now(),
	}
	job := command.Job{
		Tag: tag,
		Run: func() action.Outcomes { return gated.Run(sudo) },
		Done: func(out action.Outcomes, _ time.Duration) {
			c := base
			c.Outcomes = out
			c.Finished = time.Now()
			d.complete(ctx, c)
		},
	}
	if !d.exec.Submit(job) {
		telemetry.CommandDropped()
		c := base
		c.Dropped = true
		c.Outcomes = action.Of(action.Unknown)
		c.Finished = time.Now()
		d.complete(ctx, c)
	}
	return nil
}

// complete emits the single completion log line for a command.
func (d *Dispatcher) complete(ctx context.Context, c Completion) {
	_, span := telemetry.StartCommandSpan(ctx, c.Tag, c.Username, c.Channel, c.Forced)
	telemetry.EndCommandSpan(span, c.Outcomes.String(), c.Outcomes.Success(), c.Dropped)

	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("tag", c.Tag),
		slog.String("user", c.Username),
		slog.Duration("elapsed", c.Finished.Sub(c.Started)),
		slog.String("component", "dispatch"),
	)
	switch {
	case c.Dropped:
		log.Warn("command dropped", slog.String("reason", telemetry.ErrDropped.Error()))
	case c.Outcomes.Success():
		log.Info("command done")
	default:
		log.Info("command failed", slog.String("outcomes", c.Outcomes.String()))
	}
	telemetry.CommandDispatched(c.Tag, c.Outcomes.String())

	for _, r := range d.reporters {
		r.Report(c)
	}
}

func toSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			m[n] = struct{}{}
		}
	}
	return m
}

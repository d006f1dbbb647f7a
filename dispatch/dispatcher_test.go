package dispatch

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/onnwee/simonsays/action"
	"github.com/onnwee/simonsays/blocklist"
	"github.com/onnwee/simonsays/chat"
	"github.com/onnwee/simonsays/command"
)

type harness struct {
	t        *testing.T
	store    *command.MemoryStore
	registry *command.Registry
	exec     *command.Executor
	device   *action.Recorder
	done     chan Completion
	d        *Dispatcher
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	fwd := command.DefaultConfig("forward")
	fwd.Aliases = []string{"forward", "fwd"}
	fwd.Cooldown = 3 * time.Second
	crouch := command.DefaultConfig("crouch")
	crouch.Enabled = false
	random := command.DefaultConfig(command.RandomTag)

	store, err := command.NewMemoryStore(map[string]command.Config{
		"forward":         fwd,
		"crouch":          crouch,
		command.RandomTag: random,
	})
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		t:        t,
		store:    store,
		registry: command.NewRegistry(store),
		exec:     command.NewExecutor(8),
		device:   &action.Recorder{},
		done:     make(chan Completion, 16),
	}
	mustRegister := func(tag string, a action.Runner) {
		if _, err := h.registry.Register(tag, a); err != nil {
			t.Fatal(err)
		}
	}
	mustRegister("forward", action.Sequence{
		action.PressKey{Device: h.device, Key: "w"},
		action.Wait{D: 5 * time.Millisecond},
		action.ReleaseKey{Device: h.device, Key: "w"},
	})
	mustRegister("crouch", action.PressRelease(h.device, "ctrl", time.Millisecond))
	if _, err := h.registry.RegisterRandom(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.exec.Run(ctx)

	opts = append([]Option{
		WithPolicy(Policy{Superusers: []string{"DrGreenGiant"}, SuperuserPrefix: "sudo", Bots: []string{"nightbot"}}),
		WithReporter(ReporterFunc(func(c Completion) { h.done <- c })),
	}, opts...)
	h.d = New(h.registry, h.exec, opts...)
	return h
}

func chatMsg(user, text string) chat.Message {
	return chat.Message{Type: chat.Chat, Username: user, Channel: "drgreengiant", Text: text}
}

func (h *harness) send(user, text string) {
	h.t.Helper()
	if err := h.d.Handle(context.Background(), chatMsg(user, text)); err != nil {
		h.t.Fatalf("Handle(%q, %q) = %v", user, text, err)
	}
}

func (h *harness) expect() Completion {
	h.t.Helper()
	select {
	case c := <-h.done:
		return c
	case <-time.After(2 * time.Second):
		h.t.Fatal("no completion reported")
	}
	return Completion{}
}

func (h *harness) expectNone() {
	h.t.Helper()
	select {
	case c := <-h.done:
		h.t.Fatalf("unexpected completion %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestForwardThenCooldown(t *testing.T) {
	h := newHarness(t)

	h.send("viewer", "forward")
	first := h.expect()
	if first.Tag != "forward" || first.Outcomes != action.Of(action.Ok) || first.Username != "viewer" {
		t.Fatalf("first = %+v, want forward {Ok}", first)
	}
	if ops := h.device.Ops(); !slices.Equal(ops, []string{"press_key:w", "release_key:w"}) {
		t.Fatalf("device ops = %v", ops)
	}

	h.send("viewer", "forward")
	second := h.expect()
	if second.Outcomes != action.Of(action.OnCooldown) {
		t.Fatalf("second = %v, want {OnCooldown}", second.Outcomes)
	}
	if len(h.device.Calls()) != 2 {
		t.Fatal("action ran during cooldown")
	}
	if first.CorrelationID == "" || first.CorrelationID == second.CorrelationID {
		t.Fatalf("correlation ids %q %q", first.CorrelationID, second.CorrelationID)
	}
}

func TestAliasAndTrailingText(t *testing.T) {
	h := newHarness(t)
	h.send("viewer", "  FWD go go go")
	if c := h.expect(); c.Tag != "forward" || !c.Outcomes.Success() {
		t.Fatalf("completion = %+v", c)
	}
}

func TestUnknownTextIgnored(t *testing.T) {
	h := newHarness(t)
	h.send("viewer", "hello chat")
	h.expectNone()
}

func TestNonChatMessagesIgnored(t *testing.T) {
	h := newHarness(t)
	if err := h.d.Handle(context.Background(), chat.Message{Type: chat.Notice, Channel: "drgreengiant", Text: "forward"}); err != nil {
		t.Fatal(err)
	}
	h.expectNone()
}

func TestBlockedChannel(t *testing.T) {
	h := newHarness(t, WithBlocklist(blocklist.FromNames("evilchannel")))

	err := h.d.Handle(context.Background(), chat.Message{Type: chat.Chat, Username: "v", Channel: "EvilChannel", Text: "forward"})
	var blocked *BlockedChannelError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want *BlockedChannelError", err)
	}
	if blocked.ExitCode() != 8 {
		t.Fatalf("exit code = %d, want 8", blocked.ExitCode())
	}
	h.expectNone()

	if err := h.d.CheckChannels("drgreengiant", "evilchannel"); !errors.As(err, &blocked) || len(blocked.Channels) != 1 {
		t.Fatalf("CheckChannels = %v", err)
	}
	if err := h.d.CheckChannels("drgreengiant"); err != nil {
		t.Fatalf("CheckChannels(clean) = %v", err)
	}
}

func TestBlockedUserSilentlyDropped(t *testing.T) {
	h := newHarness(t, WithBlocklist(blocklist.FromNames("troll")))
	h.send("Troll", "forward")
	h.expectNone()
	if len(h.device.Calls()) != 0 {
		t.Fatal("blocked user's command ran")
	}
}

func TestBotFallsBackToRandom(t *testing.T) {
	h := newHarness(t)
	h.send("NightBot", "Thanks for the follow!")
	c := h.expect()
	if c.Tag != command.RandomTag || !c.Outcomes.Success() {
		t.Fatalf("bot completion = %+v, want random {Ok}", c)
	}
	if len(h.device.Calls()) == 0 {
		t.Fatal("random ran nothing")
	}
}

func TestRandomReservedForBotsAndSuperusers(t *testing.T) {
	h := newHarness(t)
	h.send("viewer", "random")
	h.expectNone()
	h.send("nightbot", "random")
	h.expectNone()

	h.send("drgreengiant", "sudo random")
	if c := h.expect(); c.Tag != command.RandomTag || !c.Forced {
		t.Fatalf("sudo random = %+v", c)
	}
}

func TestSuperuserForcesDisabledCommand(t *testing.T) {
	h := newHarness(t)

	h.send("viewer", "crouch")
	if c := h.expect(); c.Outcomes != action.Of(action.Disabled) {
		t.Fatalf("viewer crouch = %v, want {Disabled}", c.Outcomes)
	}
	h.send("viewer", "sudo crouch")
	h.expectNone()

	h.send("DrGreenGiant", "SUDO crouch")
	c := h.expect()
	if !c.Forced || !c.Outcomes.Success() {
		t.Fatalf("sudo crouch = %+v", c)
	}
}

func TestSudoReset(t *testing.T) {
	h := newHarness(t)
	h.send("viewer", "forward")
	h.expect()
	h.send("viewer", "forward")
	if c := h.expect(); c.Outcomes != action.Of(action.OnCooldown) {
		t.Fatalf("want cooldown, got %v", c.Outcomes)
	}

	h.send("drgreengiant", "sudo reset")
	h.expectNone()

	h.send("viewer", "forward")
	if c := h.expect(); !c.Outcomes.Success() {
		t.Fatalf("after reset = %v, want {Ok}", c.Outcomes)
	}
}

func TestGlobalDisableDrops(t *testing.T) {
	h := newHarness(t)
	h.store.SetEnabled(false)
	h.send("viewer", "forward")
	h.send("drgreengiant", "sudo forward")
	h.expectNone()
}

func TestFullExecutorReportsDrop(t *testing.T) {
	store, err := command.NewMemoryStore(map[string]command.Config{"forward": command.DefaultConfig("forward")})
	if err != nil {
		t.Fatal(err)
	}
	reg := command.NewRegistry(store)
	if _, err := reg.Register("forward", action.Wait{}); err != nil {
		t.Fatal(err)
	}
	exec := command.NewExecutor(1) // never started
	done := make(chan Completion, 4)
	d := New(reg, exec, WithReporter(ReporterFunc(func(c Completion) { done <- c })))

	for i := 0; i < 2; i++ {
		if err := d.Handle(context.Background(), chatMsg("viewer", "forward")); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case c := <-done:
		if !c.Dropped || c.Outcomes != action.Of(action.Unknown) {
			t.Fatalf("completion = %+v, want dropped", c)
		}
	case <-time.After(time.Second):
		t.Fatal("drop not reported")
	}
}

func TestRunLoop(t *testing.T) {
	h := newHarness(t, WithPollInterval(5*time.Millisecond))
	msgs := make(chan chat.Message, 2)
	msgs <- chatMsg("viewer", "forward")
	close(msgs)
	if err := h.d.Run(context.Background(), msgs); err != nil {
		t.Fatalf("Run = %v", err)
	}
	h.expect()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.d.Run(ctx, make(chan chat.Message)) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunStopsOnBlockedChannel(t *testing.T) {
	h := newHarness(t, WithBlocklist(blocklist.FromNames("bad")))
	msgs := make(chan chat.Message, 1)
	msgs <- chat.Message{Type: chat.Chat, Channel: "bad", Text: "forward"}
	var blocked *BlockedChannelError
	if err := h.d.Run(context.Background(), msgs); !errors.As(err, &blocked) {
		t.Fatalf("Run = %v, want *BlockedChannelError", err)
	}
}

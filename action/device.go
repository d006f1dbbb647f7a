package action

import (
	"log/slog"
	"sync"
	"time"
)

// Device is the keyboard/mouse backend leaves drive. Implementations are
// assumed reliable; they report no errors.
type Device interface {
	PressKey(code string)
	ReleaseKey(code string)
	PressButton(id string)
	ReleaseButton(id string)
	MoveRelative(dx, dy int)
}

// LogDevice is a dry-run Device that only logs each call. It is used when no
// OS input backend is linked into the binary.
type LogDevice struct {
	Logger *slog.Logger
}

func (d LogDevice) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d LogDevice) PressKey(code string) {
	d.logger().Debug("press key", slog.String("key", code), slog.String("component", "hid"))
}

func (d LogDevice) ReleaseKey(code string) {
	d.logger().Debug("release key", slog.String("key", code), slog.String("component", "hid"))
}

func (d LogDevice) PressButton(id string) {
	d.logger().Debug("press button", slog.String("button", id), slog.String("component", "hid"))
}

func (d LogDevice) ReleaseButton(id string) {
	d.logger().Debug("release button", slog.String("button", id), slog.String("component", "hid"))
}

func (d LogDevice) MoveRelative(dx, dy int) {
	d.logger().Debug("move mouse", slog.Int("dx", dx), slog.Int("dy", dy), slog.String("component", "hid"))
}

// Call is one Device invocation captured by a Recorder.
type Call struct {
	Op   string // press_key, release_key, press_button, release_button, move
	Arg  string
	DX   int
	DY   int
	Time time.Time
}

// Recorder is a Device that remembers every call. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) record(c Call) {
	c.Time = time.Now()
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *Recorder) PressKey(code string)    { r.record(Call{Op: "press_key", Arg: code}) }
func (r *Recorder) ReleaseKey(code string)  { r.record(Call{Op: "release_key", Arg: code}) }
func (r *Recorder) PressButton(id string)   { r.record(Call{Op: "press_button", Arg: id}) }
func (r *Recorder) ReleaseButton(id string) { r.record(Call{Op: "release_button", Arg: id}) }
func (r *Recorder) MoveRelative(dx, dy int) { r.record(Call{Op: "move", DX: dx, DY: dy}) }

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the recorded operations as "op:arg" strings, handy in tests.
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		if c.Op == "move" {
			out = append(out, c.Op)
			continue
		}
		out = append(out, c.Op+":"+c.Arg)
	}
	return out
}

// Package action implements the composable units of device work that chat
// commands run: leaves (key, button, mouse, wait) and composites (sequence,
// repeat, repeat-with-wait). Every Action reports an Outcomes set; a
// composite reports the union of its children.
package action

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrRecalculateFixedWait is returned when a RepeatWithWait is asked to
// resample a wait that has no random range.
var ErrRecalculateFixedWait = errors.New("cannot recalculate wait time for non-random wait")

// ErrIncompleteRepeat is returned when a RepeatWithWait lacks its action or wait.
var ErrIncompleteRepeat = errors.New("repeat with wait needs both an action and a wait")

// Runner is anything that can be run with a force flag and report outcomes.
type Runner interface {
	Run(force bool) Outcomes
}

// Action is a unit of device work. force is propagated from a superuser or
// forced command down to every child. The set of Actions is closed to this
// package.
type Action interface {
	Runner
	isAction()
}

// Delay is an Action that only waits.
type Delay interface {
	Action
	Duration() time.Duration
}

// PressKey presses (without releasing) a keyboard key.
type PressKey struct {
	Device Device
	Key    string
}

func (a PressKey) Run(bool) Outcomes { a.Device.PressKey(a.Key); return Of(Ok) }
func (PressKey) isAction()           {}

// ReleaseKey releases a keyboard key.
type ReleaseKey struct {
	Device Device
	Key    string
}

func (a ReleaseKey) Run(bool) Outcomes { a.Device.ReleaseKey(a.Key); return Of(Ok) }
func (ReleaseKey) isAction()           {}

// PressButton presses (without releasing) a mouse button.
type PressButton struct {
	Device Device
	Button string
}

func (a PressButton) Run(bool) Outcomes { a.Device.PressButton(a.Button); return Of(Ok) }
func (PressButton) isAction()           {}

// ReleaseButton releases a mouse button.
type ReleaseButton struct {
	Device Device
	Button string
}

func (a ReleaseButton) Run(bool) Outcomes { a.Device.ReleaseButton(a.Button); return Of(Ok) }
func (ReleaseButton) isAction()           {}

// MoveMouse moves the pointer relative to its current position.
type MoveMouse struct {
	Device Device
	DX, DY int
}

func (a MoveMouse) Run(bool) Outcomes { a.Device.MoveRelative(a.DX, a.DY); return Of(Ok) }
func (MoveMouse) isAction()           {}

// Wait blocks the running goroutine for a fixed duration.
type Wait struct {
	D time.Duration
}

func (w Wait) Run(bool) Outcomes {
	time.Sleep(w.D)
	return Of(Ok)
}

func (w Wait) Duration() time.Duration { return w.D }
func (Wait) isAction()                 {}

// WaitRandom waits for a duration sampled uniformly from [Min, Max]. The sample
// is taken at construction and only changes through Resample; Run never
// resamples. A WaitRandom belongs to exactly one parent.
type WaitRandom struct {
	min, max time.Duration
	d        time.Duration
}

// NewWaitRandom samples the first duration immediately.
func NewWaitRandom(lo, hi time.Duration) (*WaitRandom, error) {
	if lo < 0 || hi < lo {
		return nil, fmt.Errorf("invalid random wait range [%s, %s]", lo, hi)
	}
	w := &WaitRandom{min: lo, max: hi}
	w.Resample()
	return w, nil
}

// Resample draws a new duration from the range.
func (w *WaitRandom) Resample() {
	w.d = w.min
	if span := w.max - w.min; span > 0 {
		w.d += time.Duration(rand.Int64N(int64(span) + 1))
	}
}

func (w *WaitRandom) Duration() time.Duration { return w.d }

func (w *WaitRandom) Run(bool) Outcomes {
	time.Sleep(w.d)
	return Of(Ok)
}

func (*WaitRandom) isAction() {}

// Sequence runs every child in order, whatever their outcomes.
type Sequence []Action

func (s Sequence) Run(force bool) Outcomes {
	var out Outcomes
	for _, a := range s {
		out = out.Union(a.Run(force))
	}
	return out
}

func (Sequence) isAction() {}

// Repeat runs Action Times times.
type Repeat struct {
	Action Action
	Times  int
}

func (r Repeat) Run(force bool) Outcomes {
	var out Outcomes
	for i := 0; i < r.Times; i++ {
		out = out.Union(r.Action.Run(force))
	}
	return out
}

func (Repeat) isAction() {}

// RepeatWithWait runs action then wait, times times.
type RepeatWithWait struct {
	action      Action
	times       int
	wait        Delay
	recalculate bool
}

// NewRepeatWithWait validates the combination up front: action and wait are
// required and recalculate is only legal over a *WaitRandom.
func NewRepeatWithWait(a Action, times int, wait Delay, recalculate bool) (*RepeatWithWait, error) {
	if a == nil || wait == nil {
		return nil, ErrIncompleteRepeat
	}
	if _, ok := wait.(*WaitRandom); recalculate && !ok {
		return nil, ErrRecalculateFixedWait
	}
	return &RepeatWithWait{action: a, times: times, wait: wait, recalculate: recalculate}, nil
}

func (r *RepeatWithWait) Run(force bool) Outcomes {
	var out Outcomes
	for i := 0; i < r.times; i++ {
		out = out.Union(r.action.Run(force))
		if r.recalculate {
			r.wait.(*WaitRandom).Resample()
		}
		out = out.Union(r.wait.Run(force))
	}
	return out
}

func (*RepeatWithWait) isAction() {}

// Choice runs one candidate picked uniformly at random. Candidates is called
// on every run so the set can track live registrations.
type Choice struct {
	Candidates func() []Runner
}

func (c Choice) Run(force bool) Outcomes {
	var pool []Runner
	if c.Candidates != nil {
		pool = c.Candidates()
	}
	if len(pool) == 0 {
		return Of(LookupFailure)
	}
	return pool[rand.IntN(len(pool))].Run(force)
}

func (Choice) isAction() {}

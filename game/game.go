// Package game holds the default command table: which tags exist, their
// default chat configuration and the action tree each one runs.
package game

import (
	"fmt"
	"time"

	"github.com/onnwee/simonsays/action"
	"github.com/onnwee/simonsays/command"
)

const (
	LookDistance = 500
	PeekDistance = 250
	// FarDistance looks straight at the floor or ceiling from anywhere.
	FarDistance = 4096

	ToggleHold     = 100 * time.Millisecond
	WalkDuration   = 3 * time.Second
	SprintDuration = 3 * time.Second
	TalkDuration   = 10 * time.Second

	smoothSteps = 10
	smoothPause = 10 * time.Millisecond
)

// RandomChance is the default trigger chance of the random command.
const RandomChance = 10

// Option configures how the table is built.
type Option func(*builder)

// WithKeybinds overrides DefaultKeybinds.
func WithKeybinds(kb Keybinds) Option {
	return func(b *builder) { b.keys = kb }
}

// WithTimeScale multiplies every hold, pause and walk duration. Zero makes
// every action instantaneous.
func WithTimeScale(f float64) Option {
	return func(b *builder) { b.scale = f }
}

type builder struct {
	dev   action.Device
	keys  Keybinds
	scale float64
}

func (b *builder) d(base time.Duration) time.Duration {
	return time.Duration(float64(base) * b.scale)
}

func (b *builder) wait(base time.Duration) action.Wait { return action.Wait{D: b.d(base)} }

func (b *builder) tap(key string) action.Sequence {
	return action.PressRelease(b.dev, key, b.d(ToggleHold))
}

func (b *builder) hold(key string, d time.Duration) action.Sequence {
	return action.PressRelease(b.dev, key, b.d(d))
}

func (b *builder) click(button string) action.Sequence {
	return action.Click(b.dev, button, b.d(ToggleHold))
}

func (b *builder) smooth(dir action.Direction, distance int) action.Action {
	dx, dy := dir.Cartesian(distance)
	m, err := action.MoveSmooth(b.dev, dx, dy, smoothSteps, b.d(smoothPause))
	if err != nil {
		panic(err) // smoothSteps is positive
	}
	return m
}

// repeat never recalculates, so NewRepeatWithWait cannot fail.
func (b *builder) repeat(a action.Action, times int, pause time.Duration) action.Action {
	r, _ := action.NewRepeatWithWait(a, times, b.wait(pause), false)
	return r
}

// repeatBetween repeats a a uniformly drawn number of times in [lo, hi] on
// every run.
func (b *builder) repeatBetween(a action.Action, lo, hi int, pause time.Duration) action.Action {
	candidates := make([]action.Runner, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		candidates = append(candidates, b.repeat(a, n, pause))
	}
	return action.Choice{Candidates: func() []action.Runner { return candidates }}
}

// leftOrRight picks the horizontal direction on every run.
func leftOrRight(build func(action.Direction) action.Action) action.Action {
	candidates := []action.Runner{build(action.Left), build(action.Right)}
	return action.Choice{Candidates: func() []action.Runner { return candidates }}
}

// Command is one entry of the table.
type Command struct {
	Tag    string
	Config command.Config
	Action action.Action
}

// Commands builds the full table in registration order, random excluded.
func Commands(dev action.Device, opts ...Option) []Command {
	b := &builder{dev: dev, keys: DefaultKeybinds(), scale: 1}
	for _, opt := range opts {
		opt(b)
	}
	k := b.keys

	walk := func(key string) action.Action { return b.hold(key, WalkDuration) }
	sprint := func(key string) action.Action {
		return action.Sequence{
			action.PressKey{Device: b.dev, Key: k.Sprint},
			b.hold(key, SprintDuration),
			action.ReleaseKey{Device: b.dev, Key: k.Sprint},
		}
	}
	use := b.click(k.Use)
	drop := b.tap(k.Drop)
	sw := b.tap(k.Switch)
	quickDrop := action.PressRelease(b.dev, k.Drop, b.d(10*time.Millisecond))
	quickUse := action.Click(b.dev, k.Use, b.d(10*time.Millisecond))
	lookFar := func(dir action.Direction) action.Action {
		dx, dy := dir.Cartesian(LookDistance)
		m, err := action.MoveSmooth(b.dev, dx, dy, smoothSteps, b.d(5*time.Millisecond))
		if err != nil {
			panic(err)
		}
		return action.Repeat{Action: m, Times: 4}
	}
	nod := func(first, second action.Direction) action.Action {
		return action.Sequence{b.smooth(first, PeekDistance), b.wait(330 * time.Millisecond), b.smooth(second, PeekDistance)}
	}

	allKeys := []string{k.Forward, k.Right, k.Backward, k.Left}
	var press, release action.Sequence
	for _, key := range allKeys {
		press = append(press, action.PressKey{Device: b.dev, Key: key})
		release = append(release, action.ReleaseKey{Device: b.dev, Key: key})
	}
	freezePause := 10 * time.Millisecond

	entries := []struct {
		tag string
		a   action.Action
	}{
		{"forward", walk(k.Forward)},
		{"backward", walk(k.Backward)},
		{"left", walk(k.Left)},
		{"right", walk(k.Right)},
		{"sprint_forward", sprint(k.Forward)},
		{"sprint_backward", sprint(k.Backward)},
		{"sprint_left", sprint(k.Left)},
		{"sprint_right", sprint(k.Right)},
		{"look_up", b.smooth(action.Up, LookDistance)},
		{"look_down", b.smooth(action.Down, LookDistance)},
		{"look_left", b.smooth(action.Left, LookDistance)},
		{"look_right", b.smooth(action.Right, LookDistance)},
		{"peek_up", b.smooth(action.Up, PeekDistance)},
		{"peek_down", b.smooth(action.Down, PeekDistance)},
		{"peek_left", b.smooth(action.Left, PeekDistance)},
		{"peek_right", b.smooth(action.Right, PeekDistance)},
		{"crouch", b.tap(k.Crouch)},
		{"use", use},
		{"pickup", b.tap(k.Pickup)},
		{"drop", drop},
		{"place", b.tap(k.Place)},
		{"torch", b.tap(k.Torch)},
		{"switch", sw},
		{"journal", b.tap(k.Journal)},
		{"talk", b.hold(k.Talk, TalkDuration)},
		{"radio", b.hold(k.Radio, TalkDuration)},

		{"box", action.Sequence{use, b.wait(500 * time.Millisecond), drop}},
		{"cycle", b.repeatBetween(sw, 5, 10, 250*time.Millisecond)},
		{"rekt", b.repeat(action.Sequence{sw, b.wait(250 * time.Millisecond), use}, 3, 250*time.Millisecond)},
		{"disco", b.repeatBetween(b.tap(k.Torch), 5, 10, 330*time.Millisecond)},
		{"yeet", b.repeat(action.Sequence{drop, b.wait(100 * time.Millisecond), sw}, 3, 100*time.Millisecond)},
		{"feet", b.smooth(action.Down, FarDistance)},
		{"yoga", b.smooth(action.Up, FarDistance)},
		{"freeze", action.Repeat{
			Action: action.Sequence{press, b.wait(freezePause), release, b.wait(freezePause)},
			Times:  int(5 * time.Second / 4 / freezePause),
		}},
		{"headbang", b.repeatBetween(nod(action.Up, action.Down), 5, 10, 330*time.Millisecond)},
		{"headshake", b.repeatBetween(nod(action.Left, action.Right), 5, 10, 330*time.Millisecond)},
		{"spin", leftOrRight(func(dir action.Direction) action.Action {
			return b.repeatBetween(action.Look(b.dev, dir, LookDistance/5), 25, 50, 15*time.Millisecond)
		})},
		{"tornado", leftOrRight(func(dir action.Direction) action.Action {
			return action.Repeat{Action: action.Sequence{lookFar(dir), quickDrop, sw}, Times: 4}
		})},
		{"hurricane", leftOrRight(func(dir action.Direction) action.Action {
			return action.Repeat{Action: action.Sequence{lookFar(dir), quickUse, quickDrop, sw}, Times: 4}
		})},
		{"teabag", b.repeatBetween(b.tap(k.Crouch), 5, 10, 500*time.Millisecond)},
	}

	out := make([]Command, 0, len(entries))
	for _, e := range entries {
		out = append(out, Command{Tag: e.tag, Config: command.DefaultConfig(e.tag), Action: e.a})
	}
	return out
}

// DefaultConfigs returns the default chat configuration of every tag,
// random included.
func DefaultConfigs() map[string]command.Config {
	configs := make(map[string]command.Config)
	for _, c := range Commands(action.LogDevice{}) {
		configs[c.Tag] = c.Config
	}
	random := command.DefaultConfig(command.RandomTag)
	random.Chance = RandomChance
	configs[command.RandomTag] = random
	return configs
}

// Register adds every command and then random to reg. The store behind reg
// must hold a config for each tag, e.g. seeded from DefaultConfigs.
func Register(reg *command.Registry, dev action.Device, opts ...Option) error {
	for _, c := range Commands(dev, opts...) {
		if _, err := reg.Register(c.Tag, c.Action); err != nil {
			return fmt.Errorf("game: %w", err)
		}
	}
	if _, err := reg.RegisterRandom(); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	return nil
}

package command

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/onnwee/simonsays/action"
)

// GatedCommand binds a tag's live Config to an Action and keeps the cooldown
// clock. One instance exists per tag for the life of the process.
type GatedCommand struct {
	tag             string
	store           ConfigStore
	action          action.Runner
	forceUnderlying bool

	now  func() time.Time
	roll func() int

	mu       sync.Mutex
	lastUsed time.Time
}

// Option configures a GatedCommand.
type Option func(*GatedCommand)

// WithClock replaces time.Now for cooldown accounting.
func WithClock(now func() time.Time) Option {
	return func(g *GatedCommand) { g.now = now }
}

// WithRoll replaces the chance roll. It must return a value in [1,100]; a
// roll above the configured chance is a miss.
func WithRoll(roll func() int) Option {
	return func(g *GatedCommand) { g.roll = roll }
}

// WithForceUnderlying runs the bound action forced once the gate has passed.
func WithForceUnderlying() Option {
	return func(g *GatedCommand) { g.forceUnderlying = true }
}

// NewGatedCommand builds the gate for tag.
func NewGatedCommand(tag string, store ConfigStore, a action.Runner, opts ...Option) *GatedCommand {
	g := &GatedCommand{
		tag:    tag,
		store:  store,
		action: a,
		now:    time.Now,
		roll:   func() int { return rand.IntN(100) + 1 },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tag returns the command's tag.
func (g *GatedCommand) Tag() string { return g.tag }

// Run evaluates the gate and, when it passes, runs the action. The steps
// short-circuit in order: forced bypass, enabled, cooldown, chance. A chance
// miss still counts as a use and restarts the cooldown.
func (g *GatedCommand) Run(force bool) action.Outcomes {
	cfg, ok := g.store.Get(g.tag)
	if !ok {
		return action.Of(action.LookupFailure)
	}

	g.mu.Lock()
	if !force && !cfg.Forced {
		if !cfg.Enabled {
			g.mu.Unlock()
			slog.Debug("command disabled", slog.String("tag", g.tag), slog.String("component", "gate"))
			return action.Of(action.Disabled)
		}
		if g.onCooldown(cfg) {
			g.mu.Unlock()
			slog.Debug("command on cooldown", slog.String("tag", g.tag), slog.String("component", "gate"))
			return action.Of(action.OnCooldown)
		}
		if g.roll() > cfg.Chance {
			g.lastUsed = g.now()
			g.mu.Unlock()
			slog.Debug("command missed random chance", slog.String("tag", g.tag), slog.String("component", "gate"))
			return action.Of(action.RandomChanceMiss)
		}
	}
	g.lastUsed = g.now()
	g.mu.Unlock()

	return g.action.Run(force || g.forceUnderlying)
}

func (g *GatedCommand) onCooldown(cfg Config) bool {
	if g.lastUsed.IsZero() || cfg.Cooldown <= 0 {
		return false
	}
	return g.now().Sub(g.lastUsed) < cfg.Cooldown
}

// ClearCooldown makes the command immediately usable again.
func (g *GatedCommand) ClearCooldown() {
	g.mu.Lock()
	g.lastUsed = time.Time{}
	g.mu.Unlock()
}

// LastUsed reports when the cooldown clock was last reset.
func (g *GatedCommand) LastUsed() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastUsed
}

package command

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/simonsays/action"
)

// RandomTag is the tag of the command that runs another command at random.
const RandomTag = "random"

// Registry keeps gated commands in registration order and resolves chat text
// to a tag through the live aliases.
type Registry struct {
	store ConfigStore

	mu       sync.RWMutex
	order    []string
	commands map[string]*GatedCommand
}

// NewRegistry returns an empty registry reading configs from store.
func NewRegistry(store ConfigStore) *Registry {
	return &Registry{store: store, commands: make(map[string]*GatedCommand)}
}

// Store returns the config store backing the registry.
func (r *Registry) Store() ConfigStore { return r.store }

// Register binds tag to a. The store must already hold a config for tag;
// registering a tag twice is an error.
func (r *Registry) Register(tag string, a action.Runner, opts ...Option) (*GatedCommand, error) {
	if _, ok := r.store.Get(tag); !ok {
		return nil, fmt.Errorf("register %q: %w", tag, ErrMissingConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[tag]; exists {
		return nil, fmt.Errorf("register %q: already registered", tag)
	}
	g := NewGatedCommand(tag, r.store, a, opts...)
	r.commands[tag] = g
	r.order = append(r.order, tag)
	slog.Debug("command registered", slog.String("tag", tag), slog.String("component", "registry"))
	return g, nil
}

// RegisterRandom registers RandomTag as a command that runs one of the other
// registered commands, chosen uniformly, forced.
func (r *Registry) RegisterRandom(opts ...Option) (*GatedCommand, error) {
	choice := action.Choice{Candidates: func() []action.Runner {
		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]action.Runner, 0, len(r.order))
		for _, tag := range r.order {
			if tag != RandomTag {
				out = append(out, r.commands[tag])
			}
		}
		return out
	}}
	return r.Register(RandomTag, choice, append([]Option{WithForceUnderlying()}, opts...)...)
}

// Get returns the command registered under tag.
func (r *Registry) Get(tag string) (*GatedCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.commands[tag]
	return g, ok
}

// Tags returns the registered tags in registration order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Resolve returns the first tag, in registration order, whose aliases prefix
// text. When two tags both match, registration order decides.
func (r *Registry) Resolve(text string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tag := range r.order {
		cfg, ok := r.store.Get(tag)
		if ok && cfg.Matches(text) {
			return tag, true
		}
	}
	return "", false
}

// ClearCooldowns resets every command's cooldown clock.
func (r *Registry) ClearCooldowns() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.commands {
		g.ClearCooldown()
	}
}

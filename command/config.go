// Package command binds chat commands to actions. It owns the live
// per-command configuration, the gate that decides whether a command may run
// (enabled, cooldown, trigger chance, forced), the alias table used to
// resolve chat text to a command tag, and the single-worker executor that
// serialises device work.
package command

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnknownTag is returned when a tag has no configuration.
	ErrUnknownTag = errors.New("unknown command tag")
	// ErrMissingConfig is returned when registering a command whose tag has
	// no configuration in the store.
	ErrMissingConfig = errors.New("command has no config")
)

// Config is the user-tunable behaviour of one command.
type Config struct {
	Aliases  []string      `json:"aliases"`
	Enabled  bool          `json:"enabled"`
	Cooldown time.Duration `json:"cooldown"`
	Chance   int           `json:"chance"` // 0..100, 100 always triggers
	Forced   bool          `json:"forced"`
}

// DefaultConfig is enabled, no cooldown, always triggers, with the tag
// (underscores as spaces) as its only alias.
func DefaultConfig(tag string) Config {
	return Config{
		Aliases: []string{strings.ReplaceAll(tag, "_", " ")},
		Enabled: true,
		Chance:  100,
	}
}

// Validate checks the invariants of a Config.
func (c Config) Validate() error {
	if len(c.Aliases) == 0 {
		return errors.New("aliases must not be empty")
	}
	for _, a := range c.Aliases {
		if strings.TrimSpace(a) == "" {
			return errors.New("aliases must not be blank")
		}
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %s", c.Cooldown)
	}
	if c.Chance < 0 || c.Chance > 100 {
		return fmt.Errorf("chance must be within 0..100, got %d", c.Chance)
	}
	return nil
}

// Matches reports whether text (trimmed, lower-cased) starts with one of the
// aliases.
func (c Config) Matches(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, a := range c.Aliases {
		if strings.HasPrefix(text, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

func (c Config) clone() Config {
	c.Aliases = slices.Clone(c.Aliases)
	return c
}

// ConfigStore is the live configuration read by the gate on every run and
// written concurrently by the HTTP API or superuser commands.
type ConfigStore interface {
	Get(tag string) (Config, bool)
	Set(tag string, cfg Config) error
	Update(tag string, fn func(*Config)) error
	Snapshot() map[string]Config
	Enabled() bool
	SetEnabled(bool)
}

// MemoryStore is an in-memory ConfigStore guarded by a RWMutex. Readers
// receive copies.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]Config
	enabled bool
}

// NewMemoryStore returns a globally enabled store seeded with configs.
func NewMemoryStore(configs map[string]Config) (*MemoryStore, error) {
	s := &MemoryStore{configs: make(map[string]Config, len(configs)), enabled: true}
	for tag, cfg := range configs {
		if err := s.Set(tag, cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) Get(tag string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[tag]
	if !ok {
		return Config{}, false
	}
	return cfg.clone(), true
}

func (s *MemoryStore) Set(tag string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %q: %w", tag, err)
	}
	s.mu.Lock()
	s.configs[tag] = cfg.clone()
	s.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the tag's config and stores it if the result
// is valid.
func (s *MemoryStore) Update(tag string, fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	cfg = cfg.clone()
	fn(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %q: %w", tag, err)
	}
	s.configs[tag] = cfg
	return nil
}

func (s *MemoryStore) Snapshot() map[string]Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Config, len(s.configs))
	for tag, cfg := range s.configs {
		out[tag] = cfg.clone()
	}
	return out
}

// Tags returns the configured tags in sorted order.
func (s *MemoryStore) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.configs))
}

func (s *MemoryStore) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *MemoryStore) SetEnabled(v bool) {
	s.mu.Lock()
	s.enabled = v
	s.mu.Unlock()
}

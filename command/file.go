package command

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileEntry is one [commands.<tag>] table. Absent keys keep the default.
type fileEntry struct {
	Command      any   `toml:"command,omitempty"` // string or array of strings
	Enabled      *bool `toml:"enabled,omitempty"`
	Cooldown     any   `toml:"cooldown,omitempty"` // seconds, integer or float
	RandomChance *int  `toml:"random_chance,omitempty"`
	Forced       *bool `toml:"forced,omitempty"`
}

func (e fileEntry) apply(cfg *Config) error {
	switch v := e.Command.(type) {
	case nil:
	case string:
		cfg.Aliases = []string{v}
	case []any:
		aliases := make([]string, 0, len(v))
		for _, a := range v {
			s, ok := a.(string)
			if !ok {
				return fmt.Errorf("command alias %v is not a string", a)
			}
			aliases = append(aliases, s)
		}
		cfg.Aliases = aliases
	default:
		return fmt.Errorf("command must be a string or array, got %T", v)
	}
	if e.Enabled != nil {
		cfg.Enabled = *e.Enabled
	}
	switch v := e.Cooldown.(type) {
	case nil:
	case int64:
		cfg.Cooldown = time.Duration(v) * time.Second
	case float64:
		cfg.Cooldown = time.Duration(v * float64(time.Second))
	default:
		return fmt.Errorf("cooldown must be a number of seconds, got %T", v)
	}
	if e.RandomChance != nil {
		cfg.Chance = *e.RandomChance
	}
	if e.Forced != nil {
		cfg.Forced = *e.Forced
	}
	return cfg.Validate()
}

func entryOf(cfg Config) fileEntry {
	aliases := make([]any, len(cfg.Aliases))
	for i, a := range cfg.Aliases {
		aliases[i] = a
	}
	var cooldown any = cfg.Cooldown.Seconds()
	if cfg.Cooldown%time.Second == 0 {
		cooldown = int64(cfg.Cooldown / time.Second)
	}
	return fileEntry{
		Command:      aliases,
		Enabled:      &cfg.Enabled,
		Cooldown:     cooldown,
		RandomChance: &cfg.Chance,
		Forced:       &cfg.Forced,
	}
}

// LoadFile overlays the [commands] tables of a TOML file on defaults. A
// missing file returns the defaults. Tags the defaults do not know are
// skipped with a warning.
func LoadFile(path string, defaults map[string]Config) (map[string]Config, error) {
	out := make(map[string]Config, len(defaults))
	for tag, cfg := range defaults {
		out[tag] = cfg.clone()
	}
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("commands file not found, using defaults", slog.String("path", path), slog.String("component", "command"))
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read commands file: %w", err)
	}

	var doc struct {
		Commands map[string]fileEntry `toml:"commands"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	for tag, entry := range doc.Commands {
		cfg, ok := out[tag]
		if !ok {
			slog.Warn("commands file names unknown tag", slog.String("tag", tag), slog.String("path", path), slog.String("component", "command"))
			continue
		}
		if err := entry.apply(&cfg); err != nil {
			return nil, fmt.Errorf("commands file %s: %q: %w", path, tag, err)
		}
		out[tag] = cfg
	}
	slog.Info("commands file loaded", slog.String("path", path), slog.Int("overrides", len(doc.Commands)), slog.String("component", "command"))
	return out, nil
}

// SaveFile writes configs as the [commands] table of path. Other top-level
// keys already in the file are preserved and the previous file is kept as
// path+".bak".
func SaveFile(path string, configs map[string]Config) error {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse existing TOML: %w", err)
		}
		if err := os.WriteFile(path+".bak", data, 0o600); err != nil {
			return fmt.Errorf("failed to back up commands file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to read commands file: %w", err)
	}

	commands := make(map[string]fileEntry, len(configs))
	for tag, cfg := range configs {
		commands[tag] = entryOf(cfg)
	}
	doc["commands"] = commands

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write commands file: %w", err)
	}
	slog.Info("commands file saved", slog.String("path", path), slog.Int("commands", len(configs)), slog.String("component", "command"))
	return nil
}

// SaveStore writes the store's current snapshot with SaveFile.
func SaveStore(path string, store ConfigStore) error {
	return SaveFile(path, store.Snapshot())
}

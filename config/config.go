// Package config loads environment variables into a typed Config used across the service.
// Defaults allow an anonymous, read-only chat session against the public
// endpoint with no setup. Use Validate before starting the service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration.
type Config struct {
	// Chat
	ChatAddr       string        `env:"CHAT_ADDR" envDefault:"irc.chat.twitch.tv:6667"`
	ChatNick       string        `env:"CHAT_NICK"`
	ChatPass       string        `env:"CHAT_PASS" envDefault:"SCHMOOPIIE"`
	Channels       []string      `env:"TWITCH_CHANNELS" envDefault:"drgreengiant" envSeparator:","`
	ReadTimeout    time.Duration `env:"CHAT_READ_TIMEOUT" envDefault:"250ms"`
	BackoffInitial time.Duration `env:"CHAT_BACKOFF_INITIAL" envDefault:"1s"`
	BackoffMax     time.Duration `env:"CHAT_BACKOFF_MAX" envDefault:"30s"`
	ReadyTimeout   time.Duration `env:"CHAT_READY_TIMEOUT" envDefault:"20s"`
	RecordFile     string        `env:"CHAT_RECORD_FILE"`

	// Dispatch policy
	Superusers      []string `env:"SUPERUSERS" envDefault:"drgreengiant" envSeparator:","`
	SuperuserPrefix string   `env:"SUPERUSER_PREFIX" envDefault:"sudo"`
	Bots            []string `env:"BOTS" envDefault:"buttsbot,streamelements,nightbot,streamlabs" envSeparator:","`
	CommandsEnabled bool     `env:"COMMANDS_ENABLED" envDefault:"true"`
	CommandsFile    string   `env:"COMMANDS_FILE"`
	ExecutorBacklog int      `env:"EXECUTOR_BACKLOG" envDefault:"32"`
	DryRun          bool     `env:"DRY_RUN" envDefault:"true"`

	// Offline reads commands from stdin instead of chat.
	Offline         bool   `env:"OFFLINE"`
	NoBlocklist     bool   `env:"NO_BLOCKLIST"`
	BlocklistSource string `env:"BLOCKLIST_SOURCE" envDefault:"https://github.com/howroyd/twitchplays/releases/latest/download/blocklist"`

	// HTTP
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	AdminUsername      string        `env:"ADMIN_USERNAME"`
	AdminPassword      string        `env:"ADMIN_PASSWORD"`
	AdminToken         string        `env:"ADMIN_TOKEN"`
	CORSPermissive     bool          `env:"CORS_PERMISSIVE" envDefault:"true"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitEnabled   bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests  int           `env:"RATE_LIMIT_REQUESTS_PER_IP" envDefault:"10"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Database (optional command history)
	DBDsn string `env:"DB_DSN"`
	// MigrationsSource overrides the embedded migrations, e.g. file:///srv/migrations.
	MigrationsSource string `env:"MIGRATIONS_SOURCE"`
}

// Load reads environment variables and applies defaults. List values are
// trimmed and lower-cased; channel names lose a leading '#'.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Channels = normalize(cfg.Channels, true)
	cfg.Superusers = normalize(cfg.Superusers, false)
	cfg.Bots = normalize(cfg.Bots, false)
	cfg.SuperuserPrefix = strings.ToLower(strings.TrimSpace(cfg.SuperuserPrefix))
	origins := cfg.CORSAllowedOrigins[:0]
	for _, o := range cfg.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSAllowedOrigins = origins
	if cfg.Offline {
		// Offline never touches the network.
		cfg.NoBlocklist = true
	}
	return cfg, nil
}

func normalize(in []string, channel bool) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if channel {
			s = strings.TrimPrefix(s, "#")
		}
		if _, dup := seen[s]; s == "" || dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.ExecutorBacklog <= 0 {
		errs = append(errs, fmt.Errorf("EXECUTOR_BACKLOG must be positive, got %d", c.ExecutorBacklog))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_READ_TIMEOUT must be positive, got %s", c.ReadTimeout))
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		errs = append(errs, fmt.Errorf("CHAT_BACKOFF_INITIAL/CHAT_BACKOFF_MAX invalid: %s..%s", c.BackoffInitial, c.BackoffMax))
	}
	if c.RateLimitEnabled && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0) {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS_PER_IP/RATE_LIMIT_WINDOW must be positive"))
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together"))
	}
	if c.MigrationsSource != "" && !strings.Contains(c.MigrationsSource, "://") {
		errs = append(errs, fmt.Errorf("MIGRATIONS_SOURCE must be a source URL such as file:///path, got %q", c.MigrationsSource))
	}
	if strings.ContainsAny(c.SuperuserPrefix, " \t") {
		errs = append(errs, fmt.Errorf("SUPERUSER_PREFIX must be a single word, got %q", c.SuperuserPrefix))
	}
	return errors.Join(errs...)
}

// ValidateChatReady checks the fields required to join chat.
func (c *Config) ValidateChatReady() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("missing chat env: require TWITCH_CHANNELS")
	}
	if c.ChatAddr == "" {
		return fmt.Errorf("missing chat env: require CHAT_ADDR")
	}
	return nil
}

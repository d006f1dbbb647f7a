// Command simonsays turns Twitch chat into game input.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds the command table from defaults and the optional COMMANDS_FILE.
//   - Joins chat anonymously (or reads stdin when OFFLINE) and dispatches
//     chat commands to a single executor driving the input device.
//   - Optionally records every command run in Postgres (DB_DSN).
//   - Exposes an HTTP server with /healthz, /readyz, /metrics and the live
//     command config API.
//
// Shutdown is graceful on SIGINT/SIGTERM. A blocklisted channel exits with
// code 8.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/onnwee/simonsays/action"
	"github.com/onnwee/simonsays/blocklist"
	"github.com/onnwee/simonsays/chat"
	"github.com/onnwee/simonsays/command"
	"github.com/onnwee/simonsays/config"
	"github.com/onnwee/simonsays/db"
	"github.com/onnwee/simonsays/dispatch"
	"github.com/onnwee/simonsays/game"
	"github.com/onnwee/simonsays/server"
	"github.com/onnwee/simonsays/telemetry"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	// Logs go to stderr so OFFLINE mode keeps stdin/stdout for the operator.
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run() int {
	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load(".env")
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		return 1
	}
	if !cfg.Offline {
		if err := cfg.ValidateChatReady(); err != nil {
			slog.Error("invalid chat configuration", slog.Any("err", err))
			return 1
		}
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("simonsays", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blocked := blocklist.New()
	if !cfg.NoBlocklist {
		loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		blocked, err = blocklist.Load(loadCtx, cfg.BlocklistSource)
		cancel()
		if err != nil {
			slog.Error("blocklist load failed; set NO_BLOCKLIST=true to skip", slog.Any("err", err))
			return 1
		}
	}

	// Commands
	keybinds, err := game.LoadKeybinds(cfg.CommandsFile)
	if err != nil {
		slog.Error("keybinds load failed", slog.Any("err", err), slog.String("path", cfg.CommandsFile))
		return 1
	}
	configs, err := command.LoadFile(cfg.CommandsFile, game.DefaultConfigs())
	if err != nil {
		slog.Error("commands file load failed", slog.Any("err", err), slog.String("path", cfg.CommandsFile))
		return 1
	}
	store, err := command.NewMemoryStore(configs)
	if err != nil {
		slog.Error("invalid command config", slog.Any("err", err))
		return 1
	}
	store.SetEnabled(cfg.CommandsEnabled)
	telemetry.SetCommandsEnabled(cfg.CommandsEnabled)

	if !cfg.DryRun {
		slog.Warn("no OS input backend is linked into this build, device calls are logged only", slog.String("component", "main"))
	}
	var device action.Device = action.LogDevice{}
	registry := command.NewRegistry(store)
	if err := game.Register(registry, device, game.WithKeybinds(keybinds)); err != nil {
		slog.Error("command registration failed", slog.Any("err", err))
		return 1
	}
	slog.Info("commands registered", slog.Int("count", len(registry.Tags())), slog.Bool("enabled", cfg.CommandsEnabled))

	executor := command.NewExecutor(cfg.ExecutorBacklog)
	execCtx, stopExec := context.WithCancel(context.Background())
	defer stopExec()
	go executor.Run(execCtx)

	// Optional command history
	var (
		pool    *pgxpool.Pool
		history *db.HistoryReporter
	)
	stopHistory := func() {}
	if cfg.DBDsn != "" {
		pool, err = connectHistory(ctx, cfg.DBDsn, cfg.MigrationsSource)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer pool.Close()
		histCtx, cancel := context.WithCancel(context.Background())
		history = db.NewHistoryReporter(histCtx, pool, db.DefaultHistoryConfig())
		stopHistory = func() {
			cancel()
			<-history.Done()
		}
	}
	defer stopHistory()

	// Chat source
	source, closeRecord, err := newSource(cfg)
	if err != nil {
		slog.Error("chat source setup failed", slog.Any("err", err))
		return 1
	}
	defer closeRecord()

	opts := []dispatch.Option{
		dispatch.WithPolicy(dispatch.Policy{
			Superusers:      cfg.Superusers,
			SuperuserPrefix: cfg.SuperuserPrefix,
			Bots:            cfg.Bots,
		}),
		dispatch.WithBlocklist(blocked),
	}
	if history != nil {
		opts = append(opts, dispatch.WithReporter(history))
	}
	dispatcher := dispatch.New(registry, executor, opts...)
	if err := dispatcher.CheckChannels(cfg.Channels...); err != nil {
		return exitCode(err)
	}

	srvOpts := server.Options{
		Registry:     registry,
		Ready:        source.Ready(),
		CommandsFile: cfg.CommandsFile,
		Auth:         server.AuthConfig{Username: cfg.AdminUsername, Password: cfg.AdminPassword, Token: cfg.AdminToken},
		RateLimit:    server.RateLimitConfig{Enabled: cfg.RateLimitEnabled, RequestsPerIP: cfg.RateLimitRequests, Window: cfg.RateLimitWindow},
		CORS:         server.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins, Permissive: cfg.CORSPermissive},
	}
	if pool != nil {
		srvOpts.History = pool
		srvOpts.DB = pool
	}
	go func() {
		if err := server.Start(ctx, srvOpts, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()
	startPprof()

	sourceDone := make(chan error, 1)
	go func() { sourceDone <- source.Run(ctx) }()

	readyCtx, cancelReady := context.WithTimeout(ctx, cfg.ReadyTimeout)
	err = source.Ready().Wait(readyCtx)
	cancelReady()
	if err != nil {
		slog.Warn("chat not ready yet, continuing while the worker retries", slog.Duration("timeout", cfg.ReadyTimeout), slog.Any("channels", cfg.Channels))
	} else {
		slog.Info("chat ready", slog.Any("channels", cfg.Channels))
	}

	err = dispatcher.Run(ctx, source.Messages())
	stop()
	<-sourceDone
	stopExec()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		slog.Info("shutting down")
		return 0
	default:
		return exitCode(err)
	}
}

func exitCode(err error) int {
	var blockedErr *dispatch.BlockedChannelError
	if errors.As(err, &blockedErr) {
		slog.Error("refusing to run in a blocklisted channel", slog.Any("channels", blockedErr.Channels))
		return blockedErr.ExitCode()
	}
	slog.Error("dispatcher failed", slog.Any("err", err))
	return 1
}

// connectHistory opens the pool and applies migrations: versioned first,
// then the idempotent embedded schema for databases golang-migrate cannot
// manage. A non-empty source replaces the embedded versioned migrations.
func connectHistory(ctx context.Context, dsn, source string) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	sqlDB := db.SQL(pool)

	slog.Info("running database migrations", slog.String("source", source), slog.String("component", "db_migrate"))
	migrateUp := db.RunMigrations
	if source != "" {
		migrateUp = func(d *sql.DB) error { return db.RunMigrationsFromPath(d, source) }
	}
	if err := migrateUp(sqlDB); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, sqlDB); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// newSource returns the chat worker, or a stdin source when offline. The
// returned func closes the raw line record file, if any.
func newSource(cfg *config.Config) (chat.Source, func(), error) {
	if cfg.Offline {
		channel := "offline"
		if len(cfg.Channels) > 0 {
			channel = cfg.Channels[0]
		}
		user := "offline"
		if len(cfg.Superusers) > 0 {
			user = cfg.Superusers[0]
		}
		slog.Info("offline mode: reading commands from stdin", slog.String("channel", channel), slog.String("user", user))
		return chat.NewStdinSource(os.Stdin, channel, user), func() {}, nil
	}

	var (
		opts        []chat.WorkerOption
		closeRecord = func() {}
	)
	if cfg.RecordFile != "" {
		f, err := os.OpenFile(cfg.RecordFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, chat.WithRecorder(f))
		closeRecord = func() {
			if err := f.Close(); err != nil {
				slog.Warn("failed to close record file", slog.Any("err", err))
			}
		}
	}
	w := chat.NewWorker(chat.WorkerConfig{
		Addr:           cfg.ChatAddr,
		Nick:           cfg.ChatNick,
		Pass:           cfg.ChatPass,
		Channels:       cfg.Channels,
		ReadTimeout:    cfg.ReadTimeout,
		InitialBackoff: cfg.BackoffInitial,
		MaxBackoff:     cfg.BackoffMax,
	}, opts...)
	slog.Info("chat worker configured", slog.String("nick", w.Nick()), slog.String("addr", cfg.ChatAddr), slog.Any("channels", cfg.Channels))
	return w, closeRecord, nil
}

// startPprof serves /debug/pprof when ENABLE_PPROF=1.
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}

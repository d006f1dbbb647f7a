// Package db stores the command history in Postgres: connection helpers,
// schema migration, the batched history writer and small read helpers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Connect opens a pgx pool for dsn and checks it answers.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB_DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	slog.Info("database connected", slog.String("host", cfg.ConnConfig.Host), slog.String("database", cfg.ConnConfig.Database), slog.String("component", "db"))
	return pool, nil
}

// SQL exposes pool as a *sql.DB for golang-migrate. Closing the returned
// handle does not close the pool.
func SQL(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// Migrate applies the schema with idempotent statements. It is the fallback
// for databases where versioned migrations cannot run.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS command_runs (
			id BIGSERIAL PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			outcomes TEXT NOT NULL,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			forced BOOLEAN NOT NULL DEFAULT FALSE,
			dropped BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_command_runs_started_at ON command_runs (started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_command_runs_tag ON command_runs (tag, started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_command_runs_username ON command_runs (lower(username), started_at DESC)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Run is one stored command completion.
type Run struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Tag           string    `json:"tag"`
	Username      string    `json:"username"`
	Channel       string    `json:"channel"`
	Outcomes      string    `json:"outcomes"`
	Success       bool      `json:"success"`
	Forced        bool      `json:"forced"`
	Dropped       bool      `json:"dropped"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RecentRuns returns up to limit runs, newest first. A non-empty tag filters
// by tag.
func RecentRuns(ctx context.Context, q Querier, tag string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := q.Query(ctx, `
SELECT id, correlation_id, tag, username, channel, outcomes, success, forced, dropped, started_at, finished_at
FROM command_runs
WHERE ($1 = '' OR tag = $1)
ORDER BY started_at DESC, id DESC
LIMIT $2`, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Run])
	if err != nil {
		return nil, fmt.Errorf("scan recent runs: %w", err)
	}
	return runs, nil
}

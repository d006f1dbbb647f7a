// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onnwee/simonsays/db"
)

// SetupTestDB connects to TEST_PG_DSN, applies migrations and empties the
// history table. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.RunMigrations(db.SQL(pool)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE command_runs`); err != nil {
		t.Fatalf("failed to truncate command_runs: %v", err)
	}
	return pool
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/simonsays/action"
	"github.com/onnwee/simonsays/dispatch"
)

type stubSender struct {
	mu      sync.Mutex
	batches [][]*pgx.QueuedQuery
	err     error
}

type stubBatchResults struct{ err error }

func (s *stubSender) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]*pgx.QueuedQuery(nil), b.QueuedQueries...))
	return &stubBatchResults{err: s.err}
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (r *stubBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, r.err }
func (r *stubBatchResults) Query() (pgx.Rows, error)         { return nil, r.err }
func (r *stubBatchResults) QueryRow() pgx.Row                { return nil }
func (r *stubBatchResults) Close() error                     { return r.err }

func completion(tag string) dispatch.Completion {
	now := time.Now()
	return dispatch.Completion{
		CorrelationID: "corr-" + tag,
		Tag:           tag,
		Username:      "viewer",
		Channel:       "drgreengiant",
		Outcomes:      action.Of(action.Ok),
		Started:       now,
		Finished:      now.Add(time.Millisecond),
	}
}

func waitForBatches(t *testing.T, s *stubSender, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.count() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("got %d batches, want %d", s.count(), n)
}

func TestHistoryFlushesOnMaxBatch(t *testing.T) {
	sender := &stubSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHistoryReporter(ctx, sender, HistoryConfig{MaxBatch: 2, FlushEvery: time.Hour, ChanBuffer: 10})

	h.Report(completion("forward"))
	h.Report(completion("spin"))
	waitForBatches(t, sender, 1)

	sender.mu.Lock()
	q := sender.batches[0]
	sender.mu.Unlock()
	if len(q) != 2 {
		t.Fatalf("batch has %d queries, want 2", len(q))
	}
	if q[0].Arguments[1] != "forward" || q[0].Arguments[4] != "{Ok}" || q[0].Arguments[5] != true {
		t.Fatalf("arguments = %v", q[0].Arguments)
	}
}

func TestHistoryFlushesOnTimer(t *testing.T) {
	sender := &stubSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHistoryReporter(ctx, sender, HistoryConfig{MaxBatch: 10, FlushEvery: 20 * time.Millisecond, ChanBuffer: 10})
	h.Report(completion("forward"))
	waitForBatches(t, sender, 1)
}

func TestHistoryFlushesOnCancel(t *testing.T) {
	sender := &stubSender{}
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHistoryReporter(ctx, sender, HistoryConfig{MaxBatch: 10, FlushEvery: time.Hour, ChanBuffer: 10})
	h.Report(completion("forward"))
	h.Report(completion("spin"))
	cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	rows := 0
	for _, b := range sender.batches {
		rows += len(b)
	}
	if rows != 2 {
		t.Fatalf("flushed %d rows, want 2", rows)
	}
}

func TestHistoryFailureDoesNotStopWriter(t *testing.T) {
	sender := &stubSender{err: errors.New("connection refused")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHistoryReporter(ctx, sender, HistoryConfig{MaxBatch: 1, FlushEvery: time.Hour, ChanBuffer: 10})
	h.Report(completion("a"))
	h.Report(completion("b"))
	waitForBatches(t, sender, 2)
}

func TestHistoryReportNeverBlocks(t *testing.T) {
	sender := &stubSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHistoryReporter(ctx, sender, HistoryConfig{MaxBatch: 100, FlushEvery: time.Hour, ChanBuffer: 1})
	<-h.Done()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Report(completion("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report blocked")
	}
	if h.Dropped() != 4 {
		t.Fatalf("dropped = %d, want 4", h.Dropped())
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if err := RunMigrations(SQL(pool)); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM command_runs WHERE tag = 'history_test'`); err != nil {
		t.Fatal(err)
	}

	hctx, hcancel := context.WithCancel(ctx)
	h := NewHistoryReporter(hctx, pool, HistoryConfig{MaxBatch: 1})
	c := completion("history_test")
	c.Outcomes = action.Of(action.OnCooldown)
	h.Report(c)
	hcancel()
	<-h.Done()

	runs, err := RecentRuns(ctx, pool, "history_test", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Outcomes != "{OnCooldown}" || runs[0].Success {
		t.Fatalf("runs = %+v", runs)
	}
}

package db

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/onnwee/simonsays/dispatch"
)

// HistoryConfig tunes the batched history writer.
type HistoryConfig struct {
	MaxBatch     int
	FlushEvery   time.Duration
	ChanBuffer   int
	FlushTimeout time.Duration
}

// DefaultHistoryConfig suits a single busy channel.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{MaxBatch: 50, FlushEvery: time.Second, ChanBuffer: 1024, FlushTimeout: 5 * time.Second}
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// HistoryReporter is a dispatch.Reporter that inserts every completion into
// command_runs. Report never blocks the executor: when the buffer is full the
// completion is dropped and counted. Write failures are logged and never
// reach dispatch.
type HistoryReporter struct {
	input   chan dispatch.Completion
	config  HistoryConfig
	sender  batchSender
	dropped atomic.Uint64
	done    chan struct{}
}

var _ dispatch.Reporter = (*HistoryReporter)(nil)

// NewHistoryReporter starts the background writer; it flushes what it holds
// and stops when ctx is cancelled. *pgxpool.Pool satisfies sender.
func NewHistoryReporter(ctx context.Context, sender batchSender, cfg HistoryConfig) *HistoryReporter {
	def := DefaultHistoryConfig()
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = def.FlushEvery
	}
	if cfg.ChanBuffer <= 0 {
		cfg.ChanBuffer = def.ChanBuffer
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	h := &HistoryReporter{
		input:  make(chan dispatch.Completion, cfg.ChanBuffer),
		config: cfg,
		sender: sender,
		done:   make(chan struct{}),
	}
	go h.run(ctx)
	return h
}

// Report queues c for insertion.
func (h *HistoryReporter) Report(c dispatch.Completion) {
	select {
	case h.input <- c:
	default:
		dropped := h.dropped.Add(1)
		if dropped%100 == 1 {
			slog.Warn("history buffer full, dropping completion", slog.Uint64("dropped_total", dropped), slog.String("component", "db_history"))
		}
	}
}

// Dropped returns how many completions were discarded on a full buffer.
func (h *HistoryReporter) Dropped() uint64 { return h.dropped.Load() }

// Done is closed once the writer has flushed and stopped.
func (h *HistoryReporter) Done() <-chan struct{} { return h.done }

const insertRun = `
INSERT INTO command_runs (
  correlation_id, tag, username, channel, outcomes, success, forced, dropped, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

func (h *HistoryReporter) run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.config.FlushEvery)
	defer ticker.Stop()

	var (
		batch   = &pgx.Batch{}
		pending int
		total   uint64
	)
	flush := func() {
		if pending == 0 {
			return
		}
		dbCtx, cancel := context.WithTimeout(context.Background(), h.config.FlushTimeout)
		defer cancel()
		if err := h.sender.SendBatch(dbCtx, batch).Close(); err != nil {
			slog.Warn("history flush failed", slog.Any("err", err), slog.Int("rows", pending), slog.String("component", "db_history"))
		} else {
			total += uint64(pending)
		}
		batch = &pgx.Batch{}
		pending = 0
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case c := <-h.input:
					queueRun(batch, c)
					pending++
				default:
					break drain
				}
			}
			flush()
			slog.Info("history writer stopped", slog.Uint64("rows_written", total), slog.String("component", "db_history"))
			return
		case <-ticker.C:
			flush()
		case c := <-h.input:
			queueRun(batch, c)
			pending++
			if pending >= h.config.MaxBatch {
				flush()
			}
		}
	}
}

func queueRun(b *pgx.Batch, c dispatch.Completion) {
	b.Queue(insertRun,
		c.CorrelationID, c.Tag, c.Username, c.Channel, c.Outcomes.String(),
		c.Outcomes.Success(), c.Forced, c.Dropped, c.Started.UTC(), c.Finished.UTC(),
	)
}

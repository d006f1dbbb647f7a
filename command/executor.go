package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/onnwee/simonsays/action"
	"github.com/onnwee/simonsays/telemetry"
)

// Job is one unit submitted to the Executor.
type Job struct {
	Tag string
	Run func() action.Outcomes
	// Done is called on the executor goroutine after Run returns.
	Done func(out action.Outcomes, elapsed time.Duration)
}

// Executor runs submitted jobs one at a time, in submission order. It is the
// single point through which device input flows, so simulated input from two
// commands never overlaps.
type Executor struct {
	jobs    chan Job
	dropped atomic.Uint64
	running atomic.Bool
}

// NewExecutor creates an executor with room for backlog queued jobs.
func NewExecutor(backlog int) *Executor {
	if backlog <= 0 {
		backlog = 1
	}
	return &Executor{jobs: make(chan Job, backlog)}
}

// Submit queues j without blocking. It returns false when the backlog is
// full and the job was dropped.
func (e *Executor) Submit(j Job) bool {
	select {
	case e.jobs <- j:
		telemetry.SetExecutorBacklog(len(e.jobs))
		return true
	default:
		dropped := e.dropped.Add(1)
		if dropped%100 == 1 {
			slog.Warn("executor backlog full, dropping command", slog.String("tag", j.Tag), slog.Uint64("dropped_total", dropped), slog.String("component", "executor"))
		}
		return false
	}
}

// Pending returns the number of queued jobs.
func (e *Executor) Pending() int { return len(e.jobs) }

// Dropped returns how many jobs were rejected because the backlog was full.
func (e *Executor) Dropped() uint64 { return e.dropped.Load() }

// Busy reports whether a job is currently running.
func (e *Executor) Busy() bool { return e.running.Load() }

// Run consumes jobs until ctx is cancelled. A running job always completes;
// jobs still queued at cancellation are abandoned.
func (e *Executor) Run(ctx context.Context) {
	slog.Info("executor started", slog.Int("backlog", cap(e.jobs)), slog.String("component", "executor"))
	for {
		select {
		case <-ctx.Done():
			slog.Info("executor stopped", slog.Int("abandoned", len(e.jobs)), slog.String("component", "executor"))
			return
		case j := <-e.jobs:
			telemetry.SetExecutorBacklog(len(e.jobs))
			e.execute(j)
		}
	}
}

func (e *Executor) execute(j Job) {
	e.running.Store(true)
	defer e.running.Store(false)

	start := time.Now()
	out := safeRun(j)
	elapsed := time.Since(start)
	telemetry.ObserveActionDuration(j.Tag, elapsed)
	if j.Done != nil {
		j.Done(out, elapsed)
	}
}

func safeRun(j Job) (out action.Outcomes) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("command panicked", slog.String("tag", j.Tag), slog.Any("panic", fmt.Sprint(r)), slog.String("component", "executor"))
			out = action.Of(action.Unknown)
		}
	}()
	return j.Run()
}

package chat

import (
	"context"
	"sync"
	"time"
)

// Readiness is a settable, clearable flag that callers can wait on.
type Readiness struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{} // closed while set
}

// NewReadiness returns a cleared flag.
func NewReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

// Set raises the flag and releases all waiters.
func (r *Readiness) Set() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		r.set = true
		close(r.ch)
	}
}

// Clear lowers the flag. Later waiters block until the next Set.
func (r *Readiness) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		r.set = false
		r.ch = make(chan struct{})
	}
}

// IsSet reports the current state.
func (r *Readiness) IsSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set
}

func (r *Readiness) wait() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch
}

// Wait blocks until the flag is set or ctx is done.
func (r *Readiness) Wait(ctx context.Context) error {
	select {
	case <-r.wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout waits at most d and reports whether the flag was set.
func (r *Readiness) WaitTimeout(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.Wait(ctx) == nil
}

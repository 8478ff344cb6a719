// Package libroutine provides a small circuit breaker used to guard calls
// into flaky external systems, with optional bounded retrying.
package libroutine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute when the breaker rejects the call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Routine is a failure-counting circuit breaker. After threshold consecutive
// failures the circuit opens; after resetTimeout a single probe call is let
// through (half-open) and its outcome closes or re-opens the circuit.
type Routine struct {
	mu           sync.Mutex
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
}

func NewRoutine(threshold int, resetTimeout time.Duration) *Routine {
	if threshold < 1 {
		threshold = 1
	}
	return &Routine{
		state:        Closed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Allow reports whether a call may proceed right now. In the half-open state
// only one probe call is admitted at a time.
func (r *Routine) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Closed:
		return true
	case Open:
		if time.Since(r.openedAt) >= r.resetTimeout {
			r.state = HalfOpen
			r.probing = true
			return true
		}
		return false
	case HalfOpen:
		if r.probing {
			return false
		}
		r.probing = true
		return true
	default:
		return false
	}
}

// MarkSuccess records a successful call and closes the circuit.
func (r *Routine) MarkSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = Closed
	r.failures = 0
	r.probing = false
}

// MarkFailure records a failed call; crossing the threshold, or failing the
// half-open probe, opens the circuit.
func (r *Routine) MarkFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures++
	if r.state == HalfOpen || r.failures >= r.threshold {
		r.state = Open
		r.openedAt = time.Now()
	}
	r.probing = false
}

// Execute runs fn through the breaker. A rejected call returns ErrCircuitOpen
// without invoking fn.
func (r *Routine) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil {
		r.MarkFailure()
		return err
	}
	r.MarkSuccess()
	return nil
}

// ExecuteWithRetry runs fn up to maxAttempts times, sleeping interval between
// attempts, still honoring the breaker on every attempt. It returns nil on
// the first success and the last error otherwise.
func (r *Routine) ExecuteWithRetry(ctx context.Context, interval time.Duration, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(interval):
			}
		}
		lastErr = r.Execute(ctx, fn)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// GetState returns the current breaker state.
func (r *Routine) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ForceOpen opens the circuit manually.
func (r *Routine) ForceOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Open
	r.openedAt = time.Now()
	r.probing = false
}

// ForceClose closes the circuit manually and clears the failure count.
func (r *Routine) ForceClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Closed
	r.failures = 0
	r.probing = false
}

func (r *Routine) GetThreshold() int {
	return r.threshold
}

func (r *Routine) GetResetTimeout() time.Duration {
	return r.resetTimeout
}

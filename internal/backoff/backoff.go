package backoff

import (
	"context"
	"sync"
	"time"
)

const DefaultBaseDelay = 1 * time.Second

// Executor paces failures against a rate-limited dependency. It is not a
// retrier: Execute runs the operation once and, on failure, sleeps
// baseDelay * 2^(n-1) for the n-th consecutive failure before returning the
// original error. A success resets the failure count. Callers that want
// retries loop around Execute themselves.
//
// An Executor is safe for concurrent use; scope one per request or per job
// run rather than sharing a single instance process-wide, or unrelated call
// sites will compound each other's delays.
type Executor struct {
	mu       sync.Mutex
	attempts int
	base     time.Duration
}

func NewExecutor(base time.Duration) *Executor {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return &Executor{base: base}
}

// Execute runs op once. On success the failure counter resets and the result
// is returned immediately. On failure the counter increments, Execute waits
// out the computed delay (or until ctx is done), then returns op's error.
func (e *Executor) Execute(ctx context.Context, op func() error) error {
	err := op()

	e.mu.Lock()
	if err == nil {
		e.attempts = 0
		e.mu.Unlock()
		return nil
	}
	e.attempts++
	n := e.attempts
	if n > 20 {
		n = 20 // keep the shift sane under sustained failure
	}
	delay := e.base << (n - 1)
	e.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
	return err
}

// Attempts reports the current consecutive failure count.
func (e *Executor) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

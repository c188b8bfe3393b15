package core

// run_limiter.go bounds how many orchestration passes run at once in this
// process. A pass waits up to maxWait for a slot before failing with
// ErrRunInProgress. Across processes, job claims are what prevent double
// processing; the limiter only keeps one process from competing with itself.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when every run slot stays occupied for the
// whole wait.
var ErrRunInProgress = errors.New("a job run is already in progress")

// DefaultMaxConcurrentRuns is the default number of simultaneous passes.
const DefaultMaxConcurrentRuns = 1

// RunLimiter is a counting semaphore over orchestration passes.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewRunLimiter allows maxConcurrent passes at once. A maxWait of zero makes
// Acquire fail immediately when no slot is free.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait < 0 {
		maxWait = 0
	}
	return &RunLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait. The caller must Release it.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	if l.TryAcquire() {
		return nil
	}
	if l.maxWait == 0 {
		return ErrRunInProgress
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRunInProgress
	}
}

// TryAcquire takes a slot if one is free, without waiting.
func (l *RunLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// Active returns the number of passes currently running.
func (l *RunLimiter) Active() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no pass is running or ctx is done. Used on
// shutdown so in-flight jobs reach a terminal state.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunLimiterStatus is a snapshot for health reporting.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *RunLimiter) Status() RunLimiterStatus {
	return RunLimiterStatus{Active: l.Active(), MaxConcurrent: cap(l.semaphore)}
}

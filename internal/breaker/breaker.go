// Package breaker coordinates global back-pressure when the host starts
// refusing resources (EAGAIN class failures while spawning browsers).
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultThreshold is how many consecutive resource refusals trip the
	// breaker.
	DefaultThreshold = 3

	basePause       = 60 * time.Second
	pausePerFailure = 20 * time.Second
)

// IsTransientResource reports whether err is a kernel resource refusal:
// failed fork, FD exhaustion, or an out-of-memory map.
func IsTransientResource(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"errno 11",
		"resource temporarily unavailable",
		"cannot allocate memory",
		"too many open files",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Backoff is the per-URL linear delay applied before a non-breaker error
// surfaces to retry handling.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return (5 + 2*time.Duration(retryCount)) * time.Second
}

// CircuitBreaker counts consecutive transient-resource failures across all
// workers and, past the threshold, pauses the whole process so the OS can
// recover. onPause runs once per trip to close every live browser handle.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	pauseUntil  time.Time

	onPause func()
	logger  *slog.Logger

	// Injected for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a breaker. threshold <= 0 selects DefaultThreshold; onPause
// may be nil.
func New(threshold int, onPause func(), logger *slog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &CircuitBreaker{
		threshold: threshold,
		onPause:   onPause,
		logger:    logger.With("component", "circuit_breaker"),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// RecordFailure feeds one job error into the breaker. Only transient
// resource errors extend the streak; anything else breaks it. Returns true
// when this failure tripped a new global pause.
func (b *CircuitBreaker) RecordFailure(err error) bool {
	if !IsTransientResource(err) {
		b.mu.Lock()
		b.consecutive = 0
		b.mu.Unlock()
		return false
	}

	b.mu.Lock()
	b.consecutive++
	count := b.consecutive
	tripped := count >= b.threshold && b.now().After(b.pauseUntil)
	var pause time.Duration
	if tripped {
		pause = basePause + pausePerFailure*time.Duration(count)
		b.pauseUntil = b.now().Add(pause)
	}
	onPause := b.onPause
	b.mu.Unlock()

	if tripped {
		b.logger.Warn("resource exhaustion, pausing all workers",
			"consecutive_failures", count,
			"pause", pause,
		)
		if onPause != nil {
			onPause()
		}
	}
	return tripped
}

// RecordSuccess resets the streak.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	b.consecutive = 0
	b.mu.Unlock()
}

// Wait blocks until any active global pause has elapsed. The first caller
// past the deadline clears the streak. Returns early with the context
// error on cancellation.
func (b *CircuitBreaker) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		remaining := b.pauseUntil.Sub(b.now())
		if remaining <= 0 {
			if !b.pauseUntil.IsZero() {
				b.consecutive = 0
				b.pauseUntil = time.Time{}
			}
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		if err := b.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

// Paused reports whether a global pause is currently active.
func (b *CircuitBreaker) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.pauseUntil)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNoRows        = errors.New("no rows claimed")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrPoolStopped   = errors.New("worker pool has been stopped")
	ErrStaticPage    = errors.New("operation not supported on a static page")
	ErrSkipCandidate = errors.New("skip candidate")
	ErrStopStrategy  = errors.New("stop strategy")
)

// RenderError wraps a navigation or page-render failure for a single URL.
type RenderError struct {
	URL       string
	Err       error
	Transient bool // kernel refused a resource (Errno 11 class)
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render error for %s: %v", e.URL, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) IsTransient() bool { return e.Transient }

// FatalError marks an extraction failure that should fail the URL and
// recycle the worker's browser, rather than falling through to the next
// strategy.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal extraction error: %v", e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

// QueueError wraps claim/ack failures against the URL queue.
type QueueError struct {
	Op  string // "claim", "ack", "offset"
	Err error
}

func (e *QueueError) Error() string { return fmt.Sprintf("queue %s: %v", e.Op, e.Err) }

func (e *QueueError) Unwrap() error { return e.Err }

// StoreError wraps a per-row persistence failure that is not a duplicate.
type StoreError struct {
	ProductURL string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error for %s: %v", e.ProductURL, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

package feed

import (
	"sync"
	"time"
)

// State is the connectivity state of a feed.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateBackingOff   State = "backing_off"
	StateFailed       State = "failed"
)

// Status is a snapshot of the reconnect state machine.
type Status struct {
	State   State
	Attempt int // consecutive failures
	NextAt  time.Time
}

// Backoff is the reconnect policy: exponential delays from initial up to
// max, retried forever. After threshold consecutive failures the state
// reads as failed while retries continue.
type Backoff struct {
	mu        sync.Mutex
	initial   time.Duration
	max       time.Duration
	threshold int

	state   State
	attempt int
	nextAt  time.Time
}

// NewBackoff creates a policy in the disconnected state.
func NewBackoff(initial, max time.Duration, threshold int) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &Backoff{initial: initial, max: max, threshold: threshold, state: StateDisconnected}
}

// Connected records a successful connection and resets the attempt count.
func (b *Backoff) Connected() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateConnected
	b.attempt = 0
	b.nextAt = time.Time{}
}

// Failure records a failed or lost connection and returns the delay before
// the next attempt.
func (b *Backoff) Failure(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt++
	delay := b.initial
	for i := 1; i < b.attempt && delay < b.max; i++ {
		delay *= 2
	}
	if delay > b.max {
		delay = b.max
	}
	b.nextAt = now.Add(delay)
	if b.attempt >= b.threshold {
		b.state = StateFailed
	} else {
		b.state = StateBackingOff
	}
	return delay
}

// Stop marks the feed as intentionally disconnected.
func (b *Backoff) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateDisconnected
	b.nextAt = time.Time{}
}

func (b *Backoff) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{State: b.state, Attempt: b.attempt, NextAt: b.nextAt}
}

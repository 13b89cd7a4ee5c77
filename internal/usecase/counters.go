package usecase

import "sync/atomic"

// Counters aggregates per-transaction outcomes for the health surface.
type Counters struct {
	seen           atomic.Uint64
	decodeFailures atomic.Uint64
	ineligible     atomic.Uint64
	eligible       atomic.Uint64
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters { return &Counters{} }

type CounterSnapshot struct {
	TxSeen         uint64
	DecodeFailures uint64
	Ineligible     uint64
	Eligible       uint64
}

// Snapshot reads every counter.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		TxSeen:         c.seen.Load(),
		DecodeFailures: c.decodeFailures.Load(),
		Ineligible:     c.ineligible.Load(),
		Eligible:       c.eligible.Load(),
	}
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.seen.Store(0)
	c.decodeFailures.Store(0)
	c.ineligible.Store(0)
	c.eligible.Store(0)
}

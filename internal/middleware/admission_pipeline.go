package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MempoolOracle/internal/domain/models"
	domrepo "MempoolOracle/internal/domain/repository"
)

// Queue policies when the pipeline buffer is full.
const (
	PolicyDropOldest = "drop_oldest"
	PolicyBlock      = "block"
)

var ErrPipelineClosed = errors.New("pipeline closed")

// Admitter is the histogram side of the pipeline.
type Admitter interface {
	AdmitTx(tx *models.EligibleTransaction) int
}

// RealtimePipeline is the bounded queue between the eligibility filter and
// the pricing engine. A single worker drains it in arrival order.
type RealtimePipeline struct {
	admitter Admitter
	metrics  domrepo.Metrics
	policy   string
	bufSize  int
	bufCh    chan *models.EligibleTransaction

	mu       sync.RWMutex
	closed   bool
	started  bool
	done     chan struct{}
	dropped  atomic.Uint64
	admitted atomic.Uint64
}

type PipelineOption func(*RealtimePipeline)

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithPolicy selects drop_oldest or block.
func WithPolicy(policy string) PipelineOption {
	return func(p *RealtimePipeline) { p.policy = policy }
}

// NewRealtimePipeline creates a new RealtimePipeline instance.
func NewRealtimePipeline(admitter Admitter, metrics domrepo.Metrics, opts ...PipelineOption) (*RealtimePipeline, error) {
	p := &RealtimePipeline{
		admitter: admitter,
		metrics:  metrics,
		policy:   PolicyDropOldest,
		bufSize:  4096,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	switch p.policy {
	case PolicyDropOldest, PolicyBlock:
	default:
		return nil, fmt.Errorf("unknown pipeline policy %q", p.policy)
	}
	p.bufCh = make(chan *models.EligibleTransaction, p.bufSize)
	return p, nil
}

// Start launches the worker. Subsequent calls are no-ops.
func (p *RealtimePipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.work()
}

func (p *RealtimePipeline) work() {
	defer close(p.done)
	for tx := range p.bufCh {
		start := time.Now()
		n := p.admitter.AdmitTx(tx)
		p.admitted.Add(uint64(n))
		p.metrics.RecordLatency("pipeline_admit", time.Since(start).Seconds())
	}
}

// Submit enqueues tx. Under drop_oldest it never blocks: the oldest queued
// entry is discarded to make room. Under block it waits for room or ctx.
func (p *RealtimePipeline) Submit(ctx context.Context, tx *models.EligibleTransaction) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}

	if p.policy == PolicyBlock {
		select {
		case p.bufCh <- tx:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case p.bufCh <- tx:
			return nil
		default:
		}
		select {
		case <-p.bufCh:
			p.dropped.Add(1)
			p.metrics.RecordError("pipeline_drop_oldest")
		default:
		}
	}
}

// Stop refuses new items, lets the worker drain what is queued and waits
// for it up to ctx.
func (p *RealtimePipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.bufCh)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline drain: %w", ctx.Err())
	}
}

// Depth returns the number of queued transactions.
func (p *RealtimePipeline) Depth() int { return len(p.bufCh) }

// Dropped counts transactions evicted from a full queue.
func (p *RealtimePipeline) Dropped() uint64 { return p.dropped.Load() }

// Admitted counts amounts that reached the histogram.
func (p *RealtimePipeline) Admitted() uint64 { return p.admitted.Load() }

// ResetCounters zeroes the dropped and admitted counters.
func (p *RealtimePipeline) ResetCounters() {
	p.dropped.Store(0)
	p.admitted.Store(0)
}

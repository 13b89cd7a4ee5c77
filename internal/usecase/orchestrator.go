package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MempoolOracle/internal/domain/models"
	drepo "MempoolOracle/internal/domain/repository"
	mid "MempoolOracle/internal/middleware"
	"MempoolOracle/internal/services/pricing"
	applogger "MempoolOracle/pkg/logger"
)

// MinBroadcastInterval is the fastest allowed estimate/broadcast tick.
const MinBroadcastInterval = 500 * time.Millisecond

// Broadcaster is the stream side of the orchestrator.
type Broadcaster interface {
	Publish(est models.PriceEstimate)
	Seed(est models.PriceEstimate) error
	Flush() int
	ClientCount() int
	Forget()
	CloseAll()
}

type OrchestratorDeps struct {
	Feed      drepo.FeedSource
	Collector *TxCollector
	Pipeline  *mid.RealtimePipeline
	Engine    *pricing.Engine
	Hub       Broadcaster
	Counters  *Counters
	Publisher drepo.Publisher
	Store     drepo.EstimateStore
	Metrics   drepo.Metrics
	Logger    *applogger.Logger
}

// Orchestrator runs the estimate tick and owns startup seeding and the
// shutdown order: stop the tick, close the feed, drain the collector and
// the pipeline, close clients, flush the outbox.
type Orchestrator struct {
	OrchestratorDeps
	interval time.Duration
	log      *applogger.Logger

	outbox   chan models.PriceEstimate
	stop     chan struct{}
	loopDone chan struct{}
	outDone  chan struct{}

	mu       sync.Mutex
	started  bool
	shutdown bool
}

type OrchestratorOption func(*Orchestrator)

// WithInterval sets the estimate and broadcast tick.
func WithInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.interval = d }
}

// NewOrchestrator validates deps and the tick interval.
func NewOrchestrator(deps OrchestratorDeps, opts ...OrchestratorOption) (*Orchestrator, error) {
	if deps.Feed == nil || deps.Collector == nil || deps.Pipeline == nil || deps.Engine == nil || deps.Hub == nil || deps.Metrics == nil {
		return nil, errors.New("orchestrator: missing dependency")
	}
	if deps.Counters == nil {
		deps.Counters = NewCounters()
	}
	if deps.Logger == nil {
		deps.Logger = applogger.Nop()
	}
	o := &Orchestrator{
		OrchestratorDeps: deps,
		interval:         MinBroadcastInterval,
		outbox:           make(chan models.PriceEstimate, 1),
		stop:             make(chan struct{}),
		loopDone:         make(chan struct{}),
		outDone:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.interval < MinBroadcastInterval {
		return nil, fmt.Errorf("broadcast interval %s is below the %s minimum", o.interval, MinBroadcastInterval)
	}
	o.log = deps.Logger.Component("orchestrator")
	return o, nil
}

// Start seeds the last known estimate, then launches the collector, the
// pipeline worker, the outbox and the tick loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.shutdown {
		return errors.New("orchestrator already started")
	}
	o.started = true

	o.seed(ctx)
	o.Pipeline.Start()
	o.Collector.Start(ctx)
	go o.publishLoop()
	go o.loop(ctx)
	o.log.Info("pipeline started", applogger.Duration("interval_ms", o.interval))
	return nil
}

func (o *Orchestrator) seed(ctx context.Context) {
	if o.Store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	est, err := o.Store.LoadLatest(sctx)
	if err != nil {
		o.log.Warn("could not load last estimate", applogger.Error(err))
		return
	}
	if est == nil || est.Rate <= 0 {
		return
	}
	o.Engine.Seed(*est)
	if err := o.Hub.Seed(*est); err != nil {
		o.log.Warn("could not seed broadcast", applogger.Error(err))
		return
	}
	o.log.Info("seeded last estimate",
		applogger.Float64("rate", est.Rate),
		applogger.Time("computed_at", est.ComputedAt))
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.loopDone)
	t := time.NewTicker(o.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case now := <-t.C:
			o.Tick(now)
		}
	}
}

// Tick evicts expired observations, re-estimates when the histogram
// changed and flushes the broadcast. It is called by the loop on every
// interval and is exported for tests.
func (o *Orchestrator) Tick(now time.Time) {
	o.Engine.Evict(now)
	o.Metrics.RecordFeedConnected(o.Feed.IsConnected())

	if o.Engine.Dirty() {
		start := time.Now()
		est, accepted := o.Engine.Estimate(now)
		o.Metrics.RecordLatency("estimate", time.Since(start).Seconds())
		if accepted {
			o.Metrics.RecordEstimate(est.Rate, est.Confidence, est.WindowCount)
			o.Hub.Publish(est)
			o.offer(est)
			o.log.Debug("estimate accepted",
				applogger.Float64("rate", est.Rate),
				applogger.Float64("confidence", est.Confidence),
				applogger.Int("window", est.WindowCount))
		} else {
			o.log.Debug("estimate withheld", applogger.Int("window", est.WindowCount))
		}
	}
	o.Hub.Flush()
}

// offer hands est to the outbox, replacing an unsent older estimate.
func (o *Orchestrator) offer(est models.PriceEstimate) {
	for {
		select {
		case o.outbox <- est:
			return
		default:
		}
		select {
		case <-o.outbox:
		default:
		}
	}
}

func (o *Orchestrator) publishLoop() {
	defer close(o.outDone)
	for est := range o.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if o.Publisher != nil {
			if err := o.Publisher.Publish(ctx, &est); err != nil {
				o.Metrics.RecordError("estimate_publish")
				o.log.Warn("estimate publish failed", applogger.Error(err))
			}
		}
		if o.Store != nil {
			if err := o.Store.SaveLatest(ctx, &est); err != nil {
				o.Metrics.RecordError("estimate_store")
				o.log.Warn("estimate store failed", applogger.Error(err))
			}
		}
		cancel()
	}
}

// Shutdown stops everything in order and waits up to ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil
	}
	o.shutdown = true
	started := o.started
	o.mu.Unlock()

	var errs []error
	close(o.stop)
	if started {
		<-o.loopDone
	}

	if err := o.Feed.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close feed: %w", err))
	}
	if started {
		if err := o.Collector.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain collector: %w", err))
		}
	}
	if err := o.Pipeline.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	o.Hub.CloseAll()

	close(o.outbox)
	if started {
		select {
		case <-o.outDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("flush outbox: %w", ctx.Err()))
		}
	}
	if o.Publisher != nil {
		if err := o.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}

	o.log.Info("pipeline stopped", applogger.Int("window", o.Engine.WindowCount()))
	return errors.Join(errs...)
}

// Health is a point-in-time snapshot for monitors.
func (o *Orchestrator) Health() models.HealthSnapshot {
	st := o.Feed.Status()
	c := o.Counters.Snapshot()
	h := models.HealthSnapshot{
		FeedState:      st.State,
		FeedConnected:  o.Feed.IsConnected(),
		FeedAttempt:    st.Attempt,
		Clients:        o.Hub.ClientCount(),
		TxSeen:         c.TxSeen,
		DecodeFailures: c.DecodeFailures,
		Ineligible:     c.Ineligible,
		Eligible:       c.Eligible,
		QueueDropped:   o.Pipeline.Dropped(),
		Admitted:       o.Pipeline.Admitted(),
		WindowTxCount:  o.Engine.WindowCount(),
	}
	if est, ok := o.Engine.Latest(); ok {
		at := est.ComputedAt
		h.LastEstimateAt = &at
		h.LastRate = est.Rate
		h.LastConfidence = est.Confidence
	}
	return h
}

// Latest returns the last accepted estimate.
func (o *Orchestrator) Latest() (models.PriceEstimate, bool) { return o.Engine.Latest() }

// Histogram returns a copy of the current bin counts.
func (o *Orchestrator) Histogram() []int { return o.Engine.Snapshot() }

// Reset clears the histogram, the latest estimate everywhere it is held,
// and every health counter.
func (o *Orchestrator) Reset() {
	select {
	case <-o.outbox:
	default:
	}
	o.Engine.Reset()
	o.Hub.Forget()
	o.Counters.Reset()
	o.Pipeline.ResetCounters()
	o.log.Info("pipeline state reset")
}

package usecase

import (
	"context"
	"errors"
	"time"

	"MempoolOracle/internal/domain/models"
	drepo "MempoolOracle/internal/domain/repository"
	mid "MempoolOracle/internal/middleware"
	applogger "MempoolOracle/pkg/logger"
)

// TxDecoder turns feed bytes into a structured transaction.
type TxDecoder interface {
	Decode(raw []byte) (*models.DecodedTransaction, error)
}

// TxCollector pulls raw transactions from the feed, decodes and filters
// them, and submits eligible ones to the admission pipeline. Per-transaction
// failures are counted and never stop the loop.
type TxCollector struct {
	feed     drepo.FeedSource
	decoder  TxDecoder
	filter   *EligibilityFilter
	pipe     *mid.RealtimePipeline
	counters *Counters
	metrics  drepo.Metrics
	log      *applogger.Logger
	done     chan struct{}
}

// NewTxCollector creates a new TxCollector instance.
func NewTxCollector(
	feed drepo.FeedSource,
	decoder TxDecoder,
	filter *EligibilityFilter,
	pipe *mid.RealtimePipeline,
	counters *Counters,
	metrics drepo.Metrics,
	log *applogger.Logger,
) *TxCollector {
	if log == nil {
		log = applogger.Nop()
	}
	return &TxCollector{
		feed:     feed,
		decoder:  decoder,
		filter:   filter,
		pipe:     pipe,
		counters: counters,
		metrics:  metrics,
		log:      log.Component("collector"),
		done:     make(chan struct{}),
	}
}

// Start begins consuming. The loop ends when the feed channel closes.
func (c *TxCollector) Start(ctx context.Context) {
	ch := c.feed.Read(ctx)
	// submissions must survive ctx cancellation so in-flight items drain
	go c.consume(context.WithoutCancel(ctx), ch)
}

func (c *TxCollector) consume(ctx context.Context, ch <-chan *models.RawTransaction) {
	defer close(c.done)
	for raw := range ch {
		c.handle(ctx, raw)
	}
}

func (c *TxCollector) handle(ctx context.Context, raw *models.RawTransaction) {
	if raw == nil {
		return
	}
	c.counters.seen.Add(1)
	c.metrics.RecordTx("seen")

	start := time.Now()
	tx, err := c.decoder.Decode(raw.Body)
	c.metrics.RecordLatency("decode", time.Since(start).Seconds())
	if err != nil {
		c.counters.decodeFailures.Add(1)
		c.metrics.RecordError("decode")
		c.log.Debug("transaction dropped", applogger.Uint64("sequence", uint64(raw.Sequence)), applogger.Error(err))
		return
	}

	observed := raw.ReceivedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	etx, reason := c.filter.Evaluate(tx, observed)
	if etx == nil {
		c.counters.ineligible.Add(1)
		c.metrics.RecordTx("ineligible_" + reason)
		return
	}
	c.counters.eligible.Add(1)
	c.metrics.RecordTx("eligible")

	if err := c.pipe.Submit(ctx, etx); err != nil && !errors.Is(err, mid.ErrPipelineClosed) {
		c.metrics.RecordError("pipeline_submit")
		c.log.Warn("pipeline submit failed", applogger.String("txid", etx.TxID), applogger.Error(err))
	}
}

// Wait blocks until the feed channel has been drained or ctx is done.
func (c *TxCollector) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports the feed connectivity.
func (c *TxCollector) IsConnected() bool { return c.feed.IsConnected() }

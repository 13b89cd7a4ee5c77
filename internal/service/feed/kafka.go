package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MempoolOracle/internal/domain/models"
	drepo "MempoolOracle/internal/domain/repository"
	applogger "MempoolOracle/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig selects the topic carrying raw transaction bytes.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// KafkaListener reads raw transactions mirrored into a Kafka topic. Each
// message value is one serialized transaction.
type KafkaListener struct {
	cfg       KafkaConfig
	opts      options
	newReader func(KafkaConfig) messageReader
	probe     func(context.Context, KafkaConfig) error

	connected atomic.Bool
	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewKafkaListener creates a listener for cfg.Topic; nothing connects until
// Read is called.
func NewKafkaListener(cfg KafkaConfig, opts ...Option) (*KafkaListener, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}
	return &KafkaListener{
		cfg:       cfg,
		opts:      buildOptions(opts),
		newReader: newKafkaReader,
		probe:     probeBrokers,
		done:      make(chan struct{}),
	}, nil
}

func newKafkaReader(cfg KafkaConfig) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
}

// probeBrokers succeeds once any broker answers a metadata request for the
// topic.
func probeBrokers(ctx context.Context, cfg KafkaConfig) error {
	var errs []error
	for _, addr := range cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.ReadPartitions(cfg.Topic)
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return errors.Join(errs...)
}

var _ drepo.FeedSource = (*KafkaListener)(nil)

// Read starts the consume loop. Only the first call yields messages; the
// returned channel closes once the listener is closed.
func (l *KafkaListener) Read(ctx context.Context) <-chan *models.RawTransaction {
	out := make(chan *models.RawTransaction, l.opts.buffer)
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		close(out)
		return out
	}
	l.started = true
	ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	go l.run(ctx, out)
	return out
}

func (l *KafkaListener) run(ctx context.Context, out chan<- *models.RawTransaction) {
	defer close(l.done)
	defer close(out)
	log := l.opts.logger

	for ctx.Err() == nil {
		err := l.session(ctx, out)
		l.connected.Store(false)
		if ctx.Err() != nil {
			break
		}

		delay := l.opts.backoff.Failure(time.Now())
		log.Warn("kafka feed lost",
			applogger.String("topic", l.cfg.Topic),
			applogger.Int("attempt", l.opts.backoff.Status().Attempt),
			applogger.Duration("retry_in_ms", delay),
			applogger.Error(err))
		if !sleep(ctx, delay) {
			break
		}
	}
	l.opts.backoff.Stop()
}

// session probes the brokers, then consumes until the reader fails. The
// feed only counts as connected once the reader has delivered a message or
// waited out a full read timeout without error.
func (l *KafkaListener) session(ctx context.Context, out chan<- *models.RawTransaction) error {
	pctx, cancel := context.WithTimeout(ctx, l.opts.readTimeout)
	err := l.probe(pctx, l.cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("kafka probe: %w", err)
	}

	reader := l.newReader(l.cfg)
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			l.opts.logger.Warn("kafka feed reader close", applogger.Error(cerr))
		}
	}()
	return l.consume(ctx, reader, out)
}

func (l *KafkaListener) healthy() {
	if l.connected.Swap(true) {
		return
	}
	l.opts.backoff.Connected()
	l.opts.logger.Info("kafka feed connected",
		applogger.String("topic", l.cfg.Topic),
		applogger.String("group", l.cfg.GroupID))
}

// consume returns on the first non-timeout read error. A quiet topic is not
// a failure: timeouts only bound each wait.
func (l *KafkaListener) consume(ctx context.Context, reader messageReader, out chan<- *models.RawTransaction) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, l.opts.readTimeout)
		msg, err := reader.ReadMessage(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				l.healthy()
				continue
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		l.healthy()
		if len(msg.Value) == 0 {
			continue
		}
		raw := &models.RawTransaction{
			Body:       msg.Value,
			Sequence:   uint32(msg.Offset),
			Source:     "kafka",
			ReceivedAt: time.Now(),
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *KafkaListener) Status() drepo.FeedStatus {
	st := l.opts.backoff.Status()
	return drepo.FeedStatus{State: string(st.State), Attempt: st.Attempt}
}

func (l *KafkaListener) IsConnected() bool { return l.connected.Load() }

// Close stops the consume loop and waits for it to exit.
func (l *KafkaListener) Close() error {
	l.mu.Lock()
	cancel, started := l.cancel, l.started
	l.mu.Unlock()
	if !started {
		return nil
	}
	cancel()
	<-l.done
	return nil
}

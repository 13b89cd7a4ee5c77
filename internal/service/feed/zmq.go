package feed

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MempoolOracle/internal/domain/models"
	drepo "MempoolOracle/internal/domain/repository"
	applogger "MempoolOracle/pkg/logger"

	"github.com/go-zeromq/zmq4"
)

// subscriber is the part of a zmq4 SUB socket the listener uses.
type subscriber interface {
	Recv() (zmq4.Msg, error)
	Close() error
}

type dialFunc func(ctx context.Context, endpoint, topic string) (subscriber, error)

func dialZMQ(ctx context.Context, endpoint, topic string) (subscriber, error) {
	sub := zmq4.NewSub(ctx)
	if err := sub.Dial(endpoint); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("zmq dial %s: %w", endpoint, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, topic); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("zmq subscribe %s: %w", topic, err)
	}
	return sub, nil
}

// ZMQListener subscribes to a node's raw transaction notifications. Frames
// are [topic, body, sequence] with a 4-byte little-endian sequence.
type ZMQListener struct {
	endpoint string
	topic    string
	opts     options
	dial     dialFunc

	connected atomic.Bool
	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewZMQListener creates a listener for endpoint (e.g. tcp://127.0.0.1:28332).
func NewZMQListener(endpoint, topic string, opts ...Option) *ZMQListener {
	return &ZMQListener{
		endpoint: endpoint,
		topic:    topic,
		opts:     buildOptions(opts),
		dial:     dialZMQ,
		done:     make(chan struct{}),
	}
}

var _ drepo.FeedSource = (*ZMQListener)(nil)

// Read starts the receive loop. The returned channel is closed after ctx is
// done or Close is called. Only the first call starts a loop.
func (l *ZMQListener) Read(ctx context.Context) <-chan *models.RawTransaction {
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

func (l *ZMQListener) run(ctx context.Context, out chan<- *models.RawTransaction) {
	defer close(l.done)
	defer close(out)
	log := l.opts.logger

	for ctx.Err() == nil {
		sub, err := l.dial(ctx, l.endpoint, l.topic)
		if err != nil {
			delay := l.opts.backoff.Failure(time.Now())
			st := l.opts.backoff.Status()
			log.Warn("zmq feed connect failed",
				applogger.String("endpoint", l.endpoint),
				applogger.String("state", string(st.State)),
				applogger.Int("attempt", st.Attempt),
				applogger.Duration("retry_in_ms", delay),
				applogger.Error(err))
			if !sleep(ctx, delay) {
				break
			}
			continue
		}

		l.opts.backoff.Connected()
		l.connected.Store(true)
		log.Info("zmq feed connected", applogger.String("endpoint", l.endpoint), applogger.String("topic", l.topic))

		err = l.consume(ctx, sub, out)
		l.connected.Store(false)
		_ = sub.Close()
		if ctx.Err() != nil {
			break
		}

		delay := l.opts.backoff.Failure(time.Now())
		log.Warn("zmq feed lost",
			applogger.String("endpoint", l.endpoint),
			applogger.Duration("retry_in_ms", delay),
			applogger.Error(err))
		if !sleep(ctx, delay) {
			break
		}
	}
	l.opts.backoff.Stop()
}

func (l *ZMQListener) consume(ctx context.Context, sub subscriber, out chan<- *models.RawTransaction) error {
	msgs := make(chan zmq4.Msg)
	errs := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			m, err := sub.Recv()
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- m:
			case <-stop:
				return
			}
		}
	}()

	timer := time.NewTimer(l.opts.readTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return fmt.Errorf("zmq recv: %w", err)
		case <-timer.C:
			return ErrReadTimeout
		case m := <-msgs:
			timer.Reset(l.opts.readTimeout)
			raw, ok := l.parse(m)
			if !ok {
				continue
			}
			select {
			case out <- raw:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (l *ZMQListener) parse(m zmq4.Msg) (*models.RawTransaction, bool) {
	if len(m.Frames) < 2 || string(m.Frames[0]) != l.topic || len(m.Frames[1]) == 0 {
		return nil, false
	}
	raw := &models.RawTransaction{Body: m.Frames[1], Source: "zmq", ReceivedAt: time.Now()}
	if len(m.Frames) > 2 && len(m.Frames[2]) == 4 {
		raw.Sequence = binary.LittleEndian.Uint32(m.Frames[2])
	}
	return raw, true
}

func (l *ZMQListener) Status() drepo.FeedStatus {
	st := l.opts.backoff.Status()
	return drepo.FeedStatus{State: string(st.State), Attempt: st.Attempt}
}

func (l *ZMQListener) IsConnected() bool { return l.connected.Load() }

// Close stops the loop and waits for the connection to be released.
func (l *ZMQListener) Close() error {
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

package feed

import (
	"context"
	"errors"
	"time"

	applogger "MempoolOracle/pkg/logger"
)

// ErrReadTimeout is returned when no message arrives within the read timeout.
var ErrReadTimeout = errors.New("feed read timeout")

type options struct {
	readTimeout time.Duration
	buffer      int
	backoff     *Backoff
	logger      *applogger.Logger
}

type Option func(*options)

// WithReadTimeout bounds the wait for the next message before reconnecting.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// WithBackoff configures the reconnect policy.
func WithBackoff(initial, max time.Duration, failThreshold int) Option {
	return func(o *options) { o.backoff = NewBackoff(initial, max, failThreshold) }
}

// WithBuffer sets the output channel capacity.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		readTimeout: 60 * time.Second,
		buffer:      1024,
		logger:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backoff == nil {
		o.backoff = NewBackoff(time.Second, 30*time.Second, 5)
	}
	return o
}

// sleep waits for d or until ctx is done; it reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

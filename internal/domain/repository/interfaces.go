package repository

import (
	"context"

	"MempoolOracle/internal/domain/models"
)

// FeedSource yields raw transactions and owns its own reconnect policy.
// Read may be called once; the channel closes when ctx is done.
type FeedSource interface {
	Read(ctx context.Context) <-chan *models.RawTransaction
	Status() FeedStatus
	IsConnected() bool
	Close() error
}

// FeedStatus is the externally visible state of a FeedSource.
type FeedStatus struct {
	State   string
	Attempt int
}

type Publisher interface {
	Publish(ctx context.Context, e *models.PriceEstimate) error
	Close() error
}

// EstimateStore keeps the most recent accepted estimate across restarts.
type EstimateStore interface {
	SaveLatest(ctx context.Context, e *models.PriceEstimate) error
	LoadLatest(ctx context.Context) (*models.PriceEstimate, error)
}

type Metrics interface {
	RecordTx(stage string)
	RecordError(kind string)
	RecordEstimate(rate, confidence float64, windowCount int)
	RecordFeedConnected(connected bool)
	RecordClients(n int)
	RecordLatency(op string, seconds float64)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MempoolOracle/internal/domain/models"
	domrepo "MempoolOracle/internal/domain/repository"
	pkgcache "MempoolOracle/pkg/cache"
)

// Producer is the part of pkg/kafka.Producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// EstimateKey partitions every estimate onto one key so consumers see
// them in order.
var EstimateKey = []byte("BTC")

// KafkaPublisher writes accepted estimates to a topic using the same
// versioned schema as the stream.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

// NewKafkaPublisher creates a publisher writing estimates to topic.
func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)

// Publish writes e as a versioned price update keyed by BTC.
func (p *KafkaPublisher) Publish(ctx context.Context, e *models.PriceEstimate) error {
	if e == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, EstimateKey, models.NewPriceUpdate(*e))
}

// Close leaves the shared producer open; the app owns it.
func (p *KafkaPublisher) Close() error { return nil }

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.PriceEstimate) error { return nil }
func (NoopPublisher) Close() error                                         { return nil }

const latestEstimateKey = "estimate:latest"

// CacheEstimateStore keeps the latest accepted estimate in a cache.Service,
// Redis in production.
type CacheEstimateStore struct {
	cache pkgcache.Service
	ttl   time.Duration
}

// NewCacheEstimateStore stores with ttl; zero keeps the entry forever.
func NewCacheEstimateStore(c pkgcache.Service, ttl time.Duration) *CacheEstimateStore {
	return &CacheEstimateStore{cache: c, ttl: ttl}
}

var _ domrepo.EstimateStore = (*CacheEstimateStore)(nil)

// SaveLatest stores e under the latest-estimate key with the window TTL.
func (s *CacheEstimateStore) SaveLatest(ctx context.Context, e *models.PriceEstimate) error {
	if e == nil {
		return nil
	}
	if err := s.cache.Set(ctx, latestEstimateKey, e, s.ttl); err != nil {
		return fmt.Errorf("save latest estimate: %w", err)
	}
	return nil
}

// LoadLatest returns nil without error when nothing is stored.
func (s *CacheEstimateStore) LoadLatest(ctx context.Context) (*models.PriceEstimate, error) {
	var e models.PriceEstimate
	if err := s.cache.Get(ctx, latestEstimateKey, &e); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest estimate: %w", err)
	}
	return &e, nil
}

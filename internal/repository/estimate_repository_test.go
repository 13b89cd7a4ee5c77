package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"MempoolOracle/internal/domain/models"
	pkgcache "MempoolOracle/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	topic string
	key   []byte
	value interface{}
}

func (c *capture) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	c.topic, c.key, c.value = topic, key, value
	return nil
}

func TestKafkaPublisherUsesStreamSchema(t *testing.T) {
	c := &capture{}
	p := NewKafkaPublisher(c, "btc.estimates")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), &models.PriceEstimate{Rate: 61000, Confidence: 0.9, WindowCount: 900, ComputedAt: at}))
	assert.Equal(t, "btc.estimates", c.topic)
	assert.Equal(t, []byte("BTC"), c.key)

	b, err := json.Marshal(c.value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"price_update","version":1,"price":61000,"confidence":0.9,"window_tx_count":900,"computed_at":"2024-05-01T12:00:00Z"}`, string(b))

	assert.NoError(t, p.Publish(context.Background(), nil))
}

func TestCacheEstimateStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := pkgcache.NewRedisCache(pkgcache.WithRedisAddr(mr.Addr()), pkgcache.WithRedisPrefix("oracle"))
	require.NoError(t, err)
	defer rc.Close()

	s := NewCacheEstimateStore(rc, 3*time.Hour)
	ctx := context.Background()

	got, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := &models.PriceEstimate{Rate: 61234.5, Confidence: 0.87, WindowCount: 1500, ComputedAt: at}
	require.NoError(t, s.SaveLatest(ctx, want))
	assert.True(t, mr.Exists("oracle:estimate:latest"))
	assert.Equal(t, 3*time.Hour, mr.TTL("oracle:estimate:latest"))

	got, err = s.LoadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Rate, got.Rate)
	assert.True(t, want.ComputedAt.Equal(got.ComputedAt))
}

func TestCacheEstimateStoreMemory(t *testing.T) {
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	defer mc.Close()
	s := NewCacheEstimateStore(mc, 0)

	require.NoError(t, s.SaveLatest(context.Background(), &models.PriceEstimate{Rate: 50000}))
	got, err := s.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000.0, got.Rate)
}

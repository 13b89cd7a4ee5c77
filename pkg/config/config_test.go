package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 8080, c.Server.Port)
	require.NotNil(t, c.Metrics.Enabled)
	assert.True(t, *c.Metrics.Enabled)
	assert.Equal(t, "zmq", c.Feed.Type)
	assert.Equal(t, "tcp://127.0.0.1:28332", c.Feed.Endpoint)
	assert.Equal(t, "rawtx", c.Feed.Topic)
	assert.Equal(t, 60*time.Second, c.Feed.ReadTimeout)
	assert.Equal(t, time.Second, c.Feed.BackoffInitial)
	assert.Equal(t, 30*time.Second, c.Feed.BackoffMax)
	assert.Equal(t, 5, c.Feed.FailThreshold)
	assert.Equal(t, 2, c.Filter.Outputs)
	assert.Equal(t, 3*time.Hour, c.Pricing.Window)
	assert.Equal(t, 50, c.Pricing.MinObservations)
	assert.Equal(t, 4096, c.Pipeline.BufferSize)
	assert.Equal(t, 0.6, c.Pricing.MinSharpness)
	assert.Equal(t, "drop_oldest", c.Pipeline.Policy)
	assert.Equal(t, 500*time.Millisecond, c.Broadcast.Interval)
	assert.Equal(t, 3*time.Hour, c.Redis.TTL, "ttl follows the pricing window")
	assert.False(t, c.Kafka.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9000
  cors: false
feed:
  type: kafka
  topic: btc.rawtx
pricing:
  window: 1h
  stencil:
    - {usd: 10, weight: 0.8}
    - {usd: 100, weight: 1}
broadcast:
  interval: 2s
kafka:
  enabled: true
  brokers: [k1:9092, k2:9092]
redis:
  enabled: true
  ttl: 10m
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9000, c.Server.Port)
	require.NotNil(t, c.Server.CORS)
	assert.False(t, *c.Server.CORS)
	assert.Equal(t, "kafka", c.Feed.Type)
	assert.Equal(t, time.Hour, c.Pricing.Window)
	require.Len(t, c.Pricing.Stencil, 2)
	assert.Equal(t, 2*time.Second, c.Broadcast.Interval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 10*time.Minute, c.Redis.TTL)
	assert.Equal(t, "127.0.0.1:6379", c.Redis.Addr())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"fast interval":         "broadcast:\n  interval: 200ms\n",
		"bad policy":            "pipeline:\n  policy: newest\n",
		"kafka feed no brokers": "feed:\n  type: kafka\n",
		"bad endpoint":          "feed:\n  endpoint: localhost:28332\n",
		"inverted rates":        "pricing:\n  min_rate: 5000\n  max_rate: 100\n",
		"heavy stencil":         "pricing:\n  stencil:\n    - {usd: 10, weight: 2}\n",
		"duplicate stencil":     "pricing:\n  stencil:\n    - {usd: 10, weight: 1}\n    - {usd: 10, weight: 0.5}\n",
		"ping after pong":       "broadcast:\n  pong_wait: 10s\n  ping_period: 20s\n",
		"bad port":              "server:\n  port: 70000\n",
		"bad log level":         "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FEED_ENDPOINT", "tcp://node:28332")
	t.Setenv("BITCOIN_NETWORK", "regtest")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv(writeConfig(t, "environment: staging\n"))
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, "tcp://node:28332", c.Feed.Endpoint)
	assert.Equal(t, "regtest", c.Feed.Network)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache:6380", c.Redis.Addr())
	assert.Equal(t, 9191, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadWithEnvReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FEED_TOPIC=rawtx2\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FEED_TOPIC") })

	c, err := LoadWithEnv("")
	require.NoError(t, err)
	assert.Equal(t, "rawtx2", c.Feed.Topic)
}

func TestLoadWithEnvRejectsBadPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "http")
	_, err := LoadWithEnv("")
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "console", c.Log.Format)
	assert.Equal(t, "mempool-oracle.logs", c.Kafka.LogsTopic)
}

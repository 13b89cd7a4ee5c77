package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedEntry))
	return nil
}

func (p *capturePublisher) all() []AggregatedEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestFieldsRenderAsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).Component("orchestrator")

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l.Info("estimate",
		String("source", "zmq"),
		Int("window", 42),
		Float64("rate", 61234.5),
		Bool("accepted", true),
		Duration("elapsed_ms", 1500*time.Millisecond),
		Time("at", ts),
		Error(errors.New("boom")))

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "orchestrator", rec["component"])
	assert.Equal(t, "zmq", rec["source"])
	assert.Equal(t, float64(42), rec["window"])
	assert.Equal(t, 61234.5, rec["rate"])
	assert.Equal(t, true, rec["accepted"])
	assert.Equal(t, float64(1500), rec["elapsed_ms"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "estimate", rec["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNopIsSilent(t *testing.T) {
	l := Nop()
	l.Info("x", String("k", "v"))
	l.Error("x", Error(nil))
	l.With(Int("n", 1)).Warn("y")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWithWriter(&bytes.Buffer{}, zerolog.InfoLevel)
	l.AddCollector(&CollectorConfig{Interval: time.Hour, MaxEntries: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		l.Warn("feed lost", String("endpoint", "tcp://node:28332"))
	}
	l.Error("decode failed", String("reason", "truncated"))
	l.Info("not collected")
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "logs", pub.topic)
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 5, counts["feed lost"])
	assert.Equal(t, 1, counts["decode failed"])
}

func TestCollectorFlushesWhenFull(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectorConfig{Interval: time.Hour, MaxEntries: 3, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.Add("error", "a", nil, "x.go:1")
	c.Add("error", "b", nil, "x.go:2")
	c.Add("error", "c", nil, "x.go:3")

	require.Eventually(t, func() bool { return len(pub.all()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Pending())
}

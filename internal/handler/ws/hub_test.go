package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"MempoolOracle/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) RecordTx(string)                      {}
func (nopMetrics) RecordError(string)                   {}
func (nopMetrics) RecordEstimate(float64, float64, int) {}
func (nopMetrics) RecordFeedConnected(bool)             {}
func (nopMetrics) RecordClients(int)                    {}
func (nopMetrics) RecordLatency(string, float64)        {}

// fakeClient is a drop-oldest queue that never drains unless told to.
type fakeClient struct {
	id  string
	cap int

	mu     sync.Mutex
	queue  [][]byte
	closed bool
}

func newFakeClient(id string, capacity int) *fakeClient {
	return &fakeClient{id: id, cap: capacity}
}

func (f *fakeClient) ID() string { return f.id }

func (f *fakeClient) Enqueue(msg []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	dropped := false
	if len(f.queue) == f.cap {
		f.queue = f.queue[1:]
		dropped = true
	}
	f.queue = append(f.queue, msg)
	return dropped
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClient) drain() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.queue
	f.queue = nil
	return out
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func estimate(rate float64) models.PriceEstimate {
	return models.PriceEstimate{Rate: rate, Confidence: 0.8, WindowCount: 1200, ComputedAt: time.Unix(1_700_000_000, 0)}
}

func decodeUpdate(t *testing.T, b []byte) models.PriceUpdate {
	t.Helper()
	var u models.PriceUpdate
	require.NoError(t, json.Unmarshal(b, &u))
	return u
}

func TestRegisterSendsHandshakeThenLatest(t *testing.T) {
	hub := NewHub(nopMetrics{})
	first := newFakeClient("a", 16)
	require.NoError(t, hub.Register(first))
	msgs := first.drain()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"type":"connected","version":1,"status":"ok"}`, string(msgs[0]))

	hub.Publish(estimate(61_000))
	hub.Flush()

	late := newFakeClient("b", 16)
	require.NoError(t, hub.Register(late))
	msgs = late.drain()
	require.Len(t, msgs, 2)
	u := decodeUpdate(t, msgs[1])
	assert.Equal(t, models.MessagePriceUpdate, u.Type)
	assert.Equal(t, 1, u.Version)
	assert.Equal(t, 61_000.0, u.Price)
	assert.Equal(t, 1200, u.WindowTxCount)
	assert.Equal(t, "2023-11-14T22:13:20Z", u.ComputedAt)
}

func TestFlushCoalescesPublishes(t *testing.T) {
	hub := NewHub(nopMetrics{})
	c := newFakeClient("a", 1024)
	require.NoError(t, hub.Register(c))
	c.drain()

	for i := 0; i < 100; i++ {
		hub.Publish(estimate(60_000 + float64(i)))
	}
	assert.Equal(t, 1, hub.Flush())
	assert.Equal(t, 0, hub.Flush(), "nothing pending after a flush")

	msgs := c.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, 60_099.0, decodeUpdate(t, msgs[0]).Price)
}

func TestSeedDoesNotBroadcastOrOverwrite(t *testing.T) {
	hub := NewHub(nopMetrics{})
	c := newFakeClient("a", 16)
	require.NoError(t, hub.Register(c))
	c.drain()

	require.NoError(t, hub.Seed(estimate(50_000)))
	assert.Equal(t, 0, hub.Flush())
	assert.Empty(t, c.drain())
	assert.Equal(t, 50_000.0, decodeUpdate(t, hub.Latest()).Price)

	hub.Publish(estimate(52_000))
	hub.Flush()
	require.NoError(t, hub.Seed(estimate(1)))
	assert.Equal(t, 52_000.0, decodeUpdate(t, hub.Latest()).Price)
}

func TestSlowClientDoesNotAffectOthers(t *testing.T) {
	hub := NewHub(nopMetrics{}, WithEvictAfter(0))
	slow := newFakeClient("slow", 2)
	fast := newFakeClient("fast", 2)
	require.NoError(t, hub.Register(slow))
	require.NoError(t, hub.Register(fast))
	fast.drain()

	for i := 1; i <= 10; i++ {
		hub.Publish(estimate(float64(i)))
		hub.Flush()
		msgs := fast.drain()
		require.Len(t, msgs, 1)
		assert.Equal(t, float64(i), decodeUpdate(t, msgs[0]).Price)
	}

	msgs := slow.drain()
	require.Len(t, msgs, 2, "only the newest messages survive")
	assert.Equal(t, 9.0, decodeUpdate(t, msgs[0]).Price)
	assert.Equal(t, 10.0, decodeUpdate(t, msgs[1]).Price)
	assert.Equal(t, 2, hub.ClientCount())
}

func TestEvictsAfterConsecutiveDrops(t *testing.T) {
	hub := NewHub(nopMetrics{}, WithEvictAfter(3))
	stuck := newFakeClient("stuck", 1)
	ok := newFakeClient("ok", 1)
	require.NoError(t, hub.Register(stuck))
	require.NoError(t, hub.Register(ok))
	stuck.drain()
	ok.drain()

	for i := 0; i < 3; i++ {
		hub.Publish(estimate(float64(i + 1)))
		hub.Flush()
		ok.drain()
	}
	// first flush filled the empty queue; two drops so far
	assert.Equal(t, 2, hub.ClientCount())

	hub.Publish(estimate(4))
	hub.Flush()
	assert.Equal(t, 1, hub.ClientCount())
	assert.True(t, stuck.isClosed())
	assert.False(t, ok.isClosed())
}

func TestDrainingResetsDropStreak(t *testing.T) {
	hub := NewHub(nopMetrics{}, WithEvictAfter(2))
	c := newFakeClient("c", 1)
	require.NoError(t, hub.Register(c))
	c.drain()

	for i := 0; i < 10; i++ {
		hub.Publish(estimate(1))
		hub.Flush() // fills
		hub.Publish(estimate(2))
		hub.Flush() // one drop
		c.drain()
	}
	assert.Equal(t, 1, hub.ClientCount())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nopMetrics{})
	c := newFakeClient("a", 4)
	require.NoError(t, hub.Register(c))
	hub.Unregister(c)
	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
	assert.True(t, c.isClosed())

	// a stale handle must not remove a newer client with the same id
	c2 := newFakeClient("a", 4)
	require.NoError(t, hub.Register(c2))
	hub.Unregister(c)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestCloseAllRefusesRegistration(t *testing.T) {
	hub := NewHub(nopMetrics{})
	a, b := newFakeClient("a", 4), newFakeClient("b", 4)
	require.NoError(t, hub.Register(a))
	require.NoError(t, hub.Register(b))

	hub.CloseAll()
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Equal(t, 0, hub.ClientCount())
	assert.ErrorIs(t, hub.Register(newFakeClient("c", 4)), ErrHubClosed)

	hub.Publish(estimate(1))
	assert.Equal(t, 0, hub.Flush())
}

// gatedClient stalls its first Enqueue until released or a timeout passes.
type gatedClient struct {
	*fakeClient
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedClient) Enqueue(msg []byte) bool {
	g.once.Do(func() {
		close(g.entered)
		select {
		case <-g.release:
		case <-time.After(50 * time.Millisecond):
		}
	})
	return g.fakeClient.Enqueue(msg)
}

func TestRegisterOrdersAheadOfConcurrentFlush(t *testing.T) {
	hub := NewHub(nopMetrics{})
	hub.Publish(estimate(60_000))
	hub.Flush()

	c := &gatedClient{
		fakeClient: newFakeClient("a", 16),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		<-c.entered
		hub.Publish(estimate(70_000))
		hub.Flush()
		close(c.release)
	}()

	require.NoError(t, hub.Register(c))
	<-flushed

	msgs := c.drain()
	require.Len(t, msgs, 3)
	assert.JSONEq(t, `{"type":"connected","version":1,"status":"ok"}`, string(msgs[0]))
	assert.Equal(t, 60_000.0, decodeUpdate(t, msgs[1]).Price)
	assert.Equal(t, 70_000.0, decodeUpdate(t, msgs[2]).Price)
}

func TestForgetClearsLatestAndPending(t *testing.T) {
	hub := NewHub(nopMetrics{})
	hub.Publish(estimate(60_000))
	hub.Flush()
	hub.Publish(estimate(61_000))

	hub.Forget()
	assert.Nil(t, hub.Latest())
	assert.Zero(t, hub.Flush(), "pending estimate dropped")

	c := newFakeClient("a", 16)
	require.NoError(t, hub.Register(c))
	msgs := c.drain()
	require.Len(t, msgs, 1, "handshake only")
	assert.JSONEq(t, `{"type":"connected","version":1,"status":"ok"}`, string(msgs[0]))
}

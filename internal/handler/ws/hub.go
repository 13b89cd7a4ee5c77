package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"MempoolOracle/internal/domain/models"
	drepo "MempoolOracle/internal/domain/repository"
	svcmetrics "MempoolOracle/internal/service/metrics"
	applogger "MempoolOracle/pkg/logger"
)

var ErrHubClosed = errors.New("broadcast hub closed")

// Client is one registered stream consumer. Enqueue must never block: when
// the client's queue is full it discards its oldest pending message and
// reports dropped.
type Client interface {
	ID() string
	Enqueue(msg []byte) (dropped bool)
	Close()
}

type member struct {
	client Client
	drops  atomic.Int32 // consecutive
}

// Hub fans estimates out to clients. Publish only records the newest
// estimate; Flush sends it once, so any number of publishes between two
// flushes yields a single message per client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*member
	closed  bool

	pending    *models.PriceEstimate
	latest     []byte
	evictAfter int32

	metrics drepo.Metrics
	log     *applogger.Logger
}

type HubOption func(*Hub)

// WithEvictAfter unregisters a client after n consecutive drops.
// Zero disables eviction.
func WithEvictAfter(n int) HubOption {
	return func(h *Hub) {
		if n >= 0 {
			h.evictAfter = int32(n)
		}
	}
}

// WithHubLogger sets the hub logger.
func WithHubLogger(l *applogger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l.Component("broadcast")
		}
	}
}

// NewHub creates a Hub that evicts a client after 32 consecutive drops
// unless configured otherwise.
func NewHub(metrics drepo.Metrics, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]*member),
		evictAfter: 32,
		metrics:    metrics,
		log:        applogger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var handshake, _ = json.Marshal(models.NewHandshake())

// Register adds c and queues the handshake followed by the latest known
// estimate, if any. Both are queued before c becomes visible to Flush.
func (h *Hub) Register(c Client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if old, ok := h.clients[c.ID()]; ok && old.client != c {
		old.client.Close()
	}
	c.Enqueue(handshake)
	if h.latest != nil {
		c.Enqueue(h.latest)
	}
	h.clients[c.ID()] = &member{client: c}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.RecordClients(n)
	h.log.Debug("client registered", applogger.String("client", c.ID()), applogger.Int("clients", n))
	return nil
}

// Unregister removes c and closes it. Repeated calls are no-ops.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	m, ok := h.clients[c.ID()]
	if !ok || m.client != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID())
	n := len(h.clients)
	h.mu.Unlock()

	c.Close()
	h.metrics.RecordClients(n)
	h.log.Debug("client unregistered", applogger.String("client", c.ID()), applogger.Int("clients", n))
}

// Publish records est as the next message to broadcast.
func (h *Hub) Publish(est models.PriceEstimate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = &est
}

// Seed sets the estimate new clients receive on connect without
// broadcasting it.
func (h *Hub) Seed(est models.PriceEstimate) error {
	b, err := json.Marshal(models.NewPriceUpdate(est))
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		h.latest = b
	}
	return nil
}

// Flush broadcasts the pending estimate, if any, and returns the number of
// clients it was queued to.
func (h *Hub) Flush() int {
	h.mu.Lock()
	if h.pending == nil || h.closed {
		h.mu.Unlock()
		return 0
	}
	b, err := json.Marshal(models.NewPriceUpdate(*h.pending))
	h.pending = nil
	if err != nil {
		h.mu.Unlock()
		h.metrics.RecordError("broadcast_encode")
		return 0
	}
	h.latest = b
	members := make([]*member, 0, len(h.clients))
	for _, m := range h.clients {
		members = append(members, m)
	}
	h.mu.Unlock()

	var slow []Client
	for _, m := range members {
		if !m.client.Enqueue(b) {
			m.drops.Store(0)
			continue
		}
		svcmetrics.ClientDrops.Inc()
		if d := m.drops.Add(1); h.evictAfter > 0 && d >= h.evictAfter {
			slow = append(slow, m.client)
		}
	}
	for _, c := range slow {
		svcmetrics.ClientEvictions.Inc()
		h.log.Warn("evicting slow client", applogger.String("client", c.ID()))
		h.Unregister(c)
	}
	svcmetrics.BroadcastsTotal.Inc()
	return len(members)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Forget drops the pending and latest estimates, so clients connecting
// afterwards receive only the handshake until the next flush.
func (h *Hub) Forget() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
	h.latest = nil
}

// Latest returns the last broadcast or seeded message.
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// CloseAll closes every client and refuses further registrations.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*member)
	h.mu.Unlock()

	for _, m := range clients {
		m.client.Close()
	}
	h.metrics.RecordClients(0)
}

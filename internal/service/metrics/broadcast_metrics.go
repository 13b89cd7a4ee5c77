package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	BroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mempool_oracle",
			Name:      "broadcasts_total",
			Help:      "Broadcast ticks that fanned out an update",
		},
	)

	ClientDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mempool_oracle",
			Name:      "client_drops_total",
			Help:      "Queued messages discarded to make room for newer ones",
		},
	)

	ClientEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mempool_oracle",
			Name:      "client_evictions_total",
			Help:      "Clients unregistered for not draining their queue",
		},
	)

	ConnectRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mempool_oracle",
			Name:      "connect_rejected_total",
			Help:      "Websocket connection attempts refused",
		},
		[]string{"reason"},
	)
)

// Register adds the broadcast vectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(BroadcastsTotal, ClientDrops, ClientEvictions, ConnectRejected)
	})
}

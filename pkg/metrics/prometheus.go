package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	txTotal       *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	rate          prometheus.Gauge
	confidence    prometheus.Gauge
	windowCount   prometheus.Gauge
	estimates     prometheus.Counter
	feedConnected prometheus.Gauge
	clients       prometheus.Gauge
	latency       *prometheus.HistogramVec
}

// New registers the recorder's collectors with the default registry.
func New() *Recorder { return NewWithRegistry(prometheus.DefaultRegisterer) }

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		txTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mempool_oracle_transactions_total",
				Help: "Transactions by pipeline stage",
			},
			[]string{"stage"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mempool_oracle_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		rate: f.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_oracle_rate",
			Help: "Latest accepted fiat per BTC estimate",
		}),
		confidence: f.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_oracle_confidence",
			Help: "Confidence of the latest accepted estimate",
		}),
		windowCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_oracle_window_observations",
			Help: "Observations in the rolling window at the last estimate",
		}),
		estimates: f.NewCounter(prometheus.CounterOpts{
			Name: "mempool_oracle_estimates_total",
			Help: "Accepted estimates",
		}),
		feedConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_oracle_feed_connected",
			Help: "1 when the transaction feed is connected",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_oracle_stream_clients",
			Help: "Connected stream clients",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mempool_oracle_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTx(stage string) {
	r.txTotal.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordEstimate records an accepted estimate.
func (r *Recorder) RecordEstimate(rate, confidence float64, windowCount int) {
	r.estimates.Inc()
	r.rate.Set(rate)
	r.confidence.Set(confidence)
	r.windowCount.Set(float64(windowCount))
}

func (r *Recorder) RecordFeedConnected(connected bool) {
	if connected {
		r.feedConnected.Set(1)
		return
	}
	r.feedConnected.Set(0)
}

func (r *Recorder) RecordClients(n int) {
	r.clients.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

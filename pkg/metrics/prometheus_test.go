package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordTx("seen")
	r.RecordTx("seen")
	r.RecordTx("eligible")
	r.RecordError("decode")
	r.RecordEstimate(61000, 0.9, 1234)
	r.RecordFeedConnected(true)
	r.RecordClients(3)
	r.RecordLatency("estimate", 0.002)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.txTotal.WithLabelValues("seen")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("decode")))
	assert.Equal(t, 61000.0, testutil.ToFloat64(r.rate))
	assert.Equal(t, 0.9, testutil.ToFloat64(r.confidence))
	assert.Equal(t, 1234.0, testutil.ToFloat64(r.windowCount))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.estimates))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.feedConnected))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.clients))

	r.RecordFeedConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.feedConnected))
}

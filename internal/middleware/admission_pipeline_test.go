package middleware

import (
	"context"
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

type recordingAdmitter struct {
	mu    sync.Mutex
	ids   []string
	delay time.Duration
}

func (a *recordingAdmitter) AdmitTx(tx *models.EligibleTransaction) int {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, tx.TxID)
	return len(tx.Amounts)
}

func (a *recordingAdmitter) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ids...)
}

func etx(id string) *models.EligibleTransaction {
	return &models.EligibleTransaction{TxID: id, Amounts: []float64{0.001, 0.002}, ObservedAt: time.Now()}
}

func TestPipelineRejectsUnknownPolicy(t *testing.T) {
	_, err := NewRealtimePipeline(&recordingAdmitter{}, nopMetrics{}, WithPolicy("fifo"))
	assert.Error(t, err)
}

func TestPipelineDropOldest(t *testing.T) {
	adm := &recordingAdmitter{}
	p, err := NewRealtimePipeline(adm, nopMetrics{}, WithBufferSize(3))
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, p.Submit(ctx, etx(id)))
	}
	assert.Equal(t, uint64(2), p.Dropped())
	assert.Equal(t, 3, p.Depth())

	p.Start()
	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, []string{"c", "d", "e"}, adm.seen())
	assert.Equal(t, uint64(6), p.Admitted())

	p.ResetCounters()
	assert.Zero(t, p.Dropped())
	assert.Zero(t, p.Admitted())
}

func TestPipelineBlockPolicyHonorsContext(t *testing.T) {
	p, err := NewRealtimePipeline(&recordingAdmitter{}, nopMetrics{}, WithBufferSize(1), WithPolicy(PolicyBlock))
	require.NoError(t, err)

	require.NoError(t, p.Submit(context.Background(), etx("a")))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, etx("b")), context.DeadlineExceeded)
	assert.Zero(t, p.Dropped())
}

func TestPipelineStopDrainsInFlight(t *testing.T) {
	adm := &recordingAdmitter{delay: time.Millisecond}
	p, err := NewRealtimePipeline(adm, nopMetrics{}, WithBufferSize(64), WithPolicy(PolicyBlock))
	require.NoError(t, err)
	p.Start()

	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(context.Background(), etx(string(rune('a'+i)))))
	}
	require.NoError(t, p.Stop(context.Background()))
	assert.Len(t, adm.seen(), 20)

	assert.ErrorIs(t, p.Submit(context.Background(), etx("late")), ErrPipelineClosed)
	assert.NoError(t, p.Stop(context.Background()))
}

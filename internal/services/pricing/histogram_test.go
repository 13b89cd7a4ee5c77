package pricing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinIndex(t *testing.T) {
	assert.Equal(t, 0, BinIndex(1e-6))
	assert.Equal(t, 200, BinIndex(1e-5*1.0000001))
	assert.Equal(t, 1200, BinIndex(1.0))
	assert.Equal(t, NumBins-1, BinIndex(1e6))
	assert.Equal(t, -1, BinIndex(0))
	assert.Equal(t, -1, BinIndex(-1))
	assert.Equal(t, -1, BinIndex(1e-7))
	assert.Equal(t, -1, BinIndex(2e6))
}

func TestBinEdgesIncreasing(t *testing.T) {
	prev := 0.0
	for i := 0; i < NumBins; i++ {
		edge := BinLowerEdge(i)
		require.Greater(t, edge, prev)
		prev = edge
	}
	assert.InDelta(t, 1e-6, BinLowerEdge(0), 1e-18)
}

// Sum of counts after Evict(T) equals the admissions stamped at or after
// T-window, for any arrival order.
func TestHistogramConservation(t *testing.T) {
	window := 3 * time.Hour
	base := time.Unix(1_700_000_000, 0)
	rnd := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		h := NewHistogram(window)
		var stamps []time.Time
		for i := 0; i < 2000; i++ {
			ts := base.Add(time.Duration(rnd.Int63n(int64(6 * time.Hour))))
			require.True(t, h.Admit(1e-4*(1+rnd.Float64()*100), ts))
			stamps = append(stamps, ts)
		}
		evictAt := base.Add(time.Duration(rnd.Int63n(int64(9 * time.Hour))))
		h.Evict(evictAt)

		want := 0
		for _, ts := range stamps {
			if !ts.Before(evictAt.Add(-window)) {
				want++
			}
		}
		sum := 0
		for _, c := range h.Counts() {
			require.GreaterOrEqual(t, c, 0)
			sum += c
		}
		assert.Equal(t, want, sum, "round %d", round)
		assert.Equal(t, want, h.Total())
	}
}

func TestHistogramEvictInOrder(t *testing.T) {
	h := NewHistogram(time.Hour)
	base := time.Unix(0, 0)
	for i := 0; i < 5000; i++ {
		h.Admit(0.001, base.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, 5000, h.Total())

	removed := h.Evict(base.Add(2 * time.Hour))
	assert.Equal(t, 3600, removed)
	assert.Equal(t, 1400, h.Total())
	assert.Equal(t, 1400, h.Counts()[BinIndex(0.001)])

	assert.Equal(t, 0, h.Evict(base.Add(2*time.Hour)))
	h.Evict(base.Add(10 * time.Hour))
	assert.Equal(t, 0, h.Total())

	h.Admit(0.5, base)
	h.Reset()
	assert.Equal(t, 0, h.Total())
}

func TestHistogramRejectsOutOfRange(t *testing.T) {
	h := NewHistogram(time.Hour)
	assert.False(t, h.Admit(0, time.Now()))
	assert.False(t, h.Admit(5e6, time.Now()))
	assert.Equal(t, 0, h.Total())
}

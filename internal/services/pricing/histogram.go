package pricing

import (
	"math"
	"sort"
	"time"
)

const (
	NumBins       = 2400
	BinsPerDecade = 200
	MinExponent   = -6 // lower edge 1e-6 BTC
	MaxExponent   = MinExponent + NumBins/BinsPerDecade

	edgeTolerance = 1e-9
)

// BinIndex maps a BTC amount to its log-spaced bin, or -1 when the amount
// is outside [1e-6, 1e6].
func BinIndex(amount float64) int {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return -1
	}
	x := (math.Log10(amount) - MinExponent) * BinsPerDecade
	// tolerate log10 rounding at the outer edges
	if x < 0 && x > -edgeTolerance {
		x = 0
	}
	if x < 0 || x > NumBins+edgeTolerance {
		return -1
	}
	i := int(math.Floor(x))
	if i >= NumBins {
		i = NumBins - 1
	}
	return i
}

// BinLowerEdge returns the lower edge of bin i in BTC.
func BinLowerEdge(i int) float64 {
	return math.Pow(10, MinExponent+float64(i)/BinsPerDecade)
}

type observation struct {
	bin int
	ts  time.Time
}

// Histogram counts observations per bin over a trailing time window. It is
// not safe for concurrent use; Engine serializes access.
type Histogram struct {
	window time.Duration
	counts [NumBins]int
	total  int
	// queue holds observations ordered by timestamp, live from head.
	queue []observation
	head  int
}

// NewHistogram creates an empty histogram with the given rolling window.
func NewHistogram(window time.Duration) *Histogram {
	return &Histogram{window: window}
}

// Window returns the rolling window length.
func (h *Histogram) Window() time.Duration { return h.window }

// Admit records amount at ts. It reports false for amounts outside the
// histogram range.
func (h *Histogram) Admit(amount float64, ts time.Time) bool {
	bin := BinIndex(amount)
	if bin < 0 {
		return false
	}
	h.counts[bin]++
	h.total++

	obs := observation{bin: bin, ts: ts}
	n := len(h.queue)
	if n == h.head || !ts.Before(h.queue[n-1].ts) {
		h.queue = append(h.queue, obs)
		return true
	}
	// late arrival: keep the queue sorted
	live := h.queue[h.head:]
	at := sort.Search(len(live), func(i int) bool { return live[i].ts.After(ts) })
	h.queue = append(h.queue, observation{})
	live = h.queue[h.head:]
	copy(live[at+1:], live[at:])
	live[at] = obs
	return true
}

// Evict drops observations older than now-window and returns how many
// were removed.
func (h *Histogram) Evict(now time.Time) int {
	cutoff := now.Add(-h.window)
	removed := 0
	for h.head < len(h.queue) && h.queue[h.head].ts.Before(cutoff) {
		h.counts[h.queue[h.head].bin]--
		h.head++
		removed++
	}
	h.total -= removed
	if h.head == len(h.queue) {
		h.queue = h.queue[:0]
		h.head = 0
	} else if h.head > 1024 && h.head > len(h.queue)/2 {
		n := copy(h.queue, h.queue[h.head:])
		h.queue = h.queue[:n]
		h.head = 0
	}
	return removed
}

// Total returns the number of observations currently counted.
func (h *Histogram) Total() int { return h.total }

// Counts returns a copy of the bin counts.
func (h *Histogram) Counts() []int {
	out := make([]int, NumBins)
	copy(out, h.counts[:])
	return out
}

// Reset clears every bin and the eviction queue.
func (h *Histogram) Reset() {
	h.counts = [NumBins]int{}
	h.total = 0
	h.queue = nil
	h.head = 0
}

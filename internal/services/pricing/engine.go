package pricing

import (
	"math"
	"sort"
	"sync"
	"time"

	"MempoolOracle/internal/domain/models"
)

const (
	neighborReach   = 8 // excess baseline uses bins at distance 2..8
	refineSpan      = 3.0
	refineStep      = 0.05
	evidenceScale   = 500.0
	defaultMinObs   = 50
	defaultMinRate  = 1_000.0
	defaultMaxRate  = 1_000_000.0
	defaultMinSharp = 0.6
)

// Result is the outcome of scoring one histogram snapshot.
type Result struct {
	Rate         float64
	Confidence   float64
	Shift        float64 // 200*log10(rate)
	RoughBest    float64 // spike component of the best rough candidate
	RoughMedian  float64
	Sharpness    float64
	Observations int
	OK           bool
}

// Engine owns the rolling histogram. Admit and Evict hold the lock only for
// the bin update; Estimate scores a copy of the counts outside the lock.
type Engine struct {
	mu        sync.Mutex
	hist      *Histogram
	latest    *models.PriceEstimate
	version   uint64
	estimated uint64

	stencil      *Stencil
	minObs       int
	minRate      float64
	maxRate      float64
	minSharp     float64
	smoothWeight float64
}

type EngineOption func(*Engine)

// WithWindow sets the rolling window (default 3h).
func WithWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.hist = NewHistogram(d)
		}
	}
}

// WithMinObservations sets the evidence threshold below which estimates are withheld.
func WithMinObservations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.minObs = n
		}
	}
}

// WithRateRange bounds the candidate exchange rates.
func WithRateRange(min, max float64) EngineOption {
	return func(e *Engine) {
		if min > 0 && max > min {
			e.minRate, e.maxRate = min, max
		}
	}
}

// WithMinSharpness sets how far the best candidate must stand above the
// median candidate, as 1 - median/best, for an estimate to be accepted.
func WithMinSharpness(v float64) EngineOption {
	return func(e *Engine) {
		if v >= 0 && v < 1 {
			e.minSharp = v
		}
	}
}

// WithSmoothWeight sets the weight of the smooth stencil component.
func WithSmoothWeight(w float64) EngineOption {
	return func(e *Engine) {
		if w >= 0 {
			e.smoothWeight = w
		}
	}
}

// WithStencil replaces the default round-amount table.
func WithStencil(s *Stencil) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.stencil = s
		}
	}
}

// NewEngine creates an Engine with a 3h window and the default stencil.
func NewEngine(opts ...EngineOption) *Engine {
	def, _ := NewStencil(DefaultPeaks)
	e := &Engine{
		hist:         NewHistogram(3 * time.Hour),
		stencil:      def,
		minObs:       defaultMinObs,
		minRate:      defaultMinRate,
		maxRate:      defaultMaxRate,
		minSharp:     defaultMinSharp,
		smoothWeight: 0.02,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Admit records one candidate amount.
func (e *Engine) Admit(amount float64, ts time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hist.Admit(amount, ts) {
		return false
	}
	e.version++
	return true
}

// AdmitTx records every amount of tx and returns how many were in range.
func (e *Engine) AdmitTx(tx *models.EligibleTransaction) int {
	if tx == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, a := range tx.Amounts {
		if e.hist.Admit(a, tx.ObservedAt) {
			n++
		}
	}
	if n > 0 {
		e.version++
	}
	return n
}

// Evict removes contributions older than the window.
func (e *Engine) Evict(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.hist.Evict(now)
	if n > 0 {
		e.version++
	}
	return n
}

// Dirty reports whether the histogram changed since the last Estimate.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version != e.estimated
}

// WindowCount returns the number of observations inside the window.
func (e *Engine) WindowCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.Total()
}

// Snapshot copies the current bin counts.
func (e *Engine) Snapshot() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.Counts()
}

// Latest returns the last accepted estimate.
func (e *Engine) Latest() (models.PriceEstimate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return models.PriceEstimate{}, false
	}
	return *e.latest, true
}

// Seed installs a previously persisted estimate if none was computed yet.
func (e *Engine) Seed(est models.PriceEstimate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil && est.Rate > 0 {
		e.latest = &est
	}
}

// Reset clears the histogram and forgets the latest estimate.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hist.Reset()
	e.latest = nil
	e.version++
}

// Estimate scores the current histogram. When evidence is insufficient or
// the curve has no distinct peak the returned estimate has zero confidence, carries the previous rate, and the
// latest accepted estimate is left untouched.
func (e *Engine) Estimate(now time.Time) (models.PriceEstimate, bool) {
	e.mu.Lock()
	counts := e.hist.Counts()
	e.estimated = e.version
	var prevRate float64
	if e.latest != nil {
		prevRate = e.latest.Rate
	}
	e.mu.Unlock()

	res := e.Score(counts)
	est := models.PriceEstimate{Rate: prevRate, WindowCount: res.Observations, ComputedAt: now}
	if !res.OK {
		return est, false
	}
	est.Rate = res.Rate
	est.Confidence = res.Confidence

	e.mu.Lock()
	accepted := est
	e.latest = &accepted
	e.mu.Unlock()
	return est, true
}

// Score runs the stencil search over a count vector. It is deterministic
// and does not touch engine state. A result whose sharpness is below the
// minimum carries its diagnostics but is not OK.
func (e *Engine) Score(counts []int) Result {
	total := 0
	for _, c := range counts {
		total += c
	}
	res := Result{Observations: total}
	if total < e.minObs || total == 0 || len(counts) != NumBins {
		return res
	}

	f := make([]float64, NumBins)
	nz := make([]int, 0, 256)
	for i, c := range counts {
		if c > 0 {
			f[i] = float64(c) / float64(total)
			nz = append(nz, i)
		}
	}
	d := excess(f)

	kMin := int(math.Ceil(BinsPerDecade * math.Log10(e.minRate)))
	kMax := int(math.Floor(BinsPerDecade * math.Log10(e.maxRate)))
	if kMax < kMin {
		return res
	}
	lut := e.stencil.smoothTable(kMin, kMax)

	spikes := make([]float64, 0, kMax-kMin+1)
	bestK, bestScore, bestSpike := kMin, math.Inf(-1), 0.0
	for k := kMin; k <= kMax; k++ {
		sp := e.stencil.spikeRough(d, k)
		sc := sp + e.smoothWeight*smoothAt(f, nz, lut, kMin, k)
		spikes = append(spikes, sp)
		if sc > bestScore {
			bestK, bestScore, bestSpike = k, sc, sp
		}
	}
	if bestSpike <= 0 {
		return res
	}

	lo := BinsPerDecade * math.Log10(e.minRate)
	hi := BinsPerDecade * math.Log10(e.maxRate)
	bestT, bestFine := float64(bestK), math.Inf(-1)
	steps := int(math.Round(refineSpan / refineStep))
	for s := -steps; s <= steps; s++ {
		t := float64(bestK) + float64(s)*refineStep
		if t < lo || t > hi {
			continue
		}
		sc := e.stencil.spikeFine(d, t) + e.smoothWeight*e.stencil.smooth(f, nz, t)
		if sc > bestFine {
			bestT, bestFine = t, sc
		}
	}

	sort.Float64s(spikes)
	median := spikes[len(spikes)/2]
	if len(spikes)%2 == 0 {
		median = (spikes[len(spikes)/2-1] + spikes[len(spikes)/2]) / 2
	}
	sharp := clamp01(1 - median/bestSpike)
	evidence := 1 - math.Exp(-float64(total)/evidenceScale)

	res.Rate = math.Pow(10, bestT/BinsPerDecade)
	res.Shift = bestT
	res.Confidence = clamp01(evidence * sharp)
	res.RoughBest = bestSpike
	res.RoughMedian = median
	res.Sharpness = sharp
	res.OK = sharp >= e.minSharp
	return res
}

// excess returns max(0, f_i - mean of f over bins 2..8 away from i).
func excess(f []float64) []float64 {
	n := len(f)
	prefix := make([]float64, n+1)
	for i, v := range f {
		prefix[i+1] = prefix[i] + v
	}
	sum := func(a, b int) (float64, int) { // inclusive, clipped
		if a < 0 {
			a = 0
		}
		if b > n-1 {
			b = n - 1
		}
		if b < a {
			return 0, 0
		}
		return prefix[b+1] - prefix[a], b - a + 1
	}

	d := make([]float64, n)
	for i := range f {
		if f[i] == 0 {
			continue
		}
		outer, outerN := sum(i-neighborReach, i+neighborReach)
		inner, innerN := sum(i-1, i+1)
		cnt := outerN - innerN
		if cnt <= 0 {
			d[i] = f[i]
			continue
		}
		if v := f[i] - (outer-inner)/float64(cnt); v > 0 {
			d[i] = v
		}
	}
	return d
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

package pricing

import (
	"fmt"
	"math"
	"sort"
)

// StencilPeak is a round fiat amount and its relative weight.
type StencilPeak struct {
	USD    float64 `yaml:"usd" json:"usd"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// DefaultPeaks is the round-amount table used when none is configured.
var DefaultPeaks = []StencilPeak{
	{0.01, 0.10}, {0.02, 0.08}, {0.05, 0.10}, {0.1, 0.15}, {0.2, 0.12}, {0.25, 0.10}, {0.5, 0.20},
	{1, 0.40}, {2, 0.35}, {5, 0.55}, {10, 0.80}, {20, 0.85}, {25, 0.60}, {50, 0.95},
	{100, 1.00}, {200, 0.70}, {250, 0.45}, {500, 0.60}, {1000, 0.50}, {2000, 0.25},
	{5000, 0.20}, {10000, 0.15},
}

const (
	smoothCenterUSD = 100.0
	smoothSigma     = float64(BinsPerDecade) // one decade
	smoothReach     = 4 * smoothSigma
)

// Stencil is the reference pattern slid across the histogram. A peak for
// amount U sits at log position c_U - t for trial shift t = 200*log10(rate).
type Stencil struct {
	peaks   []StencilPeak
	centers []float64 // c_U per peak
	smoothC float64
}

// NewStencil validates peaks and precomputes their positions.
func NewStencil(peaks []StencilPeak) (*Stencil, error) {
	if len(peaks) == 0 {
		peaks = DefaultPeaks
	}
	ps := make([]StencilPeak, len(peaks))
	copy(ps, peaks)
	sort.Slice(ps, func(i, j int) bool { return ps[i].USD < ps[j].USD })

	s := &Stencil{peaks: ps, centers: make([]float64, len(ps)), smoothC: logPosition(smoothCenterUSD)}
	for i, p := range ps {
		if !(p.USD > 0) || math.IsInf(p.USD, 0) {
			return nil, fmt.Errorf("stencil peak %d: usd must be positive, got %v", i, p.USD)
		}
		if !(p.Weight > 0) || p.Weight > 1 {
			return nil, fmt.Errorf("stencil peak %d: weight must be in (0,1], got %v", i, p.Weight)
		}
		if i > 0 && ps[i-1].USD == p.USD {
			return nil, fmt.Errorf("stencil peak %d: duplicate usd %v", i, p.USD)
		}
		s.centers[i] = logPosition(p.USD)
	}
	return s, nil
}

// Peaks returns a copy of the peak table.
func (s *Stencil) Peaks() []StencilPeak {
	out := make([]StencilPeak, len(s.peaks))
	copy(out, s.peaks)
	return out
}

func logPosition(v float64) float64 {
	return (math.Log10(v) - MinExponent) * BinsPerDecade
}

// spikeRough scores integer shift k against the excess vector d, taking the
// best of the three bins around each peak.
func (s *Stencil) spikeRough(d []float64, k int) float64 {
	score := 0.0
	for i, c := range s.centers {
		b := int(math.Floor(c - float64(k)))
		best := 0.0
		for j := b - 1; j <= b+1; j++ {
			if j >= 0 && j < len(d) && d[j] > best {
				best = d[j]
			}
		}
		score += s.peaks[i].Weight * best
	}
	return score
}

// spikeFine scores a fractional shift by interpolating d between bin centers.
func (s *Stencil) spikeFine(d []float64, t float64) float64 {
	score := 0.0
	for i, c := range s.centers {
		score += s.peaks[i].Weight * interpolate(d, c-t-0.5)
	}
	return score
}

func interpolate(d []float64, x float64) float64 {
	j := int(math.Floor(x))
	frac := x - float64(j)
	v := 0.0
	if j >= 0 && j < len(d) {
		v += d[j] * (1 - frac)
	}
	if j+1 >= 0 && j+1 < len(d) {
		v += d[j+1] * frac
	}
	return v
}

// smooth correlates the density f with a Gaussian baseline centered on the
// smooth reference amount. nz lists the non-empty bins of f.
func (s *Stencil) smooth(f []float64, nz []int, t float64) float64 {
	center := s.smoothC - t
	v := 0.0
	for _, i := range nz {
		dx := float64(i) + 0.5 - center
		if dx > smoothReach || dx < -smoothReach {
			continue
		}
		v += f[i] * math.Exp(-dx*dx/(2*smoothSigma*smoothSigma))
	}
	return v
}

// smoothTable tabulates the smooth kernel for integer shifts in
// [kMin, kMax]; entry m-kMin holds the weight for bin i at shift k, m=i+k.
func (s *Stencil) smoothTable(kMin, kMax int) []float64 {
	base := 0.5 - s.smoothC
	lut := make([]float64, NumBins+kMax-kMin)
	for idx := range lut {
		dx := float64(idx+kMin) + base
		if dx > smoothReach || dx < -smoothReach {
			continue
		}
		lut[idx] = math.Exp(-dx * dx / (2 * smoothSigma * smoothSigma))
	}
	return lut
}

func smoothAt(f []float64, nz []int, lut []float64, kMin, k int) float64 {
	v := 0.0
	for _, i := range nz {
		idx := i + k - kMin
		if idx >= 0 && idx < len(lut) {
			v += f[i] * lut[idx]
		}
	}
	return v
}

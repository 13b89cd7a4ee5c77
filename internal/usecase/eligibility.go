package usecase

import (
	"time"

	"MempoolOracle/internal/domain/models"

	"github.com/btcsuite/btcd/btcutil"
)

// Rejection reasons reported by EligibilityFilter.Evaluate.
const (
	RejectNone     = ""
	RejectNil      = "nil_tx"
	RejectInputs   = "input_count"
	RejectOutputs  = "output_count"
	RejectNoAmount = "no_candidate_amount"
)

// EligibilityFilter keeps transactions shaped like an ordinary payment.
type EligibilityFilter struct {
	minInputs int
	maxInputs int
	outputs   int
	minSats   int64
	maxSats   int64
}

type FilterOption func(*EligibilityFilter)

// WithInputRange bounds the accepted input count (inclusive).
func WithInputRange(min, max int) FilterOption {
	return func(f *EligibilityFilter) {
		if min > 0 && max >= min {
			f.minInputs, f.maxInputs = min, max
		}
	}
}

// WithOutputCount sets the exact accepted output count.
func WithOutputCount(n int) FilterOption {
	return func(f *EligibilityFilter) {
		if n > 0 {
			f.outputs = n
		}
	}
}

// WithAmountRange bounds candidate amounts in BTC (inclusive).
func WithAmountRange(minBTC, maxBTC float64) FilterOption {
	return func(f *EligibilityFilter) {
		lo, errLo := btcutil.NewAmount(minBTC)
		hi, errHi := btcutil.NewAmount(maxBTC)
		if errLo == nil && errHi == nil && lo > 0 && hi >= lo {
			f.minSats, f.maxSats = int64(lo), int64(hi)
		}
	}
}

// NewEligibilityFilter creates a filter with the default bounds: 1 to 5
// inputs, 2 outputs, amounts within [1e-5, 1e5] BTC.
func NewEligibilityFilter(opts ...FilterOption) *EligibilityFilter {
	f := &EligibilityFilter{
		minInputs: 1,
		maxInputs: 5,
		outputs:   2,
		minSats:   1_000,              // 1e-5 BTC
		maxSats:   10_000_000_000_000, // 1e5 BTC
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Evaluate returns the eligible reduction of tx, or nil and the reason it
// was rejected. Outputs failing the amount predicates are dropped one by
// one; a transaction left with no amount is rejected.
func (f *EligibilityFilter) Evaluate(tx *models.DecodedTransaction, observedAt time.Time) (*models.EligibleTransaction, string) {
	if tx == nil {
		return nil, RejectNil
	}
	if n := len(tx.Inputs); n < f.minInputs || n > f.maxInputs {
		return nil, RejectInputs
	}
	if len(tx.Outputs) != f.outputs {
		return nil, RejectOutputs
	}

	amounts := make([]float64, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		if !f.candidate(out.Value) {
			continue
		}
		amounts = append(amounts, btcutil.Amount(out.Value).ToBTC())
	}
	if len(amounts) == 0 {
		return nil, RejectNoAmount
	}
	return &models.EligibleTransaction{TxID: tx.TxID, Amounts: amounts, ObservedAt: observedAt}, RejectNone
}

func (f *EligibilityFilter) candidate(sats int64) bool {
	if sats < f.minSats || sats > f.maxSats {
		return false
	}
	return sats%btcutil.SatoshiPerBitcoin != 0
}

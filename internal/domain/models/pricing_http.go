package models

// HistogramRequest selects a slice of the live histogram.
type HistogramRequest struct {
	MinBTC float64 `query:"min_btc" json:"min_btc" default:"0.000001" validate:"gt=0,lte=1000000"`
	MaxBTC float64 `query:"max_btc" json:"max_btc" default:"1000000" validate:"gt=0,lte=1000000,gtfield=MinBTC"`
}

type HistogramBin struct {
	Index int     `json:"index"`
	Lower float64 `json:"lower_btc"`
	Upper float64 `json:"upper_btc"`
	Count int     `json:"count"`
}

type HistogramResponse struct {
	Total int            `json:"total"`
	Bins  []HistogramBin `json:"bins"`
}

package models

import "time"

// HealthSnapshot is a point-in-time view of the pipeline.
type HealthSnapshot struct {
	FeedState      string     `json:"feed_state"`
	FeedConnected  bool       `json:"feed_connected"`
	FeedAttempt    int        `json:"feed_attempt"`
	Clients        int        `json:"clients"`
	TxSeen         uint64     `json:"tx_seen"`
	DecodeFailures uint64     `json:"decode_failures"`
	Ineligible     uint64     `json:"ineligible"`
	Eligible       uint64     `json:"eligible"`
	QueueDropped   uint64     `json:"queue_dropped"`
	Admitted       uint64     `json:"admitted"`
	WindowTxCount  int        `json:"window_tx_count"`
	LastEstimateAt *time.Time `json:"last_estimate_at,omitempty"`
	LastRate       float64    `json:"last_rate"`
	LastConfidence float64    `json:"last_confidence"`
}

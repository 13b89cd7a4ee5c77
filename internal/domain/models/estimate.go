package models

import "time"

// PriceEstimate is one output of the pricing engine. Values are replaced
// wholesale on every accepted estimation.
type PriceEstimate struct {
	Rate        float64   `json:"rate"`
	Confidence  float64   `json:"confidence"`
	WindowCount int       `json:"window_tx_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// SchemaVersion is the version of the outbound stream messages.
const SchemaVersion = 1

const (
	MessageConnected   = "connected"
	MessagePriceUpdate = "price_update"
)

// PriceUpdate is the outbound stream message for an estimate.
type PriceUpdate struct {
	Type          string  `json:"type"`
	Version       int     `json:"version"`
	Price         float64 `json:"price"`
	Confidence    float64 `json:"confidence"`
	WindowTxCount int     `json:"window_tx_count"`
	ComputedAt    string  `json:"computed_at"`
}

// Handshake is sent once per connection before any update.
type Handshake struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

// NewPriceUpdate builds the wire message for an estimate.
func NewPriceUpdate(e PriceEstimate) PriceUpdate {
	return PriceUpdate{
		Type:          MessagePriceUpdate,
		Version:       SchemaVersion,
		Price:         e.Rate,
		Confidence:    e.Confidence,
		WindowTxCount: e.WindowCount,
		ComputedAt:    e.ComputedAt.UTC().Format(time.RFC3339),
	}
}

// NewHandshake returns the first message sent on every connection.
func NewHandshake() Handshake {
	return Handshake{Type: MessageConnected, Version: SchemaVersion, Status: "ok"}
}

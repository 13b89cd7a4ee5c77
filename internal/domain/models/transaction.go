package models

import "time"

// RawTransaction is a serialized transaction as delivered by the feed.
type RawTransaction struct {
	Body       []byte
	Sequence   uint32 // feed-assigned identifier
	Source     string // "zmq" | "kafka"
	ReceivedAt time.Time
}

type TxInput struct {
	PrevTxID  string // display (reversed) hex of the referenced transaction
	PrevIndex uint32
	Script    []byte
	Sequence  uint32
	Witness   [][]byte
}

type TxOutput struct {
	Value   int64 // satoshis
	Script  []byte
	Address string // empty when the script has no single standard address
}

// DecodedTransaction is the structured form of a RawTransaction.
type DecodedTransaction struct {
	TxID       string
	Version    int32
	Inputs     []TxInput
	Outputs    []TxOutput
	HasWitness bool
	LockTime   uint32
}

// EligibleTransaction carries only what the pricing engine consumes.
type EligibleTransaction struct {
	TxID       string
	Amounts    []float64 // BTC
	ObservedAt time.Time
}

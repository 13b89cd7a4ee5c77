package bitcoin

import (
	"bytes"
	"errors"
	"fmt"

	"MempoolOracle/internal/domain/models"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrMalformedTx   = errors.New("malformed transaction")
	ErrTrailingBytes = errors.New("trailing bytes after transaction")
	ErrEmptyWitness  = errors.New("segwit marker without witness data")
)

// Decoder turns serialized transactions into models.DecodedTransaction.
// It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	params    *chaincfg.Params
	addresses bool
}

type DecoderOption func(*Decoder)

// WithParams sets the network used for address derivation.
func WithParams(p *chaincfg.Params) DecoderOption {
	return func(d *Decoder) {
		if p != nil {
			d.params = p
		}
	}
}

// WithAddresses toggles output address derivation.
func WithAddresses(enabled bool) DecoderOption {
	return func(d *Decoder) { d.addresses = enabled }
}

// NewDecoder creates a mainnet decoder that derives output addresses
// unless configured otherwise.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{params: &chaincfg.MainNetParams, addresses: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ParamsForNetwork maps a network name to chain parameters.
func ParamsForNetwork(name string) (*chaincfg.Params, error) {
	switch name {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3", "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network %q", name)
	}
}

// Decode parses legacy and BIP144 witness serializations.
func (d *Decoder) Decode(raw []byte) (*models.DecodedTransaction, error) {
	if len(raw) < 10 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedTx, len(raw))
	}

	r := bytes.NewReader(raw)
	msg := &wire.MsgTx{}
	if err := msg.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, r.Len())
	}
	// A marker/flag pair with only empty witnesses re-serializes in legacy
	// form, so it is not a canonical encoding.
	if raw[4] == 0x00 && raw[5] == 0x01 && !msg.HasWitness() {
		return nil, ErrEmptyWitness
	}

	tx := &models.DecodedTransaction{
		TxID:       msg.TxHash().String(),
		Version:    msg.Version,
		Inputs:     make([]models.TxInput, 0, len(msg.TxIn)),
		Outputs:    make([]models.TxOutput, 0, len(msg.TxOut)),
		HasWitness: msg.HasWitness(),
		LockTime:   msg.LockTime,
	}
	for _, in := range msg.TxIn {
		tx.Inputs = append(tx.Inputs, models.TxInput{
			PrevTxID:  in.PreviousOutPoint.Hash.String(),
			PrevIndex: in.PreviousOutPoint.Index,
			Script:    in.SignatureScript,
			Sequence:  in.Sequence,
			Witness:   in.Witness,
		})
	}
	for _, out := range msg.TxOut {
		tx.Outputs = append(tx.Outputs, models.TxOutput{
			Value:   out.Value,
			Script:  out.PkScript,
			Address: d.address(out.PkScript),
		})
	}
	return tx, nil
}

func (d *Decoder) address(script []byte) string {
	if !d.addresses || len(script) == 0 {
		return ""
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, d.params)
	if err != nil || len(addrs) != 1 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

// Encode serializes a decoded transaction back to wire format. Witness
// serialization is used when any input carries witness data.
func Encode(tx *models.DecodedTransaction) ([]byte, error) {
	msg := wire.NewMsgTx(tx.Version)
	msg.LockTime = tx.LockTime
	for i, in := range tx.Inputs {
		hash, err := chainhash.NewHashFromStr(in.PrevTxID)
		if err != nil {
			return nil, fmt.Errorf("input %d prev txid: %w", i, err)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(hash, in.PrevIndex), in.Script, in.Witness)
		txIn.Sequence = in.Sequence
		msg.AddTxIn(txIn)
	}
	for _, out := range tx.Outputs {
		msg.AddTxOut(wire.NewTxOut(out.Value, out.Script))
	}

	var buf bytes.Buffer
	buf.Grow(msg.SerializeSize())
	if err := msg.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return buf.Bytes(), nil
}

package bitcoin

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func p2pkhScript(t *testing.T, seed byte) ([]byte, string) {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(bytes.Repeat([]byte{seed}, 20), &chaincfg.MainNetParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script, addr.EncodeAddress()
}

func p2wpkhScript(t *testing.T, seed byte) ([]byte, string) {
	t.Helper()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(bytes.Repeat([]byte{seed}, 20), &chaincfg.MainNetParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script, addr.EncodeAddress()
}

func buildTx(t *testing.T, witness bool) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(2)
	for i := 0; i < 2; i++ {
		prev := chainhash.Hash{byte(i + 1), 0xaa, 0xbb}
		in := wire.NewTxIn(wire.NewOutPoint(&prev, uint32(i)), []byte{0x51, byte(i)}, nil)
		if witness {
			in.SignatureScript = nil
			in.Witness = wire.TxWitness{{0x30, 0x44, byte(i)}, bytes.Repeat([]byte{0x02}, 33)}
		}
		in.Sequence = 0xfffffffd
		tx.AddTxIn(in)
	}
	s1, _ := p2pkhScript(t, 0x11)
	s2, _ := p2wpkhScript(t, 0x22)
	tx.AddTxOut(wire.NewTxOut(16_667, s1))
	tx.AddTxOut(wire.NewTxOut(4_250_000, s2))
	tx.LockTime = 840_000
	return tx
}

func serialize(t *testing.T, tx *wire.MsgTx) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return buf.Bytes()
}

func TestDecodeRoundTrip(t *testing.T) {
	d := NewDecoder()
	for _, witness := range []bool{false, true} {
		msg := buildTx(t, witness)
		raw := serialize(t, msg)

		tx, err := d.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, witness, tx.HasWitness)
		assert.Equal(t, msg.TxHash().String(), tx.TxID)
		assert.Equal(t, int32(2), tx.Version)
		assert.Equal(t, uint32(840_000), tx.LockTime)
		require.Len(t, tx.Inputs, 2)
		require.Len(t, tx.Outputs, 2)
		assert.Equal(t, uint32(1), tx.Inputs[1].PrevIndex)
		assert.Equal(t, int64(4_250_000), tx.Outputs[1].Value)

		out, err := Encode(tx)
		require.NoError(t, err)
		assert.Equal(t, raw, out, "witness=%v", witness)
	}
}

func TestDecodeAddresses(t *testing.T) {
	_, legacy := p2pkhScript(t, 0x11)
	_, segwit := p2wpkhScript(t, 0x22)

	tx, err := NewDecoder().Decode(serialize(t, buildTx(t, true)))
	require.NoError(t, err)
	assert.Equal(t, legacy, tx.Outputs[0].Address)
	assert.Equal(t, segwit, tx.Outputs[1].Address)

	tx, err = NewDecoder(WithAddresses(false)).Decode(serialize(t, buildTx(t, false)))
	require.NoError(t, err)
	assert.Empty(t, tx.Outputs[0].Address)
}

func TestDecodeMalformed(t *testing.T) {
	d := NewDecoder()
	raw := serialize(t, buildTx(t, true))

	_, err := d.Decode(raw[:len(raw)-3])
	assert.ErrorIs(t, err, ErrMalformedTx)

	_, err = d.Decode([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformedTx)

	_, err = d.Decode(append(append([]byte{}, raw...), 0x00))
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecodeRejectsEmptyWitnessSection(t *testing.T) {
	legacy := serialize(t, buildTx(t, false))
	// version | marker flag | body | one empty witness stack per input | locktime
	var b []byte
	b = append(b, legacy[:4]...)
	b = append(b, 0x00, 0x01)
	b = append(b, legacy[4:len(legacy)-4]...)
	b = append(b, 0x00, 0x00)
	b = append(b, legacy[len(legacy)-4:]...)

	_, err := NewDecoder().Decode(b)
	assert.Error(t, err)
}

func TestDecodeDeterministic(t *testing.T) {
	raw := serialize(t, buildTx(t, true))
	a, err := NewDecoder().Decode(raw)
	require.NoError(t, err)
	b, err := NewDecoder().Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParamsForNetwork(t *testing.T) {
	p, err := ParamsForNetwork("regtest")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.RegressionNetParams.Name, p.Name)

	_, err = ParamsForNetwork("dogecoin")
	assert.Error(t, err)
}

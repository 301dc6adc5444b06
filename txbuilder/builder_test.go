package txbuilder

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/psbtdemo/esplora"
	"github.com/stretchr/testify/require"
)

const testTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

var testParams = &chaincfg.MainNetParams

// testKey is a key with its P2WPKH address and script.
type testKey struct {
	priv     *btcec.PrivateKey
	addr     btcutil.Address
	pkScript []byte
}

// newTestKey derives a deterministic P2WPKH key from seed.
func newTestKey(t *testing.T, seed byte) *testKey {
	t.Helper()

	priv, pub := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pub.SerializeCompressed()), testParams,
	)
	require.NoError(t, err)

	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return &testKey{priv: priv, addr: addr, pkScript: pkScript}
}

// newRequest creates a request spending value from sender to recipient.
func newRequest(sender, recipient *testKey, value int64,
	amount btcutil.Amount) *Request {

	return &Request{
		Utxo: esplora.Utxo{
			TxID:  testTxID,
			Vout:  1,
			Value: value,
		},
		LockingScript:    hex.EncodeToString(sender.pkScript),
		RecipientAddress: recipient.addr.EncodeAddress(),
		ChangeAddress:    sender.addr.EncodeAddress(),
		Amount:           amount,
	}
}

// TestBuildChange verifies the change arithmetic and the fixed shape of the
// draft.
func TestBuildChange(t *testing.T) {
	t.Parallel()

	sender := newTestKey(t, 0x01)
	recipient := newTestKey(t, 0x02)

	b := New(testParams)
	require.Equal(t, DefaultFee, b.Fee())

	draft, err := b.Build(newRequest(sender, recipient, 20_000, 1_000))
	require.NoError(t, err)

	require.EqualValues(t, 18_500, draft.Change)
	require.EqualValues(t, 500, draft.Fee)
	require.EqualValues(t, 1_000, draft.Amount)

	tx := draft.Packet.UnsignedTx
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 2)
	require.Len(t, draft.Packet.Inputs, 1)
	require.Len(t, draft.Packet.Outputs, 2)

	require.EqualValues(t, 2, tx.Version)
	require.Equal(t, testTxID, tx.TxIn[0].PreviousOutPoint.Hash.String())
	require.Equal(t, uint32(1), tx.TxIn[0].PreviousOutPoint.Index)

	require.EqualValues(t, 1_000, tx.TxOut[RecipientIndex].Value)
	require.Equal(t, recipient.pkScript, tx.TxOut[RecipientIndex].PkScript)
	require.EqualValues(t, 18_500, tx.TxOut[ChangeIndex].Value)
	require.Equal(t, sender.pkScript, tx.TxOut[ChangeIndex].PkScript)

	in := draft.Packet.Inputs[0]
	require.NotNil(t, in.WitnessUtxo)
	require.EqualValues(t, 20_000, in.WitnessUtxo.Value)
	require.Equal(t, sender.pkScript, in.WitnessUtxo.PkScript)
	require.Equal(t, txscript.SigHashAll, in.SighashType)

	require.Positive(t, draft.EstimatedVSize)
	require.Positive(t, draft.FeeRate())
}

// TestBuildCustomFee verifies that the fee option is honored.
func TestBuildCustomFee(t *testing.T) {
	t.Parallel()

	sender := newTestKey(t, 0x01)
	recipient := newTestKey(t, 0x02)

	b := New(testParams, WithFee(1_500))
	draft, err := b.Build(newRequest(sender, recipient, 20_000, 1_000))
	require.NoError(t, err)
	require.EqualValues(t, 17_500, draft.Change)

	// The whole input can be consumed, leaving a zero change output.
	draft, err = b.Build(newRequest(sender, recipient, 2_500, 1_000))
	require.NoError(t, err)
	require.Zero(t, draft.Change)
	require.Len(t, draft.Packet.UnsignedTx.TxOut, 2)
}

// TestBuildNegativeFee verifies that a negative fee cannot inflate the
// change output above the input value.
func TestBuildNegativeFee(t *testing.T) {
	t.Parallel()

	sender := newTestKey(t, 0x01)
	recipient := newTestKey(t, 0x02)

	b := New(testParams, WithFee(-5_000))
	draft, err := b.Build(newRequest(sender, recipient, 20_000, 1_000))
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Nil(t, draft)
}

// TestBuildErrors verifies that invalid requests never produce a draft.
func TestBuildErrors(t *testing.T) {
	t.Parallel()

	sender := newTestKey(t, 0x01)
	recipient := newTestKey(t, 0x02)

	testCases := []struct {
		name    string
		mutate  func(r *Request)
		wantErr error
	}{
		{
			name: "negative change",
			mutate: func(r *Request) {
				r.Utxo.Value = 1_400
			},
			wantErr: ErrInsufficientFunds,
		},
		{
			name: "change one short",
			mutate: func(r *Request) {
				r.Utxo.Value = 1_499
			},
			wantErr: ErrInsufficientFunds,
		},
		{
			name: "zero amount",
			mutate: func(r *Request) {
				r.Amount = 0
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "zero input",
			mutate: func(r *Request) {
				r.Utxo.Value = 0
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "script not hex",
			mutate: func(r *Request) {
				r.LockingScript = "zz"
			},
			wantErr: ErrInvalidScript,
		},
		{
			name: "script not witness",
			mutate: func(r *Request) {
				r.LockingScript = "76a914" +
					"0000000000000000000000000000000000000000" +
					"88ac"
			},
			wantErr: ErrInvalidScript,
		},
		{
			name: "bad recipient",
			mutate: func(r *Request) {
				r.RecipientAddress = "not-an-address"
			},
			wantErr: ErrInvalidAddress,
		},
		{
			name: "change on other network",
			mutate: func(r *Request) {
				r.ChangeAddress = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
			},
			wantErr: ErrInvalidAddress,
		},
		{
			name: "dust recipient",
			mutate: func(r *Request) {
				r.Amount = 100
			},
			wantErr: txrules.ErrOutputIsDust,
		},
		{
			name: "bad txid",
			mutate: func(r *Request) {
				r.Utxo.TxID = "xyz"
			},
			wantErr: esplora.ErrInvalidResponse,
		},
	}

	b := New(testParams)
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := newRequest(sender, recipient, 20_000, 1_000)
			tc.mutate(req)

			draft, err := b.Build(req)
			require.ErrorIs(t, err, tc.wantErr)
			require.Nil(t, draft)
		})
	}
}

// TestBuildTaprootInput verifies that taproot inputs use the default
// sighash.
func TestBuildTaprootInput(t *testing.T) {
	t.Parallel()

	sender := newTestKey(t, 0x01)
	recipient := newTestKey(t, 0x02)

	outputKey := txscript.ComputeTaprootKeyNoScript(sender.priv.PubKey())
	trScript, err := txscript.PayToTaprootScript(outputKey)
	require.NoError(t, err)

	req := newRequest(sender, recipient, 20_000, 1_000)
	req.LockingScript = hex.EncodeToString(trScript)

	draft, err := New(testParams).Build(req)
	require.NoError(t, err)
	require.Equal(t, txscript.SigHashDefault,
		draft.Packet.Inputs[0].SighashType)
}

// TestDraftRoundTrip signs a draft, finalizes it and checks that the
// extracted transaction spends the drafted input and validates.
func TestDraftRoundTrip(t *testing.T) {
	t.Parallel()

	sender := newTestKey(t, 0x01)
	recipient := newTestKey(t, 0x02)

	draft, err := New(testParams).Build(
		newRequest(sender, recipient, 20_000, 1_000),
	)
	require.NoError(t, err)

	b64, err := draft.Base64()
	require.NoError(t, err)

	// Finalizing before signing must fail.
	_, err = FinalizeAndExtract(b64)
	require.ErrorIs(t, err, ErrNotFinalized)

	packet, err := DecodePacket(b64)
	require.NoError(t, err)

	fetcher := txscript.NewCannedPrevOutputFetcher(sender.pkScript, 20_000)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	sig, err := txscript.RawTxInWitnessSignature(
		packet.UnsignedTx, sigHashes, 0, 20_000, sender.pkScript,
		txscript.SigHashAll, sender.priv,
	)
	require.NoError(t, err)

	updater, err := psbt.NewUpdater(packet)
	require.NoError(t, err)

	outcome, err := updater.Sign(
		0, sig, sender.priv.PubKey().SerializeCompressed(), nil, nil,
	)
	require.NoError(t, err)
	require.Equal(t, psbt.SignOutcome(psbt.SignSuccesful), outcome)

	signed, err := packet.B64Encode()
	require.NoError(t, err)

	result, err := FinalizeAndExtract(signed)
	require.NoError(t, err)

	tx := result.Tx
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 2)
	require.Equal(t,
		draft.Packet.UnsignedTx.TxIn[0].PreviousOutPoint,
		tx.TxIn[0].PreviousOutPoint,
	)
	require.Equal(t, draft.Packet.UnsignedTx.TxHash(), tx.TxHash())
	require.Equal(t, tx.TxHash().String(), result.TxID())

	raw, err := hex.DecodeString(result.Hex)
	require.NoError(t, err)
	require.Equal(t, tx.SerializeSize(), len(raw))

	vm, err := txscript.NewEngine(
		sender.pkScript, tx, 0, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, fetcher), 20_000, fetcher,
	)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())
}

// TestDecodePacketInvalid verifies that garbage is rejected.
func TestDecodePacketInvalid(t *testing.T) {
	t.Parallel()

	_, err := DecodePacket("bm90IGEgcHNidA==")
	require.Error(t, err)
}

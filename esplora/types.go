// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package esplora

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TxStatus is the confirmation status the indexer reports for a transaction
// or one of its outputs. The block fields are only populated once the
// transaction is confirmed.
type TxStatus struct {
	// Confirmed is true when the transaction has been included in a
	// block.
	Confirmed bool `json:"confirmed"`

	// BlockHeight is the height of the including block.
	BlockHeight int64 `json:"block_height,omitempty"`

	// BlockHash is the hash of the including block.
	BlockHash string `json:"block_hash,omitempty"`

	// BlockTime is the unix timestamp of the including block.
	BlockTime int64 `json:"block_time,omitempty"`
}

// Utxo is an unspent transaction output as returned by the
// `/address/{address}/utxo` endpoint. A Utxo is identified by its
// (TxID, Vout) pair and is never mutated after being fetched.
type Utxo struct {
	// TxID is the hex encoded id of the transaction that created the
	// output.
	TxID string `json:"txid"`

	// Vout is the index of the output within the creating transaction.
	Vout uint32 `json:"vout"`

	// Status is the confirmation status of the creating transaction.
	Status TxStatus `json:"status"`

	// Value is the output value in satoshis.
	Value int64 `json:"value"`
}

// Amount returns the value of the output.
func (u Utxo) Amount() btcutil.Amount {
	return btcutil.Amount(u.Value)
}

// OutPoint parses the utxo identity into a wire.OutPoint.
func (u Utxo) OutPoint() (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("%w: txid %q: %v",
			ErrInvalidResponse, u.TxID, err)
	}

	return *wire.NewOutPoint(hash, u.Vout), nil
}

// String returns the outpoint notation txid:vout.
func (u Utxo) String() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}

// TxOutput is a single output of a transaction as returned by the
// `/tx/{txid}` endpoint.
type TxOutput struct {
	// ScriptPubKey is the hex encoded locking script.
	ScriptPubKey string `json:"scriptpubkey"`

	// ScriptPubKeyType is the indexer's classification of the script,
	// e.g. "v0_p2wpkh" or "v1_p2tr".
	ScriptPubKeyType string `json:"scriptpubkey_type,omitempty"`

	// ScriptPubKeyAddress is the address the script pays to, if any.
	ScriptPubKeyAddress string `json:"scriptpubkey_address,omitempty"`

	// Value is the output value in satoshis.
	Value int64 `json:"value"`
}

// Transaction is the subset of the `/tx/{txid}` response that is needed to
// spend one of its outputs.
type Transaction struct {
	TxID     string     `json:"txid"`
	Version  int32      `json:"version"`
	LockTime uint32     `json:"locktime"`
	Vout     []TxOutput `json:"vout"`
	Status   TxStatus   `json:"status"`
}

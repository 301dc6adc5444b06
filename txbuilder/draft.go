// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtdemo/esplora"
)

var (
	// ErrNotFinalized is returned when a signed PSBT cannot be finalized,
	// typically because a signature is missing.
	ErrNotFinalized = errors.New("psbt cannot be finalized")
)

// Draft is an unsigned transaction ready to be handed to a signer. It is
// built once and discarded after signing.
type Draft struct {
	// Packet is the unsigned PSBT.
	Packet *psbt.Packet

	// Input is the spent output.
	Input esplora.Utxo

	// Amount is the value of the recipient output.
	Amount btcutil.Amount

	// Fee is the fixed fee paid by the draft.
	Fee btcutil.Amount

	// Change is the value of the change output.
	Change btcutil.Amount

	// EstimatedVSize is the estimated virtual size once signed.
	EstimatedVSize int
}

// Base64 returns the standard base64 serialization of the PSBT.
func (d *Draft) Base64() (string, error) {
	return d.Packet.B64Encode()
}

// FeeRate returns the effective fee rate in sat/vb implied by the fixed fee
// and the estimated size.
func (d *Draft) FeeRate() float64 {
	if d.EstimatedVSize == 0 {
		return 0
	}

	return float64(d.Fee) / float64(d.EstimatedVSize)
}

// SignedTx is a finalized transaction extracted from a signed PSBT.
type SignedTx struct {
	// Tx is the network ready transaction.
	Tx *wire.MsgTx

	// Hex is the hex encoded serialization of Tx.
	Hex string
}

// TxID returns the id of the transaction.
func (s *SignedTx) TxID() string {
	return s.Tx.TxHash().String()
}

// DecodePacket parses a base64 encoded PSBT.
func DecodePacket(b64 string) (*psbt.Packet, error) {
	packet, err := psbt.NewFromRawBytes(
		strings.NewReader(strings.TrimSpace(b64)), true,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to decode psbt: %w", err)
	}

	return packet, nil
}

// Finalize finalizes every input of a signed packet and extracts the
// resulting transaction.
func Finalize(packet *psbt.Packet) (*SignedTx, error) {
	err := psbt.MaybeFinalizeAll(packet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFinalized, err)
	}

	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("unable to extract tx: %w", err)
	}

	var buf bytes.Buffer
	err = tx.Serialize(&buf)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize tx: %w", err)
	}

	log.Debugf("Finalized tx %v (%d bytes)", tx.TxHash(), buf.Len())

	return &SignedTx{
		Tx:  tx,
		Hex: hex.EncodeToString(buf.Bytes()),
	}, nil
}

// FinalizeAndExtract decodes a signed base64 PSBT, finalizes all inputs and
// returns the extracted transaction.
func FinalizeAndExtract(b64 string) (*SignedTx, error) {
	packet, err := DecodePacket(b64)
	if err != nil {
		return nil, err
	}

	return Finalize(packet)
}

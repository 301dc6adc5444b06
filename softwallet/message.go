// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package softwallet

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// messageMagic prefixes every signed message.
const messageMagic = "Bitcoin Signed Message:\n"

var (
	// ErrInvalidSignature is returned when a message signature does not
	// belong to the claimed address.
	ErrInvalidSignature = errors.New("invalid message signature")
)

// messageHash returns the double sha256 of the magic prefixed message.
func messageHash(msg string) []byte {
	var buf bytes.Buffer

	// Writes to a bytes.Buffer never fail.
	_ = wire.WriteVarString(&buf, 0, messageMagic)
	_ = wire.WriteVarString(&buf, 0, msg)

	return chainhash.DoubleHashB(buf.Bytes())
}

// signMessage returns the base64 compact recoverable signature of msg.
func signMessage(key *btcec.PrivateKey, msg string) string {
	sig := ecdsa.SignCompact(key, messageHash(msg), true)
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyMessage checks that sig is a signature of msg by the key behind
// address. P2PKH, P2WPKH and key path P2TR addresses are supported.
func VerifyMessage(address, msg, sig string,
	params *chaincfg.Params) error {

	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	pub, _, err := ecdsa.RecoverCompact(raw, messageHash(msg))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var derived btcutil.Address
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		derived, err = btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(pub.SerializeCompressed()), params,
		)

	case *btcutil.AddressWitnessPubKeyHash:
		derived, err = btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pub.SerializeCompressed()), params,
		)

	case *btcutil.AddressTaproot:
		derived, err = taprootAddress(pub, params)

	default:
		return fmt.Errorf("%w: unsupported address type %T",
			ErrInvalidSignature, addr)
	}
	if err != nil {
		return err
	}

	if derived.EncodeAddress() != addr.EncodeAddress() {
		return fmt.Errorf("%w: signed by %v", ErrInvalidSignature,
			derived)
	}

	return nil
}

// taprootAddress returns the BIP-86 key path address of pub.
func taprootAddress(pub *btcec.PublicKey,
	params *chaincfg.Params) (*btcutil.AddressTaproot, error) {

	outputKey := txscript.ComputeTaprootKeyNoScript(pub)

	return btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(outputKey), params,
	)
}

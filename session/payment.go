// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtdemo/coinselect"
	"github.com/btcsuite/psbtdemo/esplora"
	"github.com/btcsuite/psbtdemo/txbuilder"
)

var (
	// ErrNoFunds is returned when the paying address has no unspent
	// outputs at all.
	ErrNoFunds = errors.New("no utxos found, deposit funds first")

	// ErrNoSuitableUtxo is returned when none of the unspent outputs is
	// large enough on its own.
	ErrNoSuitableUtxo = errors.New("no single utxo covers the amount")
)

// Indexer retrieves the chain data needed to draft a payment.
// *esplora.Client satisfies it.
type Indexer interface {
	// FetchUtxos returns the unspent outputs of address.
	FetchUtxos(ctx context.Context, address string) ([]esplora.Utxo,
		error)

	// FetchScriptPubKey returns the hex encoded locking script of the
	// given output.
	FetchScriptPubKey(ctx context.Context, txid string,
		vout uint32) (string, error)
}

// A compile time check to ensure that the esplora client implements the
// interface.
var _ Indexer = (*esplora.Client)(nil)

// PaymentRequest describes a single recipient payment funded by one utxo of
// the From address, change returning to From.
type PaymentRequest struct {
	// From is the address whose utxos fund the payment.
	From string

	// To is the recipient address.
	To string

	// Amount is the value paid to To.
	Amount btcutil.Amount

	// Target is the minimum value of the selected utxo. Zero means
	// Amount plus the builder's fee.
	Target btcutil.Amount
}

// PreparePayment runs the drafting pipeline for req: fetch the utxos of
// req.From, pick the first one covering the target, resolve its locking
// script and build the unsigned draft. The steps depend on each other and run
// strictly in sequence.
func PreparePayment(ctx context.Context, indexer Indexer,
	builder *txbuilder.Builder, req *PaymentRequest) (*txbuilder.Draft,
	error) {

	utxos, err := indexer.FetchUtxos(ctx, req.From)
	if err != nil {
		return nil, fmt.Errorf("fetch utxos: %w", err)
	}

	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFunds, req.From)
	}

	target := req.Target
	if target == 0 {
		target = req.Amount + builder.Fee()
	}

	choice, err := coinselect.FirstFit(target, utxos)
	if err != nil {
		return nil, fmt.Errorf("select utxo: %w", err)
	}

	utxo, err := choice.UnwrapOrErr(fmt.Errorf("%w: none of %d utxos "+
		"is worth %v", ErrNoSuitableUtxo, len(utxos), target))
	if err != nil {
		return nil, err
	}

	log.Debugf("Selected utxo %v (%v) for target %v", utxo, utxo.Amount(),
		target)

	script, err := indexer.FetchScriptPubKey(ctx, utxo.TxID, utxo.Vout)
	if err != nil {
		return nil, fmt.Errorf("resolve script of %v: %w", utxo, err)
	}

	return builder.Build(&txbuilder.Request{
		Utxo:             utxo,
		LockingScript:    script,
		RecipientAddress: req.To,
		ChangeAddress:    req.From,
		Amount:           req.Amount,
	})
}

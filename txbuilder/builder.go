// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuilder assembles unsigned single input, two output PSBTs that pay
// a recipient and return the remainder of the input to a change address.
//
// The fee is a fixed amount rather than a rate: it is not derived from the
// transaction size or from network conditions.
package txbuilder

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/psbtdemo/esplora"
	"github.com/davecgh/go-spew/spew"
)

const (
	// DefaultFee is the fixed fee subtracted from the input value.
	DefaultFee btcutil.Amount = 500

	// txVersion is the version of the drafted transaction.
	txVersion = 2

	// RecipientIndex is the position of the payment output.
	RecipientIndex = 0

	// ChangeIndex is the position of the change output.
	ChangeIndex = 1
)

var (
	// ErrInsufficientFunds is returned when the input cannot cover the send
	// amount plus the fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned when the send amount or the input value
	// is not positive.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidScript is returned when the locking script of the input is
	// malformed or is not a witness program.
	ErrInvalidScript = errors.New("invalid locking script")

	// ErrInvalidAddress is returned when an output address cannot be
	// decoded for the builder's network.
	ErrInvalidAddress = errors.New("invalid address")
)

// Request describes the transaction to draft.
type Request struct {
	// Utxo is the output to spend.
	Utxo esplora.Utxo

	// LockingScript is the hex encoded scriptPubKey of Utxo.
	LockingScript string

	// RecipientAddress receives Amount.
	RecipientAddress string

	// ChangeAddress receives the input value minus Amount and the fee.
	ChangeAddress string

	// Amount is the value sent to the recipient.
	Amount btcutil.Amount
}

// Option tweaks a Builder.
type Option func(*Builder)

// WithFee overrides DefaultFee. A negative fee makes Build fail with
// ErrInvalidAmount.
func WithFee(fee btcutil.Amount) Option {
	return func(b *Builder) {
		b.fee = fee
	}
}

// WithRelayFee overrides the relay fee used to decide whether an output is
// dust.
func WithRelayFee(relayFeePerKb btcutil.Amount) Option {
	return func(b *Builder) {
		b.relayFeePerKb = relayFeePerKb
	}
}

// Builder drafts PSBTs for one network.
type Builder struct {
	params        *chaincfg.Params
	fee           btcutil.Amount
	relayFeePerKb btcutil.Amount
}

// New creates a builder for the given network.
func New(params *chaincfg.Params, opts ...Option) *Builder {
	b := &Builder{
		params:        params,
		fee:           DefaultFee,
		relayFeePerKb: txrules.DefaultRelayFeePerKb,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Fee returns the fixed fee of every draft.
func (b *Builder) Fee() btcutil.Amount {
	return b.fee
}

// Params returns the network the builder drafts for.
func (b *Builder) Params() *chaincfg.Params {
	return b.params
}

// Build drafts the unsigned transaction described by req. The draft always
// has exactly one input and two outputs, the change output's value being
// input value - amount - fee. A negative change is rejected with
// ErrInsufficientFunds and no draft is produced.
func (b *Builder) Build(req *Request) (*Draft, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: send amount %v", ErrInvalidAmount,
			req.Amount)
	}

	if b.fee < 0 {
		return nil, fmt.Errorf("%w: fee %v", ErrInvalidAmount, b.fee)
	}

	inputValue := req.Utxo.Amount()
	if inputValue <= 0 {
		return nil, fmt.Errorf("%w: input %v has value %v",
			ErrInvalidAmount, req.Utxo, inputValue)
	}

	change := inputValue - req.Amount - b.fee
	if change < 0 {
		return nil, fmt.Errorf("%w: input %v worth %v cannot cover "+
			"%v plus fee %v", ErrInsufficientFunds, req.Utxo,
			inputValue, req.Amount, b.fee)
	}

	pkScript, err := hex.DecodeString(req.LockingScript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}

	if !txscript.IsWitnessProgram(pkScript) {
		return nil, fmt.Errorf("%w: %x is not a witness program",
			ErrInvalidScript, pkScript)
	}

	outPoint, err := req.Utxo.OutPoint()
	if err != nil {
		return nil, err
	}

	recipientScript, err := b.payToAddrScript(req.RecipientAddress)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	changeScript, err := b.payToAddrScript(req.ChangeAddress)
	if err != nil {
		return nil, fmt.Errorf("change: %w", err)
	}

	recipientOut := wire.NewTxOut(int64(req.Amount), recipientScript)
	err = txrules.CheckOutput(recipientOut, b.relayFeePerKb)
	if err != nil {
		return nil, fmt.Errorf("recipient output: %w", err)
	}

	// The change output is kept even when it is dust so the draft keeps
	// its fixed shape, but the caller should know it is unlikely to relay.
	changeOut := wire.NewTxOut(int64(change), changeScript)
	if txrules.IsDustOutput(changeOut, b.relayFeePerKb) {
		log.Warnf("Change output of %v to %s is dust", change,
			req.ChangeAddress)
	}

	packet, err := psbt.New(
		[]*wire.OutPoint{&outPoint},
		[]*wire.TxOut{recipientOut, changeOut},
		txVersion, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create psbt: %w", err)
	}

	addInputInfo(&packet.Inputs[0], &wire.TxOut{
		Value:    int64(inputValue),
		PkScript: pkScript,
	})

	err = packet.SanityCheck()
	if err != nil {
		return nil, fmt.Errorf("psbt sanity check: %w", err)
	}

	draft := &Draft{
		Packet:         packet,
		Input:          req.Utxo,
		Amount:         req.Amount,
		Fee:            b.fee,
		Change:         change,
		EstimatedVSize: estimateVSize(pkScript, packet.UnsignedTx.TxOut),
	}

	log.Debugf("Drafted tx spending %v: send=%v change=%v fee=%v "+
		"vsize~%d", req.Utxo, req.Amount, change, b.fee,
		draft.EstimatedVSize)
	log.Tracef("Draft packet: %v", newLogClosure(func() string {
		return spew.Sdump(packet.UnsignedTx)
	}))

	return draft, nil
}

// payToAddrScript decodes addr for the builder's network and returns the
// script paying to it.
func (b *Builder) payToAddrScript(addr string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, b.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr,
			err)
	}

	if !decoded.IsForNet(b.params) {
		return nil, fmt.Errorf("%w: %q is not for %s",
			ErrInvalidAddress, addr, b.params.Name)
	}

	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr,
			err)
	}

	return script, nil
}

// addInputInfo adds the witness UTXO of the spent output to a PSBT input.
// Only the witness UTXO is provided because the full previous transaction is
// not fetched.
func addInputInfo(in *psbt.PInput, utxo *wire.TxOut) {
	in.WitnessUtxo = utxo

	// Taproot key spends sign with the default sighash, everything else
	// with SIGHASH_ALL.
	if txscript.IsPayToTaproot(utxo.PkScript) {
		in.SighashType = txscript.SigHashDefault
		return
	}

	in.SighashType = txscript.SigHashAll
}

// estimateVSize estimates the virtual size of the signed draft.
func estimateVSize(pkScript []byte, outs []*wire.TxOut) int {
	var numP2TR, numP2WKH int
	if txscript.IsPayToTaproot(pkScript) {
		numP2TR = 1
	} else {
		numP2WKH = 1
	}

	return txsizes.EstimateVirtualSize(0, numP2TR, numP2WKH, 0, outs, 0)
}

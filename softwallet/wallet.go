// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package softwallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtdemo/session"
	"github.com/btcsuite/psbtdemo/txbuilder"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// Name is the name the wallet is listed under.
	Name = "Software Wallet"

	addrTypeP2WPKH = "p2wpkh"
	addrTypeP2TR   = "p2tr"
)

var (
	// ErrNetworkMismatch is returned when a request or the key targets a
	// different network than the wallet.
	ErrNetworkMismatch = errors.New("network mismatch")

	// ErrUnknownAddress is returned when a request names an address the
	// wallet does not own.
	ErrUnknownAddress = errors.New("address not owned by wallet")

	// ErrUnsupportedInput is returned when an input to sign cannot be
	// signed by the wallet key.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrMultipleRecipients is returned by SendBtc for more than one
	// recipient.
	ErrMultipleRecipients = errors.New("only one recipient is supported")

	// ErrNoPublisher is returned when a broadcast is requested from a
	// wallet without a publisher.
	ErrNoPublisher = errors.New("no publisher configured")
)

// Publisher relays signed transactions. *esplora.Client satisfies it.
type Publisher interface {
	PublishTransaction(ctx context.Context, tx *wire.MsgTx) (string, error)
}

// RequestKind names the request an Approver is asked about.
type RequestKind string

// The request kinds, named after the provider methods.
const (
	RequestGetAddresses RequestKind = "getAddresses"
	RequestSignMessage  RequestKind = "signMessage"
	RequestSignPsbt     RequestKind = "signPsbt"
	RequestSendBtc      RequestKind = "sendBtc"
)

// Approver decides whether a request may proceed. Returning false cancels the
// request.
type Approver func(ctx context.Context, kind RequestKind,
	summary string) bool

// Config holds the wallet key and its collaborators.
type Config struct {
	// Network is the network the wallet operates on.
	Network session.Network

	// Key is the wallet key.
	Key *btcutil.WIF

	// Indexer funds SendBtc payments. Optional.
	Indexer session.Indexer

	// Publisher relays broadcast transactions. Optional.
	Publisher Publisher

	// Builder drafts SendBtc payments. Nil means the default builder.
	Builder *txbuilder.Builder

	// Approve is consulted before every request. Nil approves
	// everything.
	Approve Approver
}

// Wallet is a session.Provider holding a single key. The key pays from a
// P2WPKH address and receives inscriptions on its BIP-86 P2TR address.
type Wallet struct {
	cfg    Config
	params *chaincfg.Params
	key    *btcec.PrivateKey

	payment       *btcutil.AddressWitnessPubKeyHash
	paymentScript []byte
	ordinals      *btcutil.AddressTaproot
	ordinalScript []byte
}

// A compile time check to ensure that Wallet implements the interface.
var _ session.Provider = (*Wallet)(nil)

// New creates a wallet from cfg.
func New(cfg *Config) (*Wallet, error) {
	params, err := cfg.Network.Params()
	if err != nil {
		return nil, err
	}

	if cfg.Key == nil {
		return nil, errors.New("missing wallet key")
	}

	if !cfg.Key.IsForNet(params) {
		return nil, fmt.Errorf("%w: key is not for %v",
			ErrNetworkMismatch, params.Name)
	}

	pub := cfg.Key.PrivKey.PubKey()

	payment, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pub.SerializeCompressed()), params,
	)
	if err != nil {
		return nil, err
	}

	ordinals, err := taprootAddress(pub, params)
	if err != nil {
		return nil, err
	}

	paymentScript, err := txscript.PayToAddrScript(payment)
	if err != nil {
		return nil, err
	}

	ordinalScript, err := txscript.PayToAddrScript(ordinals)
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		cfg:           *cfg,
		params:        params,
		key:           cfg.Key.PrivKey,
		payment:       payment,
		paymentScript: paymentScript,
		ordinals:      ordinals,
		ordinalScript: ordinalScript,
	}

	if w.cfg.Builder == nil {
		w.cfg.Builder = txbuilder.New(params)
	}

	return w, nil
}

// AsWallet lists the wallet for session.CompatibleWallets.
func (w *Wallet) AsWallet() session.Wallet {
	return session.Wallet{Name: Name, Provider: w}
}

// PaymentAddress returns the P2WPKH address of the key.
func (w *Wallet) PaymentAddress() string {
	return w.payment.EncodeAddress()
}

// OrdinalsAddress returns the P2TR address of the key.
func (w *Wallet) OrdinalsAddress() string {
	return w.ordinals.EncodeAddress()
}

// checkRequest validates the network of a request and asks for approval.
func (w *Wallet) checkRequest(ctx context.Context, network session.Network,
	kind RequestKind, summary string) error {

	if network != w.cfg.Network {
		return fmt.Errorf("%w: wallet is on %v, request targets %v",
			ErrNetworkMismatch, w.cfg.Network, network)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if w.cfg.Approve != nil && !w.cfg.Approve(ctx, kind, summary) {
		log.Infof("Request %v declined", kind)
		return session.ErrRequestCancelled
	}

	return nil
}

// GetAddresses shares the addresses for the requested purposes in request
// order.
func (w *Wallet) GetAddresses(ctx context.Context,
	req *session.AddressRequest) fn.Result[[]session.Account] {

	err := w.checkRequest(ctx, req.Network, RequestGetAddresses,
		req.Message)
	if err != nil {
		return fn.Err[[]session.Account](err)
	}

	pub := hex.EncodeToString(w.key.PubKey().SerializeCompressed())

	accounts := make([]session.Account, 0, len(req.Purposes))
	for _, purpose := range req.Purposes {
		switch purpose {
		case session.PurposeOrdinals:
			accounts = append(accounts, session.Account{
				Address:     w.OrdinalsAddress(),
				PublicKey:   pub,
				Purpose:     purpose,
				AddressType: addrTypeP2TR,
			})

		case session.PurposePayment:
			accounts = append(accounts, session.Account{
				Address:     w.PaymentAddress(),
				PublicKey:   pub,
				Purpose:     purpose,
				AddressType: addrTypeP2WPKH,
			})

		default:
			log.Warnf("Ignoring unknown address purpose %q", purpose)
		}
	}

	return fn.Ok(accounts)
}

// SignMessage signs a message with the key of one of the wallet addresses.
func (w *Wallet) SignMessage(ctx context.Context,
	req *session.SignMessageRequest) fn.Result[string] {

	if !w.owns(req.Address) {
		return fn.Err[string](fmt.Errorf("%w: %s", ErrUnknownAddress,
			req.Address))
	}

	err := w.checkRequest(ctx, req.Network, RequestSignMessage,
		req.Message)
	if err != nil {
		return fn.Err[string](err)
	}

	return fn.Ok(signMessage(w.key, req.Message))
}

// SignPsbt signs the requested inputs and optionally finalizes and
// broadcasts the transaction.
func (w *Wallet) SignPsbt(ctx context.Context,
	req *session.SignPsbtRequest) fn.Result[*session.SignPsbtResponse] {

	err := w.checkRequest(ctx, req.Network, RequestSignPsbt, req.Message)
	if err != nil {
		return fn.Err[*session.SignPsbtResponse](err)
	}

	packet, err := txbuilder.DecodePacket(req.Psbt)
	if err != nil {
		return fn.Err[*session.SignPsbtResponse](err)
	}

	err = w.signPacket(packet, req.InputsToSign)
	if err != nil {
		return fn.Err[*session.SignPsbtResponse](err)
	}

	resp, err := w.respond(ctx, packet, req.Broadcast)
	if err != nil {
		return fn.Err[*session.SignPsbtResponse](err)
	}

	return fn.Ok(resp)
}

// SendBtc funds a payment from the payment address with a single utxo,
// signs it and publishes it.
func (w *Wallet) SendBtc(ctx context.Context,
	req *session.SendBtcRequest) fn.Result[string] {

	if len(req.Recipients) != 1 {
		return fn.Err[string](fmt.Errorf("%w: got %d",
			ErrMultipleRecipients, len(req.Recipients)))
	}

	if req.SenderAddress != "" && req.SenderAddress != w.PaymentAddress() {
		return fn.Err[string](fmt.Errorf("%w: %s", ErrUnknownAddress,
			req.SenderAddress))
	}

	if w.cfg.Indexer == nil {
		return fn.Err[string](errors.New("no indexer configured"))
	}

	if w.cfg.Publisher == nil {
		return fn.Err[string](ErrNoPublisher)
	}

	recipient := req.Recipients[0]
	summary := fmt.Sprintf("send %v to %s", recipient.Amount,
		recipient.Address)

	err := w.checkRequest(ctx, req.Network, RequestSendBtc, summary)
	if err != nil {
		return fn.Err[string](err)
	}

	draft, err := session.PreparePayment(
		ctx, w.cfg.Indexer, w.cfg.Builder, &session.PaymentRequest{
			From:   w.PaymentAddress(),
			To:     recipient.Address,
			Amount: recipient.Amount,
		},
	)
	if err != nil {
		return fn.Err[string](err)
	}

	err = w.signPacket(draft.Packet, []session.InputToSign{{
		Address:        w.PaymentAddress(),
		SigningIndexes: []int{0},
	}})
	if err != nil {
		return fn.Err[string](err)
	}

	resp, err := w.respond(ctx, draft.Packet, true)
	if err != nil {
		return fn.Err[string](err)
	}

	return fn.Ok(resp.TxID)
}

// owns reports whether address is one of the wallet addresses.
func (w *Wallet) owns(address string) bool {
	return address == w.PaymentAddress() || address == w.OrdinalsAddress()
}

// signPacket adds the wallet signatures for the requested inputs.
func (w *Wallet) signPacket(packet *psbt.Packet,
	inputs []session.InputToSign) error {

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return err
	}

	fetcher, err := prevOutputFetcher(packet)
	if err != nil {
		return err
	}
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	for _, in := range inputs {
		if !w.owns(in.Address) {
			return fmt.Errorf("%w: %s", ErrUnknownAddress,
				in.Address)
		}

		for _, idx := range in.SigningIndexes {
			err := w.signInput(updater, sigHashes, idx)
			if err != nil {
				return fmt.Errorf("sign input %d: %w", idx, err)
			}
		}
	}

	return nil
}

// signInput signs a single P2WPKH or key path P2TR input.
func (w *Wallet) signInput(updater *psbt.Updater,
	sigHashes *txscript.TxSigHashes, idx int) error {

	packet := updater.Upsbt
	if idx < 0 || idx >= len(packet.Inputs) {
		return fmt.Errorf("%w: index out of range", ErrUnsupportedInput)
	}

	in := &packet.Inputs[idx]
	utxo := in.WitnessUtxo
	if utxo == nil {
		return fmt.Errorf("%w: missing witness utxo",
			ErrUnsupportedInput)
	}

	tx := packet.UnsignedTx

	switch {
	case bytes.Equal(utxo.PkScript, w.paymentScript):
		hashType := in.SighashType
		if hashType == 0 {
			hashType = txscript.SigHashAll
		}

		sig, err := txscript.RawTxInWitnessSignature(
			tx, sigHashes, idx, utxo.Value, utxo.PkScript,
			hashType, w.key,
		)
		if err != nil {
			return err
		}

		outcome, err := updater.Sign(
			idx, sig, w.key.PubKey().SerializeCompressed(), nil,
			nil,
		)
		if err != nil {
			return err
		}
		if outcome != psbt.SignSuccesful {
			return fmt.Errorf("%w: sign outcome %v",
				ErrUnsupportedInput, outcome)
		}

	case bytes.Equal(utxo.PkScript, w.ordinalScript):
		sig, err := txscript.RawTxInTaprootSignature(
			tx, sigHashes, idx, utxo.Value, utxo.PkScript, nil,
			in.SighashType, w.key,
		)
		if err != nil {
			return err
		}

		in.TaprootKeySpendSig = sig

	default:
		return fmt.Errorf("%w: script %x not owned",
			ErrUnsupportedInput, utxo.PkScript)
	}

	log.Debugf("Signed input %d spending %v", idx,
		tx.TxIn[idx].PreviousOutPoint)

	return nil
}

// respond encodes the signed packet, finalizing and publishing it when
// broadcast is set.
func (w *Wallet) respond(ctx context.Context, packet *psbt.Packet,
	broadcast bool) (*session.SignPsbtResponse, error) {

	if !broadcast {
		b64, err := packet.B64Encode()
		if err != nil {
			return nil, err
		}

		return &session.SignPsbtResponse{Psbt: b64}, nil
	}

	if w.cfg.Publisher == nil {
		return nil, ErrNoPublisher
	}

	// Finalize mutates the packet, so the signed form is encoded
	// first.
	b64, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}

	signed, err := txbuilder.Finalize(packet)
	if err != nil {
		return nil, err
	}

	txid, err := w.cfg.Publisher.PublishTransaction(ctx, signed.Tx)
	if err != nil {
		return nil, err
	}

	log.Infof("Broadcast transaction %v", txid)

	return &session.SignPsbtResponse{Psbt: b64, TxID: txid}, nil
}

// prevOutputFetcher collects the spent outputs known to the packet.
func prevOutputFetcher(packet *psbt.Packet) (*txscript.MultiPrevOutFetcher,
	error) {

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		in := packet.Inputs[idx]
		switch {
		case in.NonWitnessUtxo != nil:
			prevIndex := txIn.PreviousOutPoint.Index
			if int(prevIndex) >= len(in.NonWitnessUtxo.TxOut) {
				return nil, fmt.Errorf("%w: input %d spends "+
					"output %d of a tx with %d outputs",
					ErrUnsupportedInput, idx, prevIndex,
					len(in.NonWitnessUtxo.TxOut))
			}

			fetcher.AddPrevOut(
				txIn.PreviousOutPoint,
				in.NonWitnessUtxo.TxOut[prevIndex],
			)

		case in.WitnessUtxo != nil:
			fetcher.AddPrevOut(txIn.PreviousOutPoint, in.WitnessUtxo)
		}
	}

	return fetcher, nil
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtdemo/txbuilder"
)

var (
	// ErrTxMismatch is returned when the transaction extracted from the
	// signed PSBT is not the one that was drafted.
	ErrTxMismatch = errors.New("signed transaction differs from draft")

	// ErrNoRecipients is returned by SendBtc when no recipient is given.
	ErrNoRecipients = errors.New("no recipients")

	errEmptyReply = errors.New("wallet returned an empty reply")
)

// TxRequest describes a payment from the session's payment address.
type TxRequest struct {
	// Recipient is the address paid.
	Recipient string

	// Amount is the value paid to Recipient.
	Amount btcutil.Amount

	// SelectionTarget is the minimum value of the spent utxo. Zero means
	// Amount plus the fee.
	SelectionTarget btcutil.Amount

	// Broadcast asks the wallet to publish the transaction after
	// signing.
	Broadcast bool

	// Message is shown by the wallet next to the request.
	Message string
}

// SignedTransaction is the outcome of SignTransaction.
type SignedTransaction struct {
	// Draft is the unsigned draft handed to the wallet.
	Draft *txbuilder.Draft

	// Psbt is the signed base64 PSBT returned by the wallet.
	Psbt string

	// Signed is the finalized network ready transaction.
	Signed *txbuilder.SignedTx

	// TxID is the id reported by the wallet when it broadcast the
	// transaction, otherwise the id of Signed.
	TxID string
}

// SignMessage asks the wallet to sign msg with the payment address.
func (s *Session) SignMessage(ctx context.Context, msg string) (string,
	error) {

	provider, payment, err := s.connected()
	if err != nil {
		return "", err
	}

	sig, err := provider.SignMessage(ctx, &SignMessageRequest{
		Network: s.cfg.Network,
		Address: payment,
		Message: msg,
	}).Unpack()
	if err != nil {
		return "", wrapProviderErr("sign message", err)
	}

	log.Debugf("Message signed by %v", payment)

	return sig, nil
}

// SignTransaction drafts a payment from the payment address, has the wallet
// sign its single input and finalizes the result.
func (s *Session) SignTransaction(ctx context.Context,
	req *TxRequest) (*SignedTransaction, error) {

	provider, payment, err := s.connected()
	if err != nil {
		return nil, err
	}

	draft, err := PreparePayment(ctx, s.cfg.Indexer, s.cfg.Builder,
		&PaymentRequest{
			From:   payment,
			To:     req.Recipient,
			Amount: req.Amount,
			Target: req.SelectionTarget,
		},
	)
	if err != nil {
		return nil, err
	}

	b64, err := draft.Base64()
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}

	log.Infof("Requesting signature for %v to %v spending %v",
		req.Amount, req.Recipient, draft.Input)

	resp, err := provider.SignPsbt(ctx, &SignPsbtRequest{
		Network:   s.cfg.Network,
		Psbt:      b64,
		Broadcast: req.Broadcast,
		Message:   req.Message,
		InputsToSign: []InputToSign{{
			Address:        payment,
			SigningIndexes: []int{0},
		}},
	}).Unpack()
	if err != nil {
		return nil, wrapProviderErr("sign psbt", err)
	}
	if resp == nil || resp.Psbt == "" {
		return nil, wrapProviderErr("sign psbt", errEmptyReply)
	}

	signed, err := txbuilder.FinalizeAndExtract(resp.Psbt)
	if err != nil {
		return nil, err
	}

	draftID := draft.Packet.UnsignedTx.TxHash()
	if signed.Tx.TxHash() != draftID {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrTxMismatch,
			signed.Tx.TxHash(), draftID)
	}

	txid := resp.TxID
	if txid == "" {
		txid = signed.TxID()
	}

	log.Infof("Signed transaction %v", txid)

	return &SignedTransaction{
		Draft:  draft,
		Psbt:   resp.Psbt,
		Signed: signed,
		TxID:   txid,
	}, nil
}

// SendBtc asks the wallet to pay recipients from the payment address and
// returns the broadcast txid.
func (s *Session) SendBtc(ctx context.Context,
	recipients []Recipient) (string, error) {

	if len(recipients) == 0 {
		return "", ErrNoRecipients
	}

	provider, payment, err := s.connected()
	if err != nil {
		return "", err
	}

	txid, err := provider.SendBtc(ctx, &SendBtcRequest{
		Network:       s.cfg.Network,
		Recipients:    recipients,
		SenderAddress: payment,
	}).Unpack()
	if err != nil {
		return "", wrapProviderErr("send btc", err)
	}
	if txid == "" {
		return "", wrapProviderErr("send btc", errEmptyReply)
	}

	log.Infof("Wallet sent transaction %v", txid)

	return txid, nil
}

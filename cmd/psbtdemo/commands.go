// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtdemo/esplora"
	"github.com/btcsuite/psbtdemo/session"
	"github.com/btcsuite/psbtdemo/softwallet"
	"github.com/btcsuite/psbtdemo/txbuilder"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// errNoWallet is returned when no compatible wallet is available.
var errNoWallet = errors.New("no compatible wallet found")

// app is a connected wallet session and the collaborators behind it.
type app struct {
	cfg     *config
	out     io.Writer
	in      *bufio.Reader
	indexer *esplora.Client
	wallet  *softwallet.Wallet
	session *session.Session
}

// newApp loads the wallet key, builds the session and connects the wallet.
func newApp(ctx context.Context, cfg *config) (*app, error) {
	a := &app{
		cfg: cfg,
		out: os.Stdout,
		in:  bufio.NewReader(os.Stdin),
	}

	params, err := cfg.network.Params()
	if err != nil {
		return nil, err
	}

	wif, err := a.readWIF()
	if err != nil {
		return nil, err
	}

	a.indexer, err = esplora.New(cfg.esploraConfig())
	if err != nil {
		return nil, err
	}

	builder := txbuilder.New(params,
		txbuilder.WithFee(btcutil.Amount(cfg.Fee)))

	walletCfg := &softwallet.Config{
		Network:   cfg.network,
		Key:       wif,
		Indexer:   a.indexer,
		Publisher: a.indexer,
		Builder:   builder,
	}
	if !cfg.Yes {
		walletCfg.Approve = a.approve
	}

	a.wallet, err = softwallet.New(walletCfg)
	if err != nil {
		return nil, err
	}

	a.session, err = session.New(&session.Config{
		Network: cfg.network,
		Indexer: a.indexer,
		Builder: builder,
	})
	if err != nil {
		return nil, err
	}

	wallets := session.CompatibleWallets([]session.Wallet{
		a.wallet.AsWallet(),
	})
	if len(wallets) == 0 {
		return nil, errNoWallet
	}

	log.Infof("Connecting %v", wallets[0].Name)

	_, err = a.session.Connect(ctx, wallets[0].Provider)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// close disconnects the session.
func (a *app) close() {
	if a.session.State() == session.StateConnected {
		if err := a.session.Disconnect(); err != nil {
			log.Warnf("Unable to disconnect: %v", err)
		}
	}
}

// readWIF reads the wallet key from the configured file or, without one,
// from the terminal without echo.
func (a *app) readWIF() (*btcutil.WIF, error) {
	var encoded string

	switch {
	case a.cfg.WIFFile != "":
		raw, err := os.ReadFile(a.cfg.WIFFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read key file: %w", err)
		}
		encoded = string(raw)

	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Fprint(os.Stderr, "Enter WIF key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("unable to read key: %w", err)
		}
		encoded = string(raw)

	default:
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unable to read key: %w", err)
		}
		encoded = line
	}

	wif, err := btcutil.DecodeWIF(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid WIF key: %w", err)
	}

	return wif, nil
}

// approve asks on the terminal whether a wallet request may proceed.
func (a *app) approve(_ context.Context, kind softwallet.RequestKind,
	summary string) bool {

	fmt.Fprintf(os.Stderr, "Approve %v", kind)
	if summary != "" {
		fmt.Fprintf(os.Stderr, " (%s)", summary)
	}
	fmt.Fprint(os.Stderr, "? [y/N] ")

	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes"
}

// accountSummary is the balance of a single account.
type accountSummary struct {
	account session.Account
	utxos   int
	balance btcutil.Amount
}

// accounts prints the connected accounts with their balances. The balances
// are fetched concurrently.
func (a *app) accounts(ctx context.Context) error {
	accounts := a.session.Accounts()
	summaries := make([]accountSummary, len(accounts))

	g, gCtx := errgroup.WithContext(ctx)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			utxos, err := a.indexer.FetchUtxos(gCtx, account.Address)
			if err != nil {
				return fmt.Errorf("%v account: %w", account.Purpose,
					err)
			}

			var balance btcutil.Amount
			for _, u := range utxos {
				balance += u.Amount()
			}

			summaries[i] = accountSummary{
				account: account,
				utxos:   len(utxos),
				balance: balance,
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, s := range summaries {
		fmt.Fprintf(a.out, "%-8s %-6s %s  %v in %d utxos\n",
			s.account.Purpose, s.account.AddressType,
			s.account.Address, s.balance, s.utxos)
	}

	return nil
}

// signMessage prints the signature of msg by the payment address.
func (a *app) signMessage(ctx context.Context, msg string) error {
	sig, err := a.session.SignMessage(ctx, msg)
	if err != nil {
		return err
	}

	payment, err := a.session.PaymentAddress()
	if err != nil {
		return err
	}

	err = softwallet.VerifyMessage(payment, msg, sig, a.session.Params())
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "address:   %s\nmessage:   %s\nsignature: %s\n",
		payment, msg, sig)

	return nil
}

// signTx drafts, signs and optionally broadcasts a payment.
func (a *app) signTx(ctx context.Context, cmd *signTxCommand) error {
	result, err := a.session.SignTransaction(ctx, &session.TxRequest{
		Recipient:       cmd.Recipient,
		Amount:          btcutil.Amount(cmd.Amount),
		SelectionTarget: btcutil.Amount(cmd.Target),
		Broadcast:       cmd.Broadcast,
		Message:         "Sign the demo transaction",
	})
	if err != nil {
		return err
	}

	draft := result.Draft
	fmt.Fprintf(a.out, "input:  %v (%v)\n", draft.Input,
		draft.Input.Amount())
	fmt.Fprintf(a.out, "pay:    %v to %s\n", draft.Amount, cmd.Recipient)
	fmt.Fprintf(a.out, "change: %v\n", draft.Change)
	fmt.Fprintf(a.out, "fee:    %v (~%.1f sat/vB)\n", draft.Fee,
		draft.FeeRate())
	fmt.Fprintf(a.out, "psbt:   %s\n", result.Psbt)
	fmt.Fprintf(a.out, "tx:     %s\n", result.Signed.Hex)
	fmt.Fprintf(a.out, "txid:   %s\n", result.TxID)

	return nil
}

// send lets the wallet pay on its own. The ordinals address is paid when no
// recipient is given.
func (a *app) send(ctx context.Context, cmd *sendCommand) error {
	to := cmd.To
	if to == "" {
		var err error
		to, err = a.session.OrdinalsAddress()
		if err != nil {
			return err
		}
	}

	txid, err := a.session.SendBtc(ctx, []session.Recipient{{
		Address: to,
		Amount:  btcutil.Amount(cmd.Amount),
	}})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "sent %v to %s\ntxid: %s\n",
		btcutil.Amount(cmd.Amount), to, txid)

	return nil
}

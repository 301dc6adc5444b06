// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/psbtdemo/txbuilder"
)

const (
	// DefaultConnectMessage is shown by the wallet when it is asked to
	// share its addresses.
	DefaultConnectMessage = "Address for receiving Ordinals and payments"
)

var (
	// ErrNoPaymentAddress is returned when the connected wallet did not
	// share a payment address.
	ErrNoPaymentAddress = errors.New("no payment address")

	// ErrNoOrdinalsAddress is returned when the connected wallet did not
	// share an ordinals address.
	ErrNoOrdinalsAddress = errors.New("no ordinals address")

	// ErrMissingProvider is returned when Connect is called without a
	// provider.
	ErrMissingProvider = errors.New("no wallet provider")

	// ErrMissingIndexer is returned when a session is created without an
	// indexer.
	ErrMissingIndexer = errors.New("no indexer")
)

// Config holds the dependencies of a session.
type Config struct {
	// Network is the network every request targets.
	Network Network

	// Indexer retrieves utxos and locking scripts.
	Indexer Indexer

	// Builder drafts transactions. Nil means a builder with the default
	// fee for Network.
	Builder *txbuilder.Builder

	// ConnectMessage is passed to the wallet on connect. Empty means
	// DefaultConnectMessage.
	ConnectMessage string
}

// Session is a connection to a single wallet provider. The zero state is
// Disconnected.
type Session struct {
	cfg    Config
	params *chaincfg.Params

	state sessionState

	// mu guards provider and accounts.
	mu       sync.RWMutex
	provider Provider
	accounts []Account
}

// New creates a disconnected session.
func New(cfg *Config) (*Session, error) {
	params, err := cfg.Network.Params()
	if err != nil {
		return nil, err
	}

	if cfg.Indexer == nil {
		return nil, ErrMissingIndexer
	}

	s := &Session{
		cfg:    *cfg,
		params: params,
	}

	if s.cfg.Builder == nil {
		s.cfg.Builder = txbuilder.New(params)
	}

	if s.cfg.ConnectMessage == "" {
		s.cfg.ConnectMessage = DefaultConnectMessage
	}

	return s, nil
}

// Network returns the network of the session.
func (s *Session) Network() Network {
	return s.cfg.Network
}

// Params returns the chain parameters of the session network.
func (s *Session) Params() *chaincfg.Params {
	return s.params
}

// Fee returns the fee paid by drafted transactions.
func (s *Session) Fee() btcutil.Amount {
	return s.cfg.Builder.Fee()
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.state.load()
}

// String returns a summary of the session.
func (s *Session) String() string {
	return fmt.Sprintf("network=%v, %v", s.cfg.Network, &s.state)
}

// Connect selects provider and asks it to share its ordinals and payment
// addresses. On failure or cancellation the selection is cleared and the
// session goes back to Disconnected.
func (s *Session) Connect(ctx context.Context,
	provider Provider) ([]Account, error) {

	if provider == nil {
		return nil, ErrMissingProvider
	}

	err := s.state.toConnecting()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.provider = provider
	s.mu.Unlock()

	log.Infof("Connecting to wallet on %v", s.cfg.Network)

	accounts, err := provider.GetAddresses(ctx, &AddressRequest{
		Purposes: []AddressPurpose{PurposeOrdinals, PurposePayment},
		Message:  s.cfg.ConnectMessage,
		Network:  s.cfg.Network,
	}).Unpack()
	if err == nil && len(accounts) == 0 {
		err = errors.New("wallet shared no addresses")
	}

	if err != nil {
		s.clear()
		s.state.abortConnecting()

		log.Warnf("Wallet connection failed: %v", err)

		return nil, wrapProviderErr("get addresses", err)
	}

	s.mu.Lock()
	s.accounts = append([]Account(nil), accounts...)
	s.mu.Unlock()

	err = s.state.toConnected()
	if err != nil {
		s.clear()
		return nil, err
	}

	for _, a := range accounts {
		log.Infof("Connected %v address %v (%v)", a.Purpose, a.Address,
			a.AddressType)
	}

	return s.Accounts(), nil
}

// Disconnect forgets the connected wallet and its accounts.
func (s *Session) Disconnect() error {
	err := s.state.toDisconnected()
	if err != nil {
		return err
	}

	s.clear()

	log.Infof("Wallet disconnected")

	return nil
}

// clear drops the provider and accounts.
func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.provider = nil
	s.accounts = nil
}

// Accounts returns a copy of the shared accounts.
func (s *Session) Accounts() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Account(nil), s.accounts...)
}

// account returns the first account with the given purpose.
func (s *Session) account(purpose AddressPurpose) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Purpose == purpose {
			return a, true
		}
	}

	return Account{}, false
}

// PaymentAddress returns the address holding spendable funds.
func (s *Session) PaymentAddress() (string, error) {
	a, ok := s.account(PurposePayment)
	if !ok {
		return "", ErrNoPaymentAddress
	}

	return a.Address, nil
}

// OrdinalsAddress returns the address receiving inscriptions.
func (s *Session) OrdinalsAddress() (string, error) {
	a, ok := s.account(PurposeOrdinals)
	if !ok {
		return "", ErrNoOrdinalsAddress
	}

	return a.Address, nil
}

// connected returns the provider and payment address of a connected
// session.
func (s *Session) connected() (Provider, string, error) {
	err := s.state.validateConnected()
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	provider := s.provider
	s.mu.RUnlock()

	if provider == nil {
		return nil, "", fmt.Errorf("%w: provider gone", ErrStateChanged)
	}

	payment, err := s.PaymentAddress()
	if err != nil {
		return nil, "", err
	}

	return provider, payment, nil
}

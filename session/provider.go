// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrRequestCancelled is returned by a provider when the user declined
	// the request.
	ErrRequestCancelled = errors.New("request cancelled by user")

	// ErrWalletSession wraps every provider failure other than a user
	// cancellation, such as a rejected request or an unavailable
	// provider.
	ErrWalletSession = errors.New("wallet session error")

	// ErrUnknownNetwork is returned when a network name cannot be parsed.
	ErrUnknownNetwork = errors.New("unknown network")
)

// Network identifies the bitcoin network a request targets.
type Network string

const (
	// NetworkMainnet is the bitcoin main network.
	NetworkMainnet Network = "Mainnet"

	// NetworkTestnet is testnet3.
	NetworkTestnet Network = "Testnet"

	// NetworkSignet is the default signet.
	NetworkSignet Network = "Signet"

	// NetworkRegtest is a local regression test network.
	NetworkRegtest Network = "Regtest"
)

// ParseNetwork parses a case insensitive network name.
func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(name) {
	case "mainnet", "main", "bitcoin":
		return NetworkMainnet, nil

	case "testnet", "testnet3":
		return NetworkTestnet, nil

	case "signet":
		return NetworkSignet, nil

	case "regtest", "regnet":
		return NetworkRegtest, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

// Params returns the chain parameters of the network.
func (n Network) Params() (*chaincfg.Params, error) {
	switch n {
	case NetworkMainnet:
		return &chaincfg.MainNetParams, nil

	case NetworkTestnet:
		return &chaincfg.TestNet3Params, nil

	case NetworkSignet:
		return &chaincfg.SigNetParams, nil

	case NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, string(n))
	}
}

// AddressPurpose is the role an account address plays.
type AddressPurpose string

const (
	// PurposeOrdinals is the address that receives inscriptions,
	// typically a taproot address.
	PurposeOrdinals AddressPurpose = "ordinals"

	// PurposePayment is the address that holds spendable funds,
	// typically a native segwit address.
	PurposePayment AddressPurpose = "payment"
)

// Account is an address shared by the wallet.
type Account struct {
	// Address is the encoded address.
	Address string

	// PublicKey is the hex encoded public key behind Address.
	PublicKey string

	// Purpose is the role of the address.
	Purpose AddressPurpose

	// AddressType is the script type, e.g. "p2wpkh" or "p2tr".
	AddressType string
}

// AddressRequest asks the wallet to share addresses.
type AddressRequest struct {
	Purposes []AddressPurpose
	Message  string
	Network  Network
}

// SignMessageRequest asks the wallet to sign a message with one of its
// addresses.
type SignMessageRequest struct {
	Network Network
	Address string
	Message string
}

// InputToSign names the PSBT inputs an address should sign.
type InputToSign struct {
	Address        string
	SigningIndexes []int
}

// SignPsbtRequest asks the wallet to sign, and optionally broadcast, a
// base64 encoded PSBT.
type SignPsbtRequest struct {
	Network      Network
	Psbt         string
	Broadcast    bool
	Message      string
	InputsToSign []InputToSign
}

// SignPsbtResponse is the wallet's answer to a SignPsbtRequest.
type SignPsbtResponse struct {
	// Psbt is the signed base64 encoded PSBT.
	Psbt string

	// TxID is set when the wallet broadcast the transaction.
	TxID string
}

// Recipient is a single payment of a SendBtcRequest.
type Recipient struct {
	Address string
	Amount  btcutil.Amount
}

// SendBtcRequest asks the wallet to fund, sign and broadcast a payment on
// its own.
type SendBtcRequest struct {
	Network       Network
	Recipients    []Recipient
	SenderAddress string
}

// Provider is the wallet a session talks to. Every call blocks until the
// wallet answers. A user cancellation is reported as an error result
// wrapping ErrRequestCancelled.
type Provider interface {
	// GetAddresses asks the wallet to share the addresses for the
	// requested purposes.
	GetAddresses(ctx context.Context,
		req *AddressRequest) fn.Result[[]Account]

	// SignMessage returns the signature of the message.
	SignMessage(ctx context.Context,
		req *SignMessageRequest) fn.Result[string]

	// SignPsbt signs the requested inputs of a PSBT.
	SignPsbt(ctx context.Context,
		req *SignPsbtRequest) fn.Result[*SignPsbtResponse]

	// SendBtc pays the recipients and returns the broadcast txid.
	SendBtc(ctx context.Context, req *SendBtcRequest) fn.Result[string]
}

// Wallet is a named wallet as discovered in the environment. Provider is nil
// when the wallet does not speak the provider protocol.
type Wallet struct {
	Name     string
	Provider Provider
}

// CompatibleWallets returns the wallets that expose a provider, preserving
// order.
func CompatibleWallets(wallets []Wallet) []Wallet {
	compatible := make([]Wallet, 0, len(wallets))
	for _, w := range wallets {
		if w.Provider != nil {
			compatible = append(compatible, w)
		}
	}

	return compatible
}

// wrapProviderErr attributes a provider error to op. Cancellations are kept
// as is, everything else is wrapped in ErrWalletSession.
func wrapProviderErr(op string, err error) error {
	if errors.Is(err, ErrRequestCancelled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrWalletSession, op, err)
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package esplora

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// DefaultTimeout is the default upper bound for a single indexer round
	// trip.
	DefaultTimeout = 30 * time.Second

	// defaultUserAgent is sent with every request.
	defaultUserAgent = "psbtdemo/esplora"
)

var (
	// ErrMissingBaseURL is returned when no base URL is configured and
	// none is known for the selected network.
	ErrMissingBaseURL = errors.New("esplora: missing base url")

	// baseURLs maps chain names to the public mempool.space endpoints.
	// Regtest is intentionally omitted and must be configured explicitly.
	baseURLs = map[string]string{
		chaincfg.MainNetParams.Name:  "https://mempool.space/api",
		chaincfg.TestNet3Params.Name: "https://mempool.space/testnet/api",
		chaincfg.SigNetParams.Name:   "https://mempool.space/signet/api",
	}
)

// DefaultBaseURL returns the public indexer endpoint for the given chain.
func DefaultBaseURL(params *chaincfg.Params) (string, error) {
	if params == nil {
		return "", ErrMissingBaseURL
	}

	url, ok := baseURLs[params.Name]
	if !ok {
		return "", fmt.Errorf("%w: no default for network %s",
			ErrMissingBaseURL, params.Name)
	}

	return url, nil
}

// Config houses the parameters of an indexer Client.
type Config struct {
	// BaseURL is the API root, e.g. https://mempool.space/api. If empty,
	// the default for ChainParams is used.
	BaseURL string

	// ChainParams selects the default BaseURL.
	ChainParams *chaincfg.Params

	// Timeout bounds each request. Zero means DefaultTimeout; a negative
	// value disables the bound.
	Timeout time.Duration

	// UserAgent overrides the default user agent.
	UserAgent string

	// Transport replaces the default HTTP transport when set.
	Transport http.RoundTripper
}

// baseURL resolves the configured or default API root without a trailing
// slash.
func (c *Config) baseURL() (string, error) {
	url := c.BaseURL
	if url == "" {
		var err error
		url, err = DefaultBaseURL(c.ChainParams)
		if err != nil {
			return "", err
		}
	}

	return strings.TrimRight(url, "/"), nil
}

// timeout resolves the effective per-request timeout.
func (c *Config) timeout() time.Duration {
	switch {
	case c.Timeout == 0:
		return DefaultTimeout

	case c.Timeout < 0:
		return 0

	default:
		return c.Timeout
	}
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package esplora implements a minimal client for the mempool.space / Esplora
// REST API. It retrieves the unspent outputs of an address, resolves the
// locking script of a prior output and publishes raw transactions.
//
// The client performs exactly one round trip per call: there are no retries,
// no pagination and no caching.
package esplora

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/go-resty/resty/v2"
)

var (
	// ErrRetrieval is returned when an indexer call does not succeed,
	// either because the request could not be sent or because the indexer
	// answered with a non-success status.
	ErrRetrieval = errors.New("esplora: retrieval failed")

	// ErrNotFound is returned when a successful response lacks the
	// requested item, such as an output index past the end of a
	// transaction's outputs.
	ErrNotFound = errors.New("esplora: not found")

	// ErrTimeout is returned when a request did not complete within the
	// configured timeout.
	ErrTimeout = errors.New("esplora: request timed out")

	// ErrInvalidResponse is returned when the indexer returns a body that
	// cannot be decoded.
	ErrInvalidResponse = errors.New("esplora: invalid response")

	// ErrPublishRejected is returned when the indexer refuses to relay a
	// transaction.
	ErrPublishRejected = errors.New("esplora: transaction rejected")
)

// Client talks to a single Esplora compatible endpoint.
type Client struct {
	cfg  Config
	rest *resty.Client
}

// New creates a new indexer client from the given config.
func New(cfg *Config) (*Client, error) {
	baseURL, err := cfg.baseURL()
	if err != nil {
		return nil, err
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	rest := resty.New().
		SetHostURL(baseURL).
		SetHeader("User-Agent", userAgent)

	if cfg.Transport != nil {
		rest.SetTransport(cfg.Transport)
	}

	log.Debugf("Created indexer client for %s (timeout=%v)", baseURL,
		cfg.timeout())

	return &Client{
		cfg:  *cfg,
		rest: rest,
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.rest.HostURL
}

// FetchUtxos returns the unspent outputs the indexer currently knows for the
// given address, in the order the indexer returned them. An empty slice is a
// valid result meaning the address holds no funds.
func (c *Client) FetchUtxos(ctx context.Context, address string) ([]Utxo,
	error) {

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var utxos []Utxo
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"address": address}).
		ForceContentType("application/json").
		SetResult(&utxos).
		Get("/address/{address}/utxo")
	if err != nil {
		return nil, classifyErr("fetch utxos", resp, err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: fetch utxos for %s: status %d: %s",
			ErrRetrieval, address, resp.StatusCode(),
			strings.TrimSpace(resp.String()))
	}

	// A null body decodes into a nil slice, normalize it so callers can
	// always range over the result.
	if utxos == nil {
		utxos = []Utxo{}
	}

	log.Debugf("Fetched %d utxos for %s", len(utxos), address)

	return utxos, nil
}

// FetchTransaction returns the indexer's view of the given transaction.
func (c *Client) FetchTransaction(ctx context.Context, txid string) (
	*Transaction, error) {

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tx := &Transaction{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"txid": txid}).
		ForceContentType("application/json").
		SetResult(tx).
		Get("/tx/{txid}")
	if err != nil {
		return nil, classifyErr("fetch tx", resp, err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: fetch tx %s: status %d: %s",
			ErrRetrieval, txid, resp.StatusCode(),
			strings.TrimSpace(resp.String()))
	}

	return tx, nil
}

// FetchScriptPubKey returns the hex encoded locking script of output vout of
// the given transaction. ErrRetrieval signals a failed lookup that may be
// retried, ErrNotFound signals that the transaction exists but has no such
// output.
func (c *Client) FetchScriptPubKey(ctx context.Context, txid string,
	vout uint32) (string, error) {

	tx, err := c.FetchTransaction(ctx, txid)
	if err != nil {
		return "", err
	}

	if int(vout) >= len(tx.Vout) {
		return "", fmt.Errorf("%w: output %d of tx %s (tx has %d "+
			"outputs)", ErrNotFound, vout, txid, len(tx.Vout))
	}

	script := tx.Vout[vout].ScriptPubKey
	if script == "" {
		return "", fmt.Errorf("%w: scriptpubkey of output %d of tx %s",
			ErrNotFound, vout, txid)
	}

	log.Tracef("Resolved scriptpubkey of %s:%d: %s", txid, vout, script)

	return script, nil
}

// PublishTransaction relays the given signed transaction through the indexer
// and returns the txid it reports.
func (c *Client) PublishTransaction(ctx context.Context, tx *wire.MsgTx) (
	string, error) {

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize tx: %w", err)
	}

	return c.PublishRawTransaction(ctx, fmt.Sprintf("%x", buf.Bytes()))
}

// PublishRawTransaction relays a hex encoded signed transaction.
func (c *Client) PublishRawTransaction(ctx context.Context, txHex string) (
	string, error) {

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(txHex).
		Post("/tx")
	if err != nil {
		return "", classifyErr("publish tx", resp, err)
	}

	body := strings.TrimSpace(resp.String())
	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: status %d: %s", ErrPublishRejected,
			resp.StatusCode(), body)
	}

	log.Infof("Published transaction %s", body)

	return body, nil
}

// withTimeout derives the per-request context.
func (c *Client) withTimeout(ctx context.Context) (context.Context,
	context.CancelFunc) {

	timeout := c.cfg.timeout()
	if timeout == 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

// classifyErr maps an error returned by resty onto the package's error
// taxonomy. A non-nil raw response means the round trip completed and the
// body could not be decoded.
func classifyErr(op string, resp *resty.Response, err error) error {
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)

	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)

	case resp != nil && resp.RawResponse != nil && resp.IsSuccess():
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, op, err)

	default:
		return fmt.Errorf("%w: %s: %w", ErrRetrieval, op, err)
	}
}

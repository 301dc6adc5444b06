// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coinselect picks the unspent output that funds a single input
// transaction.
//
// The only strategy offered is first fit: candidates are scanned in the order
// given and the first one large enough wins. It does not try to minimize
// change or fees and it never combines several outputs.
package coinselect

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrInvalidTarget is returned when the target amount is zero or
	// negative.
	ErrInvalidTarget = errors.New("target amount must be positive")
)

// Candidate is anything that carries a spendable value.
type Candidate interface {
	// Amount returns the value of the candidate.
	Amount() btcutil.Amount
}

// FirstFit returns the first candidate whose amount is at least target. If no
// candidate qualifies, including when candidates is empty, fn.None is returned
// with a nil error. Exhaustion is not an error, callers decide how to report
// it.
func FirstFit[C Candidate](target btcutil.Amount,
	candidates []C) (fn.Option[C], error) {

	if target <= 0 {
		return fn.None[C](), fmt.Errorf("%w: got %v", ErrInvalidTarget,
			target)
	}

	for i, c := range candidates {
		if c.Amount() >= target {
			log.Tracef("Selected candidate %d of %d (%v >= %v)", i,
				len(candidates), c.Amount(), target)

			return fn.Some(c), nil
		}
	}

	log.Debugf("No candidate among %d covers %v", len(candidates), target)

	return fn.None[C](), nil
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package session

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrStateForbidden is returned when an operation cannot be performed
	// in the current connection state (e.g., signing while disconnected).
	ErrStateForbidden = errors.New("operation forbidden in current state")

	// ErrStateChanged is returned when the connection state changes
	// unexpectedly while a transition is in flight.
	ErrStateChanged = errors.New("session state changed unexpectedly")
)

// State is the connection state of a session.
type State uint32

const (
	// StateDisconnected indicates no wallet is connected. This is the
	// zero value.
	StateDisconnected State = iota

	// StateConnecting indicates a wallet was selected and the session is
	// waiting for it to share its addresses.
	StateConnecting

	// StateConnected indicates the wallet shared its addresses and request
	// flows may be issued.
	StateConnected
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"

	case StateConnecting:
		return "connecting"

	case StateConnected:
		return "connected"

	default:
		return "unknown session state"
	}
}

// sessionState is a thread-safe wrapper around the connection state. All
// transitions are compare-and-swap so that two concurrent connects cannot
// both win.
//
// The allowed transitions are:
//
//	Disconnected -> Connecting    (toConnecting)
//	Connecting   -> Connected     (toConnected)
//	Connecting   -> Disconnected  (abortConnecting)
//	Connected    -> Disconnected  (toDisconnected)
type sessionState struct {
	state atomic.Uint32
}

// load returns the current state.
func (s *sessionState) load() State {
	return State(s.state.Load())
}

// String returns a summary of the session state.
func (s *sessionState) String() string {
	return fmt.Sprintf("status=%v", s.load())
}

// toConnecting transitions the session from Disconnected to Connecting.
func (s *sessionState) toConnecting() error {
	if !s.state.CompareAndSwap(
		uint32(StateDisconnected), uint32(StateConnecting)) {

		return fmt.Errorf("%w: cannot connect, session is %v",
			ErrStateForbidden, s.load())
	}

	return nil
}

// toConnected marks a pending connection as established.
func (s *sessionState) toConnected() error {
	if !s.state.CompareAndSwap(
		uint32(StateConnecting), uint32(StateConnected)) {

		return fmt.Errorf("%w: expected connecting, session is %v",
			ErrStateChanged, s.load())
	}

	return nil
}

// abortConnecting returns a pending connection to Disconnected.
func (s *sessionState) abortConnecting() {
	s.state.CompareAndSwap(
		uint32(StateConnecting), uint32(StateDisconnected),
	)
}

// toDisconnected transitions the session from Connected to Disconnected.
func (s *sessionState) toDisconnected() error {
	if !s.state.CompareAndSwap(
		uint32(StateConnected), uint32(StateDisconnected)) {

		return fmt.Errorf("%w: cannot disconnect, session is %v",
			ErrStateForbidden, s.load())
	}

	return nil
}

// isConnected returns true if the session is in the Connected state.
func (s *sessionState) isConnected() bool {
	return s.load() == StateConnected
}

// validateConnected checks that request flows may be issued.
func (s *sessionState) validateConnected() error {
	if !s.isConnected() {
		return fmt.Errorf("%w: session is %v", ErrStateForbidden,
			s.load())
	}

	return nil
}

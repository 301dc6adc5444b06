package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStateDisconnectedByDefault verifies that the zero value of
// sessionState is Disconnected and walks the happy path.
func TestStateDisconnectedByDefault(t *testing.T) {
	t.Parallel()

	var s sessionState

	// Assert: Zero value is Disconnected and flows are forbidden.
	require.Equal(t, StateDisconnected, s.load())
	require.ErrorIs(t, s.validateConnected(), ErrStateForbidden)

	// Act: Disconnected -> Connecting.
	require.NoError(t, s.toConnecting())
	require.Equal(t, StateConnecting, s.load())
	require.ErrorIs(t, s.validateConnected(), ErrStateForbidden)

	// Act: Connecting -> Connected.
	require.NoError(t, s.toConnected())
	require.True(t, s.isConnected())
	require.NoError(t, s.validateConnected())

	// Act: Connected -> Disconnected.
	require.NoError(t, s.toDisconnected())
	require.Equal(t, StateDisconnected, s.load())
}

// TestStateForbiddenTransitions verifies that transitions from the wrong
// state are rejected.
func TestStateForbiddenTransitions(t *testing.T) {
	t.Parallel()

	var s sessionState

	// Disconnect while disconnected.
	require.ErrorIs(t, s.toDisconnected(), ErrStateForbidden)

	// Connected without connecting first.
	require.ErrorIs(t, s.toConnected(), ErrStateChanged)

	require.NoError(t, s.toConnecting())

	// A second connect while one is pending.
	err := s.toConnecting()
	require.ErrorIs(t, err, ErrStateForbidden)
	require.ErrorContains(t, err, "connecting")

	// Aborting returns to Disconnected and is a no-op afterwards.
	s.abortConnecting()
	require.Equal(t, StateDisconnected, s.load())
	s.abortConnecting()
	require.Equal(t, StateDisconnected, s.load())
}

// TestStateConcurrentConnect verifies that exactly one of many concurrent
// connects wins.
func TestStateConcurrentConnect(t *testing.T) {
	t.Parallel()

	var (
		s    sessionState
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if s.toConnecting() == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, StateConnecting, s.load())
}

// TestStateString verifies the state names.
func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "unknown session state", State(7).String())

	var s sessionState
	require.Equal(t, "status=disconnected", s.String())
}

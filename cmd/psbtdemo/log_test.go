package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLogWriterConsole verifies that log lines are kept off standard output.
func TestLogWriterConsole(t *testing.T) {
	require.Equal(t, os.Stderr, logConsole)

	var buf bytes.Buffer
	logConsole = &buf
	t.Cleanup(func() {
		logConsole = os.Stderr
	})

	line := []byte("2025-01-01 00:00:00.000 [INF] PSBD: hello\n")
	n, err := logWriter{}.Write(line)
	require.NoError(t, err)
	require.Equal(t, len(line), n)
	require.Equal(t, line, buf.Bytes())
}

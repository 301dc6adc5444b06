package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/psbtdemo/esplora"
	"github.com/btcsuite/psbtdemo/session"
	"github.com/btcsuite/psbtdemo/txbuilder"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigDefaults verifies the defaults of a bare command.
func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	// Point at an empty directory so a local config file cannot leak
	// into the test.
	missing := filepath.Join(t.TempDir(), "missing.conf")

	_, err := loadConfig([]string{"--configfile", missing, "signtx"})
	require.ErrorContains(t, err, "error parsing config file")

	cfg := defaultConfig()
	cfg.ConfigFile = missing
	require.NoError(t, cfg.validate())

	require.Equal(t, session.NetworkMainnet, cfg.network)
	require.Equal(t, "https://mempool.space/api", cfg.IndexerURL)
	require.Equal(t, esplora.DefaultTimeout, cfg.Timeout)
	require.Equal(t, int64(txbuilder.DefaultFee), cfg.Fee)
	require.Equal(t, defaultMessage, cfg.SignMessage.Message)
	require.Equal(t, defaultRecipient, cfg.SignTx.Recipient)
	require.EqualValues(t, 1_000, cfg.SignTx.Amount)
	require.EqualValues(t, 10_000, cfg.SignTx.Target)
	require.EqualValues(t, 1_500, cfg.Send.Amount)
}

// TestLoadConfigFile verifies that the config file overrides the defaults
// and the command line overrides the config file.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configFile := filepath.Join(dir, "psbtdemo.conf")
	err := os.WriteFile(configFile, []byte(
		"[Application Options]\n"+
			"network=signet\n"+
			"fee=800\n"+
			"timeout=5s\n",
	), 0600)
	require.NoError(t, err)

	cfg, err := loadConfig([]string{
		"--configfile", configFile, "--fee", "900",
		"--logdir", dir, "signtx", "--amount", "2000",
	})
	require.NoError(t, err)

	require.Equal(t, "signtx", cfg.command)
	require.Equal(t, session.NetworkSignet, cfg.network)
	require.Equal(t, "https://mempool.space/signet/api", cfg.IndexerURL)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.EqualValues(t, 900, cfg.Fee)
	require.EqualValues(t, 2_000, cfg.SignTx.Amount)
	require.EqualValues(t, 10_000, cfg.SignTx.Target)
	require.Equal(t, filepath.Join(dir, "signet", defaultLogFilename),
		cfg.logFile())

	escfg := cfg.esploraConfig()
	require.Equal(t, 5*time.Second, escfg.Timeout)
	require.Equal(t, "signet", escfg.ChainParams.Name)
}

// TestLoadConfigErrors verifies that invalid options are rejected.
func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configFile := filepath.Join(dir, "psbtdemo.conf")
	require.NoError(t, os.WriteFile(configFile, nil, 0600))

	testCases := []struct {
		name string
		args []string
	}{
		{
			name: "no command",
			args: nil,
		},
		{
			name: "unknown network",
			args: []string{"--network", "moonnet", "accounts"},
		},
		{
			name: "regtest without indexer",
			args: []string{"--network", "regtest", "accounts"},
		},
		{
			name: "negative fee",
			args: []string{"--fee", "-1", "accounts"},
		},
		{
			name: "negative timeout",
			args: []string{"--timeout", "-1s", "accounts"},
		},
		{
			name: "zero amount",
			args: []string{"signtx", "--amount", "0"},
		},
		{
			name: "negative target",
			args: []string{"signtx", "--target", "-5"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			args := append([]string{"--configfile", configFile},
				tc.args...)
			_, err := loadConfig(args)
			require.Error(t, err)
		})
	}
}

// TestLoadConfigRegtest verifies that regtest works with an explicit
// indexer and that a zero timeout disables the per-request timeout.
func TestLoadConfigRegtest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configFile := filepath.Join(dir, "psbtdemo.conf")
	require.NoError(t, os.WriteFile(configFile, nil, 0600))

	cfg, err := loadConfig([]string{
		"--configfile", configFile, "--network", "regtest",
		"--indexerurl", "http://127.0.0.1:3002", "--timeout", "0s",
		"send",
	})
	require.NoError(t, err)
	require.Equal(t, session.NetworkRegtest, cfg.network)
	require.Equal(t, "send", cfg.command)
	require.Negative(t, cfg.esploraConfig().Timeout)
}

// TestParseAndSetDebugLevels verifies the debug level syntax.
func TestParseAndSetDebugLevels(t *testing.T) {
	require.NoError(t, parseAndSetDebugLevels("debug"))
	require.NoError(t, parseAndSetDebugLevels("ESPL=trace,SESS=warn"))

	require.Error(t, parseAndSetDebugLevels("loud"))
	require.Error(t, parseAndSetDebugLevels("NOPE=debug"))
	require.Error(t, parseAndSetDebugLevels("ESPL=loud"))
	require.Error(t, parseAndSetDebugLevels("ESPL"+"=debug,SESS"))

	require.Equal(t, []string{
		"CSEL", "ESPL", "PSBD", "SESS", "SWLT", "TXBD",
	}, supportedSubsystems())

	require.NoError(t, parseAndSetDebugLevels(defaultLogLevel))
}

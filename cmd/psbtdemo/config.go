// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtdemo/esplora"
	"github.com/btcsuite/psbtdemo/session"
	"github.com/btcsuite/psbtdemo/txbuilder"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "psbtdemo.conf"
	defaultLogFilename    = "psbtdemo.log"
	defaultLogDirname     = "logs"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"

	defaultMessage   = "Hello World. Welcome to the Magic Eden wallet!"
	defaultRecipient = "bc1qq6x6m9kjj48m8ct2hwy5dl75usray8hp0cpxzu"
)

var (
	defaultAppDataDir = btcutil.AppDataDir("psbtdemo", false)
	defaultConfigFile = filepath.Join(defaultAppDataDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultAppDataDir, defaultLogDirname)
)

// accountsCommand lists the wallet accounts with their balances.
type accountsCommand struct{}

// signMessageCommand signs a message with the payment address.
type signMessageCommand struct {
	Message string `short:"m" long:"message" description:"Message to sign"`
}

// signTxCommand drafts a payment and has the wallet sign it.
type signTxCommand struct {
	Recipient string `long:"recipient" description:"Address to pay"`
	Amount    int64  `long:"amount" description:"Amount to pay in satoshis"`
	Target    int64  `long:"target" description:"Minimum value of the spent utxo in satoshis (0 = amount+fee)"`
	Broadcast bool   `long:"broadcast" description:"Publish the signed transaction"`
}

// sendCommand asks the wallet to pay on its own.
type sendCommand struct {
	To     string `long:"to" description:"Address to pay (default: the ordinals address)"`
	Amount int64  `long:"amount" description:"Amount to pay in satoshis"`
}

// config defines the configuration options for psbtdemo.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile string        `short:"C" long:"configfile" description:"Path to configuration file"`
	Network    string        `long:"network" description:"Network to use (mainnet, testnet, signet, regtest)"`
	IndexerURL string        `long:"indexerurl" description:"Base URL of the esplora compatible indexer API"`
	Timeout    time.Duration `long:"timeout" description:"Timeout of a single indexer request (0 = no timeout)"`
	Fee        int64         `long:"fee" description:"Fixed fee in satoshis paid by drafted transactions"`
	LogDir     string        `long:"logdir" description:"Directory to log output"`
	DebugLevel string        `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical} or SUBSYS=level,... pairs"`
	WIFFile    string        `long:"wiffile" description:"File holding the WIF encoded wallet key (default: prompt)"`
	Yes        bool          `short:"y" long:"yes" description:"Approve every wallet request without prompting"`

	// Subcommand options, registered by newParser.
	Accounts    accountsCommand    `no-flag:"true"`
	SignMessage signMessageCommand `no-flag:"true"`
	SignTx      signTxCommand      `no-flag:"true"`
	Send        sendCommand        `no-flag:"true"`

	// The fields below are derived during validation.
	network session.Network
	command string
}

// defaultConfig returns the configuration with every default applied.
func defaultConfig() config {
	return config{
		ConfigFile: defaultConfigFile,
		Network:    defaultNetwork,
		Timeout:    esplora.DefaultTimeout,
		Fee:        int64(txbuilder.DefaultFee),
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		SignMessage: signMessageCommand{
			Message: defaultMessage,
		},
		SignTx: signTxCommand{
			Recipient: defaultRecipient,
			Amount:    1_000,
			Target:    10_000,
		},
		Send: sendCommand{
			Amount: 1_500,
		},
	}
}

// newParser returns a parser for cfg with every subcommand registered.
func newParser(cfg *config) (*flags.Parser, error) {
	parser := flags.NewParser(cfg, flags.Default)

	commands := []struct {
		name, description string
		data              any
	}{
		{
			name:        "accounts",
			description: "List the wallet accounts and their balances",
			data:        &cfg.Accounts,
		},
		{
			name:        "signmessage",
			description: "Sign a message with the payment address",
			data:        &cfg.SignMessage,
		},
		{
			name: "signtx",
			description: "Draft a payment from the payment address " +
				"and sign it",
			data: &cfg.SignTx,
		},
		{
			name: "send",
			description: "Let the wallet fund, sign and publish a " +
				"payment",
			data: &cfg.Send,
		},
	}

	for _, c := range commands {
		_, err := parser.AddCommand(c.name, c.description, "", c.data)
		if err != nil {
			return nil, err
		}
	}

	return parser, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in psbtdemo functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options. Command line options always take
// precedence.
func loadConfig(args []string) (*config, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file was specified. Any errors aside from the help message error
	// are reported by the main parse below.
	preCfg := struct {
		ConfigFile string `short:"C" long:"configfile"`
	}{
		ConfigFile: defaultConfigFile,
	}
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	parser, err := newParser(&cfg)
	if err != nil {
		return nil, err
	}

	// Load additional config from file. A missing default config file is
	// not an error.
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) ||
			preCfg.ConfigFile != defaultConfigFile {

			return nil, fmt.Errorf("error parsing config file: %w",
				err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if parser.Active != nil {
		cfg.command = parser.Active.Name
	}

	err = cfg.validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks the parsed options and fills in the derived fields.
func (c *config) validate() error {
	network, err := session.ParseNetwork(c.Network)
	if err != nil {
		return err
	}
	c.network = network

	params, err := network.Params()
	if err != nil {
		return err
	}

	if c.IndexerURL == "" {
		c.IndexerURL, err = esplora.DefaultBaseURL(params)
		if err != nil {
			return fmt.Errorf("--indexerurl is required on %v: %w",
				network, err)
		}
	}

	if c.Timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %v",
			c.Timeout)
	}

	if c.Fee < 0 {
		return fmt.Errorf("--fee must not be negative, got %d", c.Fee)
	}

	if c.SignTx.Amount <= 0 || c.Send.Amount <= 0 {
		return errors.New("--amount must be positive")
	}

	if c.SignTx.Target < 0 {
		return fmt.Errorf("--target must not be negative, got %d",
			c.SignTx.Target)
	}

	c.LogDir = cleanAndExpandPath(c.LogDir)
	if c.WIFFile != "" {
		c.WIFFile = cleanAndExpandPath(c.WIFFile)
	}

	return nil
}

// logFile returns the path of the log file of the configured network.
func (c *config) logFile() string {
	return filepath.Join(c.LogDir, strings.ToLower(string(c.network)),
		defaultLogFilename)
}

// esploraConfig returns the indexer client configuration.
func (c *config) esploraConfig() *esplora.Config {
	params, _ := c.network.Params()

	// A zero timeout on the command line means no timeout.
	timeout := c.Timeout
	if timeout == 0 {
		timeout = -1
	}

	return &esplora.Config{
		BaseURL:     c.IndexerURL,
		ChainParams: params,
		Timeout:     timeout,
	}
}

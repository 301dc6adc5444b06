// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// psbtdemo connects a software wallet to a wallet session and runs the
// session flows against a public esplora indexer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	flags "github.com/jessevdk/go-flags"
)

func main() {
	// Work around defer not working after os.Exit.
	if err := psbtdemoMain(); err != nil {
		if !flags.WroteHelp(err) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

// psbtdemoMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func psbtdemoMain() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	err = initLogRotator(cfg.logFile())
	if err != nil {
		return err
	}
	defer logRotator.Close()

	err = parseAndSetDebugLevels(cfg.DebugLevel)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Infof("Running %v on %v against %v", cfg.command, cfg.network,
		cfg.IndexerURL)

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	switch cfg.command {
	case "accounts":
		return app.accounts(ctx)

	case "signmessage":
		return app.signMessage(ctx, cfg.SignMessage.Message)

	case "signtx":
		return app.signTx(ctx, &cfg.SignTx)

	case "send":
		return app.send(ctx, &cfg.Send)

	default:
		return fmt.Errorf("unknown command %q", cfg.command)
	}
}

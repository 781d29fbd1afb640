// hose-pay builds, signs and submits a single payment.
//
// Usage:
//
//	hose-pay [--to=addr --amount=lovelace --dry-run]  Pay from the configured wallet
//	hose-pay --help                                   Show help
//
// Settings come from flags, then the environment, then a .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Liqwid-Labs/hose-sub000/internal/config"
	"github.com/Liqwid-Labs/hose-sub000/internal/log"
)

const usage = `hose-pay builds, signs and submits a payment.

Environment:
  PRIVATE_KEY_HEX   hex ed25519 signing key (or MNEMONIC)
  NETWORK           mainnet, testnet, preview, preprod or a numeric id (default testnet)
  OGMIOS_URL        Ogmios endpoint for parameters, evaluation and submission
  KUPO_URL          Kupo endpoint for UTxO lookups
  DB_PATH           persisted UTxO index (directory for Badger, *.db for bbolt)
  NODE_HOST         cardano-node host:port
  GENESIS_BYRON     Byron genesis file
  GENESIS_SHELLEY   Shelley genesis file
  EVALUATOR_WASM    local Plutus evaluator module
  LOG_LEVEL         debug, info, warn or error

Run with -h for the flag list.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := config.ParseFlags(args, stdout)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if f.Help {
		_, err := io.WriteString(stdout, usage)
		return err
	}
	if err := config.LoadEnvFile(f.EnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(f, os.Getenv)
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel, cfg.LogJSON)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	tx, err := a.pay(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, tx.Hash.String())
	return err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	hose "github.com/Liqwid-Labs/hose-sub000"
	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/backend/cache"
	"github.com/Liqwid-Labs/hose-sub000/backend/index"
	"github.com/Liqwid-Labs/hose-sub000/backend/ogmios"
	"github.com/Liqwid-Labs/hose-sub000/backend/wasm"
	"github.com/Liqwid-Labs/hose-sub000/internal/config"
	"github.com/Liqwid-Labs/hose-sub000/internal/log"
)

const paramsTTL = 5 * time.Minute

// app holds the collaborators a payment runs against.
type app struct {
	cfg    *config.Config
	wallet hose.Signer
	logger zerolog.Logger

	lookup    backend.UtxoLookup
	params    backend.ParamsProvider
	evaluator backend.Evaluator
	submitter backend.Submitter

	// index is nil when DB_PATH is unset.
	index   *index.Index
	closers []func(context.Context) error
}

func newWallet(cfg *config.Config) (hose.Signer, error) {
	if cfg.PrivateKeyHex != "" {
		return hose.NewEd25519WalletFromHex(cfg.Network.Id, cfg.PrivateKeyHex)
	}
	return hose.NewBursaWallet(cfg.Network.Id, cfg.Mnemonic)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := log.Cmd
	w, err := newWallet(cfg)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	logger.Info().
		Str("address", w.Address().String()).
		Uint8("network", cfg.Network.Id).
		Uint32("magic", cfg.Network.Magic).
		Msg("wallet loaded")

	genesis, err := config.LoadGenesis(cfg.GenesisByron, cfg.GenesisShelley)
	if err != nil {
		return nil, err
	}
	if magic, ok := genesis.NetworkMagic(); ok && magic != cfg.Network.Magic {
		logger.Warn().
			Uint32("genesis", magic).
			Uint32("network", cfg.Network.Magic).
			Msg("genesis magic differs from the configured network")
	}
	if cfg.NodeHost != "" {
		logger.Info().Str("node", cfg.NodeHost).Msg("node host configured, submitting through ogmios")
	}

	chain := cache.NewCachedChainContext(ogmios.Dial(cfg.OgmiosURL, cfg.KupoURL, cfg.Network.Id), paramsTTL)
	a := &app{
		cfg:       cfg,
		wallet:    w,
		logger:    logger,
		lookup:    chain,
		params:    chain,
		evaluator: chain,
		submitter: chain,
	}

	if cfg.DBPath != "" {
		idx, err := index.Open(cfg.DBPath)
		if errors.Is(err, index.ErrLocked) {
			return nil, fmt.Errorf("DB_PATH %s is in use, is another hose-pay running? %w", cfg.DBPath, err)
		}
		if err != nil {
			return nil, err
		}
		a.index = idx
		a.lookup = idx
		a.closers = append(a.closers, func(context.Context) error { return idx.Close() })
		if cfg.KupoURL != "" {
			if err := a.seedIndex(ctx, chain); err != nil {
				a.close(ctx)
				return nil, err
			}
		}
	}

	if cfg.EvaluatorWasm != "" {
		pp, err := chain.ProtocolParams(ctx)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		wcfg, err := wasm.ConfigFromParams(cfg.EvaluatorWasm, pp, *genesis.Shelley)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		ev, err := wasm.NewEvaluator(ctx, a.lookup, wcfg)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.evaluator = ev
		a.closers = append(a.closers, ev.Close)
	}
	return a, nil
}

// seedIndex loads the wallet's outputs into an empty index.
func (a *app) seedIndex(ctx context.Context, source backend.UtxoLookup) error {
	n, err := a.index.Len()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	utxos, err := source.AddressUtxos(ctx, a.wallet.Address())
	if err != nil {
		return fmt.Errorf("seed index: %w", err)
	}
	for _, u := range utxos {
		if err := a.index.AddUtxo(u); err != nil {
			return err
		}
	}
	a.logger.Info().Int("utxos", len(utxos)).Msg("seeded index")
	return nil
}

func (a *app) close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn().Err(err).Msg("shutdown")
	}
}

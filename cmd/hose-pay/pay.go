package main

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	hose "github.com/Liqwid-Labs/hose-sub000"
	"github.com/Liqwid-Labs/hose-sub000/internal/log"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// defaultAmount is sent when no amount is configured.
const defaultAmount = 10_000_000

func (a *app) recipient() (common.Address, error) {
	if a.cfg.To == "" {
		return a.wallet.Address(), nil
	}
	addr, err := common.NewAddress(a.cfg.To)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid recipient: %w", err)
	}
	return addr, nil
}

// pay builds and signs the payment, submits it unless this is a dry run and
// records it in the index.
func (a *app) pay(ctx context.Context) (*hose.BuiltTransaction, error) {
	to, err := a.recipient()
	if err != nil {
		return nil, err
	}
	amount := a.cfg.Amount
	if amount == 0 {
		amount = defaultAmount
	}

	b := hose.NewTxBuilder(a.cfg.Network.Id, a.lookup, a.evaluator, a.params).
		ChangeAddress(a.wallet.Address())
	if a.cfg.Absorb {
		b = b.WithChangeAbsorption()
	}
	if _, err := b.AddOutput(primitives.NewOutput(to, amount)); err != nil {
		return nil, err
	}

	done := log.Timer(a.logger, "build")
	tx, err := b.Build(ctx)
	done()
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if tx, err = tx.Sign(a.wallet); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	logger := log.ForTx(a.logger, tx.Hash.String())
	logger.Info().
		Uint64("fee", tx.Fee).
		Uint64("amount", amount).
		Str("to", to.String()).
		Int("size", len(tx.Bytes)).
		Msg("built payment")

	if a.cfg.DryRun {
		logger.Info().Str("cbor", tx.Hex()).Msg("dry run, not submitting")
		return tx, nil
	}

	submitted, err := a.submitter.SubmitTx(ctx, tx.Bytes)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if submitted != tx.Hash {
		logger.Warn().
			Str("submitted", submitted.String()).
			Msg("submitted hash differs")
	}
	if a.index != nil {
		if _, err := a.index.ApplyTx(ctx, tx.Bytes); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
	}
	logger.Info().Msg("submitted")
	return tx, nil
}

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	hose "github.com/Liqwid-Labs/hose-sub000"
	"github.com/Liqwid-Labs/hose-sub000/backend/fixed"
	"github.com/Liqwid-Labs/hose-sub000/backend/index"
	"github.com/Liqwid-Labs/hose-sub000/internal/config"
	"github.com/Liqwid-Labs/hose-sub000/internal/log"
	"github.com/Liqwid-Labs/hose-sub000/internal/storage"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

var testKeyHex = strings.Repeat("07", 32)

// recordingSubmitter accepts every transaction and returns its hash.
type recordingSubmitter struct {
	submitted [][]byte
}

func (r *recordingSubmitter) SubmitTx(_ context.Context, tx []byte) (common.Blake2b256, error) {
	view, err := primitives.DecodeTx(tx)
	if err != nil {
		return common.Blake2b256{}, err
	}
	r.submitted = append(r.submitted, tx)
	return view.Hash, nil
}

func newTestApp(t *testing.T, cfg *config.Config) (*app, *recordingSubmitter) {
	t.Helper()
	w, err := hose.NewEd25519WalletFromHex(0, testKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	idx := index.New(storage.NewMemory())
	t.Cleanup(func() { _ = idx.Close() })

	var h common.Blake2b256
	h[0] = 0x42
	seed := primitives.Utxo{
		Input:  primitives.NewInput(h, 0),
		Output: primitives.NewOutput(w.Address(), 100_000_000),
	}
	if err := idx.AddUtxo(seed); err != nil {
		t.Fatal(err)
	}

	fc := fixed.NewEmptyFixedChainContext()
	sub := &recordingSubmitter{}
	return &app{
		cfg:       cfg,
		wallet:    w,
		logger:    log.Cmd,
		lookup:    idx,
		params:    fc,
		evaluator: fc,
		submitter: sub,
		index:     idx,
	}, sub
}

func TestPaySubmitsAndIndexes(t *testing.T) {
	a, sub := newTestApp(t, &config.Config{Amount: 5_000_000})
	tx, err := a.pay(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.submitted) != 1 || !bytes.Equal(sub.submitted[0], tx.Bytes) {
		t.Fatal("expected the signed transaction to be submitted")
	}
	if len(tx.VkeyWitnesses()) != 1 {
		t.Errorf("expected one vkey witness, got %d", len(tx.VkeyWitnesses()))
	}

	utxos, err := a.index.AddressUtxos(context.Background(), a.wallet.Address())
	if err != nil {
		t.Fatal(err)
	}
	if len(utxos) != 2 {
		t.Fatalf("expected payment and change in the index, got %d", len(utxos))
	}
	var total uint64
	for _, u := range utxos {
		if u.Input.TxHash != tx.Hash {
			t.Errorf("expected outputs of %s, got %s", tx.Hash, u.Input)
		}
		total += u.Output.Lovelace
	}
	if total+tx.Fee != 100_000_000 {
		t.Errorf("value not conserved: outputs %d fee %d", total, tx.Fee)
	}
}

func TestPayDryRun(t *testing.T) {
	a, sub := newTestApp(t, &config.Config{DryRun: true})
	tx, err := a.pay(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.submitted) != 0 {
		t.Error("dry run must not submit")
	}
	view, err := primitives.DecodeTx(tx.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	if view.Outputs[0].Lovelace != defaultAmount {
		t.Errorf("expected default amount %d, got %d", defaultAmount, view.Outputs[0].Lovelace)
	}
	if n, err := a.index.Len(); err != nil || n != 1 {
		t.Errorf("dry run must leave the index untouched, got %d %v", n, err)
	}
}

func TestPayInvalidRecipient(t *testing.T) {
	a, _ := newTestApp(t, &config.Config{To: "not-an-address"})
	if _, err := a.pay(context.Background()); err == nil {
		t.Error("expected error for invalid recipient")
	}
}

func TestPayInsufficientFunds(t *testing.T) {
	a, sub := newTestApp(t, &config.Config{Amount: 500_000_000})
	if _, err := a.pay(context.Background()); err == nil {
		t.Error("expected error when the wallet cannot cover the payment")
	}
	if len(sub.submitted) != 0 {
		t.Error("failed build must not submit")
	}
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-h"}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "PRIVATE_KEY_HEX") {
		t.Errorf("expected usage text, got %q", out.String())
	}
}

func TestRunMissingConfig(t *testing.T) {
	for _, name := range []string{"PRIVATE_KEY_HEX", "MNEMONIC", "OGMIOS_URL", "KUPO_URL", "DB_PATH", "NODE_HOST"} {
		t.Setenv(name, "")
	}
	var out bytes.Buffer
	err := run(context.Background(), []string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}, &out)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !strings.Contains(err.Error(), "OGMIOS_URL") {
		t.Errorf("expected missing OGMIOS_URL to be reported, got %v", err)
	}
}

func TestRunRejectsArguments(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"extra"}, &out); err == nil {
		t.Error("expected error for positional argument")
	}
}

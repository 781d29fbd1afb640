package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	hose "github.com/Liqwid-Labs/hose-sub000"
	"github.com/Liqwid-Labs/hose-sub000/backend/fixed"
	"github.com/Liqwid-Labs/hose-sub000/internal/storage"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

func walletAddress(t *testing.T) common.Address {
	t.Helper()
	raw := make([]byte, 57)
	raw[1] = 0xAA
	raw[29] = 0xBB
	addr, err := common.NewAddressFromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func otherAddress(t *testing.T) common.Address {
	t.Helper()
	raw := make([]byte, 29)
	raw[0] = 0x60
	raw[1] = 0xCC
	addr, err := common.NewAddressFromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func seedInput(b byte) primitives.Input {
	var h common.Blake2b256
	h[0] = b
	return primitives.NewInput(h, 0)
}

func selfSend(t *testing.T, idx *Index, fc *fixed.FixedChainContext, wallet common.Address, amount uint64) *hose.BuiltTransaction {
	t.Helper()
	b, err := hose.NewTxBuilder(0, idx, fc, fc).
		WithChangeAbsorption().
		ChangeAddress(wallet).
		AddOutput(primitives.NewOutput(wallet, amount))
	if err != nil {
		t.Fatal(err)
	}
	tx, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestAddressUtxos(t *testing.T) {
	idx := New(storage.NewMemory())
	defer idx.Close()
	wallet := walletAddress(t)
	other := otherAddress(t)

	for i, u := range []primitives.Utxo{
		{Input: seedInput(0x03), Output: primitives.NewOutput(wallet, 3)},
		{Input: seedInput(0x01), Output: primitives.NewOutput(wallet, 1)},
		{Input: seedInput(0x02), Output: primitives.NewOutput(other, 2)},
	} {
		if err := idx.AddUtxo(u); err != nil {
			t.Fatalf("AddUtxo(%d) error: %v", i, err)
		}
	}

	utxos, err := idx.AddressUtxos(context.Background(), wallet)
	if err != nil {
		t.Fatal(err)
	}
	if len(utxos) != 2 {
		t.Fatalf("expected 2 wallet utxos, got %d", len(utxos))
	}
	if utxos[0].Output.Lovelace != 1 || utxos[1].Output.Lovelace != 3 {
		t.Errorf("expected pointer order, got %d then %d", utxos[0].Output.Lovelace, utxos[1].Output.Lovelace)
	}

	u, err := idx.Utxo(context.Background(), seedInput(0x02))
	if err != nil || u == nil || u.Output.Lovelace != 2 {
		t.Errorf("Utxo() = %+v, %v", u, err)
	}
	u, err = idx.Utxo(context.Background(), seedInput(0x09))
	if err != nil || u != nil {
		t.Errorf("expected missing utxo to be nil, got %+v, %v", u, err)
	}
	if _, err := idx.Utxos(context.Background(), []primitives.Input{seedInput(0x01), seedInput(0x09)}); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestApplyAndRollback(t *testing.T) {
	idx := New(storage.NewMemory())
	defer idx.Close()
	fc := fixed.NewEmptyFixedChainContext()
	wallet := walletAddress(t)
	seed := primitives.Utxo{Input: seedInput(0x01), Output: primitives.NewOutput(wallet, 100_000_000)}
	if err := idx.AddUtxo(seed); err != nil {
		t.Fatal(err)
	}

	tx := selfSend(t, idx, fc, wallet, 50_000_000)
	hash, err := idx.ApplyTx(context.Background(), tx.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	if hash != tx.Hash {
		t.Errorf("ApplyTx() hash = %s, want %s", hash, tx.Hash)
	}
	if u, _ := idx.Utxo(context.Background(), seed.Input); u != nil {
		t.Error("seed should be spent")
	}
	if _, err := idx.ApplyTx(context.Background(), tx.Bytes); !errors.Is(err, ErrAlreadyApplied) {
		t.Errorf("expected ErrAlreadyApplied, got %v", err)
	}

	if err := idx.RollbackTx(context.Background(), hash); err != nil {
		t.Fatal(err)
	}
	utxos, err := idx.AddressUtxos(context.Background(), wallet)
	if err != nil {
		t.Fatal(err)
	}
	if len(utxos) != 1 || utxos[0].Input != seed.Input || utxos[0].Output.Lovelace != 100_000_000 {
		t.Errorf("rollback did not restore the seed: %+v", utxos)
	}
	if err := idx.RollbackTx(context.Background(), hash); !errors.Is(err, ErrNotApplied) {
		t.Errorf("expected ErrNotApplied, got %v", err)
	}
}

func TestApplyMissingInput(t *testing.T) {
	idx := New(storage.NewMemory())
	defer idx.Close()
	fc := fixed.NewEmptyFixedChainContext()
	wallet := walletAddress(t)
	seed := primitives.Utxo{Input: seedInput(0x01), Output: primitives.NewOutput(wallet, 100_000_000)}
	if err := idx.AddUtxo(seed); err != nil {
		t.Fatal(err)
	}
	tx := selfSend(t, idx, fc, wallet, 10_000_000)

	empty := New(storage.NewMemory())
	defer empty.Close()
	if _, err := empty.ApplyTx(context.Background(), tx.Bytes); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
	if n, _ := empty.Len(); n != 0 {
		t.Errorf("failed apply must not write, found %d utxos", n)
	}
}

func TestChainedSelfSendsPersisted(t *testing.T) {
	const start = 1_000_000_000
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	fc := fixed.NewEmptyFixedChainContext()
	wallet := walletAddress(t)
	prev := seedInput(0x01)
	if err := idx.AddUtxo(primitives.Utxo{Input: prev, Output: primitives.NewOutput(wallet, start)}); err != nil {
		t.Fatal(err)
	}

	for i := range 50 {
		amount := uint64(start - (i+1)*1_000_000)
		tx := selfSend(t, idx, fc, wallet, amount)
		view, err := primitives.DecodeTx(tx.Bytes)
		if err != nil {
			t.Fatal(err)
		}
		if len(view.Inputs) != 1 || view.Inputs[0] != prev {
			t.Fatalf("tx %d: expected to spend only %s, got %v", i, prev, view.Inputs)
		}
		if len(view.Outputs) != 1 || view.Outputs[0].Lovelace != amount {
			t.Fatalf("tx %d: unexpected outputs %+v", i, view.Outputs)
		}
		if _, err := idx.ApplyTx(context.Background(), tx.Bytes); err != nil {
			t.Fatalf("tx %d: %v", i, err)
		}
		prev = primitives.NewInput(tx.Hash, 0)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	utxos, err := reopened.AddressUtxos(context.Background(), wallet)
	if err != nil {
		t.Fatal(err)
	}
	if len(utxos) != 1 || utxos[0].Input != prev || utxos[0].Output.Lovelace != start-50*1_000_000 {
		t.Errorf("unexpected final utxo set %+v", utxos)
	}
}

func TestBadgerBackedIndex(t *testing.T) {
	db, err := storage.NewBadgerInMemory()
	if err != nil {
		t.Fatal(err)
	}
	idx := New(db)
	defer idx.Close()
	wallet := walletAddress(t)
	if err := idx.AddUtxo(primitives.Utxo{Input: seedInput(0x05), Output: primitives.NewOutput(wallet, 7)}); err != nil {
		t.Fatal(err)
	}
	utxos, err := idx.AddressUtxos(context.Background(), wallet)
	if err != nil || len(utxos) != 1 {
		t.Errorf("AddressUtxos() = %v, %v", utxos, err)
	}
}

package hose

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend/fixed"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

const alwaysSucceedsV3 = "5101010023259800a518a4d136564004ae69"

// validTestAddrBech32 is a testnet base address with payment and staking parts.
var validTestAddrBech32 = func() string {
	var raw [57]byte
	raw[0] = 0x00
	raw[1] = 0xAA
	raw[29] = 0xBB
	addr, err := common.NewAddressFromBytes(raw[:])
	if err != nil {
		return ""
	}
	return addr.String()
}()

func testAddress(t *testing.T) common.Address {
	t.Helper()
	addr, err := common.NewAddress(validTestAddrBech32)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

// otherAddress is a testnet enterprise address unrelated to the wallet.
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

func scriptAddress(t *testing.T, h common.Blake2b224) common.Address {
	t.Helper()
	addr, err := common.NewAddressFromBytes(append([]byte{0x70}, h.Bytes()...))
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func alwaysSucceeds(t *testing.T) primitives.Script {
	t.Helper()
	b, err := hex.DecodeString(alwaysSucceedsV3)
	if err != nil {
		t.Fatal(err)
	}
	return primitives.NewScript(primitives.ScriptPlutusV3, b)
}

func testPolicy(b byte) common.Blake2b224 {
	var h common.Blake2b224
	h[0] = b
	return h
}

func testInput(hashByte byte, index uint32) primitives.Input {
	var h common.Blake2b256
	h[0] = hashByte
	return primitives.NewInput(h, index)
}

func setupFixedContext() *fixed.FixedChainContext {
	return fixed.NewEmptyFixedChainContext()
}

func addTestUtxo(fc *fixed.FixedChainContext, out primitives.Output, hashByte byte, index uint32) primitives.Input {
	in := testInput(hashByte, index)
	fc.AddUtxo(primitives.Utxo{Input: in, Output: out})
	return in
}

// applyTx spends the inputs of a built transaction and adds its outputs to fc.
func applyTx(t *testing.T, fc *fixed.FixedChainContext, tx *BuiltTransaction) {
	t.Helper()
	view, err := primitives.DecodeTx(tx.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range view.ConsumedInputs() {
		fc.RemoveUtxo(in)
	}
	for _, u := range view.ProducedUtxos() {
		fc.AddUtxo(u)
	}
}

func mustBuild(t *testing.T, b *TxBuilder) *BuiltTransaction {
	t.Helper()
	tx, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

func mustDecode(t *testing.T, tx *BuiltTransaction) *primitives.TxView {
	t.Helper()
	view, err := primitives.DecodeTx(tx.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	return view
}

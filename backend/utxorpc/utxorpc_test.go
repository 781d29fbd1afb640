package utxorpc

import (
	"bytes"
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	cardano "github.com/utxorpc/go-codegen/utxorpc/v1alpha/cardano"
	query "github.com/utxorpc/go-codegen/utxorpc/v1alpha/query"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

func testOutput(t *testing.T) primitives.Output {
	t.Helper()
	raw := make([]byte, 29)
	raw[0] = 0x60
	raw[1] = 0xCC
	addr, err := common.NewAddressFromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	return primitives.NewOutput(addr, 3_000_000)
}

func TestUtxoFromRpc(t *testing.T) {
	out := testOutput(t)
	native, err := out.Encode()
	if err != nil {
		t.Fatal(err)
	}
	hash := bytes.Repeat([]byte{0x11}, 32)

	utxo, err := utxoFromRpc(&query.AnyUtxoData{
		NativeBytes: native,
		TxoRef:      &query.TxoRef{Hash: hash, Index: 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	if utxo.Input.Index != 4 || !bytes.Equal(utxo.Input.TxHash.Bytes(), hash) {
		t.Errorf("unexpected input %s", utxo.Input)
	}
	if utxo.Output.Lovelace != 3_000_000 {
		t.Errorf("expected 3000000 lovelace, got %d", utxo.Output.Lovelace)
	}

	tests := []struct {
		name string
		item *query.AnyUtxoData
	}{
		{"no native bytes", &query.AnyUtxoData{TxoRef: &query.TxoRef{Hash: hash}}},
		{"short hash", &query.AnyUtxoData{NativeBytes: native, TxoRef: &query.TxoRef{Hash: hash[:4]}}},
		{"bad cbor", &query.AnyUtxoData{NativeBytes: []byte{0xff}, TxoRef: &query.TxoRef{Hash: hash}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := utxoFromRpc(tt.item); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPurposeToRedeemerTag(t *testing.T) {
	tests := []struct {
		purpose cardano.RedeemerPurpose
		want    common.RedeemerTag
	}{
		{cardano.RedeemerPurpose_REDEEMER_PURPOSE_SPEND, common.RedeemerTagSpend},
		{cardano.RedeemerPurpose_REDEEMER_PURPOSE_MINT, common.RedeemerTagMint},
		{cardano.RedeemerPurpose_REDEEMER_PURPOSE_CERT, common.RedeemerTagCert},
		{cardano.RedeemerPurpose_REDEEMER_PURPOSE_REWARD, common.RedeemerTagReward},
	}
	for _, tt := range tests {
		got, err := purposeToRedeemerTag(tt.purpose)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("purpose %d: expected tag %d, got %d", tt.purpose, tt.want, got)
		}
	}
	if _, err := purposeToRedeemerTag(cardano.RedeemerPurpose(99)); err == nil {
		t.Error("expected error for unknown purpose")
	}
	if bigIntToUint64(nil) != 0 {
		t.Error("expected nil big int to read as zero")
	}
}

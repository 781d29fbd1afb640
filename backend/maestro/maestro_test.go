package maestro

import (
	"strings"
	"testing"

	"github.com/Liqwid-Labs/hose-sub000/constants"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

func TestParseCostModels(t *testing.T) {
	raw := map[string]any{
		"plutus:v1": []any{float64(1), float64(2)},
		"plutus:v3": []any{float64(3)},
		"other":     []any{float64(4)},
	}
	models, err := parseCostModels(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || len(models[0]) != 2 || models[2][0] != 3 {
		t.Errorf("unexpected cost models %v", models)
	}

	if _, err := parseCostModels(map[string]any{"plutus:v2": []any{"x"}}); err == nil {
		t.Error("expected error for non-numeric cost")
	}
	if models, err := parseCostModels(nil); err != nil || models != nil {
		t.Errorf("expected nil models for missing field, got %v %v", models, err)
	}
}

func TestMaestroDatum(t *testing.T) {
	d, err := maestroDatum(map[string]any{"type": "inline", "bytes": "182a"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != primitives.DatumInline || len(d.Inline) != 2 {
		t.Errorf("expected inline datum, got %+v", d)
	}

	hash := strings.Repeat("ab", 32)
	d, err = maestroDatum(map[string]any{"type": "hash", "hash": hash})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != primitives.DatumHash || d.Hash[0] != 0xab {
		t.Errorf("expected hashed datum, got %+v", d)
	}

	d, err = maestroDatum(nil)
	if err != nil || !d.IsNone() {
		t.Errorf("expected no datum, got %+v %v", d, err)
	}

	if _, err := maestroDatum(map[string]any{"hash": "zz"}); err == nil {
		t.Error("expected error for bad hash")
	}
}

func TestNetworkSelection(t *testing.T) {
	if got := networkString(1); got != "mainnet" {
		t.Errorf("expected mainnet, got %s", got)
	}
	if got := networkString(0); got != "preprod" {
		t.Errorf("expected preprod, got %s", got)
	}
	tests := []struct {
		network constants.Network
		id      uint8
	}{
		{constants.MAINNET, 1},
		{constants.TESTNET, 0},
		{constants.PREVIEW, 0},
	}
	for _, tt := range tests {
		if got := NewMaestroChainContextForNetwork(tt.network, "x").NetworkId(); got != tt.id {
			t.Errorf("%s: expected network id %d, got %d", tt.network, tt.id, got)
		}
	}
}

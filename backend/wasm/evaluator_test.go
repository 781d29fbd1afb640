package wasm

import (
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/backend/fixed"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// emptyModule is the smallest valid WebAssembly binary.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestConfigFromParams(t *testing.T) {
	pp := fixed.PreprodParameters()
	gp := backend.GenesisParameters{SystemStart: "2022-06-01T00:00:00Z", SlotLength: 1}
	cfg, err := ConfigFromParams("plutus.wasm", pp, gp)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ZeroTime != 1654041600000 {
		t.Errorf("ZeroTime = %d, want 1654041600000", cfg.ZeroTime)
	}
	if cfg.SlotLength != 1000 {
		t.Errorf("SlotLength = %d, want 1000", cfg.SlotLength)
	}
	if cfg.MaxTxExUnits != pp.MaxTxExecutionUnits {
		t.Errorf("MaxTxExUnits = %+v", cfg.MaxTxExUnits)
	}

	if _, err := ConfigFromParams("", pp, backend.GenesisParameters{SystemStart: "yesterday"}); err == nil {
		t.Error("expected error for malformed system start")
	}
}

func TestNewEvaluatorErrors(t *testing.T) {
	ctx := context.Background()
	lookup := fixed.NewEmptyFixedChainContext()

	tests := []struct {
		name   string
		config Config
		is     error
	}{
		{name: "no module", config: Config{}},
		{name: "missing file", config: Config{WasmFile: filepath.Join(t.TempDir(), "absent.wasm")}},
		{name: "invalid bytes", config: Config{Wasm: []byte("not wasm")}},
		{name: "missing exports", config: Config{Wasm: emptyModule}, is: ErrMissingExport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEvaluator(ctx, lookup, tt.config)
			if err == nil {
				_ = e.Close(ctx)
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("expected %v, got %v", tt.is, err)
			}
		})
	}
}

func TestParseResult(t *testing.T) {
	payload, err := cbor.Encode([]any{
		[]any{uint64(0), uint64(1), uint64(42), []any{uint64(10), uint64(20)}},
		[]any{uint64(1), uint64(0), []any{}, []any{uint64(3), uint64(4)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	evals, err := parseResult(append([]byte{0}, payload...))
	if err != nil {
		t.Fatal(err)
	}
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}
	spend := evals[0]
	if spend.Validator.Purpose != common.RedeemerTagSpend || spend.Validator.Index != 1 {
		t.Errorf("unexpected validator %+v", spend.Validator)
	}
	if got := spend.Budget.ExUnits(); got != (primitives.ExUnits{Mem: 10, Steps: 20}) {
		t.Errorf("unexpected budget %+v", got)
	}
	if evals[1].Validator.Purpose != common.RedeemerTagMint {
		t.Errorf("expected mint, got %v", evals[1].Validator.Purpose)
	}
}

func TestParseResultFailure(t *testing.T) {
	payload, err := cbor.Encode(map[string]any{
		"error_type":  "EvaluationFailure",
		"debug_trace": []string{"validator crashed"},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = parseResult(append([]byte{1}, payload...))
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.ErrorType != "EvaluationFailure" || len(scriptErr.DebugTrace) != 1 {
		t.Errorf("unexpected script error %+v", scriptErr)
	}

	if _, err := parseResult(nil); err == nil {
		t.Error("expected error for empty result")
	}
	bad, _ := cbor.Encode([]any{[]any{uint64(9), uint64(0), uint64(0), []any{uint64(1), uint64(1)}}})
	if _, err := parseResult(append([]byte{0}, bad...)); err == nil {
		t.Error("expected error for unknown tag")
	}
}

func TestSerializeUtxos(t *testing.T) {
	raw := make([]byte, 29)
	raw[0] = 0x60
	addr, err := common.NewAddressFromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	var h common.Blake2b256
	h[0] = 0x01
	utxos := []primitives.Utxo{
		{Input: primitives.NewInput(h, 0), Output: primitives.NewOutput(addr, 1)},
		{Input: primitives.NewInput(h, 1), Output: primitives.NewOutput(addr, 2)},
	}
	out, err := serializeUtxos(utxos)
	if err != nil {
		t.Fatal(err)
	}
	if n := binary.LittleEndian.Uint64(out[:8]); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	inLen := binary.LittleEndian.Uint64(out[8:16])
	var in struct {
		cbor.StructAsArray
		TxId  []byte
		Index uint32
	}
	if _, err := cbor.Decode(out[16:16+inLen], &in); err != nil {
		t.Fatal(err)
	}
	if in.Index != 0 || in.TxId[0] != 0x01 {
		t.Errorf("unexpected first input %+v", in)
	}
	outLen := binary.LittleEndian.Uint64(out[16+inLen : 24+inLen])
	decoded, err := primitives.DecodeOutput(out[24+inLen : 24+inLen+outLen])
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Lovelace != 1 {
		t.Errorf("first output lovelace = %d, want 1", decoded.Lovelace)
	}
}

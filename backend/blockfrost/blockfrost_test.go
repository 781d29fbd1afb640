package blockfrost

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/constants"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

const paramsJSON = `{
	"min_fee_a": 44,
	"min_fee_b": 155381,
	"max_tx_size": 16384,
	"key_deposit": "2000000",
	"pool_deposit": "500000000",
	"price_mem": 0.0577,
	"price_step": 0.0000721,
	"max_tx_ex_mem": "14000000",
	"max_tx_ex_steps": "10000000000",
	"max_val_size": "5000",
	"collateral_percent": 150,
	"max_collateral_inputs": 3,
	"coins_per_utxo_size": "4310",
	"min_fee_ref_script_cost_per_byte": 15,
	"protocol_major_ver": 10,
	"protocol_minor_ver": 0,
	"cost_models": {"PlutusV2": {"b-param": 2, "a-param": 1}, "PlutusV3": {"x": 7}}
}`

var txHash = strings.Repeat("11", 32)

func testAddress(t *testing.T) common.Address {
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

func newTestServer(t *testing.T, routes map[string]string) *BlockFrostChainContext {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("project_id") != "test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/api/v0")
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}
		body, ok := routes[r.Method+" "+path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewBlockFrostChainContext(srv.URL, 0, "test")
}

func TestProtocolParams(t *testing.T) {
	bf := newTestServer(t, map[string]string{"GET /epochs/latest/parameters": paramsJSON})
	pp, err := bf.ProtocolParams(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pp.MinFeeConstant != 155381 || pp.MinFeeCoefficient != 44 {
		t.Errorf("unexpected fee params %d %d", pp.MinFeeConstant, pp.MinFeeCoefficient)
	}
	if pp.StakeCredentialDeposit != 2_000_000 || pp.AdaPerUtxoByte != 4310 {
		t.Errorf("unexpected deposits %+v", pp)
	}
	if pp.ScriptExecutionPrices.Memory.Cmp(big.NewRat(577, 10000)) != 0 {
		t.Errorf("expected exact memory price, got %s", pp.ScriptExecutionPrices.Memory)
	}
	if pp.ScriptExecutionPrices.Cpu.Cmp(big.NewRat(721, 10000000)) != 0 {
		t.Errorf("expected exact cpu price, got %s", pp.ScriptExecutionPrices.Cpu)
	}
	ref := pp.MinFeeReferenceScripts
	if ref.Range != 25600 || ref.Base.Cmp(big.NewRat(15, 1)) != 0 || ref.Multiplier.Cmp(big.NewRat(6, 5)) != 0 {
		t.Errorf("unexpected reference script fee %+v", ref)
	}
	if v2 := pp.CostModels[1]; len(v2) != 2 || v2[0] != 1 || v2[1] != 2 {
		t.Errorf("expected named cost model sorted by name, got %v", v2)
	}
	if pp.MaxTxExecutionUnits.Mem != 14_000_000 {
		t.Errorf("unexpected max ex mem %d", pp.MaxTxExecutionUnits.Mem)
	}
}

func TestAddressUtxos(t *testing.T) {
	addr := testAddress(t)
	unit := strings.Repeat("ab", 28) + "6869"
	page1 := `[{"tx_hash": "` + txHash + `", "output_index": 1, "address": "` + addr.String() + `",
		"amount": [{"unit": "lovelace", "quantity": "5000000"}, {"unit": "` + unit + `", "quantity": "7"}],
		"inline_datum": "182a"}]`
	bf := newTestServer(t, map[string]string{
		"GET /addresses/" + addr.String() + "/utxos?page=1": page1,
		"GET /addresses/" + addr.String() + "/utxos?page=2": `[]`,
	})
	utxos, err := bf.AddressUtxos(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if len(utxos) != 1 {
		t.Fatalf("expected 1 utxo, got %d", len(utxos))
	}
	out := utxos[0].Output
	if utxos[0].Input.Index != 1 || out.Lovelace != 5_000_000 {
		t.Errorf("unexpected utxo %+v", utxos[0])
	}
	id, err := primitives.ParseUnit(unit)
	if err != nil {
		t.Fatal(err)
	}
	if out.Assets[id] != 7 {
		t.Errorf("expected 7 of %s, got %v", unit, out.Assets)
	}
	if out.Datum.Kind != primitives.DatumInline {
		t.Errorf("expected inline datum, got %+v", out.Datum)
	}
}

func TestAddressUtxosUnusedAddress(t *testing.T) {
	bf := newTestServer(t, nil)
	utxos, err := bf.AddressUtxos(context.Background(), testAddress(t))
	if err != nil || len(utxos) != 0 {
		t.Errorf("expected empty result, got %v %v", utxos, err)
	}
}

func TestUtxoByInput(t *testing.T) {
	addr := testAddress(t)
	body := `{"hash": "` + txHash + `", "outputs": [
		{"output_index": 0, "address": "` + addr.String() + `", "amount": [{"unit": "lovelace", "quantity": "1"}], "consumed_by_tx": "` + txHash + `"},
		{"output_index": 1, "address": "` + addr.String() + `", "amount": [{"unit": "lovelace", "quantity": "2"}]}
	]}`
	bf := newTestServer(t, map[string]string{"GET /txs/" + txHash + "/utxos": body})
	h, err := primitives.Hash256FromHex(txHash)
	if err != nil {
		t.Fatal(err)
	}

	utxo, err := bf.Utxo(context.Background(), primitives.NewInput(h, 1))
	if err != nil {
		t.Fatal(err)
	}
	if utxo == nil || utxo.Output.Lovelace != 2 {
		t.Fatalf("unexpected utxo %+v", utxo)
	}

	spent, err := bf.Utxo(context.Background(), primitives.NewInput(h, 0))
	if err != nil || spent != nil {
		t.Errorf("expected spent output to be absent, got %+v %v", spent, err)
	}

	if _, err := bf.Utxos(context.Background(), []primitives.Input{primitives.NewInput(h, 1), primitives.NewInput(h, 5)}); err == nil {
		t.Error("expected error for a missing pointer")
	}
}

func TestParseEvaluation(t *testing.T) {
	evals, err := parseEvaluation([]byte(`{"result": {"EvaluationResult": {"spend:1": {"memory": 10, "steps": 20}, "mint:0": {"memory": 1, "steps": 2}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}
	for _, e := range evals {
		if e.Validator.Purpose == common.RedeemerTagSpend && (e.Validator.Index != 1 || e.Budget.ExUnits().Mem != 10) {
			t.Errorf("unexpected spend evaluation %+v", e)
		}
	}

	if _, err := parseEvaluation([]byte(`{"result": {"EvaluationFailure": {"ScriptFailures": {}}}}`)); err == nil {
		t.Error("expected evaluation failure to surface")
	}
	if _, err := parseEvaluation([]byte(`{"result": {"EvaluationResult": {"spend": {"memory": 1, "steps": 1}}}}`)); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestRequestErrors(t *testing.T) {
	bf := newTestServer(t, nil)
	_, err := bf.ScriptCbor(context.Background(), common.Blake2b224{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	bf.projectId = "wrong"
	if _, err := bf.ProtocolParams(context.Background()); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestBaseUrl(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:3000", "http://localhost:3000/api/v0"},
		{"http://localhost:3000/api/", "http://localhost:3000/api/v0"},
		{"http://localhost:3000/api/v0", "http://localhost:3000/api/v0"},
	}
	for _, tt := range tests {
		if got := NewBlockFrostChainContext(tt.in, 0, "x").baseUrl; got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.in, tt.want, got)
		}
	}

	bf := NewBlockFrostChainContextForNetwork(constants.PREPROD, "x")
	if bf.baseUrl != constants.BlockfrostBaseUrlPreprod+"/v0" || bf.NetworkId() != 0 {
		t.Errorf("unexpected preprod context %s %d", bf.baseUrl, bf.NetworkId())
	}
	if NewBlockFrostChainContextForNetwork(constants.MAINNET, "x").NetworkId() != 1 {
		t.Error("expected mainnet network id")
	}
}

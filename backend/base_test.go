package backend

import (
	"errors"
	"math/big"
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

func TestDepositParamsCoefficient(t *testing.T) {
	pp := ProtocolParameters{MinUtxoDepositCoefficient: 4310}
	if got := pp.DepositParams().CoinsPerByte; got != 4310 {
		t.Errorf("expected 4310, got %d", got)
	}
}

func TestDepositParamsFallsBackToAdaPerUtxoByte(t *testing.T) {
	pp := ProtocolParameters{AdaPerUtxoByte: 8620}
	if got := pp.DepositParams().CoinsPerByte; got != 8620 {
		t.Errorf("expected 8620, got %d", got)
	}
}

func TestProtocolParametersClone(t *testing.T) {
	pp := ProtocolParameters{
		MinFeeConstant:    155381,
		MinFeeCoefficient: 44,
		MaxTxSize:         16384,
		ScriptExecutionPrices: ExecutionPrices{
			Cpu:    big.NewRat(721, 10000000),
			Memory: big.NewRat(577, 10000),
		},
		CostModels: map[uint][]int64{2: {1, 2, 3}},
	}
	dup := pp.Clone()
	dup.CostModels[2][0] = 99
	dup.ScriptExecutionPrices.Memory.SetInt64(1)
	if pp.CostModels[2][0] != 1 {
		t.Error("expected cost models to be copied")
	}
	if pp.ScriptExecutionPrices.Memory.Cmp(big.NewRat(577, 10000)) != 0 {
		t.Error("expected prices to be copied")
	}
	if dup.MinFeeConstant != 155381 || dup.MaxTxSize != 16384 {
		t.Errorf("unexpected clone %+v", dup)
	}
}

func TestComputeMaxTxFee(t *testing.T) {
	pp := ProtocolParameters{MinFeeConstant: 155381, MinFeeCoefficient: 44, MaxTxSize: 16384}
	if got := ComputeMaxTxFee(pp); got != 155381+44*16384 {
		t.Errorf("unexpected max fee %d", got)
	}
}

func TestParseFractionValid(t *testing.T) {
	val, err := ParseFraction("1/2")
	if err != nil {
		t.Fatal(err)
	}
	if val.Cmp(big.NewRat(1, 2)) != 0 {
		t.Errorf("expected 1/2, got %s", val)
	}
}

func TestParseFractionPlainNumber(t *testing.T) {
	val, err := ParseFraction("0.0577")
	if err != nil {
		t.Fatal(err)
	}
	if val.Cmp(big.NewRat(577, 10000)) != 0 {
		t.Errorf("expected exactly 577/10000, got %s", val)
	}
}

func TestParseFractionErrors(t *testing.T) {
	testCases := []string{"abc/100", "1/xyz", "1/0", "not-a-number", ""}
	for _, tc := range testCases {
		if _, err := ParseFraction(tc); err == nil {
			t.Errorf("%q: expected error", tc)
		}
	}
}

func TestRatFromFloat(t *testing.T) {
	if got := RatFromFloat(0.0000721); got.Cmp(big.NewRat(721, 10000000)) != 0 {
		t.Errorf("expected 721/10000000, got %s", got)
	}
	if got := RatFromFloat(15); got.Cmp(big.NewRat(15, 1)) != 0 {
		t.Errorf("expected 15, got %s", got)
	}
}

func TestBudgetExUnitsRoundsUp(t *testing.T) {
	b := Budget{Cpu: big.NewRat(7, 2), Memory: big.NewRat(10, 1)}
	units := b.ExUnits()
	if units.Steps != 4 || units.Mem != 10 {
		t.Errorf("unexpected units %s", units)
	}
	if (Budget{}).ExUnits().Steps != 0 {
		t.Error("expected zero for nil budget")
	}
}

func TestParseRedeemerTag(t *testing.T) {
	testCases := []struct {
		in  string
		tag common.RedeemerTag
	}{
		{"spend", common.RedeemerTagSpend},
		{"MINT", common.RedeemerTagMint},
		{"publish", common.RedeemerTagCert},
		{"withdraw", common.RedeemerTagReward},
	}
	for _, tc := range testCases {
		tag, err := ParseRedeemerTag(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if tag != tc.tag {
			t.Errorf("%q: expected %d, got %d", tc.in, tc.tag, tag)
		}
	}
	if _, err := ParseRedeemerTag("vote"); err == nil {
		t.Error("expected error for unsupported tag")
	}
}

func TestLanguageVersion(t *testing.T) {
	for name, want := range map[string]uint{"PlutusV1": 0, "plutus:v2": 1, "plutusV3": 2} {
		got, ok := LanguageVersion(name)
		if !ok || got != want {
			t.Errorf("%q: expected %d, got %d (%v)", name, want, got, ok)
		}
	}
	if _, ok := LanguageVersion("native"); ok {
		t.Error("expected native to have no language version")
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	inner := errors.New("boom")
	var err error = &IndexerError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected IndexerError to unwrap")
	}
	err = &EvaluatorError{Err: inner}
	var evalErr *EvaluatorError
	if !errors.As(err, &evalErr) || !errors.Is(err, inner) {
		t.Error("expected EvaluatorError to unwrap")
	}
}

func TestGenesisParametersStruct(t *testing.T) {
	gp := GenesisParameters{
		NetworkMagic: 764824073,
		EpochLength:  432000,
	}
	if gp.NetworkMagic != 764824073 {
		t.Errorf("expected 764824073, got %d", gp.NetworkMagic)
	}
	if gp.EpochLength != 432000 {
		t.Errorf("expected 432000, got %d", gp.EpochLength)
	}
}

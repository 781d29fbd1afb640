package hose

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/backend/fixed"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

func preprodRefFee() backend.ReferenceScriptFee {
	return backend.ReferenceScriptFee{
		Range:      25_600,
		Base:       big.NewRat(15, 1),
		Multiplier: big.NewRat(12, 10),
	}
}

func TestReferenceScriptFee(t *testing.T) {
	testCases := []struct {
		size uint64
		want uint64
	}{
		{0, 0},
		{1, 15},
		{25_600, 384_000},
		{30_000, 463_200},
		// 384000 + 460800 + 5 * 21.6
		{51_205, 844_908},
	}
	for _, tc := range testCases {
		if got := ReferenceScriptFee(tc.size, preprodRefFee()); got != tc.want {
			t.Errorf("size %d: expected %d, got %d", tc.size, tc.want, got)
		}
	}
}

func TestReferenceScriptFeeFloorsEachTier(t *testing.T) {
	p := backend.ReferenceScriptFee{
		Range:      10,
		Base:       big.NewRat(1, 3),
		Multiplier: big.NewRat(3, 2),
	}
	// floor(10/3) + floor(10/2) + floor(5*3/4)
	if got := ReferenceScriptFee(25, p); got != 3+5+3 {
		t.Errorf("expected 11, got %d", got)
	}
}

func TestReferenceScriptFeeUnset(t *testing.T) {
	if got := ReferenceScriptFee(1_000, backend.ReferenceScriptFee{}); got != 0 {
		t.Errorf("expected 0 without parameters, got %d", got)
	}
}

func TestDummyWitnessesDistinct(t *testing.T) {
	ws := dummyWitnesses(3)
	for i, w := range ws {
		if len(w.Vkey) != 32 || len(w.Signature) != 64 {
			t.Fatalf("witness %d has wrong sizes", i)
		}
		for j := range i {
			if bytes.Equal(ws[j].Vkey, w.Vkey) {
				t.Errorf("witnesses %d and %d share a key", i, j)
			}
		}
	}
}

func TestWitnessCount(t *testing.T) {
	wallet := testAddress(t)
	script := alwaysSucceeds(t)
	in1, in2, in3 := testInput(1, 0), testInput(2, 0), testInput(3, 0)
	m := feeModel{resolved: map[primitives.Input]primitives.Output{
		in1: primitives.NewOutput(wallet, 1),
		in2: primitives.NewOutput(wallet, 1),
		in3: primitives.NewOutput(scriptAddress(t, script.Hash()), 1),
	}}

	s := NewStaging()
	if got := m.witnessCount(s); got != 1 {
		t.Errorf("empty staging: expected lower bound 1, got %d", got)
	}

	s.Inputs = []primitives.Input{in1, in2, in3}
	if got := m.witnessCount(s); got != 1 {
		t.Errorf("same payment key twice plus a script: expected 1, got %d", got)
	}

	account, _ := primitives.RewardAccountFromKeyHash(0, testPolicy(0x50))
	s.Withdrawals[account] = 0
	s.Signers = append(s.Signers, testPolicy(0x60))
	dereg := primitives.StakeDeregistration{Credential: primitives.KeyHashCredential(testPolicy(0x70))}
	s.Certificates = append(s.Certificates, dereg)
	if got := m.witnessCount(s); got != 4 {
		t.Errorf("expected 4 distinct signers, got %d", got)
	}

	n := uint(7)
	m.signatureOverride = &n
	if got := m.witnessCount(s); got != 7 {
		t.Errorf("expected override of 7, got %d", got)
	}
}

func TestMinFeeWithReferenceScripts(t *testing.T) {
	wallet := testAddress(t)
	in := testInput(1, 0)
	params := fixed.PreprodParameters()
	m := feeModel{
		params:   params,
		resolved: map[primitives.Input]primitives.Output{in: primitives.NewOutput(wallet, 1_000_000_000)},
	}

	s := NewStaging()
	s.Inputs = []primitives.Input{in}
	for i, size := range []int{20_000, 10_000} {
		script := primitives.NewScript(primitives.ScriptPlutusV3, bytes.Repeat([]byte{byte(i + 1)}, size))
		s.Outputs = append(s.Outputs, primitives.NewOutput(wallet, 100_000_000).WithScript(script))
	}
	if got := m.referenceScriptSize(s); got != 30_000 {
		t.Fatalf("expected 30000 bytes of reference scripts, got %d", got)
	}

	fee, _, _, err := m.minFee(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := serialize(s, dummyWitnesses(1))
	if err != nil {
		t.Fatal(err)
	}
	want := params.MinFeeConstant + uint64(len(tx.Bytes))*params.MinFeeCoefficient + 463_200
	if fee != want {
		t.Errorf("expected fee %d, got %d", want, fee)
	}
}

func TestMinFeeCountsReferenceInputScripts(t *testing.T) {
	wallet := testAddress(t)
	ref := testInput(9, 0)
	script := primitives.NewScript(primitives.ScriptPlutusV3, bytes.Repeat([]byte{1}, 1_000))
	m := feeModel{
		params: fixed.PreprodParameters(),
		resolved: map[primitives.Input]primitives.Output{
			ref: primitives.NewOutput(wallet, 10_000_000).WithScript(script),
		},
	}
	s := NewStaging()
	s.ReferenceInputs = []primitives.Input{ref}
	if got := m.referenceScriptSize(s); got != 1_000 {
		t.Errorf("expected 1000 bytes from the reference input, got %d", got)
	}
}

func TestExecutionCostIsExact(t *testing.T) {
	s := NewStaging()
	budget := primitives.ExUnits{Mem: 1, Steps: 1}
	s.Redeemers[primitives.MintPurpose{Policy: testPolicy(1)}] = primitives.Redeemer{Data: []byte{0}, Budget: &budget}
	s.Redeemers[primitives.MintPurpose{Policy: testPolicy(2)}] = primitives.Redeemer{Data: []byte{0}, Budget: &budget}
	cost := executionCost(s, fixed.PreprodParameters().ScriptExecutionPrices)
	// 2 * (721/10^7 + 577/10^4) rounds up once, not per redeemer.
	if got := ceilToUint(cost); got != 1 {
		t.Errorf("expected a single rounding to 1, got %d", got)
	}
}

func TestWithBudgets(t *testing.T) {
	in := testInput(1, 0)
	fixedBudget := primitives.ExUnits{Mem: 9, Steps: 9}
	s := NewStaging()
	s.Inputs = []primitives.Input{in}
	s.Redeemers[primitives.SpendPurpose{Input: in}] = primitives.Redeemer{Data: []byte{0}}
	s.Redeemers[primitives.MintPurpose{Policy: testPolicy(1)}] = primitives.Redeemer{Data: []byte{0}, Budget: &fixedBudget}
	id, _ := primitives.NewAssetId(testPolicy(1), []byte("a"))
	s.Mint[id] = 1

	zeroed, err := withBudgets(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b := zeroed.Redeemers[primitives.SpendPurpose{Input: in}].Budget; b == nil || *b != (primitives.ExUnits{}) {
		t.Errorf("expected zero budget, got %v", b)
	}

	evals := []backend.Evaluation{backend.NewEvaluation(0, 0, 100, 200)}
	applied, err := withBudgets(s, evals)
	if err != nil {
		t.Fatal(err)
	}
	if b := applied.Redeemers[primitives.SpendPurpose{Input: in}].Budget; b == nil || b.Mem != 100 || b.Steps != 200 {
		t.Errorf("expected evaluated budget, got %v", b)
	}
	if b := applied.Redeemers[primitives.MintPurpose{Policy: testPolicy(1)}].Budget; *b != fixedBudget {
		t.Errorf("fixed budget overwritten: %v", b)
	}
	if s.Redeemers[primitives.SpendPurpose{Input: in}].Budget != nil {
		t.Error("withBudgets mutated its input")
	}

	s.Redeemers[primitives.MintPurpose{Policy: testPolicy(1)}] = primitives.Redeemer{Data: []byte{0}}
	var evalErr *EvaluatorError
	if _, err := withBudgets(s, evals); !errors.As(err, &evalErr) {
		t.Errorf("expected EvaluatorError for a redeemer without evaluation, got %v", err)
	}
}

func TestRequiredCollateral(t *testing.T) {
	testCases := []struct {
		fee, pct, want uint64
	}{
		{200_000, 150, 300_000},
		{200_001, 150, 300_002},
		{1, 150, 2},
		{0, 150, 0},
	}
	for _, tc := range testCases {
		if got := requiredCollateral(tc.fee, tc.pct); got != tc.want {
			t.Errorf("fee %d: expected %d, got %d", tc.fee, tc.want, got)
		}
	}
}

func TestSelectCollateral(t *testing.T) {
	wallet := testAddress(t)
	id, _ := primitives.NewAssetId(testPolicy(1), []byte("a"))
	utxo := func(b byte, lovelace uint64) primitives.Utxo {
		return primitives.Utxo{Input: testInput(b, 0), Output: primitives.NewOutput(wallet, lovelace)}
	}
	bl := &balancer{fees: feeModel{params: fixed.PreprodParameters()}}
	bl.candidates = []primitives.Utxo{
		utxo(1, 10_000_000),
		utxo(2, 3_000_000),
		utxo(3, 4_000_000),
		{Input: testInput(4, 0), Output: primitives.NewOutput(wallet, 3_500_000).WithAssets(primitives.Assets{id: 1})},
	}
	picked, err := bl.selectCollateral(3_200_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(picked) != 1 || picked[0].Input != testInput(3, 0) {
		t.Errorf("expected smallest sufficient utxo 3, got %v", picked)
	}

	picked, err = bl.selectCollateral(12_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(picked) != 2 || picked[0].Input != testInput(1, 0) || picked[1].Input != testInput(3, 0) {
		t.Errorf("expected fallback to utxos 1 and 3, got %v", picked)
	}

	if _, err := bl.selectCollateral(50_000_000); !errors.Is(err, ErrNoCollateralCandidate) {
		t.Errorf("expected ErrNoCollateralCandidate, got %v", err)
	}
}

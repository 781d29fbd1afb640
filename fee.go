package hose

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// feeModel prices a draft transaction against one parameter snapshot.
type feeModel struct {
	params    backend.ProtocolParameters
	evaluator backend.Evaluator
	// resolved holds the outputs behind inputs, reference inputs and
	// collateral inputs.
	resolved          map[primitives.Input]primitives.Output
	signatureOverride *uint
}

// minFee returns the minimum fee for s together with the evaluations it
// priced and a copy of s carrying those budgets. Without redeemers the
// evaluator is not consulted.
func (m *feeModel) minFee(ctx context.Context, s *Staging, evals []backend.Evaluation) (uint64, []backend.Evaluation, *Staging, error) {
	applied := s
	if len(s.Redeemers) > 0 {
		draft, err := withBudgets(s, evals)
		if err != nil {
			return 0, nil, nil, err
		}
		tx, err := Serialize(draft)
		if err != nil {
			return 0, nil, nil, err
		}
		evals, err = m.evaluator.Evaluate(ctx, tx.Bytes)
		if err != nil {
			return 0, nil, nil, &EvaluatorError{Err: err}
		}
		applied, err = withBudgets(s, evals)
		if err != nil {
			return 0, nil, nil, err
		}
	}

	tx, err := serialize(applied, dummyWitnesses(m.witnessCount(applied)))
	if err != nil {
		return 0, nil, nil, err
	}

	fee := new(big.Rat).SetInt64(0)
	fee.Add(fee, ratFromUint(m.params.MinFeeConstant))
	fee.Add(fee, new(big.Rat).Mul(ratFromUint(uint64(len(tx.Bytes))), ratFromUint(m.params.MinFeeCoefficient)))
	fee.Add(fee, executionCost(applied, m.params.ScriptExecutionPrices))
	fee.Add(fee, ratFromUint(ReferenceScriptFee(m.referenceScriptSize(applied), m.params.MinFeeReferenceScripts)))
	return ceilToUint(fee), evals, applied, nil
}

// withBudgets returns a copy of s where every redeemer without a fixed
// budget carries its evaluated budget. With no evaluations the budgets are
// zero.
func withBudgets(s *Staging, evals []backend.Evaluation) (*Staging, error) {
	out := s.Clone()
	keyed, err := out.KeyedRedeemers()
	if err != nil {
		return nil, err
	}
	if evals == nil {
		for p, r := range out.Redeemers {
			if r.Budget == nil {
				r.Budget = &primitives.ExUnits{}
				out.Redeemers[p] = r
			}
		}
		return out, nil
	}
	budgets := make(map[common.RedeemerKey]primitives.ExUnits, len(evals))
	for _, e := range evals {
		budgets[common.RedeemerKey{Tag: e.Validator.Purpose, Index: e.Validator.Index}] = e.Budget.ExUnits()
	}
	for key, p := range keyed {
		r := out.Redeemers[p]
		if r.Budget != nil {
			continue
		}
		units, ok := budgets[key]
		if !ok {
			return nil, &EvaluatorError{Err: fmt.Errorf("no evaluation for redeemer %s", p)}
		}
		r.Budget = &units
		out.Redeemers[p] = r
	}
	return out, nil
}

// witnessCount estimates how many vkey witnesses the final transaction
// carries.
func (m *feeModel) witnessCount(s *Staging) int {
	if m.signatureOverride != nil {
		return int(*m.signatureOverride)
	}
	keys := make(map[common.Blake2b224]struct{})
	addKey := func(c primitives.Credential) {
		if !c.IsScript() {
			keys[c.Hash] = struct{}{}
		}
	}
	for _, in := range slices.Concat(s.Inputs, s.CollateralInputs) {
		out, ok := m.resolved[in]
		if !ok {
			continue
		}
		if cred, ok := primitives.PaymentCredential(out.Address); ok {
			addKey(cred)
		}
	}
	for _, c := range s.Certificates {
		if c.RequiresWitness() {
			addKey(c.StakeCredential())
		}
	}
	for account := range s.Withdrawals {
		addKey(account.Credential())
	}
	for _, signer := range s.Signers {
		keys[signer] = struct{}{}
	}
	return max(len(keys), 1)
}

// dummyWitnesses returns n placeholder witnesses with distinct keys and the
// exact sizes of real ones.
func dummyWitnesses(n int) []common.VkeyWitness {
	witnesses := make([]common.VkeyWitness, n)
	for i := range witnesses {
		vkey := make([]byte, 32)
		binary.BigEndian.PutUint32(vkey[28:], uint32(i))
		witnesses[i] = common.VkeyWitness{
			Vkey:      vkey,
			Signature: make([]byte, 64),
		}
	}
	return witnesses
}

// referenceScriptSize sums the scripts carried by outputs, the collateral
// return and the outputs behind spent and reference inputs.
func (m *feeModel) referenceScriptSize(s *Staging) uint64 {
	var size uint64
	for _, o := range s.Outputs {
		size += uint64(o.ScriptSize())
	}
	if s.CollateralOutput != nil {
		size += uint64(s.CollateralOutput.ScriptSize())
	}
	for _, in := range slices.Concat(s.Inputs, s.ReferenceInputs) {
		if out, ok := m.resolved[in]; ok {
			size += uint64(out.ScriptSize())
		}
	}
	return size
}

// ReferenceScriptFee prices size bytes of reference scripts. Every whole
// range of bytes costs range * base * mult^i rounded down, with i the range
// number, and the remainder is priced at the next tier.
func ReferenceScriptFee(size uint64, p backend.ReferenceScriptFee) uint64 {
	if size == 0 || p.Range == 0 || p.Base == nil {
		return 0
	}
	mult := p.Multiplier
	if mult == nil {
		mult = big.NewRat(1, 1)
	}
	price := new(big.Rat).Set(p.Base)
	tier := ratFromUint(p.Range)
	total := new(big.Int)
	for remaining := size; remaining > 0; {
		chunk := tier
		if remaining < p.Range {
			chunk = ratFromUint(remaining)
		}
		total.Add(total, floorRat(new(big.Rat).Mul(chunk, price)))
		remaining -= min(remaining, p.Range)
		price.Mul(price, mult)
	}
	if !total.IsUint64() {
		return ^uint64(0)
	}
	return total.Uint64()
}

func executionCost(s *Staging, prices backend.ExecutionPrices) *big.Rat {
	total := new(big.Rat)
	for _, r := range s.Redeemers {
		if r.Budget == nil {
			continue
		}
		if prices.Cpu != nil {
			total.Add(total, new(big.Rat).Mul(ratFromUint(r.Budget.Steps), prices.Cpu))
		}
		if prices.Memory != nil {
			total.Add(total, new(big.Rat).Mul(ratFromUint(r.Budget.Mem), prices.Memory))
		}
	}
	return total
}

func ratFromUint(v uint64) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).SetUint64(v))
}

func floorRat(r *big.Rat) *big.Int {
	return new(big.Int).Quo(r.Num(), r.Denom())
}

func ceilToUint(r *big.Rat) uint64 {
	q, m := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsUint64() {
		return ^uint64(0)
	}
	return q.Uint64()
}

package fixed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// DefaultBudget is reported for every redeemer unless overridden.
var DefaultBudget = primitives.ExUnits{Mem: 500_000, Steps: 200_000_000}

// FixedChainContext is a backend with preset parameters and UTxOs.
// Useful for testing without a live chain connection.
type FixedChainContext struct {
	protocolParams backend.ProtocolParameters
	genesisParams  backend.GenesisParameters
	networkId      uint8

	mu        sync.RWMutex
	utxos     map[primitives.Input]primitives.Output
	byAddress map[string][]primitives.Input

	budget      primitives.ExUnits
	evalErr     error
	evaluations atomic.Int64
}

// NewFixedChainContext creates a new FixedChainContext with the given parameters.
func NewFixedChainContext(pp backend.ProtocolParameters, gp backend.GenesisParameters, networkId uint8) *FixedChainContext {
	return &FixedChainContext{
		protocolParams: pp,
		genesisParams:  gp,
		networkId:      networkId,
		utxos:          make(map[primitives.Input]primitives.Output),
		byAddress:      make(map[string][]primitives.Input),
		budget:         DefaultBudget,
	}
}

// PreprodParameters returns a Conway-era preprod parameter snapshot.
func PreprodParameters() backend.ProtocolParameters {
	return backend.ProtocolParameters{
		MinFeeConstant:            155381,
		MinFeeCoefficient:         44,
		MaxTxSize:                 16384,
		MaxValueSize:              5000,
		CollateralPercentage:      150,
		MaxCollateralInputs:       3,
		MinUtxoDepositCoefficient: 4310,
		AdaPerUtxoByte:            4310,
		MinFeeReferenceScripts: backend.ReferenceScriptFee{
			Range:      25600,
			Base:       big.NewRat(15, 1),
			Multiplier: big.NewRat(12, 10),
		},
		ScriptExecutionPrices: backend.ExecutionPrices{
			Cpu:    big.NewRat(721, 10000000),
			Memory: big.NewRat(577, 10000),
		},
		MaxTxExecutionUnits:    primitives.ExUnits{Mem: 14_000_000, Steps: 10_000_000_000},
		CostModels:             map[uint][]int64{0: {100788, 420, 1, 1}, 1: {100788, 420, 1, 1}, 2: {100788, 420, 1, 1}},
		StakeCredentialDeposit: 2_000_000,
		PoolDeposit:            500_000_000,
		ProtocolMajorVersion:   10,
	}
}

// NewEmptyFixedChainContext creates a FixedChainContext with default preprod parameters.
func NewEmptyFixedChainContext() *FixedChainContext {
	gp := backend.GenesisParameters{
		NetworkMagic: 1,
	}
	return NewFixedChainContext(PreprodParameters(), gp, 0)
}

// AddUtxo adds a UTxO to the fixed context.
func (f *FixedChainContext) AddUtxo(utxo primitives.Utxo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.utxos[utxo.Input]; ok {
		f.removeLocked(utxo.Input)
	}
	f.utxos[utxo.Input] = utxo.Output.Clone()
	key := utxo.Output.Address.String()
	f.byAddress[key] = append(f.byAddress[key], utxo.Input)
}

// RemoveUtxo marks a UTxO as spent.
func (f *FixedChainContext) RemoveUtxo(input primitives.Input) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(input)
}

func (f *FixedChainContext) removeLocked(input primitives.Input) {
	out, ok := f.utxos[input]
	if !ok {
		return
	}
	delete(f.utxos, input)
	key := out.Address.String()
	refs := f.byAddress[key]
	for i, ref := range refs {
		if ref == input {
			f.byAddress[key] = append(refs[:i:i], refs[i+1:]...)
			break
		}
	}
}

// SetEvaluationBudget changes the budget reported for every redeemer.
func (f *FixedChainContext) SetEvaluationBudget(units primitives.ExUnits) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budget = units
}

// FailEvaluation makes every later Evaluate call fail with err.
func (f *FixedChainContext) FailEvaluation(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evalErr = err
}

// EvaluationCalls returns how many times Evaluate has been called.
func (f *FixedChainContext) EvaluationCalls() int {
	return int(f.evaluations.Load())
}

func (f *FixedChainContext) ProtocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	if err := ctx.Err(); err != nil {
		return backend.ProtocolParameters{}, err
	}
	return f.protocolParams.Clone(), nil
}

func (f *FixedChainContext) GenesisParams() (backend.GenesisParameters, error) {
	return f.genesisParams, nil
}

func (f *FixedChainContext) NetworkId() uint8 {
	return f.networkId
}

func (f *FixedChainContext) AddressUtxos(ctx context.Context, address common.Address) ([]primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	refs := f.byAddress[address.String()]
	result := make([]primitives.Utxo, 0, len(refs))
	for _, ref := range refs {
		result = append(result, primitives.Utxo{Input: ref, Output: f.utxos[ref].Clone()})
	}
	return primitives.SortUtxos(result), nil
}

func (f *FixedChainContext) Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	result := make([]primitives.Utxo, 0, len(inputs))
	for _, in := range inputs {
		out, ok := f.utxos[in]
		if !ok {
			return nil, fmt.Errorf("utxo %s not found", in)
		}
		result = append(result, primitives.Utxo{Input: in, Output: out.Clone()})
	}
	return result, nil
}

func (f *FixedChainContext) Utxo(ctx context.Context, input primitives.Input) (*primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	out, ok := f.utxos[input]
	if !ok {
		return nil, nil
	}
	return &primitives.Utxo{Input: input, Output: out.Clone()}, nil
}

// Evaluate reports the configured budget for every redeemer in tx.
func (f *FixedChainContext) Evaluate(ctx context.Context, tx []byte) ([]backend.Evaluation, error) {
	f.evaluations.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	budget, evalErr := f.budget, f.evalErr
	f.mu.RUnlock()
	if evalErr != nil {
		return nil, evalErr
	}
	view, err := primitives.DecodeTx(tx)
	if err != nil {
		return nil, err
	}
	result := make([]backend.Evaluation, 0, len(view.Redeemers))
	for _, key := range view.Redeemers {
		result = append(result, backend.NewEvaluation(key.Tag, key.Index, budget.Mem, budget.Steps))
	}
	return result, nil
}

func (f *FixedChainContext) SubmitTx(_ context.Context, _ []byte) (common.Blake2b256, error) {
	return common.Blake2b256{}, errors.New("cannot submit tx with fixed chain context")
}

package backend

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// UtxoLookup reads unspent outputs by owner or by pointer.
type UtxoLookup interface {
	// AddressUtxos returns every unspent output at the address.
	AddressUtxos(ctx context.Context, addr common.Address) ([]primitives.Utxo, error)
	// Utxos resolves pointers in order. A missing pointer is an error.
	Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error)
	// Utxo returns nil when the pointer is unknown or spent.
	Utxo(ctx context.Context, input primitives.Input) (*primitives.Utxo, error)
}

// Evaluator runs the scripts of a transaction and reports their budgets.
type Evaluator interface {
	Evaluate(ctx context.Context, tx []byte) ([]Evaluation, error)
}

// ParamsProvider fetches the current protocol parameters.
type ParamsProvider interface {
	ProtocolParams(ctx context.Context) (ProtocolParameters, error)
}

// Submitter hands a signed transaction to the network.
type Submitter interface {
	SubmitTx(ctx context.Context, tx []byte) (common.Blake2b256, error)
}

// ChainContext is the full set of collaborators a chain backend offers.
type ChainContext interface {
	UtxoLookup
	Evaluator
	ParamsProvider
	Submitter
	NetworkId() uint8
}

// Validator identifies the redeemer an evaluation belongs to.
type Validator struct {
	Purpose common.RedeemerTag
	Index   uint32
}

// Budget is an execution budget as reported by an evaluator.
type Budget struct {
	Cpu    *big.Rat
	Memory *big.Rat
}

type Evaluation struct {
	Validator Validator
	Budget    Budget
}

// NewEvaluation builds an evaluation from integral budgets.
func NewEvaluation(tag common.RedeemerTag, index uint32, mem, steps uint64) Evaluation {
	return Evaluation{
		Validator: Validator{Purpose: tag, Index: index},
		Budget: Budget{
			Cpu:    new(big.Rat).SetInt(new(big.Int).SetUint64(steps)),
			Memory: new(big.Rat).SetInt(new(big.Int).SetUint64(mem)),
		},
	}
}

// ExUnits rounds the budget up to whole units.
func (b Budget) ExUnits() primitives.ExUnits {
	return primitives.ExUnits{Mem: ceilRat(b.Memory), Steps: ceilRat(b.Cpu)}
}

func ceilRat(r *big.Rat) uint64 {
	if r == nil || r.Sign() <= 0 {
		return 0
	}
	q, m := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsUint64() {
		return ^uint64(0)
	}
	return q.Uint64()
}

// GenesisParameters holds Shelley genesis configuration values.
type GenesisParameters struct {
	ActiveSlotsCoefficient float64 `json:"activeSlotsCoeff"`
	UpdateQuorum           int     `json:"updateQuorum"`
	MaxLovelaceSupply      uint64  `json:"maxLovelaceSupply"`
	NetworkMagic           uint32  `json:"networkMagic"`
	NetworkId              string  `json:"networkId"`
	EpochLength            int     `json:"epochLength"`
	SystemStart            string  `json:"systemStart"`
	SlotsPerKesPeriod      int     `json:"slotsPerKESPeriod"`
	SlotLength             float64 `json:"slotLength"`
	MaxKesEvolutions       int     `json:"maxKESEvolutions"`
	SecurityParam          int     `json:"securityParam"`
}

// ReferenceScriptFee holds the tiered reference script surcharge parameters.
type ReferenceScriptFee struct {
	Range      uint64
	Base       *big.Rat
	Multiplier *big.Rat
}

// ExecutionPrices are the lovelace prices of one cpu step and one memory unit.
type ExecutionPrices struct {
	Cpu    *big.Rat
	Memory *big.Rat
}

// ProtocolParameters is the read-only parameter snapshot used for building.
type ProtocolParameters struct {
	MinFeeConstant            uint64
	MinFeeCoefficient         uint64
	MaxTxSize                 uint64
	MaxValueSize              uint64
	CollateralPercentage      uint64
	MaxCollateralInputs       uint64
	MinUtxoDepositConstant    uint64
	MinUtxoDepositCoefficient uint64
	AdaPerUtxoByte            uint64
	MinFeeReferenceScripts    ReferenceScriptFee
	ScriptExecutionPrices     ExecutionPrices
	MaxTxExecutionUnits       primitives.ExUnits
	// CostModels is keyed by language version: 0 for V1, 1 for V2, 2 for V3.
	CostModels             map[uint][]int64
	StakeCredentialDeposit uint64
	PoolDeposit            uint64
	ProtocolMajorVersion   uint
	ProtocolMinorVersion   uint
}

// DepositParams returns the parameters behind the minimum output deposit.
func (p ProtocolParameters) DepositParams() primitives.DepositParams {
	coef := p.MinUtxoDepositCoefficient
	if coef == 0 {
		coef = p.AdaPerUtxoByte
	}
	return primitives.DepositParams{Constant: p.MinUtxoDepositConstant, CoinsPerByte: coef}
}

// Clone returns a deep copy.
func (p ProtocolParameters) Clone() ProtocolParameters {
	out := p
	out.MinFeeReferenceScripts.Base = cloneRat(p.MinFeeReferenceScripts.Base)
	out.MinFeeReferenceScripts.Multiplier = cloneRat(p.MinFeeReferenceScripts.Multiplier)
	out.ScriptExecutionPrices.Cpu = cloneRat(p.ScriptExecutionPrices.Cpu)
	out.ScriptExecutionPrices.Memory = cloneRat(p.ScriptExecutionPrices.Memory)
	if p.CostModels != nil {
		out.CostModels = make(map[uint][]int64, len(p.CostModels))
		for k, v := range p.CostModels {
			out.CostModels[k] = append([]int64(nil), v...)
		}
	}
	return out
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return nil
	}
	return new(big.Rat).Set(r)
}

// ComputeMaxTxFee computes the fee of a maximum size transaction.
func ComputeMaxTxFee(pp ProtocolParameters) uint64 {
	return pp.MaxTxSize*pp.MinFeeCoefficient + pp.MinFeeConstant
}

// AddressAmount represents a unit and quantity from API responses.
type AddressAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// ParseRedeemerTag parses a redeemer purpose string to a RedeemerTag.
func ParseRedeemerTag(s string) (common.RedeemerTag, error) {
	switch strings.ToLower(s) {
	case "spend":
		return common.RedeemerTagSpend, nil
	case "mint":
		return common.RedeemerTagMint, nil
	case "cert", "publish":
		return common.RedeemerTagCert, nil
	case "reward", "withdraw":
		return common.RedeemerTagReward, nil
	default:
		return 0, fmt.Errorf("unsupported redeemer tag %q", s)
	}
}

// ParseFraction parses "n/d" or a decimal string into an exact rational.
func ParseFraction(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	num, den, isFraction := strings.Cut(s, "/")
	if isFraction {
		n, ok := new(big.Rat).SetString(num)
		if !ok {
			return nil, fmt.Errorf("invalid numerator %q", num)
		}
		d, ok := new(big.Rat).SetString(den)
		if !ok {
			return nil, fmt.Errorf("invalid denominator %q", den)
		}
		if d.Sign() == 0 {
			return nil, fmt.Errorf("invalid denominator in fraction %q", s)
		}
		return n.Quo(n, d), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return r, nil
}

// RatFromFloat converts an API float to a rational, going through its
// shortest decimal form so 0.0577 stays 577/10000.
func RatFromFloat(f float64) *big.Rat {
	r, ok := new(big.Rat).SetString(fmt.Sprintf("%v", f))
	if !ok {
		return new(big.Rat).SetFloat64(f)
	}
	return r
}

// LanguageVersion maps cost model names used by the APIs to versions.
func LanguageVersion(name string) (uint, bool) {
	switch strings.ToLower(strings.ReplaceAll(name, ":", "")) {
	case "plutusv1":
		return 0, true
	case "plutusv2":
		return 1, true
	case "plutusv3":
		return 2, true
	default:
		return 0, false
	}
}

// IndexerError wraps a failure reported by a UTxO lookup.
type IndexerError struct {
	Err error
}

func (e *IndexerError) Error() string {
	return "utxo lookup failed: " + e.Err.Error()
}

func (e *IndexerError) Unwrap() error {
	return e.Err
}

// EvaluatorError wraps a failure reported by a script evaluator.
type EvaluatorError struct {
	Err error
}

func (e *EvaluatorError) Error() string {
	return "script evaluation failed: " + e.Err.Error()
}

func (e *EvaluatorError) Unwrap() error {
	return e.Err
}

package ogmios

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/SundaeSwap-finance/kugo"
	ogmigo "github.com/SundaeSwap-finance/ogmigo/v6"
	"github.com/SundaeSwap-finance/ogmigo/v6/ouroboros/chainsync"
	"github.com/SundaeSwap-finance/ogmigo/v6/ouroboros/shared"
	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/internal/log"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// OgmiosChainContext implements backend.ChainContext using Ogmios for
// parameters, evaluation and submission, and Kupo for address lookups.
type OgmiosChainContext struct {
	ogmios    *ogmigo.Client
	kupo      *kugo.Client
	networkId uint8
}

// NewOgmiosChainContext creates a new Ogmios chain context. The Kupo client
// may be nil, in which case address lookups fail.
func NewOgmiosChainContext(ogmiosClient *ogmigo.Client, kupoClient *kugo.Client, networkId uint8) *OgmiosChainContext {
	return &OgmiosChainContext{
		ogmios:    ogmiosClient,
		kupo:      kupoClient,
		networkId: networkId,
	}
}

// Dial connects to the given Ogmios and Kupo endpoints.
func Dial(ogmiosURL, kupoURL string, networkId uint8) *OgmiosChainContext {
	var kupo *kugo.Client
	if kupoURL != "" {
		kupo = kugo.New(kugo.WithEndpoint(kupoURL))
	}
	return NewOgmiosChainContext(ogmigo.New(ogmigo.WithEndpoint(ogmiosURL)), kupo, networkId)
}

func (o *OgmiosChainContext) ProtocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	raw, err := o.ogmios.CurrentProtocolParameters(ctx)
	if err != nil {
		return backend.ProtocolParameters{}, err
	}
	return parseProtocolParams(raw)
}

func parseProtocolParams(raw []byte) (backend.ProtocolParameters, error) {
	var params ogmiosProtocolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return backend.ProtocolParameters{}, fmt.Errorf("failed to parse protocol params: %w", err)
	}
	return params.toProtocolParams()
}

func (o *OgmiosChainContext) GenesisParams(ctx context.Context) (backend.GenesisParameters, error) {
	raw, err := o.ogmios.GenesisConfig(ctx, "shelley")
	if err != nil {
		return backend.GenesisParameters{}, err
	}
	var genesis ogmiosGenesisConfig
	if err := json.Unmarshal(raw, &genesis); err != nil {
		return backend.GenesisParameters{}, err
	}
	return genesis.toGenesisParams(), nil
}

func (o *OgmiosChainContext) NetworkId() uint8 {
	return o.networkId
}

func (o *OgmiosChainContext) Tip(ctx context.Context) (uint64, error) {
	point, err := o.ogmios.ChainTip(ctx)
	if err != nil {
		return 0, err
	}
	ps, ok := point.PointStruct()
	if !ok || ps == nil {
		return 0, errors.New("chain tip is origin")
	}
	return ps.Slot, nil
}

func (o *OgmiosChainContext) AddressUtxos(ctx context.Context, address common.Address) ([]primitives.Utxo, error) {
	if o.kupo == nil {
		return nil, errors.New("kupo client required for UTxO lookup")
	}
	matches, err := o.kupo.Matches(ctx, kugo.OnlyUnspent(), kugo.Address(address.String()))
	if err != nil {
		return nil, err
	}
	utxos := make([]primitives.Utxo, 0, len(matches))
	for _, match := range matches {
		utxo, err := matchToUtxo(match, address)
		if err != nil {
			return nil, fmt.Errorf("failed to parse UTxO match: %w", err)
		}
		utxos = append(utxos, utxo)
	}
	log.Backend.Debug().
		Str("address", address.String()).
		Int("utxos", len(utxos)).
		Msg("kupo matches")
	return primitives.SortUtxos(utxos), nil
}

func (o *OgmiosChainContext) Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error) {
	result := make([]primitives.Utxo, 0, len(inputs))
	for _, in := range inputs {
		utxo, err := o.Utxo(ctx, in)
		if err != nil {
			return nil, err
		}
		if utxo == nil {
			return nil, fmt.Errorf("utxo %s not found", in)
		}
		result = append(result, *utxo)
	}
	return result, nil
}

func (o *OgmiosChainContext) Utxo(ctx context.Context, input primitives.Input) (*primitives.Utxo, error) {
	query := chainsync.TxInQuery{
		Transaction: shared.UtxoTxID{ID: hex.EncodeToString(input.TxHash.Bytes())},
		Index:       input.Index,
	}
	utxos, err := o.ogmios.UtxosByTxIn(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return nil, nil
	}
	result, err := ogmiosUtxoToPrimitive(utxos[0])
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (o *OgmiosChainContext) SubmitTx(ctx context.Context, tx []byte) (common.Blake2b256, error) {
	resp, err := o.ogmios.SubmitTx(ctx, hex.EncodeToString(tx))
	if err != nil {
		return common.Blake2b256{}, err
	}
	if resp.Error != nil {
		return common.Blake2b256{}, fmt.Errorf("submit tx error: %s", resp.Error.Message)
	}
	return primitives.Hash256FromHex(resp.ID)
}

func (o *OgmiosChainContext) Evaluate(ctx context.Context, tx []byte) ([]backend.Evaluation, error) {
	resp, err := o.ogmios.EvaluateTx(ctx, hex.EncodeToString(tx))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("evaluate tx error: %s", resp.Error.Message)
	}

	result := make([]backend.Evaluation, 0, len(resp.ExUnits))
	for _, eu := range resp.ExUnits {
		tag, err := backend.ParseRedeemerTag(eu.Validator.Purpose)
		if err != nil {
			return nil, fmt.Errorf("invalid redeemer purpose %q: %w", eu.Validator.Purpose, err)
		}
		if eu.Validator.Index > math.MaxUint32 {
			return nil, fmt.Errorf("redeemer index %d exceeds uint32 range", eu.Validator.Index)
		}
		result = append(result, backend.NewEvaluation(tag, uint32(eu.Validator.Index), eu.Budget.Memory, eu.Budget.Cpu))
	}
	return result, nil
}

// ScriptCbor fetches a script by hash from Kupo.
func (o *OgmiosChainContext) ScriptCbor(ctx context.Context, scriptHash common.Blake2b224) ([]byte, error) {
	if o.kupo == nil {
		return nil, errors.New("kupo client required for script lookup")
	}
	script, err := o.kupo.Script(ctx, hex.EncodeToString(scriptHash.Bytes()))
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(script.Script)
}

// --- Ogmios response types and conversion ---

type ogmiosProtocolParams struct {
	MinFeeCoefficient uint64          `json:"minFeeCoefficient"`
	MinFeeConstant    ogmiosLovelace  `json:"minFeeConstant"`
	MaxTxSize         ogmiosBytes     `json:"maxTransactionSize"`
	MaxValSize        ogmiosBytes     `json:"maxValueSize"`
	StakeKeyDeposit   ogmiosLovelace  `json:"stakeCredentialDeposit"`
	PoolDeposit       ogmiosLovelace  `json:"stakePoolDeposit"`
	CollateralPercent uint64          `json:"collateralPercentage"`
	MaxCollateral     uint64          `json:"maxCollateralInputs"`
	ScriptPrices      ogmiosPrices    `json:"scriptExecutionPrices"`
	MaxTxExUnits      ogmiosExUnits   `json:"maxExecutionUnitsPerTransaction"`
	MinUtxoDeposit    uint64          `json:"minUtxoDepositCoefficient"`
	MinUtxoConstant   ogmiosLovelace  `json:"minUtxoDepositConstant"`
	RefScriptFee      ogmiosRefFee    `json:"minFeeReferenceScripts"`
	CostModels        json.RawMessage `json:"plutusCostModels"`
	Version           ogmiosVersion   `json:"version"`
}

// ogmiosLovelace is Ogmios v6's {"ada": {"lovelace": n}}.
type ogmiosLovelace struct {
	Ada struct {
		Lovelace uint64 `json:"lovelace"`
	} `json:"ada"`
}

func (l ogmiosLovelace) Lovelace() uint64 {
	return l.Ada.Lovelace
}

type ogmiosBytes struct {
	Bytes uint64 `json:"bytes"`
}

type ogmiosPrices struct {
	Memory string `json:"memory"`
	CPU    string `json:"cpu"`
}

type ogmiosExUnits struct {
	Memory uint64 `json:"memory"`
	CPU    uint64 `json:"cpu"`
}

type ogmiosRefFee struct {
	Range      uint64  `json:"range"`
	Base       float64 `json:"base"`
	Multiplier float64 `json:"multiplier"`
}

type ogmiosVersion struct {
	Major uint `json:"major"`
	Minor uint `json:"minor"`
}

func (p *ogmiosProtocolParams) toProtocolParams() (backend.ProtocolParameters, error) {
	priceMem, err := backend.ParseFraction(p.ScriptPrices.Memory)
	if err != nil {
		return backend.ProtocolParameters{}, fmt.Errorf("invalid memory price: %w", err)
	}
	priceStep, err := backend.ParseFraction(p.ScriptPrices.CPU)
	if err != nil {
		return backend.ProtocolParameters{}, fmt.Errorf("invalid CPU price: %w", err)
	}

	pp := backend.ProtocolParameters{
		MinFeeConstant:            p.MinFeeConstant.Lovelace(),
		MinFeeCoefficient:         p.MinFeeCoefficient,
		MaxTxSize:                 p.MaxTxSize.Bytes,
		MaxValueSize:              p.MaxValSize.Bytes,
		CollateralPercentage:      p.CollateralPercent,
		MaxCollateralInputs:       p.MaxCollateral,
		MinUtxoDepositConstant:    p.MinUtxoConstant.Lovelace(),
		MinUtxoDepositCoefficient: p.MinUtxoDeposit,
		AdaPerUtxoByte:            p.MinUtxoDeposit,
		ScriptExecutionPrices: backend.ExecutionPrices{
			Cpu:    priceStep,
			Memory: priceMem,
		},
		MaxTxExecutionUnits:    primitives.ExUnits{Mem: p.MaxTxExUnits.Memory, Steps: p.MaxTxExUnits.CPU},
		StakeCredentialDeposit: p.StakeKeyDeposit.Lovelace(),
		PoolDeposit:            p.PoolDeposit.Lovelace(),
		ProtocolMajorVersion:   p.Version.Major,
		ProtocolMinorVersion:   p.Version.Minor,
	}
	if p.RefScriptFee.Range > 0 {
		pp.MinFeeReferenceScripts = backend.ReferenceScriptFee{
			Range:      p.RefScriptFee.Range,
			Base:       backend.RatFromFloat(p.RefScriptFee.Base),
			Multiplier: backend.RatFromFloat(p.RefScriptFee.Multiplier),
		}
	}

	// Ogmios keys cost models as "plutus:v1", "plutus:v2", "plutus:v3".
	if len(p.CostModels) > 0 {
		var rawModels map[string][]int64
		if err := json.Unmarshal(p.CostModels, &rawModels); err != nil {
			return backend.ProtocolParameters{}, fmt.Errorf("failed to parse cost models: %w", err)
		}
		pp.CostModels = make(map[uint][]int64, len(rawModels))
		for key, costs := range rawModels {
			version, ok := backend.LanguageVersion(key)
			if !ok {
				continue
			}
			pp.CostModels[version] = costs
		}
	}

	return pp, nil
}

type ogmiosGenesisConfig struct {
	NetworkMagic      uint32           `json:"networkMagic"`
	Network           string           `json:"network"`
	EpochLength       int              `json:"epochLength"`
	SlotLength        ogmiosSlotLength `json:"slotLength"`
	SlotsPerKesPeriod int              `json:"slotsPerKesPeriod"`
	MaxKesEvolutions  int              `json:"maxKesEvolutions"`
	SecurityParam     int              `json:"securityParameter"`
	UpdateQuorum      int              `json:"updateQuorum"`
	ActiveSlots       string           `json:"activeSlotsCoefficient"`
	MaxLovelaceSupply uint64           `json:"maxLovelaceSupply"`
	StartTime         string           `json:"startTime"`
}

type ogmiosSlotLength struct {
	Milliseconds float64 `json:"milliseconds"`
}

func (g *ogmiosGenesisConfig) toGenesisParams() backend.GenesisParameters {
	var active float64
	if r, err := backend.ParseFraction(g.ActiveSlots); err == nil {
		active, _ = r.Float64()
	}
	return backend.GenesisParameters{
		ActiveSlotsCoefficient: active,
		UpdateQuorum:           g.UpdateQuorum,
		NetworkMagic:           g.NetworkMagic,
		NetworkId:              g.Network,
		EpochLength:            g.EpochLength,
		SystemStart:            g.StartTime,
		MaxLovelaceSupply:      g.MaxLovelaceSupply,
		SlotLength:             g.SlotLength.Milliseconds / 1000,
		SlotsPerKesPeriod:      g.SlotsPerKesPeriod,
		MaxKesEvolutions:       g.MaxKesEvolutions,
		SecurityParam:          g.SecurityParam,
	}
}

func matchToUtxo(match kugo.Match, address common.Address) (primitives.Utxo, error) {
	txId, err := primitives.Hash256FromHex(match.TransactionID)
	if err != nil {
		return primitives.Utxo{}, err
	}
	if match.OutputIndex < 0 || match.OutputIndex > math.MaxUint32 {
		return primitives.Utxo{}, fmt.Errorf("output index %d out of range", match.OutputIndex)
	}
	out, err := sharedValueToOutput(shared.Value(match.Value), address)
	if err != nil {
		return primitives.Utxo{}, err
	}

	if match.DatumHash != "" {
		h, err := primitives.Hash256FromHex(match.DatumHash)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("failed to parse datum hash: %w", err)
		}
		out.Datum = primitives.HashedDatum(h)
	}

	if match.Script.Script != "" {
		script, err := kupoScript(match.Script)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("failed to parse script ref: %w", err)
		}
		out.Script = &script
	}

	return primitives.Utxo{
		Input:  primitives.NewInput(txId, uint32(match.OutputIndex)),
		Output: out,
	}, nil
}

func ogmiosUtxoToPrimitive(raw shared.Utxo) (primitives.Utxo, error) {
	txId, err := primitives.Hash256FromHex(raw.Transaction.ID)
	if err != nil {
		return primitives.Utxo{}, err
	}
	addr, err := common.NewAddress(raw.Address)
	if err != nil {
		return primitives.Utxo{}, err
	}
	out, err := sharedValueToOutput(raw.Value, addr)
	if err != nil {
		return primitives.Utxo{}, err
	}

	// Ogmios sends inline datums as CBOR hex and hashed datums as their hash.
	if raw.Datum != "" {
		datum, err := hex.DecodeString(raw.Datum)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("invalid inline datum hex: %w", err)
		}
		out.Datum = primitives.InlineDatum(datum)
	} else if raw.DatumHash != "" {
		h, err := primitives.Hash256FromHex(raw.DatumHash)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("failed to parse datum hash: %w", err)
		}
		out.Datum = primitives.HashedDatum(h)
	}

	if len(raw.Script) > 0 && string(raw.Script) != "null" {
		script, err := ogmiosScript(raw.Script)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("failed to parse script ref: %w", err)
		}
		out.Script = script
	}

	return primitives.Utxo{
		Input:  primitives.NewInput(txId, raw.Index),
		Output: out,
	}, nil
}

func sharedValueToOutput(value shared.Value, addr common.Address) (primitives.Output, error) {
	out := primitives.NewOutput(addr, value.AdaLovelace().Uint64())
	assets := primitives.Assets{}
	for policyIdStr, names := range value {
		if policyIdStr == "ada" {
			continue
		}
		policy, err := primitives.Hash224FromHex(policyIdStr)
		if err != nil {
			return primitives.Output{}, fmt.Errorf("invalid policy ID %q: %w", policyIdStr, err)
		}
		for assetName, qty := range names {
			nameBytes, err := hex.DecodeString(assetName)
			if err != nil {
				return primitives.Output{}, fmt.Errorf("invalid asset name hex %q: %w", assetName, err)
			}
			id, err := primitives.NewAssetId(policy, nameBytes)
			if err != nil {
				return primitives.Output{}, err
			}
			n := qty.BigInt()
			if !n.IsUint64() {
				return primitives.Output{}, fmt.Errorf("asset %s quantity %s out of range", id, n)
			}
			assets[id] = n.Uint64()
		}
	}
	if !assets.IsEmpty() {
		out = out.WithAssets(assets)
	}
	return out, nil
}

func kupoScript(script kugo.Script) (primitives.Script, error) {
	b, err := hex.DecodeString(script.Script)
	if err != nil {
		return primitives.Script{}, fmt.Errorf("invalid script hex %q: %w", script.Script, err)
	}
	var kind primitives.ScriptKind
	switch script.Language {
	case kugo.ScriptLanguageNative:
		kind = primitives.ScriptNative
	case kugo.ScriptLanguagePlutusV1:
		kind = primitives.ScriptPlutusV1
	case kugo.ScriptLanguagePlutusV2:
		kind = primitives.ScriptPlutusV2
	case kugo.ScriptLanguagePlutusV3:
		kind = primitives.ScriptPlutusV3
	default:
		return primitives.Script{}, fmt.Errorf("unsupported kupo script language: %d", script.Language)
	}
	return primitives.NewScript(kind, b), nil
}

// ogmiosScript parses {"language": "...", "cbor": "hex"}. Native scripts sent
// only in JSON form yield nil.
func ogmiosScript(scriptJSON json.RawMessage) (*primitives.Script, error) {
	var raw struct {
		Language string `json:"language"`
		Cbor     string `json:"cbor"`
	}
	if err := json.Unmarshal(scriptJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse script JSON: %w", err)
	}
	if raw.Cbor == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(raw.Cbor)
	if err != nil {
		return nil, fmt.Errorf("invalid script CBOR hex %q: %w", raw.Cbor, err)
	}
	kind, err := primitives.ParseScriptKind(raw.Language)
	if err != nil {
		return nil, err
	}
	if kind == primitives.ScriptNative {
		var ns common.NativeScript
		if _, err := cbor.Decode(b, &ns); err != nil {
			return nil, fmt.Errorf("failed to decode native script: %w", err)
		}
	}
	script := primitives.NewScript(kind, b)
	return &script, nil
}

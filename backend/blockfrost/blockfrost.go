package blockfrost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/constants"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

const (
	maxPages     = 1000
	maxBodyBytes = 10 * 1024 * 1024

	// Conway fixes the reference script tiering; Blockfrost only reports the
	// per-byte base.
	refScriptRange = 25_600
)

// ErrNotFound is returned for a 404 from the API.
var ErrNotFound = errors.New("blockfrost: not found")

// BlockFrostChainContext implements backend.ChainContext using the BlockFrost API.
type BlockFrostChainContext struct {
	baseUrl   string
	projectId string
	networkId uint8
	client    *http.Client
}

// NewBlockFrostChainContext creates a new BlockFrost backend.
func NewBlockFrostChainContext(baseUrl string, networkId uint8, projectId string) *BlockFrostChainContext {
	baseUrl = strings.TrimRight(baseUrl, "/")
	switch {
	case strings.HasSuffix(baseUrl, "/v0"):
	case strings.HasSuffix(baseUrl, "/api"):
		baseUrl += "/v0"
	default:
		baseUrl += "/api/v0"
	}
	return &BlockFrostChainContext{
		baseUrl:   baseUrl,
		projectId: projectId,
		networkId: networkId,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewBlockFrostChainContextForNetwork targets the hosted endpoint of n.
func NewBlockFrostChainContextForNetwork(n constants.Network, projectId string) *BlockFrostChainContext {
	return NewBlockFrostChainContext(n.BlockfrostBaseUrl(), n.NetworkId(), projectId)
}

func (b *BlockFrostChainContext) request(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseUrl+path, body)
	if err != nil {
		return nil, err
	}
	if b.projectId != "" {
		req.Header.Set("project_id", b.projectId)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("blockfrost API error %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func (b *BlockFrostChainContext) getJSON(ctx context.Context, path string, v any) error {
	data, err := b.request(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (b *BlockFrostChainContext) ProtocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	var raw bfProtocolParams
	if err := b.getJSON(ctx, "/epochs/latest/parameters", &raw); err != nil {
		return backend.ProtocolParameters{}, err
	}
	return raw.toProtocolParams()
}

func (b *BlockFrostChainContext) GenesisParams(ctx context.Context) (backend.GenesisParameters, error) {
	var raw bfGenesisParams
	if err := b.getJSON(ctx, "/genesis", &raw); err != nil {
		return backend.GenesisParameters{}, err
	}
	return backend.GenesisParameters{
		ActiveSlotsCoefficient: raw.ActiveSlotsCoefficient,
		UpdateQuorum:           raw.UpdateQuorum,
		NetworkMagic:           raw.NetworkMagic,
		EpochLength:            raw.EpochLength,
		MaxLovelaceSupply:      raw.MaxLovelaceSupply,
		SlotLength:             raw.SlotLength,
		SlotsPerKesPeriod:      raw.SlotsPerKesPeriod,
		MaxKesEvolutions:       raw.MaxKesEvolutions,
		SecurityParam:          raw.SecurityParam,
	}, nil
}

func (b *BlockFrostChainContext) NetworkId() uint8 {
	return b.networkId
}

func (b *BlockFrostChainContext) Tip(ctx context.Context) (uint64, error) {
	var result struct {
		Slot uint64 `json:"slot"`
	}
	if err := b.getJSON(ctx, "/blocks/latest", &result); err != nil {
		return 0, err
	}
	return result.Slot, nil
}

func (b *BlockFrostChainContext) AddressUtxos(ctx context.Context, address common.Address) ([]primitives.Utxo, error) {
	var allUtxos []primitives.Utxo
	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/addresses/%s/utxos?page=%d", address.String(), page)
		var rawUtxos []bfAddressUTxO
		if err := b.getJSON(ctx, path, &rawUtxos); err != nil {
			// Unused addresses are reported as missing.
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if len(rawUtxos) == 0 {
			return primitives.SortUtxos(allUtxos), nil
		}
		for _, raw := range rawUtxos {
			utxo, err := b.toUtxo(ctx, raw, address)
			if err != nil {
				return nil, fmt.Errorf("failed to parse UTxO %s#%d: %w", raw.TxHash, raw.OutputIndex, err)
			}
			allUtxos = append(allUtxos, utxo)
		}
	}
	return nil, fmt.Errorf("UTxO pagination exceeded %d pages; results may be incomplete", maxPages)
}

func (b *BlockFrostChainContext) Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error) {
	result := make([]primitives.Utxo, 0, len(inputs))
	for _, in := range inputs {
		utxo, err := b.Utxo(ctx, in)
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

// Utxo looks the output up in its transaction. Spent outputs are reported as
// absent.
func (b *BlockFrostChainContext) Utxo(ctx context.Context, input primitives.Input) (*primitives.Utxo, error) {
	var txUtxos struct {
		Outputs []bfAddressUTxO `json:"outputs"`
	}
	path := fmt.Sprintf("/txs/%s/utxos", hex.EncodeToString(input.TxHash.Bytes()))
	if err := b.getJSON(ctx, path, &txUtxos); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	for _, raw := range txUtxos.Outputs {
		if raw.OutputIndex < 0 || uint32(raw.OutputIndex) != input.Index {
			continue
		}
		if raw.ConsumedBy != "" {
			return nil, nil
		}
		raw.TxHash = hex.EncodeToString(input.TxHash.Bytes())
		addr, err := common.NewAddress(raw.Address)
		if err != nil {
			return nil, err
		}
		utxo, err := b.toUtxo(ctx, raw, addr)
		if err != nil {
			return nil, err
		}
		return &utxo, nil
	}
	return nil, nil
}

func (b *BlockFrostChainContext) SubmitTx(ctx context.Context, tx []byte) (common.Blake2b256, error) {
	data, err := b.request(ctx, http.MethodPost, "/tx/submit", bytes.NewReader(tx), "application/cbor")
	if err != nil {
		return common.Blake2b256{}, err
	}
	var txHash string
	if err := json.Unmarshal(data, &txHash); err != nil {
		return common.Blake2b256{}, err
	}
	return primitives.Hash256FromHex(txHash)
}

func (b *BlockFrostChainContext) Evaluate(ctx context.Context, tx []byte) ([]backend.Evaluation, error) {
	data, err := b.request(ctx, http.MethodPost, "/utils/txs/evaluate", bytes.NewReader(tx), "application/cbor")
	if err != nil {
		return nil, err
	}
	return parseEvaluation(data)
}

func parseEvaluation(data []byte) ([]backend.Evaluation, error) {
	var evalResult bfEvalResult
	if err := json.Unmarshal(data, &evalResult); err != nil {
		return nil, err
	}
	if len(evalResult.Result.EvaluationFailure) > 0 && string(evalResult.Result.EvaluationFailure) != "null" {
		return nil, fmt.Errorf("script evaluation failed: %s", string(evalResult.Result.EvaluationFailure))
	}

	keys := make([]string, 0, len(evalResult.Result.EvaluationResult))
	for key := range evalResult.Result.EvaluationResult {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]backend.Evaluation, 0, len(keys))
	for _, key := range keys {
		budget := evalResult.Result.EvaluationResult[key]
		tagStr, idxStr, ok := strings.Cut(key, ":")
		if !ok {
			return nil, fmt.Errorf("malformed redeemer key %q: expected format 'tag:index'", key)
		}
		tag, err := backend.ParseRedeemerTag(tagStr)
		if err != nil {
			return nil, fmt.Errorf("invalid redeemer tag in key %q: %w", key, err)
		}
		idx, err := strconv.ParseUint(idxStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid redeemer index %q in key %q: %w", idxStr, key, err)
		}
		result = append(result, backend.NewEvaluation(tag, uint32(idx), budget.Memory, budget.Steps))
	}
	return result, nil
}

// ScriptCbor fetches the CBOR of a script by hash.
func (b *BlockFrostChainContext) ScriptCbor(ctx context.Context, scriptHash common.Blake2b224) ([]byte, error) {
	var result struct {
		Cbor string `json:"cbor"`
	}
	if err := b.getJSON(ctx, fmt.Sprintf("/scripts/%s/cbor", hex.EncodeToString(scriptHash.Bytes())), &result); err != nil {
		return nil, err
	}
	scriptCbor, err := hex.DecodeString(result.Cbor)
	if err != nil {
		return nil, fmt.Errorf("invalid script CBOR hex: %w", err)
	}
	return scriptCbor, nil
}

func (b *BlockFrostChainContext) referenceScript(ctx context.Context, hashHex string) (*primitives.Script, error) {
	var info struct {
		Type string `json:"type"`
	}
	if err := b.getJSON(ctx, "/scripts/"+hashHex, &info); err != nil {
		return nil, err
	}
	kind, err := scriptKind(info.Type)
	if err != nil {
		return nil, err
	}
	hash, err := primitives.Hash224FromHex(hashHex)
	if err != nil {
		return nil, err
	}
	raw, err := b.ScriptCbor(ctx, hash)
	if err != nil {
		return nil, err
	}
	script := primitives.NewScript(kind, raw)
	return &script, nil
}

func scriptKind(bfType string) (primitives.ScriptKind, error) {
	switch bfType {
	case "timelock":
		return primitives.ScriptNative, nil
	case "plutusV1":
		return primitives.ScriptPlutusV1, nil
	case "plutusV2":
		return primitives.ScriptPlutusV2, nil
	case "plutusV3":
		return primitives.ScriptPlutusV3, nil
	default:
		return 0, fmt.Errorf("unknown script type %q", bfType)
	}
}

// --- BlockFrost response types ---

type bfProtocolParams struct {
	MinFeeA           uint64          `json:"min_fee_a"`
	MinFeeB           uint64          `json:"min_fee_b"`
	MaxTxSize         uint64          `json:"max_tx_size"`
	KeyDeposit        string          `json:"key_deposit"`
	PoolDeposit       string          `json:"pool_deposit"`
	PriceMem          json.Number     `json:"price_mem"`
	PriceStep         json.Number     `json:"price_step"`
	MaxTxExMem        string          `json:"max_tx_ex_mem"`
	MaxTxExSteps      string          `json:"max_tx_ex_steps"`
	MaxValSize        string          `json:"max_val_size"`
	CollateralPercent uint64          `json:"collateral_percent"`
	MaxCollateralIn   uint64          `json:"max_collateral_inputs"`
	CoinsPerUtxoSize  string          `json:"coins_per_utxo_size"`
	RefScriptCost     *json.Number    `json:"min_fee_ref_script_cost_per_byte"`
	ProtocolMajor     uint            `json:"protocol_major_ver"`
	ProtocolMinor     uint            `json:"protocol_minor_ver"`
	CostModels        json.RawMessage `json:"cost_models"`
}

func parseUintField(name, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func (p *bfProtocolParams) toProtocolParams() (backend.ProtocolParameters, error) {
	pp := backend.ProtocolParameters{
		MinFeeConstant:       p.MinFeeB,
		MinFeeCoefficient:    p.MinFeeA,
		MaxTxSize:            p.MaxTxSize,
		CollateralPercentage: p.CollateralPercent,
		MaxCollateralInputs:  p.MaxCollateralIn,
		ProtocolMajorVersion: p.ProtocolMajor,
		ProtocolMinorVersion: p.ProtocolMinor,
	}
	fields := []struct {
		name string
		raw  string
		dst  *uint64
	}{
		{"key_deposit", p.KeyDeposit, &pp.StakeCredentialDeposit},
		{"pool_deposit", p.PoolDeposit, &pp.PoolDeposit},
		{"max_tx_ex_mem", p.MaxTxExMem, &pp.MaxTxExecutionUnits.Mem},
		{"max_tx_ex_steps", p.MaxTxExSteps, &pp.MaxTxExecutionUnits.Steps},
		{"max_val_size", p.MaxValSize, &pp.MaxValueSize},
		{"coins_per_utxo_size", p.CoinsPerUtxoSize, &pp.AdaPerUtxoByte},
	}
	for _, f := range fields {
		v, err := parseUintField(f.name, f.raw)
		if err != nil {
			return backend.ProtocolParameters{}, err
		}
		*f.dst = v
	}
	pp.MinUtxoDepositCoefficient = pp.AdaPerUtxoByte

	// Prices arrive as JSON decimals; keep their exact decimal value.
	priceMem, err := backend.ParseFraction(p.PriceMem.String())
	if err != nil {
		return backend.ProtocolParameters{}, fmt.Errorf("invalid price_mem: %w", err)
	}
	priceStep, err := backend.ParseFraction(p.PriceStep.String())
	if err != nil {
		return backend.ProtocolParameters{}, fmt.Errorf("invalid price_step: %w", err)
	}
	pp.ScriptExecutionPrices = backend.ExecutionPrices{Cpu: priceStep, Memory: priceMem}

	if p.RefScriptCost != nil {
		base, err := backend.ParseFraction(p.RefScriptCost.String())
		if err != nil {
			return backend.ProtocolParameters{}, fmt.Errorf("invalid min_fee_ref_script_cost_per_byte: %w", err)
		}
		pp.MinFeeReferenceScripts = backend.ReferenceScriptFee{
			Range:      refScriptRange,
			Base:       base,
			Multiplier: backend.RatFromFloat(1.2),
		}
	}

	costModels, err := parseCostModels(p.CostModels)
	if err != nil {
		return backend.ProtocolParameters{}, err
	}
	pp.CostModels = costModels
	return pp, nil
}

// parseCostModels accepts both the array form {"PlutusV1": [..]} and the
// named form {"PlutusV1": {"param-name": n}}. Named parameters are ordered by
// name.
func parseCostModels(raw json.RawMessage) (map[uint][]int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var models map[string][]int64
	if err := json.Unmarshal(raw, &models); err != nil {
		models = make(map[string][]int64)
		var keyedModels map[string]map[string]int64
		if err := json.Unmarshal(raw, &keyedModels); err != nil {
			return nil, fmt.Errorf("failed to parse cost models: %w", err)
		}
		for lang, costs := range keyedModels {
			names := make([]string, 0, len(costs))
			for k := range costs {
				names = append(names, k)
			}
			sort.Strings(names)
			values := make([]int64, 0, len(costs))
			for _, k := range names {
				values = append(values, costs[k])
			}
			models[lang] = values
		}
	}
	result := make(map[uint][]int64, len(models))
	for lang, costs := range models {
		if version, ok := backend.LanguageVersion(lang); ok {
			result[version] = costs
		}
	}
	return result, nil
}

type bfGenesisParams struct {
	ActiveSlotsCoefficient float64 `json:"active_slots_coefficient"`
	UpdateQuorum           int     `json:"update_quorum"`
	NetworkMagic           uint32  `json:"network_magic"`
	EpochLength            int     `json:"epoch_length"`
	MaxLovelaceSupply      uint64  `json:"max_lovelace_supply,string"`
	SlotLength             float64 `json:"slot_length"`
	SlotsPerKesPeriod      int     `json:"slots_per_kes_period"`
	MaxKesEvolutions       int     `json:"max_kes_evolutions"`
	SecurityParam          int     `json:"security_param"`
}

type bfAddressUTxO struct {
	TxHash              string                  `json:"tx_hash"`
	OutputIndex         int                     `json:"output_index"`
	Address             string                  `json:"address"`
	Amount              []backend.AddressAmount `json:"amount"`
	DataHash            string                  `json:"data_hash"`
	InlineDatum         string                  `json:"inline_datum"`
	ReferenceScriptHash string                  `json:"reference_script_hash"`
	ConsumedBy          string                  `json:"consumed_by_tx"`
}

func (b *BlockFrostChainContext) toUtxo(ctx context.Context, raw bfAddressUTxO, address common.Address) (primitives.Utxo, error) {
	utxo, err := raw.toUtxo(address)
	if err != nil {
		return primitives.Utxo{}, err
	}
	if raw.ReferenceScriptHash != "" {
		script, err := b.referenceScript(ctx, raw.ReferenceScriptHash)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("failed to fetch reference script: %w", err)
		}
		utxo.Output.Script = script
	}
	return utxo, nil
}

// toUtxo converts the amounts and datum; reference scripts need a separate
// request and are resolved by the caller.
func (raw bfAddressUTxO) toUtxo(address common.Address) (primitives.Utxo, error) {
	txId, err := primitives.Hash256FromHex(raw.TxHash)
	if err != nil {
		return primitives.Utxo{}, err
	}
	if raw.OutputIndex < 0 || raw.OutputIndex > math.MaxUint32 {
		return primitives.Utxo{}, fmt.Errorf("output index %d out of range", raw.OutputIndex)
	}

	out := primitives.NewOutput(address, 0)
	assets := primitives.Assets{}
	for _, amt := range raw.Amount {
		qty, err := strconv.ParseUint(amt.Quantity, 10, 64)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("invalid quantity %q for unit %s: %w", amt.Quantity, amt.Unit, err)
		}
		if amt.Unit == "lovelace" {
			out.Lovelace = qty
			continue
		}
		id, err := primitives.ParseUnit(amt.Unit)
		if err != nil {
			return primitives.Utxo{}, err
		}
		assets[id] = qty
	}
	if !assets.IsEmpty() {
		out = out.WithAssets(assets)
	}

	switch {
	case raw.InlineDatum != "":
		datum, err := hex.DecodeString(raw.InlineDatum)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("invalid inline datum hex: %w", err)
		}
		out.Datum = primitives.InlineDatum(datum)
	case raw.DataHash != "":
		h, err := primitives.Hash256FromHex(raw.DataHash)
		if err != nil {
			return primitives.Utxo{}, fmt.Errorf("invalid data hash: %w", err)
		}
		out.Datum = primitives.HashedDatum(h)
	}

	return primitives.Utxo{
		Input:  primitives.NewInput(txId, uint32(raw.OutputIndex)),
		Output: out,
	}, nil
}

type bfEvalResult struct {
	Result struct {
		EvaluationResult map[string]struct {
			Memory uint64 `json:"memory"`
			Steps  uint64 `json:"steps"`
		} `json:"EvaluationResult"`
		EvaluationFailure json.RawMessage `json:"EvaluationFailure"`
	} `json:"result"`
}

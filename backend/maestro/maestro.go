package maestro

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	maestroClient "github.com/maestro-org/go-sdk/client"
	"github.com/maestro-org/go-sdk/models"
	"github.com/maestro-org/go-sdk/utils"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/constants"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

const maxPages = 1000

// MaestroChainContext implements backend.ChainContext using the Maestro API.
type MaestroChainContext struct {
	client    *maestroClient.Client
	networkId uint8
}

// NewMaestroChainContext creates a new Maestro chain context. Network 1 maps
// to mainnet and every other id to preprod.
func NewMaestroChainContext(networkId uint8, projectId string) *MaestroChainContext {
	return NewMaestroChainContextWithNetwork(networkId, projectId, networkString(networkId))
}

// NewMaestroChainContextForNetwork picks the Maestro network by name. The
// legacy testnet is served from preprod.
func NewMaestroChainContextForNetwork(n constants.Network, projectId string) *MaestroChainContext {
	if n == constants.TESTNET {
		n = constants.PREPROD
	}
	return NewMaestroChainContextWithNetwork(n.NetworkId(), projectId, n.String())
}

func networkString(networkId uint8) string {
	if networkId == constants.MainnetNetworkId {
		return constants.MAINNET.String()
	}
	return constants.PREPROD.String()
}

// NewMaestroChainContextWithNetwork takes an explicit Maestro network name,
// for testnets such as "preview" that share network id 0.
func NewMaestroChainContextWithNetwork(networkId uint8, projectId string, network string) *MaestroChainContext {
	return &MaestroChainContext{
		client:    maestroClient.NewClient(projectId, network),
		networkId: networkId,
	}
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func (m *MaestroChainContext) ProtocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	if err := ctx.Err(); err != nil {
		return backend.ProtocolParameters{}, err
	}
	resp, err := m.client.ProtocolParameters()
	if err != nil {
		return backend.ProtocolParameters{}, err
	}

	data := resp.Data
	priceMem, err := backend.ParseFraction(data.ScriptExecutionPrices.Memory)
	if err != nil {
		return backend.ProtocolParameters{}, fmt.Errorf("invalid memory price: %w", err)
	}
	priceStep, err := backend.ParseFraction(data.ScriptExecutionPrices.Steps)
	if err != nil {
		return backend.ProtocolParameters{}, fmt.Errorf("invalid step price: %w", err)
	}

	coinsPerByte := nonNegative(int64(data.MinUtxoDepositCoefficient))
	pp := backend.ProtocolParameters{
		MinFeeCoefficient:         nonNegative(int64(data.MinFeeCoefficient)),
		MinFeeConstant:            nonNegative(int64(data.MinFeeConstant.LovelaceAmount.Lovelace)),
		MaxTxSize:                 nonNegative(int64(data.MaxTransactionSize.Bytes)),
		MaxValueSize:              nonNegative(int64(data.MaxValueSize.Bytes)),
		CollateralPercentage:      nonNegative(int64(data.CollateralPercentage)),
		MaxCollateralInputs:       nonNegative(int64(data.MaxCollateralInputs)),
		MinUtxoDepositCoefficient: coinsPerByte,
		AdaPerUtxoByte:            coinsPerByte,
		ScriptExecutionPrices: backend.ExecutionPrices{
			Cpu:    priceStep,
			Memory: priceMem,
		},
		MaxTxExecutionUnits: primitives.ExUnits{
			Mem:   nonNegative(int64(data.MaxExecutionUnitsPerTransaction.Memory)),
			Steps: nonNegative(int64(data.MaxExecutionUnitsPerTransaction.Steps)),
		},
		StakeCredentialDeposit: nonNegative(int64(data.StakeCredentialDeposit.LovelaceAmount.Lovelace)),
		PoolDeposit:            nonNegative(int64(data.StakePoolDeposit.LovelaceAmount.Lovelace)),
	}

	costModels, err := parseCostModels(data.PlutusCostModels)
	if err != nil {
		return backend.ProtocolParameters{}, err
	}
	pp.CostModels = costModels
	return pp, nil
}

// parseCostModels reads the untyped JSON cost models Maestro returns, keyed
// "plutus:v1" and so on with float64 entries.
func parseCostModels(raw any) (map[uint][]int64, error) {
	rawModels, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}
	result := make(map[uint][]int64, len(rawModels))
	for key, val := range rawModels {
		version, ok := backend.LanguageVersion(key)
		if !ok {
			continue
		}
		costs, ok := val.([]any)
		if !ok {
			continue
		}
		model := make([]int64, 0, len(costs))
		for i, c := range costs {
			f, ok := c.(float64)
			if !ok {
				return nil, fmt.Errorf("cost model %q element %d: expected float64, got %T", key, i, c)
			}
			model = append(model, int64(f))
		}
		result[version] = model
	}
	return result, nil
}

func (m *MaestroChainContext) NetworkId() uint8 {
	return m.networkId
}

func (m *MaestroChainContext) Tip(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp, err := m.client.ChainTip()
	if err != nil {
		return 0, err
	}
	if resp.Data.Slot < 0 {
		return 0, fmt.Errorf("invalid slot value: %d", resp.Data.Slot)
	}
	return uint64(resp.Data.Slot), nil
}

func (m *MaestroChainContext) AddressUtxos(ctx context.Context, address common.Address) ([]primitives.Utxo, error) {
	var allUtxos []primitives.Utxo
	params := utils.NewParameters()
	var lastCursor string

	for range maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := m.client.UtxosAtAddress(address.String(), params)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Data {
			utxo, err := maestroUtxo(raw, address)
			if err != nil {
				return nil, fmt.Errorf("failed to parse UTxO: %w", err)
			}
			allUtxos = append(allUtxos, utxo)
		}
		lastCursor = resp.NextCursor
		if lastCursor == "" {
			break
		}
		params = utils.NewParameters()
		params.Cursor(lastCursor)
	}

	if lastCursor != "" {
		return nil, fmt.Errorf("UTxO pagination exceeded %d pages; results may be incomplete", maxPages)
	}
	return primitives.SortUtxos(allUtxos), nil
}

func (m *MaestroChainContext) Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error) {
	result := make([]primitives.Utxo, 0, len(inputs))
	for _, in := range inputs {
		utxo, err := m.Utxo(ctx, in)
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

func (m *MaestroChainContext) Utxo(ctx context.Context, input primitives.Input) (*primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := m.client.TransactionOutputFromReference(hex.EncodeToString(input.TxHash.Bytes()), int(input.Index), nil)
	if err != nil {
		return nil, err
	}
	if resp.Data.Address == "" {
		return nil, nil
	}
	addr, err := common.NewAddress(resp.Data.Address)
	if err != nil {
		return nil, err
	}
	utxo, err := maestroUtxo(resp.Data, addr)
	if err != nil {
		return nil, err
	}
	return &utxo, nil
}

func (m *MaestroChainContext) SubmitTx(ctx context.Context, tx []byte) (common.Blake2b256, error) {
	if err := ctx.Err(); err != nil {
		return common.Blake2b256{}, err
	}
	resp, err := m.client.SubmitTx(hex.EncodeToString(tx))
	if err != nil {
		return common.Blake2b256{}, err
	}
	return primitives.Hash256FromHex(resp.Data)
}

func (m *MaestroChainContext) Evaluate(ctx context.Context, tx []byte) ([]backend.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	evalResp, err := m.client.EvaluateTx(hex.EncodeToString(tx))
	if err != nil {
		return nil, err
	}

	result := make([]backend.Evaluation, 0, len(evalResp))
	for _, eval := range evalResp {
		if eval.RedeemerIndex < 0 || eval.RedeemerIndex > math.MaxUint32 {
			return nil, fmt.Errorf("redeemer index %d out of range", eval.RedeemerIndex)
		}
		tag, err := backend.ParseRedeemerTag(eval.RedeemerTag)
		if err != nil {
			return nil, fmt.Errorf("invalid redeemer tag %q: %w", eval.RedeemerTag, err)
		}
		result = append(result, backend.NewEvaluation(
			tag,
			uint32(eval.RedeemerIndex),
			nonNegative(int64(eval.ExUnits.Mem)),
			nonNegative(int64(eval.ExUnits.Steps)),
		))
	}
	return result, nil
}

// ScriptCbor fetches a script by hash.
func (m *MaestroChainContext) ScriptCbor(ctx context.Context, scriptHash common.Blake2b224) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := m.client.ScriptByHash(hex.EncodeToString(scriptHash.Bytes()))
	if err != nil {
		return nil, err
	}
	if resp.Data.Bytes == "" {
		return nil, errors.New("no script CBOR available")
	}
	return hex.DecodeString(resp.Data.Bytes)
}

func maestroUtxo(raw models.Utxo, address common.Address) (primitives.Utxo, error) {
	txId, err := primitives.Hash256FromHex(raw.TxHash)
	if err != nil {
		return primitives.Utxo{}, err
	}
	if raw.Index < 0 || uint64(raw.Index) > math.MaxUint32 {
		return primitives.Utxo{}, fmt.Errorf("output index %d out of range", raw.Index)
	}

	out := primitives.NewOutput(address, 0)
	assets := primitives.Assets{}
	for _, asset := range raw.Assets {
		if asset.Amount < 0 {
			return primitives.Utxo{}, fmt.Errorf("negative amount %d for unit %s", asset.Amount, asset.Unit)
		}
		if asset.Unit == "lovelace" {
			out.Lovelace = uint64(asset.Amount)
			continue
		}
		id, err := primitives.ParseUnit(asset.Unit)
		if err != nil {
			return primitives.Utxo{}, err
		}
		assets[id] = uint64(asset.Amount)
	}
	if !assets.IsEmpty() {
		out = out.WithAssets(assets)
	}

	datum, err := maestroDatum(raw.Datum)
	if err != nil {
		return primitives.Utxo{}, err
	}
	out.Datum = datum

	return primitives.Utxo{
		Input:  primitives.NewInput(txId, uint32(raw.Index)),
		Output: out,
	}, nil
}

// maestroDatum reads the untyped {"type", "hash", "bytes", "json"} datum
// object. Inline datums carry their CBOR in "bytes".
func maestroDatum(raw any) (primitives.DatumOption, error) {
	datumMap, ok := raw.(map[string]any)
	if !ok {
		return primitives.NoDatum(), nil
	}
	if cborHex, ok := datumMap["bytes"].(string); ok && cborHex != "" {
		b, err := hex.DecodeString(cborHex)
		if err != nil {
			return primitives.DatumOption{}, fmt.Errorf("invalid inline datum CBOR hex %q: %w", cborHex, err)
		}
		return primitives.InlineDatum(b), nil
	}
	if hashHex, ok := datumMap["hash"].(string); ok && hashHex != "" {
		h, err := primitives.Hash256FromHex(hashHex)
		if err != nil {
			return primitives.DatumOption{}, fmt.Errorf("invalid datum hash: %w", err)
		}
		return primitives.HashedDatum(h), nil
	}
	return primitives.NoDatum(), nil
}

package utxorpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"connectrpc.com/connect"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	cardano "github.com/utxorpc/go-codegen/utxorpc/v1alpha/cardano"
	query "github.com/utxorpc/go-codegen/utxorpc/v1alpha/query"
	submit "github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit"
	syncpb "github.com/utxorpc/go-codegen/utxorpc/v1alpha/sync"
	sdk "github.com/utxorpc/go-sdk"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// UtxoRpcChainContext implements backend.ChainContext using the UTxO RPC protocol.
type UtxoRpcChainContext struct {
	client    *sdk.UtxorpcClient
	networkId uint8
}

// NewUtxoRpcChainContext creates a new UTxO RPC chain context.
func NewUtxoRpcChainContext(baseUrl string, networkId uint8, headers map[string]string) *UtxoRpcChainContext {
	opts := []sdk.ClientOption{
		sdk.WithBaseUrl(baseUrl),
	}
	if len(headers) > 0 {
		opts = append(opts, sdk.WithHeaders(headers))
	}
	client := sdk.NewClient(opts...)
	return &UtxoRpcChainContext{
		client:    client,
		networkId: networkId,
	}
}

func bigIntToUint64(bi *cardano.BigInt) uint64 {
	if bi == nil || bi.GetInt() < 0 {
		return 0
	}
	return uint64(bi.GetInt())
}

func (u *UtxoRpcChainContext) ProtocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	if err := ctx.Err(); err != nil {
		return backend.ProtocolParameters{}, err
	}
	req := connect.NewRequest(&query.ReadParamsRequest{})
	u.client.AddHeadersToRequest(req)
	resp, err := u.client.ReadParams(req)
	if err != nil {
		return backend.ProtocolParameters{}, err
	}

	params := resp.Msg.GetValues().GetCardano()
	if params == nil {
		return backend.ProtocolParameters{}, errors.New("no cardano params in response")
	}
	coinsPerByte := bigIntToUint64(params.GetCoinsPerUtxoByte())
	pp := backend.ProtocolParameters{
		MinFeeCoefficient:         bigIntToUint64(params.GetMinFeeCoefficient()),
		MinFeeConstant:            bigIntToUint64(params.GetMinFeeConstant()),
		MaxTxSize:                 uint64(params.GetMaxTxSize()),
		MaxValueSize:              params.GetMaxValueSize(),
		CollateralPercentage:      uint64(params.GetCollateralPercentage()),
		MaxCollateralInputs:       uint64(params.GetMaxCollateralInputs()),
		MinUtxoDepositCoefficient: coinsPerByte,
		AdaPerUtxoByte:            coinsPerByte,
		StakeCredentialDeposit:    bigIntToUint64(params.GetStakeKeyDeposit()),
		PoolDeposit:               bigIntToUint64(params.GetPoolDeposit()),
	}

	if txEx := params.GetMaxExecutionUnitsPerTransaction(); txEx != nil {
		pp.MaxTxExecutionUnits = primitives.ExUnits{Mem: txEx.GetMemory(), Steps: txEx.GetSteps()}
	}
	if prices := params.GetPrices(); prices != nil {
		if m := prices.GetMemory(); m != nil && m.GetDenominator() != 0 {
			pp.ScriptExecutionPrices.Memory = big.NewRat(int64(m.GetNumerator()), int64(m.GetDenominator()))
		}
		if st := prices.GetSteps(); st != nil && st.GetDenominator() != 0 {
			pp.ScriptExecutionPrices.Cpu = big.NewRat(int64(st.GetNumerator()), int64(st.GetDenominator()))
		}
	}

	if cm := params.GetCostModels(); cm != nil {
		pp.CostModels = make(map[uint][]int64)
		if v1 := cm.GetPlutusV1(); v1 != nil {
			pp.CostModels[0] = append([]int64(nil), v1.GetValues()...)
		}
		if v2 := cm.GetPlutusV2(); v2 != nil {
			pp.CostModels[1] = append([]int64(nil), v2.GetValues()...)
		}
		if v3 := cm.GetPlutusV3(); v3 != nil {
			pp.CostModels[2] = append([]int64(nil), v3.GetValues()...)
		}
	}

	return pp, nil
}

func (u *UtxoRpcChainContext) NetworkId() uint8 {
	return u.networkId
}

func (u *UtxoRpcChainContext) Tip(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	req := connect.NewRequest(&syncpb.ReadTipRequest{})
	u.client.AddHeadersToRequest(req)
	resp, err := u.client.ReadTip(req)
	if err != nil {
		return 0, err
	}
	tip := resp.Msg.GetTip()
	if tip == nil {
		return 0, errors.New("no tip in response")
	}
	return tip.GetSlot(), nil
}

func (u *UtxoRpcChainContext) AddressUtxos(ctx context.Context, address common.Address) ([]primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addrBytes, err := address.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to get address bytes: %w", err)
	}

	req := connect.NewRequest(&query.SearchUtxosRequest{
		Predicate: &query.UtxoPredicate{
			Match: &query.AnyUtxoPattern{
				UtxoPattern: &query.AnyUtxoPattern_Cardano{
					Cardano: &cardano.TxOutputPattern{
						Address: &cardano.AddressPattern{
							ExactAddress: addrBytes,
						},
					},
				},
			},
		},
	})
	u.client.AddHeadersToRequest(req)
	resp, err := u.client.SearchUtxos(req)
	if err != nil {
		return nil, err
	}

	utxos := make([]primitives.Utxo, 0, len(resp.Msg.GetItems()))
	for _, item := range resp.Msg.GetItems() {
		utxo, err := utxoFromRpc(item)
		if err != nil {
			return nil, fmt.Errorf("failed to parse UTxO from RPC: %w", err)
		}
		utxos = append(utxos, utxo)
	}
	return primitives.SortUtxos(utxos), nil
}

func (u *UtxoRpcChainContext) readUtxos(ctx context.Context, inputs []primitives.Input) (map[primitives.Input]primitives.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]*query.TxoRef, 0, len(inputs))
	for _, in := range inputs {
		keys = append(keys, &query.TxoRef{Hash: in.TxHash.Bytes(), Index: in.Index})
	}
	req := connect.NewRequest(&query.ReadUtxosRequest{Keys: keys})
	u.client.AddHeadersToRequest(req)
	resp, err := u.client.ReadUtxos(req)
	if err != nil {
		return nil, err
	}
	found := make(map[primitives.Input]primitives.Utxo, len(resp.Msg.GetItems()))
	for _, item := range resp.Msg.GetItems() {
		utxo, err := utxoFromRpc(item)
		if err != nil {
			return nil, err
		}
		found[utxo.Input] = utxo
	}
	return found, nil
}

func (u *UtxoRpcChainContext) Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	found, err := u.readUtxos(ctx, inputs)
	if err != nil {
		return nil, err
	}
	result := make([]primitives.Utxo, 0, len(inputs))
	for _, in := range inputs {
		utxo, ok := found[in]
		if !ok {
			return nil, fmt.Errorf("utxo %s not found", in)
		}
		result = append(result, utxo)
	}
	return result, nil
}

func (u *UtxoRpcChainContext) Utxo(ctx context.Context, input primitives.Input) (*primitives.Utxo, error) {
	found, err := u.readUtxos(ctx, []primitives.Input{input})
	if err != nil {
		return nil, err
	}
	utxo, ok := found[input]
	if !ok {
		return nil, nil
	}
	return &utxo, nil
}

func (u *UtxoRpcChainContext) SubmitTx(ctx context.Context, tx []byte) (common.Blake2b256, error) {
	if err := ctx.Err(); err != nil {
		return common.Blake2b256{}, err
	}
	req := connect.NewRequest(&submit.SubmitTxRequest{
		Tx: &submit.AnyChainTx{
			Type: &submit.AnyChainTx_Raw{Raw: tx},
		},
	})
	u.client.AddHeadersToRequest(req)
	resp, err := u.client.SubmitTx(req)
	if err != nil {
		return common.Blake2b256{}, err
	}
	ref := resp.Msg.GetRef()
	if len(ref) != common.Blake2b256Size {
		return common.Blake2b256{}, fmt.Errorf("invalid tx ref length: expected %d bytes, got %d", common.Blake2b256Size, len(ref))
	}
	var result common.Blake2b256
	copy(result[:], ref)
	return result, nil
}

func (u *UtxoRpcChainContext) Evaluate(ctx context.Context, tx []byte) ([]backend.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := connect.NewRequest(&submit.EvalTxRequest{
		Tx: &submit.AnyChainTx{
			Type: &submit.AnyChainTx_Raw{Raw: tx},
		},
	})
	u.client.AddHeadersToRequest(req)
	resp, err := u.client.EvalTx(req)
	if err != nil {
		return nil, err
	}

	cardanoReport := resp.Msg.GetReport().GetCardano()
	if cardanoReport == nil {
		return nil, nil
	}
	result := make([]backend.Evaluation, 0, len(cardanoReport.GetRedeemers()))
	for _, redeemer := range cardanoReport.GetRedeemers() {
		tag, err := purposeToRedeemerTag(redeemer.GetPurpose())
		if err != nil {
			return nil, fmt.Errorf("failed to map redeemer purpose: %w", err)
		}
		eu := redeemer.GetExUnits()
		result = append(result, backend.NewEvaluation(tag, redeemer.GetIndex(), eu.GetMemory(), eu.GetSteps()))
	}
	return result, nil
}

func utxoFromRpc(item *query.AnyUtxoData) (primitives.Utxo, error) {
	ref := item.GetTxoRef()
	nativeBytes := item.GetNativeBytes()
	if len(nativeBytes) == 0 {
		return primitives.Utxo{}, fmt.Errorf("no native bytes for utxo %s#%d",
			hex.EncodeToString(ref.GetHash()), ref.GetIndex())
	}
	output, err := primitives.DecodeOutput(nativeBytes)
	if err != nil {
		return primitives.Utxo{}, fmt.Errorf("failed to parse utxo CBOR: %w", err)
	}
	refHash := ref.GetHash()
	if len(refHash) != common.Blake2b256Size {
		return primitives.Utxo{}, fmt.Errorf("invalid tx hash length: expected %d bytes, got %d", common.Blake2b256Size, len(refHash))
	}
	var txId common.Blake2b256
	copy(txId[:], refHash)
	return primitives.Utxo{
		Input:  primitives.NewInput(txId, ref.GetIndex()),
		Output: output,
	}, nil
}

// purposeToRedeemerTag maps the 1-based UTxO RPC purpose enum onto the
// 0-based ledger redeemer tag.
func purposeToRedeemerTag(purpose cardano.RedeemerPurpose) (common.RedeemerTag, error) {
	switch purpose {
	case cardano.RedeemerPurpose_REDEEMER_PURPOSE_SPEND:
		return common.RedeemerTagSpend, nil
	case cardano.RedeemerPurpose_REDEEMER_PURPOSE_MINT:
		return common.RedeemerTagMint, nil
	case cardano.RedeemerPurpose_REDEEMER_PURPOSE_CERT:
		return common.RedeemerTagCert, nil
	case cardano.RedeemerPurpose_REDEEMER_PURPOSE_REWARD:
		return common.RedeemerTagReward, nil
	default:
		return 0, fmt.Errorf("unsupported redeemer purpose: %d", purpose)
	}
}

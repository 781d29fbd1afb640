package hose

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// SerializedTx is the canonical encoding of a Staging.
type SerializedTx struct {
	Body           conway.ConwayTransactionBody
	WitnessSet     conway.ConwayTransactionWitnessSet
	BodyBytes      []byte
	WitnessBytes   []byte
	Bytes          []byte
	Hash           common.Blake2b256
	ScriptDataHash *common.Blake2b256
}

// txEnvelope is the top-level transaction array.
type txEnvelope struct {
	cbor.StructAsArray
	Body       cbor.RawMessage
	WitnessSet cbor.RawMessage
	IsValid    bool
	AuxData    cbor.RawMessage
}

var cborNull = []byte{0xf6}

// Serialize encodes s into canonical transaction bytes.
func Serialize(s *Staging) (*SerializedTx, error) {
	return serialize(s, nil)
}

func serialize(s *Staging, vkeys []common.VkeyWitness) (*SerializedTx, error) {
	ws, err := buildWitnessSet(s, vkeys)
	if err != nil {
		return nil, err
	}
	wsBytes, err := cbor.Encode(&ws)
	if err != nil {
		return nil, fmt.Errorf("failed to encode witness set: %w", err)
	}
	scriptDataHash, err := computeScriptDataHash(s, wsBytes)
	if err != nil {
		return nil, err
	}
	body, err := buildBody(s, scriptDataHash)
	if err != nil {
		return nil, err
	}
	bodyBytes, err := cbor.Encode(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tx body: %w", err)
	}
	txBytes, err := assembleTx(bodyBytes, wsBytes, s.AuxiliaryData, true)
	if err != nil {
		return nil, err
	}
	return &SerializedTx{
		Body:           body,
		WitnessSet:     ws,
		BodyBytes:      bodyBytes,
		WitnessBytes:   wsBytes,
		Bytes:          txBytes,
		Hash:           common.Blake2b256Hash(bodyBytes),
		ScriptDataHash: scriptDataHash,
	}, nil
}

func assembleTx(body, witnesses, aux []byte, isValid bool) ([]byte, error) {
	env := txEnvelope{
		Body:       body,
		WitnessSet: witnesses,
		IsValid:    isValid,
		AuxData:    cborNull,
	}
	if len(aux) > 0 {
		env.AuxData = aux
	}
	txBytes, err := cbor.Encode(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return txBytes, nil
}

func toShelleyInputs(inputs []primitives.Input) []shelley.ShelleyTransactionInput {
	result := make([]shelley.ShelleyTransactionInput, 0, len(inputs))
	for _, in := range inputs {
		result = append(result, in.ToShelley())
	}
	return result
}

func buildBody(s *Staging, scriptDataHash *common.Blake2b256) (conway.ConwayTransactionBody, error) {
	if s.ValidFrom != nil && s.InvalidFrom != nil && *s.ValidFrom >= *s.InvalidFrom {
		return conway.ConwayTransactionBody{}, fmt.Errorf("%w: %d >= %d", ErrInvalidValidityInterval, *s.ValidFrom, *s.InvalidFrom)
	}
	outputs := make([]babbage.BabbageTransactionOutput, 0, len(s.Outputs))
	for i, o := range s.Outputs {
		txOut, err := o.ToBabbage()
		if err != nil {
			return conway.ConwayTransactionBody{}, fmt.Errorf("output %d: %w", i, err)
		}
		outputs = append(outputs, txOut)
	}

	body := conway.ConwayTransactionBody{
		TxInputs:  conway.NewConwayTransactionInputSet(toShelleyInputs(s.SortedInputs())),
		TxOutputs: outputs,
		TxFee:     s.Fee,
	}
	if s.InvalidFrom != nil {
		body.Ttl = *s.InvalidFrom
	}
	if s.ValidFrom != nil {
		body.TxValidityIntervalStart = *s.ValidFrom
	}

	if len(s.Certificates) > 0 {
		certs := make([]common.CertificateWrapper, 0, len(s.Certificates))
		for i, c := range s.Certificates {
			wrapped, err := c.ToLedger()
			if err != nil {
				return body, fmt.Errorf("certificate %d: %w", i, err)
			}
			certs = append(certs, wrapped)
		}
		body.TxCertificates = certs
	}

	if len(s.Withdrawals) > 0 {
		wdMap := make(map[*common.Address]uint64, len(s.Withdrawals))
		for _, w := range s.SortedWithdrawals() {
			addr, err := w.Account.Address()
			if err != nil {
				return body, fmt.Errorf("invalid reward account %s: %w", w.Account, err)
			}
			wdMap[&addr] = w.Amount
		}
		body.TxWithdrawals = wdMap
	}

	if len(s.AuxiliaryData) > 0 {
		auxHash := common.Blake2b256Hash(s.AuxiliaryData)
		body.TxAuxDataHash = &auxHash
	}

	body.TxMint = s.Mint.ToMint()
	body.TxScriptDataHash = scriptDataHash

	if len(s.CollateralInputs) > 0 {
		body.TxCollateral = cbor.NewSetType(toShelleyInputs(primitives.SortInputs(s.CollateralInputs)), true)
	}
	if len(s.Signers) > 0 {
		signers := slices.Clone(s.Signers)
		slices.SortFunc(signers, func(a, b common.Blake2b224) int {
			return bytes.Compare(a[:], b[:])
		})
		body.TxRequiredSigners = cbor.NewSetType(signers, true)
	}
	if s.NetworkId != nil {
		if err := primitives.ValidateNetworkId(*s.NetworkId); err != nil {
			return body, err
		}
		netId := *s.NetworkId
		body.TxNetworkId = &netId
	}
	if s.CollateralOutput != nil {
		ret, err := s.CollateralOutput.ToBabbage()
		if err != nil {
			return body, fmt.Errorf("collateral return: %w", err)
		}
		body.TxCollateralReturn = &ret
	}
	if len(s.ReferenceInputs) > 0 {
		body.TxReferenceInputs = cbor.NewSetType(toShelleyInputs(primitives.SortInputs(s.ReferenceInputs)), true)
	}
	if s.TotalCollateral != nil {
		body.TxTotalCollateral = *s.TotalCollateral
	}
	return body, nil
}

func buildWitnessSet(s *Staging, vkeys []common.VkeyWitness) (conway.ConwayTransactionWitnessSet, error) {
	ws := conway.ConwayTransactionWitnessSet{}
	if len(vkeys) > 0 {
		ws.VkeyWitnesses = cbor.NewSetType(sortVkeyWitnesses(vkeys), true)
	}

	hashes := make([]common.Blake2b224, 0, len(s.Scripts))
	for h := range s.Scripts {
		hashes = append(hashes, h)
	}
	slices.SortFunc(hashes, func(a, b common.Blake2b224) int {
		return bytes.Compare(a[:], b[:])
	})
	var (
		native []common.NativeScript
		v1     []common.PlutusV1Script
		v2     []common.PlutusV2Script
		v3     []common.PlutusV3Script
	)
	for _, h := range hashes {
		script := s.Scripts[h]
		switch script.Kind {
		case primitives.ScriptNative:
			ns, err := script.NativeScript()
			if err != nil {
				return ws, err
			}
			native = append(native, ns)
		case primitives.ScriptPlutusV1:
			v1 = append(v1, common.PlutusV1Script(script.Bytes))
		case primitives.ScriptPlutusV2:
			v2 = append(v2, common.PlutusV2Script(script.Bytes))
		case primitives.ScriptPlutusV3:
			v3 = append(v3, common.PlutusV3Script(script.Bytes))
		default:
			return ws, fmt.Errorf("%w: unknown kind %d", ErrMalformedScript, script.Kind)
		}
	}
	if len(native) > 0 {
		ws.WsNativeScripts = cbor.NewSetType(native, true)
	}
	if len(v1) > 0 {
		ws.WsPlutusV1Scripts = cbor.NewSetType(v1, true)
	}
	if len(v2) > 0 {
		ws.WsPlutusV2Scripts = cbor.NewSetType(v2, true)
	}
	if len(v3) > 0 {
		ws.WsPlutusV3Scripts = cbor.NewSetType(v3, true)
	}

	if len(s.Datums) > 0 {
		datumHashes := make([]common.Blake2b256, 0, len(s.Datums))
		for h := range s.Datums {
			datumHashes = append(datumHashes, h)
		}
		slices.SortFunc(datumHashes, func(a, b common.Blake2b256) int {
			return bytes.Compare(a[:], b[:])
		})
		datums := make([]common.Datum, 0, len(datumHashes))
		for _, h := range datumHashes {
			d, err := primitives.ToLedgerDatum(s.Datums[h])
			if err != nil {
				return ws, fmt.Errorf("datum %s: %w", h, err)
			}
			datums = append(datums, d)
		}
		ws.WsPlutusData = cbor.NewSetType(datums, true)
	}

	if len(s.Redeemers) > 0 {
		redeemers, err := buildRedeemerMap(s)
		if err != nil {
			return ws, err
		}
		ws.WsRedeemers = conway.ConwayRedeemers{Redeemers: redeemers}
	}
	return ws, nil
}

func buildRedeemerMap(s *Staging) (map[common.RedeemerKey]common.RedeemerValue, error) {
	result := make(map[common.RedeemerKey]common.RedeemerValue, len(s.Redeemers))
	for purpose, r := range s.Redeemers {
		if h, ok := primitives.ScriptHash(purpose); ok {
			if script, found := s.Scripts[h]; found && script.Kind == primitives.ScriptNative {
				return nil, fmt.Errorf("%w: %s", ErrRedeemerForNativeScript, purpose)
			}
		}
		idx, err := s.RedeemerIndex(purpose)
		if err != nil {
			return nil, err
		}
		data, err := primitives.ToLedgerDatum(r.Data)
		if err != nil {
			return nil, fmt.Errorf("redeemer %s: %w", purpose, err)
		}
		var units common.ExUnits
		if r.Budget != nil {
			units = common.ExUnits{Memory: clampInt64(r.Budget.Mem), Steps: clampInt64(r.Budget.Steps)}
		}
		result[common.RedeemerKey{Tag: purpose.Tag(), Index: idx}] = common.RedeemerValue{
			Data:    data,
			ExUnits: units,
		}
	}
	return result, nil
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func sortVkeyWitnesses(vkeys []common.VkeyWitness) []common.VkeyWitness {
	sorted := slices.Clone(vkeys)
	slices.SortFunc(sorted, func(a, b common.VkeyWitness) int {
		return bytes.Compare(a.Vkey, b.Vkey)
	})
	return sorted
}

// computeScriptDataHash hashes the redeemers and datums exactly as they
// appear in the encoded witness set, followed by the language views.
func computeScriptDataHash(s *Staging, wsBytes []byte) (*common.Blake2b256, error) {
	if len(s.Redeemers) == 0 && len(s.Datums) == 0 {
		return nil, nil
	}
	var fields map[uint]cbor.RawMessage
	if _, err := cbor.Decode(wsBytes, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode witness set: %w", err)
	}
	redeemerBytes := []byte{0xa0}
	langViews := []byte{0xa0}
	if raw, ok := fields[primitives.WitnessKeyRedeemers]; ok && len(s.Redeemers) > 0 {
		redeemerBytes = raw
		views, err := s.LanguageViews()
		if err != nil {
			return nil, fmt.Errorf("failed to encode language views: %w", err)
		}
		langViews = views
	}
	datumBytes := fields[primitives.WitnessKeyDatums]

	combined := make([]byte, 0, len(redeemerBytes)+len(datumBytes)+len(langViews))
	combined = append(combined, redeemerBytes...)
	combined = append(combined, datumBytes...)
	combined = append(combined, langViews...)
	hash := common.Blake2b256Hash(combined)
	return &hash, nil
}
